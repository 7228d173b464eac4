package domain

// Preferences holds the user's notification settings as served by the
// CRM. Read-mostly: the bridge never mutates it locally, updates go
// through the settings endpoint.
type Preferences struct {
	Enabled          bool          `json:"enabled"`
	SoundEnabled     bool          `json:"sound_enabled"`
	DesktopEnabled   bool          `json:"desktop_enabled"`
	VibrationEnabled bool          `json:"vibration_enabled"`
	Kinds            map[Kind]bool `json:"kinds"`
	QuietHours       QuietHours    `json:"quiet_hours"`
}

// KindEnabled reports whether notifications of the given kind may
// interrupt the user. Kinds missing from the map default to enabled.
func (p Preferences) KindEnabled(k Kind) bool {
	if p.Kinds == nil {
		return true
	}
	enabled, ok := p.Kinds[k]
	if !ok {
		return true
	}
	return enabled
}

// DefaultPreferences returns the settings applied before the first
// successful preferences fetch: everything on, no quiet hours.
func DefaultPreferences() Preferences {
	return Preferences{
		Enabled:          true,
		SoundEnabled:     true,
		DesktopEnabled:   true,
		VibrationEnabled: true,
	}
}

// QuietHours is a daily window during which audible effects are
// suppressed. Times are "HH:MM" on a 24h clock. The window may wrap
// past midnight; equal start and end means no window.
type QuietHours struct {
	WeekdayStart  string `json:"weekday_start"`
	WeekdayEnd    string `json:"weekday_end"`
	WeekendAllDay bool   `json:"weekend_all_day"`
}
