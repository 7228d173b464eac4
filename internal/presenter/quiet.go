package presenter

import (
	"time"

	"github.com/lingodesk/bellhop/internal/domain"
)

// inQuietHours reports whether now falls inside the quiet window.
// Weekends are governed solely by the all-day flag. Weekday windows
// are compared at minute resolution as a half-open circular interval
// [start, end), so a window like 22:00-08:00 wraps past midnight
// without an off-by-one at either boundary. Equal start and end means
// no window.
func inQuietHours(q domain.QuietHours, now time.Time) bool {
	switch now.Weekday() {
	case time.Saturday, time.Sunday:
		return q.WeekendAllDay
	}

	start, ok := parseMinutes(q.WeekdayStart)
	if !ok {
		return false
	}
	end, ok := parseMinutes(q.WeekdayEnd)
	if !ok {
		return false
	}
	if start == end {
		return false
	}

	minute := now.Hour()*60 + now.Minute()
	if start < end {
		return minute >= start && minute < end
	}
	return minute >= start || minute < end
}

// parseMinutes converts "HH:MM" to minutes since midnight.
func parseMinutes(s string) (int, bool) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}
