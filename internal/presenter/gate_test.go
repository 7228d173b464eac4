package presenter

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lingodesk/bellhop/internal/domain"
	"github.com/lingodesk/bellhop/internal/nav"
)

var (
	// 2026-08-25 is a Tuesday, 2026-08-29 a Saturday.
	tuesdayNoon  = time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	tuesdayNight = time.Date(2026, 8, 25, 23, 0, 0, 0, time.UTC)
	saturday     = time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
)

type staticPrefs struct {
	p domain.Preferences
}

func (s staticPrefs) Cached() domain.Preferences { return s.p }

type recordSinks struct {
	toasts     []Toast
	sounds     int
	desktops   []Toast
	permission bool
	focused    bool
	navigated  []nav.Target
}

func (r *recordSinks) ShowToast(_ context.Context, t Toast) error {
	r.toasts = append(r.toasts, t)
	return nil
}

func (r *recordSinks) PlaySound(context.Context) error {
	r.sounds++
	return nil
}

func (r *recordSinks) PermissionGranted() bool { return r.permission }

func (r *recordSinks) ShowDesktop(_ context.Context, t Toast) error {
	r.desktops = append(r.desktops, t)
	return nil
}

func (r *recordSinks) Focused() bool { return r.focused }

func (r *recordSinks) Navigate(_ context.Context, target nav.Target) error {
	r.navigated = append(r.navigated, target)
	return nil
}

type fakeMarker struct {
	marked []string
}

func (f *fakeMarker) MarkRead(_ context.Context, id string) error {
	f.marked = append(f.marked, id)
	return nil
}

func newTestGate(t *testing.T, p domain.Preferences, sinks *recordSinks, marker *fakeMarker, now time.Time) *Gate {
	t.Helper()
	renderer, err := NewRenderer()
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	g := NewGate(Config{InterruptionsPerMinute: 60, Burst: 10}, staticPrefs{p}, renderer, Sinks{
		Toast:     sinks,
		Sound:     sinks,
		Desktop:   sinks,
		Focus:     sinks,
		Navigator: sinks,
	}, marker, logger)
	g.now = func() time.Time { return now }
	return g
}

func soundEvent(id string) domain.Notification {
	return domain.Notification{
		ID:            id,
		Kind:          domain.KindNewMessage,
		Title:         "New message",
		Message:       "Hello there",
		RequiresSound: true,
		CreatedAt:     time.Now().UTC(),
	}
}

func quietPrefs() domain.Preferences {
	p := domain.DefaultPreferences()
	p.QuietHours = domain.QuietHours{
		WeekdayStart: "22:00",
		WeekdayEnd:   "08:00",
	}
	return p
}

func TestInQuietHours(t *testing.T) {
	wrap := domain.QuietHours{WeekdayStart: "22:00", WeekdayEnd: "08:00"}
	plain := domain.QuietHours{WeekdayStart: "12:00", WeekdayEnd: "14:00"}

	tests := []struct {
		name   string
		window domain.QuietHours
		at     time.Time
		want   bool
	}{
		{"wrapping window, inside before midnight", wrap, tuesdayNight, true},
		{"wrapping window, inside after midnight", wrap, time.Date(2026, 8, 25, 7, 30, 0, 0, time.UTC), true},
		{"wrapping window, outside", wrap, tuesdayNoon, false},
		{"start is inclusive", wrap, time.Date(2026, 8, 25, 22, 0, 0, 0, time.UTC), true},
		{"end is exclusive", wrap, time.Date(2026, 8, 25, 8, 0, 0, 0, time.UTC), false},
		{"minute before end", wrap, time.Date(2026, 8, 25, 7, 59, 0, 0, time.UTC), true},
		{"plain window, inside", plain, time.Date(2026, 8, 25, 13, 30, 0, 0, time.UTC), true},
		{"plain window, outside", plain, time.Date(2026, 8, 25, 15, 0, 0, 0, time.UTC), false},
		{"empty window never matches", domain.QuietHours{WeekdayStart: "09:00", WeekdayEnd: "09:00"}, tuesdayNoon, false},
		{"no window configured", domain.QuietHours{}, tuesdayNight, false},
		{"weekend all day", domain.QuietHours{WeekendAllDay: true}, saturday, true},
		{"weekend without flag ignores weekday window", wrap, time.Date(2026, 8, 29, 23, 0, 0, 0, time.UTC), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, inQuietHours(tt.window, tt.at))
		})
	}
}

func TestGate_GlobalDisableSuppressesEverything(t *testing.T) {
	p := domain.DefaultPreferences()
	p.Enabled = false
	sinks := &recordSinks{permission: true}
	g := newTestGate(t, p, sinks, &fakeMarker{}, tuesdayNoon)

	g.Notify(soundEvent("n1"))

	assert.Empty(t, sinks.toasts)
	assert.Zero(t, sinks.sounds)
	assert.Empty(t, sinks.desktops)
}

func TestGate_DisabledKindShowsToastOnly(t *testing.T) {
	p := domain.DefaultPreferences()
	p.Kinds = map[domain.Kind]bool{domain.KindNewMessage: false}
	sinks := &recordSinks{permission: true}
	g := newTestGate(t, p, sinks, &fakeMarker{}, tuesdayNoon)

	g.Notify(soundEvent("n1"))

	assert.Len(t, sinks.toasts, 1)
	assert.Zero(t, sinks.sounds)
	assert.Empty(t, sinks.desktops)
}

func TestGate_QuietHoursSuppressSoundNotToast(t *testing.T) {
	sinks := &recordSinks{}
	g := newTestGate(t, quietPrefs(), sinks, &fakeMarker{}, tuesdayNight)

	g.Notify(soundEvent("n1"))

	assert.Len(t, sinks.toasts, 1)
	assert.Zero(t, sinks.sounds)
}

func TestGate_SoundOutsideQuietHours(t *testing.T) {
	sinks := &recordSinks{}
	g := newTestGate(t, quietPrefs(), sinks, &fakeMarker{}, tuesdayNoon)

	g.Notify(soundEvent("n1"))

	assert.Len(t, sinks.toasts, 1)
	assert.Equal(t, 1, sinks.sounds)
}

func TestGate_SoundNeedsServerHint(t *testing.T) {
	sinks := &recordSinks{}
	g := newTestGate(t, domain.DefaultPreferences(), sinks, &fakeMarker{}, tuesdayNoon)

	n := soundEvent("n1")
	n.RequiresSound = false
	g.Notify(n)

	assert.Zero(t, sinks.sounds)
}

func TestGate_DesktopNeedsPermissionAndBlur(t *testing.T) {
	tests := []struct {
		name       string
		permission bool
		focused    bool
		want       int
	}{
		{"granted and unfocused", true, false, 1},
		{"granted but focused", true, true, 0},
		{"no permission", false, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sinks := &recordSinks{permission: tt.permission, focused: tt.focused}
			g := newTestGate(t, domain.DefaultPreferences(), sinks, &fakeMarker{}, tuesdayNoon)

			n := soundEvent("n1")
			n.RequiresSound = false
			g.Notify(n)

			assert.Len(t, sinks.desktops, tt.want)
		})
	}
}

func TestGate_InterruptionRateCap(t *testing.T) {
	renderer, err := NewRenderer()
	require.NoError(t, err)

	sinks := &recordSinks{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	g := NewGate(Config{InterruptionsPerMinute: 1}, staticPrefs{domain.DefaultPreferences()}, renderer, Sinks{
		Toast:     sinks,
		Sound:     sinks,
		Desktop:   sinks,
		Focus:     sinks,
		Navigator: sinks,
	}, &fakeMarker{}, logger)
	g.now = func() time.Time { return tuesdayNoon }

	g.Notify(soundEvent("n1"))
	g.Notify(soundEvent("n2"))

	// The cap binds sound, never the toast.
	assert.Equal(t, 1, sinks.sounds)
	assert.Len(t, sinks.toasts, 2)
}

func TestGate_ClickNavigatesAndMarksRead(t *testing.T) {
	sinks := &recordSinks{}
	marker := &fakeMarker{}
	g := newTestGate(t, domain.DefaultPreferences(), sinks, marker, tuesdayNoon)

	err := g.HandleClick(context.Background(), "n1", "/inbox/c42")

	require.NoError(t, err)
	require.Len(t, sinks.navigated, 1)
	assert.Equal(t, nav.RouteInbox, sinks.navigated[0].Route)
	assert.Equal(t, "c42", sinks.navigated[0].EntityID)
	assert.Equal(t, []string{"n1"}, marker.marked)
}

func TestRenderer_FallbackBody(t *testing.T) {
	renderer, err := NewRenderer()
	require.NoError(t, err)

	tests := []struct {
		name     string
		n        domain.Notification
		wantBody string
	}{
		{
			"server text wins",
			domain.Notification{Kind: domain.KindNewMessage, Title: "T", Message: "M"},
			"M",
		},
		{
			"per-kind fallback with entity",
			domain.Notification{Kind: domain.KindTranslationReady, EntityID: "o7"},
			"A translation is ready for order o7.",
		},
		{
			"per-kind fallback without entity",
			domain.Notification{Kind: domain.KindPaymentReceived},
			"A payment was received.",
		},
		{
			"unknown kind falls back to generic",
			domain.Notification{Kind: domain.Kind("mystery")},
			"You have a new notification.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, body := renderer.Render(tt.n)
			assert.NotEmpty(t, title)
			assert.Equal(t, tt.wantBody, body)
		})
	}
}

func TestRenderer_TitleFallsBackToKind(t *testing.T) {
	renderer, err := NewRenderer()
	require.NoError(t, err)

	title, _ := renderer.Render(domain.Notification{Kind: domain.KindDeadlineWarning})
	assert.Equal(t, "Deadline Warning", title)
}
