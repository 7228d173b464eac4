package presenter

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/lingodesk/bellhop/internal/domain"
	"github.com/lingodesk/bellhop/internal/nav"
)

// Preferences serves the settings snapshot the gate evaluates
// against. Cached never blocks; the gate runs on the delivery path.
type Preferences interface {
	Cached() domain.Preferences
}

// Marker acknowledges a clicked notification.
type Marker interface {
	MarkRead(ctx context.Context, id string) error
}

// Sinks bundles the effect outputs the gate drives.
type Sinks struct {
	Toast     ToastSink
	Sound     SoundSink
	Desktop   DesktopSink
	Focus     FocusProber
	Navigator Navigator
}

// Config tunes the gate.
type Config struct {
	// InterruptionsPerMinute caps sound and desktop effects. Toasts
	// are never rate limited.
	InterruptionsPerMinute float64
	// Burst is how many interruptions may fire back to back before
	// the cap binds.
	Burst int
}

// Gate decides, per delivered notification, which locally perceptible
// effects to produce. It never affects delivery to other subscribers
// or the unread counter.
type Gate struct {
	prefs    Preferences
	renderer *Renderer
	sinks    Sinks
	marker   Marker
	limiter  *rate.Limiter
	logger   *slog.Logger
	now      func() time.Time
}

// NewGate creates a presentation gate.
func NewGate(cfg Config, prefs Preferences, renderer *Renderer, sinks Sinks, marker Marker, logger *slog.Logger) *Gate {
	perMinute := cfg.InterruptionsPerMinute
	if perMinute <= 0 {
		perMinute = 12
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &Gate{
		prefs:    prefs,
		renderer: renderer,
		sinks:    sinks,
		marker:   marker,
		limiter:  rate.NewLimiter(rate.Limit(perMinute/60), burst),
		logger:   logger,
		now:      time.Now,
	}
}

// Notify is the gate's subscriber callback. The policy ladder:
//
//  1. Global disable suppresses everything. The event is still
//     counted and delivered upstream; only effects are skipped.
//  2. A disabled kind still shows an in-app toast but never
//     interrupts (no sound, no desktop notification).
//  3. Sound requires the server's requires_sound hint, the sound
//     preference, and a moment outside quiet hours.
//  4. Desktop notifications require platform permission and an
//     unfocused window.
//  5. Interruptions (sound, desktop) share a rate cap.
func (g *Gate) Notify(n domain.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p := g.prefs.Cached()
	if !p.Enabled {
		recordSuppression("disabled")
		return
	}

	title, body := g.renderer.Render(n)
	toast := Toast{
		NotificationID: n.ID,
		Title:          title,
		Body:           body,
		Vibrate:        p.VibrationEnabled,
	}

	if err := g.sinks.Toast.ShowToast(ctx, toast); err != nil {
		g.logger.Warn("toast failed", "notification_id", n.ID, "error", err)
	} else {
		recordEffect("toast")
	}

	if !p.KindEnabled(n.Kind) {
		recordSuppression("kind_disabled")
		return
	}

	wantSound := n.RequiresSound && p.SoundEnabled
	if wantSound && inQuietHours(p.QuietHours, g.now()) {
		recordSuppression("quiet_hours")
		wantSound = false
	}

	wantDesktop := p.DesktopEnabled && g.sinks.Desktop.PermissionGranted()
	if wantDesktop && g.sinks.Focus.Focused() {
		recordSuppression("focused")
		wantDesktop = false
	}

	if !wantSound && !wantDesktop {
		return
	}
	if !g.limiter.Allow() {
		recordSuppression("rate_limited")
		return
	}

	if wantSound {
		if err := g.sinks.Sound.PlaySound(ctx); err != nil {
			g.logger.Warn("sound failed", "notification_id", n.ID, "error", err)
		} else {
			recordEffect("sound")
		}
	}
	if wantDesktop {
		if err := g.sinks.Desktop.ShowDesktop(ctx, toast); err != nil {
			g.logger.Warn("desktop notification failed", "notification_id", n.ID, "error", err)
		} else {
			recordEffect("desktop")
		}
	}
}

// HandleClick reacts to the user clicking any produced effect:
// navigate to the notification's target and mark it read.
func (g *Gate) HandleClick(ctx context.Context, id, actionURL string) error {
	target := nav.Resolve(actionURL)
	if err := g.sinks.Navigator.Navigate(ctx, target); err != nil {
		g.logger.Warn("navigation failed",
			"notification_id", id,
			"route", target.Route,
			"error", err,
		)
	}
	return g.marker.MarkRead(ctx, id)
}
