package presenter

import (
	"context"
	"log/slog"

	"github.com/lingodesk/bellhop/internal/nav"
)

// Toast is an in-app banner shown by the host shell.
type Toast struct {
	NotificationID string
	Title          string
	Body           string
	Vibrate        bool
}

// ToastSink shows in-app banners.
type ToastSink interface {
	ShowToast(ctx context.Context, t Toast) error
}

// SoundSink plays the notification chime.
type SoundSink interface {
	PlaySound(ctx context.Context) error
}

// DesktopSink raises OS-level notifications. PermissionGranted
// reflects whether the user has granted the platform permission.
type DesktopSink interface {
	PermissionGranted() bool
	ShowDesktop(ctx context.Context, t Toast) error
}

// FocusProber reports whether the host shell window currently has
// focus. Desktop notifications are skipped while it does.
type FocusProber interface {
	Focused() bool
}

// Navigator opens a resolved target in the host shell.
type Navigator interface {
	Navigate(ctx context.Context, target nav.Target) error
}

// LogSinks is the default sink set: every effect is a log line. The
// host shell replaces it with real integrations.
type LogSinks struct {
	Logger *slog.Logger
}

func (s LogSinks) ShowToast(_ context.Context, t Toast) error {
	s.Logger.Info("toast",
		"notification_id", t.NotificationID,
		"title", t.Title,
		"body", t.Body,
		"vibrate", t.Vibrate,
	)
	return nil
}

func (s LogSinks) PlaySound(context.Context) error {
	s.Logger.Info("sound")
	return nil
}

func (s LogSinks) PermissionGranted() bool { return true }

func (s LogSinks) ShowDesktop(_ context.Context, t Toast) error {
	s.Logger.Info("desktop notification",
		"notification_id", t.NotificationID,
		"title", t.Title,
	)
	return nil
}

func (s LogSinks) Focused() bool { return false }

func (s LogSinks) Navigate(_ context.Context, target nav.Target) error {
	s.Logger.Info("navigate",
		"route", target.Route,
		"path", target.Path,
		"entity_id", target.EntityID,
	)
	return nil
}
