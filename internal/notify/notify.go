// Package notify is the OS-notification capability injected into the draw
// and session subsystems. Platforms without notification support wire the
// Nop gateway; callers never branch on availability themselves.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ReaperOAK/KCAdashboard-sub001/internal/obslog"
)

// Notification is one transient OS-level message. Tag deduplicates: showing
// a second notification with the same tag replaces the first.
type Notification struct {
	Title     string
	Body      string
	Tag       string
	AutoClose time.Duration
}

type Gateway interface {
	// Supported reports whether notifications can be delivered at all.
	Supported() bool
	// Show delivers a notification. Implementations must no-op silently when
	// permission is denied or the platform lacks the capability.
	Show(ctx context.Context, n Notification) error
}

// Nop is the explicit unsupported variant.
type Nop struct{}

func (Nop) Supported() bool                          { return false }
func (Nop) Show(context.Context, Notification) error { return nil }

// Log delivers notifications to the structured log. Used by the headless
// runtime where no desktop surface exists.
type Log struct{}

func (Log) Supported() bool { return true }

func (Log) Show(_ context.Context, n Notification) error {
	obslog.L().Info("notification",
		zap.String("title", n.Title),
		zap.String("body", n.Body),
		zap.String("tag", n.Tag),
	)
	return nil
}
