// Package sink defines the collaborators that receive posture results:
// persistence, notifications and status indicators.
package sink

import (
	"context"
	"time"

	"github.com/ayusman/posturepilot/internal/posture"
	"github.com/google/uuid"
)

// LogRecord is one analyzed frame as written to the posture log.
type LogRecord struct {
	ID           uuid.UUID        `json:"id"`
	SessionID    uuid.UUID        `json:"sessionId"`
	Timestamp    time.Time        `json:"timestamp"`
	Status       posture.Level    `json:"status"`
	Message      string           `json:"message"`
	Measurements posture.Features `json:"measurements"`
}

// Notification is a user-facing alert.
type Notification struct {
	Title    string        `json:"title"`
	Body     string        `json:"body"`
	Severity posture.Level `json:"severity"`
}

// Persistence stores the calibration baseline and the posture log.
type Persistence interface {
	SaveBaseline(ctx context.Context, b posture.Baseline) error
	// GetBaseline returns nil and no error when no baseline was saved.
	GetBaseline(ctx context.Context) (*posture.Baseline, error)
	AppendPostureLog(ctx context.Context, rec LogRecord) error
}

// Notifier delivers alerts.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Indicator shows the current posture level, for example as a tray icon color.
type Indicator interface {
	SetIndicator(level posture.Level) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, n Notification) error

// Notify calls f(ctx, n).
func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// IndicatorFunc adapts a function to the Indicator interface.
type IndicatorFunc func(level posture.Level) error

// SetIndicator calls f(level).
func (f IndicatorFunc) SetIndicator(level posture.Level) error {
	return f(level)
}
