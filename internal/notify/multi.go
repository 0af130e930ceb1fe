package notify

import (
	"context"
	"errors"
	"log"

	"github.com/ayusman/posturepilot/internal/posture"
	"github.com/ayusman/posturepilot/internal/sink"
)

// Multi sends every notification to all of its notifiers. A failing
// notifier does not stop the others.
type Multi []sink.Notifier

// Notify calls every notifier and joins their errors.
func (m Multi) Notify(ctx context.Context, n sink.Notification) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Indicators sets the level on all of its indicators.
type Indicators []sink.Indicator

// SetIndicator calls every indicator and joins their errors.
func (is Indicators) SetIndicator(level posture.Level) error {
	var errs []error
	for _, ind := range is {
		if err := ind.SetIndicator(level); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log writes alerts to the standard logger. It is used in headless mode.
type Log struct{}

// Notify logs n.
func (Log) Notify(_ context.Context, n sink.Notification) error {
	log.Printf("[%s] %s: %s", n.Severity, n.Title, n.Body)
	return nil
}
