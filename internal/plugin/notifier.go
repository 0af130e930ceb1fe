package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ayusman/posturepilot/internal/posture"
	"github.com/ayusman/posturepilot/internal/sink"
)

// Notifier delivers alerts and indicator levels to every discovered plugin
// that declares the matching action.
type Notifier struct {
	manager  *Manager
	executor *Executor

	mu      sync.RWMutex
	configs map[string]json.RawMessage
}

var (
	_ sink.Notifier  = (*Notifier)(nil)
	_ sink.Indicator = (*Notifier)(nil)
)

// NewNotifier creates a Notifier over the plugins known to manager.
func NewNotifier(manager *Manager, executor *Executor) *Notifier {
	return &Notifier{
		manager:  manager,
		executor: executor,
		configs:  make(map[string]json.RawMessage),
	}
}

// Configure sets the config object passed to the named plugin.
func (n *Notifier) Configure(name string, config json.RawMessage) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.configs[name] = config
}

// Notify sends msg to the plugins that handle alerts of its severity.
func (n *Notifier) Notify(ctx context.Context, msg sink.Notification) error {
	return n.run(ctx, ActionAlert, func(p *Plugin) *Request {
		if !p.Accepts(msg.Severity) {
			return nil
		}
		m := msg
		return &Request{Action: ActionAlert, Notification: &m}
	})
}

// SetIndicator sends level to the plugins that handle indicator updates.
func (n *Notifier) SetIndicator(level posture.Level) error {
	return n.run(context.Background(), ActionIndicator, func(*Plugin) *Request {
		return &Request{Action: ActionIndicator, Level: level}
	})
}

func (n *Notifier) run(ctx context.Context, action string, build func(*Plugin) *Request) error {
	var errs []error
	for _, p := range n.manager.ForAction(action) {
		req := build(p)
		if req == nil {
			continue
		}

		n.mu.RLock()
		req.Config = n.configs[p.Manifest.Name]
		n.mu.RUnlock()

		resp, err := n.executor.Execute(ctx, p, req)
		if err != nil {
			errs = append(errs, fmt.Errorf("plugin %s: %w", p.Manifest.Name, err))
			continue
		}
		if !resp.Success {
			errs = append(errs, fmt.Errorf("plugin %s: %s", p.Manifest.Name, resp.Error))
		}
	}
	return errors.Join(errs...)
}
