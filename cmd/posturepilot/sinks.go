package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/ayusman/posturepilot/internal/app"
	"github.com/ayusman/posturepilot/internal/config"
	"github.com/ayusman/posturepilot/internal/notify"
	"github.com/ayusman/posturepilot/internal/plugin"
	"github.com/ayusman/posturepilot/internal/store"
	"github.com/ayusman/posturepilot/internal/tray"
)

const appName = "PosturePilot"

// buildSinks assembles the persistence, notification and indicator sinks
// from cfg. tr may be nil in headless mode. The returned function releases
// broker connections.
func buildSinks(ctx context.Context, cfg *config.Config, st *store.Store, tr *tray.Tray) (app.Sinks, func()) {
	var (
		notifiers  notify.Multi
		indicators notify.Indicators
		closers    []func()
	)

	if cfg.Notify.Desktop {
		notifiers = append(notifiers, notify.NewDesktop(appName))
	} else {
		notifiers = append(notifiers, notify.Log{})
	}

	if tr != nil {
		indicators = append(indicators, tr)
	}

	if m := cfg.Notify.MQTT; m.Enabled {
		client := notify.NewMQTT(notify.MQTTConfig{
			Broker:   m.Broker,
			ClientID: m.ClientID,
			Topic:    m.Topic,
			QoS:      m.QoS,
		})
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := client.Connect(connectCtx)
		cancel()
		if err != nil {
			log.Printf("MQTT disabled: %v", err)
		} else {
			notifiers = append(notifiers, client)
			indicators = append(indicators, client)
			closers = append(closers, client.Disconnect)
		}
	}

	if pn := loadPlugins(cfg.Plugins); pn != nil {
		notifiers = append(notifiers, pn)
		indicators = append(indicators, pn)
	}

	sinks := app.Sinks{
		Persistence: st,
		Notifier:    notifiers,
		Indicator:   indicators,
		OnError:     logSinkError,
	}
	return sinks, func() {
		for _, c := range closers {
			c()
		}
	}
}

func loadPlugins(cfg config.PluginsConfig) *plugin.Notifier {
	manager := plugin.NewManager(cfg.Dir)
	if err := manager.Discover(); err != nil {
		log.Printf("Plugin discovery failed: %v", err)
		return nil
	}
	plugins := manager.List()
	if len(plugins) == 0 {
		return nil
	}

	n := plugin.NewNotifier(manager, plugin.NewExecutor(cfg.Timeout))
	for name, settings := range cfg.Settings {
		raw, err := json.Marshal(settings)
		if err != nil {
			log.Printf("Ignoring settings for plugin %s: %v", name, err)
			continue
		}
		n.Configure(name, raw)
	}
	for _, p := range plugins {
		log.Printf("Loaded plugin %s %s", p.Manifest.Name, p.Manifest.Version)
	}
	return n
}

func logSinkError(err error) {
	switch {
	case errors.Is(err, app.ErrPersistence):
		log.Printf("Failed to save posture data: %v", err)
	case errors.Is(err, app.ErrNotification):
		log.Printf("Failed to deliver alert: %v", err)
	default:
		log.Printf("Sink error: %v", err)
	}
}
