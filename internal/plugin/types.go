// Package plugin runs external alert plugins. A plugin is a directory with
// a plugin.json manifest and an executable that reads one JSON request on
// stdin and writes one JSON response on stdout.
package plugin

import (
	"encoding/json"
	"slices"

	"github.com/ayusman/posturepilot/internal/posture"
	"github.com/ayusman/posturepilot/internal/sink"
)

// Plugin actions.
const (
	// ActionAlert delivers a posture alert.
	ActionAlert = "alert"
	// ActionIndicator delivers the current posture level.
	ActionIndicator = "indicator"
)

// Manifest describes a plugin's metadata and capabilities.
type Manifest struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	Executable  string `json:"executable"`
	// Actions lists the actions the plugin handles.
	Actions []string `json:"actions"`
	// Levels limits alerts to these severities. Empty accepts all.
	Levels       []posture.Level `json:"levels,omitempty"`
	ConfigSchema json.RawMessage `json:"configSchema,omitempty"`
}

// Request represents a request sent to a plugin for execution.
type Request struct {
	Action       string             `json:"action"`
	Notification *sink.Notification `json:"notification,omitempty"`
	Level        posture.Level      `json:"level,omitempty"`
	Config       json.RawMessage    `json:"config,omitempty"`
}

// Response represents the response from a plugin execution.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin represents a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}

// Handles reports whether the plugin declares action.
func (p *Plugin) Handles(action string) bool {
	return slices.Contains(p.Manifest.Actions, action)
}

// Accepts reports whether the plugin wants alerts of the given severity.
func (p *Plugin) Accepts(level posture.Level) bool {
	return len(p.Manifest.Levels) == 0 || slices.Contains(p.Manifest.Levels, level)
}
