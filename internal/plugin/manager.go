package plugin

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ayusman/posturepilot/internal/posture"
)

// ManifestFile is the manifest name looked up in each plugin directory.
const ManifestFile = "plugin.json"

// ErrPluginNotFound is returned when a requested plugin cannot be found.
var ErrPluginNotFound = errors.New("plugin not found")

// Manager discovers alert plugins below a directory.
type Manager struct {
	pluginDir string

	mu      sync.RWMutex
	plugins map[string]*Plugin
	skipped map[string]error
}

// NewManager creates a Manager rooted at pluginDir.
func NewManager(pluginDir string) *Manager {
	return &Manager{
		pluginDir: pluginDir,
		plugins:   make(map[string]*Plugin),
		skipped:   make(map[string]error),
	}
}

// Discover rescans the plugin directory. A missing directory means no
// plugins. Directories with a broken manifest are skipped and logged; see
// Skipped.
func (m *Manager) Discover() error {
	plugins := make(map[string]*Plugin)
	skipped := make(map[string]error)

	entries, err := os.ReadDir(m.pluginDir)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read plugin dir: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(m.pluginDir, entry.Name())
		p, err := load(dir)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			log.Printf("Skipping plugin %s: %v", entry.Name(), err)
			skipped[entry.Name()] = err
			continue
		}
		if prev, dup := plugins[p.Manifest.Name]; dup {
			err := fmt.Errorf("name %q already used by %s", p.Manifest.Name, filepath.Base(prev.Path))
			log.Printf("Skipping plugin %s: %v", entry.Name(), err)
			skipped[entry.Name()] = err
			continue
		}
		plugins[p.Manifest.Name] = p
	}

	m.mu.Lock()
	m.plugins = plugins
	m.skipped = skipped
	m.mu.Unlock()
	return nil
}

func load(dir string) (*Plugin, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, err
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	if err := manifest.validate(); err != nil {
		return nil, err
	}

	return &Plugin{
		Manifest:   manifest,
		Path:       dir,
		Executable: filepath.Join(dir, manifest.Executable),
	}, nil
}

func (m Manifest) validate() error {
	if m.Name == "" || m.Executable == "" {
		return errors.New("manifest needs name and executable")
	}
	if len(m.Actions) == 0 {
		return errors.New("manifest declares no actions")
	}
	for _, a := range m.Actions {
		if a != ActionAlert && a != ActionIndicator {
			return fmt.Errorf("unknown action %q", a)
		}
	}
	for _, l := range m.Levels {
		switch l {
		case posture.LevelGood, posture.LevelWarning, posture.LevelBad:
		default:
			return fmt.Errorf("unknown level %q", l)
		}
	}
	return nil
}

// Get returns a plugin by name.
func (m *Manager) Get(name string) (*Plugin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	plugin, ok := m.plugins[name]
	if !ok {
		return nil, ErrPluginNotFound
	}
	return plugin, nil
}

// List returns all discovered plugins sorted by name.
func (m *Manager) List() []*Plugin {
	return m.ForAction("")
}

// ForAction returns the plugins declaring action sorted by name. An empty
// action matches every plugin.
func (m *Manager) ForAction(action string) []*Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()

	plugins := make([]*Plugin, 0, len(m.plugins))
	for _, p := range m.plugins {
		if action == "" || p.Handles(action) {
			plugins = append(plugins, p)
		}
	}
	sort.Slice(plugins, func(i, j int) bool {
		return plugins[i].Manifest.Name < plugins[j].Manifest.Name
	})
	return plugins
}

// Skipped returns the directories ignored by the last Discover and why.
func (m *Manager) Skipped() map[string]error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]error, len(m.skipped))
	for k, v := range m.skipped {
		out[k] = v
	}
	return out
}

// PluginDir returns the plugin directory path.
func (m *Manager) PluginDir() string {
	return m.pluginDir
}
