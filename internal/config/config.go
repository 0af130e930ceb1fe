// Package config loads the PosturePilot configuration file stored at
// ~/.posturepilot/config.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ayusman/posturepilot/internal/app"
	"github.com/ayusman/posturepilot/internal/capture"
	"github.com/ayusman/posturepilot/internal/pose"
	"github.com/ayusman/posturepilot/internal/posture"
	"github.com/ayusman/posturepilot/internal/retry"
	"github.com/ayusman/posturepilot/internal/store"
)

// DefaultConfigDir is the directory under the user's home for app state.
const DefaultConfigDir = ".posturepilot"

// DefaultConfigFile is the config file name within the config directory.
const DefaultConfigFile = "config.yaml"

// Config represents the contents of ~/.posturepilot/config.yaml.
type Config struct {
	Camera      CameraConfig      `yaml:"camera"`
	Detector    DetectorConfig    `yaml:"detector"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Limits      posture.Limits    `yaml:"limits"`
	Monitor     MonitorConfig     `yaml:"monitor"`
	Init        InitConfig        `yaml:"init"`
	Store       StoreConfig       `yaml:"store"`
	Notify      NotifyConfig      `yaml:"notify"`
	Plugins     PluginsConfig     `yaml:"plugins"`
	Server      ServerConfig      `yaml:"server"`
}

// CameraConfig contains capture device settings.
type CameraConfig struct {
	Device int `yaml:"device"`
	FPS    int `yaml:"fps"`
	Width  int `yaml:"width"`
	Height int `yaml:"height"`

	// MaxReadFailures is how many failed reads in a row trigger a reopen.
	MaxReadFailures int `yaml:"max_read_failures"`
}

// DetectorConfig contains pose model settings.
type DetectorConfig struct {
	ModelComplexity        int     `yaml:"model_complexity"`
	SmoothLandmarks        bool    `yaml:"smooth_landmarks"`
	MinDetectionConfidence float64 `yaml:"min_detection_confidence"`
	MinTrackingConfidence  float64 `yaml:"min_tracking_confidence"`
	ScriptPath             string  `yaml:"script_path,omitempty"`
	PythonPath             string  `yaml:"python_path,omitempty"`
}

// CalibrationConfig sizes the calibration episode.
type CalibrationConfig struct {
	Frames    int `yaml:"frames"`
	MinFrames int `yaml:"min_frames"`
}

// MonitorConfig controls classification while monitoring.
type MonitorConfig struct {
	// Interval classifies one frame per interval; 0 classifies every frame.
	Interval       time.Duration `yaml:"interval"`
	SmoothingAlpha float64       `yaml:"smoothing_alpha"`
	MinVisibility  float64       `yaml:"min_visibility"`
	NotifyCooldown time.Duration `yaml:"notify_cooldown"`
}

// InitConfig bounds landmark source initialization.
type InitConfig struct {
	Attempts int           `yaml:"attempts"`
	Backoff  time.Duration `yaml:"backoff"`
	Timeout  time.Duration `yaml:"timeout"`
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	Path      string `yaml:"path"`
	Retention int    `yaml:"retention"`
}

// NotifyConfig selects alert channels.
type NotifyConfig struct {
	Desktop bool       `yaml:"desktop"`
	MQTT    MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig contains MQTT broker settings.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	QoS      byte   `yaml:"qos"`
}

// PluginsConfig locates alert plugins.
type PluginsConfig struct {
	Dir     string        `yaml:"dir"`
	Timeout time.Duration `yaml:"timeout"`
	// Settings holds per-plugin config objects keyed by plugin name.
	Settings map[string]map[string]any `yaml:"settings,omitempty"`
}

// ServerConfig configures the dashboard HTTP server.
type ServerConfig struct {
	Addr      string `yaml:"addr"`
	StaticDir string `yaml:"static_dir,omitempty"`
}

// Dir returns the path to the config directory.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}
	return filepath.Join(home, DefaultConfigDir), nil
}

// DefaultPath returns the full path to the config file.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFile), nil
}

// Default returns the configuration used when no file exists. Paths are
// relative to dir.
func Default(dir string) *Config {
	cam := capture.DefaultConfig()
	det := pose.DefaultConfig()
	policy := retry.DefaultPolicy()

	return &Config{
		Camera: CameraConfig{
			Device: cam.DeviceID,
			FPS:    cam.FPS,
			Width:  cam.Width,
			Height: cam.Height,

			MaxReadFailures: cam.MaxReadFailures,
		},
		Detector: DetectorConfig{
			ModelComplexity:        det.ModelComplexity,
			SmoothLandmarks:        det.SmoothLandmarks,
			MinDetectionConfidence: det.MinDetectionConf,
			MinTrackingConfidence:  det.MinTrackingConf,
		},
		Calibration: CalibrationConfig{
			Frames:    posture.DefaultCalibrationFrames,
			MinFrames: posture.DefaultMinFrames,
		},
		Limits: posture.DefaultLimits(),
		Monitor: MonitorConfig{
			NotifyCooldown: 30 * time.Second,
		},
		Init: InitConfig{
			Attempts: policy.Attempts,
			Backoff:  policy.Backoff,
			Timeout:  policy.Timeout,
		},
		Store: StoreConfig{
			Path:      filepath.Join(dir, "posturepilot.db"),
			Retention: store.DefaultRetention,
		},
		Notify: NotifyConfig{
			Desktop: true,
			MQTT: MQTTConfig{
				Broker:   "localhost:1883",
				Topic:    "posturepilot",
				ClientID: "posturepilot",
			},
		},
		Plugins: PluginsConfig{
			Dir:     filepath.Join(dir, "plugins"),
			Timeout: 5 * time.Second,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8080",
		},
	}
}

// Load reads the config at path. Fields missing from the file keep their
// defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default(filepath.Dir(path))

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Save writes cfg to path, creating the directory if needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config %s: %w", path, err)
	}
	return nil
}

// Validate checks value ranges and returns every problem found.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Camera.FPS > 0 && c.Camera.FPS <= 60, "camera.fps must be in 1..60, got %d", c.Camera.FPS)
	check(c.Camera.Width >= 0 && c.Camera.Height >= 0, "camera size must not be negative")
	check(c.Camera.MaxReadFailures >= 0, "camera.max_read_failures must not be negative")
	check(c.Detector.ModelComplexity >= 0 && c.Detector.ModelComplexity <= 2,
		"detector.model_complexity must be 0, 1 or 2, got %d", c.Detector.ModelComplexity)
	check(inUnit(c.Detector.MinDetectionConfidence), "detector.min_detection_confidence must be in [0,1]")
	check(inUnit(c.Detector.MinTrackingConfidence), "detector.min_tracking_confidence must be in [0,1]")
	check(c.Calibration.Frames > 0, "calibration.frames must be positive, got %d", c.Calibration.Frames)
	check(c.Calibration.MinFrames > 0 && c.Calibration.MinFrames <= c.Calibration.Frames,
		"calibration.min_frames must be in 1..%d, got %d", c.Calibration.Frames, c.Calibration.MinFrames)
	check(c.Limits.HeadForward > 0 && c.Limits.NeckTilt > 0 && c.Limits.ShoulderSlope > 0,
		"limits must be positive")
	check(c.Limits.Escalation >= 1, "limits.escalation must be at least 1, got %g", c.Limits.Escalation)
	check(c.Monitor.Interval >= 0, "monitor.interval must not be negative")
	check(inUnit(c.Monitor.SmoothingAlpha), "monitor.smoothing_alpha must be in [0,1]")
	check(inUnit(c.Monitor.MinVisibility), "monitor.min_visibility must be in [0,1]")
	check(c.Monitor.NotifyCooldown >= 0, "monitor.notify_cooldown must not be negative")
	check(c.Init.Attempts > 0, "init.attempts must be positive, got %d", c.Init.Attempts)
	check(c.Init.Backoff >= 0 && c.Init.Timeout >= 0, "init durations must not be negative")
	check(c.Store.Path != "", "store.path is required")
	check(c.Store.Retention >= 0, "store.retention must not be negative")
	check(!c.Notify.MQTT.Enabled || c.Notify.MQTT.Broker != "", "notify.mqtt.broker is required when mqtt is enabled")
	check(c.Notify.MQTT.QoS <= 2, "notify.mqtt.qos must be 0, 1 or 2")
	check(c.Plugins.Timeout >= 0, "plugins.timeout must not be negative")

	return errors.Join(errs...)
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}

// AppConfig returns the controller settings.
func (c *Config) AppConfig() app.Config {
	cfg := app.DefaultConfig()
	cfg.CalibrationFrames = c.Calibration.Frames
	cfg.MinCalibrationFrames = c.Calibration.MinFrames
	cfg.Limits = c.Limits
	cfg.MonitorInterval = c.Monitor.Interval
	cfg.SmoothingAlpha = c.Monitor.SmoothingAlpha
	cfg.MinVisibility = c.Monitor.MinVisibility
	cfg.NotifyCooldown = c.Monitor.NotifyCooldown
	cfg.Init.Attempts = c.Init.Attempts
	cfg.Init.Backoff = c.Init.Backoff
	cfg.Init.Timeout = c.Init.Timeout
	return cfg
}

// CaptureConfig returns the camera settings.
func (c *Config) CaptureConfig() capture.Config {
	return capture.Config{
		DeviceID: c.Camera.Device,
		FPS:      c.Camera.FPS,
		Width:    c.Camera.Width,
		Height:   c.Camera.Height,

		MaxReadFailures: c.Camera.MaxReadFailures,
	}
}

// PoseConfig returns the pose detector settings.
func (c *Config) PoseConfig() pose.Config {
	return pose.Config{
		ModelComplexity:  c.Detector.ModelComplexity,
		SmoothLandmarks:  c.Detector.SmoothLandmarks,
		MinDetectionConf: c.Detector.MinDetectionConfidence,
		MinTrackingConf:  c.Detector.MinTrackingConfidence,
		ScriptPath:       c.Detector.ScriptPath,
		PythonPath:       c.Detector.PythonPath,
	}
}
