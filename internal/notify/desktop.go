// Package notify delivers posture alerts to the desktop, an MQTT broker and
// the log.
package notify

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/ayusman/posturepilot/internal/posture"
	"github.com/ayusman/posturepilot/internal/sink"
)

// ErrUnsupportedPlatform is returned by Desktop on systems without a known
// notification command.
var ErrUnsupportedPlatform = errors.New("desktop notifications not supported on this platform")

const defaultDesktopTimeout = 5 * time.Second

// Desktop shows alerts with the operating system's notification command:
// notify-send on Linux and osascript on macOS.
type Desktop struct {
	// AppName is shown as the notification source on Linux.
	AppName string
	// Timeout bounds a single notification command.
	Timeout time.Duration

	goos string
	run  func(ctx context.Context, name string, args ...string) error
}

var _ sink.Notifier = (*Desktop)(nil)

// NewDesktop creates a Desktop notifier for the current platform.
func NewDesktop(appName string) *Desktop {
	return &Desktop{
		AppName: appName,
		Timeout: defaultDesktopTimeout,
		goos:    runtime.GOOS,
		run:     runCommand,
	}
}

// Notify shows n as a desktop notification.
func (d *Desktop) Notify(ctx context.Context, n sink.Notification) error {
	name, args, err := d.command(n)
	if err != nil {
		return err
	}

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = defaultDesktopTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := d.run(ctx, name, args...); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (d *Desktop) command(n sink.Notification) (string, []string, error) {
	switch d.goos {
	case "linux":
		args := []string{"--urgency", urgency(n.Severity)}
		if d.AppName != "" {
			args = append(args, "--app-name", d.AppName)
		}
		args = append(args, n.Title, n.Body)
		return "notify-send", args, nil
	case "darwin":
		script := fmt.Sprintf("display notification %s with title %s", appleString(n.Body), appleString(n.Title))
		return "osascript", []string{"-e", script}, nil
	default:
		return "", nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, d.goos)
	}
}

func urgency(level posture.Level) string {
	if level == posture.LevelBad {
		return "critical"
	}
	return "normal"
}

// appleString quotes s as an AppleScript string literal.
func appleString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

func runCommand(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}
