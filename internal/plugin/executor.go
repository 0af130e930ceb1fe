package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// maxStderr bounds how much plugin stderr ends up in an error.
const maxStderr = 512

// Executor runs one plugin request at a time, bounded by a timeout.
type Executor struct {
	timeout time.Duration
}

// NewExecutor creates a new Executor that bounds each run by timeout.
func NewExecutor(timeout time.Duration) *Executor {
	return &Executor{
		timeout: timeout,
	}
}

// Execute writes req to the plugin's stdin as JSON and parses its stdout as
// a Response. The plugin runs in its own directory with POSTUREPILOT_ACTION
// and POSTUREPILOT_PLUGIN set. It is killed when ctx is done or the timeout
// passes.
func (e *Executor) Execute(ctx context.Context, plugin *Plugin, req *Request) (*Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, plugin.Executable)
	cmd.Dir = plugin.Path
	cmd.Env = append(os.Environ(),
		"POSTUREPILOT_ACTION="+req.Action,
		"POSTUREPILOT_PLUGIN="+plugin.Manifest.Name,
	)
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%s did not answer within %s: %w", plugin.Manifest.Name, e.timeout, ctx.Err())
	}
	if err != nil {
		if msg := tail(stderr.String()); msg != "" {
			return nil, fmt.Errorf("run %s: %w: %s", plugin.Manifest.Name, err, msg)
		}
		return nil, fmt.Errorf("run %s: %w", plugin.Manifest.Name, err)
	}

	var response Response
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &response); err != nil {
		return nil, fmt.Errorf("parse %s response: %w", plugin.Manifest.Name, err)
	}
	return &response, nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderr {
		s = "..." + s[len(s)-maxStderr:]
	}
	return s
}
