package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/ayusman/posturepilot/internal/posture"
	"github.com/ayusman/posturepilot/internal/sink"
)

// scriptPlugin writes a shell script plugin into a temp dir.
func scriptPlugin(t *testing.T, name, script string, actions ...string) *Plugin {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, name+".sh")
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}

	return &Plugin{
		Manifest: Manifest{
			Name:       name,
			Version:    "1.0.0",
			Executable: name + ".sh",
			Actions:    actions,
		},
		Path:       dir,
		Executable: path,
	}
}

func TestExecutor_Execute(t *testing.T) {
	plugin := scriptPlugin(t, "test-plugin", `#!/bin/sh
cat <<'EOF'
{"success":true,"data":{"message":"hello world"}}
EOF
`, ActionAlert)

	executor := NewExecutor(5 * time.Second)
	response, err := executor.Execute(context.Background(), plugin, &Request{Action: ActionAlert})
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	if !response.Success {
		t.Errorf("expected success=true, got false")
	}
	if response.Error != "" {
		t.Errorf("expected empty error, got %q", response.Error)
	}

	var data map[string]interface{}
	if err := json.Unmarshal(response.Data, &data); err != nil {
		t.Fatalf("failed to unmarshal response data: %v", err)
	}
	if data["message"] != "hello world" {
		t.Errorf("expected message 'hello world', got %v", data["message"])
	}
}

func TestExecutor_Execute_ReadsStdin(t *testing.T) {
	plugin := scriptPlugin(t, "echo-plugin", `#!/bin/sh
INPUT=$(cat)
echo "{\"success\":true,\"data\":{\"received\":$INPUT}}"
`, ActionAlert)

	request := &Request{
		Action: ActionAlert,
		Notification: &sink.Notification{
			Title:    "PosturePilot Alert",
			Body:     "Head Tilt. Please adjust your posture.",
			Severity: posture.LevelWarning,
		},
		Config: json.RawMessage(`{"voice":"Samantha"}`),
	}

	executor := NewExecutor(5 * time.Second)
	response, err := executor.Execute(context.Background(), plugin, request)
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	var data struct {
		Received Request `json:"received"`
	}
	if err := json.Unmarshal(response.Data, &data); err != nil {
		t.Fatalf("failed to unmarshal response data: %v", err)
	}

	got := data.Received
	if got.Action != ActionAlert {
		t.Errorf("expected action 'alert', got %q", got.Action)
	}
	if got.Notification == nil || got.Notification.Severity != posture.LevelWarning {
		t.Errorf("notification = %+v, want warning", got.Notification)
	}
	if string(got.Config) != `{"voice":"Samantha"}` {
		t.Errorf("config = %s", got.Config)
	}
}

func TestExecutor_Timeout(t *testing.T) {
	plugin := scriptPlugin(t, "slow-plugin", `#!/bin/sh
sleep 10
echo '{"success":true}'
`, ActionAlert)

	executor := NewExecutor(100 * time.Millisecond)
	_, err := executor.Execute(context.Background(), plugin, &Request{Action: ActionAlert})

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected timeout error, got: %v", err)
	}
}

func TestExecutor_Execute_ErrorResponse(t *testing.T) {
	plugin := scriptPlugin(t, "error-plugin", `#!/bin/sh
echo '{"success":false,"error":"something went wrong"}'
`, ActionAlert)

	executor := NewExecutor(5 * time.Second)
	response, err := executor.Execute(context.Background(), plugin, &Request{Action: ActionAlert})
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	if response.Success {
		t.Errorf("expected success=false, got true")
	}
	if response.Error != "something went wrong" {
		t.Errorf("expected error 'something went wrong', got %q", response.Error)
	}
}

func TestExecutor_Execute_Failures(t *testing.T) {
	tests := []struct {
		name   string
		script string
	}{
		{"invalid json", `#!/bin/sh
echo 'not valid json'
`},
		{"non-zero exit", `#!/bin/sh
echo "Error: something failed" >&2
exit 1
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plugin := scriptPlugin(t, "bad-plugin", tt.script, ActionAlert)

			executor := NewExecutor(5 * time.Second)
			if _, err := executor.Execute(context.Background(), plugin, &Request{Action: ActionAlert}); err == nil {
				t.Fatal("expected an error, got nil")
			}
		})
	}
}

func TestNewExecutor(t *testing.T) {
	executor := NewExecutor(3 * time.Second)
	if executor == nil {
		t.Fatal("NewExecutor() returned nil")
	}
	if executor.timeout != 3*time.Second {
		t.Errorf("expected timeout=3s, got %s", executor.timeout)
	}
}

func TestExecutor_Environment(t *testing.T) {
	plugin := scriptPlugin(t, "env-plugin", `#!/bin/sh
cat > /dev/null
echo "{\"success\":true,\"data\":{\"action\":\"$POSTUREPILOT_ACTION\",\"plugin\":\"$POSTUREPILOT_PLUGIN\",\"dir\":\"$(pwd)\"}}"
`, ActionIndicator)

	executor := NewExecutor(5 * time.Second)
	response, err := executor.Execute(context.Background(), plugin, &Request{Action: ActionIndicator, Level: posture.LevelBad})
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	var data struct {
		Action string `json:"action"`
		Plugin string `json:"plugin"`
		Dir    string `json:"dir"`
	}
	if err := json.Unmarshal(response.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Action != ActionIndicator || data.Plugin != "env-plugin" {
		t.Errorf("environment = %+v", data)
	}
	want, _ := filepath.EvalSymlinks(plugin.Path)
	got, _ := filepath.EvalSymlinks(data.Dir)
	if got != want {
		t.Errorf("working dir = %q, want %q", data.Dir, plugin.Path)
	}
}

func TestExecutor_StderrInError(t *testing.T) {
	plugin := scriptPlugin(t, "loud-plugin", `#!/bin/sh
echo "speaker unplugged" >&2
exit 3
`, ActionAlert)

	_, err := NewExecutor(5*time.Second).Execute(context.Background(), plugin, &Request{Action: ActionAlert})
	if err == nil || !strings.Contains(err.Error(), "speaker unplugged") {
		t.Errorf("error = %v, want stderr included", err)
	}
}
