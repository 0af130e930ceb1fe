// Package main provides a voice alert plugin. It reads posture alerts aloud
// with say on macOS and spd-say or espeak on Linux.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
)

// Notification is the alert forwarded by PosturePilot.
type Notification struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	Severity string `json:"severity"`
}

// Request represents the input from the plugin executor.
type Request struct {
	Action       string          `json:"action"`
	Notification *Notification   `json:"notification,omitempty"`
	Level        string          `json:"level,omitempty"`
	Config       json.RawMessage `json:"config,omitempty"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Config is the optional per-plugin configuration.
type Config struct {
	Voice string `json:"voice"`
	// Rate is words per minute.
	Rate int `json:"rate"`
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	if req.Action != "alert" {
		writeErrorResponse(fmt.Sprintf("unknown action: %s", req.Action))
		return
	}
	if req.Notification == nil || req.Notification.Body == "" {
		writeErrorResponse("alert has no message")
		return
	}

	var cfg Config
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			writeErrorResponse(fmt.Sprintf("invalid config: %v", err))
			return
		}
	}

	if err := speak(req.Notification.Body, cfg); err != nil {
		writeErrorResponse(fmt.Sprintf("speak failed: %v", err))
		return
	}

	writeSuccessResponse()
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	json.NewEncoder(os.Stdout).Encode(Response{
		Success: false,
		Error:   errMsg,
	})
}

// writeSuccessResponse writes a success response to stdout.
func writeSuccessResponse() {
	json.NewEncoder(os.Stdout).Encode(Response{
		Success: true,
	})
}

func speak(text string, cfg Config) error {
	name, args, err := speechCommand(text, cfg)
	if err != nil {
		return err
	}
	output, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}

func speechCommand(text string, cfg Config) (string, []string, error) {
	switch runtime.GOOS {
	case "darwin":
		var args []string
		if cfg.Voice != "" {
			args = append(args, "-v", cfg.Voice)
		}
		if cfg.Rate > 0 {
			args = append(args, "-r", strconv.Itoa(cfg.Rate))
		}
		return "say", append(args, text), nil
	case "linux":
		if path, err := exec.LookPath("spd-say"); err == nil {
			args := []string{"--wait"}
			if cfg.Voice != "" {
				args = append(args, "-y", cfg.Voice)
			}
			return path, append(args, text), nil
		}
		if path, err := exec.LookPath("espeak"); err == nil {
			var args []string
			if cfg.Rate > 0 {
				args = append(args, "-s", strconv.Itoa(cfg.Rate))
			}
			return path, append(args, text), nil
		}
		return "", nil, errors.New("neither spd-say nor espeak is installed")
	default:
		return "", nil, fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
}
