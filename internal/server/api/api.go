// Package api provides the HTTP handlers behind the PosturePilot dashboard.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ayusman/posturepilot/internal/app"
	"github.com/ayusman/posturepilot/internal/posture"
	"github.com/ayusman/posturepilot/internal/store"
)

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes data as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var initErr *app.InitializationError
	switch {
	case errors.Is(err, posture.ErrInvalidTransition),
		errors.Is(err, posture.ErrCalibrationIncomplete),
		errors.Is(err, app.ErrStartInProgress),
		errors.Is(err, app.ErrStartAborted):
		return http.StatusConflict
	case errors.As(err, &initErr):
		return http.StatusServiceUnavailable
	case errors.Is(err, app.ErrClosed):
		return http.StatusGone
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
