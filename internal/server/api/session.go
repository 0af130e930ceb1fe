package api

import (
	"context"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ayusman/posturepilot/internal/app"
	"github.com/ayusman/posturepilot/internal/posture"
)

// Controller is the part of app.Controller the session endpoints drive.
type Controller interface {
	Snapshot() app.Snapshot
	Limits() posture.Limits
	Start(ctx context.Context) error
	Pause() error
	Resume() error
	Recalibrate() error
	FinishCalibration() error
}

// SessionHandler exposes the monitoring session.
type SessionHandler struct {
	ctrl Controller
}

// NewSessionHandler creates a SessionHandler for ctrl.
func NewSessionHandler(ctrl Controller) *SessionHandler {
	return &SessionHandler{ctrl: ctrl}
}

// Routes registers the session endpoints on r.
func (h *SessionHandler) Routes(r chi.Router) {
	r.Route("/session", func(r chi.Router) {
		r.Get("/", h.get)
		r.Post("/start", h.start)
		r.Post("/pause", h.command("pause", h.ctrl.Pause))
		r.Post("/resume", h.command("resume", h.ctrl.Resume))
		r.Post("/finish-calibration", h.command("finish calibration", h.ctrl.FinishCalibration))
		r.Post("/recalibrate", h.recalibrate)
	})
	r.Get("/limits", h.limits)
}

type sessionResponse struct {
	app.Snapshot
	Limits posture.Limits `json:"limits"`
}

func (h *SessionHandler) snapshot() sessionResponse {
	return sessionResponse{Snapshot: h.ctrl.Snapshot(), Limits: h.ctrl.Limits()}
}

// get handles GET /api/session.
func (h *SessionHandler) get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.snapshot())
}

// limits handles GET /api/limits.
func (h *SessionHandler) limits(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ctrl.Limits())
}

// start handles POST /api/session/start. It blocks until the landmark
// source is initialized or initialization gives up.
func (h *SessionHandler) start(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Start(r.Context()); err != nil {
		log.Printf("Start from dashboard failed: %v", err)
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.snapshot())
}

// recalibrate handles POST /api/session/recalibrate: the session is reset
// and a new calibration episode is started.
func (h *SessionHandler) recalibrate(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Recalibrate(); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	h.start(w, r)
}

func (h *SessionHandler) command(name string, fn func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(); err != nil {
			log.Printf("Dashboard %s failed: %v", name, err)
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, h.snapshot())
	}
}
