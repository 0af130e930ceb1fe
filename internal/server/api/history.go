package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ayusman/posturepilot/internal/posture"
	"github.com/ayusman/posturepilot/internal/store"
)

// Default and maximum page sizes for log listings.
const (
	DefaultLogLimit = 100
	MaxLogLimit     = 1000
)

// HistoryHandler serves stored baselines, posture logs and settings.
type HistoryHandler struct {
	store *store.Store
}

// NewHistoryHandler creates a HistoryHandler backed by s.
func NewHistoryHandler(s *store.Store) *HistoryHandler {
	return &HistoryHandler{store: s}
}

// Routes registers the history endpoints on r.
func (h *HistoryHandler) Routes(r chi.Router) {
	r.Get("/baseline", h.baseline)
	r.Route("/logs", func(r chi.Router) {
		r.Get("/", h.logs)
		r.Get("/summary", h.summary)
		r.Delete("/", h.clearLogs)
	})
	r.Route("/settings", func(r chi.Router) {
		r.Get("/", h.settings)
		r.Get("/{key}", h.setting)
		r.Put("/{key}", h.putSetting)
		r.Delete("/{key}", h.deleteSetting)
	})
}

type baselineResponse struct {
	Latest  *store.Baseline  `json:"latest"`
	History []store.Baseline `json:"history"`
}

// baseline handles GET /api/baseline.
func (h *HistoryHandler) baseline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	history, err := h.store.Baselines().List(ctx, 20)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list baselines")
		return
	}

	if history == nil {
		history = []store.Baseline{}
	}
	resp := baselineResponse{History: history}
	if len(history) > 0 {
		resp.Latest = &history[0]
	}
	writeJSON(w, http.StatusOK, resp)
}

type logsResponse struct {
	Logs  []store.LogEntry `json:"logs"`
	Total int              `json:"total"`
}

// logs handles GET /api/logs?limit=&status=&session=.
func (h *HistoryHandler) logs(w http.ResponseWriter, r *http.Request) {
	f, err := parseLogFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	entries, err := h.store.Logs().List(ctx, f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list posture logs")
		return
	}
	total, err := h.store.Logs().Count(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count posture logs")
		return
	}

	writeJSON(w, http.StatusOK, logsResponse{Logs: entries, Total: total})
}

type summaryResponse struct {
	store.LogSummary
	Total int `json:"total"`
}

// summary handles GET /api/logs/summary?session=.
func (h *HistoryHandler) summary(w http.ResponseWriter, r *http.Request) {
	session, err := parseSession(r.URL.Query().Get("session"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s, err := h.store.Logs().Summary(r.Context(), session)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to summarize posture logs")
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{LogSummary: s, Total: s.Total()})
}

// clearLogs handles DELETE /api/logs.
func (h *HistoryHandler) clearLogs(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Logs().DeleteAll(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete posture logs")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseLogFilter(r *http.Request) (store.LogFilter, error) {
	q := r.URL.Query()
	f := store.LogFilter{Limit: DefaultLogLimit}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return f, errors.New("limit must be a positive integer")
		}
		f.Limit = min(n, MaxLogLimit)
	}

	if v := q.Get("status"); v != "" {
		switch level := posture.Level(v); level {
		case posture.LevelGood, posture.LevelWarning, posture.LevelBad:
			f.Status = level
		default:
			return f, errors.New("status must be good, warning or bad")
		}
	}

	session, err := parseSession(q.Get("session"))
	if err != nil {
		return f, err
	}
	f.SessionID = session
	return f, nil
}

func parseSession(v string) (uuid.UUID, error) {
	if v == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return uuid.Nil, errors.New("session must be a UUID")
	}
	return id, nil
}

// settings handles GET /api/settings.
func (h *HistoryHandler) settings(w http.ResponseWriter, r *http.Request) {
	all, err := h.store.Settings().All(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, all)
}

type settingBody struct {
	Value string `json:"value"`
}

// setting handles GET /api/settings/{key}.
func (h *HistoryHandler) setting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	value, err := h.store.Settings().Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Setting not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load setting")
		return
	}
	writeJSON(w, http.StatusOK, settingBody{Value: value})
}

// putSetting handles PUT /api/settings/{key}.
func (h *HistoryHandler) putSetting(w http.ResponseWriter, r *http.Request) {
	var body settingBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	key := chi.URLParam(r, "key")
	if err := h.store.Settings().Set(r.Context(), key, body.Value); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save setting")
		return
	}
	writeJSON(w, http.StatusOK, body)
}

// deleteSetting handles DELETE /api/settings/{key}.
func (h *HistoryHandler) deleteSetting(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Settings().Delete(r.Context(), chi.URLParam(r, "key")); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete setting")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
