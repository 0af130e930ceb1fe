package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ayusman/posturepilot/internal/posture"
	"github.com/ayusman/posturepilot/internal/sink"
	"github.com/ayusman/posturepilot/internal/store"
)

// newTestStore creates a new Store with a temporary database for testing.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func newHistoryRouter(s *store.Store) http.Handler {
	r := chi.NewRouter()
	NewHistoryHandler(s).Routes(r)
	return r
}

func seedLogs(t *testing.T, s *store.Store, session uuid.UUID, levels ...posture.Level) {
	t.Helper()
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, level := range levels {
		rec := sink.LogRecord{
			ID:        uuid.New(),
			SessionID: session,
			Timestamp: start.Add(time.Duration(i) * time.Second),
			Status:    level,
			Message:   string(level),
		}
		if err := s.AppendPostureLog(context.Background(), rec); err != nil {
			t.Fatalf("failed to append log: %v", err)
		}
	}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHistoryHandler_Logs(t *testing.T) {
	s := newTestStore(t)
	r := newHistoryRouter(s)

	session := uuid.New()
	other := uuid.New()
	seedLogs(t, s, session, posture.LevelGood, posture.LevelBad, posture.LevelWarning, posture.LevelBad)
	seedLogs(t, s, other, posture.LevelGood)

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"all", "", 5},
		{"limit", "?limit=2", 2},
		{"status", "?status=bad", 2},
		{"session", "?session=" + session.String(), 4},
		{"session and status", "?session=" + other.String() + "&status=bad", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, r, "/logs"+tt.query)
			if rec.Code != http.StatusOK {
				t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
			}

			var resp struct {
				Logs  []store.LogEntry `json:"logs"`
				Total int              `json:"total"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if len(resp.Logs) != tt.want {
				t.Errorf("got %d logs, want %d", len(resp.Logs), tt.want)
			}
			if resp.Total != 5 {
				t.Errorf("total = %d, want 5", resp.Total)
			}
		})
	}

	t.Run("newest first", func(t *testing.T) {
		rec := get(t, r, "/logs?session="+session.String()+"&limit=1")
		var resp struct {
			Logs []store.LogEntry `json:"logs"`
		}
		json.NewDecoder(rec.Body).Decode(&resp)
		if len(resp.Logs) != 1 || resp.Logs[0].Status != posture.LevelBad {
			t.Errorf("newest = %+v, want the last bad entry", resp.Logs)
		}
	})
}

func TestHistoryHandler_LogsBadQuery(t *testing.T) {
	r := newHistoryRouter(newTestStore(t))

	for _, query := range []string{"?limit=0", "?limit=abc", "?status=terrible", "?session=nope"} {
		rec := get(t, r, "/logs"+query)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status %d, got %d", query, http.StatusBadRequest, rec.Code)
		}
	}
}

func TestHistoryHandler_Summary(t *testing.T) {
	s := newTestStore(t)
	r := newHistoryRouter(s)

	session := uuid.New()
	seedLogs(t, s, session, posture.LevelGood, posture.LevelGood, posture.LevelWarning, posture.LevelBad)
	seedLogs(t, s, uuid.New(), posture.LevelBad)

	rec := get(t, r, "/logs/summary?session="+session.String())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var resp struct {
		Good, Warning, Bad, Total int
	}
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Good != 2 || resp.Warning != 1 || resp.Bad != 1 || resp.Total != 4 {
		t.Errorf("summary = %+v", resp)
	}
}

func TestHistoryHandler_ClearLogs(t *testing.T) {
	s := newTestStore(t)
	r := newHistoryRouter(s)
	seedLogs(t, s, uuid.New(), posture.LevelBad)

	req := httptest.NewRequest(http.MethodDelete, "/logs", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}
	if n, _ := s.Logs().Count(context.Background()); n != 0 {
		t.Errorf("count = %d after delete, want 0", n)
	}
}

func TestHistoryHandler_Baseline(t *testing.T) {
	s := newTestStore(t)
	r := newHistoryRouter(s)

	t.Run("empty", func(t *testing.T) {
		rec := get(t, r, "/baseline")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		var resp map[string]json.RawMessage
		json.NewDecoder(rec.Body).Decode(&resp)
		if string(resp["latest"]) != "null" || string(resp["history"]) != "[]" {
			t.Errorf("response = latest %s history %s", resp["latest"], resp["history"])
		}
	})

	t.Run("latest first", func(t *testing.T) {
		ctx := context.Background()
		s.SaveBaseline(ctx, posture.Baseline{ScaleFactor: 0.2, Samples: 60})
		s.SaveBaseline(ctx, posture.Baseline{ScaleFactor: 0.25, Samples: 60})

		rec := get(t, r, "/baseline")
		var resp struct {
			Latest  *store.Baseline  `json:"latest"`
			History []store.Baseline `json:"history"`
		}
		json.NewDecoder(rec.Body).Decode(&resp)

		if resp.Latest == nil || resp.Latest.ScaleFactor != 0.25 {
			t.Fatalf("latest = %+v, want scale 0.25", resp.Latest)
		}
		if len(resp.History) != 2 {
			t.Errorf("history has %d baselines, want 2", len(resp.History))
		}
	})
}

func TestHistoryHandler_Settings(t *testing.T) {
	r := newHistoryRouter(newTestStore(t))

	if rec := get(t, r, "/settings/theme"); rec.Code != http.StatusNotFound {
		t.Errorf("missing key: expected status %d, got %d", http.StatusNotFound, rec.Code)
	}

	req := httptest.NewRequest(http.MethodPut, "/settings/theme", bytes.NewBufferString(`{"value":"dark"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT: expected status %d, got %d", http.StatusOK, rec.Code)
	}

	rec = get(t, r, "/settings/theme")
	var body settingBody
	json.NewDecoder(rec.Body).Decode(&body)
	if body.Value != "dark" {
		t.Errorf("value = %q, want dark", body.Value)
	}

	rec = get(t, r, "/settings")
	var all map[string]string
	json.NewDecoder(rec.Body).Decode(&all)
	if all["theme"] != "dark" {
		t.Errorf("settings = %v", all)
	}

	req = httptest.NewRequest(http.MethodPut, "/settings/theme", bytes.NewBufferString(`not json`))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad body: expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/settings/theme", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("DELETE: expected status %d, got %d", http.StatusNoContent, rec.Code)
	}
	if rec := get(t, r, "/settings/theme"); rec.Code != http.StatusNotFound {
		t.Errorf("after delete: expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}
