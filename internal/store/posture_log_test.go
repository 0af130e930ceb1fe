package store

import (
	"context"
	"testing"
	"time"

	"github.com/ayusman/posturepilot/internal/posture"
	"github.com/ayusman/posturepilot/internal/sink"
	"github.com/google/uuid"
)

func logRecord(session uuid.UUID, at time.Time, level posture.Level) sink.LogRecord {
	return sink.LogRecord{
		ID:        uuid.New(),
		SessionID: session,
		Timestamp: at,
		Status:    level,
		Message:   "Forward Head",
		Measurements: posture.Features{
			ShoulderSlope:    0.01,
			NeckTilt:         -0.02,
			HeadForward:      posture.HeadForward{Forward: 0.07, Vertical: -0.2, NoseAngle: -80},
			ShoulderDistance: 0.2,
			Timestamp:        at,
		},
	}
}

func TestLogRepository_AppendAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session := uuid.New()
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	levels := []posture.Level{posture.LevelGood, posture.LevelWarning, posture.LevelBad}
	for i, level := range levels {
		if err := s.AppendPostureLog(ctx, logRecord(session, start.Add(time.Duration(i)*time.Second), level)); err != nil {
			t.Fatalf("AppendPostureLog() error = %v", err)
		}
	}

	entries, err := s.Logs().List(ctx, LogFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}

	newest := entries[0]
	if newest.Status != posture.LevelBad {
		t.Errorf("newest status = %s, want bad", newest.Status)
	}
	if newest.SessionID != session {
		t.Errorf("SessionID = %s, want %s", newest.SessionID, session)
	}
	if !newest.Timestamp.Equal(start.Add(2 * time.Second)) {
		t.Errorf("Timestamp = %v", newest.Timestamp)
	}
	if newest.Measurements.HeadForward.Forward != 0.07 || newest.Measurements.ShoulderDistance != 0.2 {
		t.Errorf("measurements = %+v", newest.Measurements)
	}
}

func TestLogRepository_Filter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, b := uuid.New(), uuid.New()
	now := time.Now()
	records := []sink.LogRecord{
		logRecord(a, now, posture.LevelGood),
		logRecord(a, now, posture.LevelBad),
		logRecord(b, now, posture.LevelBad),
		logRecord(b, now, posture.LevelWarning),
		logRecord(b, now, posture.LevelBad),
	}
	for _, rec := range records {
		if err := s.AppendPostureLog(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name   string
		filter LogFilter
		want   int
	}{
		{"all", LogFilter{}, 5},
		{"limit", LogFilter{Limit: 2}, 2},
		{"session", LogFilter{SessionID: a}, 2},
		{"status", LogFilter{Status: posture.LevelBad}, 3},
		{"session and status", LogFilter{SessionID: b, Status: posture.LevelBad}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := s.Logs().List(ctx, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if len(entries) != tt.want {
				t.Errorf("got %d entries, want %d", len(entries), tt.want)
			}
		})
	}

	summary, err := s.Logs().Summary(ctx, b)
	if err != nil {
		t.Fatal(err)
	}
	if summary != (LogSummary{Warning: 1, Bad: 2}) || summary.Total() != 3 {
		t.Errorf("Summary() = %+v", summary)
	}
}

func TestLogRepository_Retention(t *testing.T) {
	s := newTestStore(t)
	s.SetRetention(5)
	ctx := context.Background()

	session := uuid.New()
	start := time.Now()
	var last uuid.UUID
	for i := 0; i < 12; i++ {
		rec := logRecord(session, start.Add(time.Duration(i)*time.Second), posture.LevelWarning)
		last = rec.ID
		if err := s.AppendPostureLog(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.Logs().Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Errorf("Count() = %d, want 5", n)
	}

	entries, err := s.Logs().List(ctx, LogFilter{Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if entries[0].ID != last {
		t.Error("retention must keep the newest entries")
	}
}

func TestLogRepository_RejectsUnknownStatus(t *testing.T) {
	s := newTestStore(t)

	rec := logRecord(uuid.New(), time.Now(), posture.LevelUnknown)
	if err := s.AppendPostureLog(context.Background(), rec); err == nil {
		t.Error("expected a constraint error for an unknown status")
	}
}

func TestLogRepository_DeleteAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.AppendPostureLog(ctx, logRecord(uuid.New(), time.Now(), posture.LevelGood))
	if err := s.Logs().DeleteAll(ctx); err != nil {
		t.Fatal(err)
	}
	if n, _ := s.Logs().Count(ctx); n != 0 {
		t.Errorf("Count() = %d after DeleteAll", n)
	}
}
