package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ayusman/posturepilot/internal/posture"
	"github.com/ayusman/posturepilot/internal/sink"
	"github.com/google/uuid"
)

// LogEntry is a stored posture log record.
type LogEntry struct {
	Seq int64 `json:"seq"`
	sink.LogRecord
}

// LogFilter narrows a log listing.
type LogFilter struct {
	// SessionID limits entries to one session when not uuid.Nil.
	SessionID uuid.UUID
	// Status limits entries to one level when set.
	Status posture.Level
	// Limit caps the number of entries returned.
	Limit int
}

// LogSummary counts log entries by level.
type LogSummary struct {
	Good    int `json:"good"`
	Warning int `json:"warning"`
	Bad     int `json:"bad"`
}

// Total returns the number of counted entries.
func (s LogSummary) Total() int {
	return s.Good + s.Warning + s.Bad
}

// LogRepository provides access to the posture log.
type LogRepository struct {
	db *sql.DB
}

// Logs returns the posture log repository for this store.
func (s *Store) Logs() *LogRepository {
	return &LogRepository{db: s.db}
}

// Append inserts rec and, when retention is positive, deletes all but the
// newest retention entries in the same transaction.
func (r *LogRepository) Append(ctx context.Context, rec sink.LogRecord, retention int) error {
	measurements, err := json.Marshal(rec.Measurements)
	if err != nil {
		return fmt.Errorf("marshal measurements: %w", err)
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO posture_logs (id, session_id, timestamp, status, message, measurements)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.SessionID.String(), rec.Timestamp.UTC(),
		string(rec.Status), rec.Message, string(measurements),
	)
	if err != nil {
		return err
	}

	if retention > 0 {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM posture_logs WHERE seq <= (
				SELECT seq FROM posture_logs ORDER BY seq DESC LIMIT 1 OFFSET ?
			)`,
			retention,
		)
		if err != nil {
			return fmt.Errorf("trim posture log: %w", err)
		}
	}

	return tx.Commit()
}

// List returns entries matching f, newest first.
func (r *LogRepository) List(ctx context.Context, f LogFilter) ([]LogEntry, error) {
	query := `SELECT seq, id, session_id, timestamp, status, message, measurements
		 FROM posture_logs WHERE 1 = 1`
	var args []any

	if f.SessionID != uuid.Nil {
		query += ` AND session_id = ?`
		args = append(args, f.SessionID.String())
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	query += ` ORDER BY seq DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []LogEntry{}
	for rows.Next() {
		var (
			e            LogEntry
			id, session  string
			status       string
			measurements string
		)
		if err := rows.Scan(&e.Seq, &id, &session, &e.Timestamp, &status, &e.Message, &measurements); err != nil {
			return nil, err
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("log %d: %w", e.Seq, err)
		}
		if e.SessionID, err = uuid.Parse(session); err != nil {
			return nil, fmt.Errorf("log %d: %w", e.Seq, err)
		}
		e.Status = posture.Level(status)
		if err := json.Unmarshal([]byte(measurements), &e.Measurements); err != nil {
			return nil, fmt.Errorf("log %d measurements: %w", e.Seq, err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

// Count returns the number of stored entries.
func (r *LogRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posture_logs`).Scan(&n)
	return n, err
}

// Summary counts entries by level, optionally for one session.
func (r *LogRepository) Summary(ctx context.Context, sessionID uuid.UUID) (LogSummary, error) {
	query := `SELECT status, COUNT(*) FROM posture_logs`
	var args []any
	if sessionID != uuid.Nil {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID.String())
	}
	query += ` GROUP BY status`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return LogSummary{}, err
	}
	defer rows.Close()

	var s LogSummary
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return LogSummary{}, err
		}
		switch posture.Level(status) {
		case posture.LevelGood:
			s.Good = n
		case posture.LevelWarning:
			s.Warning = n
		case posture.LevelBad:
			s.Bad = n
		}
	}
	return s, rows.Err()
}

// DeleteAll removes every entry.
func (r *LogRepository) DeleteAll(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM posture_logs`)
	return err
}
