// Package store provides SQLite storage for calibration baselines, the
// posture log and dashboard settings.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ayusman/posturepilot/internal/posture"
	"github.com/ayusman/posturepilot/internal/sink"
	_ "modernc.org/sqlite"
)

// DefaultRetention is the number of posture log entries kept.
const DefaultRetention = 1000

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// Store represents a SQLite database connection.
type Store struct {
	db        *sql.DB
	path      string
	retention int
}

var _ sink.Persistence = (*Store)(nil)

// New creates a new Store with the given database path.
// It opens the database connection, enables foreign keys, and runs migrations.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{
		db:        db,
		path:      dbPath,
		retention: DefaultRetention,
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// SetRetention sets how many posture log entries are kept. Values below 1
// disable trimming.
func (s *Store) SetRetention(n int) {
	s.retention = n
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// SaveBaseline records a new calibration baseline.
func (s *Store) SaveBaseline(ctx context.Context, b posture.Baseline) error {
	_, err := s.Baselines().Create(ctx, b)
	return err
}

// GetBaseline returns the most recent baseline, or nil if none was saved.
func (s *Store) GetBaseline(ctx context.Context) (*posture.Baseline, error) {
	b, err := s.Baselines().Latest(ctx)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b.Baseline, nil
}

// AppendPostureLog stores rec and trims the log to the retention limit.
func (s *Store) AppendPostureLog(ctx context.Context, rec sink.LogRecord) error {
	return s.Logs().Append(ctx, rec, s.retention)
}
