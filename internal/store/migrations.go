package store

import "fmt"

// migrations are applied in order. The index of the last applied step is
// kept in PRAGMA user_version, so steps must only ever be appended.
var migrations = []string{
	// 1: one row per completed calibration
	`CREATE TABLE IF NOT EXISTS baselines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scale_factor REAL NOT NULL CHECK(scale_factor > 0),
		samples INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	)`,

	// 2: one row per classified frame
	`CREATE TABLE IF NOT EXISTS posture_logs (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		session_id TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		status TEXT NOT NULL CHECK(status IN ('good', 'warning', 'bad')),
		message TEXT NOT NULL,
		measurements TEXT NOT NULL DEFAULT '{}'
	)`,

	// 3: dashboard settings
	`CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_posture_logs_session_id ON posture_logs(session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_posture_logs_status ON posture_logs(status)`,
}

// SchemaVersion returns the number of migrations applied to the database.
func (s *Store) SchemaVersion() (int, error) {
	var v int
	err := s.db.QueryRow("PRAGMA user_version").Scan(&v)
	return v, err
}

// runMigrations applies the migrations newer than the stored schema version,
// each in its own transaction.
func (s *Store) runMigrations() error {
	current, err := s.SchemaVersion()
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if current > len(migrations) {
		return fmt.Errorf("database schema version %d is newer than this build (%d)", current, len(migrations))
	}

	for i := current; i < len(migrations); i++ {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		// PRAGMA does not take bind parameters.
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
