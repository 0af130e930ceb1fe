package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ayusman/posturepilot/internal/posture"
)

// Baseline is a stored calibration result.
type Baseline struct {
	ID int64 `json:"id"`
	posture.Baseline
}

// BaselineRepository provides access to calibration baselines.
type BaselineRepository struct {
	db *sql.DB
}

// Baselines returns the baseline repository for this store.
func (s *Store) Baselines() *BaselineRepository {
	return &BaselineRepository{db: s.db}
}

// Create inserts b and returns its ID. A zero CreatedAt is set to now.
func (r *BaselineRepository) Create(ctx context.Context, b posture.Baseline) (int64, error) {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO baselines (scale_factor, samples, created_at) VALUES (?, ?, ?)`,
		b.ScaleFactor, b.Samples, b.CreatedAt.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Latest returns the most recently created baseline.
func (r *BaselineRepository) Latest(ctx context.Context) (*Baseline, error) {
	b := &Baseline{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, scale_factor, samples, created_at
		 FROM baselines ORDER BY id DESC LIMIT 1`,
	).Scan(&b.ID, &b.ScaleFactor, &b.Samples, &b.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

// List returns up to limit baselines, newest first.
func (r *BaselineRepository) List(ctx context.Context, limit int) ([]Baseline, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, scale_factor, samples, created_at
		 FROM baselines ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var baselines []Baseline
	for rows.Next() {
		var b Baseline
		if err := rows.Scan(&b.ID, &b.ScaleFactor, &b.Samples, &b.CreatedAt); err != nil {
			return nil, err
		}
		baselines = append(baselines, b)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return baselines, nil
}
