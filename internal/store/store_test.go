package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ayusman/posturepilot/internal/posture"
)

// newTestStore creates a new Store backed by a file in a temp dir.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})

	return s
}

func TestNewStore_CreatesDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	// Verify the database file doesn't exist yet
	if _, err := os.Stat(dbPath); !os.IsNotExist(err) {
		t.Fatal("database file should not exist before creating store")
	}

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Fatal("database file should exist after creating store")
	}
}

func TestNewStore_RunsMigrations(t *testing.T) {
	s := newTestStore(t)

	tables := []string{"baselines", "posture_logs", "settings"}
	for _, table := range tables {
		var name string
		err := s.DB().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q should exist after migrations: %v", table, err)
		}
	}

	if v, err := s.SchemaVersion(); err != nil || v != len(migrations) {
		t.Errorf("SchemaVersion() = %d, %v; want %d", v, err, len(migrations))
	}
}

func TestNewStore_RejectsNewerSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.DB().Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatal(err)
	}
	s.Close()

	if s, err := New(dbPath); err == nil {
		s.Close()
		t.Fatal("opening a database from a newer build should fail")
	}
}

func TestNewStore_ReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s, err := New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SaveBaseline(ctx, posture.Baseline{ScaleFactor: 0.2, Samples: 60}); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = New(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if v, _ := s.SchemaVersion(); v != len(migrations) {
		t.Errorf("SchemaVersion() after reopen = %d", v)
	}

	b, err := s.GetBaseline(ctx)
	if err != nil || b == nil || b.ScaleFactor != 0.2 {
		t.Errorf("GetBaseline() = %+v, %v; want scale factor 0.2", b, err)
	}
}

func TestStore_Close(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Errorf("close should not return error: %v", err)
	}

	// After closing, DB operations should fail
	if _, err := s.DB().Exec("SELECT 1"); err == nil {
		t.Error("DB operations should fail after close")
	}
}

func TestStore_IndexesCreated(t *testing.T) {
	s := newTestStore(t)

	indexes := []string{
		"idx_posture_logs_session_id",
		"idx_posture_logs_status",
	}
	for _, idx := range indexes {
		var name string
		err := s.DB().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='index' AND name=?",
			idx,
		).Scan(&name)
		if err != nil {
			t.Errorf("index %q should exist after migrations: %v", idx, err)
		}
	}
}

func TestStore_Baselines(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b, err := s.GetBaseline(ctx)
	if err != nil || b != nil {
		t.Fatalf("GetBaseline() on empty store = %+v, %v; want nil, nil", b, err)
	}
	if _, err := s.Baselines().Latest(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("Latest() error = %v, want ErrNotFound", err)
	}

	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, scale := range []float64{0.18, 0.21} {
		err := s.SaveBaseline(ctx, posture.Baseline{
			ScaleFactor: scale,
			Samples:     60,
			CreatedAt:   created.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("SaveBaseline() error = %v", err)
		}
	}

	b, err = s.GetBaseline(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if b.ScaleFactor != 0.21 || b.Samples != 60 {
		t.Errorf("latest baseline = %+v, want scale 0.21", b)
	}
	if !b.CreatedAt.Equal(created.Add(time.Hour)) {
		t.Errorf("CreatedAt = %v, want %v", b.CreatedAt, created.Add(time.Hour))
	}

	list, err := s.Baselines().List(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ScaleFactor != 0.21 || list[1].ScaleFactor != 0.18 {
		t.Errorf("List() = %+v, want newest first", list)
	}
}

func TestStore_RejectsNonPositiveBaseline(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveBaseline(context.Background(), posture.Baseline{ScaleFactor: 0}); err == nil {
		t.Error("expected a constraint error for a zero scale factor")
	}
}

func TestSettingsRepository(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	repo := s.Settings()

	if _, err := repo.Get(ctx, "theme"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() missing key error = %v, want ErrNotFound", err)
	}

	if err := repo.Set(ctx, "theme", "dark"); err != nil {
		t.Fatal(err)
	}
	if err := repo.Set(ctx, "theme", "light"); err != nil {
		t.Fatal(err)
	}
	if err := repo.Set(ctx, "chart", "line"); err != nil {
		t.Fatal(err)
	}

	v, err := repo.Get(ctx, "theme")
	if err != nil || v != "light" {
		t.Errorf("Get() = %q, %v; want light", v, err)
	}

	all, err := repo.All(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all["chart"] != "line" {
		t.Errorf("All() = %v", all)
	}

	if err := repo.Delete(ctx, "theme"); err != nil {
		t.Fatal(err)
	}
	if err := repo.Delete(ctx, "theme"); err != nil {
		t.Errorf("deleting a missing key: %v", err)
	}
}
