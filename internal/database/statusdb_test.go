package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/scanpipe/internal/model"
)

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(filepath.Join(dbDir, FileName)); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if db.Path() != filepath.Join(dbDir, FileName) {
			t.Errorf("Path() = %q", db.Path())
		}
	})

	t.Run("CreateIfNotExists=false returns error when database does not exist", func(t *testing.T) {
		t.Parallel()

		_, err := Open(filepath.Join(t.TempDir(), "missing"), Options{CreateIfNotExists: false})
		if err == nil {
			t.Error("expected error for missing database")
		}
	})

	t.Run("reopening keeps data", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		dir := t.TempDir()
		id := uuid.New()

		db, err := Open(dir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		if err := db.UpsertStatus(ctx, model.StatusUpdate{RequestID: id, Status: model.StatusCompleted}); err != nil {
			t.Fatalf("UpsertStatus() error = %v", err)
		}
		_ = db.Close()

		db, err = Open(dir, Options{CreateIfNotExists: false})
		if err != nil {
			t.Fatalf("failed to reopen database: %v", err)
		}
		defer db.Close()

		if err := db.Ping(ctx); err != nil {
			t.Errorf("Ping() error = %v", err)
		}
		got, err := db.GetStatus(ctx, id)
		if err != nil {
			t.Fatalf("GetStatus() error = %v", err)
		}
		if got.Status != model.StatusCompleted {
			t.Errorf("Status = %q, want %q", got.Status, model.StatusCompleted)
		}
	})
}

func TestTimestamp(t *testing.T) {
	t.Parallel()

	t.Run("format sorts as text", func(t *testing.T) {
		t.Parallel()

		a := time.Date(2024, 1, 1, 10, 0, 0, 5, time.UTC)
		b := time.Date(2024, 1, 1, 10, 0, 0, 500000000, time.UTC)
		if formatTimestamp(a) >= formatTimestamp(b) {
			t.Errorf("%q should sort before %q", formatTimestamp(a), formatTimestamp(b))
		}
	})

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()

		want := time.Date(2024, 3, 4, 5, 6, 7, 8, time.UTC)
		if got := parseTimestamp(formatTimestamp(want)); !got.Equal(want) {
			t.Errorf("parseTimestamp() = %v, want %v", got, want)
		}
	})

	t.Run("sqlite default form", func(t *testing.T) {
		t.Parallel()

		got := parseTimestamp("2024-03-04 05:06:07")
		if got.IsZero() {
			t.Error("parseTimestamp() returned zero time")
		}
	})

	t.Run("garbage is zero", func(t *testing.T) {
		t.Parallel()

		if got := parseTimestamp("not a time"); !got.IsZero() {
			t.Errorf("parseTimestamp() = %v, want zero", got)
		}
	})
}
