package db

import (
	"context"
	"path/filepath"
	"testing"
)

func TestOpenInMemory_Migrate(t *testing.T) {
	t.Parallel()

	database, err := OpenInMemory()
	if err != nil {
		t.Fatalf("open in-memory: %v", err)
	}
	defer func() { _ = database.Close() }()

	if err := database.Migrate("recovery"); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	// Table exists and is queryable
	var count int
	row := database.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM recovery_queue")
	if err := row.Scan(&count); err != nil {
		t.Fatalf("query recovery_queue: %v", err)
	}
	if count != 0 {
		t.Errorf("expected empty table, got %d rows", count)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()

	database, err := OpenInMemory()
	if err != nil {
		t.Fatalf("open in-memory: %v", err)
	}
	defer func() { _ = database.Close() }()

	if err := database.Migrate("recovery"); err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	if err := database.Migrate("recovery"); err != nil {
		t.Fatalf("second migrate should be a no-op: %v", err)
	}
}

func TestOpen_CreatesParentDirectory(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "dir", "recovery.db")
	database, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = database.Close() }()

	if database.Path() != path {
		t.Errorf("Path() = %q, want %q", database.Path(), path)
	}
}
