// Package testutil provides shared test helpers for stores, catalogs and
// project trees.
package testutil

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/rulesync/internal/index"
	"github.com/starford/rulesync/internal/storage"
)

// Marker is a marker path that will not exist above any temp directory, so
// resolver walks in tests never escape into the real filesystem.
const Marker = ".rulesync-test/rules"

// QuietLogger returns a logger that only emits errors.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// TestDB creates a temporary SQLite catalog that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "rulesync-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestStore creates a temporary shared store.
func TestStore(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "shared")
	store, err := storage.NewFS(dir, QuietLogger())
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// Project creates root/<name>/<Marker> and returns the project directory and
// the marker directory.
func Project(t *testing.T, root, name string) (string, string) {
	t.Helper()
	proj := filepath.Join(root, name)
	marker := filepath.Join(proj, filepath.FromSlash(Marker))
	if err := os.MkdirAll(marker, 0o755); err != nil {
		t.Fatal(err)
	}
	return proj, marker
}

// WriteFile writes content to path, creating parent directories.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// ReadFile returns the content of path or fails the test.
func ReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}
