// Package testutil provides shared test helpers for remote stores and bundle directories.
package testutil

import (
	"os"
	"testing"

	"github.com/starford/vocanote/internal/remote"
	"github.com/starford/vocanote/internal/storage"
)

// TestRemote creates a temporary SQLite-backed remote store that is automatically cleaned up.
func TestRemote(t *testing.T) *remote.SQLStore {
	t.Helper()
	dbFile, err := os.CreateTemp("", "vocanote-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	store, err := remote.Open(remote.DriverSQLite, dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// TestBundles creates a temporary bundle directory with a storage.Provider.
func TestBundles(t *testing.T) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}
