// Package storage defines the file-system abstraction used for downloaded
// bundle artifacts and their bookkeeping files.
package storage

import (
	"io"
	"time"
)

// Entry describes one stored file.
type Entry struct {
	Path     string
	Size     int64
	Checksum string
	ModTime  time.Time
}

// Provider is the interface for bundle directory operations.
type Provider interface {
	// List returns an entry for every regular file under dir (relative to root).
	List(dir string) ([]Entry, error)
	// Read returns the raw bytes of the file at path (relative to root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to root).
	Write(path string, content []byte) error
	// WriteFrom atomically streams r into path and reports size and SHA-256.
	WriteFrom(path string, r io.Reader) (Entry, error)
	// Delete removes the file at path (relative to root).
	Delete(path string) error
}
