// Package inbox watches a drop directory and imports note files placed in
// it: export documents (.json) are merged with ImportAll, Markdown files
// (.md) become new notes.
package inbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/vocanote/internal/apperr"
	"github.com/starford/vocanote/internal/models"
	"github.com/starford/vocanote/internal/parser"
	"github.com/starford/vocanote/internal/storage"
)

const (
	settleDelay   = 200 * time.Millisecond
	retryInterval = time.Second
)

// Importer is the part of the note store the inbox writes through.
type Importer interface {
	ImportAll(r io.Reader) (int, error)
	ImportNote(title, body string) (*models.Note, error)
}

// EventCallback is called after each processed file.
// kind is one of "imported", "failed".
type EventCallback func(kind string, path string)

// Inbox imports files from one directory.
type Inbox struct {
	root   string
	store  storage.Provider
	notes  Importer
	logger *slog.Logger

	mu sync.Mutex
	// failed remembers the checksum of content that could not be imported so
	// the same bytes are not retried on every scan.
	failed map[string]string
}

// New opens the inbox at root, creating the directory if needed.
func New(root string, notes Importer, logger *slog.Logger) (*Inbox, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("inbox: create dir: %w", err)
	}
	store, err := storage.NewFS(root)
	if err != nil {
		return nil, fmt.Errorf("inbox: %w", err)
	}
	return &Inbox{
		root:   store.Root(),
		store:  store,
		notes:  notes,
		logger: logger,
		failed: make(map[string]string),
	}, nil
}

func accepted(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".md":
		return true
	}
	return false
}

// Scan processes every file currently in the inbox. It returns how many
// files were left for later because no notes are loaded yet.
func (in *Inbox) Scan(cb EventCallback) (deferred int) {
	entries, err := in.store.List("")
	if err != nil {
		in.logger.Warn("inbox: list failed", slog.String("error", err.Error()))
		return 0
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	for _, e := range entries {
		if !accepted(e.Path) || in.failed[e.Path] == e.Checksum {
			continue
		}
		data, err := in.store.Read(e.Path)
		if err != nil {
			in.logger.Warn("inbox: read failed", slog.String("path", e.Path), slog.String("error", err.Error()))
			continue
		}

		n, err := in.importFile(e.Path, data)
		switch {
		case errors.Is(err, apperr.ErrNotLoaded):
			deferred++
			continue
		case err != nil:
			in.failed[e.Path] = e.Checksum
			in.logger.Warn("inbox: import failed", slog.String("path", e.Path), slog.String("error", err.Error()))
			if cb != nil {
				cb("failed", e.Path)
			}
			continue
		}

		delete(in.failed, e.Path)
		if err := in.store.Delete(e.Path); err != nil {
			in.logger.Warn("inbox: remove imported file failed", slog.String("path", e.Path), slog.String("error", err.Error()))
		}
		in.logger.Info("inbox: imported", slog.String("path", e.Path), slog.Int("notes", n))
		if cb != nil {
			cb("imported", e.Path)
		}
	}
	return deferred
}

func (in *Inbox) importFile(path string, data []byte) (int, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return in.notes.ImportAll(bytes.NewReader(data))
	}

	doc, err := parser.ParseMarkdown(data)
	if err != nil {
		return 0, err
	}
	if _, err := in.notes.ImportNote(doc.Title, doc.Body); err != nil {
		return 0, err
	}
	return 1, nil
}

// Watch scans the inbox, then keeps importing files as they are written
// until ctx is cancelled. Files dropped before a session is loaded are
// retried until one is.
func Watch(ctx context.Context, in *Inbox, cb EventCallback) error {
	logger := in.logger
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, in.root); err != nil {
		return err
	}
	logger.Info("inbox: watching", slog.String("root", in.root))

	// scanTimer debounces bursts of write events into one scan.
	scanTimer := time.NewTimer(0)
	defer scanTimer.Stop()
	scheduleScan := func(d time.Duration) {
		scanTimer.Stop()
		scanTimer.Reset(d)
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("inbox: stopped")
			return nil

		case <-scanTimer.C:
			if in.Scan(cb) > 0 {
				scheduleScan(retryInterval)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("inbox: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					scheduleScan(settleDelay)
					continue
				}
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 && accepted(ev.Name) {
				scheduleScan(settleDelay)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("inbox: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
