package update

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"regexp"
	"sync"
	"time"

	"github.com/starford/vocanote/internal/storage"
)

const stateFile = "bundles.json"

var unsafeVersion = regexp.MustCompile(`[^0-9A-Za-z._-]`)

// bundleState is the bookkeeping kept next to the artifacts.
type bundleState struct {
	Current  *Bundle `json:"current,omitempty"`
	Previous *Bundle `json:"previous,omitempty"`
	Next     *Bundle `json:"next,omitempty"`
	// Pending is set while Current has been booted but not yet confirmed.
	Pending bool `json:"pending"`
}

// DiskShell is a Shell that keeps bundles in a local directory.
type DiskShell struct {
	store  storage.Provider
	native bool
	client *http.Client
	reload func() error
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	state bundleState
}

// ShellOption customises a DiskShell.
type ShellOption func(*DiskShell)

// WithReloader sets what Reload does, typically re-executing the process or
// signalling the UI shell.
func WithReloader(fn func() error) ShellOption {
	return func(d *DiskShell) {
		d.reload = fn
	}
}

// WithDownloadClient replaces the client used for artifact downloads.
func WithDownloadClient(c *http.Client) ShellOption {
	return func(d *DiskShell) {
		d.client = c
	}
}

// NewDiskShell opens the bundle bookkeeping in store.
func NewDiskShell(store storage.Provider, native bool, logger *slog.Logger, opts ...ShellOption) (*DiskShell, error) {
	d := &DiskShell{
		store:  store,
		native: native,
		client: &http.Client{Timeout: 5 * time.Minute},
		reload: func() error { return nil },
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if err := d.load(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *DiskShell) load() error {
	data, err := d.store.Read(stateFile)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("update: read bundle state: %w", err)
	}
	if err := json.Unmarshal(data, &d.state); err != nil {
		return fmt.Errorf("update: decode bundle state: %w", err)
	}
	return nil
}

// save writes the state. Callers hold d.mu.
func (d *DiskShell) save() error {
	data, err := json.MarshalIndent(d.state, "", "  ")
	if err != nil {
		return fmt.Errorf("update: encode bundle state: %w", err)
	}
	if err := d.store.Write(stateFile, data); err != nil {
		return fmt.Errorf("update: write bundle state: %w", err)
	}
	return nil
}

// Boot runs at process start. A bundle that was booted but never confirmed
// is rolled back to the one before it, then a staged bundle is promoted to
// current and marked pending. It returns the bundle to run, nil for the base
// app.
func (d *DiskShell) Boot() (*Bundle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state.Pending && d.state.Current != nil {
		d.logger.Warn("update: rolling back unconfirmed bundle", slog.String("version", d.state.Current.Version))
		d.state.Current = d.state.Previous
		d.state.Previous = nil
		d.state.Pending = false
	}
	if d.state.Next != nil {
		d.state.Previous = d.state.Current
		d.state.Current = d.state.Next
		d.state.Next = nil
		d.state.Pending = true
		d.logger.Info("update: booting new bundle", slog.String("version", d.state.Current.Version))
	}
	if err := d.save(); err != nil {
		return nil, err
	}
	if d.state.Current == nil {
		return nil, nil
	}
	b := *d.state.Current
	return &b, nil
}

// Native reports whether bundle swapping is enabled.
func (d *DiskShell) Native() bool {
	return d.native
}

// CurrentVersion returns the running bundle's version.
func (d *DiskShell) CurrentVersion() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state.Current == nil {
		return ""
	}
	return d.state.Current.Version
}

// Download fetches the artifact at m.URL into the bundle directory.
func (d *DiskShell) Download(ctx context.Context, m Manifest) (Bundle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.URL, nil)
	if err != nil {
		return Bundle{}, fmt.Errorf("update: build download request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return Bundle{}, fmt.Errorf("update: download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Bundle{}, fmt.Errorf("update: download: status %d", resp.StatusCode)
	}

	name := path.Join("bundles", unsafeVersion.ReplaceAllString(m.Version, "_")+".bundle")
	entry, err := d.store.WriteFrom(name, resp.Body)
	if err != nil {
		return Bundle{}, err
	}
	return Bundle{
		Version:      m.Version,
		Path:         entry.Path,
		Checksum:     entry.Checksum,
		Size:         entry.Size,
		DownloadedAt: d.now().UTC(),
	}, nil
}

// SetNext stages b for the next Boot.
func (d *DiskShell) SetNext(b Bundle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state.Next = &b
	return d.save()
}

// Reload runs the configured reloader.
func (d *DiskShell) Reload() error {
	return d.reload()
}

// NotifyReady confirms the current bundle so the next Boot keeps it.
func (d *DiskShell) NotifyReady(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.state.Pending {
		return nil
	}
	d.state.Pending = false
	if d.state.Current != nil {
		d.logger.Info("update: bundle confirmed", slog.String("version", d.state.Current.Version))
	}
	return d.save()
}
