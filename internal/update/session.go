package update

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/starford/vocanote/internal/version"
)

// State is the session's position in the update flow.
type State string

const (
	StateIdle            State = "idle"
	StateChecking        State = "checking"
	StateUpToDate        State = "up_to_date"
	StateUpdateAvailable State = "update_available"
	StateDownloading     State = "downloading"
	StateApplying        State = "applying"
)

// ErrInProgress is returned by ApplyUpdate while another apply is running.
var ErrInProgress = errors.New("update: apply already in progress")

// Bundle is a downloaded artifact labelled with its version.
type Bundle struct {
	Version      string    `json:"version"`
	Path         string    `json:"path"`
	Checksum     string    `json:"checksum"`
	Size         int64     `json:"size"`
	DownloadedAt time.Time `json:"downloaded_at"`
}

// Shell is the host that stores bundles and loads them.
type Shell interface {
	// Native reports whether the app runs inside a shell that can swap bundles.
	Native() bool
	// CurrentVersion returns the active bundle's version, or "" when the base
	// app is running.
	CurrentVersion() string
	Download(ctx context.Context, m Manifest) (Bundle, error)
	SetNext(b Bundle) error
	Reload() error
	NotifyReady(ctx context.Context) error
}

// Status is a snapshot for the UI.
type Status struct {
	State          State     `json:"state"`
	CurrentVersion string    `json:"currentVersion"`
	Available      *Manifest `json:"available,omitempty"`
}

// Session runs the check and apply protocol against one shell.
type Session struct {
	shell       Shell
	manifestURL string
	baseVersion string
	client      *http.Client
	logger      *slog.Logger
	now         func() time.Time

	updating atomic.Bool

	mu        sync.Mutex
	state     State
	available *Manifest
}

// SessionOption customises a Session.
type SessionOption func(*Session)

// WithHTTPClient replaces the client used for manifest requests.
func WithHTTPClient(c *http.Client) SessionOption {
	return func(s *Session) {
		s.client = c
	}
}

// NewSession creates an idle session. baseVersion is the version of the app
// as shipped, used until a bundle has been applied.
func NewSession(shell Shell, manifestURL, baseVersion string, logger *slog.Logger, opts ...SessionOption) *Session {
	s := &Session{
		shell:       shell,
		manifestURL: manifestURL,
		baseVersion: baseVersion,
		client:      &http.Client{Timeout: 15 * time.Second},
		logger:      logger,
		now:         time.Now,
		state:       StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State reports the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns the state together with the running and available versions.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{State: s.state, CurrentVersion: s.currentVersion()}
	if s.available != nil {
		m := *s.available
		st.Available = &m
	}
	return st
}

func (s *Session) currentVersion() string {
	if v := s.shell.CurrentVersion(); v != "" {
		return v
	}
	return s.baseVersion
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// CheckForUpdate fetches the manifest and reports whether it names a
// strictly newer version. Every failure counts as no update.
func (s *Session) CheckForUpdate(ctx context.Context) (Manifest, bool) {
	if !s.shell.Native() || s.manifestURL == "" {
		return Manifest{}, false
	}
	if s.updating.Load() {
		return Manifest{}, false
	}
	s.setState(StateChecking)

	m, err := FetchManifest(ctx, s.client, s.manifestURL, s.now())
	if err != nil {
		s.logger.Debug("update: check failed", slog.String("error", err.Error()))
		s.mu.Lock()
		s.state = StateUpToDate
		s.available = nil
		s.mu.Unlock()
		return Manifest{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.currentVersion()
	if !version.Newer(m.Version, current) {
		s.state = StateUpToDate
		s.available = nil
		return Manifest{}, false
	}
	s.state = StateUpdateAvailable
	s.available = &m
	s.logger.Info("update: available", slog.String("current", current), slog.String("version", m.Version))
	return m, true
}

// ApplyUpdate downloads m, stages it as the next bundle and asks the shell
// to reload. A second call while the first is running returns ErrInProgress.
func (s *Session) ApplyUpdate(ctx context.Context, m Manifest) error {
	m = m.Normalized()
	if err := m.Validate(); err != nil {
		return err
	}
	if !s.updating.CompareAndSwap(false, true) {
		return ErrInProgress
	}
	defer s.updating.Store(false)

	err := s.apply(ctx, m)
	if err != nil {
		s.logger.Error("update: apply failed", slog.String("version", m.Version), slog.String("error", err.Error()))
		s.mu.Lock()
		s.state = StateUpdateAvailable
		s.available = &m
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Session) apply(ctx context.Context, m Manifest) error {
	s.setState(StateDownloading)
	b, err := s.shell.Download(ctx, m)
	if err != nil {
		return fmt.Errorf("update: download %s: %w", m.Version, err)
	}
	if err := s.shell.SetNext(b); err != nil {
		return fmt.Errorf("update: stage %s: %w", m.Version, err)
	}
	s.setState(StateApplying)
	if err := s.shell.Reload(); err != nil {
		return fmt.Errorf("update: reload: %w", err)
	}
	s.logger.Info("update: applied", slog.String("version", b.Version), slog.String("checksum", b.Checksum))
	return nil
}

// NotifyReady tells the shell the running bundle started cleanly.
func (s *Session) NotifyReady(ctx context.Context) error {
	if !s.shell.Native() {
		return nil
	}
	return s.shell.NotifyReady(ctx)
}
