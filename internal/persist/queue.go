// Package persist delivers note and folder mutations to the remote store on
// a best-effort, at-most-once basis.
//
// Concurrency model: commands go through a buffered channel drained by a
// fixed pool of workers. Enqueue never blocks. A full buffer drops the
// command, and a failed command is reported and never retried. Completion
// order between commands is unspecified. The remote store's last-write-wins
// upsert is the only consistency guarantee.
package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/starford/vocanote/internal/models"
	"github.com/starford/vocanote/internal/remote"
)

// Kind names a remote mutation.
type Kind string

const (
	KindUpsertNote   Kind = "upsert_note"
	KindDeleteNote   Kind = "delete_note"
	KindUpsertFolder Kind = "upsert_folder"
	KindDeleteFolder Kind = "delete_folder"
)

// ErrQueueFull is reported when a command is dropped because the buffer is full.
var ErrQueueFull = errors.New("persist: queue full")

// ErrClosed is reported when a command arrives after Close.
var ErrClosed = errors.New("persist: queue closed")

// Command is one outbound mutation. Note and Folder are snapshots owned by the
// command; the sender must not retain them.
type Command struct {
	Kind   Kind
	UserID string
	ID     string
	Note   *models.Note
	Folder *models.Folder
}

// Reporter receives every command that failed or was dropped.
type Reporter interface {
	Report(cmd Command, err error)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(cmd Command, err error)

func (f ReporterFunc) Report(cmd Command, err error) { f(cmd, err) }

// Stats counts queue outcomes since start.
type Stats struct {
	Delivered int64
	Failed    int64
	Dropped   int64
}

// Config sizes the queue.
type Config struct {
	Workers int
	Buffer  int
	Timeout time.Duration
}

// Queue is the outbound command queue.
type Queue struct {
	store    remote.Store
	logger   *slog.Logger
	reporter Reporter
	timeout  time.Duration
	workers  int

	mu     sync.RWMutex
	closed bool
	cmds   chan Command
	wg     sync.WaitGroup
	once   sync.Once

	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// Option customises a Queue.
type Option func(*Queue)

// WithReporter replaces the default slog reporter.
func WithReporter(r Reporter) Option {
	return func(q *Queue) {
		q.reporter = r
	}
}

// New creates a queue that writes to store. Call Start to launch workers.
func New(store remote.Store, cfg Config, logger *slog.Logger, opts ...Option) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	q := &Queue{
		store:   store,
		logger:  logger,
		timeout: cfg.Timeout,
		workers: cfg.Workers,
		cmds:    make(chan Command, cfg.Buffer),
	}
	q.reporter = ReporterFunc(q.logFailure)
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Start launches the worker pool. Calling it more than once has no effect.
func (q *Queue) Start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go q.work()
		}
	})
}

// Enqueue schedules cmd without waiting for delivery.
func (q *Queue) Enqueue(cmd Command) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.dropped.Add(1)
		q.reporter.Report(cmd, ErrClosed)
		return
	}
	select {
	case q.cmds <- cmd:
	default:
		q.dropped.Add(1)
		q.reporter.Report(cmd, ErrQueueFull)
	}
}

// Close stops accepting commands, lets the workers drain what is buffered
// and waits for them to exit.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.cmds)
	q.mu.Unlock()
	q.Start()
	q.wg.Wait()
}

// Stats returns a snapshot of the outcome counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Delivered: q.delivered.Load(),
		Failed:    q.failed.Load(),
		Dropped:   q.dropped.Load(),
	}
}

func (q *Queue) work() {
	defer q.wg.Done()
	for cmd := range q.cmds {
		if err := q.exec(cmd); err != nil {
			q.failed.Add(1)
			q.reporter.Report(cmd, err)
			continue
		}
		q.delivered.Add(1)
		q.logger.Debug("persist: delivered", slog.String("kind", string(cmd.Kind)), slog.String("id", cmd.target()))
	}
}

func (q *Queue) exec(cmd Command) error {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	switch cmd.Kind {
	case KindUpsertNote:
		if cmd.Note == nil {
			return fmt.Errorf("persist: upsert note without payload")
		}
		row, err := remote.NoteToRow(cmd.Note, cmd.UserID)
		if err != nil {
			return err
		}
		return q.store.UpsertNote(ctx, row)
	case KindDeleteNote:
		return q.store.DeleteNote(ctx, cmd.ID, cmd.UserID)
	case KindUpsertFolder:
		if cmd.Folder == nil {
			return fmt.Errorf("persist: upsert folder without payload")
		}
		return q.store.UpsertFolder(ctx, remote.FolderToRow(cmd.Folder, cmd.UserID))
	case KindDeleteFolder:
		return q.store.DeleteFolder(ctx, cmd.ID, cmd.UserID)
	default:
		return fmt.Errorf("persist: unknown command kind %q", cmd.Kind)
	}
}

func (q *Queue) logFailure(cmd Command, err error) {
	q.logger.Error("persist: command failed",
		slog.String("kind", string(cmd.Kind)),
		slog.String("id", cmd.target()),
		slog.String("error", err.Error()))
}

func (c Command) target() string {
	switch {
	case c.Note != nil:
		return c.Note.ID
	case c.Folder != nil:
		return c.Folder.ID
	default:
		return c.ID
	}
}
