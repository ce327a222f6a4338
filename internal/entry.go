// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/vocanote/internal/api"
	"github.com/starford/vocanote/internal/dictation"
	"github.com/starford/vocanote/internal/inbox"
	"github.com/starford/vocanote/internal/mcpserver"
	"github.com/starford/vocanote/internal/notestore"
	"github.com/starford/vocanote/internal/persist"
	"github.com/starford/vocanote/internal/remote"
	"github.com/starford/vocanote/internal/session"
	"github.com/starford/vocanote/internal/sse"
	"github.com/starford/vocanote/internal/storage"
	"github.com/starford/vocanote/internal/transcribe"
	"github.com/starford/vocanote/internal/update"
)

var errConfigRequired = errors.New("config is required")

// core is the set of components every command needs: the remote store, the
// outbound queue and the note store over them.
type core struct {
	logger      *slog.Logger
	remote      *remote.SQLStore
	queue       *persist.Queue
	notes       *notestore.Store
	resolver    *session.Resolver
	transcriber *transcribe.HTTPClient
}

func newLogger(app *application) *slog.Logger {
	out := app.logOutput
	if out == nil {
		out = os.Stdout
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: app.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

func openCore(cfg *Config, logger *slog.Logger) (*core, error) {
	store, err := remote.Open(cfg.Remote.Driver, cfg.Remote.DSN)
	if err != nil {
		return nil, fmt.Errorf("init remote store: %w", err)
	}

	queue := persist.New(store, persist.Config{
		Workers: cfg.Persist.Workers,
		Buffer:  cfg.Persist.Buffer,
		Timeout: cfg.Remote.OpTimeout.Std(),
	}, logger)
	queue.Start()

	return &core{
		logger: logger,
		remote: store,
		queue:  queue,
		notes:  notestore.New(store, queue, logger, notestore.WithConfirmer(notestore.ContextConfirmer)),
		resolver: session.NewResolver(store, logger,
			session.WithTimeouts(cfg.Session.LookupTimeout.Std(), cfg.Session.CreateTimeout.Std())),
		transcriber: transcribe.NewHTTPClient(cfg.Transcription.Endpoint, cfg.Transcription.APIKey),
	}, nil
}

// Close drains the outbound queue, then closes the remote store.
func (c *core) Close() {
	c.queue.Close()
	if err := c.remote.Close(); err != nil {
		c.logger.Error("close remote store failed", slog.String("error", err.Error()))
	}
}

// load resolves identity and loads that user's notes, as a session start
// does over HTTP.
func (c *core) load(ctx context.Context, identity string) error {
	if strings.TrimSpace(identity) == "" {
		return errors.New("identity is required")
	}
	res, err := c.resolver.Resolve(ctx, identity)
	if err != nil {
		return fmt.Errorf("resolve user: %w", err)
	}
	if err := c.notes.LoadAll(ctx, res.UserID); err != nil {
		return fmt.Errorf("load notes: %w", err)
	}
	c.logger.Info("notes loaded",
		slog.String("user_id", res.UserID),
		slog.Bool("fallback", res.Fallback),
		slog.Int("notes", len(c.notes.Notes())))
	return nil
}

// Run starts the daemon with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := newLogger(app)

	logger.Info("Configuration loaded",
		slog.String("version", app.version),
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("remote_driver", cfg.Remote.Driver),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.String("inbox_path", cfg.Inbox.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	c, err := openCore(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	g, gCtx := errgroup.WithContext(ctx)
	gCtx, stop := context.WithCancel(gCtx)
	defer stop()

	// Update shell: bundles live on disk next to the bookkeeping file.
	if err := os.MkdirAll(cfg.Update.BundleDir, 0o755); err != nil {
		return fmt.Errorf("create bundle dir: %w", err)
	}
	bundles, err := storage.NewFS(cfg.Update.BundleDir)
	if err != nil {
		return fmt.Errorf("init bundle storage: %w", err)
	}
	shell, err := update.NewDiskShell(bundles, cfg.Update.Native, logger,
		update.WithReloader(func() error {
			logger.Info("update: restarting to load the staged bundle")
			stop()
			return nil
		}))
	if err != nil {
		return fmt.Errorf("init update shell: %w", err)
	}
	if bundle, err := shell.Boot(); err != nil {
		logger.Warn("update: boot failed", slog.String("error", err.Error()))
	} else if bundle != nil {
		logger.Info("update: running bundle", slog.String("version", bundle.Version))
	}
	updates := update.NewSession(shell, cfg.Update.ManifestURL, cfg.Update.BaseVersion, logger)

	recorder := dictation.NewRecorder(c.notes, c.transcriber, logger)
	defer recorder.Close()

	// SSE broker, fed by store events.
	broker := sse.NewBroker(250 * time.Millisecond)
	defer broker.Close()
	unsubscribe := c.notes.Subscribe(func(ev notestore.Event) {
		broker.PublishChange(string(ev.Kind), ev.ID)
	})
	defer unsubscribe()

	svc := api.NewService(c.notes, c.resolver, recorder, updates, logger)
	if cfg.Transcription.LiveURL != "" {
		svc.Live = api.NewLiveFeed(cfg.Transcription.LiveURL, cfg.Transcription.APIKey, c.notes, recorder, broker, logger)
	}
	apiRouter := api.NewRouter(svc, api.AuthOptions{
		Mode:      cfg.Auth.Mode,
		Token:     cfg.Auth.Token,
		JWTSecret: cfg.Auth.JWTSecret,
	}, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !c.notes.Loaded() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"no session"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	// Inbox watcher.
	if cfg.Inbox.Path != "" {
		in, err := inbox.New(cfg.Inbox.Path, c.notes, logger)
		if err != nil {
			return fmt.Errorf("init inbox: %w", err)
		}
		g.Go(func() error {
			return inbox.Watch(gCtx, in, func(kind, path string) {
				broker.Publish(sse.Event{Type: "inbox." + kind, Data: map[string]string{"path": path}})
			})
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}
		stop()

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		if svc.Live != nil && svc.Live.Active() {
			_ = svc.Live.Stop()
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// ServeMCP loads identity's notes and serves them to an MCP client over
// stdio until the client disconnects.
func ServeMCP(ctx context.Context, identity string, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	logger := newLogger(app)

	c, err := openCore(app.config, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.load(ctx, identity); err != nil {
		return err
	}
	return mcpserver.New(c.notes, c.transcriber, app.version).ServeStdio()
}

// Export writes identity's notes to w as an export document.
func Export(ctx context.Context, identity string, w io.Writer, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	c, err := openCore(app.config, newLogger(app))
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.load(ctx, identity); err != nil {
		return err
	}
	return c.notes.ExportAll(w)
}

// Import merges an export document from r into identity's notes and waits
// for the writes to reach the remote store.
func Import(ctx context.Context, identity string, r io.Reader, opts ...Option) (int, error) {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return 0, err
	}
	c, err := openCore(app.config, newLogger(app))
	if err != nil {
		return 0, err
	}
	defer c.Close()

	if err := c.load(ctx, identity); err != nil {
		return 0, err
	}
	return c.notes.ImportAll(r)
}
