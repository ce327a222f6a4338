package update

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/vocanote/internal/apperr"
	"github.com/starford/vocanote/internal/checksum"
	"github.com/starford/vocanote/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeShell struct {
	native   bool
	current  string
	mu       sync.Mutex
	steps    []string
	dlErr    error
	dlGate   chan struct{}
	readyHit int
}

func (f *fakeShell) Native() bool { return f.native }

func (f *fakeShell) CurrentVersion() string { return f.current }

func (f *fakeShell) record(step string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.steps = append(f.steps, step)
}

func (f *fakeShell) Download(_ context.Context, m Manifest) (Bundle, error) {
	if f.dlGate != nil {
		<-f.dlGate
	}
	f.record("download " + m.Version)
	if f.dlErr != nil {
		return Bundle{}, f.dlErr
	}
	return Bundle{Version: m.Version, Path: "bundles/" + m.Version}, nil
}

func (f *fakeShell) SetNext(b Bundle) error {
	f.record("next " + b.Version)
	return nil
}

func (f *fakeShell) Reload() error {
	f.record("reload")
	return nil
}

func (f *fakeShell) NotifyReady(context.Context) error {
	f.readyHit++
	return nil
}

func manifestServer(t *testing.T, body string, status int) (*httptest.Server, *atomic.Pointer[http.Request]) {
	t.Helper()
	var last atomic.Pointer[http.Request]
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		last.Store(r.Clone(context.Background()))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &last
}

func TestCheckForUpdate(t *testing.T) {
	cases := []struct {
		name    string
		current string
		body    string
		status  int
		want    bool
	}{
		{"newer", "", `{"version":"1.0.1","url":"http://x/b"}`, 200, true},
		{"same with shorter form", "1.0.0", `{"version":"1.0","url":"http://x/b"}`, 200, false},
		{"older", "2.0.0", `{"version":"1.9.9","url":"http://x/b"}`, 200, false},
		{"missing url", "", `{"version":"9.0.0"}`, 200, false},
		{"missing version", "", `{"url":"http://x/b"}`, 200, false},
		{"bad json", "", `{"version":`, 200, false},
		{"server error", "", `{"version":"9.0.0","url":"http://x/b"}`, 500, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, _ := manifestServer(t, tc.body, tc.status)
			shell := &fakeShell{native: true, current: tc.current}
			s := NewSession(shell, srv.URL+"/manifest.json", "1.0.0", quietLogger())

			_, ok := s.CheckForUpdate(context.Background())
			assert.Equal(t, tc.want, ok)
			if tc.want {
				assert.Equal(t, StateUpdateAvailable, s.State())
			} else {
				assert.Equal(t, StateUpToDate, s.State())
			}
		})
	}
}

func TestCheckBypassesCaches(t *testing.T) {
	srv, last := manifestServer(t, `{"version":"2.0.0","url":"http://x/b"}`, 200)
	s := NewSession(&fakeShell{native: true}, srv.URL+"/m.json?channel=beta", "1.0.0", quietLogger())
	s.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }

	m, ok := s.CheckForUpdate(context.Background())
	require.True(t, ok)
	assert.Equal(t, Manifest{Version: "2.0.0", URL: "http://x/b"}, m)

	req := last.Load()
	require.NotNil(t, req)
	assert.Equal(t, "no-cache", req.Header.Get("Cache-Control"))
	assert.Equal(t, "no-cache", req.Header.Get("Pragma"))
	assert.Equal(t, "1700000000000", req.URL.Query().Get("_"))
	assert.Equal(t, "beta", req.URL.Query().Get("channel"))
}

func TestCheckTrimsManifestFields(t *testing.T) {
	artifact := []byte("bundle-contents-v3")
	bundleSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(artifact)
	}))
	defer bundleSrv.Close()
	srv, _ := manifestServer(t, `{"version":" 3.0.0 ","url":"  `+bundleSrv.URL+`/b.zip\n"}`, 200)

	_, store := testutil.TestBundles(t)
	shell, err := NewDiskShell(store, true, quietLogger(), WithReloader(func() error { return nil }))
	require.NoError(t, err)
	s := NewSession(shell, srv.URL, "1.0.0", quietLogger())

	m, ok := s.CheckForUpdate(context.Background())
	require.True(t, ok)
	assert.Equal(t, Manifest{Version: "3.0.0", URL: bundleSrv.URL + "/b.zip"}, m)

	require.NoError(t, s.ApplyUpdate(context.Background(), m))
	booted, err := shell.Boot()
	require.NoError(t, err)
	require.NotNil(t, booted)
	assert.Equal(t, "3.0.0", booted.Version)

	// Manifests handed back by the UI are trimmed the same way.
	fake := &fakeShell{native: true}
	fs := NewSession(fake, "", "1.0.0", quietLogger())
	require.NoError(t, fs.ApplyUpdate(context.Background(), Manifest{Version: " 3.0.1\t", URL: " http://x/b "}))
	assert.Equal(t, []string{"download 3.0.1", "next 3.0.1", "reload"}, fake.steps)
}

func TestCheckSkippedOutsideNativeShell(t *testing.T) {
	srv, last := manifestServer(t, `{"version":"9.0.0","url":"http://x/b"}`, 200)

	_, ok := NewSession(&fakeShell{native: false}, srv.URL, "1.0.0", quietLogger()).CheckForUpdate(context.Background())
	assert.False(t, ok)
	_, ok = NewSession(&fakeShell{native: true}, "", "1.0.0", quietLogger()).CheckForUpdate(context.Background())
	assert.False(t, ok)
	assert.Nil(t, last.Load(), "no request is made")
}

func TestApplyUpdateSteps(t *testing.T) {
	shell := &fakeShell{native: true}
	s := NewSession(shell, "", "1.0.0", quietLogger())

	require.NoError(t, s.ApplyUpdate(context.Background(), Manifest{Version: "1.2.0", URL: "http://x/b"}))
	assert.Equal(t, []string{"download 1.2.0", "next 1.2.0", "reload"}, shell.steps)
	assert.Equal(t, StateApplying, s.State())
}

func TestApplyUpdateConcurrentCallIgnored(t *testing.T) {
	shell := &fakeShell{native: true, dlGate: make(chan struct{})}
	s := NewSession(shell, "", "1.0.0", quietLogger())
	m := Manifest{Version: "1.2.0", URL: "http://x/b"}

	done := make(chan error, 1)
	go func() { done <- s.ApplyUpdate(context.Background(), m) }()
	require.Eventually(t, func() bool { return s.State() == StateDownloading }, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, s.ApplyUpdate(context.Background(), m), ErrInProgress)
	close(shell.dlGate)
	require.NoError(t, <-done)
	assert.Equal(t, []string{"download 1.2.0", "next 1.2.0", "reload"}, shell.steps)
}

func TestApplyUpdateFailureAllowsRetry(t *testing.T) {
	shell := &fakeShell{native: true, dlErr: errors.New("disk full")}
	s := NewSession(shell, "", "1.0.0", quietLogger())
	m := Manifest{Version: "1.2.0", URL: "http://x/b"}

	require.Error(t, s.ApplyUpdate(context.Background(), m))
	assert.Equal(t, StateUpdateAvailable, s.State())

	shell.dlErr = nil
	assert.NoError(t, s.ApplyUpdate(context.Background(), m))
}

func TestNotifyReadyForwardsOnlyWhenNative(t *testing.T) {
	native := &fakeShell{native: true}
	require.NoError(t, NewSession(native, "", "1", quietLogger()).NotifyReady(context.Background()))
	assert.Equal(t, 1, native.readyHit)

	web := &fakeShell{}
	require.NoError(t, NewSession(web, "", "1", quietLogger()).NotifyReady(context.Background()))
	assert.Zero(t, web.readyHit)
}

func TestDiskShellLifecycle(t *testing.T) {
	artifact := []byte("bundle-contents-v2")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(artifact)
	}))
	defer srv.Close()

	_, store := testutil.TestBundles(t)
	reloads := 0
	shell, err := NewDiskShell(store, true, quietLogger(), WithReloader(func() error { reloads++; return nil }))
	require.NoError(t, err)

	booted, err := shell.Boot()
	require.NoError(t, err)
	assert.Nil(t, booted, "base app runs before any bundle")

	s := NewSession(shell, "", "1.0.0", quietLogger())
	require.NoError(t, s.ApplyUpdate(context.Background(), Manifest{Version: "2.0.0", URL: srv.URL}))
	assert.Equal(t, 1, reloads)
	assert.Equal(t, "", shell.CurrentVersion(), "staged bundle is not active until boot")

	// Simulated restart.
	shell, err = NewDiskShell(store, true, quietLogger())
	require.NoError(t, err)
	booted, err = shell.Boot()
	require.NoError(t, err)
	require.NotNil(t, booted)
	assert.Equal(t, "2.0.0", booted.Version)
	assert.Equal(t, checksum.Sum(artifact), booted.Checksum)
	data, err := store.Read(booted.Path)
	require.NoError(t, err)
	assert.Equal(t, artifact, data)

	require.NoError(t, shell.NotifyReady(context.Background()))

	// Confirmed bundles survive the next boot.
	shell, _ = NewDiskShell(store, true, quietLogger())
	booted, err = shell.Boot()
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", booted.Version)
}

func TestDiskShellRollsBackUnconfirmedBundle(t *testing.T) {
	_, store := testutil.TestBundles(t)
	shell, err := NewDiskShell(store, true, quietLogger())
	require.NoError(t, err)

	require.NoError(t, shell.SetNext(Bundle{Version: "1.1.0"}))
	b, _ := shell.Boot()
	require.Equal(t, "1.1.0", b.Version)
	require.NoError(t, shell.NotifyReady(context.Background()))

	require.NoError(t, shell.SetNext(Bundle{Version: "1.2.0"}))
	b, _ = shell.Boot()
	require.Equal(t, "1.2.0", b.Version)
	// 1.2.0 crashes before NotifyReady.

	shell, err = NewDiskShell(store, true, quietLogger())
	require.NoError(t, err)
	b, err = shell.Boot()
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, "1.1.0", b.Version)
	assert.Equal(t, "1.1.0", shell.CurrentVersion())
}

func TestDiskShellDownloadFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	_, store := testutil.TestBundles(t)
	shell, err := NewDiskShell(store, true, quietLogger())
	require.NoError(t, err)

	_, err = shell.Download(context.Background(), Manifest{Version: "3.0.0", URL: srv.URL})
	assert.Error(t, err)
}

func TestApplyUpdateRejectsIncompleteManifest(t *testing.T) {
	shell := &fakeShell{native: true}
	s := NewSession(shell, "", "1.0.0", quietLogger())

	err := s.ApplyUpdate(context.Background(), Manifest{Version: "1.2.0", URL: "  "})
	assert.ErrorIs(t, err, apperr.ErrInvalidFormat)
	assert.Empty(t, shell.steps)
	assert.Equal(t, StateIdle, s.State())
}
