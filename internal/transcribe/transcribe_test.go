package transcribe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

func TestHTTPClientTranscribe(t *testing.T) {
	var got transcribeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"text":"hello there"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "secret")
	text, err := c.Transcribe(context.Background(), "YXVkaW8=", "audio/webm")
	require.NoError(t, err)
	assert.Equal(t, "hello there", text)
	assert.Equal(t, transcribeRequest{Audio: "YXVkaW8=", MimeType: "audio/webm"}, got)
}

func TestHTTPClientFailures(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"error":"model offline"}`))
		},
		"bad json": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		},
		"missing text": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{}`))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()
			_, err := NewHTTPClient(srv.URL, "").Transcribe(context.Background(), "YQ==", "audio/wav")
			assert.ErrorIs(t, err, ErrTranscription)
		})
	}
}

func TestHTTPClientStatusMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"model offline"}`))
	}))
	defer srv.Close()
	_, err := NewHTTPClient(srv.URL, "").Transcribe(context.Background(), "YQ==", "audio/wav")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model offline")
}

func TestHTTPClientNoAudio(t *testing.T) {
	_, err := NewHTTPClient("http://127.0.0.1:0", "").Transcribe(context.Background(), "", "audio/wav")
	assert.ErrorIs(t, err, ErrTranscription)
}

func TestHTTPClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	_, err := NewHTTPClient(url, "").Transcribe(context.Background(), "YQ==", "audio/wav")
	assert.ErrorIs(t, err, ErrTranscription)
}

type liveEvents struct {
	mu          sync.Mutex
	transcripts []liveFrame
	errs        []error
	conn        []bool
}

func (e *liveEvents) callbacks() Callbacks {
	return Callbacks{
		OnTranscript: func(text string, isFinal bool) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.transcripts = append(e.transcripts, liveFrame{Text: text, IsFinal: isFinal})
		},
		OnError: func(err error) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.errs = append(e.errs, err)
		},
		OnConnectionChange: func(connected bool) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.conn = append(e.conn, connected)
		},
	}
}

func (e *liveEvents) snapshot() ([]liveFrame, []error, []bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]liveFrame(nil), e.transcripts...), append([]error(nil), e.errs...), append([]bool(nil), e.conn...)
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestLiveSessionStreamsTranscripts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close(websocket.StatusInternalError, "")
		ctx := r.Context()
		// Answer every audio chunk with a partial and a final frame.
		for {
			_, data, err := c.Read(ctx)
			if err != nil {
				return
			}
			_ = wsjson.Write(ctx, c, liveFrame{Text: "par", IsFinal: false})
			_ = wsjson.Write(ctx, c, liveFrame{Text: string(data), IsFinal: true})
		}
	}))
	defer srv.Close()

	ev := &liveEvents{}
	s := NewLiveSession(wsURL(srv.URL), "", ev.callbacks())
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	assert.ErrorIs(t, s.Start(ctx), ErrLiveActive)
	require.NoError(t, s.Send(ctx, []byte("partial words")))

	require.Eventually(t, func() bool {
		got, _, _ := ev.snapshot()
		return len(got) == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Stop())
	got, errs, conn := ev.snapshot()
	assert.Equal(t, []liveFrame{{Text: "par"}, {Text: "partial words", IsFinal: true}}, got)
	assert.Empty(t, errs)
	assert.Equal(t, []bool{true, false}, conn)
}

func TestLiveSessionReportsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		_ = wsjson.Write(r.Context(), c, liveFrame{Error: "quota exceeded"})
		_ = c.Close(websocket.StatusInternalError, "bye")
	}))
	defer srv.Close()

	ev := &liveEvents{}
	s := NewLiveSession(wsURL(srv.URL), "", ev.callbacks())
	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool {
		_, errs, conn := ev.snapshot()
		return len(errs) == 2 && len(conn) == 2
	}, 2*time.Second, 10*time.Millisecond)

	_, errs, _ := ev.snapshot()
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrTranscription)
	}
	assert.NoError(t, s.Stop())
}

func TestLiveSessionSendBeforeStart(t *testing.T) {
	s := NewLiveSession("ws://127.0.0.1:0", "", Callbacks{})
	assert.ErrorIs(t, s.Send(context.Background(), []byte("x")), ErrTranscription)
	assert.NoError(t, s.Stop())
}
