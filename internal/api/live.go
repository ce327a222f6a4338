package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/starford/vocanote/internal/dictation"
	"github.com/starford/vocanote/internal/notestore"
	"github.com/starford/vocanote/internal/sse"
	"github.com/starford/vocanote/internal/transcribe"
)

const maxChunkBytes = 1 << 20

// ErrLiveIdle is returned when audio or a stop arrives with no live session.
var ErrLiveIdle = errors.New("api: no live transcription session")

// Publisher broadcasts events to the UI shell.
type Publisher interface {
	Publish(event sse.Event)
}

// LiveFeed relays a streaming transcription session to event subscribers.
// Final transcripts go through the recorder: the first one replaces the range
// captured at start, later ones are appended to the current note.
type LiveFeed struct {
	url      string
	apiKey   string
	notes    *notestore.Store
	recorder *dictation.Recorder
	events   Publisher
	logger   *slog.Logger

	mu      sync.Mutex
	session *transcribe.LiveSession
}

// NewLiveFeed creates a feed that dials url on Start.
func NewLiveFeed(url, apiKey string, notes *notestore.Store, recorder *dictation.Recorder, events Publisher, logger *slog.Logger) *LiveFeed {
	return &LiveFeed{url: url, apiKey: apiKey, notes: notes, recorder: recorder, events: events, logger: logger}
}

// Start opens a live session with live as the editor selection. Only one may
// run at a time. It reports whether a replacement range was captured.
func (f *LiveFeed) Start(ctx context.Context, live dictation.Selection) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session != nil {
		return false, transcribe.ErrLiveActive
	}
	captured, err := f.recorder.CaptureStream(live)
	if err != nil {
		return false, err
	}

	var s *transcribe.LiveSession
	s = transcribe.NewLiveSession(f.url, f.apiKey, transcribe.Callbacks{
		OnTranscript: f.transcript,
		OnError: func(err error) {
			f.logger.Warn("live transcription error", slog.String("error", err.Error()))
			f.events.Publish(sse.Event{Type: "transcript.error", Data: map[string]string{"error": err.Error()}})
		},
		OnConnectionChange: func(connected bool) {
			if !connected {
				f.mu.Lock()
				if f.session == s {
					f.session = nil
				}
				f.mu.Unlock()
			}
			f.events.Publish(sse.Event{Type: "transcript.connection", Data: map[string]bool{"connected": connected}})
		},
	})

	dialCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.Start(dialCtx); err != nil {
		f.recorder.Engine().Clear()
		return false, err
	}
	f.session = s
	return captured, nil
}

// Send forwards one audio chunk to the running session.
func (f *LiveFeed) Send(ctx context.Context, chunk []byte) error {
	f.mu.Lock()
	s := f.session
	f.mu.Unlock()
	if s == nil {
		return ErrLiveIdle
	}
	return s.Send(ctx, chunk)
}

// Stop closes the running session.
func (f *LiveFeed) Stop() error {
	f.mu.Lock()
	s := f.session
	f.session = nil
	f.mu.Unlock()
	if s == nil {
		return ErrLiveIdle
	}
	return s.Stop()
}

// Active reports whether a session is streaming.
func (f *LiveFeed) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session != nil
}

func (f *LiveFeed) transcript(text string, isFinal bool) {
	f.events.Publish(sse.Event{Type: "transcript", Data: map[string]any{"text": text, "isFinal": isFinal}})
	if !isFinal || !f.notes.Loaded() {
		return
	}
	if _, err := f.recorder.Deliver(text); err != nil {
		f.logger.Error("write live transcript failed", slog.String("error", err.Error()))
	}
}

// LiveStart handles POST /api/dictation/live/start. The body is the live
// editor selection, as for a recorded dictation, and may be empty.
func (h *DictationHandler) LiveStart(w http.ResponseWriter, r *http.Request) {
	feed, ok := h.liveFeed(w)
	if !ok {
		return
	}
	var req SelectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	captured, err := feed.Start(r.Context(), req)
	if err != nil {
		writeError(w, "start live transcription", err)
		return
	}
	writeJSON(w, http.StatusOK, StartDictationResponse{Captured: captured})
}

// LiveAudio handles POST /api/dictation/live/audio. The body is one raw
// audio chunk.
func (h *DictationHandler) LiveAudio(w http.ResponseWriter, r *http.Request) {
	feed, ok := h.liveFeed(w)
	if !ok {
		return
	}
	chunk, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxChunkBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("audio chunk too large"))
		return
	}
	if len(chunk) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("empty audio chunk"))
		return
	}
	if err := feed.Send(r.Context(), chunk); err != nil {
		writeError(w, "send live audio", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// LiveStop handles POST /api/dictation/live/stop.
func (h *DictationHandler) LiveStop(w http.ResponseWriter, _ *http.Request) {
	feed, ok := h.liveFeed(w)
	if !ok {
		return
	}
	if err := feed.Stop(); err != nil {
		writeError(w, "stop live transcription", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DictationHandler) liveFeed(w http.ResponseWriter) (*LiveFeed, bool) {
	if h.svc.Live == nil {
		writeJSON(w, http.StatusNotFound, errorBody("live transcription not configured"))
		return nil, false
	}
	return h.svc.Live, true
}
