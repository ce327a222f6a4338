package dictation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/starford/vocanote/internal/models"
	"github.com/starford/vocanote/internal/notestore"
	"github.com/starford/vocanote/internal/transcribe"
)

// State is the recorder's position in a dictation.
type State string

const (
	StateIdle         State = "idle"
	StateRecording    State = "recording"
	StateTranscribing State = "transcribing"
)

var (
	// ErrBusy is returned by Start while a dictation is already running.
	ErrBusy = errors.New("dictation: already recording")
	// ErrNotRecording is returned by Finish outside of a recording.
	ErrNotRecording = errors.New("dictation: not recording")
	// ErrCancelled is returned by Finish when Cancel won the race with the transcript.
	ErrCancelled = errors.New("dictation: cancelled")
)

// Notes is the part of the note store a dictation writes through.
type Notes interface {
	Current() (*models.Note, bool)
	UpdateBody(id, body string) (*models.Note, error)
	AppendTranscript(text string) (*models.Note, error)
	Subscribe(fn func(notestore.Event)) (unsubscribe func())
}

// Recorder drives one dictation at a time: Start captures the selection,
// Finish transcribes and writes, Cancel abandons.
type Recorder struct {
	notes       Notes
	transcriber transcribe.Transcriber
	engine      *Engine
	logger      *slog.Logger
	unsubscribe func()

	mu     sync.Mutex
	state  State
	noteID string
	gen    uint64
	// streamNoteID is the note a streaming session captured its range in.
	streamNoteID string
}

// NewRecorder creates an idle recorder. The capture is dropped whenever the
// current note changes.
func NewRecorder(notes Notes, transcriber transcribe.Transcriber, logger *slog.Logger) *Recorder {
	r := &Recorder{
		notes:       notes,
		transcriber: transcriber,
		engine:      &Engine{},
		logger:      logger,
		state:       StateIdle,
	}
	r.unsubscribe = notes.Subscribe(func(ev notestore.Event) {
		if ev.Kind == notestore.EventCurrentChanged {
			r.engine.Clear()
		}
	})
	return r
}

// Close detaches the recorder from the note store.
func (r *Recorder) Close() {
	r.unsubscribe()
}

// Engine exposes the selection engine for selection-change events and the
// recording overlay.
func (r *Recorder) Engine() *Engine {
	return r.engine
}

// State reports the current dictation state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start begins recording. live is the editor's selection at this moment. It
// reports whether a replacement range was captured.
func (r *Recorder) Start(live Selection) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateIdle {
		return false, ErrBusy
	}
	r.state = StateRecording
	r.gen++
	r.noteID = ""
	if cur, ok := r.notes.Current(); ok {
		r.noteID = cur.ID
		return r.engine.Capture(live), nil
	}
	r.engine.Clear()
	return false, nil
}

// Cancel abandons the dictation without touching any note.
func (r *Recorder) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reset()
}

// Finish transcribes the recorded audio and writes the result. With a
// captured range the text replaces it in the captured body, otherwise it is
// appended. The returned note is nil when the transcript was blank.
func (r *Recorder) Finish(ctx context.Context, audioBase64, mimeType string) (*models.Note, error) {
	r.mu.Lock()
	if r.state != StateRecording {
		r.mu.Unlock()
		return nil, ErrNotRecording
	}
	r.state = StateTranscribing
	gen := r.gen
	r.mu.Unlock()

	text, err := r.transcriber.Transcribe(ctx, audioBase64, mimeType)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen != gen || r.state != StateTranscribing {
		return nil, ErrCancelled
	}
	noteID := r.noteID
	if err != nil {
		r.reset()
		r.logger.Warn("dictation: transcription failed", slog.String("error", err.Error()))
		if !errors.Is(err, transcribe.ErrTranscription) {
			err = fmt.Errorf("%w: %v", transcribe.ErrTranscription, err)
		}
		return nil, err
	}

	text = strings.TrimSpace(text)
	spliced, captured := r.engine.Complete(text)
	r.reset()
	if text == "" {
		return nil, nil
	}
	if captured {
		// The captured body is used even if the note changed since capture.
		return r.notes.UpdateBody(noteID, spliced)
	}
	return r.notes.AppendTranscript(text)
}

// CaptureStream fixes the replacement range for a streaming session, the way
// Start does for a recording. The first final transcript is spliced over it.
func (r *Recorder) CaptureStream(live Selection) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateIdle {
		return false, ErrBusy
	}
	r.streamNoteID = ""
	cur, ok := r.notes.Current()
	if !ok {
		r.engine.Clear()
		return false, nil
	}
	if !r.engine.Capture(live) {
		return false, nil
	}
	r.streamNoteID = cur.ID
	return true, nil
}

// Deliver writes one final streamed transcript. It replaces the range taken
// by CaptureStream when one is still held, and is appended otherwise. Blank
// text is ignored.
func (r *Recorder) Deliver(text string) (*models.Note, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	noteID := r.streamNoteID
	r.streamNoteID = ""
	if noteID != "" && r.state == StateIdle {
		if spliced, ok := r.engine.Complete(text); ok {
			return r.notes.UpdateBody(noteID, spliced)
		}
	}
	return r.notes.AppendTranscript(text)
}

func (r *Recorder) reset() {
	r.state = StateIdle
	r.gen++
	r.noteID = ""
	r.engine.Clear()
}
