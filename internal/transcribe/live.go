package transcribe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Callbacks receive live session output. Any of them may be nil.
type Callbacks struct {
	OnTranscript       func(text string, isFinal bool)
	OnError            func(err error)
	OnConnectionChange func(connected bool)
}

type liveFrame struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"isFinal"`
	Error   string `json:"error,omitempty"`
}

// ErrLiveActive is returned by Start on a session that is already streaming.
var ErrLiveActive = errors.New("transcribe: live session already active")

// LiveSession streams audio over a websocket and reports partial and final
// transcripts as they arrive.
type LiveSession struct {
	url    string
	apiKey string
	cb     Callbacks

	mu      sync.Mutex
	conn    *websocket.Conn
	stopped bool
	done    chan struct{}
}

// NewLiveSession prepares a session against url. Nothing is dialled until Start.
func NewLiveSession(url, apiKey string, cb Callbacks) *LiveSession {
	return &LiveSession{url: url, apiKey: apiKey, cb: cb}
}

// Start dials the service and begins delivering transcripts.
func (s *LiveSession) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return ErrLiveActive
	}

	opts := &websocket.DialOptions{HTTPHeader: http.Header{}}
	if s.apiKey != "" {
		opts.HTTPHeader.Set("Authorization", "Bearer "+s.apiKey)
	}
	conn, _, err := websocket.Dial(ctx, s.url, opts)
	if err != nil {
		return fmt.Errorf("%w: dial live session: %v", ErrTranscription, err)
	}
	s.conn = conn
	s.stopped = false
	s.done = make(chan struct{})
	s.connectionChanged(true)

	go s.readLoop(conn, s.done)
	return nil
}

// Send streams one chunk of audio.
func (s *LiveSession) Send(ctx context.Context, chunk []byte) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("%w: live session not started", ErrTranscription)
	}
	if err := conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
		return fmt.Errorf("%w: send audio: %v", ErrTranscription, err)
	}
	return nil
}

// Stop closes the connection normally and waits for the reader to exit.
// Stopping an idle session is a no-op.
func (s *LiveSession) Stop() error {
	s.mu.Lock()
	conn, done := s.conn, s.done
	s.stopped = true
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	err := conn.Close(websocket.StatusNormalClosure, "")
	<-done
	if err != nil && !isNormalClose(err) {
		return fmt.Errorf("transcribe: close live session: %w", err)
	}
	return nil
}

func (s *LiveSession) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	defer func() {
		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		s.mu.Unlock()
		s.connectionChanged(false)
	}()

	ctx := context.Background()
	for {
		var frame liveFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			s.mu.Lock()
			stopped := s.stopped
			s.mu.Unlock()
			if !stopped && !isNormalClose(err) {
				s.fail(fmt.Errorf("%w: %v", ErrTranscription, err))
			}
			return
		}
		if frame.Error != "" {
			s.fail(fmt.Errorf("%w: %s", ErrTranscription, frame.Error))
			continue
		}
		if s.cb.OnTranscript != nil {
			s.cb.OnTranscript(frame.Text, frame.IsFinal)
		}
	}
}

func (s *LiveSession) fail(err error) {
	if s.cb.OnError != nil {
		s.cb.OnError(err)
	}
}

func (s *LiveSession) connectionChanged(connected bool) {
	if s.cb.OnConnectionChange != nil {
		s.cb.OnConnectionChange(connected)
	}
}

func isNormalClose(err error) bool {
	return websocket.CloseStatus(err) == websocket.StatusNormalClosure
}
