// Package sse implements the Server-Sent Events feed the UI shell listens on
// for note, folder and dictation changes.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// historySize is how many recent messages a reconnecting client can replay.
const historySize = 128

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type subscribeReq struct {
	ch     chan []byte
	lastID uint64
}

type sent struct {
	id  uint64
	raw []byte
}

type changeReq struct {
	kind string
	id   string
}

// Broker manages SSE client connections and broadcasts events.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable state
// (clients and the coalescing timestamps). Public methods communicate with this
// loop through channels, so no mutexes are required.
//
// Changes that name a record are delivered as they come. Collection-wide
// changes (empty id) are coalesced: at most one per kind per throttle window,
// with a trailing delivery so the last one is never lost.
//
// Every message carries a sequence id. A client reconnecting with
// Last-Event-ID gets the messages it missed, as far back as the history goes.
type Broker struct {
	throttle  time.Duration
	heartbeat time.Duration

	subscribeCh   chan subscribeReq
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	changeCh      chan changeReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker with the given coalescing interval.
func NewBroker(throttle time.Duration) *Broker {
	if throttle <= 0 {
		throttle = 250 * time.Millisecond
	}

	b := &Broker{
		throttle:      throttle,
		heartbeat:     15 * time.Second,
		subscribeCh:   make(chan subscribeReq),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		changeCh:      make(chan changeReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var seq uint64
	history := make([]sent, 0, historySize)
	lastSent := make(map[string]time.Time)
	pending := make(map[string]struct{})
	ticker := time.NewTicker(b.throttle)
	defer ticker.Stop()

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		seq++
		raw := []byte(fmt.Sprintf("event: %s\nid: %d\ndata: %s\n\n", event.Type, seq, payload))
		if len(history) == historySize {
			history = append(history[:0], history[1:]...)
		}
		history = append(history, sent{id: seq, raw: raw})

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case req := <-b.subscribeCh:
			clients[req.ch] = struct{}{}
			if req.lastID == 0 {
				continue
			}
			for _, m := range history {
				if m.id <= req.lastID {
					continue
				}
				select {
				case req.ch <- m.raw:
				default:
				}
			}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.changeCh:
			if req.id != "" {
				broadcast(Event{Type: req.kind, Data: map[string]string{"id": req.id}})
				continue
			}
			now := time.Now()
			if now.Sub(lastSent[req.kind]) >= b.throttle {
				lastSent[req.kind] = now
				delete(pending, req.kind)
				broadcast(Event{Type: req.kind, Data: map[string]string{}})
			} else {
				pending[req.kind] = struct{}{}
			}

		case now := <-ticker.C:
			for kind := range pending {
				lastSent[kind] = now
				broadcast(Event{Type: kind, Data: map[string]string{}})
			}
			clear(pending)

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	return b.SubscribeFrom(0)
}

// SubscribeFrom adds a new client and first replays the retained messages
// after lastID. Zero replays nothing.
func (b *Broker) SubscribeFrom(lastID uint64) chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscribeReq{ch: ch, lastID: lastID}:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishChange announces a change of kind to record id, or to a whole
// collection when id is empty.
func (b *Broker) PublishChange(kind, id string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.changeCh <- changeReq{kind: kind, id: id}:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	lastID, _ := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64)
	ch := b.SubscribeFrom(lastID)
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(b.heartbeat)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": keep-alive\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
