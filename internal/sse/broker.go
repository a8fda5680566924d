// Package sse streams registry and rotation events to HTTP clients as
// Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/attune/internal/scheduler"
)

// Event is one named SSE message.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// message is a rendered frame on its way to the clients. rotationID is empty
// for events that do not belong to a rotation.
type message struct {
	rotationID string
	raw        []byte
}

// subscription is a client channel plus its optional rotation filter.
type subscription struct {
	ch         chan []byte
	rotationID string
}

func (s subscription) wants(m message) bool {
	return s.rotationID == "" || s.rotationID == m.rotationID
}

// Broker fans events out to connected clients.
//
// A single loop goroutine owns the client set and the progress throttle
// timestamps. Public methods only talk to it over channels.
type Broker struct {
	progressMin time.Duration

	joinCh  chan subscription
	leaveCh chan chan []byte
	eventCh chan Event
	rotCh   chan scheduler.Event

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that forwards at most one rotation.progress
// event per rotation every progressThrottle.
func NewBroker(progressThrottle time.Duration) *Broker {
	if progressThrottle <= 0 {
		progressThrottle = 2 * time.Second
	}
	b := &Broker{
		progressMin: progressThrottle,
		joinCh:      make(chan subscription),
		leaveCh:     make(chan chan []byte),
		eventCh:     make(chan Event, 256),
		rotCh:       make(chan scheduler.Event, 256),
		stopCh:      make(chan struct{}),
		stopped:     make(chan struct{}),
	}
	go b.loop()
	return b
}

func (b *Broker) loop() {
	defer close(b.stopped)

	clients := make(map[chan []byte]subscription)
	lastProgress := make(map[string]time.Time)

	send := func(m message) {
		for ch, sub := range clients {
			if !sub.wants(m) {
				continue
			}
			select {
			case ch <- m.raw:
			default:
				// slow client, drop the frame
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

		case sub := <-b.joinCh:
			clients[sub.ch] = sub

		case ch := <-b.leaveCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case ev := <-b.eventCh:
			if m, ok := render(ev.Type, ev.Data); ok {
				send(m)
			}

		case ev := <-b.rotCh:
			if ev.Type == scheduler.EventProgress {
				now := time.Now()
				if now.Sub(lastProgress[ev.RotationID]) < b.progressMin {
					continue
				}
				lastProgress[ev.RotationID] = now
			} else if ev.Type == scheduler.EventRotationStopped {
				delete(lastProgress, ev.RotationID)
			}
			if m, ok := render(string(ev.Type), ev); ok {
				m.rotationID = ev.RotationID
				send(m)
			}
		}
	}
}

func render(eventType string, data any) (message, bool) {
	payload, err := json.Marshal(data)
	if err != nil {
		return message{}, false
	}
	return message{raw: fmt.Appendf(nil, "event: %s\ndata: %s\n\n", eventType, payload)}, true
}

// Close stops the loop and closes every client channel. It is safe to call
// more than once.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client. A non-empty rotationID limits the client to
// that rotation's events. The returned channel is closed by Unsubscribe or
// Close.
func (b *Broker) Subscribe(rotationID string) chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.joinCh <- subscription{ch: ch, rotationID: rotationID}:
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
	case b.leaveCh <- ch:
	case <-b.stopped:
	}
}

// Publish sends a registry event to every unfiltered client.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.eventCh <- event:
	case <-b.stopped:
	}
}

// Notify implements scheduler.Observer. Progress events are dropped rather
// than queued when the loop is behind.
func (b *Broker) Notify(ev scheduler.Event) {
	if b.closed.Load() {
		return
	}
	if ev.Type == scheduler.EventProgress {
		select {
		case b.rotCh <- ev:
		default:
		}
		return
	}
	select {
	case b.rotCh <- ev:
	case <-b.stopped:
	}
}

// ServeHTTP streams events until the client goes away (GET /api/events).
// The optional rotation query parameter narrows the stream to one rotation.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe(r.URL.Query().Get("rotation"))
	defer b.Unsubscribe(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case raw, ok := <-ch:
			if !ok {
				return
			}
			if _, err := w.Write(raw); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

var _ scheduler.Observer = (*Broker)(nil)
