package scheduler

import (
	"encoding/json"
	"time"

	"github.com/starford/attune/internal/reading"
)

// EventType names a rotation lifecycle event.
type EventType string

const (
	EventRotationStarted EventType = "rotation.started"
	EventTargetStarted   EventType = "target.started"
	EventTargetCompleted EventType = "target.completed"
	EventTargetSkipped   EventType = "target.skipped"
	EventRotationPaused  EventType = "rotation.paused"
	EventRotationResumed EventType = "rotation.resumed"
	EventRotationStopped EventType = "rotation.stopped"
	EventProgress        EventType = "rotation.progress"
)

// Event is emitted to the Observer as a rotation runs.
type Event struct {
	Type        EventType
	RotationID  string
	TargetID    string
	TargetName  string
	Elapsed     time.Duration
	NeedleState reading.NeedleState
	Stats       Stats
	At          time.Time
}

// MarshalJSON renders durations in milliseconds.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type        EventType           `json:"type"`
		RotationID  string              `json:"rotation_id"`
		TargetID    string              `json:"target_id,omitempty"`
		TargetName  string              `json:"target_name,omitempty"`
		ElapsedMs   int64               `json:"elapsed_ms"`
		NeedleState reading.NeedleState `json:"needle_state,omitempty"`
		Stats       Stats               `json:"stats"`
		At          time.Time           `json:"at"`
	}{
		Type:        e.Type,
		RotationID:  e.RotationID,
		TargetID:    e.TargetID,
		TargetName:  e.TargetName,
		ElapsedMs:   e.Elapsed.Milliseconds(),
		NeedleState: e.NeedleState,
		Stats:       e.Stats,
		At:          e.At,
	})
}

// Observer receives rotation events. Notify is called from worker
// goroutines and must not block.
type Observer interface {
	Notify(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Notify implements Observer.
func (f ObserverFunc) Notify(e Event) { f(e) }

type nopObserver struct{}

func (nopObserver) Notify(Event) {}
