// Package scheduler rotates attention across registered targets.
//
// A rotation is started from a snapshot of the eligible targets. One worker
// goroutine serves the queue entry by entry: for each target it opens a
// reading session and a display session, drives them once per heartbeat until
// the per-target duration has elapsed, records the outcome in the registry and
// moves on. Pause and stop requests are observed at the next heartbeat.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/attune/internal/models"
	"github.com/starford/attune/internal/reading"
)

// DefaultHeartbeat is the checkpoint interval of the worker loop.
const DefaultHeartbeat = time.Second

// State is the lifecycle state of a rotation.
type State int32

const (
	StateCreated State = iota
	StateRunning
	StatePaused
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateRunning:
		return "RUNNING"
	case StatePaused:
		return "PAUSED"
	case StateStopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// MarshalText renders the state name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Registry is the part of the target registry a rotation needs.
type Registry interface {
	List(ctx context.Context, f models.TargetFilter) ([]models.Target, error)
	Get(ctx context.Context, id string) (models.Target, error)
	RecordOutcome(ctx context.Context, id string, d models.OutcomeDelta) (models.Target, error)
}

// Readings is the part of the reading engine a rotation needs.
type Readings interface {
	CreateSession(p reading.SessionParams) (string, error)
	Produce(id string) (reading.Reading, error)
	Stop(id string) (reading.Summary, error)
}

// Config controls one rotation.
type Config struct {
	DurationPerTarget time.Duration
	TransitionPause   time.Duration
	LinkReading       bool
	ContinuousMode    bool
	OnlyActive        bool
	MinPriority       int
	// MaxCycles stops the rotation after that many queue entries; 0 means
	// no limit.
	MaxCycles int
	// Reading parameterises linked reading sessions.
	Reading reading.SessionParams
}

// Validate rejects configs that cannot run.
func (c Config) Validate() error {
	fields := []*validation.FieldRules{
		validation.Field(&c.DurationPerTarget, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.TransitionPause, validation.Min(time.Duration(0))),
		validation.Field(&c.MinPriority, validation.Min(0), validation.Max(10)),
		validation.Field(&c.MaxCycles, validation.Min(0)),
	}
	// Reading parameters only matter for linked sessions.
	if c.LinkReading {
		fields = append(fields, validation.Field(&c.Reading))
	}
	return validation.ValidateStruct(&c, fields...)
}

// MarshalJSON renders durations in milliseconds.
func (c Config) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		DurationPerTargetMs int64                 `json:"duration_per_target_ms"`
		TransitionPauseMs   int64                 `json:"transition_pause_ms"`
		LinkReading         bool                  `json:"link_reading"`
		ContinuousMode      bool                  `json:"continuous_mode"`
		OnlyActive          bool                  `json:"only_active"`
		MinPriority         int                   `json:"min_priority"`
		MaxCycles           int                   `json:"max_cycles"`
		Reading             reading.SessionParams `json:"reading"`
	}{
		DurationPerTargetMs: c.DurationPerTarget.Milliseconds(),
		TransitionPauseMs:   c.TransitionPause.Milliseconds(),
		LinkReading:         c.LinkReading,
		ContinuousMode:      c.ContinuousMode,
		OnlyActive:          c.OnlyActive,
		MinPriority:         c.MinPriority,
		MaxCycles:           c.MaxCycles,
		Reading:             c.Reading,
	})
}

// Stats are the cumulative counters of a rotation. CycleCount counts queue
// entries processed, skipped ones included; CompletedCount only those served
// to the end of their duration.
type Stats struct {
	CycleCount          int64
	CompletedCount      int64
	SkippedCount        int64
	TotalDuration       time.Duration
	TotalRepetitions    int64
	TotalItemsServed    int64
	TotalFloatingEvents int64
}

// MarshalJSON renders durations in milliseconds.
func (s Stats) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		CycleCount          int64 `json:"cycle_count"`
		CompletedCount      int64 `json:"completed_count"`
		SkippedCount        int64 `json:"skipped_count"`
		TotalDurationMs     int64 `json:"total_duration_ms"`
		TotalRepetitions    int64 `json:"total_repetitions"`
		TotalItemsServed    int64 `json:"total_items_served"`
		TotalFloatingEvents int64 `json:"total_floating_events"`
	}{
		CycleCount:          s.CycleCount,
		CompletedCount:      s.CompletedCount,
		SkippedCount:        s.SkippedCount,
		TotalDurationMs:     s.TotalDuration.Milliseconds(),
		TotalRepetitions:    s.TotalRepetitions,
		TotalItemsServed:    s.TotalItemsServed,
		TotalFloatingEvents: s.TotalFloatingEvents,
	})
}

// QueueEntry is one slot of the rotation queue.
type QueueEntry struct {
	Position int    `json:"position"`
	TargetID string `json:"target_id"`
	Name     string `json:"name"`
}

// Status is a point-in-time view of a rotation.
type Status struct {
	ID          string
	State       State
	Cursor      int
	QueueLength int
	Current     *QueueEntry
	Elapsed     time.Duration
	Config      Config
	Stats       Stats
	StartedAt   time.Time
	StoppedAt   *time.Time
}

// MarshalJSON renders durations in milliseconds.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID          string      `json:"id"`
		State       State       `json:"state"`
		Cursor      int         `json:"cursor"`
		QueueLength int         `json:"queue_length"`
		Current     *QueueEntry `json:"current,omitempty"`
		ElapsedMs   int64       `json:"elapsed_ms"`
		Config      Config      `json:"config"`
		Stats       Stats       `json:"stats"`
		StartedAt   time.Time   `json:"started_at"`
		StoppedAt   *time.Time  `json:"stopped_at,omitempty"`
	}{
		ID:          s.ID,
		State:       s.State,
		Cursor:      s.Cursor,
		QueueLength: s.QueueLength,
		Current:     s.Current,
		ElapsedMs:   s.Elapsed.Milliseconds(),
		Config:      s.Config,
		Stats:       s.Stats,
		StartedAt:   s.StartedAt,
		StoppedAt:   s.StoppedAt,
	})
}
