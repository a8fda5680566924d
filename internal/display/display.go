// Package display drives the item slideshow shown for a rotation target.
//
// An Engine session walks a target's items in order, showing each one for
// the target's display interval, repetitionsPerItem times, before moving on.
// The scheduler opens one session per served target and advances it once per
// heartbeat.
package display

import (
	"context"
	"time"

	"github.com/starford/attune/internal/models"
)

// TargetConfig is what the scheduler hands the engine when opening a session.
type TargetConfig struct {
	TargetID           string
	Name               string
	SourceType         models.SourceType
	Locator            string
	RepetitionsPerItem int
	DisplayDuration    time.Duration
}

// ConfigFor builds the session config of a target.
func ConfigFor(t models.Target) TargetConfig {
	return TargetConfig{
		TargetID:           t.ID,
		Name:               t.Name,
		SourceType:         t.SourceType,
		Locator:            t.Locator,
		RepetitionsPerItem: t.RepetitionsPerItem,
		DisplayDuration:    t.DisplayDuration(),
	}
}

// Progress is the work done by a single Advance call.
type Progress struct {
	ItemsShown      int64  `json:"items_shown"`
	RepetitionsDone int64  `json:"repetitions_done"`
	CurrentItem     string `json:"current_item,omitempty"`
}

// Stats are the cumulative totals of a session.
type Stats struct {
	ItemsServed      int64         `json:"items_served"`
	RepetitionsTotal int64         `json:"repetitions_total"`
	DurationElapsed  time.Duration `json:"duration_elapsed"`
}

// Engine is a display backend.
type Engine interface {
	// Open starts a session for a target and returns its id.
	Open(ctx context.Context, cfg TargetConfig) (string, error)
	// Advance moves the session forward by d of display time.
	Advance(id string, d time.Duration) (Progress, error)
	// Stats returns the session totals.
	Stats(id string) (Stats, error)
	Pause(id string) error
	Resume(id string) error
	// Close ends the session and returns its final totals.
	Close(id string) (Stats, error)
}
