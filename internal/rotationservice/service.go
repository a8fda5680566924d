// Package rotationservice is the application layer shared by the HTTP API
// and the MCP server. It fronts the registry, the reading engine and the
// rotation manager, fills request defaults and publishes target changes.
package rotationservice

import (
	"context"
	"time"

	"github.com/starford/attune/internal/models"
	"github.com/starford/attune/internal/reading"
	"github.com/starford/attune/internal/registry"
	"github.com/starford/attune/internal/scheduler"
)

// Target event types.
const (
	EventTargetCreated = "target.created"
	EventTargetUpdated = "target.updated"
	EventTargetDeleted = "target.deleted"
)

// PublishFunc broadcasts an event with a JSON-encodable payload.
type PublishFunc func(eventType string, data any)

// StartRequest overrides rotation defaults. Nil fields keep the default.
type StartRequest struct {
	DurationPerTargetMs *int64   `json:"duration_per_target_ms"`
	TransitionPauseMs   *int64   `json:"transition_pause_ms"`
	LinkReading         *bool    `json:"link_reading"`
	ContinuousMode      *bool    `json:"continuous_mode"`
	OnlyActive          *bool    `json:"only_active"`
	MinPriority         *int     `json:"min_priority"`
	MaxCycles           *int     `json:"max_cycles"`
	BaselineToneArm     *float64 `json:"baseline_tone_arm"`
	Sensitivity         *float64 `json:"sensitivity"`
}

// Apply returns base with the request's fields applied.
func (r StartRequest) Apply(base scheduler.Config) scheduler.Config {
	cfg := base
	if r.DurationPerTargetMs != nil {
		cfg.DurationPerTarget = time.Duration(*r.DurationPerTargetMs) * time.Millisecond
	}
	if r.TransitionPauseMs != nil {
		cfg.TransitionPause = time.Duration(*r.TransitionPauseMs) * time.Millisecond
	}
	if r.LinkReading != nil {
		cfg.LinkReading = *r.LinkReading
	}
	if r.ContinuousMode != nil {
		cfg.ContinuousMode = *r.ContinuousMode
	}
	if r.OnlyActive != nil {
		cfg.OnlyActive = *r.OnlyActive
	}
	if r.MinPriority != nil {
		cfg.MinPriority = *r.MinPriority
	}
	if r.MaxCycles != nil {
		cfg.MaxCycles = *r.MaxCycles
	}
	if r.BaselineToneArm != nil {
		cfg.Reading.BaselineToneArm = *r.BaselineToneArm
	}
	if r.Sensitivity != nil {
		cfg.Reading.Sensitivity = *r.Sensitivity
	}
	return cfg
}

// Service coordinates targets, readings and rotations.
type Service struct {
	targets   *registry.Registry
	readings  *reading.Engine
	rotations *scheduler.Manager
	defaults  scheduler.Config
	publish   PublishFunc
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sets where target change events go.
func WithPublisher(fn PublishFunc) Option {
	return func(s *Service) { s.publish = fn }
}

// New creates a Service. defaults fill the fields a StartRequest omits.
func New(targets *registry.Registry, readings *reading.Engine, rotations *scheduler.Manager, defaults scheduler.Config, opts ...Option) *Service {
	s := &Service{
		targets:   targets,
		readings:  readings,
		rotations: rotations,
		defaults:  defaults,
		publish:   func(string, any) {},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Defaults returns the rotation defaults.
func (s *Service) Defaults() scheduler.Config { return s.defaults }

// ListTargets returns targets matching f in registration order.
func (s *Service) ListTargets(ctx context.Context, f models.TargetFilter) ([]models.Target, error) {
	return s.targets.List(ctx, f)
}

// GetTarget returns one target.
func (s *Service) GetTarget(ctx context.Context, id string) (models.Target, error) {
	return s.targets.Get(ctx, id)
}

// CreateTarget registers a target.
func (s *Service) CreateTarget(ctx context.Context, in models.TargetInput) (models.Target, error) {
	t, err := s.targets.Create(ctx, in)
	if err != nil {
		return models.Target{}, err
	}
	s.publish(EventTargetCreated, t)
	return t, nil
}

// UpdateTarget applies a partial update.
func (s *Service) UpdateTarget(ctx context.Context, id string, p models.TargetPatch) (models.Target, error) {
	t, err := s.targets.Update(ctx, id, p)
	if err != nil {
		return models.Target{}, err
	}
	s.publish(EventTargetUpdated, t)
	return t, nil
}

// DeleteTarget removes a target and its usage history.
func (s *Service) DeleteTarget(ctx context.Context, id string) error {
	if err := s.targets.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(EventTargetDeleted, map[string]string{"id": id})
	return nil
}

// RefreshTarget rescans the target's locator.
func (s *Service) RefreshTarget(ctx context.Context, id string) (models.Target, error) {
	t, err := s.targets.RefreshItemCount(ctx, id)
	if err != nil {
		return models.Target{}, err
	}
	s.publish(EventTargetUpdated, t)
	return t, nil
}

// TargetRefreshed publishes a refresh made outside the service, such as by
// the locator watcher.
func (s *Service) TargetRefreshed(t models.Target) {
	s.publish(EventTargetUpdated, t)
}

// OpenReadingSession starts a standalone reading session. Nil params use the
// configured defaults.
func (s *Service) OpenReadingSession(p *reading.SessionParams) (reading.SessionInfo, error) {
	params := s.defaults.Reading
	if p != nil {
		params = *p
	}
	id, err := s.readings.CreateSession(params)
	if err != nil {
		return reading.SessionInfo{}, err
	}
	return s.readings.Get(id)
}

// TakeReading produces the next reading of a session.
func (s *Service) TakeReading(id string) (reading.Reading, error) {
	return s.readings.Produce(id)
}

// ReadingSummary aggregates a session without changing it.
func (s *Service) ReadingSummary(id string) (reading.Summary, error) {
	return s.readings.Summarize(id)
}

// CloseReadingSession summarises and discards a session.
func (s *Service) CloseReadingSession(id string) (reading.Summary, error) {
	return s.readings.Stop(id)
}

// StartRotation starts a rotation from the defaults overridden by req.
func (s *Service) StartRotation(ctx context.Context, req StartRequest) (scheduler.Status, error) {
	return s.rotations.Start(ctx, req.Apply(s.defaults))
}

// Rotations returns every rotation.
func (s *Service) Rotations() []scheduler.Status { return s.rotations.List() }

// RotationStatus returns one rotation.
func (s *Service) RotationStatus(id string) (scheduler.Status, error) {
	return s.rotations.Status(id)
}

// RotationQueue previews the next n queue entries.
func (s *Service) RotationQueue(id string, n int) ([]scheduler.QueueEntry, error) {
	return s.rotations.Queue(id, n)
}

// RotationStats returns the cumulative stats of a rotation.
func (s *Service) RotationStats(id string) (scheduler.Stats, error) {
	return s.rotations.Stats(id)
}

// PauseRotation pauses a running rotation.
func (s *Service) PauseRotation(id string) (scheduler.Status, error) {
	return s.rotations.Pause(id)
}

// ResumeRotation resumes a paused rotation.
func (s *Service) ResumeRotation(id string) (scheduler.Status, error) {
	return s.rotations.Resume(id)
}

// StopRotation stops a rotation and returns its frozen stats.
func (s *Service) StopRotation(ctx context.Context, id string) (scheduler.Stats, error) {
	return s.rotations.Stop(ctx, id)
}

var (
	_ scheduler.Registry = (*registry.Registry)(nil)
	_ scheduler.Readings = (*reading.Engine)(nil)
)
