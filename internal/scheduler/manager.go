package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/attune/internal/apperr"
	"github.com/starford/attune/internal/display"
	"github.com/starford/attune/internal/models"
)

// Manager owns the rotations of the process. Rotations live in memory only.
type Manager struct {
	registry Registry
	readings Readings
	display  display.Engine
	policy   Policy
	observer Observer
	logger   *slog.Logger

	heartbeat time.Duration
	now       func() time.Time
	newID     func() string

	// ctx bounds every worker; cancelled by Shutdown.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	closed   bool
	sessions map[string]*session
	order    []string
}

var errShutDown = fmt.Errorf("%w: scheduler is shut down", apperr.ErrInvalidState)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithHeartbeat sets the worker checkpoint interval.
func WithHeartbeat(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.heartbeat = d
		}
	}
}

// WithDisplay sets the display engine. Without one, targets are served by
// the reading session alone.
func WithDisplay(e display.Engine) Option {
	return func(m *Manager) { m.display = e }
}

// WithPolicy replaces the RoundRobin queue policy.
func WithPolicy(p Policy) Option {
	return func(m *Manager) { m.policy = p }
}

// WithObserver sets the event sink.
func WithObserver(o Observer) Option {
	return func(m *Manager) { m.observer = o }
}

// WithClock sets the time source for timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager. readings may be nil, in which case
// LinkReading has no effect.
func NewManager(registry Registry, readings Readings, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		registry:  registry,
		readings:  readings,
		policy:    RoundRobin{},
		observer:  nopObserver{},
		logger:    slog.Default(),
		heartbeat: DefaultHeartbeat,
		now:       time.Now,
		newID:     uuid.NewString,
		ctx:       ctx,
		cancel:    cancel,
		sessions:  make(map[string]*session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Heartbeat returns the worker checkpoint interval.
func (m *Manager) Heartbeat() time.Duration { return m.heartbeat }

// Start snapshots the eligible targets and launches the rotation worker.
func (m *Manager) Start(ctx context.Context, cfg Config) (Status, error) {
	if err := cfg.Validate(); err != nil {
		return Status{}, fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	if m.isClosed() {
		return Status{}, errShutDown
	}
	targets, err := m.registry.List(ctx, models.TargetFilter{
		OnlyActive:  cfg.OnlyActive,
		MinPriority: cfg.MinPriority,
	})
	if err != nil {
		return Status{}, fmt.Errorf("scheduler: list targets: %w", err)
	}
	targets = m.policy.Order(targets)
	if len(targets) == 0 {
		return Status{}, fmt.Errorf("%w: no eligible targets", apperr.ErrEmptyQueue)
	}

	queue := make([]QueueEntry, len(targets))
	for i, t := range targets {
		queue[i] = QueueEntry{Position: i, TargetID: t.ID, Name: t.Name}
	}
	s := newSession(m.newID(), cfg, queue, m.now().UTC())
	s.state.Store(int32(StateRunning))

	// Registration and wg.Add share the lock Shutdown takes, so a worker is
	// either visible to Shutdown or never started.
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Status{}, errShutDown
	}
	m.sessions[s.id] = s
	m.order = append(m.order, s.id)
	m.wg.Add(1)
	m.mu.Unlock()

	m.logger.Info("scheduler: rotation started",
		slog.String("rotation_id", s.id),
		slog.Int("queue", len(queue)),
		slog.Bool("continuous", cfg.ContinuousMode))
	m.emit(s, Event{Type: EventRotationStarted})

	go m.run(s)
	return s.status(), nil
}

// Pause holds a running rotation at its next heartbeat.
func (m *Manager) Pause(id string) (Status, error) {
	s, err := m.lookup(id)
	if err != nil {
		return Status{}, err
	}
	if !s.state.CompareAndSwap(int32(StateRunning), int32(StatePaused)) {
		return Status{}, fmt.Errorf("%w: cannot pause a %s rotation", apperr.ErrInvalidState, s.State())
	}
	m.logger.Info("scheduler: rotation paused", slog.String("rotation_id", id))
	m.emit(s, Event{Type: EventRotationPaused})
	return s.status(), nil
}

// Resume continues a paused rotation from the elapsed time it was paused at.
func (m *Manager) Resume(id string) (Status, error) {
	s, err := m.lookup(id)
	if err != nil {
		return Status{}, err
	}
	if !s.state.CompareAndSwap(int32(StatePaused), int32(StateRunning)) {
		return Status{}, fmt.Errorf("%w: cannot resume a %s rotation", apperr.ErrInvalidState, s.State())
	}
	m.logger.Info("scheduler: rotation resumed", slog.String("rotation_id", id))
	m.emit(s, Event{Type: EventRotationResumed})
	return s.status(), nil
}

// Stop ends the rotation, waits for the worker to close its sub-sessions and
// returns the frozen stats. Stopping a stopped rotation returns the same stats.
func (m *Manager) Stop(ctx context.Context, id string) (Stats, error) {
	s, err := m.lookup(id)
	if err != nil {
		return Stats{}, err
	}
	s.requestStop()
	select {
	case <-s.done:
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
	return s.status().Stats, nil
}

// Status returns a snapshot of the rotation.
func (m *Manager) Status(id string) (Status, error) {
	s, err := m.lookup(id)
	if err != nil {
		return Status{}, err
	}
	return s.status(), nil
}

// Stats returns the cumulative stats of the rotation.
func (m *Manager) Stats(id string) (Stats, error) {
	s, err := m.lookup(id)
	if err != nil {
		return Stats{}, err
	}
	return s.status().Stats, nil
}

// Queue returns up to n upcoming entries after the cursor without moving it.
func (m *Manager) Queue(id string, n int) ([]QueueEntry, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: n must not be negative", apperr.ErrValidation)
	}
	s, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	return s.upcoming(n), nil
}

// List returns every rotation in start order.
func (m *Manager) List() []Status {
	m.mu.RLock()
	ids := make([]string, len(m.order))
	copy(ids, m.order)
	m.mu.RUnlock()

	out := make([]Status, 0, len(ids))
	for _, id := range ids {
		if s, err := m.lookup(id); err == nil {
			out = append(out, s.status())
		}
	}
	return out
}

// Shutdown stops every rotation and waits for the workers, or for ctx.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	for _, s := range m.sessions {
		s.requestStop()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	defer m.cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) isClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

func (m *Manager) lookup(id string) (*session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: rotation %s", apperr.ErrNotFound, id)
	}
	return s, nil
}

func (m *Manager) emit(s *session, e Event) {
	e.RotationID = s.id
	if e.At.IsZero() {
		e.At = m.now().UTC()
	}
	e.Stats = s.status().Stats
	m.observer.Notify(e)
}
