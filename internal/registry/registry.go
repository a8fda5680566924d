// Package registry is the durable store of rotation targets. It knows nothing
// about scheduling: it validates, persists and hands out copies of targets,
// and lets exactly one caller (the scheduler's outcome recording) advance
// their usage counters.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/attune/internal/apperr"
	"github.com/starford/attune/internal/models"
	"github.com/starford/attune/internal/scan"
)

// Registry holds the in-memory view of the targets and mirrors every
// mutation to its Store before acknowledging it.
type Registry struct {
	// writeMu serialises mutations, including their store writes.
	writeMu sync.Mutex

	mu      sync.RWMutex
	targets map[string]models.Target
	order   []string
	nextPos int64

	store   Store
	counter scan.Counter
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for best-effort failures.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithClock sets the time source for timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithIDGenerator replaces the uuid generator.
func WithIDGenerator(gen func() string) Option {
	return func(r *Registry) { r.newID = gen }
}

// Open loads the registry from store. counter may be nil, in which case item
// counts stay at zero.
func Open(ctx context.Context, store Store, counter scan.Counter, opts ...Option) (*Registry, error) {
	if store == nil {
		return nil, fmt.Errorf("registry: store is required")
	}
	r := &Registry{
		targets: make(map[string]models.Target),
		store:   store,
		counter: counter,
		logger:  slog.Default(),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrStorage, err)
	}
	for _, t := range loaded {
		if _, dup := r.targets[t.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate target id %s in snapshot", apperr.ErrStorage, t.ID)
		}
		r.targets[t.ID] = t
		r.order = append(r.order, t.ID)
		if t.Position >= r.nextPos {
			r.nextPos = t.Position + 1
		}
	}
	return r, nil
}

// Len returns the number of registered targets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Create registers a new target and scans its locator once.
func (r *Registry) Create(ctx context.Context, in models.TargetInput) (models.Target, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	now := r.now().UTC()
	t := models.Target{
		ID:                 r.newID(),
		Name:               strings.TrimSpace(in.Name),
		Category:           in.Category,
		SourceType:         in.SourceType,
		Locator:            strings.TrimSpace(in.Locator),
		MantraPreference:   in.MantraPreference,
		Intentions:         models.UniqueStrings(in.Intentions),
		RepetitionsPerItem: in.RepetitionsPerItem,
		DisplayDurationMs:  in.DisplayDurationMs,
		Priority:           in.Priority,
		IsUrgent:           in.IsUrgent,
		IsActive:           true,
		Tags:               models.UniqueStrings(in.Tags),
		Notes:              in.Notes,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if in.IsActive != nil {
		t.IsActive = *in.IsActive
	}
	if t.Category == "" {
		t.Category = models.CategoryOther
	}
	if t.SourceType == "" {
		t.SourceType = models.InferSourceType(t.Locator)
	}
	if t.RepetitionsPerItem == 0 {
		t.RepetitionsPerItem = models.DefaultRepetitionsPerItem
	}
	if t.DisplayDurationMs == 0 {
		t.DisplayDurationMs = models.DefaultDisplayDurationMs
	}
	if t.Priority == 0 {
		t.Priority = models.DefaultPriority
	}
	if err := t.Validate(); err != nil {
		return models.Target{}, fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	t.ItemCount = r.count(ctx, t)

	r.mu.RLock()
	t.Position = r.nextPos
	next, order := r.cloneLocked()
	r.mu.RUnlock()

	next[t.ID] = t
	order = append(order, t.ID)
	if err := r.commit(ctx, next, order); err != nil {
		return models.Target{}, err
	}
	r.mu.Lock()
	r.nextPos++
	r.mu.Unlock()
	return t.Clone(), nil
}

// Get returns a copy of the target.
func (r *Registry) Get(_ context.Context, id string) (models.Target, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.targets[id]
	if !ok {
		return models.Target{}, fmt.Errorf("%w: target %s", apperr.ErrNotFound, id)
	}
	return t.Clone(), nil
}

// List returns matching targets in registration order.
func (r *Registry) List(_ context.Context, f models.TargetFilter) ([]models.Target, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Target, 0, len(r.order))
	for _, id := range r.order {
		t := r.targets[id]
		if f.Match(t) {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

// Update merges the supplied fields. Usage counters cannot be changed here.
func (r *Registry) Update(ctx context.Context, id string, p models.TargetPatch) (models.Target, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	current, err := r.Get(ctx, id)
	if err != nil {
		return models.Target{}, err
	}
	updated := current.Clone()
	p.Apply(&updated)
	if err := updated.Validate(); err != nil {
		return models.Target{}, fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	if p.TouchesLocator() && (updated.Locator != current.Locator || updated.SourceType != current.SourceType) {
		updated.ItemCount = r.count(ctx, updated)
	}
	updated.UpdatedAt = r.now().UTC()
	return r.replace(ctx, updated)
}

// Delete removes the target permanently, usage counters included.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.RLock()
	_, ok := r.targets[id]
	next, order := r.cloneLocked()
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: target %s", apperr.ErrNotFound, id)
	}

	delete(next, id)
	kept := order[:0]
	for _, oid := range order {
		if oid != id {
			kept = append(kept, oid)
		}
	}
	return r.commit(ctx, next, kept)
}

// RecordOutcome adds a served cycle to the target's usage counters. Counters
// only ever grow; negative deltas are rejected.
func (r *Registry) RecordOutcome(ctx context.Context, id string, d models.OutcomeDelta) (models.Target, error) {
	if err := d.Validate(); err != nil {
		return models.Target{}, fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	t, err := r.Get(ctx, id)
	if err != nil {
		return models.Target{}, err
	}
	t.Usage.TotalServings += d.Servings
	t.Usage.TotalRepetitionsDone += d.Repetitions
	t.Usage.TotalDurationMs += d.Duration.Milliseconds()
	if !d.ServedAt.IsZero() {
		served := d.ServedAt.UTC()
		if t.Usage.LastServedAt == nil || served.After(*t.Usage.LastServedAt) {
			t.Usage.LastServedAt = &served
		}
	}
	t.UpdatedAt = r.now().UTC()
	return r.replace(ctx, t)
}

// RefreshItemCount rescans the target's locator. Scan failures are logged
// and leave the count at zero.
func (r *Registry) RefreshItemCount(ctx context.Context, id string) (models.Target, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	t, err := r.Get(ctx, id)
	if err != nil {
		return models.Target{}, err
	}
	n := r.count(ctx, t)
	if n == t.ItemCount {
		return t, nil
	}
	t.ItemCount = n
	t.UpdatedAt = r.now().UTC()
	return r.replace(ctx, t)
}

// replace swaps in t for an existing id. Callers hold writeMu.
func (r *Registry) replace(ctx context.Context, t models.Target) (models.Target, error) {
	r.mu.RLock()
	next, order := r.cloneLocked()
	r.mu.RUnlock()
	if _, ok := next[t.ID]; !ok {
		return models.Target{}, fmt.Errorf("%w: target %s", apperr.ErrNotFound, t.ID)
	}
	next[t.ID] = t
	if err := r.commit(ctx, next, order); err != nil {
		return models.Target{}, err
	}
	return t.Clone(), nil
}

// commit persists the next snapshot and only then makes it visible.
func (r *Registry) commit(ctx context.Context, next map[string]models.Target, order []string) error {
	list := make([]models.Target, 0, len(order))
	for _, id := range order {
		list = append(list, next[id])
	}
	if err := r.store.Save(ctx, list); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrStorage, err)
	}
	r.mu.Lock()
	r.targets = next
	r.order = order
	r.mu.Unlock()
	return nil
}

// cloneLocked copies the current state; callers hold mu for reading.
func (r *Registry) cloneLocked() (map[string]models.Target, []string) {
	next := make(map[string]models.Target, len(r.targets)+1)
	for id, t := range r.targets {
		next[id] = t
	}
	order := make([]string, len(r.order), len(r.order)+1)
	copy(order, r.order)
	return next, order
}

func (r *Registry) count(ctx context.Context, t models.Target) int {
	if r.counter == nil {
		return 0
	}
	n, err := r.counter.Count(ctx, t.SourceType, t.Locator)
	if err != nil {
		r.logger.Warn("registry: item count failed",
			slog.String("target_id", t.ID),
			slog.String("locator", t.Locator),
			slog.String("error", err.Error()))
		return 0
	}
	return n
}
