package display

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/attune/internal/apperr"
	"github.com/starford/attune/internal/models"
	"github.com/starford/attune/internal/scan"
)

type localSession struct {
	id       string
	cfg      TargetConfig
	items    []string
	item     int
	reps     int
	carry    time.Duration
	paused   bool
	stats    Stats
	openedAt time.Time
}

// Local is an in-process Engine over directory and URL locators. It keeps
// no external resources open; a session is the cursor over the item list.
type Local struct {
	mu       sync.Mutex
	sessions map[string]*localSession
	logger   *slog.Logger
}

// NewLocal creates a Local engine. A nil logger falls back to slog.Default.
func NewLocal(logger *slog.Logger) *Local {
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{
		sessions: make(map[string]*localSession),
		logger:   logger,
	}
}

// Open resolves the target's items. A directory without displayable items
// cannot be shown and fails with ErrSubSession.
func (l *Local) Open(ctx context.Context, cfg TargetConfig) (string, error) {
	if cfg.DisplayDuration <= 0 {
		return "", fmt.Errorf("%w: display duration must be positive", apperr.ErrValidation)
	}
	if cfg.RepetitionsPerItem <= 0 {
		cfg.RepetitionsPerItem = models.DefaultRepetitionsPerItem
	}

	var items []string
	switch cfg.SourceType {
	case models.SourceURL:
		items = []string{cfg.Locator}
	case models.SourceDirectory:
		found, err := scan.ListItems(ctx, cfg.Locator)
		if err != nil {
			return "", fmt.Errorf("%w: %v", apperr.ErrSubSession, err)
		}
		items = found
	default:
		return "", fmt.Errorf("%w: unknown source type %q", apperr.ErrSubSession, cfg.SourceType)
	}
	if len(items) == 0 {
		return "", fmt.Errorf("%w: no items under %s", apperr.ErrSubSession, cfg.Locator)
	}

	s := &localSession{
		id:       uuid.NewString(),
		cfg:      cfg,
		items:    items,
		openedAt: time.Now(),
	}
	l.mu.Lock()
	l.sessions[s.id] = s
	l.mu.Unlock()

	l.logger.Debug("display: session opened",
		slog.String("session_id", s.id),
		slog.String("target_id", cfg.TargetID),
		slog.Int("items", len(items)))
	return s.id, nil
}

// Advance adds d of display time. Every full display interval completes one
// repetition of the current item; the last repetition serves the item and
// moves to the next one, wrapping at the end. Paused sessions do not move.
func (l *Local) Advance(id string, d time.Duration) (Progress, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, err := l.lookupLocked(id)
	if err != nil {
		return Progress{}, err
	}
	if s.paused || d <= 0 {
		return Progress{CurrentItem: s.items[s.item]}, nil
	}

	var p Progress
	s.stats.DurationElapsed += d
	s.carry += d
	for s.carry >= s.cfg.DisplayDuration {
		s.carry -= s.cfg.DisplayDuration
		s.reps++
		p.RepetitionsDone++
		if s.reps >= s.cfg.RepetitionsPerItem {
			s.reps = 0
			s.item = (s.item + 1) % len(s.items)
			p.ItemsShown++
		}
	}
	s.stats.RepetitionsTotal += p.RepetitionsDone
	s.stats.ItemsServed += p.ItemsShown
	p.CurrentItem = s.items[s.item]
	return p, nil
}

// Stats returns the session totals.
func (l *Local) Stats(id string) (Stats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, err := l.lookupLocked(id)
	if err != nil {
		return Stats{}, err
	}
	return s.stats, nil
}

// Pause freezes the session until Resume.
func (l *Local) Pause(id string) error {
	return l.setPaused(id, true)
}

// Resume continues a paused session.
func (l *Local) Resume(id string) error {
	return l.setPaused(id, false)
}

// Close discards the session and returns its final totals.
func (l *Local) Close(id string) (Stats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, err := l.lookupLocked(id)
	if err != nil {
		return Stats{}, err
	}
	delete(l.sessions, id)
	l.logger.Debug("display: session closed",
		slog.String("session_id", id),
		slog.Int64("items_served", s.stats.ItemsServed),
		slog.Duration("open_for", time.Since(s.openedAt)))
	return s.stats, nil
}

// Active returns the number of open sessions.
func (l *Local) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sessions)
}

func (l *Local) setPaused(id string, paused bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, err := l.lookupLocked(id)
	if err != nil {
		return err
	}
	s.paused = paused
	return nil
}

func (l *Local) lookupLocked(id string) (*localSession, error) {
	s, ok := l.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: display session %s", apperr.ErrNotFound, id)
	}
	return s, nil
}

var _ Engine = (*Local)(nil)
