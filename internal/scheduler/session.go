package scheduler

import (
	"sync"
	"sync/atomic"
	"time"
)

// session is one rotation. The worker is the only writer of the progress
// fields; other goroutines read them through status under mu. The state flag
// is atomic so Pause and Stop never wait on the worker.
type session struct {
	id    string
	cfg   Config
	queue []QueueEntry

	state    atomic.Int32
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	mu        sync.Mutex
	cursor    int
	current   *QueueEntry
	elapsed   time.Duration
	stats     Stats
	startedAt time.Time
	stoppedAt *time.Time
}

func newSession(id string, cfg Config, queue []QueueEntry, now time.Time) *session {
	return &session{
		id:        id,
		cfg:       cfg,
		queue:     queue,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
		startedAt: now,
	}
}

// State returns the current lifecycle state.
func (s *session) State() State { return State(s.state.Load()) }

// requestStop marks the rotation stopped and wakes the worker.
func (s *session) requestStop() {
	s.state.Store(int32(StateStopped))
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *session) status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		ID:          s.id,
		State:       s.State(),
		Cursor:      s.cursor,
		QueueLength: len(s.queue),
		Elapsed:     s.elapsed,
		Config:      s.cfg,
		Stats:       s.stats,
		StartedAt:   s.startedAt,
	}
	if s.current != nil {
		cur := *s.current
		st.Current = &cur
	}
	if s.stoppedAt != nil {
		at := *s.stoppedAt
		st.StoppedAt = &at
	}
	return st
}

// upcoming lists up to n entries after the cursor. A finite rotation stops at
// the end of the queue or at its cycle limit; a continuous one wraps.
func (s *session) upcoming(n int) []QueueEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() == StateStopped {
		return []QueueEntry{}
	}
	if s.cfg.MaxCycles > 0 {
		left := s.cfg.MaxCycles - int(s.stats.CycleCount)
		if s.current != nil {
			left--
		}
		n = min(n, max(left, 0))
	}
	out := make([]QueueEntry, 0, n)
	for i := 1; len(out) < n; i++ {
		idx := s.cursor + i
		if idx >= len(s.queue) {
			if !s.cfg.ContinuousMode {
				break
			}
			idx %= len(s.queue)
		}
		out = append(out, s.queue[idx])
	}
	return out
}

func (s *session) begin(cursor int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = cursor
	entry := s.queue[cursor]
	s.current = &entry
	s.elapsed = 0
}

// fold applies one heartbeat of progress.
func (s *session) fold(elapsed time.Duration, st step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.TotalDuration += elapsed - s.elapsed
	s.elapsed = elapsed
	s.stats.TotalRepetitions += st.repetitions
	s.stats.TotalItemsServed += st.items
	s.stats.TotalFloatingEvents += st.floating
}

// finishTarget closes the bookkeeping of the current entry. A target whose
// sub-sessions all failed counts as skipped. An interrupted target is not
// counted.
func (s *session) finishTarget(result outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
	switch result {
	case outcomeCompleted:
		s.stats.CycleCount++
		s.stats.CompletedCount++
	case outcomeFailed:
		s.stats.CycleCount++
		s.stats.SkippedCount++
	}
}

func (s *session) skip(cursor int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = cursor
	s.current = nil
	s.elapsed = 0
	s.stats.CycleCount++
	s.stats.SkippedCount++
}

func (s *session) cycles() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats.CycleCount
}

func (s *session) finish(now time.Time) {
	s.requestStop()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
	s.stoppedAt = &now
}
