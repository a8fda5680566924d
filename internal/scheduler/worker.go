package scheduler

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/attune/internal/apperr"
	"github.com/starford/attune/internal/display"
	"github.com/starford/attune/internal/models"
	"github.com/starford/attune/internal/reading"
)

// step is the progress made in one heartbeat.
type step struct {
	repetitions int64
	items       int64
	floating    int64
	needle      reading.NeedleState
}

// subSessions are the sessions opened for the target being served.
type subSessions struct {
	readingID string
	displayID string
	paused    bool
}

func (ss *subSessions) open() bool { return ss.readingID != "" || ss.displayID != "" }

// outcome is how the serving of one target ended.
type outcome int

const (
	outcomeCompleted outcome = iota
	// outcomeInterrupted means the rotation was stopped mid-target.
	outcomeInterrupted
	// outcomeFailed means every open sub-session failed before the
	// target's duration elapsed.
	outcomeFailed
)

func (m *Manager) run(s *session) {
	defer m.wg.Done()
	defer close(s.done)

	ticker := time.NewTicker(m.heartbeat)
	defer ticker.Stop()

	cursor := 0
	for {
		m.serve(s, cursor, ticker)
		if s.State() == StateStopped {
			break
		}
		if s.cfg.MaxCycles > 0 && s.cycles() >= int64(s.cfg.MaxCycles) {
			break
		}
		next := (cursor + 1) % len(s.queue)
		if next == 0 && !s.cfg.ContinuousMode {
			break
		}
		if !m.transition(s) {
			break
		}
		cursor = next
	}

	s.finish(m.now().UTC())
	st := s.status().Stats
	m.logger.Info("scheduler: rotation stopped",
		slog.String("rotation_id", s.id),
		slog.Int64("cycles", st.CycleCount),
		slog.Int64("completed", st.CompletedCount),
		slog.Duration("duration", st.TotalDuration))
	m.emit(s, Event{Type: EventRotationStopped})
}

// serve runs one queue entry. A target that can no longer be loaded is
// skipped. Nothing is served or counted while the rotation is paused.
func (m *Manager) serve(s *session, cursor int, ticker *time.Ticker) {
	if !m.holdWhilePaused(s, ticker) {
		return
	}
	entry := s.queue[cursor]
	t, err := m.registry.Get(m.ctx, entry.TargetID)
	if err != nil {
		m.logger.Warn("scheduler: skipping target",
			slog.String("rotation_id", s.id),
			slog.String("target_id", entry.TargetID),
			slog.String("error", err.Error()))
		s.skip(cursor)
		m.emit(s, Event{Type: EventTargetSkipped, TargetID: entry.TargetID, TargetName: entry.Name})
		m.idle(s, ticker)
		return
	}

	s.begin(cursor)
	ticker.Reset(m.heartbeat)
	m.emit(s, Event{Type: EventTargetStarted, TargetID: t.ID, TargetName: t.Name})

	subs := m.openSubSessions(s, t)
	var reps int64
	var elapsed time.Duration
	result := outcomeCompleted
	if subs.open() {
		elapsed, reps, result = m.drive(s, t, &subs, ticker)
	} else if !m.idle(s, ticker) {
		result = outcomeInterrupted
	}
	m.closeSubSessions(s, t, &subs)

	if result == outcomeCompleted || elapsed > 0 || reps > 0 {
		m.record(s, t, result, elapsed, reps)
	}
	s.finishTarget(result)
	switch result {
	case outcomeCompleted:
		m.emit(s, Event{Type: EventTargetCompleted, TargetID: t.ID, TargetName: t.Name, Elapsed: elapsed})
	case outcomeFailed:
		m.logger.Warn("scheduler: sub-sessions lost, skipping target",
			slog.String("rotation_id", s.id),
			slog.String("target_id", t.ID),
			slog.Duration("elapsed", elapsed))
		m.emit(s, Event{Type: EventTargetSkipped, TargetID: t.ID, TargetName: t.Name, Elapsed: elapsed})
	}
}

// record folds the target's progress into the registry. Only a completed
// target earns a serving.
func (m *Manager) record(s *session, t models.Target, result outcome, elapsed time.Duration, reps int64) {
	delta := models.OutcomeDelta{
		Repetitions: reps,
		Duration:    elapsed,
		ServedAt:    m.now().UTC(),
	}
	if result == outcomeCompleted {
		delta.Servings = 1
	}
	if _, err := m.registry.RecordOutcome(m.ctx, t.ID, delta); err != nil {
		level := slog.LevelWarn
		if errors.Is(err, apperr.ErrNotFound) {
			level = slog.LevelInfo
		}
		m.logger.Log(m.ctx, level, "scheduler: outcome not recorded",
			slog.String("rotation_id", s.id),
			slog.String("target_id", t.ID),
			slog.String("error", err.Error()))
	}
}

// drive advances the sub-sessions one heartbeat at a time until the target's
// duration has elapsed. Paused heartbeats do not count, and neither does a
// heartbeat in which the last open sub-session failed.
func (m *Manager) drive(s *session, t models.Target, subs *subSessions, ticker *time.Ticker) (time.Duration, int64, outcome) {
	var elapsed time.Duration
	var reps int64
	for elapsed < s.cfg.DurationPerTarget {
		select {
		case <-s.stopCh:
			return elapsed, reps, outcomeInterrupted
		case <-ticker.C:
		}

		switch s.State() {
		case StateStopped:
			return elapsed, reps, outcomeInterrupted
		case StatePaused:
			m.pauseSubSessions(s, subs)
			continue
		}
		m.resumeSubSessions(s, subs)

		d := min(m.heartbeat, s.cfg.DurationPerTarget-elapsed)
		st := m.poll(s, t, subs, d)
		if !subs.open() {
			return elapsed, reps, outcomeFailed
		}
		elapsed += d
		reps += st.repetitions
		s.fold(elapsed, st)
		m.emit(s, Event{
			Type:        EventProgress,
			TargetID:    t.ID,
			TargetName:  t.Name,
			Elapsed:     elapsed,
			NeedleState: st.needle,
		})
	}
	return elapsed, reps, outcomeCompleted
}

// poll takes one reading and advances the display by d. A sub-session that
// fails is closed and left out for the rest of the target.
func (m *Manager) poll(s *session, t models.Target, subs *subSessions, d time.Duration) step {
	var st step
	if subs.readingID != "" {
		r, err := m.readings.Produce(subs.readingID)
		if err != nil {
			m.subSessionFailed(s, t, "reading", err)
			m.stopReading(subs)
		} else {
			st.needle = r.NeedleState
			if r.NeedleState == reading.StateFloating {
				st.floating++
			}
		}
	}
	if subs.displayID != "" {
		p, err := m.display.Advance(subs.displayID, d)
		if err != nil {
			m.subSessionFailed(s, t, "display", err)
			m.closeDisplay(subs)
		} else {
			st.repetitions = p.RepetitionsDone
			st.items = p.ItemsShown
		}
	}
	return st
}

func (m *Manager) openSubSessions(s *session, t models.Target) subSessions {
	var subs subSessions
	if s.cfg.LinkReading && m.readings != nil {
		id, err := m.readings.CreateSession(s.cfg.Reading)
		if err != nil {
			m.subSessionFailed(s, t, "reading", err)
		} else {
			subs.readingID = id
		}
	}
	if m.display != nil {
		id, err := m.display.Open(m.ctx, display.ConfigFor(t))
		if err != nil {
			m.subSessionFailed(s, t, "display", err)
		} else {
			subs.displayID = id
		}
	}
	if !subs.open() {
		m.logger.Info("scheduler: no sub-session opened, serving target with zero duration",
			slog.String("rotation_id", s.id),
			slog.String("target_id", t.ID))
	}
	return subs
}

func (m *Manager) closeSubSessions(s *session, t models.Target, subs *subSessions) {
	if subs.readingID != "" {
		if sum, err := m.readings.Stop(subs.readingID); err == nil {
			m.logger.Debug("scheduler: reading session closed",
				slog.String("rotation_id", s.id),
				slog.String("target_id", t.ID),
				slog.Int("readings", sum.Count),
				slog.Int("floating", sum.FloatingEvents))
		}
		subs.readingID = ""
	}
	m.closeDisplay(subs)
}

// pauseSubSessions idles the display while the rotation is paused. The
// sessions stay open.
func (m *Manager) pauseSubSessions(s *session, subs *subSessions) {
	if subs.paused {
		return
	}
	subs.paused = true
	if subs.displayID != "" {
		if err := m.display.Pause(subs.displayID); err != nil {
			m.logger.Warn("scheduler: display pause failed",
				slog.String("rotation_id", s.id),
				slog.String("error", err.Error()))
		}
	}
}

func (m *Manager) resumeSubSessions(s *session, subs *subSessions) {
	if !subs.paused {
		return
	}
	subs.paused = false
	if subs.displayID != "" {
		if err := m.display.Resume(subs.displayID); err != nil {
			m.logger.Warn("scheduler: display resume failed",
				slog.String("rotation_id", s.id),
				slog.String("error", err.Error()))
		}
	}
}

func (m *Manager) stopReading(subs *subSessions) {
	if subs.readingID == "" {
		return
	}
	_, _ = m.readings.Stop(subs.readingID)
	subs.readingID = ""
}

func (m *Manager) closeDisplay(subs *subSessions) {
	if subs.displayID == "" {
		return
	}
	_, _ = m.display.Close(subs.displayID)
	subs.displayID = ""
}

func (m *Manager) subSessionFailed(s *session, t models.Target, kind string, err error) {
	if !errors.Is(err, apperr.ErrSubSession) {
		err = fmt.Errorf("%w: %s: %v", apperr.ErrSubSession, kind, err)
	}
	m.logger.Warn("scheduler: sub-session failed",
		slog.String("rotation_id", s.id),
		slog.String("target_id", t.ID),
		slog.String("kind", kind),
		slog.String("error", err.Error()))
}

// idle waits one heartbeat so a queue of unservable targets cannot spin,
// then holds while the rotation is paused. It returns false if the rotation
// was stopped.
func (m *Manager) idle(s *session, ticker *time.Ticker) bool {
	select {
	case <-s.stopCh:
		return false
	case <-ticker.C:
	}
	return m.holdWhilePaused(s, ticker)
}

// holdWhilePaused blocks on heartbeats until the rotation is no longer
// paused. It returns false if the rotation was stopped.
func (m *Manager) holdWhilePaused(s *session, ticker *time.Ticker) bool {
	for s.State() == StatePaused {
		select {
		case <-s.stopCh:
			return false
		case <-ticker.C:
		}
	}
	return s.State() != StateStopped
}

// transition waits out the pause between targets. It returns false if the
// rotation was stopped meanwhile.
func (m *Manager) transition(s *session) bool {
	if s.cfg.TransitionPause <= 0 {
		return s.State() != StateStopped
	}
	timer := time.NewTimer(s.cfg.TransitionPause)
	defer timer.Stop()
	select {
	case <-s.stopCh:
		return false
	case <-timer.C:
		return true
	}
}
