package reading

import (
	"fmt"
	"math"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/starford/attune/internal/apperr"
)

// DefaultHistorySize is the ring capacity of a session.
const DefaultHistorySize = 1000

// Blend weights for the crypto, jitter and feedback sources; they sum to 1.
const (
	weightCrypto   = 0.5
	weightJitter   = 0.3
	weightFeedback = 0.2

	// feedbackWindow is how many recent blends feed the drift term.
	feedbackWindow = 5
	// needleJitter is the half-width of the noise added to the needle.
	needleJitter = 2.0
)

// SessionInfo is a read-only view of a session.
type SessionInfo struct {
	ID              string    `json:"id"`
	BaselineToneArm float64   `json:"baseline_tone_arm"`
	Sensitivity     float64   `json:"sensitivity"`
	Readings        int       `json:"readings"`
	CreatedAt       time.Time `json:"created_at"`
}

type sample struct {
	reading Reading
	blend   float64
}

type session struct {
	mu        sync.Mutex
	id        string
	baseline  float64
	sens      float64
	history   *ring[sample]
	createdAt time.Time
}

// Engine owns reading sessions. It is safe for concurrent use; each session
// serialises its own Produce calls.
type Engine struct {
	mu          sync.Mutex
	sessions    map[string]*session
	historySize int
	crypto      Source
	jitter      Source
	now         func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithHistorySize sets the per-session ring capacity.
func WithHistorySize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.historySize = n
		}
	}
}

// WithSources replaces the crypto and jitter sources, mainly for tests.
func WithSources(crypto, jitter Source) Option {
	return func(e *Engine) {
		e.crypto = crypto
		e.jitter = jitter
	}
}

// WithClock sets the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an empty Engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		sessions:    make(map[string]*session),
		historySize: DefaultHistorySize,
		crypto:      CryptoSource{},
		jitter:      NewJitterSource(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SessionParams are the inputs of CreateSession.
type SessionParams struct {
	BaselineToneArm float64 `json:"baseline_tone_arm"`
	Sensitivity     float64 `json:"sensitivity"`
}

// Validate rejects out-of-range parameters instead of clamping them.
func (p SessionParams) Validate() error {
	if math.IsNaN(p.BaselineToneArm) || math.IsNaN(p.Sensitivity) {
		return fmt.Errorf("parameters must be numbers")
	}
	return validation.ValidateStruct(&p,
		validation.Field(&p.BaselineToneArm, validation.Min(MinToneArm), validation.Max(MaxToneArm)),
		validation.Field(&p.Sensitivity, validation.Required, validation.Min(0.0).Exclusive(), validation.Max(MaxSensitivity)),
	)
}

// CreateSession opens a new session and returns its id.
func (e *Engine) CreateSession(p SessionParams) (string, error) {
	if err := p.Validate(); err != nil {
		return "", fmt.Errorf("%w: reading session: %v", apperr.ErrValidation, err)
	}
	s := &session{
		id:        uuid.NewString(),
		baseline:  p.BaselineToneArm,
		sens:      p.Sensitivity,
		history:   newRing[sample](e.historySize),
		createdAt: e.now(),
	}
	e.mu.Lock()
	e.sessions[s.id] = s
	e.mu.Unlock()
	return s.id, nil
}

func (e *Engine) lookup(id string) (*session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: reading session %s", apperr.ErrNotFound, id)
	}
	return s, nil
}

// Produce takes one reading on the session.
func (e *Engine) Produce(id string) (Reading, error) {
	s, err := e.lookup(id)
	if err != nil {
		return Reading{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	recent := s.history.last(feedbackWindow)
	feedback := 0.5
	if len(recent) > 0 {
		var sum float64
		for _, r := range recent {
			sum += r.blend
		}
		feedback = sum / float64(len(recent))
	}
	blend := weightCrypto*e.crypto.Float64() + weightJitter*e.jitter.Float64() + weightFeedback*feedback
	blend = math.Mod(blend, 1)
	if blend < 0 {
		blend++
	}

	toneArm := clamp(MinToneArm, MaxToneArm, s.baseline+(blend-0.5)*2*s.sens)
	jitter := (e.jitter.Float64()*2 - 1) * needleJitter
	needle := clamp(MinNeedle, MaxNeedle, (toneArm-5)/5*MaxNeedle+jitter)

	s.history.push(sample{reading: Reading{ToneArm: toneArm, NeedlePosition: needle}, blend: blend})

	window := s.history.last(AnalysisWindow)
	positions := make([]float64, len(window))
	blends := make([]float64, len(window))
	for i, w := range window {
		positions[i] = w.reading.NeedlePosition
		blends[i] = w.blend
	}
	m := Analyze(positions, blends)

	r := Reading{
		ToneArm:             toneArm,
		NeedlePosition:      needle,
		Trend:               m.Trend,
		Entropy:             m.Entropy,
		Coherence:           m.Coherence,
		FloatingNeedleScore: m.FloatingScore,
		NeedleState:         Classify(m),
		Quality:             GradeQuality(m.Entropy, m.Coherence),
		Timestamp:           e.now(),
	}
	s.history.setLast(sample{reading: r, blend: blend})
	return r, nil
}

// Summarize aggregates the session's retained readings without mutating them.
func (e *Engine) Summarize(id string) (Summary, error) {
	s, err := e.lookup(id)
	if err != nil {
		return Summary{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary(), nil
}

// History returns up to n newest readings, oldest first.
func (e *Engine) History(id string, n int) ([]Reading, error) {
	s, err := e.lookup(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	window := s.history.last(n)
	out := make([]Reading, len(window))
	for i, w := range window {
		out[i] = w.reading
	}
	return out, nil
}

// Get returns a read-only view of the session.
func (e *Engine) Get(id string) (SessionInfo, error) {
	s, err := e.lookup(id)
	if err != nil {
		return SessionInfo{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionInfo{
		ID:              s.id,
		BaselineToneArm: s.baseline,
		Sensitivity:     s.sens,
		Readings:        s.history.len(),
		CreatedAt:       s.createdAt,
	}, nil
}

// Stop summarises the session and discards it. Later calls with the same id
// return ErrNotFound.
func (e *Engine) Stop(id string) (Summary, error) {
	e.mu.Lock()
	s, ok := e.sessions[id]
	if ok {
		delete(e.sessions, id)
	}
	e.mu.Unlock()
	if !ok {
		return Summary{}, fmt.Errorf("%w: reading session %s", apperr.ErrNotFound, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary(), nil
}

// Active returns the number of open sessions.
func (e *Engine) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

func (s *session) summary() Summary {
	all := s.history.all()
	readings := make([]Reading, len(all))
	for i, a := range all {
		readings[i] = a.reading
	}
	sum := Summarize(readings)
	sum.SessionID = s.id
	return sum
}
