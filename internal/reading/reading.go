// Package reading implements the stochastic attunement engine: it blends
// entropy sources into bounded tone-arm and needle readings, derives trend and
// variance analytics over a per-session rolling window, and classifies each
// reading into a needle state and a quality band.
package reading

import "time"

// NeedleState classifies the dynamics of a reading.
type NeedleState string

const (
	StateFloating NeedleState = "FLOATING"
	StateRising   NeedleState = "RISING"
	StateFalling  NeedleState = "FALLING"
	StateRockslam NeedleState = "ROCKSLAM"
	StateThetaBop NeedleState = "THETA_BOP"
	StateStuck    NeedleState = "STUCK"
)

// Quality grades how clean a reading is, best first.
type Quality string

const (
	QualityExcellent Quality = "EXCELLENT"
	QualityGood      Quality = "GOOD"
	QualityFair      Quality = "FAIR"
	QualityPoor      Quality = "POOR"
	QualityDisrupted Quality = "DISRUPTED"
)

// Value bounds.
const (
	MinToneArm     = 0.0
	MaxToneArm     = 10.0
	MinNeedle      = -100.0
	MaxNeedle      = 100.0
	MaxSensitivity = 5.0
)

// Reading is one immutable measurement. NeedleState and Quality are derived
// from the reading and its session window; they are never set independently.
type Reading struct {
	ToneArm             float64     `json:"tone_arm"`
	NeedlePosition      float64     `json:"needle_position"`
	Trend               float64     `json:"trend"`
	Entropy             float64     `json:"entropy"`
	Coherence           float64     `json:"coherence"`
	FloatingNeedleScore float64     `json:"floating_needle_score"`
	NeedleState         NeedleState `json:"needle_state"`
	Quality             Quality     `json:"quality"`
	Timestamp           time.Time   `json:"timestamp"`
}

// Summary aggregates a session's retained readings.
type Summary struct {
	SessionID      string  `json:"session_id"`
	Count          int     `json:"count"`
	FloatingEvents int     `json:"floating_events"`
	MeanToneArm    float64 `json:"mean_tone_arm"`
	MeanCoherence  float64 `json:"mean_coherence"`
}

// Summarize aggregates readings. An empty slice yields a zero Summary.
func Summarize(readings []Reading) Summary {
	var s Summary
	if len(readings) == 0 {
		return s
	}
	var ta, coh float64
	for _, r := range readings {
		ta += r.ToneArm
		coh += r.Coherence
		if r.NeedleState == StateFloating {
			s.FloatingEvents++
		}
	}
	s.Count = len(readings)
	s.MeanToneArm = ta / float64(len(readings))
	s.MeanCoherence = coh / float64(len(readings))
	return s
}
