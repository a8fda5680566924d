package reading

import "math"

// Window sizes and classification thresholds.
const (
	TrendWindow    = 5
	AnalysisWindow = 20
	EntropyBins    = 8

	// maxPositionVariance is the variance of a needle alternating between
	// the two rails; it normalises variance into [0,1].
	maxPositionVariance = MaxNeedle * MaxNeedle

	RockslamVariance  = 2500.0
	FloatingThreshold = 0.85
	TrendThreshold    = 10.0
	thetaMinFlips     = 4
	thetaPeriodSlack  = 1

	// trendScale maps |trend| onto the floating score's stillness term.
	trendScale = 20.0
)

// Floating score weights; they sum to 1.
const (
	weightCentered = 0.40
	weightCoherent = 0.35
	weightStill    = 0.25
)

// Metrics holds the windowed analytics for the newest reading.
type Metrics struct {
	Position      float64
	Trend         float64
	Entropy       float64
	Coherence     float64
	FloatingScore float64
	Variance      float64
	// Positions is the analysis window, oldest first, newest last.
	Positions []float64
}

// Analyze derives Metrics from the analysis window of needle positions and
// blended source values, both oldest first with the newest reading last.
func Analyze(positions, blends []float64) Metrics {
	m := Metrics{Positions: positions}
	if len(positions) == 0 {
		return m
	}
	m.Position = positions[len(positions)-1]

	recent := positions
	if len(recent) > TrendWindow {
		recent = recent[len(recent)-TrendWindow:]
	}
	m.Trend = m.Position - mean(recent)

	m.Entropy = normalizedEntropy(blends, EntropyBins)
	m.Variance = variance(positions)
	m.Coherence = clamp(0, 1, 1-m.Variance/maxPositionVariance)

	centered := 1 - math.Abs(m.Position)/MaxNeedle
	still := 1 - math.Min(math.Abs(m.Trend)/trendScale, 1)
	m.FloatingScore = clamp(0, 1, weightCentered*centered+weightCoherent*m.Coherence+weightStill*still)
	return m
}

// Classify maps metrics to a needle state. Rules are evaluated in fixed
// priority order and the first match wins.
func Classify(m Metrics) NeedleState {
	switch {
	case m.Variance > RockslamVariance:
		return StateRockslam
	case m.FloatingScore > FloatingThreshold:
		return StateFloating
	case m.Trend > TrendThreshold:
		return StateRising
	case m.Trend < -TrendThreshold:
		return StateFalling
	case periodicSignFlips(m.Positions):
		return StateThetaBop
	default:
		return StateStuck
	}
}

// GradeQuality buckets the mean of entropy and coherence into five bands.
func GradeQuality(entropy, coherence float64) Quality {
	q := (entropy + coherence) / 2
	switch {
	case q >= 0.8:
		return QualityExcellent
	case q >= 0.6:
		return QualityGood
	case q >= 0.4:
		return QualityFair
	case q >= 0.2:
		return QualityPoor
	default:
		return QualityDisrupted
	}
}

// periodicSignFlips reports whether the sign of the positions alternates at
// a near-constant period across the window.
func periodicSignFlips(positions []float64) bool {
	var flips []int
	prev := 0
	for i, p := range positions {
		s := sign(p)
		if s == 0 {
			continue
		}
		if prev != 0 && s != prev {
			flips = append(flips, i)
		}
		prev = s
	}
	if len(flips) < thetaMinFlips {
		return false
	}
	lo, hi := math.MaxInt, 0
	for i := 1; i < len(flips); i++ {
		gap := flips[i] - flips[i-1]
		lo = min(lo, gap)
		hi = max(hi, gap)
	}
	return hi-lo <= thetaPeriodSlack
}

// normalizedEntropy is the Shannon entropy of values in [0,1) bucketed into
// bins, divided by log(bins) so the result lies in [0,1].
func normalizedEntropy(values []float64, bins int) float64 {
	if len(values) < 2 || bins < 2 {
		return 0
	}
	counts := make([]int, bins)
	for _, v := range values {
		b := int(clamp(0, 1, v) * float64(bins))
		if b == bins {
			b--
		}
		counts[b]++
	}
	n := float64(len(values))
	var h float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		h -= p * math.Log(p)
	}
	return clamp(0, 1, h/math.Log(float64(bins)))
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

func variance(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mu := mean(xs)
	var s float64
	for _, x := range xs {
		d := x - mu
		s += d * d
	}
	return s / float64(len(xs))
}

func sign(x float64) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}

func clamp(lo, hi, v float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
