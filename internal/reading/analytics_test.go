package reading

import (
	"math"
	"testing"
)

func alternating(n int, amp float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = amp
		} else {
			out[i] = -amp
		}
	}
	return out
}

func TestClassify_RockslamWinsOverFloating(t *testing.T) {
	m := Metrics{Variance: RockslamVariance + 1, FloatingScore: 1, Trend: 50, Positions: alternating(20, 90)}
	if got := Classify(m); got != StateRockslam {
		t.Fatalf("state = %s, want %s", got, StateRockslam)
	}
}

func TestClassify_PriorityOrder(t *testing.T) {
	cases := []struct {
		name string
		m    Metrics
		want NeedleState
	}{
		{"floating beats trend", Metrics{FloatingScore: 0.9, Trend: 30}, StateFloating},
		{"rising", Metrics{FloatingScore: 0.2, Trend: TrendThreshold + 0.1}, StateRising},
		{"falling", Metrics{FloatingScore: 0.2, Trend: -TrendThreshold - 0.1}, StateFalling},
		{"trend beats theta", Metrics{FloatingScore: 0.2, Trend: 15, Positions: alternating(20, 5)}, StateRising},
		{"theta bop", Metrics{FloatingScore: 0.5, Variance: 25, Positions: alternating(20, 5)}, StateThetaBop},
		{"stuck", Metrics{FloatingScore: 0.5, Positions: []float64{3, 3, 3, 3}}, StateStuck},
		{"threshold is exclusive", Metrics{FloatingScore: FloatingThreshold, Variance: RockslamVariance}, StateStuck},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.m); got != tc.want {
				t.Errorf("state = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestPeriodicSignFlips(t *testing.T) {
	// Period of two samples per half-wave.
	square := []float64{4, 4, -4, -4, 4, 4, -4, -4, 4, 4, -4, -4}
	if !periodicSignFlips(square) {
		t.Error("square wave should count as periodic")
	}
	irregular := []float64{4, -4, -4, -4, -4, -4, 4, -4, 4, 4, 4, 4, 4, -4}
	if periodicSignFlips(irregular) {
		t.Error("irregular flips should not count as periodic")
	}
	if periodicSignFlips([]float64{1, -1, 1}) {
		t.Error("too few flips should not count as periodic")
	}
}

func TestAnalyze_FlatWindowFloats(t *testing.T) {
	positions := make([]float64, 16)
	blends := make([]float64, 16)
	for i := range blends {
		blends[i] = float64(i%8) / 8
	}
	m := Analyze(positions, blends)
	if m.Coherence != 1 {
		t.Errorf("coherence = %v, want 1", m.Coherence)
	}
	if m.Trend != 0 {
		t.Errorf("trend = %v, want 0", m.Trend)
	}
	if math.Abs(m.FloatingScore-1) > 1e-9 {
		t.Errorf("floating score = %v, want 1", m.FloatingScore)
	}
	if math.Abs(m.Entropy-1) > 1e-9 {
		t.Errorf("entropy = %v, want 1 for uniform bins", m.Entropy)
	}
	if got := Classify(m); got != StateFloating {
		t.Errorf("state = %s, want FLOATING", got)
	}
}

func TestAnalyze_RailToRailIsRockslam(t *testing.T) {
	m := Analyze(alternating(20, 100), make([]float64, 20))
	if m.Variance <= RockslamVariance {
		t.Fatalf("variance = %v, want > %v", m.Variance, RockslamVariance)
	}
	if m.Coherence != 0 {
		t.Errorf("coherence = %v, want 0", m.Coherence)
	}
	if got := Classify(m); got != StateRockslam {
		t.Errorf("state = %s, want ROCKSLAM", got)
	}
}

func TestAnalyze_TrendUsesLastFive(t *testing.T) {
	positions := []float64{-90, -90, -90, 0, 0, 0, 0, 50}
	m := Analyze(positions, nil)
	// mean(0,0,0,0,50) = 10
	if m.Trend != 40 {
		t.Errorf("trend = %v, want 40", m.Trend)
	}
}

func TestAnalyze_Empty(t *testing.T) {
	m := Analyze(nil, nil)
	if m.Trend != 0 || m.Variance != 0 || m.FloatingScore != 0 {
		t.Errorf("empty window metrics = %+v", m)
	}
}

func TestNormalizedEntropy(t *testing.T) {
	same := []float64{0.3, 0.3, 0.3, 0.3}
	if h := normalizedEntropy(same, EntropyBins); h != 0 {
		t.Errorf("entropy of constant values = %v, want 0", h)
	}
	two := []float64{0.01, 0.99, 0.01, 0.99}
	if h := normalizedEntropy(two, EntropyBins); math.Abs(h-1.0/3.0) > 1e-9 {
		t.Errorf("entropy of two bins = %v, want 1/3", h)
	}
}

func TestGradeQuality(t *testing.T) {
	cases := []struct {
		entropy, coherence float64
		want               Quality
	}{
		{1, 1, QualityExcellent},
		{0.7, 1, QualityExcellent},
		{0.5, 0.8, QualityGood},
		{0.4, 0.5, QualityFair},
		{0.2, 0.3, QualityPoor},
		{0, 0.1, QualityDisrupted},
	}
	for _, tc := range cases {
		if got := GradeQuality(tc.entropy, tc.coherence); got != tc.want {
			t.Errorf("GradeQuality(%v, %v) = %s, want %s", tc.entropy, tc.coherence, got, tc.want)
		}
	}
}
