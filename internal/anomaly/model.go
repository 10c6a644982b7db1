package anomaly

import (
	"math"
	"sync"

	"github.com/plantstream/core/internal/telemetry"
)

// MinReadings is the smallest window the model scorer will evaluate.
// Shorter windows produce ErrInsufficientData.
const MinReadings = 20

// featureCount is the length of the vector extracted per window.
const featureCount = 10

// featureVector summarises one machine window for scoring.
//
// Index layout:
//
//	0 temperature slope     5 power slope
//	1 temperature variance  6 power variance
//	2 temperature max       7 efficiency (mean power / mean rpm)
//	3 vibration slope       8 tool wear (latest)
//	4 vibration variance    9 sample span (seconds)
type featureVector [featureCount]float64

const (
	featTempSlope = iota
	featTempVariance
	featTempMax
	featVibSlope
	featVibVariance
	featPowerSlope
	featPowerVariance
	featEfficiency
	featToolWear
	featSpan
)

// baseline accumulates running mean and variance per feature using
// Welford's update, fitted online from the windows a machine produces.
type baseline struct {
	n    int
	mean featureVector
	m2   featureVector
}

func (b *baseline) update(f featureVector) {
	b.n++
	for i := 0; i < featureCount; i++ {
		delta := f[i] - b.mean[i]
		b.mean[i] += delta / float64(b.n)
		b.m2[i] += delta * (f[i] - b.mean[i])
	}
}

func (b *baseline) stddev(i int) float64 {
	if b.n < 2 {
		return 0
	}
	return math.Sqrt(b.m2[i] / float64(b.n-1))
}

// ModelScorer scores windows against a per-machine rolling baseline of
// feature vectors. Each call both scores the current window and folds
// it into the baseline, so the model adapts to slow drift while large
// excursions score high.
//
// The scorer is safe for concurrent use, though the pipeline calls it
// from a single goroutine.
type ModelScorer struct {
	mu        sync.Mutex
	baselines map[string]*baseline

	// minBaseline is the number of fitted windows required before
	// deviation scoring engages. Below it the scorer reports zero.
	minBaseline int
}

// NewModelScorer returns a model scorer with empty per-machine state.
func NewModelScorer() *ModelScorer {
	return &ModelScorer{
		baselines:   make(map[string]*baseline),
		minBaseline: 5,
	}
}

// Score extracts features from the window, compares them with the
// machine's rolling baseline, and returns a failure probability in
// [0, 100] plus categorical warnings for features sitting far outside
// the baseline band.
//
// Returns ErrInsufficientData when the window holds fewer than
// MinReadings readings.
func (s *ModelScorer) Score(machine string, window []telemetry.Reading) (float64, []Warning, error) {
	if len(window) < MinReadings {
		return 0, nil, ErrInsufficientData
	}

	f := extractFeatures(window)

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.baselines[machine]
	if !ok {
		b = &baseline{}
		s.baselines[machine] = b
	}

	var probability float64
	var warnings []Warning

	if b.n >= s.minBaseline {
		probability = s.deviation(b, f)
		warnings = s.warn(b, f)
	}

	b.update(f)

	return probability, warnings, nil
}

// deviation maps the mean absolute z-score across features to [0, 100].
func (s *ModelScorer) deviation(b *baseline, f featureVector) float64 {
	var sum float64
	var used int
	for i := 0; i < featureCount; i++ {
		sd := b.stddev(i)
		if sd == 0 {
			continue
		}
		sum += math.Abs(f[i]-b.mean[i]) / sd
		used++
	}
	if used == 0 {
		return 0
	}
	// A mean z-score of 4 or more saturates at 100.
	p := (sum / float64(used)) * 25.0
	if p > 100 {
		p = 100
	}
	if p < 0 {
		p = 0
	}
	return p
}

// warn flags features sitting more than three deviations above their
// baseline mean. Only rising excursions warn; a cooling machine is not
// an anomaly.
func (s *ModelScorer) warn(b *baseline, f featureVector) []Warning {
	var out []Warning
	if exceeds(b, f, featTempMax) || exceeds(b, f, featTempSlope) {
		out = append(out, WarningTemperature)
	}
	if exceeds(b, f, featVibVariance) || exceeds(b, f, featVibSlope) {
		out = append(out, WarningVibration)
	}
	if exceeds(b, f, featToolWear) {
		out = append(out, WarningToolWear)
	}
	return out
}

func exceeds(b *baseline, f featureVector, i int) bool {
	sd := b.stddev(i)
	if sd == 0 {
		return false
	}
	return f[i] > b.mean[i]+3*sd
}

// extractFeatures summarises a window into one feature vector.
func extractFeatures(window []telemetry.Reading) featureVector {
	temps := series(window, "temperature")
	vibs := series(window, "vibration_level")
	powers := series(window, "power")
	rpms := series(window, "rpm_spindle")

	var f featureVector
	f[featTempSlope] = slope(temps)
	f[featTempVariance] = variance(temps)
	f[featTempMax] = maxOf(temps)
	f[featVibSlope] = slope(vibs)
	f[featVibVariance] = variance(vibs)
	f[featPowerSlope] = slope(powers)
	f[featPowerVariance] = variance(powers)

	if r := mean(rpms); r > 0 {
		f[featEfficiency] = mean(powers) / r
	}

	for i := len(window) - 1; i >= 0; i-- {
		if v, ok := window[i].Value("tool_wear"); ok {
			f[featToolWear] = v
			break
		}
	}

	f[featSpan] = window[len(window)-1].Timestamp.Sub(window[0].Timestamp).Seconds()
	return f
}

// series collects the named value across the window, skipping readings
// that lack it.
func series(window []telemetry.Reading, name string) []float64 {
	out := make([]float64, 0, len(window))
	for _, r := range window {
		if v, ok := r.Value(name); ok {
			out = append(out, v)
		}
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func variance(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var sum float64
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return sum / float64(len(xs)-1)
}

func maxOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

// slope is the least-squares slope of the values against their index,
// capturing per-sample trend.
func slope(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	meanX := float64(n-1) / 2
	meanY := mean(xs)
	var num, den float64
	for i, y := range xs {
		dx := float64(i) - meanX
		num += dx * (y - meanY)
		den += dx * dx
	}
	if den == 0 {
		return 0
	}
	return num / den
}
