package anomaly

import "github.com/plantstream/core/internal/telemetry"

// ThresholdScorer is the degraded scorer used when no statistical
// model is available. Fixed-threshold anomaly checks happen during
// normalisation, so this scorer contributes nothing beyond a zero
// failure probability.
type ThresholdScorer struct{}

// NewThresholdScorer returns a pass-through scorer.
func NewThresholdScorer() *ThresholdScorer {
	return &ThresholdScorer{}
}

// Score always reports a zero failure probability and no warnings.
func (s *ThresholdScorer) Score(_ string, _ []telemetry.Reading) (float64, []Warning, error) {
	return 0, nil, nil
}
