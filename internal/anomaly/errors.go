package anomaly

import "errors"

// Sentinel errors for anomaly scoring.
var (
	// ErrInsufficientData is returned by the model scorer when the
	// window holds fewer readings than the model needs. Callers treat
	// this as "no opinion", not as a failure.
	ErrInsufficientData = errors.New("anomaly: insufficient data for scoring")
)
