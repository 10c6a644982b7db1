package anomaly

import "github.com/plantstream/core/internal/telemetry"

// Warning is a categorical condition the scorer flags alongside its
// failure probability.
type Warning string

// Warnings the model scorer can raise.
const (
	WarningTemperature Warning = "temperature"
	WarningVibration   Warning = "vibration"
	WarningToolWear    Warning = "tool_wear"
)

// Scorer maps a bounded window of recent readings for one machine to a
// failure probability and categorical warnings.
//
// Score returns:
//   - probability: failure probability in [0, 100]
//   - warnings: zero or more categorical conditions
//   - error: ErrInsufficientData when the window is too short for the
//     scorer to have an opinion; callers must treat that as abstention
//
// Implementations may hold per-machine state but must be safe to call
// from the single pipeline goroutine without additional locking.
type Scorer interface {
	Score(machine string, window []telemetry.Reading) (float64, []Warning, error)
}
