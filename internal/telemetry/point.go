package telemetry

import (
	"errors"
	"time"
)

// Measurement identifies the InfluxDB measurement a point belongs to.
type Measurement string

// Measurements written by the pipeline.
const (
	MeasurementSensor         Measurement = "sensor_data"
	MeasurementMachineEvent   Measurement = "machine_events"
	MeasurementPieceTracking  Measurement = "piece_tracking"
	MeasurementSystemTracking Measurement = "system_tracking"
)

// Point is one normalized time-series record: a measurement name, a tag
// set for indexing, a field set carrying the actual values, and a timestamp.
//
// A Point is created by the normalizer, consumed exactly once by the
// batched writer (buffered or alert path), then discarded.
type Point struct {
	Measurement Measurement
	Tags        map[string]string
	Fields      map[string]interface{}
	Timestamp   time.Time
}

// ErrInvalidPoint indicates a point violating the basic invariants:
// a non-empty measurement and at least one field.
var ErrInvalidPoint = errors.New("telemetry: point must have a measurement and at least one field")

// Validate checks the point invariants.
func (p *Point) Validate() error {
	if p.Measurement == "" || len(p.Fields) == 0 {
		return ErrInvalidPoint
	}
	return nil
}

// Severity classifies how urgent an anomaly is.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Category identifies what kind of condition an anomaly describes.
type Category string

const (
	CategoryTemperature Category = "temperature"
	CategoryVibration   Category = "vibration"
	CategoryPower       Category = "power"
	CategoryRPM         Category = "rpm"
	CategoryModel       Category = "model"
)

// Anomaly is one detected abnormal condition, produced alongside a
// sensor Point. Zero or more anomalies may accompany a point; both a
// threshold and a model warning about the same condition may coexist.
type Anomaly struct {
	Category Category
	Severity Severity
	Message  string
}

// AlertMeasurement returns the alert-bucket measurement for this anomaly.
// Temperature and vibration anomalies have dedicated measurements; all
// other categories fall back to the generic system alert measurement.
func (a Anomaly) AlertMeasurement() string {
	switch a.Category {
	case CategoryTemperature:
		return "temperature_alerts"
	case CategoryVibration:
		return "vibration_alerts"
	default:
		return "system_alerts"
	}
}

// Reading is one sensor sample for a single machine, kept in the
// per-machine window that feeds anomaly scoring. Values holds only the
// numeric fields present in the original message (temperature, power,
// vibration_level, rpm_spindle, tool_wear, ...).
type Reading struct {
	Timestamp time.Time
	Values    map[string]float64
}

// Value returns the named reading value and whether it was present.
func (r Reading) Value(name string) (float64, bool) {
	v, ok := r.Values[name]
	return v, ok
}
