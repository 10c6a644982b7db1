package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/plantstream/core/internal/anomaly"
	"github.com/plantstream/core/internal/infrastructure/config"
	"github.com/plantstream/core/internal/infrastructure/logging"
	"github.com/plantstream/core/internal/telemetry"
)

// Topic segment markers used for routing.
const (
	dataSegment     = "/plant/data/"
	trackingSegment = "/plant/tracking/"
)

// pieceEntity is the entity discriminator for piece tracking messages.
const pieceEntity = "piece"

// defaultLocation tags sensor points that carry no explicit location.
const defaultLocation = "workshop_A"

// modelCriticalProbability is the failure probability at which the
// scorer's opinion alone raises a critical anomaly.
const modelCriticalProbability = 70.0

// MaterialLookup resolves a piece's material. A catalog.Catalog
// satisfies it; a nil lookup disables material tagging beyond what the
// catalog's own heuristic provides.
type MaterialLookup interface {
	Material(pieceID string) (string, bool)
}

// message is the wire shape shared by all inbound payloads.
type message struct {
	Entity    string                 `json:"entity"`
	Event     string                 `json:"event"`
	Data      map[string]interface{} `json:"data"`
	Timestamp string                 `json:"timestamp"`
}

// Normalizer converts one raw message into a telemetry.Point plus any
// detected anomalies. It owns the per-machine reading windows that feed
// the anomaly scorer.
//
// Not safe for concurrent use; the pipeline calls it from its single
// processing goroutine.
type Normalizer struct {
	thresholds config.ThresholdsConfig
	scorer     anomaly.Scorer
	materials  MaterialLookup
	log        *logging.Logger

	windows    map[string]*anomaly.Window
	windowSize int
}

// New creates a Normalizer.
//
// Parameters:
//   - thresholds: Per-metric warning/critical thresholds
//   - scorer: Anomaly scorer consulted per sensor message; must not be nil
//   - materials: Piece material lookup; may be nil
//   - windowSize: Per-machine reading window capacity
//   - log: Structured logger
func New(thresholds config.ThresholdsConfig, scorer anomaly.Scorer, materials MaterialLookup, windowSize int, log *logging.Logger) *Normalizer {
	return &Normalizer{
		thresholds: thresholds,
		scorer:     scorer,
		materials:  materials,
		log:        log.With("component", "normalizer"),
		windows:    make(map[string]*anomaly.Window),
		windowSize: windowSize,
	}
}

// Normalize routes one raw message by topic and converts it.
//
// Returns:
//   - telemetry.Point: The normalized point
//   - []telemetry.Anomaly: Zero or more detected anomalies, threshold
//     and model findings merged, duplicates preserved
//   - error: ErrMalformedMessage for unrecognized topics or payloads
//     missing required fields
func (n *Normalizer) Normalize(topic string, payload []byte) (telemetry.Point, []telemetry.Anomaly, error) {
	var msg message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return telemetry.Point{}, nil, fmt.Errorf("%w: invalid JSON: %v", ErrMalformedMessage, err)
	}

	switch {
	case strings.Contains(topic, dataSegment):
		return n.sensorData(msg)
	case strings.Contains(topic, trackingSegment):
		if msg.Entity == pieceEntity {
			p, err := n.pieceTracking(msg)
			return p, nil, err
		}
		p, err := n.machineEvent(msg)
		return p, nil, err
	default:
		return telemetry.Point{}, nil, fmt.Errorf("%w: unknown topic pattern %q", ErrMalformedMessage, topic)
	}
}

// sensorData converts a sensor reading message into a sensor_data point
// and runs both anomaly layers.
func (n *Normalizer) sensorData(msg message) (telemetry.Point, []telemetry.Anomaly, error) {
	if msg.Entity == "" || len(msg.Data) == 0 {
		return telemetry.Point{}, nil, fmt.Errorf("%w: sensor message missing entity or data", ErrMalformedMessage)
	}

	ts := n.parseTimestamp(msg.Timestamp)

	fields := make(map[string]interface{})
	values := make(map[string]float64)
	for key, raw := range msg.Data {
		if v, ok := asFloat(raw); ok {
			fields[key] = v
			values[key] = v
		}
	}
	if len(fields) == 0 {
		return telemetry.Point{}, nil, fmt.Errorf("%w: sensor message has no numeric data", ErrMalformedMessage)
	}

	point := telemetry.Point{
		Measurement: telemetry.MeasurementSensor,
		Tags: map[string]string{
			"machine":      msg.Entity,
			"machine_type": MachineType(msg.Entity),
			"location":     defaultLocation,
		},
		Fields:    fields,
		Timestamp: ts,
	}

	anomalies := n.checkThresholds(msg.Entity, values)

	window := n.window(msg.Entity)
	window.Append(telemetry.Reading{Timestamp: ts, Values: values})
	anomalies = append(anomalies, n.scoreWindow(msg.Entity, window)...)

	if len(anomalies) > 0 {
		n.log.Warn("anomalies detected",
			"machine", msg.Entity,
			"count", len(anomalies))
	}

	return point, anomalies, nil
}

// machineEvent converts a machine lifecycle event into a machine_events
// point.
func (n *Normalizer) machineEvent(msg message) (telemetry.Point, error) {
	if msg.Entity == "" || msg.Event == "" {
		return telemetry.Point{}, fmt.Errorf("%w: machine event missing entity or event", ErrMalformedMessage)
	}

	tags := map[string]string{
		"machine":    msg.Entity,
		"event_type": msg.Event,
	}
	if v, ok := asString(msg.Data["piece_id"]); ok {
		tags["piece_id"] = v
	}
	if v, ok := asString(msg.Data["tool"]); ok {
		tags["tool"] = v
	}

	fields := make(map[string]interface{})

	// Duration is explicit for end events; start events implicitly
	// begin at zero. Events carrying neither get no duration field.
	if v, ok := asFloat(msg.Data["duration"]); ok {
		fields["duration"] = v
	} else if strings.Contains(msg.Event, "start") {
		fields["duration"] = 0.0
	}

	switch {
	case strings.HasSuffix(msg.Event, "start"):
		fields["status"] = "active"
	case strings.HasSuffix(msg.Event, "end"):
		fields["status"] = "completed"
	default:
		if v, ok := asString(msg.Data["status"]); ok {
			fields["status"] = v
		} else {
			fields["status"] = "unknown"
		}
	}

	if v, ok := asFloat(msg.Data["tool_wear"]); ok {
		fields["tool_wear"] = v
	}
	if msg.Event == "processing_end" {
		if v, ok := asFloat(msg.Data["cycle_time"]); ok {
			fields["cycle_time"] = v
		}
	}

	return telemetry.Point{
		Measurement: telemetry.MeasurementMachineEvent,
		Tags:        tags,
		Fields:      fields,
		Timestamp:   n.parseTimestamp(msg.Timestamp),
	}, nil
}

// pieceTracking converts a piece movement event into a piece_tracking
// point.
func (n *Normalizer) pieceTracking(msg message) (telemetry.Point, error) {
	if msg.Event == "" || len(msg.Data) == 0 {
		return telemetry.Point{}, fmt.Errorf("%w: piece tracking missing event or data", ErrMalformedMessage)
	}

	pieceID, ok := asString(msg.Data["piece_id"])
	if !ok || pieceID == "" {
		return telemetry.Point{}, fmt.Errorf("%w: piece tracking missing piece_id", ErrMalformedMessage)
	}

	tags := map[string]string{
		"piece_id":   pieceID,
		"event_type": msg.Event,
	}

	from, hasFrom := asString(msg.Data["from"])
	to, hasTo := asString(msg.Data["to"])
	if hasFrom {
		tags["from_station"] = from
	}
	if hasTo {
		tags["to_station"] = to
	}

	if n.materials != nil {
		if material, known := n.materials.Material(pieceID); known {
			tags["material"] = material
		}
	}

	fields := make(map[string]interface{})

	if strings.HasSuffix(msg.Event, "start") {
		fields["duration"] = 0.0
	} else if v, ok := asFloat(msg.Data["duration"]); ok {
		fields["duration"] = v
	}

	if hasFrom && hasTo {
		fields["distance"] = StationDistance(from, to)
	}

	if v, ok := asFloat(msg.Data["priority"]); ok {
		fields["priority"] = v
	} else {
		fields["priority"] = 3.0
	}

	return telemetry.Point{
		Measurement: telemetry.MeasurementPieceTracking,
		Tags:        tags,
		Fields:      fields,
		Timestamp:   n.parseTimestamp(msg.Timestamp),
	}, nil
}

// scoreWindow consults the anomaly scorer and converts its output into
// anomalies. Insufficient data means no opinion, never an error.
func (n *Normalizer) scoreWindow(machine string, window *anomaly.Window) []telemetry.Anomaly {
	probability, warnings, err := n.scorer.Score(machine, window.Readings())
	if err != nil {
		if !errors.Is(err, anomaly.ErrInsufficientData) {
			n.log.Warn("scorer failed", "machine", machine, "error", err)
		}
		return nil
	}

	var out []telemetry.Anomaly
	for _, w := range warnings {
		out = append(out, telemetry.Anomaly{
			Category: warningCategory(w),
			Severity: telemetry.SeverityWarning,
			Message:  fmt.Sprintf("Model warning for %s: %s (failure probability %.1f%%)", machine, w, probability),
		})
	}
	if probability >= modelCriticalProbability {
		out = append(out, telemetry.Anomaly{
			Category: telemetry.CategoryModel,
			Severity: telemetry.SeverityCritical,
			Message:  fmt.Sprintf("High failure probability for %s: %.1f%%", machine, probability),
		})
	}
	return out
}

// warningCategory maps a scorer warning onto an anomaly category.
func warningCategory(w anomaly.Warning) telemetry.Category {
	switch w {
	case anomaly.WarningTemperature:
		return telemetry.CategoryTemperature
	case anomaly.WarningVibration:
		return telemetry.CategoryVibration
	default:
		return telemetry.CategoryModel
	}
}

// window returns the machine's reading window, creating it on first use.
func (n *Normalizer) window(machine string) *anomaly.Window {
	w, ok := n.windows[machine]
	if !ok {
		w = anomaly.NewWindow(n.windowSize)
		n.windows[machine] = w
	}
	return w
}

// parseTimestamp accepts RFC 3339 and a space-separated fallback
// layout. Missing or unparsable timestamps degrade silently to the
// current time with a warning.
func (n *Normalizer) parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Now().UTC()
	}

	if strings.Contains(s, "T") {
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			return ts
		}
		// ISO timestamps without a zone indicator are treated as UTC.
		if ts, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
			return ts.UTC()
		}
	} else if ts, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return ts.UTC()
	}

	n.log.Warn("could not parse timestamp, using current time", "timestamp", s)
	return time.Now().UTC()
}

// asFloat coerces a decoded JSON value to float64. encoding/json decodes
// every JSON number in a map[string]interface{} as float64.
func asFloat(v interface{}) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

// asString coerces a decoded JSON value to string.
func asString(v interface{}) (string, bool) {
	s, ok := v.(string)
	return s, ok
}
