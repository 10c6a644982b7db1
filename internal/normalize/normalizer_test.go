package normalize_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/plantstream/core/internal/anomaly"
	"github.com/plantstream/core/internal/infrastructure/config"
	"github.com/plantstream/core/internal/infrastructure/logging"
	"github.com/plantstream/core/internal/normalize"
	"github.com/plantstream/core/internal/telemetry"
)

// =============================================================================
// Test Helpers
// =============================================================================

const (
	dataTopic     = "/plant/data/Milling1"
	trackingTopic = "/plant/tracking/Milling1"
)

// stubScorer returns a fixed score for every call.
type stubScorer struct {
	probability float64
	warnings    []anomaly.Warning
	err         error
}

func (s *stubScorer) Score(string, []telemetry.Reading) (float64, []anomaly.Warning, error) {
	return s.probability, s.warnings, s.err
}

// stubMaterials is a fixed piece material table.
type stubMaterials map[string]string

func (m stubMaterials) Material(pieceID string) (string, bool) {
	v, ok := m[pieceID]
	return v, ok
}

func newNormalizer(t *testing.T, scorer anomaly.Scorer, materials normalize.MaterialLookup) *normalize.Normalizer {
	t.Helper()
	if scorer == nil {
		scorer = anomaly.NewThresholdScorer()
	}
	return normalize.New(config.Default().Thresholds, scorer, materials, 50, logging.Default())
}

// =============================================================================
// Routing Tests
// =============================================================================

func TestNormalize_UnknownTopic(t *testing.T) {
	n := newNormalizer(t, nil, nil)

	_, _, err := n.Normalize("/plant/other/Milling1", []byte(`{"entity":"Milling1","data":{"temperature":50}}`))
	if !errors.Is(err, normalize.ErrMalformedMessage) {
		t.Errorf("Normalize() error = %v, want ErrMalformedMessage", err)
	}
}

func TestNormalize_InvalidJSON(t *testing.T) {
	n := newNormalizer(t, nil, nil)

	_, _, err := n.Normalize(dataTopic, []byte(`{not json`))
	if !errors.Is(err, normalize.ErrMalformedMessage) {
		t.Errorf("Normalize() error = %v, want ErrMalformedMessage", err)
	}
}

func TestNormalize_TrackingRoutesByEntity(t *testing.T) {
	n := newNormalizer(t, nil, nil)

	// entity "piece" routes to piece tracking.
	point, _, err := n.Normalize(trackingTopic,
		[]byte(`{"entity":"piece","event":"move_start","data":{"piece_id":"PZ001"}}`))
	if err != nil {
		t.Fatalf("Normalize(piece) error = %v", err)
	}
	if point.Measurement != telemetry.MeasurementPieceTracking {
		t.Errorf("measurement = %s, want piece_tracking", point.Measurement)
	}

	// Any other entity routes to machine events.
	point, _, err = n.Normalize(trackingTopic,
		[]byte(`{"entity":"Milling1","event":"setup_start","data":{}}`))
	if err != nil {
		t.Fatalf("Normalize(machine) error = %v", err)
	}
	if point.Measurement != telemetry.MeasurementMachineEvent {
		t.Errorf("measurement = %s, want machine_events", point.Measurement)
	}
}

// =============================================================================
// Sensor Data Tests
// =============================================================================

func TestNormalize_SensorData(t *testing.T) {
	n := newNormalizer(t, nil, nil)

	payload := []byte(`{
		"entity": "Milling1",
		"data": {"temperature": 65.5, "vibration_level": 1.2, "operator": "smith"},
		"timestamp": "2026-08-25T10:30:00Z"
	}`)

	point, anomalies, err := n.Normalize(dataTopic, payload)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if point.Measurement != telemetry.MeasurementSensor {
		t.Errorf("measurement = %s, want sensor_data", point.Measurement)
	}
	if point.Tags["machine"] != "Milling1" {
		t.Errorf("machine tag = %q, want Milling1", point.Tags["machine"])
	}
	if point.Tags["machine_type"] != "Milling" {
		t.Errorf("machine_type tag = %q, want Milling", point.Tags["machine_type"])
	}
	if point.Tags["location"] != "workshop_A" {
		t.Errorf("location tag = %q, want workshop_A", point.Tags["location"])
	}

	// Only numeric values become fields.
	if _, ok := point.Fields["operator"]; ok {
		t.Error("non-numeric value promoted to field")
	}
	if got := point.Fields["temperature"]; got != 65.5 {
		t.Errorf("temperature field = %v, want 65.5", got)
	}
	if got := point.Fields["vibration_level"]; got != 1.2 {
		t.Errorf("vibration_level field = %v, want 1.2", got)
	}

	want := time.Date(2026, 8, 25, 10, 30, 0, 0, time.UTC)
	if !point.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", point.Timestamp, want)
	}

	if len(anomalies) != 0 {
		t.Errorf("anomalies = %v, want none for healthy reading", anomalies)
	}
}

func TestNormalize_SensorMissingEntity(t *testing.T) {
	n := newNormalizer(t, nil, nil)

	_, _, err := n.Normalize(dataTopic, []byte(`{"data":{"temperature":50}}`))
	if !errors.Is(err, normalize.ErrMalformedMessage) {
		t.Errorf("Normalize() error = %v, want ErrMalformedMessage", err)
	}
}

func TestNormalize_SensorMissingData(t *testing.T) {
	n := newNormalizer(t, nil, nil)

	_, _, err := n.Normalize(dataTopic, []byte(`{"entity":"Milling1"}`))
	if !errors.Is(err, normalize.ErrMalformedMessage) {
		t.Errorf("Normalize() error = %v, want ErrMalformedMessage", err)
	}
}

// =============================================================================
// Threshold Tests
// =============================================================================

func TestNormalize_ThresholdBoundaries(t *testing.T) {
	tests := []struct {
		name         string
		field        string
		value        float64
		wantCategory telemetry.Category
		wantSeverity telemetry.Severity
		wantNone     bool
	}{
		{"temperature at critical limit is warning", "temperature", 90.0, telemetry.CategoryTemperature, telemetry.SeverityWarning, false},
		{"temperature above critical", "temperature", 90.01, telemetry.CategoryTemperature, telemetry.SeverityCritical, false},
		{"temperature at warning limit is normal", "temperature", 80.0, "", "", true},
		{"temperature above warning", "temperature", 80.5, telemetry.CategoryTemperature, telemetry.SeverityWarning, false},
		{"vibration at warning limit is normal", "vibration_level", 2.5, "", "", true},
		{"vibration above warning", "vibration_level", 2.6, telemetry.CategoryVibration, telemetry.SeverityWarning, false},
		{"vibration at critical limit is warning", "vibration_level", 3.0, telemetry.CategoryVibration, telemetry.SeverityWarning, false},
		{"vibration above critical", "vibration_level", 3.1, telemetry.CategoryVibration, telemetry.SeverityCritical, false},
		{"power above critical", "power", 8.5, telemetry.CategoryPower, telemetry.SeverityCritical, false},
		{"power above warning", "power", 6.0, telemetry.CategoryPower, telemetry.SeverityWarning, false},
		{"power suspiciously low", "power", 0.05, telemetry.CategoryPower, telemetry.SeverityWarning, false},
		{"power at low floor is normal", "power", 0.1, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := newNormalizer(t, nil, nil)

			payload := fmt.Sprintf(`{"entity":"Milling1","data":{%q:%v}}`, tt.field, tt.value)
			_, anomalies, err := n.Normalize(dataTopic, []byte(payload))
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}

			if tt.wantNone {
				if len(anomalies) != 0 {
					t.Fatalf("anomalies = %v, want none", anomalies)
				}
				return
			}

			if len(anomalies) != 1 {
				t.Fatalf("got %d anomalies, want 1: %v", len(anomalies), anomalies)
			}
			if anomalies[0].Category != tt.wantCategory {
				t.Errorf("category = %s, want %s", anomalies[0].Category, tt.wantCategory)
			}
			if anomalies[0].Severity != tt.wantSeverity {
				t.Errorf("severity = %s, want %s", anomalies[0].Severity, tt.wantSeverity)
			}
		})
	}
}

func TestNormalize_RPMBands(t *testing.T) {
	tests := []struct {
		machine  string
		rpm      float64
		wantFlag bool
	}{
		{"Milling1", 2000, false},
		{"Milling1", 999, true},
		{"Milling1", 4001, true},
		{"Milling1", 1000, false},
		{"Milling1", 4000, false},
		{"Lathe1", 1500, false},
		{"Lathe1", 499, true},
		{"Lathe1", 3001, true},
		{"Saw1", 9999, false},
		{"Press1", 9999, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_%v", tt.machine, tt.rpm), func(t *testing.T) {
			n := newNormalizer(t, nil, nil)

			topic := "/plant/data/" + tt.machine
			payload := fmt.Sprintf(`{"entity":%q,"data":{"rpm_spindle":%v}}`, tt.machine, tt.rpm)
			_, anomalies, err := n.Normalize(topic, []byte(payload))
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}

			flagged := len(anomalies) > 0
			if flagged != tt.wantFlag {
				t.Errorf("flagged = %v, want %v (anomalies: %v)", flagged, tt.wantFlag, anomalies)
			}
			if flagged && anomalies[0].Category != telemetry.CategoryRPM {
				t.Errorf("category = %s, want rpm", anomalies[0].Category)
			}
		})
	}
}

// =============================================================================
// Scorer Integration Tests
// =============================================================================

func TestNormalize_MergesModelWarnings(t *testing.T) {
	scorer := &stubScorer{
		probability: 40,
		warnings:    []anomaly.Warning{anomaly.WarningTemperature},
	}
	n := newNormalizer(t, scorer, nil)

	// A reading above the temperature warning threshold plus a model
	// temperature warning yields both, not de-duplicated.
	payload := []byte(`{"entity":"Milling1","data":{"temperature":85}}`)
	_, anomalies, err := n.Normalize(dataTopic, payload)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if len(anomalies) != 2 {
		t.Fatalf("got %d anomalies, want 2: %v", len(anomalies), anomalies)
	}
	for _, a := range anomalies {
		if a.Category != telemetry.CategoryTemperature {
			t.Errorf("category = %s, want temperature", a.Category)
		}
	}
}

func TestNormalize_HighProbabilityCritical(t *testing.T) {
	scorer := &stubScorer{probability: 85}
	n := newNormalizer(t, scorer, nil)

	payload := []byte(`{"entity":"Milling1","data":{"temperature":50}}`)
	_, anomalies, err := n.Normalize(dataTopic, payload)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if len(anomalies) != 1 {
		t.Fatalf("got %d anomalies, want 1: %v", len(anomalies), anomalies)
	}
	if anomalies[0].Category != telemetry.CategoryModel || anomalies[0].Severity != telemetry.SeverityCritical {
		t.Errorf("anomaly = %+v, want critical model anomaly", anomalies[0])
	}
}

func TestNormalize_InsufficientDataIsNoOpinion(t *testing.T) {
	scorer := &stubScorer{err: anomaly.ErrInsufficientData}
	n := newNormalizer(t, scorer, nil)

	payload := []byte(`{"entity":"Milling1","data":{"temperature":50}}`)
	_, anomalies, err := n.Normalize(dataTopic, payload)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if len(anomalies) != 0 {
		t.Errorf("anomalies = %v, want none when scorer abstains", anomalies)
	}
}

// =============================================================================
// Machine Event Tests
// =============================================================================

func TestNormalize_MachineEventStart(t *testing.T) {
	n := newNormalizer(t, nil, nil)

	payload := []byte(`{
		"entity": "Lathe1",
		"event": "setup_start",
		"data": {"piece_id": "PZ003", "tool": "T12"},
		"timestamp": "2026-08-25 09:00:00"
	}`)

	point, _, err := n.Normalize(trackingTopic, payload)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if point.Tags["machine"] != "Lathe1" || point.Tags["event_type"] != "setup_start" {
		t.Errorf("tags = %v, want machine and event_type", point.Tags)
	}
	if point.Tags["piece_id"] != "PZ003" || point.Tags["tool"] != "T12" {
		t.Errorf("tags = %v, want piece_id and tool promoted", point.Tags)
	}
	if got := point.Fields["duration"]; got != 0.0 {
		t.Errorf("duration = %v, want 0 for start event", got)
	}
	if got := point.Fields["status"]; got != "active" {
		t.Errorf("status = %v, want active", got)
	}

	want := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	if !point.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", point.Timestamp, want)
	}
}

func TestNormalize_MachineEventProcessingEnd(t *testing.T) {
	n := newNormalizer(t, nil, nil)

	payload := []byte(`{
		"entity": "Milling1",
		"event": "processing_end",
		"data": {"duration": 42.5, "tool_wear": 12.3, "cycle_time": 55.0}
	}`)

	point, _, err := n.Normalize(trackingTopic, payload)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if got := point.Fields["duration"]; got != 42.5 {
		t.Errorf("duration = %v, want 42.5", got)
	}
	if got := point.Fields["status"]; got != "completed" {
		t.Errorf("status = %v, want completed", got)
	}
	if got := point.Fields["tool_wear"]; got != 12.3 {
		t.Errorf("tool_wear = %v, want 12.3", got)
	}
	if got := point.Fields["cycle_time"]; got != 55.0 {
		t.Errorf("cycle_time = %v, want 55.0", got)
	}
}

func TestNormalize_MachineEventMissingEvent(t *testing.T) {
	n := newNormalizer(t, nil, nil)

	_, _, err := n.Normalize(trackingTopic, []byte(`{"entity":"Milling1","data":{}}`))
	if !errors.Is(err, normalize.ErrMalformedMessage) {
		t.Errorf("Normalize() error = %v, want ErrMalformedMessage", err)
	}
}

// =============================================================================
// Piece Tracking Tests
// =============================================================================

func TestNormalize_PieceTracking(t *testing.T) {
	n := newNormalizer(t, nil, stubMaterials{"PZ777": "titanium"})

	payload := []byte(`{
		"entity": "piece",
		"event": "move_end",
		"data": {"piece_id": "PZ777", "from": "Saw1", "to": "Milling1", "duration": 12.0, "priority": 1}
	}`)

	point, _, err := n.Normalize(trackingTopic, payload)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if point.Tags["piece_id"] != "PZ777" {
		t.Errorf("piece_id tag = %q, want PZ777", point.Tags["piece_id"])
	}
	if point.Tags["from_station"] != "Saw1" || point.Tags["to_station"] != "Milling1" {
		t.Errorf("station tags = %v", point.Tags)
	}
	if point.Tags["material"] != "titanium" {
		t.Errorf("material tag = %q, want titanium", point.Tags["material"])
	}
	if got := point.Fields["distance"]; got != 25.0 {
		t.Errorf("distance = %v, want 25.0", got)
	}
	if got := point.Fields["duration"]; got != 12.0 {
		t.Errorf("duration = %v, want 12.0", got)
	}
	if got := point.Fields["priority"]; got != 1.0 {
		t.Errorf("priority = %v, want 1", got)
	}
}

func TestNormalize_PieceTrackingDefaults(t *testing.T) {
	n := newNormalizer(t, nil, nil)

	payload := []byte(`{
		"entity": "piece",
		"event": "move_start",
		"data": {"piece_id": "PZ001", "from": "Lathe1", "to": "Saw1"}
	}`)

	point, _, err := n.Normalize(trackingTopic, payload)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if got := point.Fields["duration"]; got != 0.0 {
		t.Errorf("duration = %v, want 0 for start event", got)
	}
	if got := point.Fields["priority"]; got != 3.0 {
		t.Errorf("priority = %v, want default 3", got)
	}
	// Lathe1-Saw1 reversed matches the Saw1-Lathe1 table entry.
	if got := point.Fields["distance"]; got != 40.0 {
		t.Errorf("distance = %v, want symmetric lookup 40.0", got)
	}
}

func TestNormalize_PieceTrackingMissingPieceID(t *testing.T) {
	n := newNormalizer(t, nil, nil)

	payload := []byte(`{"entity":"piece","event":"move_start","data":{"from":"Saw1"}}`)
	_, _, err := n.Normalize(trackingTopic, payload)
	if !errors.Is(err, normalize.ErrMalformedMessage) {
		t.Errorf("Normalize() error = %v, want ErrMalformedMessage", err)
	}
}

// =============================================================================
// Helper Tests
// =============================================================================

func TestMachineType(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Milling1", "Milling"},
		{"MILLING2", "Milling"},
		{"Lathe1", "Lathe"},
		{"saw5", "Saw"},
		{"Press1", "Unknown"},
		{"", "Unknown"},
	}

	for _, tt := range tests {
		if got := normalize.MachineType(tt.name); got != tt.want {
			t.Errorf("MachineType(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestStationDistance_DefaultForUnknownPair(t *testing.T) {
	if got := normalize.StationDistance("Nowhere", "Elsewhere"); got != 30.0 {
		t.Errorf("StationDistance() = %v, want default 30.0", got)
	}
}

func TestNormalize_FallbackTimestampIsNow(t *testing.T) {
	n := newNormalizer(t, nil, nil)

	before := time.Now().UTC()
	point, _, err := n.Normalize(dataTopic,
		[]byte(`{"entity":"Milling1","data":{"temperature":50},"timestamp":"garbage"}`))
	after := time.Now().UTC()
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if point.Timestamp.Before(before) || point.Timestamp.After(after) {
		t.Errorf("timestamp = %v, want within [%v, %v]", point.Timestamp, before, after)
	}
}
