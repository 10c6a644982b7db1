package normalize

import (
	"fmt"

	"github.com/plantstream/core/internal/telemetry"
)

// checkThresholds evaluates fixed-threshold rules against the numeric
// fields of one sensor reading. All comparisons against warning and
// critical limits are strict: a value exactly at the critical limit is
// still only a warning.
func (n *Normalizer) checkThresholds(machine string, values map[string]float64) []telemetry.Anomaly {
	var out []telemetry.Anomaly

	if temp, ok := values["temperature"]; ok {
		t := n.thresholds.Temperature
		switch {
		case temp > t.Critical:
			out = append(out, telemetry.Anomaly{
				Category: telemetry.CategoryTemperature,
				Severity: telemetry.SeverityCritical,
				Message:  fmt.Sprintf("Critical temperature: %.1f°C", temp),
			})
		case temp > t.Warning:
			out = append(out, telemetry.Anomaly{
				Category: telemetry.CategoryTemperature,
				Severity: telemetry.SeverityWarning,
				Message:  fmt.Sprintf("High temperature: %.1f°C", temp),
			})
		}
	}

	if vib, ok := values["vibration_level"]; ok {
		t := n.thresholds.Vibration
		switch {
		case vib > t.Critical:
			out = append(out, telemetry.Anomaly{
				Category: telemetry.CategoryVibration,
				Severity: telemetry.SeverityCritical,
				Message:  fmt.Sprintf("Critical vibration: %.2fg", vib),
			})
		case vib > t.Warning:
			out = append(out, telemetry.Anomaly{
				Category: telemetry.CategoryVibration,
				Severity: telemetry.SeverityWarning,
				Message:  fmt.Sprintf("High vibration: %.2fg", vib),
			})
		}
	}

	if power, ok := values["power"]; ok {
		t := n.thresholds.Power
		switch {
		case power > t.Critical:
			out = append(out, telemetry.Anomaly{
				Category: telemetry.CategoryPower,
				Severity: telemetry.SeverityCritical,
				Message:  fmt.Sprintf("Critical power consumption: %.2fkW", power),
			})
		case power > t.Warning:
			out = append(out, telemetry.Anomaly{
				Category: telemetry.CategoryPower,
				Severity: telemetry.SeverityWarning,
				Message:  fmt.Sprintf("High power consumption: %.2fkW", power),
			})
		case power < t.LowFloor:
			out = append(out, telemetry.Anomaly{
				Category: telemetry.CategoryPower,
				Severity: telemetry.SeverityWarning,
				Message:  fmt.Sprintf("Suspiciously low power: %.2fkW", power),
			})
		}
	}

	if rpm, ok := values["rpm_spindle"]; ok {
		if band, checked := rpmBands[MachineType(machine)]; checked {
			if rpm < band.min || rpm > band.max {
				out = append(out, telemetry.Anomaly{
					Category: telemetry.CategoryRPM,
					Severity: telemetry.SeverityWarning,
					Message:  fmt.Sprintf("Abnormal RPM for %s: %.0f", MachineType(machine), rpm),
				})
			}
		}
	}

	return out
}
