// Package telemetry defines the core data types flowing through the
// PlantStream pipeline: normalized time-series points, anomalies, and
// raw sensor readings.
//
// These types are deliberately free of transport and storage concerns;
// the mqtt package produces raw payloads, the normalize package turns
// them into Points, and the writer package hands them to InfluxDB.
package telemetry
