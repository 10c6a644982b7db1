// Package influxdb provides InfluxDB connectivity for PlantStream.
//
// It wraps the official influxdb-client-go v2 library with PlantStream-specific
// patterns for connection management, bulk point writes, and health monitoring.
//
// # Purpose
//
// This package handles time-series storage for:
//   - Normalized sensor, machine-event, and piece-tracking points (data bucket)
//   - Immediate anomaly alerts (alert bucket)
//   - System tracking metrics
//
// # Write Semantics
//
// Writes use the blocking API deliberately. The batched writer in
// internal/writer owns all buffering, size/time flush triggers, and the
// bounded-retention retry policy; this package only executes one
// synchronous bulk write per flush so failures surface to the caller.
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.WritePoints(ctx, batch)
package influxdb
