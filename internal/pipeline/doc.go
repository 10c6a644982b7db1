// Package pipeline wires transport, normalization, anomaly scoring and
// the batched writer into a running process.
//
// The Bridge adapts callback-style MQTT delivery, which arrives on
// arbitrary broker goroutines, into a single processing goroutine owned
// by the Coordinator. Delivery never blocks the caller; messages queue
// in an unbounded multi-producer single-consumer handoff.
//
// The Coordinator runs a Stopped, Starting, Running, Stopping state
// machine. All per-message work happens on its one goroutine, so stats
// counters and the normalizer's windows need no locking. Shutdown
// drains the handoff queue and flushes the writer before returning.
package pipeline
