// Package normalize converts raw inbound MQTT messages into canonical
// time-series points plus any detected anomalies.
//
// Routing is topic-driven: data topics carry sensor readings, tracking
// topics carry either piece tracking or machine events depending on the
// payload's entity discriminator. Malformed messages fail with
// ErrMalformedMessage; the caller drops and counts them, processing
// continues.
//
// Anomaly detection runs in two independent layers merged into one
// list: fixed thresholds evaluated directly on the extracted fields,
// and a pluggable scorer consulted with the machine's recent reading
// window. The two layers may flag the same condition twice.
package normalize
