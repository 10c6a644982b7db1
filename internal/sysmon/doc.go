// Package sysmon samples host resource usage for the system tracking
// measurement: CPU, memory, and process uptime, plus a cumulative error
// counter fed by the pipeline.
//
// Sampling fails closed: if the host probes error, Sample returns zeros
// and bumps the error counter rather than propagating the failure.
package sysmon
