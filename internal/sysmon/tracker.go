package sysmon

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/plantstream/core/internal/infrastructure/logging"
)

// bytesPerGB converts byte counts to gigabytes.
const bytesPerGB = 1024 * 1024 * 1024

// Metrics is one resource sample.
type Metrics struct {
	CPUPercent        float64
	FreeMemoryGB      float64
	TotalRAMGB        float64
	MemoryUsedPercent float64
	UptimeSeconds     float64
	ErrorCount        uint64
}

// Fields renders the sample as system_tracking point fields.
func (m Metrics) Fields() map[string]interface{} {
	return map[string]interface{}{
		"cpu":                 m.CPUPercent,
		"free_memory":         m.FreeMemoryGB,
		"ram":                 m.TotalRAMGB,
		"errors":              int64(m.ErrorCount),
		"memory_used_percent": m.MemoryUsedPercent,
		"uptime_seconds":      m.UptimeSeconds,
	}
}

// Tracker samples host resources. The error counter is cumulative for
// the process lifetime and safe to increment from any goroutine.
type Tracker struct {
	start  time.Time
	errors atomic.Uint64
	log    *logging.Logger
}

// New creates a Tracker anchored at the current time.
func New(log *logging.Logger) *Tracker {
	return &Tracker{
		start: time.Now(),
		log:   log.With("component", "sysmon"),
	}
}

// Sample probes CPU and memory usage. It never returns an error: a
// failed probe yields zeros and increments the error counter.
func (t *Tracker) Sample() Metrics {
	m := Metrics{
		UptimeSeconds: time.Since(t.start).Seconds(),
	}

	// Instantaneous CPU percentage since the previous call.
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		m.CPUPercent = round2(percents[0])
	} else {
		t.log.Error("cpu sample failed", "error", err)
		t.IncrementError()
		m.ErrorCount = t.errors.Load()
		return Metrics{UptimeSeconds: 0, ErrorCount: m.ErrorCount}
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		t.log.Error("memory sample failed", "error", err)
		t.IncrementError()
		return Metrics{UptimeSeconds: 0, ErrorCount: t.errors.Load()}
	}

	m.FreeMemoryGB = round2(float64(vm.Available) / bytesPerGB)
	m.TotalRAMGB = round2(float64(vm.Total) / bytesPerGB)
	m.MemoryUsedPercent = round2(vm.UsedPercent)
	m.ErrorCount = t.errors.Load()
	return m
}

// IncrementError bumps the cumulative error counter. Called by the
// pipeline whenever any stage reports a processing error.
func (t *Tracker) IncrementError() {
	t.errors.Add(1)
}

// ErrorCount returns the cumulative error count.
func (t *Tracker) ErrorCount() uint64 {
	return t.errors.Load()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
