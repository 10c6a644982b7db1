package pipeline

import "time"

// Stats holds the pipeline counters. All fields are monotonically
// non-decreasing for the process lifetime. Mutated only from the
// coordinator's processing goroutine; Snapshot copies are handed out
// for reporting.
type Stats struct {
	Received      uint64    `json:"messages_received"`
	Processed     uint64    `json:"messages_processed"`
	Dropped       uint64    `json:"messages_dropped"`
	Errors        uint64    `json:"errors"`
	PointsWritten uint64    `json:"points_written"`
	WriteErrors   uint64    `json:"write_errors"`
	AlertsWritten uint64    `json:"alerts_written"`
	AlertsDropped uint64    `json:"alerts_dropped"`
	StartTime     time.Time `json:"start_time"`
}

// Rate returns messages processed per second since start.
func (s Stats) Rate() float64 {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed < 1 {
		elapsed = 1
	}
	return float64(s.Processed) / elapsed
}
