package writer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/plantstream/core/internal/infrastructure/logging"
	"github.com/plantstream/core/internal/telemetry"
)

// writeTimeout bounds a single store call issued by a background flush.
const writeTimeout = 10 * time.Second

// Store is the outbound time-series boundary the writer flushes to.
// infrastructure/influxdb.Client satisfies it.
type Store interface {
	// WritePoints performs one bulk write of points to the data bucket.
	WritePoints(ctx context.Context, points []telemetry.Point) error

	// WriteAlert writes a single point to the alert bucket immediately.
	WriteAlert(ctx context.Context, point telemetry.Point) error
}

// entry pairs a buffered point with its enqueue time, which bounds how
// long the point stays eligible for retry after a failed flush.
type entry struct {
	point    telemetry.Point
	enqueued time.Time
}

// Stats is a snapshot of the writer's counters.
type Stats struct {
	PointsWritten uint64
	WriteErrors   uint64
	AlertsWritten uint64
	AlertsDropped uint64
}

// Writer batches points towards the store.
//
// Enqueue is safe to call concurrently with the background flush timer:
// a flush swaps the buffer out under the lock and never mutates a batch
// that is being sent, so concurrent enqueues land in a fresh buffer.
type Writer struct {
	store Store
	log   *logging.Logger

	batchSize     int
	flushInterval time.Duration
	retention     time.Duration

	bufMu sync.Mutex
	buf   []entry

	statsMu sync.Mutex
	stats   Stats

	flushTick *time.Ticker
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a Writer and starts its periodic flush goroutine.
//
// Parameters:
//   - store: Outbound store boundary
//   - batchSize: Buffer length that triggers an immediate flush
//   - flushInterval: Time-based flush cadence
//   - retention: How long a point stays retry-eligible after enqueue
//   - log: Structured logger
func New(store Store, batchSize int, flushInterval, retention time.Duration, log *logging.Logger) *Writer {
	w := &Writer{
		store:         store,
		log:           log.With("component", "writer"),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		retention:     retention,
		buf:           make([]entry, 0, batchSize),
		flushTick:     time.NewTicker(flushInterval),
		done:          make(chan struct{}),
	}

	w.wg.Add(1)
	go w.flushLoop()

	return w
}

// flushLoop flushes on the timer until Close signals done.
func (w *Writer) flushLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.flushTick.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			if err := w.Flush(ctx); err != nil {
				w.log.Error("periodic flush failed", "error", err)
			}
			cancel()
		case <-w.done:
			return
		}
	}
}

// Enqueue appends a point to the buffer and flushes when the buffer
// reaches the batch size.
func (w *Writer) Enqueue(ctx context.Context, point telemetry.Point) error {
	if err := point.Validate(); err != nil {
		return err
	}

	w.bufMu.Lock()
	w.buf = append(w.buf, entry{point: point, enqueued: time.Now()})
	shouldFlush := len(w.buf) >= w.batchSize
	w.bufMu.Unlock()

	if shouldFlush {
		return w.Flush(ctx)
	}
	return nil
}

// Flush swaps the buffer out and performs one bulk write.
//
// On success points_written grows by the batch length. On failure
// write_errors grows by one and points still within the retry retention
// are put back at the front of the buffer for the next attempt; older
// points are dropped. Flushing an empty buffer is a no-op and issues no
// store call.
func (w *Writer) Flush(ctx context.Context) error {
	w.bufMu.Lock()
	if len(w.buf) == 0 {
		w.bufMu.Unlock()
		return nil
	}
	batch := w.buf
	w.buf = make([]entry, 0, w.batchSize)
	w.bufMu.Unlock()

	points := make([]telemetry.Point, len(batch))
	for i, e := range batch {
		points[i] = e.point
	}

	if err := w.store.WritePoints(ctx, points); err != nil {
		w.statsMu.Lock()
		w.stats.WriteErrors++
		w.statsMu.Unlock()

		retained := w.requeue(batch)
		w.log.Error("flush failed",
			"error", err,
			"batch_size", len(batch),
			"retained", retained)
		return fmt.Errorf("flushing %d points: %w", len(batch), err)
	}

	w.statsMu.Lock()
	w.stats.PointsWritten += uint64(len(batch))
	w.statsMu.Unlock()

	w.log.Debug("flushed batch", "points", len(batch))
	return nil
}

// requeue puts retry-eligible entries back at the front of the buffer,
// preserving their original enqueue times, and returns how many were
// retained.
func (w *Writer) requeue(batch []entry) int {
	cutoff := time.Now().Add(-w.retention)

	retained := make([]entry, 0, len(batch))
	for _, e := range batch {
		if e.enqueued.After(cutoff) {
			retained = append(retained, e)
		}
	}

	if len(retained) > 0 {
		w.bufMu.Lock()
		w.buf = append(retained, w.buf...)
		w.bufMu.Unlock()
	}
	return len(retained)
}

// WriteAlert writes one alert point immediately, bypassing the buffer.
// A failed alert write is logged and dropped rather than retried.
func (w *Writer) WriteAlert(ctx context.Context, point telemetry.Point) {
	if err := w.store.WriteAlert(ctx, point); err != nil {
		w.statsMu.Lock()
		w.stats.AlertsDropped++
		w.statsMu.Unlock()
		w.log.Error("alert write failed, dropping",
			"measurement", point.Measurement,
			"error", err)
		return
	}

	w.statsMu.Lock()
	w.stats.AlertsWritten++
	w.statsMu.Unlock()
}

// Stats returns a snapshot of the writer counters.
func (w *Writer) Stats() Stats {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	return w.stats
}

// Pending returns the current buffer length.
func (w *Writer) Pending() int {
	w.bufMu.Lock()
	defer w.bufMu.Unlock()
	return len(w.buf)
}

// Close stops the flush timer and performs one final synchronous flush
// so no buffered point is silently lost on orderly shutdown. Safe to
// call more than once.
func (w *Writer) Close(ctx context.Context) error {
	var err error
	w.closeOnce.Do(func() {
		w.flushTick.Stop()
		close(w.done)
		w.wg.Wait()
		err = w.Flush(ctx)
	})
	return err
}
