// Package writer accumulates normalized points and flushes them to the
// time-series store in bounded batches.
//
// Flushes trigger on batch size or on a periodic timer, whichever comes
// first, bounding point staleness under low traffic. A failed flush
// re-buffers only points younger than the retry retention; older points
// are dropped so the buffer cannot grow without bound during extended
// store outages.
//
// Alert-class anomalies bypass the buffer entirely and are written
// immediately to a separate bucket. A failed alert write is logged and
// dropped, never retried.
package writer
