package anomaly

import "github.com/plantstream/core/internal/telemetry"

// DefaultWindowSize is the per-machine reading retention used when
// configuration does not override it.
const DefaultWindowSize = 200

// Window holds the most recent readings for one machine in a fixed
// capacity ring. When full, appending evicts the oldest reading.
//
// Window is not safe for concurrent use. The pipeline owns one Window
// per machine and accesses it from a single goroutine.
type Window struct {
	buf   []telemetry.Reading
	head  int // index of the oldest reading
	count int
}

// NewWindow returns an empty window with the given capacity. A
// capacity below 1 is coerced to DefaultWindowSize.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = DefaultWindowSize
	}
	return &Window{buf: make([]telemetry.Reading, capacity)}
}

// Append adds a reading, evicting the oldest if the window is full.
func (w *Window) Append(r telemetry.Reading) {
	if w.count < len(w.buf) {
		w.buf[(w.head+w.count)%len(w.buf)] = r
		w.count++
		return
	}
	w.buf[w.head] = r
	w.head = (w.head + 1) % len(w.buf)
}

// Len returns the number of readings currently held.
func (w *Window) Len() int {
	return w.count
}

// Readings returns the held readings ordered oldest to newest. The
// returned slice is a copy and safe to retain.
func (w *Window) Readings() []telemetry.Reading {
	out := make([]telemetry.Reading, w.count)
	for i := 0; i < w.count; i++ {
		out[i] = w.buf[(w.head+i)%len(w.buf)]
	}
	return out
}
