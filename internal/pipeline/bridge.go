package pipeline

import (
	"sync"
	"sync/atomic"
	"time"
)

// RawMessage is one inbound message as received from the transport,
// owned solely by the Bridge until handed to the consumer.
type RawMessage struct {
	Topic   string
	Payload []byte
	Arrival time.Time
}

// Bridge is an unbounded multi-producer single-consumer handoff queue.
//
// Deliver may be called from any goroutine and never blocks. The
// consumer side (Ready plus TryNext) must be used from one goroutine
// only. Messages from a single producer goroutine are consumed in the
// order that producer delivered them.
type Bridge struct {
	mu      sync.Mutex
	queue   []RawMessage
	running bool

	// notify wakes the consumer. One buffered slot is enough: the
	// consumer drains the whole queue per wakeup.
	notify chan struct{}

	dropped atomic.Uint64
}

// NewBridge returns a bridge that is not yet accepting messages.
func NewBridge() *Bridge {
	return &Bridge{
		notify: make(chan struct{}, 1),
	}
}

// Start begins accepting deliveries.
func (b *Bridge) Start() {
	b.mu.Lock()
	b.running = true
	b.mu.Unlock()
}

// Stop ceases accepting new deliveries. Messages already queued remain
// consumable so the owner can drain on shutdown.
func (b *Bridge) Stop() {
	b.mu.Lock()
	b.running = false
	b.mu.Unlock()
}

// Deliver enqueues one message. Never blocks. Messages delivered while
// the bridge is not running are dropped and counted; Deliver reports
// whether the message was accepted so the owner can log the drop.
func (b *Bridge) Deliver(topic string, payload []byte) bool {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		b.dropped.Add(1)
		return false
	}
	b.queue = append(b.queue, RawMessage{
		Topic:   topic,
		Payload: payload,
		Arrival: time.Now(),
	})
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
	return true
}

// Ready returns a channel that signals when messages may be pending.
// After a wakeup the consumer should drain with TryNext until it
// returns false.
func (b *Bridge) Ready() <-chan struct{} {
	return b.notify
}

// TryNext pops the oldest queued message without blocking.
func (b *Bridge) TryNext() (RawMessage, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return RawMessage{}, false
	}
	msg := b.queue[0]
	b.queue = b.queue[1:]
	if len(b.queue) == 0 {
		// Release the backing array so a drained burst is collectable.
		b.queue = nil
	}
	return msg, true
}

// Len returns the number of queued messages.
func (b *Bridge) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Dropped returns how many deliveries arrived while the bridge was not
// accepting.
func (b *Bridge) Dropped() uint64 {
	return b.dropped.Load()
}
