package pipeline_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/plantstream/core/internal/pipeline"
)

// =============================================================================
// Bridge Tests
// =============================================================================

func TestBridge_DeliverBeforeStartIsDropped(t *testing.T) {
	b := pipeline.NewBridge()

	if b.Deliver("/plant/data/Milling1", []byte(`{}`)) {
		t.Error("Deliver() accepted a message before Start")
	}

	if b.Len() != 0 {
		t.Errorf("Len() = %d, want 0 before Start", b.Len())
	}
	if b.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", b.Dropped())
	}
}

func TestBridge_FIFOSingleProducer(t *testing.T) {
	b := pipeline.NewBridge()
	b.Start()

	for i := 0; i < 100; i++ {
		b.Deliver("/plant/data/Milling1", []byte(fmt.Sprintf("%d", i)))
	}

	for i := 0; i < 100; i++ {
		msg, ok := b.TryNext()
		if !ok {
			t.Fatalf("TryNext() empty at %d", i)
		}
		if got := string(msg.Payload); got != fmt.Sprintf("%d", i) {
			t.Fatalf("payload = %s, want %d", got, i)
		}
	}

	if _, ok := b.TryNext(); ok {
		t.Error("TryNext() returned a message from an empty queue")
	}
}

func TestBridge_StopKeepsQueuedMessagesConsumable(t *testing.T) {
	b := pipeline.NewBridge()
	b.Start()

	if !b.Deliver("/plant/data/Milling1", []byte(`a`)) {
		t.Fatal("Deliver() rejected a message while running")
	}
	b.Deliver("/plant/data/Milling1", []byte(`b`))
	b.Stop()

	// New deliveries bounce, queued ones drain.
	if b.Deliver("/plant/data/Milling1", []byte(`c`)) {
		t.Error("Deliver() accepted a message after Stop")
	}

	if b.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", b.Dropped())
	}
	if b.Len() != 2 {
		t.Errorf("Len() = %d, want 2", b.Len())
	}
}

func TestBridge_ReadySignalsPendingWork(t *testing.T) {
	b := pipeline.NewBridge()
	b.Start()

	b.Deliver("/plant/data/Milling1", []byte(`{}`))

	select {
	case <-b.Ready():
	default:
		t.Fatal("Ready() not signalled after delivery")
	}

	if _, ok := b.TryNext(); !ok {
		t.Fatal("TryNext() empty after Ready signal")
	}
}

func TestBridge_PerProducerOrderPreserved(t *testing.T) {
	const producers = 4
	const perProducer = 250

	b := pipeline.NewBridge()
	b.Start()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				b.Deliver(fmt.Sprintf("/plant/data/M%d", p), []byte(fmt.Sprintf("%d:%d", p, i)))
			}
		}(p)
	}
	wg.Wait()

	if b.Len() != producers*perProducer {
		t.Fatalf("Len() = %d, want %d", b.Len(), producers*perProducer)
	}

	// Each producer's messages must appear in its delivery order.
	lastSeq := map[int]int{}
	total := 0
	for {
		msg, ok := b.TryNext()
		if !ok {
			break
		}
		var p, seq int
		if _, err := fmt.Sscanf(string(msg.Payload), "%d:%d", &p, &seq); err != nil {
			t.Fatalf("bad payload %q: %v", msg.Payload, err)
		}
		if last, seen := lastSeq[p]; seen && seq != last+1 {
			t.Fatalf("producer %d: seq %d followed %d", p, seq, last)
		}
		lastSeq[p] = seq
		total++
	}

	if total != producers*perProducer {
		t.Errorf("consumed %d messages, want %d", total, producers*perProducer)
	}
	for p := 0; p < producers; p++ {
		if lastSeq[p] != perProducer-1 {
			t.Errorf("producer %d last seq = %d, want %d", p, lastSeq[p], perProducer-1)
		}
	}
}
