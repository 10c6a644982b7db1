package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/plantstream/core/internal/anomaly"
	"github.com/plantstream/core/internal/infrastructure/config"
	"github.com/plantstream/core/internal/infrastructure/logging"
	"github.com/plantstream/core/internal/infrastructure/mqtt"
	"github.com/plantstream/core/internal/normalize"
	"github.com/plantstream/core/internal/pipeline"
	"github.com/plantstream/core/internal/sysmon"
	"github.com/plantstream/core/internal/telemetry"
	"github.com/plantstream/core/internal/writer"
)

// =============================================================================
// Test Helpers
// =============================================================================

// fakeTransport records subscriptions and lets tests inject messages by
// invoking the registered handlers, mimicking broker callbacks.
type fakeTransport struct {
	mu        sync.Mutex
	handlers  map[string]mqtt.MessageHandler
	connected bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		handlers:  make(map[string]mqtt.MessageHandler),
		connected: true,
	}
}

func (f *fakeTransport) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

func (f *fakeTransport) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, topic)
	return nil
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// inject simulates a broker delivery on an arbitrary goroutine.
func (f *fakeTransport) inject(t *testing.T, pattern, topic string, payload []byte) {
	t.Helper()
	f.mu.Lock()
	handler, ok := f.handlers[pattern]
	f.mu.Unlock()
	if !ok {
		t.Fatalf("no handler registered for %s", pattern)
	}
	if err := handler(topic, payload); err != nil {
		t.Fatalf("handler error: %v", err)
	}
}

// fakeStore mirrors the writer test double.
type fakeStore struct {
	mu     sync.Mutex
	bulk   [][]telemetry.Point
	alerts []telemetry.Point
}

func (s *fakeStore) WritePoints(_ context.Context, points []telemetry.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := make([]telemetry.Point, len(points))
	copy(batch, points)
	s.bulk = append(s.bulk, batch)
	return nil
}

func (s *fakeStore) WriteAlert(_ context.Context, point telemetry.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, point)
	return nil
}

func (s *fakeStore) alertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

func (s *fakeStore) bulkPointCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, batch := range s.bulk {
		n += len(batch)
	}
	return n
}

// testHarness bundles a coordinator with its collaborators.
type testHarness struct {
	coordinator *pipeline.Coordinator
	transport   *fakeTransport
	store       *fakeStore
	tracker     *sysmon.Tracker
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	cfg := config.Default()
	cfg.Processing.BatchSize = 100 // keep size flushes out of the way
	log := logging.Default()

	store := &fakeStore{}
	w := writer.New(store, cfg.Processing.BatchSize, time.Hour, cfg.GetRetryRetention(), log)
	tracker := sysmon.New(log)
	n := normalize.New(cfg.Thresholds, anomaly.NewThresholdScorer(), nil, cfg.Processing.WindowSize, log)
	transport := newFakeTransport()

	c := pipeline.New(transport, n, w, tracker, cfg, log)
	t.Cleanup(c.Stop)

	return &testHarness{coordinator: c, transport: transport, store: store, tracker: tracker}
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

var topics = mqtt.Topics{}

// =============================================================================
// Lifecycle Tests
// =============================================================================

func TestCoordinator_StartSubscribesAndRuns(t *testing.T) {
	h := newHarness(t)

	if h.coordinator.State() != pipeline.StateStopped {
		t.Fatalf("initial state = %s, want stopped", h.coordinator.State())
	}

	if err := h.coordinator.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if h.coordinator.State() != pipeline.StateRunning {
		t.Errorf("state = %s, want running", h.coordinator.State())
	}

	h.transport.mu.Lock()
	subs := len(h.transport.handlers)
	h.transport.mu.Unlock()
	if subs != 3 {
		t.Errorf("subscriptions = %d, want 3", subs)
	}
}

func TestCoordinator_StartTwiceFails(t *testing.T) {
	h := newHarness(t)

	if err := h.coordinator.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := h.coordinator.Start(context.Background()); !errors.Is(err, pipeline.ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}
}

func TestCoordinator_StartFailsWhenDisconnected(t *testing.T) {
	h := newHarness(t)
	h.transport.connected = false

	err := h.coordinator.Start(context.Background())
	if !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("Start() error = %v, want ErrNotConnected", err)
	}
	if h.coordinator.State() != pipeline.StateStopped {
		t.Errorf("state = %s, want stopped after failed start", h.coordinator.State())
	}
}

func TestCoordinator_StopIsIdempotent(t *testing.T) {
	h := newHarness(t)

	if err := h.coordinator.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	h.coordinator.Stop()
	h.coordinator.Stop()

	if h.coordinator.State() != pipeline.StateStopped {
		t.Errorf("state = %s, want stopped", h.coordinator.State())
	}
}

// =============================================================================
// Processing Tests
// =============================================================================

func TestCoordinator_ProcessesSensorMessage(t *testing.T) {
	h := newHarness(t)

	if err := h.coordinator.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	h.transport.inject(t, topics.DataReadings(), "/plant/data/Milling1",
		[]byte(`{"entity":"Milling1","data":{"temperature":65.0}}`))

	waitFor(t, "message processed", func() bool {
		return h.coordinator.Stats().Processed == 1
	})

	// Shutdown drains and flushes the buffered point.
	h.coordinator.Stop()

	if got := h.store.bulkPointCount(); got != 1 {
		t.Errorf("points written = %d, want 1", got)
	}
	if got := h.store.alertCount(); got != 0 {
		t.Errorf("alerts = %d, want 0 for healthy reading", got)
	}
}

func TestCoordinator_MalformedMessageCounted(t *testing.T) {
	h := newHarness(t)

	if err := h.coordinator.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	h.transport.inject(t, topics.DataReadings(), "/plant/data/Milling1",
		[]byte(`{"data":{"temperature":65.0}}`)) // missing entity

	waitFor(t, "error counted", func() bool {
		return h.coordinator.Stats().Errors == 1
	})

	stats := h.coordinator.Stats()
	if stats.Received != 1 {
		t.Errorf("Received = %d, want 1", stats.Received)
	}
	if stats.Processed != 0 {
		t.Errorf("Processed = %d, want 0", stats.Processed)
	}
	if h.tracker.ErrorCount() != 1 {
		t.Errorf("tracker errors = %d, want 1", h.tracker.ErrorCount())
	}

	h.coordinator.Stop()
	if got := h.store.bulkPointCount(); got != 0 {
		t.Errorf("points written = %d, want 0 for malformed message", got)
	}
}

func TestCoordinator_CriticalAnomalyTakesAlertPath(t *testing.T) {
	h := newHarness(t)

	if err := h.coordinator.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	h.transport.inject(t, topics.DataReadings(), "/plant/data/Milling1",
		[]byte(`{"entity":"Milling1","data":{"temperature":95.0}}`))

	// The alert is written immediately, before any batch flush.
	waitFor(t, "alert written", func() bool {
		return h.store.alertCount() == 1
	})
	if got := h.store.bulkPointCount(); got != 0 {
		t.Errorf("bulk points = %d, want 0 before flush", got)
	}

	h.store.mu.Lock()
	alert := h.store.alerts[0]
	h.store.mu.Unlock()

	if alert.Measurement != "temperature_alerts" {
		t.Errorf("alert measurement = %s, want temperature_alerts", alert.Measurement)
	}
	if alert.Tags["severity"] != "critical" {
		t.Errorf("severity tag = %s, want critical", alert.Tags["severity"])
	}
	if alert.Tags["machine"] != "Milling1" {
		t.Errorf("machine tag = %s, want Milling1", alert.Tags["machine"])
	}
	if alert.Tags["alert_type"] != "anomaly" {
		t.Errorf("alert_type tag = %s, want anomaly", alert.Tags["alert_type"])
	}
	if got, ok := alert.Fields["resolved"]; !ok || got != false {
		t.Errorf("resolved field = %v (present=%v), want false", got, ok)
	}

	// The sensor point itself still flows through the batch path.
	h.coordinator.Stop()
	if got := h.store.bulkPointCount(); got != 1 {
		t.Errorf("points written = %d, want 1", got)
	}
}

func TestCoordinator_TrackingMessageRouted(t *testing.T) {
	h := newHarness(t)

	if err := h.coordinator.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	h.transport.inject(t, topics.TrackingEvents(), "/plant/tracking/piece",
		[]byte(`{"entity":"piece","event":"move_start","data":{"piece_id":"PZ001","from":"Warehouse","to":"Saw1"}}`))

	waitFor(t, "message processed", func() bool {
		return h.coordinator.Stats().Processed == 1
	})

	h.coordinator.Stop()

	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	if len(h.store.bulk) != 1 || len(h.store.bulk[0]) != 1 {
		t.Fatalf("bulk calls = %v, want one call with one point", h.store.bulk)
	}
	if got := h.store.bulk[0][0].Measurement; got != telemetry.MeasurementPieceTracking {
		t.Errorf("measurement = %s, want piece_tracking", got)
	}
}

func TestCoordinator_ConcurrentDeliveriesAllProcessed(t *testing.T) {
	h := newHarness(t)

	if err := h.coordinator.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	const producers = 4
	const perProducer = 250

	h.transport.mu.Lock()
	handler := h.transport.handlers[topics.DataReadings()]
	h.transport.mu.Unlock()
	if handler == nil {
		t.Fatal("no data handler registered")
	}

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				_ = handler("/plant/data/Milling1",
					[]byte(`{"entity":"Milling1","data":{"temperature":50.0}}`))
			}
		}()
	}
	wg.Wait()

	waitFor(t, "all messages processed", func() bool {
		return h.coordinator.Stats().Processed == producers*perProducer
	})
}

func TestCoordinator_LateDeliveryCountedInStats(t *testing.T) {
	h := newHarness(t)

	if err := h.coordinator.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// The broker keeps the handler after we stop; a late callback must
	// bounce without raising, and the drop must show up in the snapshot.
	h.transport.mu.Lock()
	handler := h.transport.handlers[topics.DataReadings()]
	h.transport.mu.Unlock()

	h.coordinator.Stop()

	if err := handler("/plant/data/Milling1",
		[]byte(`{"entity":"Milling1","data":{"temperature":50.0}}`)); err != nil {
		t.Fatalf("late handler call error = %v", err)
	}

	stats := h.coordinator.Stats()
	if stats.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", stats.Dropped)
	}
	if stats.Received != 0 {
		t.Errorf("Received = %d, want 0 for a dropped delivery", stats.Received)
	}
	if got := h.store.bulkPointCount(); got != 0 {
		t.Errorf("points written = %d, want 0", got)
	}
}

func TestCoordinator_StatsEveryNEmitsSystemTracking(t *testing.T) {
	h := newHarness(t)

	if err := h.coordinator.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// The default cadence emits after 100 processed messages.
	for i := 0; i < 100; i++ {
		h.transport.inject(t, topics.DataReadings(), "/plant/data/Milling1",
			[]byte(`{"entity":"Milling1","data":{"temperature":50.0}}`))
	}

	waitFor(t, "all messages processed", func() bool {
		return h.coordinator.Stats().Processed == 100
	})

	h.coordinator.Stop()

	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	found := false
	for _, batch := range h.store.bulk {
		for _, p := range batch {
			if p.Measurement == telemetry.MeasurementSystemTracking {
				found = true
				if _, ok := p.Fields["cpu"]; !ok {
					t.Error("system tracking point missing cpu field")
				}
				if got := p.Fields["messages_processed"]; got != int64(100) {
					t.Errorf("messages_processed = %v, want 100", got)
				}
			}
		}
	}
	if !found {
		t.Error("no system_tracking point written after 100 messages")
	}
}
