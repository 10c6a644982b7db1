package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/plantstream/core/internal/infrastructure/config"
	"github.com/plantstream/core/internal/infrastructure/logging"
	"github.com/plantstream/core/internal/infrastructure/mqtt"
	"github.com/plantstream/core/internal/sysmon"
	"github.com/plantstream/core/internal/telemetry"
	"github.com/plantstream/core/internal/writer"
)

// State is the coordinator lifecycle state.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ErrAlreadyStarted indicates Start was called outside the Stopped state.
var ErrAlreadyStarted = errors.New("pipeline: coordinator already started")

// Transport is the inbound subscription boundary. The
// infrastructure/mqtt Client satisfies it.
type Transport interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// Normalizer converts one raw message into a point plus anomalies.
type Normalizer interface {
	Normalize(topic string, payload []byte) (telemetry.Point, []telemetry.Anomaly, error)
}

// Coordinator owns the pipeline's single processing goroutine, its
// counters, and the periodic statistics cadence.
type Coordinator struct {
	transport  Transport
	normalizer Normalizer
	writer     *writer.Writer
	tracker    *sysmon.Tracker
	bridge     *Bridge
	log        *logging.Logger

	qos           byte
	statsInterval time.Duration
	statsEvery    uint64

	stateMu sync.Mutex
	state   State

	statsMu sync.Mutex
	stats   Stats

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a Coordinator in the Stopped state.
func New(transport Transport, normalizer Normalizer, w *writer.Writer, tracker *sysmon.Tracker, cfg *config.Config, log *logging.Logger) *Coordinator {
	statsEvery := uint64(cfg.Processing.StatsEvery)
	if statsEvery == 0 {
		statsEvery = 100
	}
	return &Coordinator{
		transport:     transport,
		normalizer:    normalizer,
		writer:        w,
		tracker:       tracker,
		bridge:        NewBridge(),
		log:           log.With("component", "pipeline"),
		qos:           byte(cfg.MQTT.QoS),
		statsInterval: cfg.GetStatsInterval(),
		statsEvery:    statsEvery,
		stats:         Stats{StartTime: time.Now()},
	}
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

func (c *Coordinator) setState(s State) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
	c.log.Info("pipeline state changed", "state", s.String())
}

// Start transitions Stopped to Starting, subscribes the transport into
// the bridge, launches the processing goroutine, and transitions to
// Running. A subscription failure aborts startup; the process cannot
// run disconnected.
func (c *Coordinator) Start(ctx context.Context) error {
	c.stateMu.Lock()
	if c.state != StateStopped {
		c.stateMu.Unlock()
		return ErrAlreadyStarted
	}
	c.state = StateStarting
	c.stateMu.Unlock()
	c.log.Info("pipeline state changed", "state", StateStarting.String())

	if !c.transport.IsConnected() {
		c.setState(StateStopped)
		return mqtt.ErrNotConnected
	}

	c.bridge.Start()

	handler := func(topic string, payload []byte) error {
		if !c.bridge.Deliver(topic, payload) {
			c.log.Warn("message dropped, pipeline not accepting", "topic", topic)
		}
		return nil
	}
	topics := []string{
		mqtt.Topics{}.DataReadings(),
		mqtt.Topics{}.TrackingEvents(),
		mqtt.Topics{}.Alerts(),
	}
	for _, topic := range topics {
		if err := c.transport.Subscribe(topic, c.qos, handler); err != nil {
			c.bridge.Stop()
			c.setState(StateStopped)
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
		c.log.Info("subscribed", "topic", topic)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(runCtx)

	c.setState(StateRunning)
	return nil
}

// run is the pipeline's single processing goroutine. All normalization,
// scoring, enqueueing and counter mutation happens here.
func (c *Coordinator) run(ctx context.Context) {
	defer close(c.done)

	statsTick := time.NewTicker(c.statsInterval)
	defer statsTick.Stop()

	for {
		select {
		case <-ctx.Done():
			c.drain(context.Background())
			return
		case <-statsTick.C:
			c.emitStats(ctx)
		case <-c.bridge.Ready():
			for {
				msg, ok := c.bridge.TryNext()
				if !ok {
					break
				}
				c.process(ctx, msg)
			}
		}
	}
}

// process handles one message end to end. Per-message errors are
// contained here: counted, logged, never propagated.
func (c *Coordinator) process(ctx context.Context, msg RawMessage) {
	c.statsMu.Lock()
	c.stats.Received++
	c.statsMu.Unlock()

	point, anomalies, err := c.normalizer.Normalize(msg.Topic, msg.Payload)
	if err != nil {
		c.recordError()
		c.log.Error("message dropped", "topic", msg.Topic, "error", err)
		return
	}

	if err := c.writer.Enqueue(ctx, point); err != nil {
		// A flush failure here is already counted and retained by the
		// writer; the message itself was processed.
		c.log.Warn("enqueue triggered failing flush", "error", err)
	}

	for _, a := range anomalies {
		c.writeAlert(ctx, point, a)
	}

	c.statsMu.Lock()
	c.stats.Processed++
	processed := c.stats.Processed
	c.statsMu.Unlock()

	if processed%c.statsEvery == 0 {
		c.emitStats(ctx)
	}
}

// writeAlert renders one anomaly as an alert point and writes it on
// the immediate path, bypassing the batch buffer.
func (c *Coordinator) writeAlert(ctx context.Context, point telemetry.Point, a telemetry.Anomaly) {
	tags := map[string]string{
		"severity":   string(a.Severity),
		"category":   string(a.Category),
		"alert_type": "anomaly",
	}
	if machine, ok := point.Tags["machine"]; ok {
		tags["machine"] = machine
	}

	c.writer.WriteAlert(ctx, telemetry.Point{
		Measurement: telemetry.Measurement(a.AlertMeasurement()),
		Tags:        tags,
		Fields: map[string]interface{}{
			"message":  a.Message,
			"resolved": false,
		},
		Timestamp: point.Timestamp,
	})
}

// recordError counts one contained processing error in both the
// pipeline stats and the resource tracker.
func (c *Coordinator) recordError() {
	c.statsMu.Lock()
	c.stats.Errors++
	c.statsMu.Unlock()
	c.tracker.IncrementError()
}

// emitStats logs the counters and enqueues one system_tracking point
// combining resource usage with pipeline throughput.
func (c *Coordinator) emitStats(ctx context.Context) {
	stats := c.Stats()

	c.log.Info("pipeline stats",
		"received", stats.Received,
		"processed", stats.Processed,
		"dropped", stats.Dropped,
		"errors", stats.Errors,
		"points_written", stats.PointsWritten,
		"write_errors", stats.WriteErrors,
		"rate", fmt.Sprintf("%.1f", stats.Rate()))

	metrics := c.tracker.Sample()
	fields := metrics.Fields()
	fields["messages_processed"] = int64(stats.Processed)
	fields["messages_received"] = int64(stats.Received)
	fields["processing_rate"] = stats.Rate()

	point := telemetry.Point{
		Measurement: telemetry.MeasurementSystemTracking,
		Tags: map[string]string{
			"component":   "plantstream",
			"metric_type": "system_resources",
			"severity":    "info",
		},
		Fields:    fields,
		Timestamp: time.Now().UTC(),
	}
	if err := c.writer.Enqueue(ctx, point); err != nil {
		c.log.Warn("system tracking enqueue failed", "error", err)
	}
}

// Stats returns a snapshot of the counters merged with the writer's.
func (c *Coordinator) Stats() Stats {
	c.statsMu.Lock()
	stats := c.stats
	c.statsMu.Unlock()

	stats.Dropped = c.bridge.Dropped()

	ws := c.writer.Stats()
	stats.PointsWritten = ws.PointsWritten
	stats.WriteErrors = ws.WriteErrors
	stats.AlertsWritten = ws.AlertsWritten
	stats.AlertsDropped = ws.AlertsDropped
	return stats
}

// Healthy reports whether the pipeline is running with a connected
// transport.
func (c *Coordinator) Healthy() bool {
	return c.State() == StateRunning && c.transport.IsConnected()
}

// drain consumes whatever remains in the handoff queue, then closes
// the writer so its buffer is flushed. Called once, on the processing
// goroutine, during shutdown.
func (c *Coordinator) drain(ctx context.Context) {
	remaining := 0
	for {
		msg, ok := c.bridge.TryNext()
		if !ok {
			break
		}
		c.process(ctx, msg)
		remaining++
	}
	if remaining > 0 {
		c.log.Info("drained handoff queue", "messages", remaining)
	}

	if err := c.writer.Close(ctx); err != nil {
		c.log.Error("final flush failed", "error", err)
	}
}

// Stop transitions to Stopping: no new messages are accepted, the
// queue is drained, the writer performs its final flush, and the state
// returns to Stopped. Safe to call more than once; repeat calls are
// no-ops.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		if c.State() == StateStopped {
			return
		}
		c.setState(StateStopping)

		c.bridge.Stop()

		topics := []string{
			mqtt.Topics{}.DataReadings(),
			mqtt.Topics{}.TrackingEvents(),
			mqtt.Topics{}.Alerts(),
		}
		for _, topic := range topics {
			if err := c.transport.Unsubscribe(topic); err != nil {
				c.log.Warn("unsubscribe failed", "topic", topic, "error", err)
			}
		}

		if c.cancel != nil {
			c.cancel()
			<-c.done
		}

		c.setState(StateStopped)
	})
}
