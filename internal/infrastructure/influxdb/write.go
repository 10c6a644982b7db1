package influxdb

import (
	"context"
	"fmt"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/plantstream/core/internal/telemetry"
)

// WritePoints performs one bulk write of normalized points to the data bucket.
//
// The call is synchronous: it returns only after the server accepts or
// rejects the whole batch, so callers can re-buffer on failure. The order
// of points within the batch is preserved.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - points: Ordered batch of points to write
//
// Returns:
//   - error: nil on success, wrapped ErrWriteFailed otherwise
func (c *Client) WritePoints(ctx context.Context, points []telemetry.Point) error {
	if len(points) == 0 {
		return nil
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	batch := make([]*write.Point, 0, len(points))
	for i := range points {
		batch = append(batch, toInfluxPoint(&points[i]))
	}

	if err := c.dataAPI.WritePoint(ctx, batch...); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	return nil
}

// WriteAlert writes a single alert point to the alert bucket, bypassing
// any batching. Used for anomaly alerts that must reach operators without
// batching latency.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - point: The alert point to write
//
// Returns:
//   - error: nil on success, wrapped ErrWriteFailed otherwise
func (c *Client) WriteAlert(ctx context.Context, point telemetry.Point) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	if err := c.alertAPI.WritePoint(ctx, toInfluxPoint(&point)); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	return nil
}

// toInfluxPoint converts a telemetry point to the client library's
// point type. Tags are copied as-is; InfluxDB requires string tags and
// the normalizer guarantees that.
func toInfluxPoint(p *telemetry.Point) *write.Point {
	return write.NewPoint(string(p.Measurement), p.Tags, p.Fields, p.Timestamp)
}
