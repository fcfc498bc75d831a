// Package telemetry writes sequence outcomes to InfluxDB.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/cubehook/internal/config"
	"github.com/dokzlo13/cubehook/internal/dispatch"
)

// Measurement is the InfluxDB measurement sequence runs are written to.
const Measurement = "sequence_runs"

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second

	millisecondsPerSecond = 1000
)

var (
	// ErrDisabled is returned by Connect when telemetry is turned off.
	ErrDisabled = errors.New("telemetry: disabled")

	// ErrConnectionFailed is returned when the server cannot be reached.
	ErrConnectionFailed = errors.New("telemetry: connection failed")
)

// pointWriter is the part of the InfluxDB write API the client needs.
type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// Client records sequence runs as InfluxDB points.
// Writes are non-blocking and batched.
type Client struct {
	client   influxdb2.Client
	writeAPI pointWriter

	mu     sync.RWMutex
	closed bool
}

var _ dispatch.Recorder = (*Client)(nil)

// Connect creates the client and verifies the server answers a ping.
func Connect(cfg config.TelemetryConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 10
	}

	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flushInterval)*millisecondsPerSecond),
	)

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	go func() {
		for err := range writeAPI.Errors() {
			log.Warn().Err(err).Msg("Telemetry write failed")
		}
	}()

	log.Info().Str("url", cfg.URL).Str("bucket", cfg.Bucket).Msg("Telemetry connected")

	return &Client{client: client, writeAPI: writeAPI}, nil
}

// Record queues a point for a finished run.
func (c *Client) Record(_ context.Context, run dispatch.Run) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil
	}
	c.writeAPI.WritePoint(runPoint(run))
	return nil
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	healthy, err := c.client.Ping(checkCtx)
	if err != nil {
		return fmt.Errorf("influxdb health check failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("influxdb health check failed: server not healthy")
	}
	return nil
}

// Close flushes pending points and closes the client.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.writeAPI.Flush()
	if c.client != nil {
		c.client.Close()
	}
	return nil
}

func runPoint(run dispatch.Run) *write.Point {
	return write.NewPoint(
		Measurement,
		map[string]string{
			"kind":   run.Kind,
			"result": run.Result.String(),
		},
		map[string]interface{}{
			"event_id":    run.EventID,
			"steps":       run.Steps,
			"duration_ms": run.Duration.Milliseconds(),
			"queue_ms":    run.StartedAt.Sub(run.ReceivedAt).Milliseconds(),
		},
		run.StartedAt,
	)
}
