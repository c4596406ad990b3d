package metrics

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gogo/protobuf/proto"
	"github.com/golang/snappy"
	"github.com/mjasion/balena-home/pkg/buffer"
	"github.com/mjasion/balena-home/pkg/types"
	"github.com/prometheus/prometheus/prompb"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TimeSeriesBuilder converts buffered readings to Prometheus time series
type TimeSeriesBuilder func(ctx context.Context, readings []*types.Reading) ([]prompb.TimeSeries, error)

// Config contains the remote_write target and batching settings
type Config struct {
	URL               string
	Username          string
	Password          string
	PushInterval      time.Duration
	BatchSize         int
	TimeSeriesBuilder TimeSeriesBuilder
	HTTPClient        *http.Client
}

// Pusher periodically drains a buffer into a Prometheus remote_write endpoint.
// A failed batch and everything after it goes back into the buffer for the next tick.
type Pusher struct {
	cfg    Config
	client *http.Client
	buffer *buffer.RingBuffer[*types.Reading]
	logger *zap.Logger

	mu       sync.RWMutex
	lastPush time.Time
}

// New creates a Pusher with an OpenTelemetry-instrumented HTTP client
func New(cfg Config, buf *buffer.RingBuffer[*types.Reading], logger *zap.Logger) *Pusher {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{
			Timeout: 30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithSpanNameFormatter(func(string, *http.Request) string {
					return "prometheus.remote_write"
				}),
			),
		}
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 500
	}

	return &Pusher{
		cfg:      cfg,
		client:   client,
		buffer:   buf,
		logger:   logger,
		lastPush: time.Now(),
	}
}

// Start pushes on every tick until ctx is cancelled, then makes one final flush
func (p *Pusher) Start(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.PushInterval)
	defer ticker.Stop()

	p.logger.Info("prometheus pusher started",
		zap.Duration("push_interval", p.cfg.PushInterval),
		zap.Int("batch_size", p.cfg.BatchSize),
	)

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			p.Flush(flushCtx)
			cancel()
			p.logger.Info("prometheus pusher stopped")
			return
		case <-ticker.C:
			p.Flush(ctx)
		}
	}
}

// Flush drains the buffer and pushes it in batches
func (p *Pusher) Flush(ctx context.Context) {
	readings := p.buffer.Drain()
	if len(readings) == 0 {
		p.logger.Debug("no readings to push")
		return
	}
	p.logger.Debug("flushing readings",
		zap.Int("readings", len(readings)),
		zap.Time("oldest", readings[0].GetTimestamp()),
		zap.Time("newest", readings[len(readings)-1].GetTimestamp()),
	)

	for start := 0; start < len(readings); start += p.cfg.BatchSize {
		end := min(start+p.cfg.BatchSize, len(readings))
		if err := p.Push(ctx, readings[start:end]); err != nil {
			p.logger.Error("failed to push batch, re-buffering remaining readings",
				zap.Error(err),
				zap.Int("rebuffered_readings", len(readings)-start),
			)
			p.buffer.AddAll(readings[start:])
			return
		}
	}
}

// Push sends one batch of readings
func (p *Pusher) Push(ctx context.Context, readings []*types.Reading) error {
	ctx, span := otel.Tracer("metrics").Start(ctx, "metrics.Push",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.Int("metrics.total_readings", len(readings))),
	)
	defer span.End()

	if len(readings) == 0 {
		span.SetStatus(codes.Ok, "no readings to push")
		return nil
	}
	if p.cfg.TimeSeriesBuilder == nil {
		err := fmt.Errorf("no TimeSeriesBuilder configured")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	series, err := p.cfg.TimeSeriesBuilder(ctx, readings)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "builder failed")
		return fmt.Errorf("time series builder failed: %w", err)
	}

	data, err := proto.Marshal(&prompb.WriteRequest{Timeseries: series})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal protobuf")
		return fmt.Errorf("failed to marshal protobuf: %w", err)
	}
	compressed := snappy.Encode(nil, data)
	span.SetAttributes(
		attribute.Int("metrics.time_series_count", len(series)),
		attribute.Int("metrics.compressed_size_bytes", len(compressed)),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL, bytes.NewReader(compressed))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create request")
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-protobuf")
	req.Header.Set("Content-Encoding", "snappy")
	req.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")
	if p.cfg.Username != "" && p.cfg.Password != "" {
		req.SetBasicAuth(p.cfg.Username, p.cfg.Password)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("received non-2xx status code: %d, body: %s", resp.StatusCode, string(body))
		span.RecordError(err)
		span.SetStatus(codes.Error, "non-2xx response")
		return err
	}

	p.mu.Lock()
	p.lastPush = time.Now()
	p.mu.Unlock()

	p.logger.Info("pushed samples to prometheus",
		zap.Int("readings", len(readings)),
		zap.Int("time_series", len(series)),
	)
	span.SetStatus(codes.Ok, "push successful")
	return nil
}

// LastPushTime returns the time of the last successful push
func (p *Pusher) LastPushTime() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastPush
}
