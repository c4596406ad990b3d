package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const basePath = "/api/v1"

// Client talks to the autogrow REST API. It never retries: a failed call is reported
// to the caller, which abandons the current refresh.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithTimeout sets the per-request timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithLogger sets the logger used for failed calls
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithBreaker makes calls fail fast for openFor after maxFailures consecutive
// transport or 5xx failures
func WithBreaker(maxFailures uint32, openFor time.Duration) ClientOption {
	return func(c *Client) {
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "autogrow-api",
			MaxRequests: 1,
			Timeout:     openFor,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= maxFailures
			},
			IsSuccessful: countsAsSuccess,
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.logger.Warn("api circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
	}
}

// NewClient creates a client for the API rooted at baseURL
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
					return "autogrow.api " + r.Method + " " + r.URL.Path
				}),
			),
		},
		logger: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// countsAsSuccess keeps client-side errors and cancellations from tripping the breaker
func countsAsSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var opErr *OperationError
	return errors.As(err, &opErr) && opErr.StatusCode >= 400 && opErr.StatusCode < 500
}

// do sends body as JSON and decodes a 2xx response into out when out is non-nil
func (c *Client) do(ctx context.Context, op Operation, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", op.Name, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", op.Name, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	payload, err := c.roundTrip(op, req)
	if err != nil {
		var opErr *OperationError
		if errors.As(err, &opErr) {
			c.logger.Debug("api call failed", zap.String("operation", op.Name), zap.String("detail", opErr.Detail()))
		}
		return err
	}

	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op.Name, err)
	}
	return nil
}

func (c *Client) roundTrip(op Operation, req *http.Request) ([]byte, error) {
	call := func() (interface{}, error) {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, &OperationError{Op: op, Err: err}
		}
		defer resp.Body.Close()

		payload, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &OperationError{Op: op, Err: fmt.Errorf("failed to read response body: %w", err)}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			sample := string(payload)
			if len(sample) > 200 {
				sample = sample[:200] + "..."
			}
			return nil, &OperationError{Op: op, StatusCode: resp.StatusCode, Body: sample}
		}
		return payload, nil
	}

	if c.breaker == nil {
		payload, err := call()
		if err != nil {
			return nil, err
		}
		return payload.([]byte), nil
	}

	payload, err := c.breaker.Execute(call)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &OperationError{Op: op, Err: err}
	}
	if err != nil {
		return nil, err
	}
	return payload.([]byte), nil
}

func idPath(collection string, id int64) string {
	return basePath + collection + "/" + strconv.FormatInt(id, 10)
}

func withQuery(path, key, value string) string {
	if value == "" {
		return path
	}
	return path + "?" + url.Values{key: {value}}.Encode()
}

// Health calls GET /api/v1/health
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	var status HealthStatus
	if err := c.do(ctx, OpHealth, http.MethodGet, basePath+"/health", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// ListSensors returns readings newest first, filtered by q when non-empty
func (c *Client) ListSensors(ctx context.Context, q string) ([]SensorReading, error) {
	var readings []SensorReading
	path := withQuery(basePath+"/sensor-data", "q", q)
	if err := c.do(ctx, OpListSensors, http.MethodGet, path, nil, &readings); err != nil {
		return nil, err
	}
	return readings, nil
}

// GetSensor fetches one reading
func (c *Client) GetSensor(ctx context.Context, id int64) (*SensorReading, error) {
	var reading SensorReading
	if err := c.do(ctx, OpGetSensor, http.MethodGet, idPath("/sensor-data", id), nil, &reading); err != nil {
		return nil, err
	}
	return &reading, nil
}

// CreateSensor validates and stores a reading
func (c *Client) CreateSensor(ctx context.Context, in SensorReadingInput) (*SensorReading, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	var reading SensorReading
	if err := c.do(ctx, OpCreateSensor, http.MethodPost, basePath+"/sensor-data", in, &reading); err != nil {
		return nil, err
	}
	return &reading, nil
}

// UpdateSensor applies a partial update to a reading
func (c *Client) UpdateSensor(ctx context.Context, id int64, upd SensorReadingUpdate) (*SensorReading, error) {
	var reading SensorReading
	if err := c.do(ctx, OpUpdateSensor, http.MethodPut, idPath("/sensor-data", id), upd, &reading); err != nil {
		return nil, err
	}
	return &reading, nil
}

// DeleteSensor removes a reading
func (c *Client) DeleteSensor(ctx context.Context, id int64) error {
	return c.do(ctx, OpDeleteSensor, http.MethodDelete, idPath("/sensor-data", id), nil, nil)
}

// GetWatering returns the pump state of deviceID, or of the default device when empty
func (c *Client) GetWatering(ctx context.Context, deviceID string) (*WateringEvent, error) {
	path := basePath + "/watering"
	if deviceID != "" {
		path += "/" + url.PathEscape(deviceID)
	}
	var event WateringEvent
	if err := c.do(ctx, OpGetWatering, http.MethodGet, path, nil, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// UpdateWatering applies a partial update to the pump state
func (c *Client) UpdateWatering(ctx context.Context, upd WateringUpdate) (*WateringEvent, error) {
	var event WateringEvent
	if err := c.do(ctx, OpUpdateWatering, http.MethodPut, basePath+"/watering", upd, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// ListWateringHistory returns irrigation cycles, filtered by device when deviceID is non-empty
func (c *Client) ListWateringHistory(ctx context.Context, deviceID string) ([]WateringHistoryRecord, error) {
	var records []WateringHistoryRecord
	path := withQuery(basePath+"/watering-history", "device_id", deviceID)
	if err := c.do(ctx, OpListWateringHistory, http.MethodGet, path, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// GetWateringHistory fetches one irrigation cycle
func (c *Client) GetWateringHistory(ctx context.Context, id int64) (*WateringHistoryRecord, error) {
	var record WateringHistoryRecord
	if err := c.do(ctx, OpGetWateringHistory, http.MethodGet, idPath("/watering-history", id), nil, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// CreateWateringHistory stores an irrigation cycle
func (c *Client) CreateWateringHistory(ctx context.Context, in WateringHistoryInput) (*WateringHistoryRecord, error) {
	var record WateringHistoryRecord
	if err := c.do(ctx, OpCreateWateringHistory, http.MethodPost, basePath+"/watering-history", in, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// UpdateWateringHistory sets the end time of a cycle
func (c *Client) UpdateWateringHistory(ctx context.Context, id int64, upd WateringHistoryUpdate) (*WateringHistoryRecord, error) {
	var record WateringHistoryRecord
	if err := c.do(ctx, OpUpdateWateringHistory, http.MethodPut, idPath("/watering-history", id), upd, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// DeleteWateringHistory removes an irrigation cycle
func (c *Client) DeleteWateringHistory(ctx context.Context, id int64) error {
	return c.do(ctx, OpDeleteWateringHistory, http.MethodDelete, idPath("/watering-history", id), nil, nil)
}
