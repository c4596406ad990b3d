// Package dashboard keeps the rendered dashboard in sync with the REST API.
package dashboard

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/mjasion/balena-home/autogrow/api"
	"github.com/mjasion/balena-home/autogrow/render"
	"github.com/mjasion/balena-home/pkg/telemetry"
)

// Page regions, each replaced wholesale on refresh
const (
	TargetHealth   = "health"
	TargetSensors  = "sensors"
	TargetLatest   = "latest"
	TargetPump     = "pump"
	TargetDevices  = "devices"
	TargetWatering = "watering"
)

// Alert texts returned by failed user actions
const (
	DeleteSensorFailed   = "Failed to delete sensor data"
	DeleteWateringFailed = "Failed to delete watering history"
	CreateSensorFailed   = "Failed to create sensor data"
	UpdateSensorFailed   = "Failed to update sensor data"
	SetPumpFailed        = "Failed to update pump"
)

// API is the part of the REST client the engine uses
type API interface {
	Health(ctx context.Context) (*api.HealthStatus, error)
	ListSensors(ctx context.Context, q string) ([]api.SensorReading, error)
	CreateSensor(ctx context.Context, in api.SensorReadingInput) (*api.SensorReading, error)
	UpdateSensor(ctx context.Context, id int64, upd api.SensorReadingUpdate) (*api.SensorReading, error)
	DeleteSensor(ctx context.Context, id int64) error
	GetWatering(ctx context.Context, deviceID string) (*api.WateringEvent, error)
	UpdateWatering(ctx context.Context, upd api.WateringUpdate) (*api.WateringEvent, error)
	ListWateringHistory(ctx context.Context, deviceID string) ([]api.WateringHistoryRecord, error)
	DeleteWateringHistory(ctx context.Context, id int64) error
}

// Observer is told about every successfully fetched unfiltered sensor list and every
// watering history list
type Observer interface {
	ObserveSensors(readings []api.SensorReading)
	ObserveWateringHistory(records []api.WateringHistoryRecord)
}

// ActionError is returned by user actions; Message is the text shown to the user
type ActionError struct {
	Message string
	Err     error
}

func (e *ActionError) Error() string {
	return e.Message
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// Engine runs the refresh operations and user actions against the API and writes
// the results into the View
type Engine struct {
	api      API
	renderer *render.Renderer
	view     *View
	metrics  *Metrics
	logger   *zap.Logger
	tracer   trace.Tracer
	observer Observer
	deviceID string

	mu          sync.Mutex
	query       string
	deviceQuery string
	lastReload  time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithObserver registers an observer for fetched data
func WithObserver(observer Observer) Option {
	return func(e *Engine) {
		e.observer = observer
	}
}

// WithWateringDevice sets the device whose pump state is shown
func WithWateringDevice(deviceID string) Option {
	return func(e *Engine) {
		e.deviceID = deviceID
	}
}

// NewEngine wires the engine
func NewEngine(client API, renderer *render.Renderer, view *View, metrics *Metrics, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		api:      client,
		renderer: renderer,
		view:     view,
		metrics:  metrics,
		logger:   logger,
		tracer:   otel.Tracer("github.com/mjasion/balena-home/autogrow/dashboard"),
		deviceID: "autogrow_esp32",
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// View returns the view the engine writes to
func (e *Engine) View() *View {
	return e.view
}

// Query returns the current sensor search text
func (e *Engine) Query() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.query
}

// DeviceQuery returns the current watering-history device filter
func (e *Engine) DeviceQuery() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deviceQuery
}

// WateringDevice returns the device whose pump state is shown
func (e *Engine) WateringDevice() string {
	return e.deviceID
}

// LastReload returns when the last full reload finished, zero before the first one
func (e *Engine) LastReload() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastReload
}

// start opens a span for op; the returned function records the outcome
func (e *Engine) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := e.tracer.Start(ctx, "dashboard."+op, trace.WithAttributes(attrs...))
	begin := time.Now()
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		e.metrics.observe(op, begin, err)
	}
}

func (e *Engine) commit(ctx context.Context, target string, seq uint64, html string) {
	if !e.view.Commit(target, seq, html) {
		e.metrics.staleResponse(target)
		telemetry.DebugWithTrace(ctx, e.logger, "discarded stale response",
			zap.String("target", target), zap.Uint64("seq", seq))
	}
}

// RefreshHealth shows the API status. It never fails: errors show "API: offline".
func (e *Engine) RefreshHealth(ctx context.Context) {
	ctx, finish := e.start(ctx, TargetHealth)
	seq := e.view.Begin(TargetHealth)

	status, err := e.api.Health(ctx)
	defer finish(err)
	if err != nil {
		telemetry.WarnWithTrace(ctx, e.logger, "health check failed", zap.Error(err))
		e.commit(ctx, TargetHealth, seq, e.renderer.HealthOffline())
		return
	}
	e.commit(ctx, TargetHealth, seq, e.renderer.Health(status.Status))
}

// LoadSensorTable lists readings matching q into the sensor table, then updates the
// latest-readings panel and pump status from the newest one
func (e *Engine) LoadSensorTable(ctx context.Context, q string) (err error) {
	ctx, finish := e.start(ctx, TargetSensors, attribute.String("query", q))
	defer func() { finish(err) }()

	seqRows := e.view.Begin(TargetSensors)
	seqLatest := e.view.Begin(TargetLatest)
	seqPump := e.view.Begin(TargetPump)

	readings, err := e.api.ListSensors(ctx, q)
	if err != nil {
		telemetry.ErrorWithTrace(ctx, e.logger, "failed to load sensor data", zap.Error(err))
		e.commit(ctx, TargetSensors, seqRows, e.renderer.ErrorRow(render.SensorColumns, render.LoadFailed))
		return err
	}

	rows, err := e.renderer.SensorRows(readings)
	if err != nil {
		telemetry.ErrorWithTrace(ctx, e.logger, "failed to render sensor data", zap.Error(err))
		e.commit(ctx, TargetSensors, seqRows, e.renderer.ErrorRow(render.SensorColumns, render.LoadFailed))
		return err
	}
	e.commit(ctx, TargetSensors, seqRows, rows)

	if len(readings) == 0 {
		return nil
	}
	latest := readings[0]

	panel, err := e.renderer.Latest(latest)
	if err != nil {
		telemetry.ErrorWithTrace(ctx, e.logger, "failed to render latest readings", zap.Error(err))
		return err
	}
	e.commit(ctx, TargetLatest, seqLatest, panel)

	watering, werr := e.api.GetWatering(ctx, e.deviceID)
	if werr != nil {
		telemetry.WarnWithTrace(ctx, e.logger, "failed to load watering data, using sensor pump state", zap.Error(werr))
		watering = nil
	}
	pump, err := e.renderer.Pump(latest.PumpActive, watering)
	if err != nil {
		telemetry.ErrorWithTrace(ctx, e.logger, "failed to render pump status", zap.Error(err))
		return err
	}
	e.commit(ctx, TargetPump, seqPump, pump)
	return nil
}

// LoadWateringTable lists irrigation cycles, filtered by deviceID when non-empty
func (e *Engine) LoadWateringTable(ctx context.Context, deviceID string) (err error) {
	ctx, finish := e.start(ctx, TargetWatering, attribute.String("device_id", deviceID))
	defer func() { finish(err) }()

	seq := e.view.Begin(TargetWatering)

	records, err := e.api.ListWateringHistory(ctx, deviceID)
	if err == nil {
		var rows string
		if rows, err = e.renderer.WateringRows(records); err == nil {
			e.commit(ctx, TargetWatering, seq, rows)
			if e.observer != nil {
				e.observer.ObserveWateringHistory(records)
			}
			return nil
		}
	}

	telemetry.ErrorWithTrace(ctx, e.logger, "failed to load watering history", zap.Error(err))
	e.commit(ctx, TargetWatering, seq, e.renderer.ErrorRow(render.WateringColumns, render.LoadFailed))
	return err
}

// LoadDeviceOverview renders one card per device from the unfiltered reading list
func (e *Engine) LoadDeviceOverview(ctx context.Context) (err error) {
	ctx, finish := e.start(ctx, TargetDevices)
	defer func() { finish(err) }()

	seq := e.view.Begin(TargetDevices)
	failed := func(err error) error {
		telemetry.ErrorWithTrace(ctx, e.logger, "failed to load device overview", zap.Error(err))
		e.commit(ctx, TargetDevices, seq, e.renderer.Message("error", render.DevicesFailed))
		return err
	}

	readings, err := e.api.ListSensors(ctx, "")
	if err != nil {
		return failed(err)
	}

	// only the unfiltered list may advance the exporter's watermarks
	if e.observer != nil {
		e.observer.ObserveSensors(readings)
	}

	devices := UniqueDevices(readings)
	var watering *api.WateringEvent
	if len(devices) > 0 {
		var werr error
		if watering, werr = e.api.GetWatering(ctx, e.deviceID); werr != nil {
			telemetry.WarnWithTrace(ctx, e.logger, "failed to load watering data for device overview", zap.Error(werr))
			watering = nil
		}
	}

	cards, err := e.renderer.DeviceCards(devices, watering)
	if err != nil {
		return failed(err)
	}
	e.commit(ctx, TargetDevices, seq, cards)
	return nil
}

// RefreshPumpStatus updates the pump status from the newest reading and the watering
// state, then reloads the device overview. Nothing changes when there are no readings.
func (e *Engine) RefreshPumpStatus(ctx context.Context) (err error) {
	ctx, finish := e.start(ctx, TargetPump)
	defer func() { finish(err) }()

	seq := e.view.Begin(TargetPump)

	readings, err := e.api.ListSensors(ctx, "")
	if err != nil {
		telemetry.ErrorWithTrace(ctx, e.logger, "failed to refresh pump status", zap.Error(err))
		return err
	}
	if len(readings) == 0 {
		return nil
	}

	watering, err := e.api.GetWatering(ctx, e.deviceID)
	if err != nil {
		telemetry.ErrorWithTrace(ctx, e.logger, "failed to refresh pump status", zap.Error(err))
		return err
	}

	pump, err := e.renderer.Pump(readings[0].PumpActive, watering)
	if err != nil {
		return err
	}
	e.commit(ctx, TargetPump, seq, pump)

	return e.LoadDeviceOverview(ctx)
}

// FullReload reloads the sensor table with the current query, then the device overview
func (e *Engine) FullReload(ctx context.Context) error {
	err := errors.Join(
		e.LoadSensorTable(ctx, e.Query()),
		e.LoadDeviceOverview(ctx),
	)

	e.mu.Lock()
	e.lastReload = time.Now()
	e.mu.Unlock()
	return err
}

// Init fills every region once: health, sensor table, device overview, watering history
func (e *Engine) Init(ctx context.Context) error {
	e.RefreshHealth(ctx)
	err := errors.Join(
		e.LoadSensorTable(ctx, e.Query()),
		e.LoadDeviceOverview(ctx),
		e.LoadWateringTable(ctx, e.DeviceQuery()),
	)

	e.mu.Lock()
	e.lastReload = time.Now()
	e.mu.Unlock()
	return err
}

// SearchSensors makes q the current search and reloads the sensor table
func (e *Engine) SearchSensors(ctx context.Context, q string) error {
	q = strings.TrimSpace(q)
	e.mu.Lock()
	e.query = q
	e.mu.Unlock()
	return e.LoadSensorTable(ctx, q)
}

// SearchWateringHistory makes deviceID the current filter and reloads the history table
func (e *Engine) SearchWateringHistory(ctx context.Context, deviceID string) error {
	deviceID = strings.TrimSpace(deviceID)
	e.mu.Lock()
	e.deviceQuery = deviceID
	e.mu.Unlock()
	return e.LoadWateringTable(ctx, deviceID)
}

// RefreshSensors reloads the sensor table with the current search
func (e *Engine) RefreshSensors(ctx context.Context) error {
	return e.LoadSensorTable(ctx, e.Query())
}

// RefreshWateringHistory reloads the history table with the current filter
func (e *Engine) RefreshWateringHistory(ctx context.Context) error {
	return e.LoadWateringTable(ctx, e.DeviceQuery())
}

// DeleteSensor deletes a reading and reloads the table. On failure the table is left
// untouched and the alert text is returned.
func (e *Engine) DeleteSensor(ctx context.Context, id int64) error {
	ctx, finish := e.start(ctx, "delete_sensor", attribute.Int64("id", id))
	err := e.api.DeleteSensor(ctx, id)
	if err != nil {
		telemetry.ErrorWithTrace(ctx, e.logger, "failed to delete sensor data", zap.Int64("id", id), zap.Error(err))
		finish(err)
		return &ActionError{Message: DeleteSensorFailed, Err: err}
	}
	finish(nil)

	_ = e.LoadSensorTable(ctx, e.Query())
	return nil
}

// DeleteWateringHistory deletes a cycle and reloads the history table
func (e *Engine) DeleteWateringHistory(ctx context.Context, id int64) error {
	ctx, finish := e.start(ctx, "delete_watering_history", attribute.Int64("id", id))
	err := e.api.DeleteWateringHistory(ctx, id)
	if err != nil {
		telemetry.ErrorWithTrace(ctx, e.logger, "failed to delete watering history", zap.Int64("id", id), zap.Error(err))
		finish(err)
		return &ActionError{Message: DeleteWateringFailed, Err: err}
	}
	finish(nil)

	_ = e.LoadWateringTable(ctx, e.DeviceQuery())
	return nil
}

// CreateSensor validates and stores a reading, then reloads the table and overview
func (e *Engine) CreateSensor(ctx context.Context, in api.SensorReadingInput) (*api.SensorReading, error) {
	if err := in.Validate(); err != nil {
		return nil, &ActionError{Message: err.Error(), Err: err}
	}

	ctx, finish := e.start(ctx, "create_sensor")
	reading, err := e.api.CreateSensor(ctx, in)
	if err != nil {
		telemetry.ErrorWithTrace(ctx, e.logger, "failed to create sensor data", zap.Error(err))
		finish(err)
		return nil, &ActionError{Message: CreateSensorFailed, Err: err}
	}
	finish(nil)

	_ = e.FullReload(ctx)
	return reading, nil
}

// UpdateSensor applies a partial update, then reloads the table and overview
func (e *Engine) UpdateSensor(ctx context.Context, id int64, upd api.SensorReadingUpdate) (*api.SensorReading, error) {
	ctx, finish := e.start(ctx, "update_sensor", attribute.Int64("id", id))
	reading, err := e.api.UpdateSensor(ctx, id, upd)
	if err != nil {
		telemetry.ErrorWithTrace(ctx, e.logger, "failed to update sensor data", zap.Int64("id", id), zap.Error(err))
		finish(err)
		return nil, &ActionError{Message: UpdateSensorFailed, Err: err}
	}
	finish(nil)

	_ = e.FullReload(ctx)
	return reading, nil
}

// SetPump switches the pump of the watering device and refreshes its status
func (e *Engine) SetPump(ctx context.Context, active bool) (*api.WateringEvent, error) {
	ctx, finish := e.start(ctx, "set_pump", attribute.Bool("pump_active", active))
	deviceID := e.deviceID
	event, err := e.api.UpdateWatering(ctx, api.WateringUpdate{DeviceID: &deviceID, PumpActive: &active})
	if err != nil {
		telemetry.ErrorWithTrace(ctx, e.logger, "failed to update pump", zap.Bool("pump_active", active), zap.Error(err))
		finish(err)
		return nil, &ActionError{Message: SetPumpFailed, Err: err}
	}
	finish(nil)

	_ = e.RefreshPumpStatus(ctx)
	return event, nil
}
