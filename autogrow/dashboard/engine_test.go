package dashboard

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/mjasion/balena-home/autogrow/api"
	"github.com/mjasion/balena-home/autogrow/exporter"
	"github.com/mjasion/balena-home/autogrow/render"
	"github.com/mjasion/balena-home/pkg/buffer"
	"github.com/mjasion/balena-home/pkg/types"
)

var errBackend = errors.New("backend unavailable")

func at(minute int) api.Time {
	return api.NewTime(time.Date(2025, 6, 1, 10, minute, 0, 0, time.UTC))
}

func newTestEngine(t *testing.T, fake *fakeAPI, opts ...Option) (*Engine, *Metrics) {
	t.Helper()
	renderer, err := render.New(time.UTC)
	if err != nil {
		t.Fatalf("Failed to create renderer: %v", err)
	}
	metrics := NewMetrics(prometheus.NewRegistry())
	return NewEngine(fake, renderer, NewView(nil), metrics, zap.NewNop(), opts...), metrics
}

func fragment(t *testing.T, e *Engine, target string) string {
	t.Helper()
	f, ok := e.View().Get(target)
	if !ok {
		t.Fatalf("Expected fragment for %s", target)
	}
	return f.HTML
}

func TestRefreshHealth(t *testing.T) {
	engine, _ := newTestEngine(t, &fakeAPI{health: &api.HealthStatus{Status: "ok"}})
	engine.RefreshHealth(context.Background())
	if got := fragment(t, engine, TargetHealth); got != "API: ok" {
		t.Errorf("Expected %q, got %q", "API: ok", got)
	}

	engine, _ = newTestEngine(t, &fakeAPI{health: &api.HealthStatus{}})
	engine.RefreshHealth(context.Background())
	if got := fragment(t, engine, TargetHealth); got != "API: unknown" {
		t.Errorf("Expected %q, got %q", "API: unknown", got)
	}

	engine, metrics := newTestEngine(t, &fakeAPI{healthErr: errBackend})
	engine.RefreshHealth(context.Background())
	if got := fragment(t, engine, TargetHealth); got != "API: offline" {
		t.Errorf("Expected %q, got %q", "API: offline", got)
	}
	if got := testutil.ToFloat64(metrics.refreshes.WithLabelValues(TargetHealth, "error")); got != 1 {
		t.Errorf("Expected 1 failed health refresh, got %v", got)
	}
}

func TestLoadSensorTable(t *testing.T) {
	fake := &fakeAPI{
		sensors: []api.SensorReading{
			{ID: 2, Temperature: 21.456, Humidity: 55, Lux: 120, PumpActive: false, DeviceID: "autogrow_esp32", CreatedAt: at(5)},
			{ID: 1, Temperature: 20, Humidity: 50, Lux: 100, CreatedAt: at(0)},
		},
		watering: &api.WateringEvent{DeviceID: "autogrow_esp32", PumpActive: true},
	}
	engine, _ := newTestEngine(t, fake)

	if err := engine.LoadSensorTable(context.Background(), "esp"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if fake.queries[0] != "esp" {
		t.Errorf("Expected query to be forwarded, got %q", fake.queries[0])
	}
	rows := fragment(t, engine, TargetSensors)
	if strings.Count(rows, "<tr>") != 2 {
		t.Errorf("Expected 2 rows, got:\n%s", rows)
	}
	if latest := fragment(t, engine, TargetLatest); !strings.Contains(latest, "21.5°C") {
		t.Errorf("Expected latest panel from the first reading, got:\n%s", latest)
	}
	if pump := fragment(t, engine, TargetPump); !strings.Contains(pump, "🟢 Active") {
		t.Errorf("Expected watering state to override sensor pump flag, got:\n%s", pump)
	}
}

func TestLoadSensorTable_WateringFailureFallsBack(t *testing.T) {
	fake := &fakeAPI{
		sensors:     []api.SensorReading{{ID: 1, PumpActive: true, CreatedAt: at(0)}},
		wateringErr: errBackend,
	}
	engine, _ := newTestEngine(t, fake)

	if err := engine.LoadSensorTable(context.Background(), ""); err != nil {
		t.Fatalf("Watering failure must not fail the table load: %v", err)
	}
	if pump := fragment(t, engine, TargetPump); !strings.Contains(pump, "🟢 Active") {
		t.Errorf("Expected sensor pump flag as fallback, got:\n%s", pump)
	}
}

func TestLoadSensorTable_Error(t *testing.T) {
	engine, _ := newTestEngine(t, &fakeAPI{sensorsErr: errBackend})

	if err := engine.LoadSensorTable(context.Background(), ""); !errors.Is(err, errBackend) {
		t.Errorf("Expected backend error, got %v", err)
	}
	want := `<tr><td colspan="10" class="error">Failed to load data</td></tr>`
	if got := fragment(t, engine, TargetSensors); got != want {
		t.Errorf("Expected error row %q, got %q", want, got)
	}
	if _, ok := engine.View().Get(TargetLatest); ok {
		t.Error("Expected latest panel to stay untouched")
	}
}

func TestLoadSensorTable_EmptyKeepsLatestPanel(t *testing.T) {
	fake := &fakeAPI{sensors: []api.SensorReading{{ID: 1, Temperature: 19, CreatedAt: at(0)}}}
	engine, _ := newTestEngine(t, fake)
	engine.LoadSensorTable(context.Background(), "")

	fake.sensors = nil
	if err := engine.LoadSensorTable(context.Background(), "nothing"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if latest := fragment(t, engine, TargetLatest); !strings.Contains(latest, "19.0°C") {
		t.Errorf("Expected previous latest panel to remain, got:\n%s", latest)
	}
}

func TestLoadSensorTable_DiscardsStaleResponse(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	fake := &fakeAPI{}
	fake.listSensor = func(ctx context.Context, q string) ([]api.SensorReading, error) {
		if q == "slow" {
			close(started)
			<-release
			return []api.SensorReading{{ID: 1, Temperature: 10, CreatedAt: at(0)}}, nil
		}
		return []api.SensorReading{{ID: 2, Temperature: 30, CreatedAt: at(1)}}, nil
	}
	engine, metrics := newTestEngine(t, fake)

	done := make(chan error, 1)
	go func() {
		done <- engine.LoadSensorTable(context.Background(), "slow")
	}()
	<-started

	if err := engine.LoadSensorTable(context.Background(), "fast"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if latest := fragment(t, engine, TargetLatest); !strings.Contains(latest, "30.0°C") {
		t.Errorf("Expected the later request to win, got:\n%s", latest)
	}
	if rows := fragment(t, engine, TargetSensors); strings.Contains(rows, "<td>1</td>") {
		t.Errorf("Expected stale rows to be discarded, got:\n%s", rows)
	}
	if got := testutil.ToFloat64(metrics.stale.WithLabelValues(TargetSensors)); got != 1 {
		t.Errorf("Expected 1 stale sensor response, got %v", got)
	}
}

func TestLoadWateringTable(t *testing.T) {
	fake := &fakeAPI{history: []api.WateringHistoryRecord{
		{ID: 1, DeviceID: "dev", WateringDuration: 125, WateringStarted: at(0)},
	}}
	engine, _ := newTestEngine(t, fake)

	if err := engine.SearchWateringHistory(context.Background(), "  dev  "); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if fake.historyFilters[0] != "dev" {
		t.Errorf("Expected trimmed filter, got %q", fake.historyFilters[0])
	}
	if engine.DeviceQuery() != "dev" {
		t.Errorf("Expected filter to become current, got %q", engine.DeviceQuery())
	}
	if rows := fragment(t, engine, TargetWatering); !strings.Contains(rows, "2m 5s") {
		t.Errorf("Unexpected watering rows:\n%s", rows)
	}

	fake.historyErr = errBackend
	engine.RefreshWateringHistory(context.Background())
	want := `<tr><td colspan="8" class="error">Failed to load data</td></tr>`
	if got := fragment(t, engine, TargetWatering); got != want {
		t.Errorf("Expected error row %q, got %q", want, got)
	}
}

func TestLoadDeviceOverview(t *testing.T) {
	engine, _ := newTestEngine(t, &fakeAPI{})
	if err := engine.LoadDeviceOverview(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := fragment(t, engine, TargetDevices); got != `<div class="no-data">No device data available</div>` {
		t.Errorf("Unexpected empty overview: %q", got)
	}

	engine, _ = newTestEngine(t, &fakeAPI{sensorsErr: errBackend})
	engine.LoadDeviceOverview(context.Background())
	if got := fragment(t, engine, TargetDevices); got != `<div class="error">Failed to load device data</div>` {
		t.Errorf("Unexpected failed overview: %q", got)
	}

	fake := &fakeAPI{
		sensors: []api.SensorReading{
			{ID: 3, DeviceID: "a", CreatedAt: at(3)},
			{ID: 2, DeviceID: "b", CreatedAt: at(2)},
			{ID: 1, DeviceID: "a", CreatedAt: at(1)},
		},
		wateringErr: errBackend,
	}
	engine, _ = newTestEngine(t, fake)
	if err := engine.LoadDeviceOverview(context.Background()); err != nil {
		t.Fatalf("Watering failure must not fail the overview: %v", err)
	}
	if got := strings.Count(fragment(t, engine, TargetDevices), `class="device-card"`); got != 2 {
		t.Errorf("Expected 2 device cards, got %d", got)
	}
}

func TestRefreshPumpStatus(t *testing.T) {
	fake := &fakeAPI{}
	engine, _ := newTestEngine(t, fake)

	if err := engine.RefreshPumpStatus(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, ok := engine.View().Get(TargetPump); ok {
		t.Error("Expected no pump update without readings")
	}

	fake.sensors = []api.SensorReading{{ID: 1, DeviceID: "autogrow_esp32", CreatedAt: at(0)}}
	fake.watering = &api.WateringEvent{DeviceID: "autogrow_esp32", PumpActive: true}
	if err := engine.RefreshPumpStatus(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if pump := fragment(t, engine, TargetPump); !strings.Contains(pump, "🟢 Active") {
		t.Errorf("Unexpected pump fragment:\n%s", pump)
	}
	if devices := fragment(t, engine, TargetDevices); !strings.Contains(devices, "🟢 Active") {
		t.Errorf("Expected overview reload with watering state:\n%s", devices)
	}

	fake.wateringErr = errBackend
	fake.watering.PumpActive = false
	if err := engine.RefreshPumpStatus(context.Background()); err == nil {
		t.Error("Expected watering failure to abort the pump refresh")
	}
	if pump := fragment(t, engine, TargetPump); !strings.Contains(pump, "🟢 Active") {
		t.Errorf("Expected pump fragment to stay unchanged:\n%s", pump)
	}
}

func TestInit(t *testing.T) {
	fake := &fakeAPI{
		health:  &api.HealthStatus{Status: "ok"},
		sensors: []api.SensorReading{{ID: 1, CreatedAt: at(0)}},
		history: []api.WateringHistoryRecord{{ID: 1, WateringStarted: at(0)}},
	}
	engine, _ := newTestEngine(t, fake)

	if err := engine.Init(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	for _, target := range []string{TargetHealth, TargetSensors, TargetLatest, TargetPump, TargetDevices, TargetWatering} {
		if _, ok := engine.View().Get(target); !ok {
			t.Errorf("Expected %s to be rendered", target)
		}
	}
	if engine.LastReload().IsZero() {
		t.Error("Expected LastReload to be set")
	}
}

func TestFullReload_UsesCurrentQuery(t *testing.T) {
	fake := &fakeAPI{}
	engine, _ := newTestEngine(t, fake)

	engine.SearchSensors(context.Background(), " esp ")
	engine.FullReload(context.Background())

	// search, then reload table and overview
	want := []string{"esp", "esp", ""}
	if strings.Join(fake.queries, ",") != strings.Join(want, ",") {
		t.Errorf("Expected queries %q, got %q", want, fake.queries)
	}
}

func TestDeleteSensor(t *testing.T) {
	fake := &fakeAPI{sensors: []api.SensorReading{
		{ID: 1, CreatedAt: at(1)},
		{ID: 2, CreatedAt: at(0)},
	}}
	engine, _ := newTestEngine(t, fake)
	engine.LoadSensorTable(context.Background(), "")

	if err := engine.DeleteSensor(context.Background(), 1); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	rows := fragment(t, engine, TargetSensors)
	if strings.Contains(rows, `data-del="1"`) || !strings.Contains(rows, `data-del="2"`) {
		t.Errorf("Expected reloaded table without row 1:\n%s", rows)
	}

	fake.deleteErr = errBackend
	err := engine.DeleteSensor(context.Background(), 2)
	var actionErr *ActionError
	if !errors.As(err, &actionErr) || actionErr.Message != "Failed to delete sensor data" {
		t.Fatalf("Expected alert text, got %v", err)
	}
	if !errors.Is(err, errBackend) {
		t.Errorf("Expected cause to be preserved")
	}
	if rows := fragment(t, engine, TargetSensors); !strings.Contains(rows, `data-del="2"`) {
		t.Errorf("Expected row to remain after failed delete:\n%s", rows)
	}
}

func TestDeleteWateringHistory(t *testing.T) {
	fake := &fakeAPI{history: []api.WateringHistoryRecord{{ID: 7, WateringStarted: at(0)}}}
	engine, _ := newTestEngine(t, fake)
	engine.LoadWateringTable(context.Background(), "")

	fake.deleteErr = errBackend
	err := engine.DeleteWateringHistory(context.Background(), 7)
	if err == nil || err.Error() != "Failed to delete watering history" {
		t.Fatalf("Expected alert text, got %v", err)
	}
	if rows := fragment(t, engine, TargetWatering); !strings.Contains(rows, `data-del-watering="7"`) {
		t.Errorf("Expected row to remain after failed delete:\n%s", rows)
	}

	fake.deleteErr = nil
	if err := engine.DeleteWateringHistory(context.Background(), 7); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if rows := fragment(t, engine, TargetWatering); strings.Contains(rows, `data-del-watering="7"`) {
		t.Errorf("Expected row to be gone:\n%s", rows)
	}
}

func TestCreateSensor_Validation(t *testing.T) {
	fake := &fakeAPI{}
	engine, _ := newTestEngine(t, fake)

	_, err := engine.CreateSensor(context.Background(), api.SensorReadingInput{})
	if !errors.Is(err, api.ErrMissingReadingFields) {
		t.Errorf("Expected validation error, got %v", err)
	}
	if len(fake.created) != 0 {
		t.Error("Invalid reading must not be sent")
	}

	v := 20.0
	reading, err := engine.CreateSensor(context.Background(), api.SensorReadingInput{Temperature: &v, Humidity: &v, Lux: &v})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if reading.ID != 100 {
		t.Errorf("Expected created reading, got %+v", reading)
	}
}

func TestSetPump(t *testing.T) {
	fake := &fakeAPI{
		sensors:  []api.SensorReading{{ID: 1, CreatedAt: at(0)}},
		watering: &api.WateringEvent{DeviceID: "greenhouse"},
	}
	engine, _ := newTestEngine(t, fake, WithWateringDevice("greenhouse"))

	if _, err := engine.SetPump(context.Background(), true); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(fake.wateringCalls) != 1 || *fake.wateringCalls[0].DeviceID != "greenhouse" || !*fake.wateringCalls[0].PumpActive {
		t.Errorf("Unexpected watering update: %+v", fake.wateringCalls)
	}
	if pump := fragment(t, engine, TargetPump); !strings.Contains(pump, "🟢 Active") {
		t.Errorf("Expected pump refresh after update:\n%s", pump)
	}

	fake.updateErr = errBackend
	if _, err := engine.SetPump(context.Background(), false); err == nil || err.Error() != SetPumpFailed {
		t.Errorf("Expected %q, got %v", SetPumpFailed, err)
	}
}

type recordingObserver struct {
	sensors int
	history int
}

func (o *recordingObserver) ObserveSensors(readings []api.SensorReading) {
	o.sensors += len(readings)
}

func (o *recordingObserver) ObserveWateringHistory(records []api.WateringHistoryRecord) {
	o.history += len(records)
}

func TestObserver(t *testing.T) {
	observer := &recordingObserver{}
	fake := &fakeAPI{
		sensors: []api.SensorReading{{ID: 1, CreatedAt: at(0)}},
		history: []api.WateringHistoryRecord{{ID: 1, WateringStarted: at(0)}},
	}
	engine, _ := newTestEngine(t, fake, WithObserver(observer))

	engine.LoadSensorTable(context.Background(), "")
	if observer.sensors != 0 {
		t.Errorf("Expected the sensor table load not to be observed, got %+v", observer)
	}

	engine.LoadDeviceOverview(context.Background())
	engine.LoadWateringTable(context.Background(), "")

	if observer.sensors != 1 || observer.history != 1 {
		t.Errorf("Expected observer to see fetched data, got %+v", observer)
	}
}

func TestSearchDoesNotHideReadingsFromExport(t *testing.T) {
	all := []api.SensorReading{
		{ID: 3, DeviceID: "esp", Temperature: 23, CreatedAt: at(3)},
		{ID: 2, DeviceID: "esp", Temperature: 22, CreatedAt: at(2)},
		{ID: 1, DeviceID: "esp", Temperature: 21, CreatedAt: at(1)},
	}
	fake := &fakeAPI{listSensor: func(ctx context.Context, q string) ([]api.SensorReading, error) {
		if q == "" {
			return all, nil
		}
		return []api.SensorReading{all[0], all[2]}, nil
	}}

	buf := buffer.New[*types.Reading](10, zap.NewNop())
	exp := exporter.New(buf, time.Since(at(0).Time)+time.Hour, zap.NewNop())
	engine, _ := newTestEngine(t, fake, WithObserver(exp))

	if err := engine.SearchSensors(context.Background(), "filtered"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := engine.SearchSensors(context.Background(), ""); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := engine.FullReload(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	got := buf.Drain()
	if len(got) != 3 {
		t.Fatalf("Expected all 3 readings exported, got %d", len(got))
	}
	for i, want := range []float64{21, 22, 23} {
		if got[i].Sensor.TemperatureCelsius != want {
			t.Errorf("reading %d: expected %v, got %v", i, want, got[i].Sensor.TemperatureCelsius)
		}
	}
}
