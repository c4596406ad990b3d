package render

import (
	"strings"
	"testing"
	"time"

	"github.com/mjasion/balena-home/autogrow/api"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := New(time.UTC, WithClock(func() time.Time { return fixedNow }))
	if err != nil {
		t.Fatalf("Failed to create renderer: %v", err)
	}
	return r
}

func sampleReading() api.SensorReading {
	return api.SensorReading{
		ID:          42,
		Temperature: 21.456,
		Humidity:    55,
		Lux:         120,
		PumpActive:  true,
		CreatedAt:   api.NewTime(time.Date(2025, 6, 1, 10, 5, 0, 0, time.UTC)),
	}
}

func TestSensorRows(t *testing.T) {
	r := newTestRenderer(t)

	html, err := r.SensorRows([]api.SensorReading{sampleReading()})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	for _, want := range []string{
		"<td>42</td>",
		"21.5°C",
		"55.0%",
		"120 lux",
		"🟢 Active",
		"<td>Unknown</td>",
		`<span class="muted">N/A</span>`,
		"2025-06-01 10:05:00",
		`data-del="42"`,
	} {
		if !strings.Contains(html, want) {
			t.Errorf("Expected row to contain %q, got:\n%s", want, html)
		}
	}
	if got := strings.Count(html, "<td"); got != SensorColumns {
		t.Errorf("Expected %d cells, got %d", SensorColumns, got)
	}
}

func TestSensorRows_EscapesValues(t *testing.T) {
	r := newTestRenderer(t)
	reading := sampleReading()
	reading.DeviceID = "<script>alert(1)</script>"

	html, err := r.SensorRows([]api.SensorReading{reading})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if strings.Contains(html, "<script>") {
		t.Errorf("Expected device id to be escaped, got:\n%s", html)
	}
}

func TestSensorRows_Empty(t *testing.T) {
	r := newTestRenderer(t)
	html, err := r.SensorRows(nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if strings.TrimSpace(html) != "" {
		t.Errorf("Expected empty body, got %q", html)
	}
}

func TestWateringRows(t *testing.T) {
	r := newTestRenderer(t)
	ended := api.NewTime(time.Date(2025, 6, 1, 9, 2, 5, 0, time.UTC))
	records := []api.WateringHistoryRecord{
		{ID: 1, DeviceID: "esp", WateringDuration: 125, AutoWatering: true,
			WateringStarted: api.NewTime(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)), WateringEnded: &ended},
		{ID: 2, WateringDuration: 45,
			WateringStarted: api.NewTime(time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC))},
	}

	html, err := r.WateringRows(records)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	for _, want := range []string{
		"2m 5s", "🤖 Auto", "✅ Complete", "2025-06-01 09:02:05",
		"45s", "👤 Manual", "🔄 In Progress", "--", "<td>Unknown</td>",
		`data-del-watering="2"`,
	} {
		if !strings.Contains(html, want) {
			t.Errorf("Expected rows to contain %q, got:\n%s", want, html)
		}
	}
	if got := strings.Count(html, "<td"); got != 2*WateringColumns {
		t.Errorf("Expected %d cells, got %d", 2*WateringColumns, got)
	}
}

func TestLatestAndPump(t *testing.T) {
	r := newTestRenderer(t)

	latest, err := r.Latest(sampleReading())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.Contains(latest, "21.5°C") || !strings.Contains(latest, "Unknown") {
		t.Errorf("Unexpected latest panel:\n%s", latest)
	}

	pump, err := r.Pump(true, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.Contains(pump, "🟢 Active") || strings.Contains(pump, "Last watering") {
		t.Errorf("Unexpected pump fragment without watering data:\n%s", pump)
	}

	last := api.NewTime(fixedNow.Add(-15 * time.Minute))
	pump, err = r.Pump(true, &api.WateringEvent{PumpActive: false, LastWatering: &last})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.Contains(pump, "🔴 Inactive") || !strings.Contains(pump, "15 minutes ago") {
		t.Errorf("Expected watering data to override pump state:\n%s", pump)
	}
}

func TestDeviceCards(t *testing.T) {
	r := newTestRenderer(t)

	html, err := r.DeviceCards(nil, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if html != `<div class="no-data">No device data available</div>` {
		t.Errorf("Unexpected empty overview: %q", html)
	}

	a := sampleReading()
	a.DeviceID = "autogrow_esp32"
	a.PumpActive = false
	b := sampleReading()
	b.DeviceID = "other"
	b.PumpActive = false

	html, err = r.DeviceCards([]api.SensorReading{a, b}, &api.WateringEvent{DeviceID: "autogrow_esp32", PumpActive: true})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := strings.Count(html, `class="device-card"`); got != 2 {
		t.Fatalf("Expected 2 cards, got %d", got)
	}
	if got := strings.Count(html, "🟢 Active"); got != 1 {
		t.Errorf("Expected watering data to apply only to its own device, got %d active cards", got)
	}
}

func TestPlaceholders(t *testing.T) {
	r := newTestRenderer(t)

	if got := r.ErrorRow(SensorColumns, LoadFailed); got != `<tr><td colspan="10" class="error">Failed to load data</td></tr>` {
		t.Errorf("Unexpected sensor error row: %q", got)
	}
	if got := r.ErrorRow(WateringColumns, LoadFailed); got != `<tr><td colspan="8" class="error">Failed to load data</td></tr>` {
		t.Errorf("Unexpected watering error row: %q", got)
	}
	if got := r.Message("error", DevicesFailed); got != `<div class="error">Failed to load device data</div>` {
		t.Errorf("Unexpected device error: %q", got)
	}
	if got := r.Health("ok"); got != "API: ok" {
		t.Errorf("Health(ok) = %q", got)
	}
	if got := r.Health(""); got != "API: unknown" {
		t.Errorf("Health(\"\") = %q", got)
	}
	if got := r.HealthOffline(); got != "API: offline" {
		t.Errorf("HealthOffline() = %q", got)
	}
}

func TestPage(t *testing.T) {
	r := newTestRenderer(t)
	var sb strings.Builder

	err := r.Page(&sb, PageData{
		Query:    "esp",
		DeviceID: "autogrow_esp32",
		Fragments: map[string]string{
			"health":  "API: ok",
			"sensors": "<tr><td>1</td></tr>",
		},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	html := sb.String()
	for _, want := range []string{
		"<title>Autogrow Dashboard</title>",
		`<span id="health">API: ok</span>`,
		`<tbody id="sensors"><tr><td>1</td></tr></tbody>`,
		`value="esp"`,
		`"autogrow_esp32"`,
	} {
		if !strings.Contains(html, want) {
			t.Errorf("Expected page to contain %q", want)
		}
	}
}

func TestPage_ResetsSequencesOnReconnect(t *testing.T) {
	r := newTestRenderer(t)
	var sb strings.Builder
	if err := r.Page(&sb, PageData{}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	html := sb.String()
	onopen := strings.Index(html, "ws.onopen")
	onmessage := strings.Index(html, "ws.onmessage")
	if onopen < 0 || onmessage < 0 {
		t.Fatalf("Expected websocket open and message handlers in page script")
	}
	if !strings.Contains(html[onopen:onmessage], "delete seen[target]") {
		t.Errorf("Expected the open handler to forget sequences from the previous connection, got %q", html[onopen:onmessage])
	}
}
