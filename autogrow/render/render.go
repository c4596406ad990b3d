// Package render builds the HTML fragments the dashboard swaps into the page.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/mjasion/balena-home/autogrow/api"
	"github.com/mjasion/balena-home/autogrow/format"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	SensorColumns   = 10
	WateringColumns = 8
)

const (
	LoadFailed        = "Failed to load data"
	DevicesFailed     = "Failed to load device data"
	NoDevices         = "No device data available"
	HealthOffline     = "API: offline"
	healthStatusLabel = "API: "
)

// Renderer executes the embedded templates. It is safe for concurrent use.
type Renderer struct {
	tmpl *template.Template
	loc  *time.Location
	now  func() time.Time
}

// Option configures a Renderer
type Option func(*Renderer)

// WithClock overrides the clock used for relative times
func WithClock(now func() time.Time) Option {
	return func(r *Renderer) {
		r.now = now
	}
}

// New parses the embedded templates. Timestamps are shown in loc.
func New(loc *time.Location, opts ...Option) (*Renderer, error) {
	if loc == nil {
		loc = time.Local
	}
	r := &Renderer{loc: loc, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}

	funcs := template.FuncMap{
		"temperature":      format.Temperature,
		"humidity":         format.Humidity,
		"lux":              format.Lux,
		"pumpStatus":       format.PumpStatus,
		"wateringDuration": format.WateringDuration,
		"wateringType":     format.WateringType,
		"wateringStatus":   format.WateringStatus,
		"orUnknown":        format.OrUnknown,
		"orNA":             format.OrNA,
		"dateTime": func(t api.Time) string {
			return format.DateTime(t.Time, r.loc)
		},
		"endTime": func(t *api.Time) string {
			return format.EndTime(t, r.loc)
		},
		"lastWatering": func(t *api.Time) string {
			return format.LastWatering(t, r.now())
		},
	}

	tmpl, err := template.New("render").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	r.tmpl = tmpl
	return r, nil
}

func (r *Renderer) execute(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.String(), nil
}

// SensorRows renders one table row per reading
func (r *Renderer) SensorRows(readings []api.SensorReading) (string, error) {
	return r.execute("sensor_rows", readings)
}

// WateringRows renders one table row per irrigation cycle
func (r *Renderer) WateringRows(records []api.WateringHistoryRecord) (string, error) {
	return r.execute("watering_rows", records)
}

// Latest renders the climate values of the newest reading
func (r *Renderer) Latest(reading api.SensorReading) (string, error) {
	return r.execute("latest", reading)
}

type pumpData struct {
	Pump     bool
	Watering *api.WateringEvent
}

// Pump renders the pump status line and, when known, the time of the last watering
func (r *Renderer) Pump(pump bool, watering *api.WateringEvent) (string, error) {
	return r.execute("pump", pumpData{Pump: pump, Watering: watering})
}

type deviceCard struct {
	Reading  api.SensorReading
	Watering *api.WateringEvent
}

// DeviceCards renders one card per device. The watering event only applies to the device it belongs to.
func (r *Renderer) DeviceCards(devices []api.SensorReading, watering *api.WateringEvent) (string, error) {
	if len(devices) == 0 {
		return r.Message("no-data", NoDevices), nil
	}
	cards := make([]deviceCard, 0, len(devices))
	for _, device := range devices {
		card := deviceCard{Reading: device}
		if watering != nil && watering.DeviceID == format.OrUnknown(device.DeviceID) {
			card.Watering = watering
		}
		cards = append(cards, card)
	}
	return r.execute("device_cards", cards)
}

// Health renders the API status line
func (r *Renderer) Health(status string) string {
	if status == "" {
		status = "unknown"
	}
	return template.HTMLEscapeString(healthStatusLabel + status)
}

// HealthOffline renders the status line shown when the health check fails
func (r *Renderer) HealthOffline() string {
	return HealthOffline
}

// ErrorRow renders a single full-width error row for a table with the given column count
func (r *Renderer) ErrorRow(columns int, message string) string {
	return fmt.Sprintf(`<tr><td colspan="%d" class="error">%s</td></tr>`, columns, template.HTMLEscapeString(message))
}

// Message renders a standalone notice block with the given CSS class
func (r *Renderer) Message(class, message string) string {
	return fmt.Sprintf(`<div class="%s">%s</div>`, template.HTMLEscapeString(class), template.HTMLEscapeString(message))
}

// PageData is everything the full page needs besides the fragments
type PageData struct {
	Title       string
	Query       string
	DeviceQuery string
	DeviceID    string
	Fragments   map[string]string
}

type pageModel struct {
	PageData
	HTML map[string]template.HTML
}

// Page writes the full dashboard document. Fragments are trusted renderer output.
func (r *Renderer) Page(w io.Writer, data PageData) error {
	model := pageModel{PageData: data, HTML: make(map[string]template.HTML, len(data.Fragments))}
	for target, fragment := range data.Fragments {
		model.HTML[target] = template.HTML(fragment)
	}
	if model.Title == "" {
		model.Title = "Autogrow Dashboard"
	}
	if err := r.tmpl.ExecuteTemplate(w, "page", model); err != nil {
		return fmt.Errorf("failed to render page: %w", err)
	}
	return nil
}
