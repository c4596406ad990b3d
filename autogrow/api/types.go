package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// naiveLayouts are the zone-less ISO-8601 forms the backend writes for UTC datetimes
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Time is a timestamp that also accepts zone-less ISO-8601 values, read as UTC
type Time struct {
	time.Time
}

// NewTime wraps t
func NewTime(t time.Time) Time {
	return Time{Time: t}
}

// UnmarshalJSON implements json.Unmarshaler
func (t *Time) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	parsed, err := ParseTime(raw)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// MarshalJSON implements json.Marshaler
func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// ParseTime parses RFC 3339 or a zone-less ISO-8601 timestamp
func ParseTime(raw string) (time.Time, error) {
	if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return parsed, nil
	}
	for _, layout := range naiveLayouts {
		if parsed, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

// HealthStatus is the body of GET /api/v1/health
type HealthStatus struct {
	Status string `json:"status"`
}

// SensorReading is one stored climate sample
type SensorReading struct {
	ID              int64    `json:"id"`
	Temperature     float64  `json:"temperature"`
	Humidity        float64  `json:"humidity"`
	Lux             float64  `json:"lux"`
	PumpActive      bool     `json:"pump_active"`
	DeviceID        string   `json:"device_id"`
	FirmwareVersion string   `json:"firmware_version"`
	SensorType      string   `json:"sensor_type"`
	CreatedAt       Time     `json:"created_at"`
	Timestamp       *float64 `json:"timestamp,omitempty"`
}

// SensorReadingInput is the body of POST /api/v1/sensor-data. The device-facing field
// names (pumpActive) are what the backend expects on create.
type SensorReadingInput struct {
	Temperature     *float64 `json:"temperature"`
	Humidity        *float64 `json:"humidity"`
	Lux             *float64 `json:"lux"`
	PumpActive      bool     `json:"pumpActive"`
	Timestamp       int64    `json:"timestamp"`
	DeviceID        string   `json:"device_id"`
	FirmwareVersion string   `json:"firmware_version,omitempty"`
	SensorType      string   `json:"sensor_type,omitempty"`
}

// Validate enforces the required climate fields
func (in *SensorReadingInput) Validate() error {
	if in.Temperature == nil || in.Humidity == nil || in.Lux == nil {
		return ErrMissingReadingFields
	}
	return nil
}

// SensorReadingUpdate is the body of PUT /api/v1/sensor-data/{id}; nil fields are left unchanged
type SensorReadingUpdate struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	Humidity        *float64 `json:"humidity,omitempty"`
	Lux             *float64 `json:"lux,omitempty"`
	PumpActive      *bool    `json:"pump_active,omitempty"`
	Timestamp       *float64 `json:"timestamp,omitempty"`
	DeviceID        *string  `json:"device_id,omitempty"`
	FirmwareVersion *string  `json:"firmware_version,omitempty"`
	SensorType      *string  `json:"sensor_type,omitempty"`
}

// WateringEvent is the current pump state of a device
type WateringEvent struct {
	DeviceID         string  `json:"device_id"`
	PumpActive       bool    `json:"pump_active"`
	LastWatering     *Time   `json:"last_watering"`
	WateringDuration int     `json:"watering_duration"`
	AutoWatering     bool    `json:"auto_watering"`
	Timestamp        float64 `json:"timestamp"`
}

// WateringUpdate is the body of PUT /api/v1/watering; nil fields are left unchanged
type WateringUpdate struct {
	DeviceID         *string  `json:"device_id,omitempty"`
	PumpActive       *bool    `json:"pump_active,omitempty"`
	LastWatering     *Time    `json:"last_watering,omitempty"`
	WateringDuration *int     `json:"watering_duration,omitempty"`
	AutoWatering     *bool    `json:"auto_watering,omitempty"`
	Timestamp        *float64 `json:"timestamp,omitempty"`
}

// WateringHistoryRecord is one irrigation cycle; WateringEnded is nil while it runs
type WateringHistoryRecord struct {
	ID               int64  `json:"id"`
	DeviceID         string `json:"device_id"`
	WateringDuration int    `json:"watering_duration"`
	AutoWatering     bool   `json:"auto_watering"`
	WateringStarted  Time   `json:"watering_started"`
	WateringEnded    *Time  `json:"watering_ended"`
	CreatedAt        Time   `json:"created_at"`
}

// WateringHistoryInput is the body of POST /api/v1/watering-history
type WateringHistoryInput struct {
	DeviceID         string `json:"device_id"`
	WateringDuration int    `json:"watering_duration"`
	AutoWatering     bool   `json:"auto_watering"`
	WateringStarted  Time   `json:"watering_started"`
	WateringEnded    *Time  `json:"watering_ended,omitempty"`
}

// WateringHistoryUpdate is the body of PUT /api/v1/watering-history/{id}
type WateringHistoryUpdate struct {
	WateringEnded *Time `json:"watering_ended"`
}
