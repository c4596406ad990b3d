package types

import "time"

// ReadingType identifies which payload of a Reading is set
type ReadingType string

const (
	ReadingTypeSensor   ReadingType = "sensor"
	ReadingTypeWatering ReadingType = "watering"
)

// Reading is a union of the samples exported to Prometheus
type Reading struct {
	Type     ReadingType
	Sensor   *SensorReading
	Watering *WateringReading
}

// SensorReading is one climate sample from a grow device
type SensorReading struct {
	Timestamp          time.Time
	DeviceID           string
	SensorType         string
	FirmwareVersion    string
	TemperatureCelsius float64
	HumidityPercent    float64
	Lux                float64
	PumpActive         bool
}

// WateringReading is one finished irrigation cycle
type WateringReading struct {
	Timestamp       time.Time
	DeviceID        string
	DurationSeconds int
	Auto            bool
}

// GetTimestamp returns the timestamp of whichever payload is set
func (r *Reading) GetTimestamp() time.Time {
	switch r.Type {
	case ReadingTypeSensor:
		return r.Sensor.Timestamp
	case ReadingTypeWatering:
		return r.Watering.Timestamp
	default:
		return time.Time{}
	}
}
