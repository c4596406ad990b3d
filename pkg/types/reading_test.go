package types

import (
	"testing"
	"time"
)

func TestGetTimestamp(t *testing.T) {
	ts := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		reading Reading
		want    time.Time
	}{
		{"sensor", Reading{Type: ReadingTypeSensor, Sensor: &SensorReading{Timestamp: ts}}, ts},
		{"watering", Reading{Type: ReadingTypeWatering, Watering: &WateringReading{Timestamp: ts.Add(time.Minute)}}, ts.Add(time.Minute)},
		{"unknown type", Reading{Type: "other"}, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.reading.GetTimestamp(); !got.Equal(tt.want) {
				t.Errorf("GetTimestamp() = %v, want %v", got, tt.want)
			}
		})
	}
}
