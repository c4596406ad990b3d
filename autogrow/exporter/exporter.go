// Package exporter feeds readings seen by the dashboard into the remote_write buffer.
package exporter

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mjasion/balena-home/autogrow/api"
	"github.com/mjasion/balena-home/autogrow/format"
	"github.com/mjasion/balena-home/pkg/buffer"
	"github.com/mjasion/balena-home/pkg/types"
)

// Exporter buffers every reading and finished watering cycle once. It keeps a
// per-device watermark so the same record seen on consecutive refreshes is not resent.
type Exporter struct {
	buffer *buffer.RingBuffer[*types.Reading]
	logger *zap.Logger

	mu       sync.Mutex
	start    time.Time
	sensors  map[string]time.Time
	watering map[string]time.Time
}

// New creates an Exporter. Records older than lookback at creation time are skipped.
func New(buf *buffer.RingBuffer[*types.Reading], lookback time.Duration, logger *zap.Logger) *Exporter {
	return &Exporter{
		buffer:   buf,
		logger:   logger,
		start:    time.Now().Add(-lookback),
		sensors:  make(map[string]time.Time),
		watering: make(map[string]time.Time),
	}
}

func (e *Exporter) watermark(marks map[string]time.Time, deviceID string) time.Time {
	if mark, ok := marks[deviceID]; ok {
		return mark
	}
	return e.start
}

// ObserveSensors buffers readings newer than their device's watermark, oldest first
func (e *Exporter) ObserveSensors(readings []api.SensorReading) {
	e.mu.Lock()
	defer e.mu.Unlock()

	marks := make(map[string]time.Time)
	var fresh []*types.Reading

	// the API lists newest first
	for i := len(readings) - 1; i >= 0; i-- {
		r := readings[i]
		deviceID := format.OrUnknown(r.DeviceID)
		if !r.CreatedAt.After(e.watermark(e.sensors, deviceID)) {
			continue
		}
		fresh = append(fresh, &types.Reading{
			Type: types.ReadingTypeSensor,
			Sensor: &types.SensorReading{
				Timestamp:          r.CreatedAt.Time,
				DeviceID:           deviceID,
				SensorType:         format.OrNA(r.SensorType),
				FirmwareVersion:    format.OrNA(r.FirmwareVersion),
				TemperatureCelsius: r.Temperature,
				HumidityPercent:    r.Humidity,
				Lux:                r.Lux,
				PumpActive:         r.PumpActive,
			},
		})
		if r.CreatedAt.After(marks[deviceID]) {
			marks[deviceID] = r.CreatedAt.Time
		}
	}

	for deviceID, mark := range marks {
		e.sensors[deviceID] = mark
	}
	if len(fresh) > 0 {
		e.buffer.AddAll(fresh)
		e.logger.Debug("buffered sensor readings", zap.Int("count", len(fresh)), zap.Int("buffered", e.buffer.Size()))
	}
}

// ObserveWateringHistory buffers cycles that ended after their device's watermark.
// Cycles still in progress are picked up once they end.
func (e *Exporter) ObserveWateringHistory(records []api.WateringHistoryRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()

	marks := make(map[string]time.Time)
	var fresh []*types.Reading

	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		if r.WateringEnded == nil || r.WateringEnded.IsZero() {
			continue
		}
		deviceID := format.OrUnknown(r.DeviceID)
		ended := r.WateringEnded.Time
		if !ended.After(e.watermark(e.watering, deviceID)) {
			continue
		}
		fresh = append(fresh, &types.Reading{
			Type: types.ReadingTypeWatering,
			Watering: &types.WateringReading{
				Timestamp:       ended,
				DeviceID:        deviceID,
				DurationSeconds: r.WateringDuration,
				Auto:            r.AutoWatering,
			},
		})
		if ended.After(marks[deviceID]) {
			marks[deviceID] = ended
		}
	}

	for deviceID, mark := range marks {
		e.watering[deviceID] = mark
	}
	if len(fresh) > 0 {
		e.buffer.AddAll(fresh)
		e.logger.Debug("buffered watering cycles", zap.Int("count", len(fresh)), zap.Int("buffered", e.buffer.Size()))
	}
}
