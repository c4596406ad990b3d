package metrics

import (
	"context"
	"strconv"

	"github.com/mjasion/balena-home/pkg/types"
	"github.com/prometheus/prometheus/prompb"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Metric names written by the builders
const (
	MetricTemperature      = "autogrow_temperature_celsius"
	MetricHumidity         = "autogrow_humidity_percent"
	MetricIlluminance      = "autogrow_illuminance_lux"
	MetricPumpActive       = "autogrow_pump_active"
	MetricWateringDuration = "autogrow_watering_duration_seconds"
)

var sensorMetrics = []struct {
	name  string
	value func(*types.SensorReading) float64
}{
	{MetricTemperature, func(r *types.SensorReading) float64 { return r.TemperatureCelsius }},
	{MetricHumidity, func(r *types.SensorReading) float64 { return r.HumidityPercent }},
	{MetricIlluminance, func(r *types.SensorReading) float64 { return r.Lux }},
	{MetricPumpActive, func(r *types.SensorReading) float64 {
		if r.PumpActive {
			return 1
		}
		return 0
	}},
}

// BuildSensorTimeSeries builds four series per device: temperature, humidity, lux and pump state
func BuildSensorTimeSeries(ctx context.Context, readings []*types.Reading) ([]prompb.TimeSeries, error) {
	_, span := otel.Tracer("metrics").Start(ctx, "metrics.BuildSensorTimeSeries")
	defer span.End()

	type deviceKey struct {
		deviceID   string
		sensorType string
	}
	byDevice := make(map[deviceKey][]*types.SensorReading)
	var order []deviceKey
	for _, r := range readings {
		if r.Type != types.ReadingTypeSensor || r.Sensor == nil {
			continue
		}
		key := deviceKey{deviceID: r.Sensor.DeviceID, sensorType: r.Sensor.SensorType}
		if _, seen := byDevice[key]; !seen {
			order = append(order, key)
		}
		byDevice[key] = append(byDevice[key], r.Sensor)
	}

	var timeSeries []prompb.TimeSeries
	for _, key := range order {
		samples := byDevice[key]
		labels := []prompb.Label{
			{Name: "device_id", Value: key.deviceID},
			{Name: "sensor_type", Value: key.sensorType},
		}

		for _, m := range sensorMetrics {
			series := prompb.TimeSeries{Labels: withName(labels, m.name)}
			for _, s := range samples {
				series.Samples = append(series.Samples, prompb.Sample{
					Value:     m.value(s),
					Timestamp: s.Timestamp.UnixMilli(),
				})
			}
			timeSeries = append(timeSeries, series)
		}
	}

	span.SetAttributes(attribute.Int("metrics.sensor_time_series_count", len(timeSeries)))
	span.SetStatus(codes.Ok, "sensor time series built")
	return timeSeries, nil
}

// BuildWateringTimeSeries builds one duration series per device and watering mode
func BuildWateringTimeSeries(ctx context.Context, readings []*types.Reading) ([]prompb.TimeSeries, error) {
	_, span := otel.Tracer("metrics").Start(ctx, "metrics.BuildWateringTimeSeries")
	defer span.End()

	type cycleKey struct {
		deviceID string
		auto     bool
	}
	byKey := make(map[cycleKey]*prompb.TimeSeries)
	var order []cycleKey
	for _, r := range readings {
		if r.Type != types.ReadingTypeWatering || r.Watering == nil {
			continue
		}
		key := cycleKey{deviceID: r.Watering.DeviceID, auto: r.Watering.Auto}
		series, ok := byKey[key]
		if !ok {
			series = &prompb.TimeSeries{Labels: withName([]prompb.Label{
				{Name: "device_id", Value: key.deviceID},
				{Name: "auto", Value: strconv.FormatBool(key.auto)},
			}, MetricWateringDuration)}
			byKey[key] = series
			order = append(order, key)
		}
		series.Samples = append(series.Samples, prompb.Sample{
			Value:     float64(r.Watering.DurationSeconds),
			Timestamp: r.Watering.Timestamp.UnixMilli(),
		})
	}

	timeSeries := make([]prompb.TimeSeries, 0, len(order))
	for _, key := range order {
		timeSeries = append(timeSeries, *byKey[key])
	}

	span.SetAttributes(attribute.Int("metrics.watering_time_series_count", len(timeSeries)))
	span.SetStatus(codes.Ok, "watering time series built")
	return timeSeries, nil
}

// CombineBuilders concatenates the output of several builders
func CombineBuilders(builders ...TimeSeriesBuilder) TimeSeriesBuilder {
	return func(ctx context.Context, readings []*types.Reading) ([]prompb.TimeSeries, error) {
		var all []prompb.TimeSeries
		for _, builder := range builders {
			if builder == nil {
				continue
			}
			series, err := builder(ctx, readings)
			if err != nil {
				return nil, err
			}
			all = append(all, series...)
		}
		return all, nil
	}
}

// withName returns a copy of labels with __name__ prepended
func withName(labels []prompb.Label, name string) []prompb.Label {
	out := make([]prompb.Label, 0, len(labels)+1)
	out = append(out, prompb.Label{Name: "__name__", Value: name})
	return append(out, labels...)
}
