package dashboard

import (
	"sort"

	"github.com/mjasion/balena-home/autogrow/api"
	"github.com/mjasion/balena-home/autogrow/format"
)

// UniqueDevices keeps the newest reading of every device, newest device first.
// Readings without a device id are grouped under "Unknown".
func UniqueDevices(readings []api.SensorReading) []api.SensorReading {
	latest := make(map[string]api.SensorReading)
	for _, reading := range readings {
		id := format.OrUnknown(reading.DeviceID)
		current, ok := latest[id]
		if !ok || reading.CreatedAt.After(current.CreatedAt.Time) {
			latest[id] = reading
		}
	}

	devices := make([]api.SensorReading, 0, len(latest))
	for _, reading := range latest {
		devices = append(devices, reading)
	}
	sort.SliceStable(devices, func(i, j int) bool {
		if devices[i].CreatedAt.Equal(devices[j].CreatedAt.Time) {
			return format.OrUnknown(devices[i].DeviceID) < format.OrUnknown(devices[j].DeviceID)
		}
		return devices[i].CreatedAt.After(devices[j].CreatedAt.Time)
	})
	return devices
}
