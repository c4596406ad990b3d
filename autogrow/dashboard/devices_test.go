package dashboard

import (
	"testing"

	"github.com/mjasion/balena-home/autogrow/api"
)

func TestUniqueDevices(t *testing.T) {
	readings := []api.SensorReading{
		{ID: 1, DeviceID: "a", CreatedAt: at(1)},
		{ID: 2, DeviceID: "b", CreatedAt: at(5)},
		{ID: 3, DeviceID: "a", CreatedAt: at(3)},
		{ID: 4, DeviceID: "", CreatedAt: at(2)},
		{ID: 5, DeviceID: "", CreatedAt: at(0)},
	}

	devices := UniqueDevices(readings)

	wantIDs := []int64{2, 3, 4}
	if len(devices) != len(wantIDs) {
		t.Fatalf("Expected %d devices, got %d", len(wantIDs), len(devices))
	}
	for i, want := range wantIDs {
		if devices[i].ID != want {
			t.Errorf("Position %d: expected reading %d, got %d", i, want, devices[i].ID)
		}
	}
}

func TestUniqueDevices_Empty(t *testing.T) {
	if got := UniqueDevices(nil); len(got) != 0 {
		t.Errorf("Expected no devices, got %v", got)
	}
}
