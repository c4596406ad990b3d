package dashboard

import (
	"context"
	"sync"

	"github.com/mjasion/balena-home/autogrow/api"
)

// fakeAPI serves canned data; any *Err field makes the matching call fail
type fakeAPI struct {
	mu sync.Mutex

	health    *api.HealthStatus
	healthErr error

	sensors    []api.SensorReading
	sensorsErr error
	listSensor func(ctx context.Context, q string) ([]api.SensorReading, error)

	watering    *api.WateringEvent
	wateringErr error

	history    []api.WateringHistoryRecord
	historyErr error

	deleteErr error
	createErr error
	updateErr error

	queries        []string
	historyFilters []string
	deleted        []int64
	created        []api.SensorReadingInput
	wateringCalls  []api.WateringUpdate
}

func (f *fakeAPI) Health(ctx context.Context) (*api.HealthStatus, error) {
	if f.healthErr != nil {
		return nil, f.healthErr
	}
	return f.health, nil
}

func (f *fakeAPI) ListSensors(ctx context.Context, q string) ([]api.SensorReading, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	list, sensors, err := f.listSensor, f.sensors, f.sensorsErr
	f.mu.Unlock()

	if list != nil {
		return list(ctx, q)
	}
	if err != nil {
		return nil, err
	}
	return sensors, nil
}

func (f *fakeAPI) CreateSensor(ctx context.Context, in api.SensorReadingInput) (*api.SensorReading, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.mu.Lock()
	f.created = append(f.created, in)
	f.mu.Unlock()
	return &api.SensorReading{ID: 100, Temperature: *in.Temperature, Humidity: *in.Humidity, Lux: *in.Lux}, nil
}

func (f *fakeAPI) UpdateSensor(ctx context.Context, id int64, upd api.SensorReadingUpdate) (*api.SensorReading, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return &api.SensorReading{ID: id}, nil
}

func (f *fakeAPI) DeleteSensor(ctx context.Context, id int64) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	kept := f.sensors[:0:0]
	for _, reading := range f.sensors {
		if reading.ID != id {
			kept = append(kept, reading)
		}
	}
	f.sensors = kept
	return nil
}

func (f *fakeAPI) GetWatering(ctx context.Context, deviceID string) (*api.WateringEvent, error) {
	if f.wateringErr != nil {
		return nil, f.wateringErr
	}
	return f.watering, nil
}

func (f *fakeAPI) UpdateWatering(ctx context.Context, upd api.WateringUpdate) (*api.WateringEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wateringCalls = append(f.wateringCalls, upd)
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	if f.watering != nil && upd.PumpActive != nil {
		f.watering.PumpActive = *upd.PumpActive
	}
	return f.watering, nil
}

func (f *fakeAPI) ListWateringHistory(ctx context.Context, deviceID string) ([]api.WateringHistoryRecord, error) {
	f.mu.Lock()
	f.historyFilters = append(f.historyFilters, deviceID)
	history, err := f.history, f.historyErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return history, nil
}

func (f *fakeAPI) DeleteWateringHistory(ctx context.Context, id int64) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	kept := f.history[:0:0]
	for _, record := range f.history {
		if record.ID != id {
			kept = append(kept, record)
		}
	}
	f.history = kept
	return nil
}
