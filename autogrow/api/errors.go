package api

import (
	"errors"
	"fmt"
)

var (
	// ErrUnexpectedStatus matches every OperationError raised for a non-2xx response
	ErrUnexpectedStatus = errors.New("unexpected status")

	// ErrMissingReadingFields is returned when a reading lacks temperature, humidity or lux
	ErrMissingReadingFields = errors.New("temperature, humidity and lux are required")
)

// Operation names a REST call and carries its fixed user-facing failure message
type Operation struct {
	Name    string
	Message string
}

var (
	OpHealth                = Operation{"health", "Health check failed"}
	OpListSensors           = Operation{"list_sensors", "List sensor data failed"}
	OpGetSensor             = Operation{"get_sensor", "Not found"}
	OpCreateSensor          = Operation{"create_sensor", "Create failed"}
	OpUpdateSensor          = Operation{"update_sensor", "Update failed"}
	OpDeleteSensor          = Operation{"delete_sensor", "Delete failed"}
	OpGetWatering           = Operation{"get_watering", "Get watering failed"}
	OpUpdateWatering        = Operation{"update_watering", "Update watering failed"}
	OpListWateringHistory   = Operation{"list_watering_history", "List watering history failed"}
	OpGetWateringHistory    = Operation{"get_watering_history", "Not found"}
	OpCreateWateringHistory = Operation{"create_watering_history", "Create failed"}
	OpUpdateWateringHistory = Operation{"update_watering_history", "Update failed"}
	OpDeleteWateringHistory = Operation{"delete_watering_history", "Delete failed"}
)

// OperationError is returned when a call fails before a usable response arrives:
// a non-2xx status, a transport failure, or an open circuit breaker.
// Error() is always the operation's fixed message.
type OperationError struct {
	Op         Operation
	StatusCode int
	Body       string
	Err        error
}

func (e *OperationError) Error() string {
	return e.Op.Message
}

// Unwrap exposes the cause, or ErrUnexpectedStatus for status failures
func (e *OperationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrUnexpectedStatus
}

// Detail describes the failure for logs
func (e *OperationError) Detail() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Op.Name, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: %v", e.Op.Name, e.Err)
}

// StatusCode returns the HTTP status carried by err, or 0
func StatusCode(err error) int {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr.StatusCode
	}
	return 0
}
