// Package format turns API values into the display strings used by the dashboard and the CLI.
package format

import (
	"fmt"
	"strconv"
	"time"

	"github.com/mjasion/balena-home/autogrow/api"
)

const (
	PumpActive   = "🟢 Active"
	PumpInactive = "🔴 Inactive"

	WateringAuto   = "🤖 Auto"
	WateringManual = "👤 Manual"

	WateringComplete   = "✅ Complete"
	WateringInProgress = "🔄 In Progress"

	UnknownDevice = "Unknown"
	NotAvailable  = "N/A"
	NoEndTime     = "--"

	DateTimeLayout = "2006-01-02 15:04:05"
)

// Temperature renders one decimal place, e.g. "21.5°C"
func Temperature(celsius float64) string {
	return fmt.Sprintf("%.1f°C", celsius)
}

// Humidity renders one decimal place, e.g. "55.0%"
func Humidity(percent float64) string {
	return fmt.Sprintf("%.1f%%", percent)
}

// Lux renders the shortest decimal form, e.g. "120 lux" or "120.5 lux"
func Lux(lux float64) string {
	return strconv.FormatFloat(lux, 'f', -1, 64) + " lux"
}

// PumpStatus reports the pump state. A non-nil watering event wins over the sensor's own flag.
func PumpStatus(pump bool, watering *api.WateringEvent) string {
	active := pump
	if watering != nil {
		active = watering.PumpActive
	}
	if active {
		return PumpActive
	}
	return PumpInactive
}

// WateringDuration renders seconds as "45s", "2m 5s" or "2m"
func WateringDuration(seconds int) string {
	if seconds < 60 {
		return strconv.Itoa(seconds) + "s"
	}
	minutes, rest := seconds/60, seconds%60
	if rest > 0 {
		return fmt.Sprintf("%dm %ds", minutes, rest)
	}
	return fmt.Sprintf("%dm", minutes)
}

func WateringType(auto bool) string {
	if auto {
		return WateringAuto
	}
	return WateringManual
}

// WateringStatus is complete once the cycle has an end time
func WateringStatus(ended *api.Time) string {
	if ended != nil && !ended.IsZero() {
		return WateringComplete
	}
	return WateringInProgress
}

// DateTime renders t in loc, falling back to the host zone when loc is nil
func DateTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DateTimeLayout)
}

// EndTime renders a cycle's end time, or "--" while it is still running
func EndTime(ended *api.Time, loc *time.Location) string {
	if ended == nil || ended.IsZero() {
		return NoEndTime
	}
	return DateTime(ended.Time, loc)
}

// LastWatering describes how long ago the pump last ran
func LastWatering(t *api.Time, now time.Time) string {
	if t == nil || t.IsZero() {
		return "Never"
	}
	elapsed := now.Sub(t.Time)
	switch {
	case elapsed < time.Minute:
		return "Just now"
	case elapsed < time.Hour:
		return plural(int(elapsed/time.Minute), "minute")
	case elapsed < 24*time.Hour:
		return plural(int(elapsed/time.Hour), "hour")
	default:
		return plural(int(elapsed/(24*time.Hour)), "day")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

// OrUnknown substitutes "Unknown" for a missing device id
func OrUnknown(deviceID string) string {
	if deviceID == "" {
		return UnknownDevice
	}
	return deviceID
}

// OrNA substitutes "N/A" for missing firmware or sensor type
func OrNA(value string) string {
	if value == "" {
		return NotAvailable
	}
	return value
}
