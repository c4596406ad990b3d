package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mjasion/balena-home/autogrow/dashboard"
	"github.com/mjasion/balena-home/pkg/buffer"
	pkgmetrics "github.com/mjasion/balena-home/pkg/metrics"
	"github.com/mjasion/balena-home/pkg/types"
)

// HealthStatus represents the health status of the service
type HealthStatus struct {
	Status           string     `json:"status"`
	LastReload       time.Time  `json:"lastReload"`
	WebsocketClients int        `json:"websocketClients"`
	LastPushTime     *time.Time `json:"lastPushTime,omitempty"`
	BufferedSamples  *int       `json:"bufferedSamples,omitempty"`
}

type reloadTracker interface {
	LastReload() time.Time
}

// HealthChecker reports whether the refresh loop and the export pipeline are keeping up
type HealthChecker struct {
	engine         reloadTracker
	view           *dashboard.View
	reloadInterval time.Duration
	pusher         *pkgmetrics.Pusher
	buffer         *buffer.RingBuffer[*types.Reading]
	pushInterval   time.Duration
}

// NewHealthChecker creates a new HealthChecker instance
func NewHealthChecker(engine reloadTracker, opts Options, view *dashboard.View) *HealthChecker {
	return &HealthChecker{
		engine:         engine,
		view:           view,
		reloadInterval: opts.ReloadInterval,
		pusher:         opts.Pusher,
		buffer:         opts.Buffer,
		pushInterval:   opts.PushInterval,
	}
}

// Check computes the current status
func (hc *HealthChecker) Check() HealthStatus {
	lastReload := hc.engine.LastReload()
	status := HealthStatus{
		Status:           "healthy",
		LastReload:       lastReload,
		WebsocketClients: hc.view.Subscribers(),
	}

	// Reloading is stale after 3 missed intervals
	if !lastReload.IsZero() && hc.reloadInterval > 0 && time.Since(lastReload) > 3*hc.reloadInterval {
		status.Status = "unhealthy"
	}

	pending := 0
	if hc.buffer != nil {
		pending = hc.buffer.Size()
		status.BufferedSamples = &pending
	}

	// Pushing is stale after 3 missed intervals, but only while samples are waiting
	if hc.pusher != nil {
		lastPush := hc.pusher.LastPushTime()
		status.LastPushTime = &lastPush
		if pending > 0 && hc.pushInterval > 0 && time.Since(lastPush) > 3*hc.pushInterval {
			status.Status = "unhealthy"
		}
	}
	return status
}

// handleHealth responds to health check requests
func (hc *HealthChecker) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := hc.Check()

	w.Header().Set("Content-Type", "application/json")
	if status.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(status)
}
