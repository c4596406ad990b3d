// Package server exposes the dashboard page, its fragments, user actions and the live update socket.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mjasion/balena-home/autogrow/dashboard"
	"github.com/mjasion/balena-home/autogrow/render"
	"github.com/mjasion/balena-home/pkg/buffer"
	pkgmetrics "github.com/mjasion/balena-home/pkg/metrics"
	"github.com/mjasion/balena-home/pkg/types"
)

// Options configures the HTTP surface
type Options struct {
	Port           int
	ReloadInterval time.Duration

	// Gatherer serves /metrics; defaults to the global registry
	Gatherer prometheus.Gatherer

	// Export pipeline, reported on /healthz when set
	Pusher       *pkgmetrics.Pusher
	Buffer       *buffer.RingBuffer[*types.Reading]
	PushInterval time.Duration
}

// Server serves the dashboard
type Server struct {
	engine   *dashboard.Engine
	view     *dashboard.View
	renderer *render.Renderer
	metrics  *dashboard.Metrics
	health   *HealthChecker
	logger   *zap.Logger

	upgrader   websocket.Upgrader
	httpServer *http.Server
	done       chan struct{}
}

// New creates a Server; call Start to listen
func New(engine *dashboard.Engine, renderer *render.Renderer, metrics *dashboard.Metrics, opts Options, logger *zap.Logger) *Server {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		engine:   engine,
		view:     engine.View(),
		renderer: renderer,
		metrics:  metrics,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		done: make(chan struct{}),
	}
	s.health = NewHealthChecker(engine, opts, s.view)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           s.routes(opts.Gatherer),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes(gatherer prometheus.Gatherer) http.Handler {
	r := mux.NewRouter()

	gzip := func(h http.HandlerFunc) http.Handler {
		return gziphandler.GzipHandler(h)
	}

	// Page and fragments
	r.Handle("/", gzip(s.handlePage)).Methods(http.MethodGet)
	r.Handle("/fragments/{target}", gzip(s.handleFragment)).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)

	// Sensor actions
	actions := r.PathPrefix("/actions").Subrouter()
	actions.HandleFunc("/sensors/search", s.handleSearchSensors).Methods(http.MethodPost)
	actions.HandleFunc("/sensors/refresh", s.handleRefreshSensors).Methods(http.MethodPost)
	actions.HandleFunc("/sensors", s.handleCreateSensor).Methods(http.MethodPost)
	actions.HandleFunc("/sensors/{id:[0-9]+}", s.handleUpdateSensor).Methods(http.MethodPut)
	actions.HandleFunc("/sensors/{id:[0-9]+}", s.handleDeleteSensor).Methods(http.MethodDelete)

	// Watering actions
	actions.HandleFunc("/watering-history/search", s.handleSearchWateringHistory).Methods(http.MethodPost)
	actions.HandleFunc("/watering-history/refresh", s.handleRefreshWateringHistory).Methods(http.MethodPost)
	actions.HandleFunc("/watering-history/{id:[0-9]+}", s.handleDeleteWateringHistory).Methods(http.MethodDelete)
	actions.HandleFunc("/watering", s.handleSetPump).Methods(http.MethodPut)

	// Operations
	r.HandleFunc("/healthz", s.health.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", gzip(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}).ServeHTTP)).Methods(http.MethodGet)

	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(zap.NewStdLog(s.logger)),
		handlers.PrintRecoveryStack(true),
	)
	return recovery(handlers.ProxyHeaders(r))
}

// Handler returns the routed handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("starting dashboard server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("dashboard server error: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, closes websocket streams and waits for in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	return s.httpServer.Shutdown(ctx)
}
