package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mjasion/balena-home/autogrow/api"
	"github.com/mjasion/balena-home/autogrow/config"
	"github.com/mjasion/balena-home/autogrow/dashboard"
	"github.com/mjasion/balena-home/autogrow/exporter"
	"github.com/mjasion/balena-home/autogrow/render"
	"github.com/mjasion/balena-home/autogrow/server"
	"github.com/mjasion/balena-home/pkg/buffer"
	pkgmetrics "github.com/mjasion/balena-home/pkg/metrics"
	"github.com/mjasion/balena-home/pkg/profiling"
	"github.com/mjasion/balena-home/pkg/telemetry"
	"github.com/mjasion/balena-home/pkg/types"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the live dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg *config.Config) error {
	logger, err := cfg.NewLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	cfg.PrintConfig(logger)

	// Initialize Pyroscope profiling
	profiler, err := profiling.Start(&cfg.Profiling, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize profiler: %w", err)
	}
	if profiler != nil {
		defer func() {
			if err := profiler.Stop(); err != nil {
				logger.Error("error shutting down profiler", zap.Error(err))
			}
		}()
	}

	// Initialize OpenTelemetry providers
	otelProviders, err := telemetry.InitProviders(parent, &cfg.OpenTelemetry, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry providers: %w", err)
	}
	if otelProviders != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := otelProviders.Shutdown(shutdownCtx); err != nil {
				logger.Error("error shutting down OpenTelemetry providers", zap.Error(err))
			}
		}()
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	renderer, err := render.New(loc)
	if err != nil {
		return fmt.Errorf("failed to parse templates: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := dashboard.NewMetrics(registry)

	clientOpts := []api.ClientOption{
		api.WithTimeout(cfg.APITimeout()),
		api.WithLogger(logger),
	}
	if cfg.Breaker.Enabled {
		clientOpts = append(clientOpts, api.WithBreaker(
			uint32(cfg.Breaker.MaxFailures),
			time.Duration(cfg.Breaker.OpenSeconds)*time.Second,
		))
	}
	client := api.NewClient(cfg.APIURL, clientOpts...)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	engineOpts := []dashboard.Option{dashboard.WithWateringDevice(cfg.WateringDeviceID)}
	serverOpts := server.Options{
		Port:           cfg.ListenPort,
		ReloadInterval: cfg.ReloadInterval(),
		Gatherer:       registry,
	}

	var pusherDone chan struct{}
	if cfg.Export.Enabled {
		buf := buffer.New[*types.Reading](cfg.Export.BufferSize, logger)
		exp := exporter.New(buf, time.Duration(cfg.Export.LookbackMinutes)*time.Minute, logger)
		pushInterval := time.Duration(cfg.Export.PushIntervalSeconds) * time.Second
		pusher := pkgmetrics.New(pkgmetrics.Config{
			URL:          cfg.Export.PrometheusURL,
			Username:     cfg.Export.PrometheusUsername,
			Password:     cfg.Export.PrometheusPassword,
			PushInterval: pushInterval,
			BatchSize:    cfg.Export.BufferSize,
			TimeSeriesBuilder: pkgmetrics.CombineBuilders(
				pkgmetrics.BuildSensorTimeSeries,
				pkgmetrics.BuildWateringTimeSeries,
			),
		}, buf, logger)

		engineOpts = append(engineOpts, dashboard.WithObserver(exp))
		serverOpts.Pusher = pusher
		serverOpts.Buffer = buf
		serverOpts.PushInterval = pushInterval

		pusherDone = make(chan struct{})
		go func() {
			defer close(pusherDone)
			pusher.Start(ctx)
		}()
		logger.Info("export enabled", zap.Duration("pushInterval", pushInterval))
	}

	view := dashboard.NewView(nil)
	engine := dashboard.NewEngine(client, renderer, view, metrics, logger, engineOpts...)

	if err := engine.Init(ctx); err != nil {
		// the page still renders with error placeholders; the reload job retries
		logger.Warn("initial load failed", zap.Error(err))
	}

	scheduler := dashboard.NewScheduler(logger)
	if _, err := scheduler.Every("full-reload", cfg.ReloadInterval(), func(ctx context.Context) {
		if err := engine.FullReload(ctx); err != nil {
			logger.Warn("scheduled reload failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}
	if _, err := scheduler.Every("pump-status", cfg.PumpRefreshInterval(), func(ctx context.Context) {
		if err := engine.RefreshPumpStatus(ctx); err != nil {
			logger.Debug("pump refresh failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}
	scheduler.Start()

	srv := server.New(engine, renderer, metrics, serverOpts, logger)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	logger.Info("dashboard started",
		zap.Int("port", cfg.ListenPort),
		zap.Duration("reloadInterval", cfg.ReloadInterval()),
		zap.Duration("pumpRefreshInterval", cfg.PumpRefreshInterval()))

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case runErr = <-serverErr:
		logger.Error("dashboard server stopped", zap.Error(runErr))
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.Warn("scheduler did not stop in time", zap.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down dashboard server", zap.Error(err))
	}
	if pusherDone != nil {
		select {
		case <-pusherDone:
		case <-shutdownCtx.Done():
			logger.Warn("final export flush did not complete")
		}
	}

	logger.Info("shutdown complete")
	return runErr
}
