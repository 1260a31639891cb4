// Package main provides the entry point for the paper tracker API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/aidd/paper-tracker/internal/app"
	"github.com/aidd/paper-tracker/internal/config"
	"github.com/aidd/paper-tracker/internal/observability"
	"github.com/aidd/paper-tracker/internal/query"
	"github.com/aidd/paper-tracker/internal/scheduler"
	httpserver "github.com/aidd/paper-tracker/internal/server/http"
	"github.com/aidd/paper-tracker/internal/temporal"
)

// healthService is the service name reported by the gRPC health server.
const healthService = "papertracker.v1.PaperTracker"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(cfg.Logging)
	logger = observability.WithComponent(logger, "server")
	logger.Info().Msg("paper-tracker server starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics(observability.DefaultNamespace)

	components, err := app.Build(ctx, cfg, metrics, logger)
	if err != nil {
		return err
	}
	defer components.Close(logger)
	logger.Info().Msg("database connection established")

	queryService := query.NewService(components.Papers, query.NewPipeline(components.Taxonomy), logger)

	httpCfg := httpserver.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     2 * time.Minute,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		AllowedOrigins:  cfg.Server.CORSAllowedOrigins,
	}
	httpSrv := httpserver.NewServer(httpCfg, httpserver.Deps{
		Papers:   components.Papers,
		Query:    queryService,
		Poller:   components.Coordinator,
		Health:   components.DB,
		Sources:  components.Sources,
		Taxonomy: components.Taxonomy,
		Events:   components.Events,
		Metrics:  metrics,
	}, logger)

	// gRPC carries only the standard health service, for orchestrators that
	// probe over gRPC.
	grpcServer := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle: 15 * time.Minute,
			Time:              5 * time.Minute,
			Timeout:           1 * time.Minute,
		}),
	)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(healthService, healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	grpcAddr := cfg.Server.GRPCAddress()
	grpcListener, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return fmt.Errorf("listen on gRPC port: %w", err)
	}

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress(),
			Handler:      metricsMux,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.ReadTimeout,
		}
	}

	sched, closeScheduler, err := newScheduler(cfg, components, logger)
	if err != nil {
		return err
	}
	defer closeScheduler()

	errCh := make(chan error, 3)

	go func() {
		logger.Info().Str("address", grpcAddr).Msg("gRPC health server starting")
		if err := grpcServer.Serve(grpcListener); err != nil {
			errCh <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	if metricsServer != nil {
		go func() {
			logger.Info().Str("address", metricsServer.Addr).Msg("metrics server starting")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	if sched != nil {
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}

	readyLog := logger.Info().
		Str("grpc_address", grpcAddr).
		Str("http_address", httpCfg.Address).
		Bool("scheduler", sched != nil)
	if metricsServer != nil {
		readyLog = readyLog.Str("metrics_address", metricsServer.Addr)
	}
	readyLog.Msg("paper-tracker is ready")

	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	logger.Info().Msg("shutting down paper-tracker")
	healthServer.SetServingStatus(healthService, healthpb.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("scheduler shutdown error")
		}
	}

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown error")
		}
	}

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		logger.Info().Msg("gRPC server stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Warn().Msg("gRPC server forced shutdown due to timeout")
		grpcServer.Stop()
	}

	logger.Info().Msg("paper-tracker shutdown complete")
	return nil
}

// newScheduler builds the poll scheduler for cfg.Poll.Mode. It returns a
// nil scheduler when scheduled polling is disabled.
func newScheduler(cfg *config.Config, components *app.Components, logger zerolog.Logger) (*scheduler.Scheduler, func(), error) {
	noop := func() {}
	if !cfg.Poll.Enabled {
		return nil, noop, nil
	}

	var job scheduler.Job
	closeFn := noop
	switch cfg.Poll.Mode {
	case config.PollModeTemporal:
		clientCfg := temporal.ClientConfig{
			HostPort:  cfg.Temporal.HostPort,
			Namespace: cfg.Temporal.Namespace,
			TaskQueue: cfg.Temporal.TaskQueue,
		}
		c, err := temporal.NewClient(clientCfg, logger)
		if err != nil {
			return nil, noop, fmt.Errorf("connect to temporal: %w", err)
		}
		workflowClient := temporal.NewPollWorkflowClient(c, clientCfg)
		if err := workflowClient.Health(context.Background()); err != nil {
			workflowClient.Close()
			return nil, noop, fmt.Errorf("temporal health check: %w", err)
		}
		logger.Info().
			Str("host_port", cfg.Temporal.HostPort).
			Str("namespace", cfg.Temporal.Namespace).
			Str("task_queue", workflowClient.TaskQueue()).
			Msg("temporal client connected")
		job = scheduler.WorkflowJob(workflowClient, logger)
		closeFn = workflowClient.Close
	default:
		job = scheduler.PollJob(components.Coordinator, logger)
	}

	sched, err := scheduler.New(scheduler.Config{
		Schedule: cfg.Poll.Schedule,
		Timeout:  cfg.Poll.Timeout,
	}, job, logger)
	if err != nil {
		closeFn()
		return nil, noop, err
	}
	return sched, closeFn, nil
}
