package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"talkstream/internal"
	"talkstream/observability"
	"talkstream/runtime/workers"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	grpc3 "github.com/mama165/sdk-go/grpc"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Exit codes to provide meaningful status to the service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "TalkStream terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component, serves until a signal arrives and makes sure
// deferred cleanups (subscriptions, watches, Badger) run before exiting.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).WithLoggingLevel(badger.WARNING))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		if err := db.Close(); err != nil {
			logger.Error("BadgerDB close failed", "error", err)
		}
	}()

	// 3. Metrics & sync core
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics := observability.NewMetrics(registry)
	core := internal.NewCore(db, logger, metrics, config)
	defer core.Close()

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Supervised workers
	supervisor := workers.NewSupervisor(logger, config.RestartInterval)
	supervisor.Add(
		workers.NewHTTPServerWorker(logger, fmt.Sprintf("%s:%d", config.Host, config.MetricsPort),
			internal.NewDebugRouter(registry, core.Registry.Entries, func(prefix string) ([]internal.InspectRow, error) {
				return internal.Inspect(db, prefix)
			})),
		workers.NewHeartbeatWorker(logger, metrics, config.MetricInterval, core.Stats),
	)

	// 6. gRPC health endpoint
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	server := grpc.NewServer(grpc.ChainUnaryInterceptor(grpc3.UnaryLoggingInterceptor(logger)))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)

	// 7. Run until a signal or a failure
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		supervisor.Run(groupCtx)
		return nil
	})
	group.Go(func() error {
		logger.Info("Starting gRPC server", "address", address, "at", time.Now().UTC())
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		if err := server.Serve(listener); err != nil {
			return fmt.Errorf("gRPC server error: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("Shutting down gracefully...")
		healthServer.Shutdown()
		core.Engine.Shutdown()
		server.GracefulStop()
		supervisor.Stop()
		return nil
	})

	if err = group.Wait(); err != nil {
		return exitRuntime, err
	}
	logger.Info("Program stopped cleanly")
	return exitOK, nil
}
