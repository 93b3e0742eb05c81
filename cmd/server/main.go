package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/library-lending/internal/adapter/events"
	"github.com/rl1809/library-lending/internal/adapter/handler"
	"github.com/rl1809/library-lending/internal/adapter/storage"
	"github.com/rl1809/library-lending/internal/config"
	"github.com/rl1809/library-lending/internal/core/domain"
	"github.com/rl1809/library-lending/internal/core/service"
	"github.com/rl1809/library-lending/internal/port"
)

type store interface {
	port.Catalog
	port.IdentityProvider
	port.LoanRepository
	SaveBorrower(ctx context.Context, borrower domain.Borrower) error
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	policy, err := cfg.Policy()
	if err != nil {
		return err
	}

	// Initialize storage
	st, pingStore, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var readiness []handler.HTTPOption
	if pingStore != nil {
		readiness = append(readiness, handler.WithReadinessCheck("mysql", pingStore))
	}

	for _, id := range cfg.SeedBorrowers {
		if err := st.SaveBorrower(ctx, domain.Borrower{ID: id, Name: id, Active: true}); err != nil {
			return fmt.Errorf("seed borrower %s: %w", id, err)
		}
	}

	opts := []service.Option{
		service.WithPolicy(policy),
		service.WithLogger(logger),
	}

	// Initialize Redis
	if cfg.RedisAddr != "" {
		rdb, err := storage.ConnectRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer rdb.Close()
		redisAdapter := storage.NewRedisAdapter(rdb, storage.WithRedisLogger(logger))
		opts = append(opts, service.WithLocker(redisAdapter), service.WithIdempotency(redisAdapter))
		readiness = append(readiness, handler.WithReadinessCheck("redis", redisAdapter.Ping))
		logger.Info("connected to redis", "addr", cfg.RedisAddr)
	}

	// Initialize event pipeline
	var sink port.EventPublisher = events.NewLogPublisher(logger)
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, nil)
		if err != nil {
			return err
		}
		defer kafkaPublisher.Close()
		sink = kafkaPublisher
		logger.Info("publishing loan events to kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}
	dispatcher := events.NewDispatcher(sink, cfg.EventQueueSize, logger)
	dispatcher.Start(cfg.EventWorkers)
	opts = append(opts, service.WithEventPublisher(dispatcher))

	// Initialize service
	loanService, err := service.NewLoanService(st, st, st, opts...)
	if err != nil {
		return err
	}

	// Initialize gRPC server
	grpcServer := grpc.NewServer()
	handler.NewGRPCHandler(loanService).Register(grpcServer)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(handler.ServiceName, healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	go func() {
		logger.Info("gRPC server listening", "port", cfg.GRPCPort)
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", "error", err)
		}
	}()

	// Initialize HTTP server
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler.NewHTTPHandler(loanService, logger, readiness...).Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", "port", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		runSweeps(ctx, loanService, cfg.SweepInterval, logger)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	healthServer.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown", "error", err)
	}
	logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	cancel()
	<-sweepDone

	// Drain queued events before the broker connection closes
	dispatcher.Close()
	logger.Info("event dispatcher stopped")
	return nil
}

// openStore returns the store, a readiness ping (nil for memory) and a closer.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store, func(context.Context) error, func(), error) {
	switch cfg.StorageDriver {
	case config.DriverMySQL:
		db, err := storage.ConnectMySQL(ctx, cfg.MySQLDSN)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := storage.RunMigrations(ctx, db); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		logger.Info("connected to mysql")
		return storage.NewMySQLAdapter(db), db.PingContext, func() { db.Close() }, nil
	default:
		logger.Warn("using in-memory storage, data is lost on restart")
		return storage.NewMemoryStore(), nil, func() {}, nil
	}
}

// runSweeps triggers the overdue sweep every interval until ctx ends.
// A zero interval leaves the sweep to external triggers.
func runSweeps(ctx context.Context, loanService *service.LoanService, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := loanService.UpdateOverdueLoans(ctx); err != nil {
				logger.Warn("scheduled overdue sweep failed", "error", err)
			}
		}
	}
}
