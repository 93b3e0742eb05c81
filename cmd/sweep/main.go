package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rl1809/library-lending/internal/adapter/storage"
	"github.com/rl1809/library-lending/internal/config"
	"github.com/rl1809/library-lending/internal/core/service"
)

// sweep runs one overdue pass against the configured MySQL store and exits.
// Schedule it from cron or a Kubernetes CronJob.
func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	n, err := sweep(ctx, cfg, logger)
	if err != nil {
		logger.Error("overdue sweep failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("transitioned %d loans to OVERDUE\n", n)
}

func sweep(ctx context.Context, cfg config.Config, logger *slog.Logger) (int, error) {
	if cfg.StorageDriver != config.DriverMySQL {
		return 0, fmt.Errorf("sweep needs a persistent store, got storage driver %q", cfg.StorageDriver)
	}
	policy, err := cfg.Policy()
	if err != nil {
		return 0, err
	}

	db, err := storage.ConnectMySQL(ctx, cfg.MySQLDSN)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	opts := []service.Option{service.WithPolicy(policy), service.WithLogger(logger)}
	if cfg.RedisAddr != "" {
		rdb, err := storage.ConnectRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return 0, err
		}
		defer rdb.Close()
		// Share the server's lock namespace so the sweep never races a live mutation.
		opts = append(opts, service.WithLocker(storage.NewRedisAdapter(rdb, storage.WithRedisLogger(logger))))
	}

	store := storage.NewMySQLAdapter(db)
	loanService, err := service.NewLoanService(store, store, store, opts...)
	if err != nil {
		return 0, err
	}
	return loanService.UpdateOverdueLoans(ctx)
}
