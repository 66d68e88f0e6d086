// Command joblined runs the job tracking service: an HTTP API over a
// configured store backend, with the reconciliation loop and event
// stream wired in.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	goredis "github.com/redis/go-redis/v9"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	mongooptions "go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/jobline/jobline"
	"github.com/jobline/jobline/setup"
	"github.com/jobline/jobline/store/memory"
	mongostore "github.com/jobline/jobline/store/mongo"
	redisstore "github.com/jobline/jobline/store/redis"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config file")
		listen     = flag.String("listen", "", "listen address (overrides config)")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := run(configPath, listen, logger); err != nil {
		logger.Error("joblined exiting", "error", err)
		os.Exit(1)
	}
}

func run(configPath, listen *string, logger *slog.Logger) error {
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, cleanup, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	opts := []jobline.Option{
		jobline.WithStore(store),
		jobline.WithLogger(logger),
	}
	if cfg.Reconcile.ActivePollInterval > 0 && cfg.Reconcile.IdlePollInterval > 0 {
		opts = append(opts, jobline.WithPollIntervals(
			cfg.Reconcile.ActivePollInterval.std(), cfg.Reconcile.IdlePollInterval.std()))
	}
	if cfg.Reconcile.NotificationHistory > 0 {
		opts = append(opts, jobline.WithNotificationHistory(cfg.Reconcile.NotificationHistory))
	}
	if cfg.Reconcile.StaleRunningThreshold > 0 {
		opts = append(opts, jobline.WithStaleRunningThreshold(cfg.Reconcile.StaleRunningThreshold.std()))
	}

	tr, err := jobline.New(opts...)
	if err != nil {
		return err
	}
	sys, err := setup.Build(tr)
	if err != nil {
		return err
	}

	if err := tr.Start(ctx); err != nil {
		return fmt.Errorf("start tracker: %w", err)
	}

	server := &http.Server{
		Addr:    cfg.Listen,
		Handler: sys.Handler(),
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Listen, "backend", cfg.Store.Backend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", cfg.ShutdownTimeout.std())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.std())
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	return tr.Stop(shutdownCtx)
}

// openStore builds the configured backend. The returned cleanup releases
// client resources the store itself does not own.
func openStore(ctx context.Context, cfg fileConfig, logger *slog.Logger) (jobline.Storer, func(), error) {
	switch cfg.Store.Backend {
	case "memory":
		return memory.New(), func() {}, nil

	case "mongo":
		client, err := mongodriver.Connect(mongooptions.Client().ApplyURI(cfg.Store.MongoURI))
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		cleanup := func() {
			if err := client.Disconnect(context.Background()); err != nil {
				logger.Error("mongo disconnect", "error", err)
			}
		}
		st := mongostore.New(client.Database(cfg.Store.MongoDB), mongostore.WithLogger(logger))
		if err := st.Migrate(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("migrate mongo: %w", err)
		}
		return st, cleanup, nil

	case "redis":
		ropts, err := goredis.ParseURL(cfg.Store.RedisURI)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis URI: %w", err)
		}
		client := goredis.NewClient(ropts)
		cleanup := func() {
			if err := client.Close(); err != nil {
				logger.Error("redis close", "error", err)
			}
		}
		return redisstore.New(client, redisstore.WithLogger(logger)), cleanup, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
