// Command leadscraper runs the whole pipeline in one process: the HTTP
// control surface, the consumer pool, and the coordinator loop.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/leadharvest/leadscraper/internal/api"
	"github.com/leadharvest/leadscraper/internal/clock/system"
	"github.com/leadharvest/leadscraper/internal/config"
	"github.com/leadharvest/leadscraper/internal/consumer"
	"github.com/leadharvest/leadscraper/internal/coordinator"
	"github.com/leadharvest/leadscraper/internal/db"
	collyfetch "github.com/leadharvest/leadscraper/internal/fetch/colly"
	"github.com/leadharvest/leadscraper/internal/fetch/headless"
	"github.com/leadharvest/leadscraper/internal/id/uuid"
	"github.com/leadharvest/leadscraper/internal/logging"
	"github.com/leadharvest/leadscraper/internal/parse"
	"github.com/leadharvest/leadscraper/internal/producer"
	queuemem "github.com/leadharvest/leadscraper/internal/queue/memory"
	queueps "github.com/leadharvest/leadscraper/internal/queue/pubsub"
	"github.com/leadharvest/leadscraper/internal/ratelimit"
	"github.com/leadharvest/leadscraper/internal/scrape"
	"github.com/leadharvest/leadscraper/internal/sources"
	statemem "github.com/leadharvest/leadscraper/internal/state/memory"
	statepg "github.com/leadharvest/leadscraper/internal/state/postgres"
	"github.com/leadharvest/leadscraper/internal/storage/gcs"
	storagemem "github.com/leadharvest/leadscraper/internal/storage/memory"
	"github.com/leadharvest/leadscraper/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional; env vars always apply)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "leadscraper: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := system.New()
	ids := uuid.New()
	metrics := telemetry.New()
	catalog := sources.Default()
	parsers := parse.Default()

	store, closeStore, err := buildStateStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	queue, closeQueue, err := buildQueue(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeQueue()

	blobs, closeBlobs, err := buildBlobStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBlobs()

	plainFetcher := collyfetch.New(collyfetch.Config{
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	})
	var renderFetcher scrape.Fetcher
	if cfg.Headless.Enabled {
		hf, err := headless.New(headless.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Fetch.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			return fmt.Errorf("headless fetcher: %w", err)
		}
		defer hf.Close()
		renderFetcher = hf
	}

	limiter := ratelimit.New(store, clock, logging.Named(logger, "ratelimit"))
	seeder := producer.New(store, queue, catalog, blobs, clock, ids, producer.Config{
		FailedRetryHours:   cfg.Producer.FailedRetryHours,
		CompletedRetryDays: cfg.Producer.CompletedRetryDays,
		TestGeoCodes:       cfg.Producer.TestGeoCodes,
	}, logging.Named(logger, "producer"))

	var wg sync.WaitGroup
	metrics.ActiveWorkers.Set(float64(cfg.Consumer.Concurrency))
	for i := 0; i < cfg.Consumer.Concurrency; i++ {
		worker := consumer.New(store, plainFetcher, renderFetcher, limiter, parsers, catalog, blobs, clock, metrics, consumer.Config{
			WorkerID:      fmt.Sprintf("consumer-%d-%s", i, ids.NewID()[:8]),
			MaxRetries:    cfg.Consumer.MaxRetries,
			FetchTimeout:  cfg.FetchTimeout(),
			StoragePrefix: cfg.Storage.Prefix,
			ContentType:   cfg.Storage.ContentType,
		}, logging.Named(logger, "consumer"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := worker.Run(ctx, queue); err != nil {
				logger.Error("consumer stopped", zap.Error(err))
			}
		}()
	}

	coord := coordinator.New(store, seeder, clock, metrics, coordinator.Config{
		WorkerID:            "coordinator-" + ids.NewID()[:8],
		Interval:            cfg.CoordinatorInterval(),
		SeedThreshold:       cfg.Coordinator.SeedThreshold,
		MaxQueueDepth:       cfg.Coordinator.MaxQueueDepth,
		ErrorRateThreshold:  cfg.Coordinator.ErrorRateThreshold,
		StaleWorkerMinutes:  cfg.Coordinator.StaleWorkerMinutes,
		StaleProcessMinutes: cfg.Coordinator.StaleProcessMinutes,
		ReapAfterMinutes:    cfg.Coordinator.ReapAfterMinutes,
	}, logging.Named(logger, "coordinator"))
	wg.Add(1)
	go func() {
		defer wg.Done()
		coord.Run(ctx)
	}()

	server := api.New(store, seeder, coord, metrics, api.Config{
		AuthEnabled: cfg.Auth.Enabled,
		APIKey:      cfg.Auth.APIKey,
	}, logging.Named(logger, "api"))

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		stop()
		wg.Wait()
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	wg.Wait()
	return nil
}

func buildStateStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (scrape.StateStore, func(), error) {
	if cfg.DB.DSN == "" {
		logger.Warn("db.dsn not set, using in-memory state store")
		return statemem.NewStore(), func() {}, nil
	}
	if err := db.Migrate(cfg.DB.DSN, cfg.DB.MigrationsPath); err != nil {
		return nil, nil, err
	}
	store, err := statepg.New(ctx, statepg.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

func buildQueue(ctx context.Context, cfg config.Config, logger *zap.Logger) (scrape.DeliveryQueue, func(), error) {
	switch cfg.Queue.Backend {
	case "pubsub":
		q, err := queueps.New(ctx, queueps.Config{
			ProjectID:    cfg.Queue.ProjectID,
			Topic:        cfg.Queue.Topic,
			Subscription: cfg.Queue.Subscription,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return q, func() {
			if err := q.Close(); err != nil {
				logger.Warn("close queue", zap.Error(err))
			}
		}, nil
	default:
		q := queuemem.NewQueue(cfg.Queue.Depth)
		return q, q.Close, nil
	}
}

func buildBlobStore(ctx context.Context, cfg config.Config) (scrape.BlobStore, func(), error) {
	switch cfg.Storage.Backend {
	case "gcs":
		s, err := gcs.New(ctx, cfg.Storage.GCSBucket)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return storagemem.NewBlobStore(), func() {}, nil
	}
}
