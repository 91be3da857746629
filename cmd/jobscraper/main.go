// Package main wires together the job ingestion service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/remotehive-dev/jobscraper/internal/api"
	"github.com/remotehive-dev/jobscraper/internal/clock/system"
	"github.com/remotehive-dev/jobscraper/internal/config"
	"github.com/remotehive-dev/jobscraper/internal/engine"
	feedfetch "github.com/remotehive-dev/jobscraper/internal/fetch/feed"
	headlessfetch "github.com/remotehive-dev/jobscraper/internal/fetch/headless"
	htmlfetch "github.com/remotehive-dev/jobscraper/internal/fetch/html"
	"github.com/remotehive-dev/jobscraper/internal/id/uuid"
	"github.com/remotehive-dev/jobscraper/internal/logging"
	"github.com/remotehive-dev/jobscraper/internal/metrics"
	"github.com/remotehive-dev/jobscraper/internal/normalize"
	"github.com/remotehive-dev/jobscraper/internal/notify"
	notifymem "github.com/remotehive-dev/jobscraper/internal/notify/memory"
	notifypubsub "github.com/remotehive-dev/jobscraper/internal/notify/pubsub"
	"github.com/remotehive-dev/jobscraper/internal/ratelimit"
	"github.com/remotehive-dev/jobscraper/internal/scheduler"
	"github.com/remotehive-dev/jobscraper/internal/scrape"
	snapgcs "github.com/remotehive-dev/jobscraper/internal/snapshot/gcs"
	snaplocal "github.com/remotehive-dev/jobscraper/internal/snapshot/local"
	snapmem "github.com/remotehive-dev/jobscraper/internal/snapshot/memory"
	storemem "github.com/remotehive-dev/jobscraper/internal/store/memory"
	storepg "github.com/remotehive-dev/jobscraper/internal/store/postgres"
)

// stores is the full persistence surface, satisfied by both providers.
type stores interface {
	scrape.SourceStore
	scrape.ScheduleStore
	scrape.JobStore
	scrape.RunStore
	scrape.RecordStore
	scrape.StateStore
}

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(logging.Config{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	clk := system.New()
	idGen := uuid.New()

	store, err := buildStore(ctx, cfg, clk, logger)
	if err != nil {
		return err
	}

	snapshots, err := buildSnapshots(ctx, cfg)
	if err != nil {
		return err
	}

	publisher, closePublisher, err := buildPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	defer closePublisher()
	notifier := notify.New(publisher, notify.Config{
		EventTopic:   cfg.Notify.EventTopic,
		PublishTopic: cfg.Notify.PublishTopic,
	}, clk, logger)

	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Burst:             cfg.RateLimit.Burst,
	})
	agents := scrape.NewUserAgentPool(cfg.Fetch.UserAgents)
	retry := scrape.NewExponentialRetryPolicy(cfg.Fetch.MaxRetries, cfg.BackoffInitial(), cfg.BackoffMax())

	feedFetcher := feedfetch.New(feedfetch.Config{
		Timeout:      cfg.FetchTimeout(),
		WaitDeadline: cfg.RateLimitDeadline(),
	}, agents, limiter, retry, logger)
	htmlFetcher := htmlfetch.New(htmlfetch.Config{
		Timeout:       cfg.FetchTimeout(),
		RespectRobots: cfg.Fetch.RespectRobots,
		WaitDeadline:  cfg.RateLimitDeadline(),
	}, agents, limiter, retry, logger)

	var headless scrape.Fetcher
	if cfg.Headless.Enabled {
		hf, err := headlessfetch.NewChromedp(headlessfetch.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		}, agents, limiter)
		if err != nil {
			logger.Warn("headless fetcher init failed", zap.Error(err))
		} else {
			defer hf.Close()
			headless = hf
		}
	}

	state, err := engine.NewState(ctx, store, clk, logger)
	if err != nil {
		return fmt.Errorf("init engine state: %w", err)
	}

	normalizer := normalize.New(normalize.Config{
		TrustedDomains:    cfg.Quality.TrustedDomains,
		MinDescriptionLen: cfg.Quality.MinDescriptionLen,
	}, clk)

	orch := engine.NewOrchestrator(engine.OrchestratorConfig{
		Sources:         store,
		Jobs:            store,
		Runs:            store,
		Records:         store,
		FeedFetcher:     feedFetcher,
		HTMLFetcher:     htmlFetcher,
		HeadlessFetcher: headless,
		HeadlessEnabled: cfg.Headless.Enabled,
		Normalizer:      normalizer,
		Snapshots:       snapshots,
		SnapshotPrefix:  cfg.Snapshots.Prefix,
		IDs:             idGen,
		Clock:           clk,
		JobConcurrency:  cfg.Engine.JobConcurrency,
	}, logger)

	queue := engine.NewQueue(cfg.Engine.QueueDepth)
	eng := engine.New(engine.Options{
		Queue:      queue,
		State:      state,
		Orch:       orch,
		Jobs:       store,
		Runs:       store,
		Records:    store,
		Notifier:   notifier,
		Normalizer: normalizer,
		IDs:        idGen,
		Clock:      clk,
		Workers:    cfg.Engine.Workers,
	}, logger)

	sched := scheduler.New(store, eng, idGen, clk, cfg.SchedulerTick(), logger)

	apiServer := api.NewServer(api.Options{
		Engine:    eng,
		Scheduler: sched,
		Sources:   store,
		Schedules: store,
		Jobs:      store,
		Runs:      store,
		Records:   store,
		Config:    cfg,
	}, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("engine started", zap.Int("workers", cfg.Engine.Workers))
		eng.Run(ctx)
	}()
	go state.RunHeartbeat(ctx, cfg.Heartbeat())
	if cfg.Scheduler.Enabled {
		go func() {
			logger.Info("scheduler started", zap.Duration("tick", cfg.SchedulerTick()))
			sched.Run(ctx)
		}()
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	queue.Close()
	logger.Info("shutdown complete")
	return nil
}

func buildStore(ctx context.Context, cfg config.Config, clk scrape.Clock, logger *zap.Logger) (stores, error) {
	switch cfg.Store.Provider {
	case "postgres":
		pg, err := storepg.New(ctx, storepg.Config{
			DSN:      cfg.DB.DSN,
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		}, clk)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		logger.Info("postgres store ready")
		return pg, nil
	default:
		logger.Info("memory store ready (development mode)")
		return storemem.New(clk), nil
	}
}

func buildSnapshots(ctx context.Context, cfg config.Config) (scrape.SnapshotStore, error) {
	switch cfg.Snapshots.Provider {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		return snapgcs.New(client, cfg.Snapshots.GCSBucket)
	case "local":
		return snaplocal.New(cfg.Snapshots.LocalDir)
	default:
		return snapmem.New(), nil
	}
}

func buildPublisher(ctx context.Context, cfg config.Config) (scrape.Publisher, func(), error) {
	if cfg.Notify.Provider != "pubsub" {
		return notifymem.New(), func() {}, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.Notify.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("init pubsub client: %w", err)
	}
	pub, err := notifypubsub.New(client)
	if err != nil {
		return nil, nil, err
	}
	return pub, pub.Close, nil
}
