package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/jobstack/resume-parser/internal/budget"
	"github.com/jobstack/resume-parser/internal/cache"
	"github.com/jobstack/resume-parser/internal/config"
	"github.com/jobstack/resume-parser/internal/core"
	"github.com/jobstack/resume-parser/internal/jobs"
	"github.com/jobstack/resume-parser/internal/logger"
	"github.com/jobstack/resume-parser/internal/normalize"
	"github.com/jobstack/resume-parser/internal/provider"
	"github.com/jobstack/resume-parser/internal/server"
	"github.com/jobstack/resume-parser/internal/stream"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional, env vars override)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	zl, err := logger.New(cfg.Log.JSON, cfg.Log.Debug)
	if err != nil {
		os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer zl.Sync()
	log := zl.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("sqlite", cfg.Budget.DBPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("database health: %v", err)
	}

	usageStore, err := budget.NewStore(ctx, db)
	if err != nil {
		log.Fatalf("usage store: %v", err)
	}
	guard, err := budget.NewGuard(ctx, usageStore, cfg.Budget.MonthlyLimitUSD, cfg.Budget.AlertThreshold, log)
	if err != nil {
		log.Fatalf("budget guard: %v", err)
	}

	resultCache := cache.New(cfg.Cache.TTL, cfg.Cache.MaxEntries, log)

	fallback, err := provider.NewGeminiFallback(ctx, cfg.Providers.Gemini, cfg.Providers.MaxCallsPerMinute, log)
	if err != nil {
		log.Fatalf("gemini adapter: %v", err)
	}
	specialized := []provider.Adapter{
		provider.NewOffice(log),
	}
	if cfg.Providers.DocumentAI.ProcessorID != "" && cfg.Providers.DocumentAI.AccessToken != "" {
		specialized = append(specialized,
			provider.NewDocumentAI(cfg.Providers.DocumentAI, cfg.Providers.MaxCallsPerMinute, log))
	}
	if cfg.Providers.Azure.Endpoint != "" && cfg.Providers.Azure.APIKey != "" {
		specialized = append(specialized,
			provider.NewAzureDI(cfg.Providers.Azure, cfg.Providers.MaxCallsPerMinute, log))
	}
	log.Infow("providers configured", "providers", cfg.ConfiguredProviders())

	normalizer, err := normalize.NewGemini(ctx, cfg.Providers.Gemini, log)
	if err != nil {
		log.Fatalf("normalizer: %v", err)
	}

	processor := core.NewProcessor(specialized, fallback, normalizer,
		resultCache, guard, cfg.Cache.Enabled, log)

	jobDB := db
	if cfg.Jobs.DBPath != cfg.Budget.DBPath {
		jobDB, err = sql.Open("sqlite", cfg.Jobs.DBPath)
		if err != nil {
			log.Fatalf("open job database: %v", err)
		}
		defer jobDB.Close()
	}
	jobStore, err := jobs.NewStore(ctx, jobDB)
	if err != nil {
		log.Fatalf("job store: %v", err)
	}
	if n, err := jobStore.RequeueStale(ctx); err != nil {
		log.Warnw("requeue stale jobs", "error", err)
	} else if n > 0 {
		log.Infow("requeued stale jobs from previous run", "count", n)
	}

	notifier := stream.NewNotifier(log)

	process := func(ctx context.Context, job *jobs.Job) (json.RawMessage, error) {
		res, err := processor.Process(ctx, job.Payload, job.Kind, job.Fresh)
		if err != nil {
			return nil, err
		}
		return json.Marshal(res)
	}
	pool := jobs.NewPool(jobStore, process, log,
		jobs.WithWorkers(cfg.Jobs.Workers),
		jobs.WithQueueSize(cfg.Jobs.QueueSize),
		jobs.WithProcessTimeout(cfg.Jobs.ProcessTimeout),
		jobs.WithTransitionFunc(notifier.Publish),
	)
	pool.Start(ctx)

	adapters := append(specialized, fallback)
	srv := server.New(cfg, processor, pool, jobStore, notifier,
		resultCache, guard, adapters, nil, log)

	if err := srv.Start(ctx); err != nil {
		log.Fatalf("server: %v", err)
	}
	pool.Wait()
	log.Infow("shutdown complete")
}
