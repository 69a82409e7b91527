package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/dtnitsch/fpds-ingest/internal/common"
	"github.com/dtnitsch/fpds-ingest/models"
	"github.com/dtnitsch/fpds-ingest/pkg/backfill"
	"github.com/dtnitsch/fpds-ingest/pkg/caching"
	"github.com/dtnitsch/fpds-ingest/pkg/db"
	"github.com/dtnitsch/fpds-ingest/pkg/fetcher"
	"github.com/dtnitsch/fpds-ingest/pkg/pipeline"
	"github.com/dtnitsch/fpds-ingest/pkg/tracker"
)

// Flags are the ingestion options of the root command.
var Flags = []cli.Flag{
	&cli.BoolFlag{Name: "backfill", Usage: "Backfill a historical date range instead of the daily run"},
	&cli.StringFlag{Name: "start-date", Usage: "First day to backfill (YYYY-MM-DD)"},
	&cli.StringFlag{Name: "end-date", Usage: "Last day to backfill (YYYY-MM-DD, default yesterday)"},
	&cli.BoolFlag{Name: "resume", Usage: "Backfill from the day after the latest stored action"},
	&cli.BoolFlag{Name: "gap-fill", Usage: "Backfill only missing or incomplete days"},
	&cli.IntFlag{Name: "threads", Value: backfill.DefaultThreads, Usage: "Backfill worker count"},
	&cli.StringFlag{Name: "cache-dir", Usage: "Keep fetched pages on disk under this directory"},
}

func IngestAction(c *cli.Context) error {
	cfg, err := common.LoadConfig(c)
	if err != nil {
		return err
	}
	logger := common.Logger(c)
	common.ServeMetrics(cfg.MetricsAddr, logger)

	backfillMode := c.Bool("backfill") || c.Bool("resume") || c.Bool("gap-fill")
	jobName := cfg.Daily.JobName
	if backfillMode {
		jobName = cfg.Backfill.JobName
	}
	logger = logger.With("job", jobName)

	lock, err := tracker.Lock(cfg.LockDir, jobName)
	if errors.Is(err, tracker.ErrLocked) {
		logger.Warn("Another instance holds the lock, exiting", "error", err)
		return nil
	}
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("Failed to release lock", "error", err)
		}
	}()

	ctx := c.Context
	poolSize := 0
	if backfillMode {
		poolSize = backfill.PoolSize(cfg.Backfill.Threads)
	}
	database, err := db.Open(ctx, cfg.DatabaseDSN, poolSize)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()
	logger.Info("Database ready", "dsn", database.Path(), "dialect", database.Dialect().String())

	p, err := newPipeline(cfg, database, logger)
	if err != nil {
		return err
	}

	if backfillMode {
		return runBackfill(ctx, c, cfg, database, p, logger)
	}
	return runDaily(ctx, cfg, database, p, logger)
}

func newPipeline(cfg *models.Config, database *db.DB, logger *slog.Logger) (*pipeline.Pipeline, error) {
	fc := fetcher.Config{
		UserAgent:      cfg.Feed.UserAgent,
		Timeout:        cfg.Feed.Timeout,
		Retries:        cfg.Feed.Retries,
		InitialBackoff: cfg.Feed.InitialBackoff,
		MaxBackoff:     cfg.Feed.MaxBackoff,
	}

	var opts []fetcher.Option
	if cfg.CacheDir != "" {
		cache, err := caching.NewCache(cfg.CacheDir, cfg.CacheTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to open page cache: %w", err)
		}
		if n, err := cache.Prune(); err != nil {
			logger.Warn("Failed to prune page cache", "error", err)
		} else if n > 0 {
			logger.Info("Pruned expired cached pages", "count", n)
		}
		opts = append(opts, fetcher.WithCache(cache))
	}
	f := fetcher.NewFetcher(fc, logger, opts...)

	probeCfg := fc
	probeCfg.Retries = cfg.Feed.ProbeRetries
	probe := fetcher.NewFetcher(probeCfg, logger, opts...)

	return pipeline.New(pipeline.Config{
		BaseURL:    cfg.Feed.BaseURL,
		Version:    cfg.Feed.Version,
		RunTimeout: cfg.Daily.RunTimeout,
		DaysBack:   cfg.Daily.DaysBack,
		LookBack:   cfg.Daily.LookBack,
	}, database, f, probe, logger), nil
}

func runDaily(ctx context.Context, cfg *models.Config, database *db.DB, p *pipeline.Pipeline, logger *slog.Logger) error {
	tr, err := tracker.Open(ctx, database, cfg.Daily.JobName, false, logger)
	if err != nil {
		return err
	}
	start := time.Now()
	res, err := p.RunDaily(ctx, tr)
	if err != nil {
		return fmt.Errorf("daily run failed: %w", err)
	}
	fmt.Printf("Saved %s new actions from %d pages in %s\n",
		humanize.Comma(int64(res.Saved)), res.Pages, time.Since(start).Round(time.Second))
	return nil
}

func runBackfill(ctx context.Context, c *cli.Context, cfg *models.Config, database *db.DB, p *pipeline.Pipeline, logger *slog.Logger) error {
	opts := backfill.Options{
		Threads: cfg.Backfill.Threads,
		Resume:  c.Bool("resume"),
		GapFill: c.Bool("gap-fill"),
	}
	if !c.IsSet("start-date") {
		return errors.New("--start-date is required for backfill")
	}
	var err error
	if opts.Start, err = common.ParseDay(c.String("start-date")); err != nil {
		return err
	}
	if c.IsSet("end-date") {
		if opts.End, err = common.ParseDay(c.String("end-date")); err != nil {
			return err
		}
	}

	tr, err := tracker.Open(ctx, database, cfg.Backfill.JobName, true, logger)
	if err != nil {
		return err
	}
	o := backfill.New(database, backfill.PipelineRunner(p), logger)
	sum, err := o.Run(ctx, tr, opts)
	if err != nil {
		return fmt.Errorf("backfill failed: %w", err)
	}

	fmt.Printf("Backfilled %d/%d days, saved %s actions\n", sum.Completed, sum.Days, humanize.Comma(sum.Saved))
	if len(sum.Failed) > 0 {
		fmt.Printf("Failed days (%d): %v\n", len(sum.Failed), sum.Failed)
		fmt.Println("Re-run with --resume or --gap-fill to retry them.")
	}
	return nil
}
