// Package pipeline walks FPDS feed pages from a starting URL and stores
// every entry, and drives the daily incremental run.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dtnitsch/fpds-ingest/pkg/batch"
	"github.com/dtnitsch/fpds-ingest/pkg/db"
	"github.com/dtnitsch/fpds-ingest/pkg/dimension"
	"github.com/dtnitsch/fpds-ingest/pkg/fetcher"
	"github.com/dtnitsch/fpds-ingest/pkg/metrics"
	"github.com/dtnitsch/fpds-ingest/pkg/parser"
)

// Fetcher retrieves one feed page.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, onAttempt fetcher.AttemptFunc) (*fetcher.Response, error)
}

// Recorder is told about every page URL before it is requested.
type Recorder interface {
	RecordPage(ctx context.Context, url string) error
}

type discard struct{}

func (discard) RecordPage(context.Context, string) error { return nil }

// Discard ignores page URLs.
var Discard Recorder = discard{}

type Config struct {
	BaseURL    string
	Version    string
	RunTimeout time.Duration
	// DaysBack is the fallback start, in days before today, when no recent
	// day has entries.
	DaysBack int
	// LookBack is how many days the start probe walks backwards.
	LookBack int
}

// Result summarizes one feed walk.
type Result struct {
	Pages   int
	Entries int
	Skipped int
	Saved   int
	// LastURL is the last page requested.
	LastURL string
}

func (r *Result) add(o Result) {
	r.Pages += o.Pages
	r.Entries += o.Entries
	r.Skipped += o.Skipped
	r.Saved += o.Saved
	if o.LastURL != "" {
		r.LastURL = o.LastURL
	}
}

type Pipeline struct {
	cfg     Config
	db      *db.DB
	fetcher Fetcher
	probe   Fetcher
	writer  *batch.Writer
	logger  *slog.Logger
	now     func() time.Time
}

// New builds a pipeline. probe is used for the daily start-point probe and
// may be nil to reuse f.
func New(cfg Config, database *db.DB, f, probe Fetcher, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if probe == nil {
		probe = f
	}
	return &Pipeline{
		cfg:     cfg,
		db:      database,
		fetcher: f,
		probe:   probe,
		writer:  batch.NewWriter(database, logger),
		logger:  logger,
		now:     time.Now,
	}
}

// ProcessFeed follows next links from startURL until the feed runs out,
// storing each page in its own transaction. All pages share one dimension
// cache.
func (p *Pipeline) ProcessFeed(ctx context.Context, startURL string, rec Recorder) (Result, error) {
	if rec == nil {
		rec = Discard
	}
	var res Result
	cache := dimension.NewCache()

	current := startURL
	for current != "" {
		res.LastURL = current
		p.logger.Info("Fetching page", "url", current)

		resp, err := p.fetcher.Fetch(ctx, current, rec.RecordPage)
		if err != nil {
			return res, err
		}
		page, err := parser.ParsePage(resp.Body)
		if err != nil {
			return res, fmt.Errorf("failed to parse page %s: %w", current, err)
		}
		res.Pages++

		found := len(page.Entries) + len(page.Skipped)
		metrics.EntriesParsed.Add(int64(len(page.Entries)))
		for _, s := range page.Skipped {
			metrics.EntriesSkipped.Add(1)
			p.logger.Warn("Skipping entry", "url", current, "index", s.Index, "reason", s.Reason)
		}
		if found == 0 {
			p.logger.Info("No entries on page, feed exhausted", "url", current)
			break
		}

		saved, err := p.writer.WritePage(ctx, cache, page.Entries)
		if err != nil {
			return res, fmt.Errorf("failed to store page %s: %w", current, err)
		}
		res.Entries += len(page.Entries)
		res.Skipped += len(page.Skipped)
		res.Saved += saved
		p.logger.Info("Stored page", "url", current, "entries", found, "saved", saved)

		if page.Next == "" {
			break
		}
		next, err := fetcher.ResolveNext(resp.URL, page.Next)
		if err != nil {
			return res, err
		}
		if next == current {
			p.logger.Warn("Next link points at the current page, stopping", "url", current)
			break
		}
		current = next
	}
	return res, nil
}

// RunDay processes the closed single-day range for day, starting at offset.
func (p *Pipeline) RunDay(ctx context.Context, day time.Time, offset int, rec Recorder) (Result, error) {
	u, err := fetcher.DayURL(p.cfg.BaseURL, p.cfg.Version, day, offset)
	if err != nil {
		return Result{}, err
	}
	return p.ProcessFeed(ctx, u, rec)
}
