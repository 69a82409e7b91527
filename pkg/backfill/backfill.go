// Package backfill runs the single-day pipeline over a historical date range
// with a fixed pool of workers.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/dtnitsch/fpds-ingest/internal/common"
	"github.com/dtnitsch/fpds-ingest/pkg/metrics"
	"github.com/dtnitsch/fpds-ingest/pkg/pipeline"
	"github.com/dtnitsch/fpds-ingest/pkg/tracker"
)

// PageSize is the number of entries per feed page.
const PageSize = 10

// DefaultThreads is the worker count when none is given.
const DefaultThreads = 4

// ErrInvalidRange is returned when the start date is missing or after the end.
var ErrInvalidRange = errors.New("invalid backfill range")

// Store is the read access gap detection and resume need.
type Store interface {
	LatestModifiedDate(ctx context.Context) (time.Time, bool, error)
	CountActionsModifiedOn(ctx context.Context, day time.Time) (int, error)
}

// DayRunner processes one day from offset. Each call gets its own
// dimension cache.
type DayRunner func(ctx context.Context, day time.Time, offset int) (pipeline.Result, error)

// PipelineRunner adapts p to a DayRunner.
func PipelineRunner(p *pipeline.Pipeline) DayRunner {
	return func(ctx context.Context, day time.Time, offset int) (pipeline.Result, error) {
		return p.RunDay(ctx, day, offset, pipeline.Discard)
	}
}

type Options struct {
	Start   time.Time
	End     time.Time // zero means yesterday
	Threads int
	Resume  bool
	GapFill bool
}

// Summary is the outcome of a backfill.
type Summary struct {
	Days      int
	Completed int
	Saved     int64
	Failed    []string
}

// PoolSize is the connection pool a backfill with threads workers needs.
func PoolSize(threads int) int {
	return max(threads, 1) + 2
}

// GapOffset is the page-aligned offset to resume a day that already holds
// existing rows.
func GapOffset(existing int) int {
	if existing <= 0 {
		return 0
	}
	return existing / PageSize * PageSize
}

type Orchestrator struct {
	store  Store
	run    DayRunner
	logger *slog.Logger
	now    func() time.Time
}

func New(store Store, run DayRunner, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{store: store, run: run, logger: logger, now: time.Now}
}

type task struct {
	day    time.Time
	offset int
}

// plan resolves the days to process and their start offsets.
func (o *Orchestrator) plan(ctx context.Context, opts Options) ([]task, error) {
	if opts.Start.IsZero() {
		return nil, fmt.Errorf("%w: start date is required", ErrInvalidRange)
	}
	start, end := common.Day(opts.Start), common.Day(opts.End)
	if opts.End.IsZero() {
		end = common.Day(o.now()).AddDate(0, 0, -1)
	}
	if start.After(end) {
		return nil, fmt.Errorf("%w: %s is after %s", ErrInvalidRange,
			start.Format(common.DayLayout), end.Format(common.DayLayout))
	}

	if opts.Resume {
		latest, ok, err := o.store.LatestModifiedDate(ctx)
		if err != nil {
			return nil, err
		}
		if ok {
			day := common.Day(latest)
			if !day.Before(start) && !day.After(end) {
				o.logger.Info("Resuming after latest stored day", "latest", day.Format(common.DayLayout))
				start = day.AddDate(0, 0, 1)
			}
		}
	}

	var tasks []task
	for _, day := range common.DaysInRange(start, end) {
		t := task{day: day}
		if opts.GapFill {
			n, err := o.store.CountActionsModifiedOn(ctx, day)
			if err != nil {
				return nil, err
			}
			t.offset = GapOffset(n)
			if n > 0 {
				o.logger.Debug("Gap-fill day has rows", "day", day.Format(common.DayLayout), "rows", n, "offset", t.offset)
			}
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// Run processes every planned day through opts.Threads workers and records
// the outcome on tr. Day failures do not stop other days; they leave tr
// partial with the failed dates.
func (o *Orchestrator) Run(ctx context.Context, tr *tracker.Tracker, opts Options) (Summary, error) {
	threads := max(opts.Threads, 1)
	tasks, err := o.plan(ctx, opts)
	if err != nil {
		return Summary{}, err
	}

	runStart := o.now().UTC()
	if err := tr.Begin(ctx, runStart); err != nil {
		return Summary{}, err
	}
	if len(tasks) == 0 {
		o.logger.Info("Nothing to backfill")
		return Summary{}, tr.Succeed(ctx, runStart, "No days to backfill.")
	}
	o.logger.Info("Starting backfill", "days", len(tasks), "threads", threads,
		"first", tasks[0].day.Format(common.DayLayout), "last", tasks[len(tasks)-1].day.Format(common.DayLayout))

	var (
		saved     atomic.Int64
		completed atomic.Int64
		mu        sync.Mutex
		failed    []string
		through   time.Time
	)
	actor := tracker.NewActor(ctx, tr, threads)

	queue := make(chan task)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(queue)
		for _, t := range tasks {
			select {
			case queue <- t:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	for w := 0; w < threads; w++ {
		g.Go(func() error {
			for t := range queue {
				day := t.day.Format(common.DayLayout)
				res, err := o.run(gctx, t.day, t.offset)
				saved.Add(int64(res.Saved))

				mu.Lock()
				if err != nil {
					failed = append(failed, day)
					metrics.BackfillDaysFailed.Add(1)
				} else {
					metrics.BackfillDaysCompleted.Add(1)
				}
				if t.day.After(through) {
					through = t.day
				}
				mark := through
				mu.Unlock()

				done := completed.Add(1)
				if err != nil {
					o.logger.Error("Backfill day failed", "day", day, "offset", t.offset, "error", err)
				} else {
					o.logger.Info("Backfill day completed", "day", day, "saved", res.Saved)
				}
				actor.Progress(fmt.Sprintf("Completed %d/%d days (through %s). Saved %s records.",
					done, len(tasks), mark.Format(common.DayLayout), humanize.Comma(saved.Load())))
			}
			return nil
		})
	}
	waitErr := g.Wait()
	if err := actor.Close(); err != nil {
		o.logger.Warn("Some progress updates were not saved", "error", err)
	}

	sort.Strings(failed)
	sum := Summary{
		Days:      len(tasks),
		Completed: int(completed.Load()),
		Saved:     saved.Load(),
		Failed:    failed,
	}

	saveCtx := context.WithoutCancel(ctx)
	if waitErr != nil {
		notes := fmt.Sprintf("Backfill interrupted after %d/%d days: %s", sum.Completed, sum.Days,
			common.Truncate(waitErr.Error(), 200))
		return sum, errors.Join(waitErr, tr.Fail(saveCtx, notes))
	}
	if len(failed) > 0 {
		notes := fmt.Sprintf("Backfill finished with %d failed day(s) of %d. Saved %s records. Re-run with --resume or --gap-fill to retry the failed dates.",
			len(failed), sum.Days, humanize.Comma(sum.Saved))
		return sum, tr.Partial(saveCtx, notes, failed)
	}
	notes := fmt.Sprintf("Backfill completed %d days. Saved %s records.", sum.Days, humanize.Comma(sum.Saved))
	return sum, tr.Succeed(saveCtx, runStart, notes)
}
