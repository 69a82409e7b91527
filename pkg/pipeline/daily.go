package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/dtnitsch/fpds-ingest/internal/common"
	"github.com/dtnitsch/fpds-ingest/models"
	"github.com/dtnitsch/fpds-ingest/pkg/fetcher"
	"github.com/dtnitsch/fpds-ingest/pkg/parser"
	"github.com/dtnitsch/fpds-ingest/pkg/tracker"
)

const maxNoteError = 200

// RunDaily performs one incremental run under tr. A failed run with a cursor
// is resumed from it; otherwise missed days since the last success are
// processed one by one and the open-ended feed is read from the most recent
// day that has entries.
func (p *Pipeline) RunDaily(ctx context.Context, tr *tracker.Tracker) (Result, error) {
	runStart := p.now().UTC()
	prev := tr.Job()
	if err := tr.Begin(ctx, runStart); err != nil {
		return Result{}, err
	}

	runCtx := ctx
	if p.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.cfg.RunTimeout)
		defer cancel()
	}

	res, err := p.daily(runCtx, tr, prev)
	if err != nil {
		// The run context may be expired; the final write must still land.
		saveCtx := context.WithoutCancel(ctx)
		notes := p.failureNotes(err, tr.Cursor())
		p.logger.Error("Daily run failed", "error", err, "saved", res.Saved, "last_url", tr.Cursor())
		if ferr := tr.Fail(saveCtx, notes); ferr != nil {
			return res, errors.Join(err, ferr)
		}
		return res, err
	}

	notes := fmt.Sprintf("Run completed successfully at %s. Saved %s new records in this run.",
		p.now().UTC().Format(time.RFC3339), humanize.Comma(int64(res.Saved)))
	if err := tr.Succeed(ctx, runStart, notes); err != nil {
		return res, err
	}
	p.logger.Info("Daily run completed", "saved", res.Saved, "pages", res.Pages)
	return res, nil
}

func (p *Pipeline) failureNotes(err error, cursor string) string {
	at := p.now().UTC().Format(time.RFC3339)
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("Run timed out after %s at %s. Last URL: %s", p.cfg.RunTimeout, at, cursor)
	}
	return fmt.Sprintf("Run failed with error: %s at %s. Last URL: %s",
		common.Truncate(err.Error(), maxNoteError), at, cursor)
}

func (p *Pipeline) daily(ctx context.Context, tr *tracker.Tracker, prev models.Job) (Result, error) {
	if prev.Status == models.JobFailed && prev.NextPageURL != "" {
		p.logger.Warn("Previous run failed, resuming from last known page", "url", prev.NextPageURL)
		return p.ProcessFeed(ctx, prev.NextPageURL, tr)
	}

	var total Result
	today := common.Day(p.now())
	yesterday := today.AddDate(0, 0, -1)

	if !prev.LastSuccessfulStart.IsZero() {
		first := common.Day(prev.LastSuccessfulStart).AddDate(0, 0, 1)
		missed := common.DaysInRange(first, yesterday)
		if len(missed) > 0 {
			p.logger.Info("Detected missed days", "count", len(missed),
				"first", missed[0].Format(common.DayLayout), "last", missed[len(missed)-1].Format(common.DayLayout))
		}
		for _, day := range missed {
			res, err := p.RunDay(ctx, day, 0, tr)
			total.add(res)
			if err != nil {
				return total, err
			}
			notes := fmt.Sprintf("Processing missed day %s. Saved %s records for this day.",
				day.Format(common.DayLayout), humanize.Comma(int64(res.Saved)))
			if err := tr.Progress(ctx, notes); err != nil {
				return total, err
			}
		}
	} else {
		p.logger.Info("No previous successful run found")
	}

	start := p.findStart(ctx, yesterday, today)
	startURL, err := fetcher.FeedURL(p.cfg.BaseURL, p.cfg.Version, start, time.Time{}, 0)
	if err != nil {
		return total, err
	}
	p.logger.Info("Starting current run", "since", start.Format(common.DayLayout), "url", startURL)
	res, err := p.ProcessFeed(ctx, startURL, tr)
	total.add(res)
	return total, err
}

// findStart walks back from yesterday until a day's open-ended feed has
// entries. When none of the LookBack days do, it falls back to DaysBack days
// before today.
func (p *Pipeline) findStart(ctx context.Context, yesterday, today time.Time) time.Time {
	day := yesterday
	for i := 0; i < p.cfg.LookBack; i++ {
		if ctx.Err() != nil {
			break
		}
		ok, err := p.hasEntries(ctx, day)
		if err != nil {
			p.logger.Warn("Start probe failed, trying previous day", "day", day.Format(common.DayLayout), "error", err)
		}
		if ok {
			p.logger.Info("Found entries", "day", day.Format(common.DayLayout))
			return day
		}
		day = day.AddDate(0, 0, -1)
	}
	fallback := today.AddDate(0, 0, -p.cfg.DaysBack)
	p.logger.Warn("No entries found in look-back window, using fallback start",
		"days_checked", p.cfg.LookBack, "start", fallback.Format(common.DayLayout))
	return fallback
}

func (p *Pipeline) hasEntries(ctx context.Context, day time.Time) (bool, error) {
	u, err := fetcher.FeedURL(p.cfg.BaseURL, p.cfg.Version, day, time.Time{}, 0)
	if err != nil {
		return false, err
	}
	resp, err := p.probe.Fetch(ctx, u, nil)
	if err != nil {
		return false, err
	}
	page, err := parser.ParsePage(resp.Body)
	if err != nil {
		return false, err
	}
	return len(page.Entries)+len(page.Skipped) > 0, nil
}
