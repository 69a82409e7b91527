package backfill

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dtnitsch/fpds-ingest/internal/common"
	"github.com/dtnitsch/fpds-ingest/models"
	"github.com/dtnitsch/fpds-ingest/pkg/db"
	"github.com/dtnitsch/fpds-ingest/pkg/pipeline"
	"github.com/dtnitsch/fpds-ingest/pkg/tracker"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func day(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }

type fakeStore struct {
	latest time.Time
	counts map[string]int
}

func (f *fakeStore) LatestModifiedDate(context.Context) (time.Time, bool, error) {
	return f.latest, !f.latest.IsZero(), nil
}

func (f *fakeStore) CountActionsModifiedOn(_ context.Context, d time.Time) (int, error) {
	return f.counts[d.Format(common.DayLayout)], nil
}

func setupTracker(t *testing.T) (*db.DB, *tracker.Tracker) {
	t.Helper()
	ctx := context.Background()
	database, err := db.Open(ctx, ":memory:", 0)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	tr, err := tracker.Open(ctx, database, "fpds_backfill", true, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	return database, tr
}

func TestGapOffset(t *testing.T) {
	tests := []struct {
		existing, want int
	}{
		{0, 0},
		{9, 0},
		{10, 10},
		{23, 20},
		{-1, 0},
	}
	for _, tt := range tests {
		if got := GapOffset(tt.existing); got != tt.want {
			t.Errorf("GapOffset(%d) = %d, want %d", tt.existing, got, tt.want)
		}
	}
}

func TestPoolSize(t *testing.T) {
	if got := PoolSize(4); got != 6 {
		t.Errorf("PoolSize(4) = %d, want 6", got)
	}
	if got := PoolSize(0); got != 3 {
		t.Errorf("PoolSize(0) = %d, want 3", got)
	}
}

func TestPlan(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{
		latest: day(4).Add(15 * time.Hour),
		counts: map[string]int{"2024-03-02": 23, "2024-03-03": 10},
	}
	o := New(store, nil, testLogger())
	o.now = func() time.Time { return day(8).Add(9 * time.Hour) }

	tests := []struct {
		name    string
		opts    Options
		days    []string
		offsets []int
	}{
		{"full range", Options{Start: day(1), End: day(3)}, []string{"2024-03-01", "2024-03-02", "2024-03-03"}, []int{0, 0, 0}},
		{"resume inside range", Options{Start: day(1), End: day(6), Resume: true}, []string{"2024-03-05", "2024-03-06"}, []int{0, 0}},
		{"resume outside range", Options{Start: day(5), End: day(6), Resume: true}, []string{"2024-03-05", "2024-03-06"}, []int{0, 0}},
		{"gap fill", Options{Start: day(1), End: day(3), GapFill: true}, []string{"2024-03-01", "2024-03-02", "2024-03-03"}, []int{0, 20, 10}},
		{"default end is yesterday", Options{Start: day(6)}, []string{"2024-03-06", "2024-03-07"}, []int{0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tasks, err := o.plan(ctx, tt.opts)
			if err != nil {
				t.Fatalf("plan failed: %v", err)
			}
			if len(tasks) != len(tt.days) {
				t.Fatalf("got %d tasks, want %d", len(tasks), len(tt.days))
			}
			for i, task := range tasks {
				if task.day.Format(common.DayLayout) != tt.days[i] || task.offset != tt.offsets[i] {
					t.Errorf("task %d = %s@%d, want %s@%d", i, task.day.Format(common.DayLayout), task.offset, tt.days[i], tt.offsets[i])
				}
			}
		})
	}

	if _, err := o.plan(ctx, Options{Start: day(5), End: day(4)}); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("reversed range: err = %v", err)
	}
	if _, err := o.plan(ctx, Options{}); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("missing start: err = %v", err)
	}
}

func TestRunTenDaysFourWorkers(t *testing.T) {
	ctx := context.Background()
	database, tr := setupTracker(t)

	bad := map[string]bool{"2024-03-03": true, "2024-03-07": true}
	var (
		running, peak atomic.Int32
		mu            sync.Mutex
		seen          = map[string]int{}
	)
	run := func(ctx context.Context, d time.Time, offset int) (pipeline.Result, error) {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)

		key := d.Format(common.DayLayout)
		mu.Lock()
		seen[key]++
		mu.Unlock()
		if bad[key] {
			return pipeline.Result{}, errors.New("feed unavailable")
		}
		return pipeline.Result{Saved: 2}, nil
	}

	o := New(&fakeStore{}, run, testLogger())
	sum, err := o.Run(ctx, tr, Options{Start: day(1), End: day(10), Threads: 4})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if sum.Days != 10 || sum.Completed != 10 {
		t.Errorf("summary = %+v, want 10 days completed", sum)
	}
	if sum.Saved != 16 {
		t.Errorf("saved = %d, want 16", sum.Saved)
	}
	if len(sum.Failed) != 2 || sum.Failed[0] != "2024-03-03" || sum.Failed[1] != "2024-03-07" {
		t.Errorf("failed = %v", sum.Failed)
	}
	if p := peak.Load(); p > 4 {
		t.Errorf("peak concurrency = %d, want <= 4", p)
	}
	for k, n := range seen {
		if n != 1 {
			t.Errorf("day %s ran %d times", k, n)
		}
	}

	job, err := database.GetJob(ctx, "fpds_backfill")
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != models.JobPartial {
		t.Errorf("status = %s, want partial", job.Status)
	}
	if len(job.FailedDates) != 2 {
		t.Errorf("failed dates = %v", job.FailedDates)
	}
}

func TestRunAllDaysSucceed(t *testing.T) {
	ctx := context.Background()
	database, tr := setupTracker(t)

	run := func(context.Context, time.Time, int) (pipeline.Result, error) {
		return pipeline.Result{Saved: 1}, nil
	}
	sum, err := New(&fakeStore{}, run, testLogger()).Run(ctx, tr, Options{Start: day(1), End: day(3), Threads: 0})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Completed != 3 || len(sum.Failed) != 0 {
		t.Errorf("summary = %+v", sum)
	}
	job, err := database.GetJob(ctx, "fpds_backfill")
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != models.JobIdle || job.LastSuccessfulStart.IsZero() {
		t.Errorf("job = %+v", job)
	}
}

func TestRunNothingToDo(t *testing.T) {
	ctx := context.Background()
	_, tr := setupTracker(t)

	store := &fakeStore{latest: day(3)}
	called := false
	run := func(context.Context, time.Time, int) (pipeline.Result, error) {
		called = true
		return pipeline.Result{}, nil
	}
	if _, err := New(store, run, testLogger()).Run(ctx, tr, Options{Start: day(1), End: day(3), Resume: true}); err != nil {
		t.Fatal(err)
	}
	if called {
		t.Error("no day should run when the range is already ingested")
	}
	if tr.Job().Status != models.JobIdle {
		t.Errorf("status = %s, want idle", tr.Job().Status)
	}
}
