package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dtnitsch/fpds-ingest/models"
	"github.com/dtnitsch/fpds-ingest/pkg/db"
)

func setupTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(context.Background(), ":memory:", 0)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func TestDailyLifecycle(t *testing.T) {
	ctx := context.Background()
	database := setupTestDB(t)

	tr, err := Open(ctx, database, "daily", false, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if tr.Job().Status != models.JobIdle {
		t.Fatalf("new job status = %s, want idle", tr.Job().Status)
	}

	start := time.Date(2024, 3, 3, 6, 0, 0, 0, time.UTC)
	if err := tr.Begin(ctx, start); err != nil {
		t.Fatal(err)
	}
	if err := tr.RecordPage(ctx, "https://feed.test/?start=10"); err != nil {
		t.Fatal(err)
	}
	if err := tr.Fail(ctx, "boom"); err != nil {
		t.Fatal(err)
	}

	// A new process sees the failed row and its cursor.
	again, err := Open(ctx, database, "daily", false, nil)
	if err != nil {
		t.Fatal(err)
	}
	job := again.Job()
	if job.Status != models.JobFailed || job.NextPageURL != "https://feed.test/?start=10" {
		t.Fatalf("reloaded = %+v", job)
	}
	if !job.LastAttemptedStart.Equal(start) {
		t.Errorf("last attempted = %v, want %v", job.LastAttemptedStart, start)
	}

	if err := again.Begin(ctx, start.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if again.Cursor() == "" {
		t.Error("Begin must keep the cursor")
	}
	if err := again.Succeed(ctx, start.Add(time.Hour), "saved 3"); err != nil {
		t.Fatal(err)
	}
	job = again.Job()
	if job.Status != models.JobIdle || job.NextPageURL != "" || !job.LastSuccessfulStart.Equal(start.Add(time.Hour)) {
		t.Errorf("after success = %+v", job)
	}
}

func TestTransitions(t *testing.T) {
	ctx := context.Background()
	database := setupTestDB(t)

	daily, err := Open(ctx, database, "daily", false, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := daily.RecordPage(ctx, "u"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("running from idle: err = %v", err)
	}
	if err := daily.Fail(ctx, "x"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("failed from idle: err = %v", err)
	}
	if err := daily.Begin(ctx, time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := daily.Partial(ctx, "x", nil); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("partial on daily job: err = %v", err)
	}

	backfill, err := Open(ctx, database, "backfill", true, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := backfill.Begin(ctx, time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := backfill.Partial(ctx, "rerun with --resume", []string{"2024-03-01"}); err != nil {
		t.Fatalf("Partial failed: %v", err)
	}
	if got := backfill.Job().FailedDates; len(got) != 1 || got[0] != "2024-03-01" {
		t.Errorf("FailedDates = %v", got)
	}
	if err := backfill.Succeed(ctx, time.Now(), ""); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("idle from partial: err = %v", err)
	}
}

func TestActorSerializesProgress(t *testing.T) {
	ctx := context.Background()
	database := setupTestDB(t)

	tr, err := Open(ctx, database, "backfill", true, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.Begin(ctx, time.Now()); err != nil {
		t.Fatal(err)
	}

	a := NewActor(ctx, tr, 4)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a.Progress(fmt.Sprintf("worker %d", i))
		}(i)
	}
	wg.Wait()
	if err := a.Close(); err != nil {
		t.Fatalf("Close returned %v", err)
	}

	job, err := database.GetJob(ctx, "backfill")
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != models.JobRunning || job.Notes == "" {
		t.Errorf("job after progress = %+v", job)
	}
	if job.Notes != tr.Job().Notes {
		t.Errorf("stored notes %q differ from tracker %q", job.Notes, tr.Job().Notes)
	}
}

func TestLock(t *testing.T) {
	dir := t.TempDir()
	h, err := Lock(dir, "daily")
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	if err := h.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	h, err = Lock(dir, "daily")
	if err != nil {
		t.Fatalf("relock failed: %v", err)
	}
	h.Unlock()
}
