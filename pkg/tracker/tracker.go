// Package tracker persists the state machine of a named ingestion job in
// job_tracker.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dtnitsch/fpds-ingest/models"
	"github.com/dtnitsch/fpds-ingest/pkg/db"
)

// ErrInvalidTransition is returned when a state change is not allowed from
// the job's current status.
var ErrInvalidTransition = errors.New("invalid job transition")

// Store is the persistence the tracker needs.
type Store interface {
	EnsureJob(ctx context.Context, name string) (*models.Job, error)
	SaveJob(ctx context.Context, job *models.Job) error
}

var _ Store = (*db.DB)(nil)

// Tracker owns one job row. It is not safe for concurrent use; see Actor.
type Tracker struct {
	store    Store
	job      *models.Job
	backfill bool
	logger   *slog.Logger
}

// Open loads the job row, creating it idle when missing. Only a backfill
// tracker may finish in the partial state.
func Open(ctx context.Context, store Store, name string, backfill bool, logger *slog.Logger) (*Tracker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	job, err := store.EnsureJob(ctx, name)
	if err != nil {
		return nil, err
	}
	return &Tracker{store: store, job: job, backfill: backfill, logger: logger}, nil
}

// Job returns a copy of the current row.
func (t *Tracker) Job() models.Job {
	j := *t.job
	j.FailedDates = append([]string(nil), t.job.FailedDates...)
	return j
}

// Cursor is the page URL recorded by the last RecordPage.
func (t *Tracker) Cursor() string { return t.job.NextPageURL }

func (t *Tracker) allowed(to models.JobStatus) bool {
	from := t.job.Status
	active := from == models.JobInitializing || from == models.JobRunning
	switch to {
	case models.JobInitializing:
		return true
	case models.JobRunning, models.JobIdle, models.JobFailed:
		return active
	case models.JobPartial:
		return active && t.backfill
	}
	return false
}

func (t *Tracker) save(ctx context.Context, to models.JobStatus, mutate func(j *models.Job)) error {
	if !t.allowed(to) {
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, t.job.Name, t.job.Status, to)
	}
	next := t.Job()
	next.Status = to
	if mutate != nil {
		mutate(&next)
	}
	if err := t.store.SaveJob(ctx, &next); err != nil {
		return err
	}
	t.job = &next
	t.logger.Debug("Job state saved", "job", next.Name, "status", string(to))
	return nil
}

// Begin claims the job for a run starting at runStart. The cursor is kept;
// read Job before Begin to see the previous status.
func (t *Tracker) Begin(ctx context.Context, runStart time.Time) error {
	return t.save(ctx, models.JobInitializing, func(j *models.Job) {
		j.LastAttemptedStart = runStart.UTC()
	})
}

// RecordPage marks the job running and stores url as the resume cursor.
func (t *Tracker) RecordPage(ctx context.Context, url string) error {
	return t.save(ctx, models.JobRunning, func(j *models.Job) {
		j.NextPageURL = url
	})
}

// Progress replaces the notes of a running job.
func (t *Tracker) Progress(ctx context.Context, notes string) error {
	return t.save(ctx, models.JobRunning, func(j *models.Job) {
		j.Notes = notes
	})
}

// Succeed returns the job to idle, clears the cursor and advances the last
// successful run start.
func (t *Tracker) Succeed(ctx context.Context, runStart time.Time, notes string) error {
	return t.save(ctx, models.JobIdle, func(j *models.Job) {
		j.LastSuccessfulStart = runStart.UTC()
		j.NextPageURL = ""
		j.Notes = notes
		j.FailedDates = nil
	})
}

// Fail marks the run failed. The cursor is kept so the next run resumes.
func (t *Tracker) Fail(ctx context.Context, notes string) error {
	return t.save(ctx, models.JobFailed, func(j *models.Job) {
		j.Notes = notes
	})
}

// Partial finishes a backfill that left failedDates behind.
func (t *Tracker) Partial(ctx context.Context, notes string, failedDates []string) error {
	return t.save(ctx, models.JobPartial, func(j *models.Job) {
		j.Notes = notes
		j.FailedDates = append([]string(nil), failedDates...)
		j.NextPageURL = ""
	})
}
