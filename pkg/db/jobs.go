package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dtnitsch/fpds-ingest/models"
)

// ErrJobNotFound is returned when no job_tracker row exists for a name.
var ErrJobNotFound = errors.New("job not found")

const jobColumns = `job_name, status, last_successful_run_start_time, last_attempted_run_start_time,
	next_page_url, notes, failed_dates, updated_at`

// EnsureJob creates the job row in idle state if it does not exist yet and
// returns its current contents.
func (db *DB) EnsureJob(ctx context.Context, name string) (*models.Job, error) {
	_, err := db.ExecContext(ctx, `
		INSERT INTO `+TableJobs+` (job_name, status, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (job_name) DO NOTHING
	`, name, string(models.JobIdle), time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to create job %s: %w", name, err)
	}
	return db.GetJob(ctx, name)
}

// GetJob loads a job row by name.
func (db *DB) GetJob(ctx context.Context, name string) (*models.Job, error) {
	row := db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM "+TableJobs+" WHERE job_name = ?", name)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", name, err)
	}
	return job, nil
}

// ListJobs returns every tracked job ordered by name.
func (db *DB) ListJobs(ctx context.Context) ([]*models.Job, error) {
	rows, err := db.QueryContext(ctx, "SELECT "+jobColumns+" FROM "+TableJobs+" ORDER BY job_name")
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// SaveJob writes every mutable field of job.
func (db *DB) SaveJob(ctx context.Context, job *models.Job) error {
	job.UpdatedAt = time.Now().UTC()
	res, err := db.ExecContext(ctx, `
		UPDATE `+TableJobs+` SET
			status = ?,
			last_successful_run_start_time = ?,
			last_attempted_run_start_time = ?,
			next_page_url = ?,
			notes = ?,
			failed_dates = ?,
			updated_at = ?
		WHERE job_name = ?
	`,
		string(job.Status),
		nullTime(job.LastSuccessfulStart),
		nullTime(job.LastAttemptedStart),
		nullString(job.NextPageURL),
		nullString(job.Notes),
		nullString(strings.Join(job.FailedDates, ",")),
		job.UpdatedAt,
		job.Name,
	)
	if err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.Name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, job.Name)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*models.Job, error) {
	var (
		job                 models.Job
		status              string
		success, attempted  sql.NullTime
		next, notes, failed sql.NullString
		updated             sql.NullTime
	)
	if err := s.Scan(&job.Name, &status, &success, &attempted, &next, &notes, &failed, &updated); err != nil {
		return nil, err
	}
	job.Status = models.JobStatus(status)
	if success.Valid {
		job.LastSuccessfulStart = success.Time.UTC()
	}
	if attempted.Valid {
		job.LastAttemptedStart = attempted.Time.UTC()
	}
	if updated.Valid {
		job.UpdatedAt = updated.Time.UTC()
	}
	job.NextPageURL = next.String
	job.Notes = notes.String
	if failed.String != "" {
		job.FailedDates = strings.Split(failed.String, ",")
	}
	return &job, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
