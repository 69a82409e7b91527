package models

import "time"

// JobStatus is the persisted state of a tracked ingestion job.
type JobStatus string

const (
	JobIdle         JobStatus = "idle"
	JobInitializing JobStatus = "initializing"
	JobRunning      JobStatus = "running"
	JobFailed       JobStatus = "failed"
	JobPartial      JobStatus = "partial"
)

// Job is one row of job_tracker. Zero times mean NULL.
type Job struct {
	Name                string
	Status              JobStatus
	LastSuccessfulStart time.Time
	LastAttemptedStart  time.Time
	NextPageURL         string
	Notes               string
	FailedDates         []string
	UpdatedAt           time.Time
}
