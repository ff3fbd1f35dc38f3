package models

import "time"

// JobStatus represents the state of an export job
type JobStatus string

const (
	StatusWaiting   JobStatus = "waiting"
	StatusActive    JobStatus = "active"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	// StatusNotFound is never persisted; it is what the gateway reports
	// for an unknown or already-pruned job id.
	StatusNotFound JobStatus = "notfound"
)

// ExportJob represents one export request tracked through the queue
type ExportJob struct {
	ID             string                 `json:"id"`
	Filters        map[string]interface{} `json:"filters,omitempty"`
	Status         JobStatus              `json:"status"`
	Progress       int                    `json:"progress"`
	Attempt        int                    `json:"attempt"`
	MaxAttempts    int                    `json:"max_attempts"`
	Result         *ExportResult          `json:"result,omitempty"`
	FailureReason  string                 `json:"failure_reason,omitempty"`
	LeasedAt       *time.Time             `json:"leased_at,omitempty"`
	LeaseExpiresAt *time.Time             `json:"lease_expires_at,omitempty"`
	NextAttemptAt  time.Time              `json:"next_attempt_at"`
	FinishedAt     *time.Time             `json:"finished_at,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// ExportResult is produced exactly once per successful job
type ExportResult struct {
	DownloadURL string `json:"downloadUrl"`
	TotalRows   int64  `json:"totalRows"`
}

// SubmitExportRequest represents a request to enqueue an export
type SubmitExportRequest struct {
	Filters map[string]interface{} `json:"filters,omitempty"`
}
