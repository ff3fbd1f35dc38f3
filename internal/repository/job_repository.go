package repository

import (
	"context"
	"errors"
	"survey-export/internal/models"
	"time"
)

// ErrJobNotFound is returned when a job id is unknown or already pruned
var ErrJobNotFound = errors.New("job not found")

// JobRepository defines the interface for export job persistence.
// The queue exclusively owns job lifecycle: workers write progress and
// terminal outcomes through it, every other component only reads.
type JobRepository interface {
	// Enqueue inserts a job in the waiting state. Returns immediately,
	// never blocks on execution.
	Enqueue(ctx context.Context, job *models.ExportJob) error
	GetJobByID(ctx context.Context, id string) (*models.ExportJob, error)
	// Lease transactionally claims one runnable job (waiting and due, or
	// active with an expired lease) and marks it active. No two workers
	// can lease the same job. Returns nil when nothing is runnable.
	Lease(ctx context.Context, leaseDuration time.Duration) (*models.ExportJob, error)
	// UpdateProgress records percent in [0,99]; last write wins.
	UpdateProgress(ctx context.Context, id string, percent int) error
	Complete(ctx context.Context, id string, result *models.ExportResult) error
	// Retry re-enqueues a failed attempt after the backoff delay.
	Retry(ctx context.Context, id string, reason string, delay time.Duration) error
	Fail(ctx context.Context, id string, reason string) error
	// Prune deletes terminal jobs past the age cap or beyond the newest
	// keep entries per terminal status. The queue is not an audit log.
	Prune(ctx context.Context, age time.Duration, keep int) (int64, error)
}
