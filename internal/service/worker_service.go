package service

import (
	"context"
	"os"
	"survey-export/internal/blob"
	"survey-export/internal/events"
	"survey-export/internal/export"
	"survey-export/internal/metrics"
	"survey-export/internal/models"
	"survey-export/internal/repository"
	"time"

	"github.com/sirupsen/logrus"
)

// Exporter produces a spreadsheet file for a filter payload
type Exporter interface {
	Export(ctx context.Context, filters map[string]interface{}, report export.ProgressFunc) (*export.Result, error)
}

// WorkerConfig carries the worker's execution policy
type WorkerConfig struct {
	LeaseDuration time.Duration
	PollInterval  time.Duration
	BackoffBase   time.Duration
	ExportFolder  string

	RetentionAge   time.Duration
	RetentionCount int
	PruneInterval  time.Duration
}

// WorkerService dequeues export jobs and runs them one at a time.
// Several instances may run against the same queue; the repository's
// lease guarantees they never hold the same job.
type WorkerService struct {
	repo      repository.JobRepository
	exporter  Exporter
	uploader  blob.Uploader
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *logrus.Logger
	cfg       WorkerConfig
}

// NewWorkerService creates a new worker service
func NewWorkerService(repo repository.JobRepository, exporter Exporter, uploader blob.Uploader, publisher events.Publisher, m *metrics.Metrics, logger *logrus.Logger, cfg WorkerConfig) *WorkerService {
	return &WorkerService{
		repo:      repo,
		exporter:  exporter,
		uploader:  uploader,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		cfg:       cfg,
	}
}

// ProcessJobs continuously leases and processes jobs until ctx ends
func (s *WorkerService) ProcessJobs(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			job, err := s.repo.Lease(ctx, s.cfg.LeaseDuration)
			if err != nil {
				s.logger.WithError(err).Error("error leasing job")
				sleep(ctx, s.cfg.PollInterval)
				continue
			}

			if job == nil {
				sleep(ctx, s.cfg.PollInterval)
				continue
			}

			s.logger.WithFields(logrus.Fields{
				"job_id":  job.ID,
				"attempt": job.Attempt,
			}).Info("job leased")

			s.processJob(ctx, job)
		}
	}
}

// RunPruner periodically enforces the queue's retention policy
func (s *WorkerService) RunPruner(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pruned, err := s.repo.Prune(ctx, s.cfg.RetentionAge, s.cfg.RetentionCount)
			if err != nil {
				s.logger.WithError(err).Error("error pruning jobs")
				continue
			}
			if pruned > 0 {
				s.logger.WithField("pruned", pruned).Info("pruned terminal jobs")
			}
		}
	}
}

// processJob runs a single export attempt
func (s *WorkerService) processJob(ctx context.Context, job *models.ExportJob) {
	report := func(percent int) {
		if err := s.repo.UpdateProgress(ctx, job.ID, percent); err != nil {
			s.logger.WithError(err).WithField("job_id", job.ID).Warn("failed to update progress")
		}
		if err := s.publisher.Publish(ctx, events.Event{
			JobID:    job.ID,
			Type:     events.TypeProgress,
			Progress: percent,
		}); err != nil {
			s.logger.WithError(err).WithField("job_id", job.ID).Warn("failed to publish progress event")
		}
	}

	res, err := s.exporter.Export(ctx, job.Filters, report)
	if res != nil && res.FilePath != "" {
		// The temp file is gone once the attempt ends, whatever the
		// outcome. Cleanup failures are logged, never propagated.
		defer s.removeTempFile(job.ID, res.FilePath)
	}
	if err != nil {
		s.handleJobFailure(ctx, job, err)
		return
	}

	downloadURL, err := s.uploader.UploadFile(ctx, res.FilePath, s.cfg.ExportFolder)
	if err != nil {
		s.handleJobFailure(ctx, job, err)
		return
	}

	result := &models.ExportResult{
		DownloadURL: downloadURL,
		TotalRows:   res.TotalRows,
	}

	if err := s.repo.Complete(ctx, job.ID, result); err != nil {
		s.logger.WithError(err).WithField("job_id", job.ID).Error("error marking job completed")
		return
	}

	if err := s.publisher.Publish(ctx, events.Event{
		JobID:  job.ID,
		Type:   events.TypeCompleted,
		Result: result,
	}); err != nil {
		s.logger.WithError(err).WithField("job_id", job.ID).Warn("failed to publish completed event")
	}

	s.metrics.IncrementCompletedExports()
	s.metrics.AddRowsExported(result.TotalRows)
	s.logger.WithFields(logrus.Fields{
		"job_id": job.ID,
		"rows":   result.TotalRows,
		"url":    downloadURL,
	}).Info("job completed")
}

// handleJobFailure retries the job when attempts remain, otherwise
// marks it terminally failed
func (s *WorkerService) handleJobFailure(ctx context.Context, job *models.ExportJob, cause error) {
	reason := cause.Error()

	if job.Attempt < job.MaxAttempts {
		delay := s.cfg.BackoffBase
		if job.Attempt > 1 {
			delay = s.cfg.BackoffBase << (job.Attempt - 1)
		}

		if err := s.repo.Retry(ctx, job.ID, reason, delay); err != nil {
			s.logger.WithError(err).WithField("job_id", job.ID).Error("error re-enqueueing job")
			return
		}

		// No failed event for a retried attempt: externally the job is
		// simply waiting again.
		s.metrics.IncrementRetriedExports()
		s.logger.WithFields(logrus.Fields{
			"job_id":  job.ID,
			"attempt": job.Attempt,
			"max":     job.MaxAttempts,
			"delay":   delay.String(),
			"reason":  reason,
		}).Warn("job failed, retrying")
		return
	}

	if err := s.repo.Fail(ctx, job.ID, reason); err != nil {
		s.logger.WithError(err).WithField("job_id", job.ID).Error("error marking job failed")
		return
	}

	if err := s.publisher.Publish(ctx, events.Event{
		JobID: job.ID,
		Type:  events.TypeFailed,
		Error: reason,
	}); err != nil {
		s.logger.WithError(err).WithField("job_id", job.ID).Warn("failed to publish failed event")
	}

	s.metrics.IncrementFailedExports()
	s.logger.WithFields(logrus.Fields{
		"job_id": job.ID,
		"reason": reason,
	}).Error("job failed terminally")
}

func (s *WorkerService) removeTempFile(jobID, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"job_id": jobID,
			"file":   path,
		}).Warn("failed to remove temp file")
	}
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
