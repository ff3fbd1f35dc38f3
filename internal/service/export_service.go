package service

import (
	"context"
	"errors"
	"fmt"
	"survey-export/internal/metrics"
	"survey-export/internal/models"
	"survey-export/internal/repository"
	"survey-export/internal/store"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	// ErrJobNotFound is surfaced for unknown or already-pruned job ids
	ErrJobNotFound = repository.ErrJobNotFound
	// ErrMalformedFilter rejects filters referencing unknown fields
	ErrMalformedFilter = store.ErrMalformedFilter
	// ErrRateLimitExceeded caps export submissions
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// ExportService handles export job submission and status reads
type ExportService struct {
	repo        repository.JobRepository
	rateLimiter *RateLimiter
	metrics     *metrics.Metrics
	logger      *logrus.Logger
	maxAttempts int
}

// NewExportService creates a new export service
func NewExportService(repo repository.JobRepository, rateLimiter *RateLimiter, m *metrics.Metrics, logger *logrus.Logger, maxAttempts int) *ExportService {
	return &ExportService{
		repo:        repo,
		rateLimiter: rateLimiter,
		metrics:     m,
		logger:      logger,
		maxAttempts: maxAttempts,
	}
}

// Submit validates the filters and enqueues an export job. It returns
// as soon as the job is durably queued; execution happens elsewhere.
func (s *ExportService) Submit(ctx context.Context, filters map[string]interface{}) (*models.ExportJob, error) {
	if err := s.rateLimiter.CheckSubmissionRate(ctx); err != nil {
		return nil, err
	}

	// Filters are validated early so a bad payload fails the request,
	// not a worker attempt later.
	if err := store.ValidateFilters(filters); err != nil {
		return nil, err
	}

	if filters == nil {
		filters = map[string]interface{}{}
	}

	job := &models.ExportJob{
		ID:          uuid.New().String(),
		Filters:     filters,
		MaxAttempts: s.maxAttempts,
	}

	if err := s.repo.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to enqueue export: %w", err)
	}

	s.metrics.IncrementSubmittedExports()
	s.logger.WithFields(logrus.Fields{
		"job_id":  job.ID,
		"filters": filters,
	}).Info("export job submitted")

	return job, nil
}

// GetJob retrieves current job state for the status endpoint
func (s *ExportService) GetJob(ctx context.Context, id string) (*models.ExportJob, error) {
	job, err := s.repo.GetJobByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}
