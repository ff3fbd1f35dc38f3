package service

import (
	"context"
	"errors"
	"survey-export/internal/metrics"
	"testing"
)

func newTestExportService(repo *mockJobRepository, limit int) *ExportService {
	return NewExportService(repo, NewRateLimiter(limit), metrics.NewMetrics(), discardLogger(), 2)
}

func TestExportService_Submit(t *testing.T) {
	repo := newMockJobRepository()
	svc := newTestExportService(repo, 10)

	job, err := svc.Submit(context.Background(), map[string]interface{}{"wardNo": "12"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if job.ID == "" {
		t.Error("expected a generated job id")
	}
	if job.MaxAttempts != 2 {
		t.Errorf("expected max attempts 2, got %d", job.MaxAttempts)
	}
	if _, exists := repo.jobs[job.ID]; !exists {
		t.Error("expected job to be enqueued")
	}
}

func TestExportService_Submit_NilFilters(t *testing.T) {
	repo := newMockJobRepository()
	svc := newTestExportService(repo, 10)

	job, err := svc.Submit(context.Background(), nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if job.Filters == nil {
		t.Error("expected nil filters to be stored as an empty set")
	}
}

func TestExportService_Submit_MalformedFilter(t *testing.T) {
	repo := newMockJobRepository()
	svc := newTestExportService(repo, 10)

	_, err := svc.Submit(context.Background(), map[string]interface{}{"$where": "1"})
	if !errors.Is(err, ErrMalformedFilter) {
		t.Fatalf("expected ErrMalformedFilter, got %v", err)
	}
	if len(repo.jobs) != 0 {
		t.Error("expected no job to be enqueued for a bad payload")
	}
}

func TestExportService_Submit_RateLimited(t *testing.T) {
	repo := newMockJobRepository()
	svc := newTestExportService(repo, 2)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := svc.Submit(ctx, nil); err != nil {
			t.Fatalf("submission %d: expected no error, got %v", i+1, err)
		}
	}

	_, err := svc.Submit(ctx, nil)
	if !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("expected ErrRateLimitExceeded, got %v", err)
	}
}

func TestExportService_Submit_EnqueueFailure(t *testing.T) {
	repo := newMockJobRepository()
	repo.enqueueErr = errors.New("disk io error")
	svc := newTestExportService(repo, 10)

	_, err := svc.Submit(context.Background(), nil)
	if err == nil {
		t.Fatal("expected an error when enqueue fails")
	}
}

func TestExportService_GetJob_NotFound(t *testing.T) {
	repo := newMockJobRepository()
	svc := newTestExportService(repo, 10)

	_, err := svc.GetJob(context.Background(), "does-not-exist")
	if !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}
