package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"survey-export/internal/models"
	"testing"
	"time"
)

func newTestRepository(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func enqueueJob(t *testing.T, repo *SQLiteRepository, id string) *models.ExportJob {
	t.Helper()
	job := &models.ExportJob{
		ID:          id,
		Filters:     map[string]interface{}{"wardNo": "12"},
		MaxAttempts: 2,
	}
	if err := repo.Enqueue(context.Background(), job); err != nil {
		t.Fatalf("failed to enqueue job: %v", err)
	}
	return job
}

func TestSQLiteRepository_EnqueueAndGet(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	enqueueJob(t, repo, "job-1")

	job, err := repo.GetJobByID(ctx, "job-1")
	if err != nil {
		t.Fatalf("failed to get job: %v", err)
	}
	if job.Status != models.StatusWaiting {
		t.Errorf("expected status waiting, got %s", job.Status)
	}
	if job.Progress != 0 {
		t.Errorf("expected progress 0, got %d", job.Progress)
	}
	if job.Attempt != 0 {
		t.Errorf("expected attempt 0, got %d", job.Attempt)
	}
	if job.MaxAttempts != 2 {
		t.Errorf("expected max attempts 2, got %d", job.MaxAttempts)
	}
	if job.Filters["wardNo"] != "12" {
		t.Errorf("expected filters to round-trip, got %v", job.Filters)
	}
}

func TestSQLiteRepository_GetJobByID_NotFound(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.GetJobByID(context.Background(), "missing")
	if !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestSQLiteRepository_Lease(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	enqueueJob(t, repo, "job-1")

	job, err := repo.Lease(ctx, time.Minute)
	if err != nil {
		t.Fatalf("failed to lease job: %v", err)
	}
	if job == nil {
		t.Fatal("expected a leased job")
	}
	if job.ID != "job-1" {
		t.Errorf("expected job-1, got %s", job.ID)
	}
	if job.Status != models.StatusActive {
		t.Errorf("expected status active, got %s", job.Status)
	}
	if job.Attempt != 1 {
		t.Errorf("expected attempt 1, got %d", job.Attempt)
	}

	// The job is held; a second lease finds nothing runnable
	second, err := repo.Lease(ctx, time.Minute)
	if err != nil {
		t.Fatalf("unexpected lease error: %v", err)
	}
	if second != nil {
		t.Errorf("expected no leasable job, got %s", second.ID)
	}
}

func TestSQLiteRepository_Lease_ReclaimsExpired(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	enqueueJob(t, repo, "job-1")

	// Lease with an already-expired lease window
	if _, err := repo.Lease(ctx, -time.Minute); err != nil {
		t.Fatalf("failed to lease job: %v", err)
	}

	job, err := repo.Lease(ctx, time.Minute)
	if err != nil {
		t.Fatalf("failed to re-lease expired job: %v", err)
	}
	if job == nil {
		t.Fatal("expected the expired job to be reclaimed")
	}
	if job.Attempt != 2 {
		t.Errorf("expected attempt 2 after reclaim, got %d", job.Attempt)
	}
}

func TestSQLiteRepository_UpdateProgress(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	enqueueJob(t, repo, "job-1")

	// Progress updates only apply to active jobs
	if err := repo.UpdateProgress(ctx, "job-1", 50); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound for waiting job, got %v", err)
	}

	if _, err := repo.Lease(ctx, time.Minute); err != nil {
		t.Fatalf("failed to lease job: %v", err)
	}

	if err := repo.UpdateProgress(ctx, "job-1", 150); err != nil {
		t.Fatalf("failed to update progress: %v", err)
	}

	job, err := repo.GetJobByID(ctx, "job-1")
	if err != nil {
		t.Fatalf("failed to get job: %v", err)
	}
	if job.Progress != 99 {
		t.Errorf("expected progress clamped to 99, got %d", job.Progress)
	}
}

func TestSQLiteRepository_Complete(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	enqueueJob(t, repo, "job-1")
	if _, err := repo.Lease(ctx, time.Minute); err != nil {
		t.Fatalf("failed to lease job: %v", err)
	}

	result := &models.ExportResult{
		DownloadURL: "http://storage.local/survey-exports/exports/surveys_1.xlsx",
		TotalRows:   42,
	}
	if err := repo.Complete(ctx, "job-1", result); err != nil {
		t.Fatalf("failed to complete job: %v", err)
	}

	job, err := repo.GetJobByID(ctx, "job-1")
	if err != nil {
		t.Fatalf("failed to get job: %v", err)
	}
	if job.Status != models.StatusCompleted {
		t.Errorf("expected status completed, got %s", job.Status)
	}
	if job.Progress != 100 {
		t.Errorf("expected progress 100, got %d", job.Progress)
	}
	if job.Result == nil || job.Result.DownloadURL != result.DownloadURL {
		t.Errorf("expected result to round-trip, got %+v", job.Result)
	}
	if job.Result != nil && job.Result.TotalRows != 42 {
		t.Errorf("expected totalRows 42, got %d", job.Result.TotalRows)
	}
	if job.FinishedAt == nil {
		t.Error("expected finished_at to be set")
	}
}

func TestSQLiteRepository_RetryDelaysNextAttempt(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	enqueueJob(t, repo, "job-1")
	if _, err := repo.Lease(ctx, time.Minute); err != nil {
		t.Fatalf("failed to lease job: %v", err)
	}

	if err := repo.Retry(ctx, "job-1", "stream write failed", time.Hour); err != nil {
		t.Fatalf("failed to retry job: %v", err)
	}

	job, err := repo.GetJobByID(ctx, "job-1")
	if err != nil {
		t.Fatalf("failed to get job: %v", err)
	}
	if job.Status != models.StatusWaiting {
		t.Errorf("expected status waiting, got %s", job.Status)
	}
	if job.FailureReason != "stream write failed" {
		t.Errorf("expected failure reason to be recorded, got %q", job.FailureReason)
	}

	// The backoff delay has not elapsed yet
	leased, err := repo.Lease(ctx, time.Minute)
	if err != nil {
		t.Fatalf("unexpected lease error: %v", err)
	}
	if leased != nil {
		t.Errorf("expected job to be held back by its backoff delay, got %s", leased.ID)
	}
}

func TestSQLiteRepository_RetryWithZeroDelayIsRunnable(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	enqueueJob(t, repo, "job-1")
	if _, err := repo.Lease(ctx, time.Minute); err != nil {
		t.Fatalf("failed to lease job: %v", err)
	}
	if err := repo.Retry(ctx, "job-1", "transient error", 0); err != nil {
		t.Fatalf("failed to retry job: %v", err)
	}

	job, err := repo.Lease(ctx, time.Minute)
	if err != nil {
		t.Fatalf("failed to lease retried job: %v", err)
	}
	if job == nil {
		t.Fatal("expected retried job to be leasable")
	}
	if job.Attempt != 2 {
		t.Errorf("expected attempt 2, got %d", job.Attempt)
	}
}

func TestSQLiteRepository_Fail(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	enqueueJob(t, repo, "job-1")
	if _, err := repo.Lease(ctx, time.Minute); err != nil {
		t.Fatalf("failed to lease job: %v", err)
	}
	if err := repo.Fail(ctx, "job-1", "upload failed"); err != nil {
		t.Fatalf("failed to fail job: %v", err)
	}

	job, err := repo.GetJobByID(ctx, "job-1")
	if err != nil {
		t.Fatalf("failed to get job: %v", err)
	}
	if job.Status != models.StatusFailed {
		t.Errorf("expected status failed, got %s", job.Status)
	}
	if job.FailureReason != "upload failed" {
		t.Errorf("expected failure reason, got %q", job.FailureReason)
	}
	if job.FinishedAt == nil {
		t.Error("expected finished_at to be set")
	}

	// Terminal jobs are never leased
	leased, err := repo.Lease(ctx, time.Minute)
	if err != nil {
		t.Fatalf("unexpected lease error: %v", err)
	}
	if leased != nil {
		t.Errorf("expected no leasable job, got %s", leased.ID)
	}
}

func TestSQLiteRepository_PruneCountCap(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		id := fmt.Sprintf("job-%d", i)
		enqueueJob(t, repo, id)
		if _, err := repo.Lease(ctx, time.Minute); err != nil {
			t.Fatalf("failed to lease job: %v", err)
		}
		if err := repo.Complete(ctx, id, &models.ExportResult{TotalRows: 1}); err != nil {
			t.Fatalf("failed to complete job: %v", err)
		}
	}
	enqueueJob(t, repo, "waiting-job")

	pruned, err := repo.Prune(ctx, 7*24*time.Hour, 10)
	if err != nil {
		t.Fatalf("failed to prune: %v", err)
	}
	if pruned != 2 {
		t.Errorf("expected 2 jobs pruned, got %d", pruned)
	}

	// Waiting jobs are exempt from retention
	if _, err := repo.GetJobByID(ctx, "waiting-job"); err != nil {
		t.Errorf("expected waiting job to survive pruning: %v", err)
	}
}

func TestSQLiteRepository_PruneAgeCap(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	enqueueJob(t, repo, "old-job")
	if _, err := repo.Lease(ctx, time.Minute); err != nil {
		t.Fatalf("failed to lease job: %v", err)
	}
	if err := repo.Fail(ctx, "old-job", "upload failed"); err != nil {
		t.Fatalf("failed to fail job: %v", err)
	}

	// Backdate the job past the retention age
	aged := time.Now().Add(-8 * 24 * time.Hour).Unix()
	if _, err := repo.db.ExecContext(ctx, `UPDATE export_jobs SET finished_at = ? WHERE id = ?`, aged, "old-job"); err != nil {
		t.Fatalf("failed to backdate job: %v", err)
	}

	pruned, err := repo.Prune(ctx, 7*24*time.Hour, 10)
	if err != nil {
		t.Fatalf("failed to prune: %v", err)
	}
	if pruned != 1 {
		t.Errorf("expected 1 job pruned, got %d", pruned)
	}

	if _, err := repo.GetJobByID(ctx, "old-job"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected pruned job to be gone, got %v", err)
	}
}
