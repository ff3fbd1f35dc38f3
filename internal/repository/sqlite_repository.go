package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"survey-export/internal/models"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteRepository implements JobRepository using SQLite
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite repository
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	repo := &SQLiteRepository{db: db}
	if err := repo.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return repo, nil
}

// Close closes the database connection
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// initSchema initializes the database schema
func (r *SQLiteRepository) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS export_jobs (
		id TEXT PRIMARY KEY,
		filters TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'waiting',
		progress INTEGER NOT NULL DEFAULT 0,
		attempt INTEGER NOT NULL DEFAULT 0,
		max_attempts INTEGER NOT NULL DEFAULT 2,
		result TEXT,
		failure_reason TEXT,
		leased_at INTEGER,
		lease_expires_at INTEGER,
		next_attempt_at INTEGER NOT NULL,
		finished_at INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_export_jobs_status ON export_jobs(status);
	CREATE INDEX IF NOT EXISTS idx_export_jobs_next_attempt ON export_jobs(next_attempt_at);
	CREATE INDEX IF NOT EXISTS idx_export_jobs_finished ON export_jobs(finished_at);
	`

	_, err := r.db.Exec(schema)
	return err
}

const jobColumns = `id, filters, status, progress, attempt, max_attempts, result, failure_reason,
	       leased_at, lease_expires_at, next_attempt_at, finished_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*models.ExportJob, error) {
	var job models.ExportJob
	var filtersJSON string
	var result, failureReason sql.NullString
	var leasedAt, leaseExpiresAt, finishedAt sql.NullInt64
	var nextAttemptAt, createdAt, updatedAt int64

	err := row.Scan(
		&job.ID,
		&filtersJSON,
		&job.Status,
		&job.Progress,
		&job.Attempt,
		&job.MaxAttempts,
		&result,
		&failureReason,
		&leasedAt,
		&leaseExpiresAt,
		&nextAttemptAt,
		&finishedAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if filtersJSON != "" {
		if err := json.Unmarshal([]byte(filtersJSON), &job.Filters); err != nil {
			return nil, fmt.Errorf("failed to decode filters: %w", err)
		}
	}

	if result.Valid && result.String != "" {
		var res models.ExportResult
		if err := json.Unmarshal([]byte(result.String), &res); err != nil {
			return nil, fmt.Errorf("failed to decode result: %w", err)
		}
		job.Result = &res
	}

	if failureReason.Valid {
		job.FailureReason = failureReason.String
	}

	job.NextAttemptAt = time.Unix(nextAttemptAt, 0)
	job.CreatedAt = time.Unix(createdAt, 0)
	job.UpdatedAt = time.Unix(updatedAt, 0)

	if leasedAt.Valid {
		t := time.Unix(leasedAt.Int64, 0)
		job.LeasedAt = &t
	}
	if leaseExpiresAt.Valid {
		t := time.Unix(leaseExpiresAt.Int64, 0)
		job.LeaseExpiresAt = &t
	}
	if finishedAt.Valid {
		t := time.Unix(finishedAt.Int64, 0)
		job.FinishedAt = &t
	}

	return &job, nil
}

// Enqueue inserts a new job in the waiting state
func (r *SQLiteRepository) Enqueue(ctx context.Context, job *models.ExportJob) error {
	filtersJSON, err := json.Marshal(job.Filters)
	if err != nil {
		return fmt.Errorf("failed to encode filters: %w", err)
	}

	now := time.Now()
	job.Status = models.StatusWaiting
	job.CreatedAt = now
	job.UpdatedAt = now
	job.NextAttemptAt = now

	query := `
		INSERT INTO export_jobs (id, filters, status, max_attempts, next_attempt_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		job.ID,
		string(filtersJSON),
		job.Status,
		job.MaxAttempts,
		job.NextAttemptAt.Unix(),
		job.CreatedAt.Unix(),
		job.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	return nil
}

// GetJobByID retrieves a job by ID
func (r *SQLiteRepository) GetJobByID(ctx context.Context, id string) (*models.ExportJob, error) {
	query := `SELECT ` + jobColumns + ` FROM export_jobs WHERE id = ?`

	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job, nil
}

// Lease claims one runnable job for processing using a transaction
func (r *SQLiteRepository) Lease(ctx context.Context, leaseDuration time.Duration) (*models.ExportJob, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	nowUnix := now.Unix()
	expiresAt := now.Add(leaseDuration)

	// A job is runnable when it is waiting and its backoff delay has
	// elapsed, or when a previous holder's lease has expired.
	query := `
		SELECT ` + jobColumns + `
		FROM export_jobs
		WHERE (status = 'waiting' AND next_attempt_at <= ?)
		   OR (status = 'active' AND lease_expires_at < ?)
		ORDER BY created_at ASC
		LIMIT 1
	`

	job, err := scanJob(tx.QueryRowContext(ctx, query, nowUnix, nowUnix))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find leasable job: %w", err)
	}

	updateQuery := `
		UPDATE export_jobs
		SET status = 'active',
		    attempt = attempt + 1,
		    progress = 0,
		    leased_at = ?,
		    lease_expires_at = ?,
		    updated_at = ?
		WHERE id = ?
	`

	if _, err := tx.ExecContext(ctx, updateQuery, nowUnix, expiresAt.Unix(), nowUnix, job.ID); err != nil {
		return nil, fmt.Errorf("failed to update job lease: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	job.Status = models.StatusActive
	job.Attempt++
	job.Progress = 0
	job.LeasedAt = &now
	job.LeaseExpiresAt = &expiresAt
	job.UpdatedAt = now

	return job, nil
}

// UpdateProgress records the latest progress percentage for an active job
func (r *SQLiteRepository) UpdateProgress(ctx context.Context, id string, percent int) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 99 {
		percent = 99
	}

	query := `
		UPDATE export_jobs
		SET progress = ?, updated_at = ?
		WHERE id = ? AND status = 'active'
	`

	res, err := r.db.ExecContext(ctx, query, percent, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	if affected == 0 {
		return ErrJobNotFound
	}

	return nil
}

// Complete marks a job terminally completed with its result
func (r *SQLiteRepository) Complete(ctx context.Context, id string, result *models.ExportResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	query := `
		UPDATE export_jobs
		SET status = 'completed',
		    progress = 100,
		    result = ?,
		    failure_reason = NULL,
		    finished_at = ?,
		    updated_at = ?
		WHERE id = ?
	`

	nowUnix := time.Now().Unix()
	res, err := r.db.ExecContext(ctx, query, string(resultJSON), nowUnix, nowUnix, id)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	if affected == 0 {
		return ErrJobNotFound
	}

	return nil
}

// Retry puts a job back in the waiting state after the backoff delay
func (r *SQLiteRepository) Retry(ctx context.Context, id string, reason string, delay time.Duration) error {
	query := `
		UPDATE export_jobs
		SET status = 'waiting',
		    progress = 0,
		    failure_reason = ?,
		    leased_at = NULL,
		    lease_expires_at = NULL,
		    next_attempt_at = ?,
		    updated_at = ?
		WHERE id = ?
	`

	now := time.Now()
	res, err := r.db.ExecContext(ctx, query, reason, now.Add(delay).Unix(), now.Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to retry job: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to retry job: %w", err)
	}
	if affected == 0 {
		return ErrJobNotFound
	}

	return nil
}

// Fail marks a job terminally failed after exhausting its attempts
func (r *SQLiteRepository) Fail(ctx context.Context, id string, reason string) error {
	query := `
		UPDATE export_jobs
		SET status = 'failed',
		    failure_reason = ?,
		    finished_at = ?,
		    updated_at = ?
		WHERE id = ?
	`

	nowUnix := time.Now().Unix()
	res, err := r.db.ExecContext(ctx, query, reason, nowUnix, nowUnix, id)
	if err != nil {
		return fmt.Errorf("failed to fail job: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to fail job: %w", err)
	}
	if affected == 0 {
		return ErrJobNotFound
	}

	return nil
}

// Prune deletes terminal jobs beyond the retention caps
func (r *SQLiteRepository) Prune(ctx context.Context, age time.Duration, keep int) (int64, error) {
	cutoff := time.Now().Add(-age).Unix()

	// Age cap and count cap, whichever is reached first, per terminal status.
	query := `
		DELETE FROM export_jobs
		WHERE status IN ('completed', 'failed')
		  AND (
		    finished_at < ?
		    OR id NOT IN (
		      SELECT id FROM export_jobs j
		      WHERE j.status = export_jobs.status
		      ORDER BY j.finished_at DESC
		      LIMIT ?
		    )
		  )
	`

	res, err := r.db.ExecContext(ctx, query, cutoff, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune jobs: %w", err)
	}

	pruned, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to prune jobs: %w", err)
	}

	return pruned, nil
}
