package hlr

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Repository defines lookup job data access
type Repository interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, id string) (*Job, error)
	GetForUpdateTx(ctx context.Context, tx *sqlx.Tx, id string) (*Job, error)
	SetQueuedTx(ctx context.Context, tx *sqlx.Tx, id string, requiredCredits int) error
	ListRecent(ctx context.Context, accountID string, limit int) ([]*Job, error)

	// Worker-side operations
	ClaimNext(ctx context.Context, lockID string, leaseUntil time.Time) (*Job, error)
	Checkpoint(ctx context.Context, id, lockID string, processed int) error
	Complete(ctx context.Context, id, lockID string, processed int, resultKey string) error
	ReleaseForRetry(ctx context.Context, id, lockID string, retryCount int, nextRetryAt time.Time, lastError string) error
	MarkFailed(ctx context.Context, id, lockID string, retryCount int, lastError string) error

	InsertResults(ctx context.Context, jobID string, results []Result) error
	ListResults(ctx context.Context, jobID string) ([]Result, error)

	// Retention
	ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]*Job, error)
	MarkPurged(ctx context.Context, id string) error
}

// insertBatchSize bounds one multi-row results insert
const insertBatchSize = 500

type repository struct {
	db *sqlx.DB
}

// NewRepository creates new lookup job repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, job *Job) error {
	query := `
		INSERT INTO hlr_jobs (
			id, account_id, name, file_key, file_type,
			total_parsed, total_numbers, required_credits,
			status, processed, retry_count, created_at, updated_at
		) VALUES (
			:id, :account_id, :name, :file_key, :file_type,
			:total_parsed, :total_numbers, :required_credits,
			:status, :processed, :retry_count, :created_at, :updated_at
		)
	`
	_, err := r.db.NamedExecContext(ctx, query, job)
	return err
}

func (r *repository) GetByID(ctx context.Context, id string) (*Job, error) {
	var job Job
	err := r.db.GetContext(ctx, &job, `SELECT * FROM hlr_jobs WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

// GetForUpdateTx locks the job row inside the caller's transaction so the
// run-state guards and the debit see a consistent picture.
func (r *repository) GetForUpdateTx(ctx context.Context, tx *sqlx.Tx, id string) (*Job, error) {
	var job Job
	err := tx.GetContext(ctx, &job, `SELECT * FROM hlr_jobs WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

func (r *repository) SetQueuedTx(ctx context.Context, tx *sqlx.Tx, id string, requiredCredits int) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE hlr_jobs SET
			status = 'queued',
			required_credits = $2,
			updated_at = NOW()
		WHERE id = $1
	`, id, requiredCredits)
	return err
}

func (r *repository) ListRecent(ctx context.Context, accountID string, limit int) ([]*Job, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	jobs := make([]*Job, 0)
	err := r.db.SelectContext(ctx, &jobs, `
		SELECT * FROM hlr_jobs
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, accountID, limit)
	return jobs, err
}

// ClaimNext leases the oldest runnable lookup job, same contract as the
// campaign claim.
func (r *repository) ClaimNext(ctx context.Context, lockID string, leaseUntil time.Time) (*Job, error) {
	query := `
		UPDATE hlr_jobs SET
			status = 'running',
			lock_id = $1,
			lock_until = $2,
			started_at = COALESCE(started_at, NOW()),
			updated_at = NOW()
		WHERE id = (
			SELECT id FROM hlr_jobs
			WHERE status IN ('queued', 'running')
			  AND (next_retry_at IS NULL OR next_retry_at <= NOW())
			  AND (lock_until IS NULL OR lock_until < NOW())
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *
	`
	var job Job
	err := r.db.GetContext(ctx, &job, query, lockID, leaseUntil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

func (r *repository) Checkpoint(ctx context.Context, id, lockID string, processed int) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE hlr_jobs SET
			processed = $3,
			status = 'queued',
			retry_count = 0,
			next_retry_at = NULL,
			last_error = NULL,
			lock_id = NULL,
			lock_until = NULL,
			updated_at = NOW()
		WHERE id = $1 AND lock_id = $2
	`, id, lockID, processed)
	if err != nil {
		return err
	}
	return requireLease(result)
}

func (r *repository) Complete(ctx context.Context, id, lockID string, processed int, resultKey string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE hlr_jobs SET
			processed = $3,
			result_key = $4,
			status = 'completed',
			lock_id = NULL,
			lock_until = NULL,
			finished_at = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND lock_id = $2
	`, id, lockID, processed, resultKey)
	if err != nil {
		return err
	}
	return requireLease(result)
}

func (r *repository) ReleaseForRetry(ctx context.Context, id, lockID string, retryCount int, nextRetryAt time.Time, lastError string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE hlr_jobs SET
			status = 'queued',
			retry_count = $3,
			next_retry_at = $4,
			last_error = $5,
			lock_id = NULL,
			lock_until = NULL,
			updated_at = NOW()
		WHERE id = $1 AND lock_id = $2
	`, id, lockID, retryCount, nextRetryAt, lastError)
	if err != nil {
		return err
	}
	return requireLease(result)
}

func (r *repository) MarkFailed(ctx context.Context, id, lockID string, retryCount int, lastError string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE hlr_jobs SET
			status = 'failed',
			retry_count = $3,
			last_error = $4,
			lock_id = NULL,
			lock_until = NULL,
			finished_at = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND lock_id = $2
	`, id, lockID, retryCount, lastError)
	if err != nil {
		return err
	}
	return requireLease(result)
}

// InsertResults writes resolved numbers in bounded multi-row batches
func (r *repository) InsertResults(ctx context.Context, jobID string, results []Result) error {
	for start := 0; start < len(results); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(results) {
			end = len(results)
		}
		if err := r.insertBatch(ctx, jobID, results[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (r *repository) insertBatch(ctx context.Context, jobID string, batch []Result) error {
	values := make([]string, 0, len(batch))
	args := make([]interface{}, 0, len(batch)*8)
	pos := 1

	for _, res := range batch {
		values = append(values, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, NOW())",
			pos, pos+1, pos+2, pos+3, pos+4, pos+5, pos+6, pos+7))
		args = append(args, uuid.New().String(), jobID, res.Number, res.Valid, res.Reachable, res.Status, res.Carrier, res.Country)
		pos += 8
	}

	query := `
		INSERT INTO hlr_results (id, job_id, number, valid, reachable, status, carrier, country, created_at)
		VALUES ` + strings.Join(values, ", ")

	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *repository) ListResults(ctx context.Context, jobID string) ([]Result, error) {
	results := make([]Result, 0)
	err := r.db.SelectContext(ctx, &results, `
		SELECT * FROM hlr_results
		WHERE job_id = $1
		ORDER BY created_at, number
	`, jobID)
	return results, err
}

func (r *repository) ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 100
	}
	jobs := make([]*Job, 0)
	err := r.db.SelectContext(ctx, &jobs, `
		SELECT * FROM hlr_jobs
		WHERE status = 'completed'
		  AND finished_at < $1
		  AND purged_at IS NULL
		ORDER BY finished_at
		LIMIT $2
	`, cutoff, limit)
	return jobs, err
}

func (r *repository) MarkPurged(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM hlr_results WHERE job_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE hlr_jobs SET result_key = NULL, purged_at = NOW(), updated_at = NOW() WHERE id = $1
	`, id); err != nil {
		return err
	}

	return tx.Commit()
}

func requireLease(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrLeaseLost
	}
	return nil
}
