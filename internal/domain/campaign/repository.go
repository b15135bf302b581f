package campaign

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Repository defines campaign data access
type Repository interface {
	CreateTx(ctx context.Context, tx *sqlx.Tx, c *Campaign) error
	GetByID(ctx context.Context, id string) (*Campaign, error)
	ListRecent(ctx context.Context, accountID string, limit int) ([]*Campaign, error)

	// Worker-side operations
	ClaimNext(ctx context.Context, lockID string, leaseUntil time.Time) (*Campaign, error)
	Checkpoint(ctx context.Context, id, lockID string, processedIndex, delivered, failed int, status Status, finished bool) error
	ReleaseForRetry(ctx context.Context, id, lockID string, retryCount int, nextRetryAt time.Time, lastError string) error
	MarkFailed(ctx context.Context, id, lockID string, retryCount int, lastError string) error
	RecordWave(ctx context.Context, wave *WaveLog) error
	ListWaves(ctx context.Context, campaignID string, limit int) ([]*WaveLog, error)
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates new campaign repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateTx(ctx context.Context, tx *sqlx.Tx, c *Campaign) error {
	query := `
		INSERT INTO campaigns (
			id, account_id, sender_id, message, encoding, segments,
			file_key, file_type, country_code, national_length,
			total_parsed, invalid_count, duplicate_count, total_recipients, required_credits,
			status, processed_index, delivered, failed, skipped,
			retry_count, scheduled_at, created_at, updated_at
		) VALUES (
			:id, :account_id, :sender_id, :message, :encoding, :segments,
			:file_key, :file_type, :country_code, :national_length,
			:total_parsed, :invalid_count, :duplicate_count, :total_recipients, :required_credits,
			:status, :processed_index, :delivered, :failed, :skipped,
			:retry_count, :scheduled_at, :created_at, :updated_at
		)
	`
	_, err := tx.NamedExecContext(ctx, query, c)
	return err
}

func (r *repository) GetByID(ctx context.Context, id string) (*Campaign, error) {
	var c Campaign
	err := r.db.GetContext(ctx, &c, `SELECT * FROM campaigns WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCampaignNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *repository) ListRecent(ctx context.Context, accountID string, limit int) ([]*Campaign, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	campaigns := make([]*Campaign, 0)
	err := r.db.SelectContext(ctx, &campaigns, `
		SELECT * FROM campaigns
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, accountID, limit)
	return campaigns, err
}

// ClaimNext atomically leases the oldest eligible campaign: due for delivery,
// past its retry gate, and not under a valid lease. SKIP LOCKED makes a
// concurrent claim settle on one winner; the loser sees no row and this
// returns (nil, nil). Returning no row mutates nothing.
func (r *repository) ClaimNext(ctx context.Context, lockID string, leaseUntil time.Time) (*Campaign, error) {
	query := `
		UPDATE campaigns SET
			status = 'sending',
			lock_id = $1,
			lock_until = $2,
			started_at = COALESCE(started_at, NOW()),
			updated_at = NOW()
		WHERE id = (
			SELECT id FROM campaigns
			WHERE status IN ('queued', 'scheduled', 'sending')
			  AND (scheduled_at IS NULL OR scheduled_at <= NOW())
			  AND (next_retry_at IS NULL OR next_retry_at <= NOW())
			  AND (lock_until IS NULL OR lock_until < NOW())
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *
	`
	var c Campaign
	err := r.db.GetContext(ctx, &c, query, lockID, leaseUntil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// Checkpoint persists chunk progress and releases the lease. Guarded by
// lock_id so a worker whose lease expired and was reclaimed cannot overwrite
// the new holder's progress.
func (r *repository) Checkpoint(ctx context.Context, id, lockID string, processedIndex, delivered, failed int, status Status, finished bool) error {
	query := `
		UPDATE campaigns SET
			processed_index = $3,
			delivered = $4,
			failed = $5,
			status = $6,
			retry_count = 0,
			next_retry_at = NULL,
			last_error = NULL,
			lock_id = NULL,
			lock_until = NULL,
			finished_at = CASE WHEN $7 THEN NOW() ELSE finished_at END,
			updated_at = NOW()
		WHERE id = $1 AND lock_id = $2
	`
	result, err := r.db.ExecContext(ctx, query, id, lockID, processedIndex, delivered, failed, status, finished)
	if err != nil {
		return err
	}
	return requireLease(result)
}

// ReleaseForRetry parks the campaign behind a retry gate after a transient
// failure, releasing the lease.
func (r *repository) ReleaseForRetry(ctx context.Context, id, lockID string, retryCount int, nextRetryAt time.Time, lastError string) error {
	query := `
		UPDATE campaigns SET
			status = 'queued',
			retry_count = $3,
			next_retry_at = $4,
			last_error = $5,
			lock_id = NULL,
			lock_until = NULL,
			updated_at = NOW()
		WHERE id = $1 AND lock_id = $2
	`
	result, err := r.db.ExecContext(ctx, query, id, lockID, retryCount, nextRetryAt, lastError)
	if err != nil {
		return err
	}
	return requireLease(result)
}

// MarkFailed transitions the campaign to its terminal failed state
func (r *repository) MarkFailed(ctx context.Context, id, lockID string, retryCount int, lastError string) error {
	query := `
		UPDATE campaigns SET
			status = 'failed',
			retry_count = $3,
			last_error = $4,
			lock_id = NULL,
			lock_until = NULL,
			finished_at = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND lock_id = $2
	`
	result, err := r.db.ExecContext(ctx, query, id, lockID, retryCount, lastError)
	if err != nil {
		return err
	}
	return requireLease(result)
}

func (r *repository) RecordWave(ctx context.Context, wave *WaveLog) error {
	if wave.ID == "" {
		wave.ID = uuid.New().String()
	}
	query := `
		INSERT INTO campaign_waves (id, campaign_id, from_index, count, ok_count, fail_count, sample, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	`
	_, err := r.db.ExecContext(ctx, query,
		wave.ID,
		wave.CampaignID,
		wave.FromIndex,
		wave.Count,
		wave.OKCount,
		wave.FailCount,
		wave.Sample,
	)
	return err
}

func (r *repository) ListWaves(ctx context.Context, campaignID string, limit int) ([]*WaveLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	waves := make([]*WaveLog, 0)
	err := r.db.SelectContext(ctx, &waves, `
		SELECT * FROM campaign_waves
		WHERE campaign_id = $1
		ORDER BY from_index
		LIMIT $2
	`, campaignID, limit)
	return waves, err
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
