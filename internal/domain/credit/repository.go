package credit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

const queryTimeout = 5 * time.Second

// grantBatchSize bounds one bulk-grant statement; underlying stores cap
// batch writes, and smaller batches keep each commit (and its audit row)
// independently durable.
const grantBatchSize = 500

type Repository interface {
	Adjust(ctx context.Context, accountID string, mode AdjustMode, amount int, reason, actor string) (Adjustment, error)
	DebitTx(ctx context.Context, tx *sqlx.Tx, accountID string, amount int, reason, actor string) (Adjustment, error)
	GrantToAll(ctx context.Context, amount int, reason, actor string) (int, error)
	Balance(ctx context.Context, accountID string) (int, error)
	ListEntries(ctx context.Context, accountID string, pagination Pagination) ([]LedgerEntry, error)
	ListAdminLog(ctx context.Context, pagination Pagination) ([]LedgerEntry, error)
}

// LedgerRepository provides the credit balance and audit trail operations.
// Balances are mutated only inside transactions that also write their audit
// entries; there is no code path that touches one without the other.
type LedgerRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Adjust applies one delta or set adjustment atomically and returns the
// balance before and after. Unseen accounts start from balance 0; the
// resulting balance is floored at 0.
func (r *LedgerRepository) Adjust(ctx context.Context, accountID string, mode AdjustMode, amount int, reason, actor string) (Adjustment, error) {
	if mode == ModeDelta && amount == 0 {
		return Adjustment{}, ErrInvalidAmount
	}
	if mode != ModeDelta && mode != ModeSet {
		return Adjustment{}, ErrInvalidAmount
	}

	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx2, &sql.TxOptions{})
	if err != nil {
		return Adjustment{}, fmt.Errorf("%w: begin tx", ErrInternal)
	}
	defer tx.Rollback()

	before, err := lockBalance(ctx2, tx, accountID)
	if err != nil {
		return Adjustment{}, err
	}

	after := before
	switch mode {
	case ModeDelta:
		after = before + amount
	case ModeSet:
		after = amount
	}
	if after < 0 {
		after = 0
	}

	_, err = tx.ExecContext(ctx2, `UPDATE accounts SET balance = $2, updated_at = NOW() WHERE id = $1`, accountID, after)
	if err != nil {
		return Adjustment{}, fmt.Errorf("%w: update balance", ErrInternal)
	}

	entry := LedgerEntry{
		AccountID:     accountID,
		Mode:          string(mode),
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Reason:        reason,
		Actor:         actor,
	}
	if err := insertAudit(ctx2, tx, entry); err != nil {
		return Adjustment{}, err
	}

	if err := tx.Commit(); err != nil {
		return Adjustment{}, fmt.Errorf("%w: commit tx", ErrInternal)
	}

	return Adjustment{Before: before, After: after}, nil
}

// DebitTx debits credits within a caller-owned transaction using a FOR UPDATE
// row lock, so the debit commits or aborts together with the job creation
// that follows it. This method does NOT commit or rollback — the caller does.
func (r *LedgerRepository) DebitTx(ctx context.Context, tx *sqlx.Tx, accountID string, amount int, reason, actor string) (Adjustment, error) {
	if amount <= 0 {
		return Adjustment{}, ErrInvalidAmount
	}

	before, err := lockBalance(ctx, tx, accountID)
	if err != nil {
		return Adjustment{}, err
	}

	if before < amount {
		return Adjustment{}, &InsufficientCreditsError{Needed: amount}
	}

	after := before - amount
	_, err = tx.ExecContext(ctx, `UPDATE accounts SET balance = $2, updated_at = NOW() WHERE id = $1`, accountID, after)
	if err != nil {
		return Adjustment{}, fmt.Errorf("%w: update balance", ErrInternal)
	}

	entry := LedgerEntry{
		AccountID:     accountID,
		Mode:          string(ModeDelta),
		Amount:        -amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Reason:        reason,
		Actor:         actor,
	}
	if err := insertAudit(ctx, tx, entry); err != nil {
		return Adjustment{}, err
	}

	return Adjustment{Before: before, After: after}, nil
}

// GrantToAll increments every account's balance, committed in bounded
// batches. Each batch writes its own admin audit row inside the same
// transaction, so batches already committed stay recorded even if a later
// batch fails.
func (r *LedgerRepository) GrantToAll(ctx context.Context, amount int, reason, actor string) (int, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	affected := 0
	lastID := ""

	for {
		var ids []string
		err := r.db.SelectContext(ctx, &ids, `
			SELECT id FROM accounts
			WHERE id > $1
			ORDER BY id
			LIMIT $2
		`, lastID, grantBatchSize)
		if err != nil {
			return affected, fmt.Errorf("%w: list accounts", ErrInternal)
		}
		if len(ids) == 0 {
			return affected, nil
		}

		if err := r.grantBatch(ctx, ids, amount, reason, actor); err != nil {
			return affected, err
		}

		affected += len(ids)
		lastID = ids[len(ids)-1]

		log.Info().
			Int("batch", len(ids)).
			Int("total", affected).
			Msg("Bulk credit grant batch committed")

		if len(ids) < grantBatchSize {
			return affected, nil
		}
	}
}

func (r *LedgerRepository) grantBatch(ctx context.Context, ids []string, amount int, reason, actor string) error {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("%w: begin tx", ErrInternal)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE accounts SET balance = balance + $1, updated_at = NOW()
		WHERE id = ANY($2)
	`, amount, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("%w: bulk update", ErrInternal)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO admin_credit_log (id, account_id, mode, amount, balance_before, balance_after, reason, actor, users_affected)
		VALUES ($1, NULL, 'delta', $2, 0, 0, $3, $4, $5)
	`, uuid.New().String(), amount, reason, actor, len(ids))
	if err != nil {
		return fmt.Errorf("%w: insert grant audit", ErrInternal)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit tx", ErrInternal)
	}
	return nil
}

// Balance returns the current balance; unknown accounts read as 0
func (r *LedgerRepository) Balance(ctx context.Context, accountID string) (int, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var balance int
	err := r.db.GetContext(ctx2, &balance, `SELECT balance FROM accounts WHERE id = $1`, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: get balance", ErrInternal)
	}
	return balance, nil
}

// ListEntries returns the account-scoped audit trail, newest first
func (r *LedgerRepository) ListEntries(ctx context.Context, accountID string, pagination Pagination) ([]LedgerEntry, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	limit := pagination.Limit
	if limit <= 0 {
		limit = 20
	}

	entries := make([]LedgerEntry, 0)
	err := r.db.SelectContext(ctx2, &entries, `
		SELECT id, account_id, mode, amount, balance_before, balance_after, reason, actor, created_at
		FROM credit_ledger
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, accountID, limit, pagination.Offset)
	if err != nil {
		return nil, fmt.Errorf("%w: list ledger entries", ErrInternal)
	}
	return entries, nil
}

// ListAdminLog returns the global audit trail, newest first
func (r *LedgerRepository) ListAdminLog(ctx context.Context, pagination Pagination) ([]LedgerEntry, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	limit := pagination.Limit
	if limit <= 0 {
		limit = 50
	}

	entries := make([]LedgerEntry, 0)
	err := r.db.SelectContext(ctx2, &entries, `
		SELECT id, COALESCE(account_id, '') AS account_id, mode, amount, balance_before, balance_after, reason, actor, created_at
		FROM admin_credit_log
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, pagination.Offset)
	if err != nil {
		return nil, fmt.Errorf("%w: list admin log", ErrInternal)
	}
	return entries, nil
}

// lockBalance upserts the account row (unseen accounts default to 0) and
// takes a FOR UPDATE lock on it.
func lockBalance(ctx context.Context, tx *sqlx.Tx, accountID string) (int, error) {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO accounts (id, balance) VALUES ($1, 0)
		ON CONFLICT (id) DO NOTHING
	`, accountID)
	if err != nil {
		return 0, fmt.Errorf("%w: ensure account", ErrInternal)
	}

	var balance int
	err = tx.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE id = $1 FOR UPDATE`, accountID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrAccountNotFound
		}
		return 0, fmt.Errorf("%w: lock account row", ErrInternal)
	}
	return balance, nil
}

// insertAudit writes the account-scoped and global audit rows for one
// adjustment within the caller's transaction.
func insertAudit(ctx context.Context, tx *sqlx.Tx, entry LedgerEntry) error {
	if entry.Reason == "" {
		entry.Reason = "credit balance adjustment"
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO credit_ledger (id, account_id, mode, amount, balance_before, balance_after, reason, actor)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, uuid.New().String(), entry.AccountID, entry.Mode, entry.Amount, entry.BalanceBefore, entry.BalanceAfter, entry.Reason, entry.Actor)
	if err != nil {
		return fmt.Errorf("%w: insert ledger entry", ErrInternal)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO admin_credit_log (id, account_id, mode, amount, balance_before, balance_after, reason, actor, users_affected)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL)
	`, uuid.New().String(), entry.AccountID, entry.Mode, entry.Amount, entry.BalanceBefore, entry.BalanceAfter, entry.Reason, entry.Actor)
	if err != nil {
		return fmt.Errorf("%w: insert admin log entry", ErrInternal)
	}

	return nil
}

var _ Repository = (*LedgerRepository)(nil)
