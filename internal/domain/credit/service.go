package credit

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

// Service exposes credit ledger operations to handlers and to the other
// domains that charge credits during job admission.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Balance(ctx context.Context, accountID string) (int, error) {
	if strings.TrimSpace(accountID) == "" {
		return 0, ErrAccountNotFound
	}
	return s.repo.Balance(ctx, accountID)
}

// Adjust applies one admin adjustment. Delta mode adds a signed amount; set
// mode replaces the balance outright. Either way the result never goes below
// zero and both audit trails record before and after.
func (s *Service) Adjust(ctx context.Context, accountID string, mode AdjustMode, amount int, reason, actor string) (Adjustment, error) {
	if strings.TrimSpace(accountID) == "" {
		return Adjustment{}, ErrAccountNotFound
	}

	adj, err := s.repo.Adjust(ctx, accountID, mode, amount, reason, actor)
	if err != nil {
		return Adjustment{}, err
	}

	log.Info().
		Str("account_id", accountID).
		Str("mode", string(mode)).
		Int("amount", amount).
		Int("before", adj.Before).
		Int("after", adj.After).
		Str("actor", actor).
		Msg("Credit balance adjusted")

	return adj, nil
}

// DebitTx charges credits inside the caller's transaction so the debit and
// the job row it pays for commit or abort as one unit.
func (s *Service) DebitTx(ctx context.Context, tx *sqlx.Tx, accountID string, amount int, reason, actor string) (Adjustment, error) {
	return s.repo.DebitTx(ctx, tx, accountID, amount, reason, actor)
}

// GrantToAll adds the amount to every account and returns how many accounts
// were credited.
func (s *Service) GrantToAll(ctx context.Context, amount int, reason, actor string) (int, error) {
	affected, err := s.repo.GrantToAll(ctx, amount, reason, actor)
	if err != nil {
		return affected, err
	}

	log.Info().
		Int("amount", amount).
		Int("accounts", affected).
		Str("actor", actor).
		Msg("Bulk credit grant completed")

	return affected, nil
}

func (s *Service) History(ctx context.Context, accountID string, pagination Pagination) ([]LedgerEntry, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, ErrAccountNotFound
	}
	return s.repo.ListEntries(ctx, accountID, pagination)
}

func (s *Service) AdminLog(ctx context.Context, pagination Pagination) ([]LedgerEntry, error) {
	return s.repo.ListAdminLog(ctx, pagination)
}
