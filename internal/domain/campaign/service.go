package campaign

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/smsfleet/smsfleet-api/internal/domain/credit"
	"github.com/smsfleet/smsfleet-api/internal/domain/recipient"
	"github.com/smsfleet/smsfleet-api/internal/domain/sms"
	"github.com/smsfleet/smsfleet-api/internal/pkg/storage"
)

// WakeChannel is the pub/sub channel the worker subscribes to for an early
// tick after a new admission.
const WakeChannel = "smsfleet:worker:wake"

// Service implements campaign admission and the read-only status surface.
// Admission debits the ledger and writes the campaign row in one transaction,
// so a crash between the two is impossible.
type Service struct {
	db      *sqlx.DB
	repo    Repository
	credits *credit.Service
	files   storage.Storage
	rdb     *redis.Client // nil when wake-up is disabled
}

func NewService(db *sqlx.DB, repo Repository, credits *credit.Service, files storage.Storage, rdb *redis.Client) *Service {
	return &Service{
		db:      db,
		repo:    repo,
		credits: credits,
		files:   files,
		rdb:     rdb,
	}
}

// Create admits one campaign: normalizes the recipient source, computes the
// segment cost server-side, then debits and persists atomically.
func (s *Service) Create(ctx context.Context, accountID string, req *CreateCampaignRequest) (*CreateCampaignResponse, error) {
	senderID := strings.TrimSpace(req.SenderID)
	message := req.Message
	if senderID == "" || strings.TrimSpace(message) == "" {
		return nil, ErrMissingRequiredField
	}
	if req.FileKey == "" && strings.TrimSpace(req.Recipients) == "" {
		return nil, ErrMissingRequiredField
	}

	if req.ScheduledAt != nil && !req.ScheduledAt.After(time.Now()) {
		return nil, ErrInvalidScheduledTime
	}

	id := uuid.New().String()

	// Inline recipient text is persisted as the campaign's source object so
	// the worker re-fetches every campaign through the same path.
	fileKey := req.FileKey
	if fileKey == "" {
		fileKey = fmt.Sprintf("campaigns/%s/recipients.txt", id)
		if err := s.files.Put(ctx, fileKey, strings.NewReader(req.Recipients), "text/plain"); err != nil {
			return nil, fmt.Errorf("store recipient source: %w", err)
		}
	}

	raw, err := s.fetchSource(ctx, fileKey)
	if err != nil {
		return nil, err
	}

	parsed := recipient.Parse(raw, fileType(req.FileType), parseOptions(req.CountryCode, req.NationalLength))
	if parsed.TotalParsed > MaxRecipients {
		return nil, ErrTooManyRecipients
	}
	if len(parsed.Sendable) == 0 {
		return nil, ErrNoSendableNumbers
	}

	analysis := sms.Analyze(message)
	required := parsed.TotalParsed * analysis.Segments

	status := StatusQueued
	if req.ScheduledAt != nil {
		status = StatusScheduled
	}

	now := time.Now()
	c := &Campaign{
		ID:              id,
		AccountID:       accountID,
		SenderID:        senderID,
		Message:         message,
		Encoding:        string(analysis.Encoding),
		Segments:        analysis.Segments,
		FileKey:         fileKey,
		FileType:        string(fileType(req.FileType)),
		CountryCode:     req.CountryCode,
		NationalLength:  req.NationalLength,
		TotalParsed:     parsed.TotalParsed,
		InvalidCount:    parsed.Invalid,
		DuplicateCount:  parsed.Duplicates,
		TotalRecipients: len(parsed.Sendable),
		RequiredCredits: required,
		Status:          status,
		ScheduledAt:     req.ScheduledAt,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	adj, err := s.admit(ctx, c)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("campaign_id", c.ID).
		Str("account_id", accountID).
		Int("recipients", c.TotalRecipients).
		Int("segments", c.Segments).
		Int("credits", required).
		Str("status", string(status)).
		Msg("Campaign admitted")

	if status == StatusQueued {
		s.wakeWorker(ctx)
	}

	return &CreateCampaignResponse{
		ID:              c.ID,
		Status:          c.Status,
		Encoding:        c.Encoding,
		Segments:        c.Segments,
		TotalParsed:     c.TotalParsed,
		Invalid:         c.InvalidCount,
		Duplicates:      c.DuplicateCount,
		TotalRecipients: c.TotalRecipients,
		RequiredCredits: c.RequiredCredits,
		BalanceAfter:    adj.After,
	}, nil
}

// admit runs the debit and the campaign insert in one transaction
func (s *Service) admit(ctx context.Context, c *Campaign) (credit.Adjustment, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return credit.Adjustment{}, fmt.Errorf("begin admission tx: %w", err)
	}
	defer tx.Rollback()

	reason := fmt.Sprintf("campaign %s (%d recipients x %d segments)", c.ID, c.TotalParsed, c.Segments)
	adj, err := s.credits.DebitTx(ctx, tx, c.AccountID, c.RequiredCredits, reason, "system")
	if err != nil {
		return credit.Adjustment{}, err
	}

	if err := s.repo.CreateTx(ctx, tx, c); err != nil {
		return credit.Adjustment{}, fmt.Errorf("create campaign: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return credit.Adjustment{}, fmt.Errorf("commit admission tx: %w", err)
	}
	return adj, nil
}

// Estimate previews cost without debiting anything
func (s *Service) Estimate(ctx context.Context, req *EstimateRequest) (*EstimateResponse, error) {
	var raw []byte
	switch {
	case req.FileKey != "":
		fetched, err := s.fetchSource(ctx, req.FileKey)
		if err != nil {
			return nil, err
		}
		raw = fetched
	case strings.TrimSpace(req.Recipients) != "":
		raw = []byte(req.Recipients)
	default:
		return nil, ErrMissingRequiredField
	}

	parsed := recipient.Parse(raw, fileType(req.FileType), parseOptions(req.CountryCode, req.NationalLength))
	analysis := sms.Analyze(req.Message)

	return &EstimateResponse{
		Encoding:        string(analysis.Encoding),
		Length:          analysis.Length,
		Segments:        analysis.Segments,
		TotalParsed:     parsed.TotalParsed,
		Invalid:         parsed.Invalid,
		Duplicates:      parsed.Duplicates,
		TotalRecipients: len(parsed.Sendable),
		RequiredCredits: parsed.TotalParsed * analysis.Segments,
	}, nil
}

// Get returns one campaign, scoped to its owner
func (s *Service) Get(ctx context.Context, accountID, id string) (*Campaign, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.AccountID != accountID {
		return nil, ErrCampaignNotFound
	}
	return c, nil
}

// ListRecent returns the account's newest campaigns
func (s *Service) ListRecent(ctx context.Context, accountID string, limit int) ([]*Campaign, error) {
	return s.repo.ListRecent(ctx, accountID, limit)
}

// Waves returns the per-wave dispatch log of an owned campaign
func (s *Service) Waves(ctx context.Context, accountID, id string, limit int) ([]*WaveLog, error) {
	if _, err := s.Get(ctx, accountID, id); err != nil {
		return nil, err
	}
	return s.repo.ListWaves(ctx, id, limit)
}

func (s *Service) fetchSource(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.files.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("fetch recipient source: %w", err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read recipient source: %w", err)
	}
	return raw, nil
}

func (s *Service) wakeWorker(ctx context.Context) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Publish(ctx, WakeChannel, "tick").Err(); err != nil {
		log.Warn().Err(err).Msg("Worker wake-up publish failed")
	}
}

func fileType(declared string) recipient.FileType {
	if declared == string(recipient.FileTypeCSV) {
		return recipient.FileTypeCSV
	}
	return recipient.FileTypeText
}

func parseOptions(countryCode string, nationalLength int) recipient.Options {
	if countryCode != "" && nationalLength > 0 {
		return recipient.Options{Strict: &recipient.StrictRule{
			CountryCode:    countryCode,
			NationalLength: nationalLength,
		}}
	}
	return recipient.Options{}
}
