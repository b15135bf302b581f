package hlr

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/smsfleet/smsfleet-api/internal/domain/credit"
	"github.com/smsfleet/smsfleet-api/internal/domain/recipient"
	"github.com/smsfleet/smsfleet-api/internal/pkg/storage"
)

// DownloadTTL bounds how long a result download link stays valid
const DownloadTTL = 10 * time.Minute

// Service implements lookup job admission, the status surface and retention
// cleanup. Running a saved job debits the ledger inside the same transaction
// that flips the job to queued.
type Service struct {
	db               *sqlx.DB
	repo             Repository
	credits          *credit.Service
	files            storage.Storage
	numbersPerCredit int
	retention        time.Duration
}

func NewService(db *sqlx.DB, repo Repository, credits *credit.Service, files storage.Storage, numbersPerCredit int, retention time.Duration) *Service {
	if numbersPerCredit <= 0 {
		numbersPerCredit = 2
	}
	return &Service{
		db:               db,
		repo:             repo,
		credits:          credits,
		files:            files,
		numbersPerCredit: numbersPerCredit,
		retention:        retention,
	}
}

// Save stores a number list and prices it without touching the ledger
func (s *Service) Save(ctx context.Context, accountID string, req *SaveRequest) (*SaveResponse, error) {
	if req.FileKey == "" && strings.TrimSpace(req.Numbers) == "" {
		return nil, ErrNoSendableNumbers
	}

	id := uuid.New().String()

	fileKey := req.FileKey
	if fileKey == "" {
		fileKey = fmt.Sprintf("hlr/%s/numbers.txt", id)
		if err := s.files.Put(ctx, fileKey, strings.NewReader(req.Numbers), "text/plain"); err != nil {
			return nil, fmt.Errorf("store number source: %w", err)
		}
	}

	raw, err := s.fetchSource(ctx, fileKey)
	if err != nil {
		return nil, err
	}

	parsed := recipient.Parse(raw, fileType(req.FileType), recipient.Options{})
	if parsed.TotalParsed > MaxNumbers {
		return nil, ErrTooManyNumbers
	}
	if len(parsed.Sendable) == 0 {
		return nil, ErrNoSendableNumbers
	}

	now := time.Now()
	job := &Job{
		ID:              id,
		AccountID:       accountID,
		Name:            strings.TrimSpace(req.Name),
		FileKey:         fileKey,
		FileType:        string(fileType(req.FileType)),
		TotalParsed:     parsed.TotalParsed,
		TotalNumbers:    len(parsed.Sendable),
		RequiredCredits: s.price(parsed.TotalParsed),
		Status:          StatusSaved,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create lookup job: %w", err)
	}

	log.Info().
		Str("job_id", job.ID).
		Str("account_id", accountID).
		Int("numbers", job.TotalNumbers).
		Int("credits", job.RequiredCredits).
		Msg("Lookup job saved")

	return &SaveResponse{
		ID:              job.ID,
		Status:          job.Status,
		TotalParsed:     job.TotalParsed,
		TotalNumbers:    job.TotalNumbers,
		RequiredCredits: job.RequiredCredits,
	}, nil
}

// Run admits a saved job: inside one transaction it locks the job row,
// rejects double-runs, re-prices from the stored source and debits the
// ledger. The job only becomes queued if the debit commits.
func (s *Service) Run(ctx context.Context, accountID, jobID string) (*RunResponse, error) {
	raw, srcType, err := s.peekSource(ctx, jobID, accountID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin run tx: %w", err)
	}
	defer tx.Rollback()

	job, err := s.repo.GetForUpdateTx(ctx, tx, jobID)
	if err != nil {
		return nil, err
	}
	if job.AccountID != accountID {
		return nil, ErrJobNotFound
	}

	switch job.Status {
	case StatusQueued, StatusRunning:
		return nil, ErrAlreadyRunning
	case StatusCompleted:
		return nil, ErrAlreadyCompleted
	case StatusFailed, StatusSaved:
		// runnable
	}

	// Re-price server-side from the stored source, never from the row alone
	parsed := recipient.Parse(raw, recipient.FileType(srcType), recipient.Options{})
	if len(parsed.Sendable) == 0 {
		return nil, ErrNoSendableNumbers
	}
	required := s.price(parsed.TotalParsed)

	reason := fmt.Sprintf("hlr lookup %s (%d numbers)", job.ID, parsed.TotalParsed)
	adj, err := s.credits.DebitTx(ctx, tx, accountID, required, reason, "system")
	if err != nil {
		return nil, err
	}

	if err := s.repo.SetQueuedTx(ctx, tx, job.ID, required); err != nil {
		return nil, fmt.Errorf("queue lookup job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit run tx: %w", err)
	}

	log.Info().
		Str("job_id", job.ID).
		Str("account_id", accountID).
		Int("credits", required).
		Msg("Lookup job admitted")

	return &RunResponse{
		ID:              job.ID,
		Status:          StatusQueued,
		RequiredCredits: required,
		BalanceAfter:    adj.After,
	}, nil
}

// Status returns the progress view for one owned job
func (s *Service) Status(ctx context.Context, accountID, jobID string) (*StatusResponse, error) {
	job, err := s.get(ctx, accountID, jobID)
	if err != nil {
		return nil, err
	}
	return &StatusResponse{
		ID:        job.ID,
		Status:    job.Status,
		Processed: job.Processed,
		Total:     job.TotalNumbers,
	}, nil
}

// Download returns a time-limited link to the completed result artifact
func (s *Service) Download(ctx context.Context, accountID, jobID string) (*DownloadResponse, error) {
	job, err := s.get(ctx, accountID, jobID)
	if err != nil {
		return nil, err
	}
	if job.PurgedAt != nil {
		return nil, ErrResultPurged
	}
	if job.Status != StatusCompleted || job.ResultKey == nil {
		return nil, ErrNotReady
	}

	url, err := s.files.PresignGet(ctx, *job.ResultKey, DownloadTTL)
	if err != nil {
		return nil, fmt.Errorf("presign result artifact: %w", err)
	}

	return &DownloadResponse{
		URL:       url,
		ExpiresIn: int(DownloadTTL.Seconds()),
	}, nil
}

// List returns the account's newest lookup jobs
func (s *Service) List(ctx context.Context, accountID string, limit int) ([]*Job, error) {
	return s.repo.ListRecent(ctx, accountID, limit)
}

// Cleanup purges result artifacts past the retention window. Claim-and-act
// at small scale: each expired job is purged independently so one failure
// does not block the rest.
func (s *Service) Cleanup(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.retention)

	jobs, err := s.repo.ListExpired(ctx, cutoff, 100)
	if err != nil {
		return 0, fmt.Errorf("list expired lookup jobs: %w", err)
	}

	purged := 0
	for _, job := range jobs {
		if job.ResultKey != nil {
			if err := s.files.Delete(ctx, *job.ResultKey); err != nil {
				log.Warn().Err(err).Str("job_id", job.ID).Msg("Result artifact delete failed")
				continue
			}
		}
		if err := s.repo.MarkPurged(ctx, job.ID); err != nil {
			log.Warn().Err(err).Str("job_id", job.ID).Msg("Purge bookkeeping failed")
			continue
		}
		purged++
	}

	if purged > 0 {
		log.Info().Int("purged", purged).Time("cutoff", cutoff).Msg("Lookup retention cleanup completed")
	}
	return purged, nil
}

func (s *Service) get(ctx context.Context, accountID, jobID string) (*Job, error) {
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.AccountID != accountID {
		return nil, ErrJobNotFound
	}
	return job, nil
}

func (s *Service) price(totalParsed int) int {
	return (totalParsed + s.numbersPerCredit - 1) / s.numbersPerCredit
}

func (s *Service) fetchSource(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.files.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("fetch number source: %w", err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read number source: %w", err)
	}
	return raw, nil
}

// peekSource reads the job's source outside the admission transaction to keep
// storage I/O out of the row-lock window.
func (s *Service) peekSource(ctx context.Context, jobID, accountID string) ([]byte, string, error) {
	job, err := s.get(ctx, accountID, jobID)
	if err != nil {
		return nil, "", err
	}
	raw, err := s.fetchSource(ctx, job.FileKey)
	if err != nil {
		return nil, "", err
	}
	return raw, job.FileType, nil
}

func fileType(declared string) recipient.FileType {
	if declared == string(recipient.FileTypeCSV) {
		return recipient.FileTypeCSV
	}
	return recipient.FileTypeText
}
