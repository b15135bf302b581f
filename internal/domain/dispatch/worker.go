package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/smsfleet/smsfleet-api/internal/domain/campaign"
	"github.com/smsfleet/smsfleet-api/internal/domain/recipient"
	"github.com/smsfleet/smsfleet-api/internal/pkg/smsgateway"
	"github.com/smsfleet/smsfleet-api/internal/pkg/storage"
)

// Config tunes one worker instance. LeaseDuration must exceed the expected
// duration of a tick, otherwise a legitimate holder's lease can expire
// mid-chunk and another worker may re-attempt the same recipients.
type Config struct {
	ChunkSize     int
	Concurrency   int
	WavePause     time.Duration
	LeaseDuration time.Duration
	RetryCap      int
	BackoffBase   time.Duration
	BackoffMax    time.Duration
}

// TickResult reports what one tick did
type TickResult struct {
	Processed int             `json:"processed"` // 0 or 1
	JobID     string          `json:"job_id,omitempty"`
	Status    campaign.Status `json:"status,omitempty"`
}

// Worker advances at most one campaign per tick. Correctness rests entirely
// on the lease held in the database, so any number of worker instances may
// tick concurrently against the same store.
type Worker struct {
	cfg    Config
	repo   campaign.Repository
	files  storage.Storage
	sender smsgateway.Sender
}

func NewWorker(cfg Config, repo campaign.Repository, files storage.Storage, sender smsgateway.Sender) *Worker {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 200
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	if cfg.RetryCap <= 0 {
		cfg.RetryCap = 5
	}
	return &Worker{
		cfg:    cfg,
		repo:   repo,
		files:  files,
		sender: sender,
	}
}

// Tick claims one eligible campaign, dispatches the next chunk and
// checkpoints progress. Losing the claim race, or finding nothing eligible,
// is a normal empty tick.
func (w *Worker) Tick(ctx context.Context) (TickResult, error) {
	lockID := uuid.New().String()

	c, err := w.repo.ClaimNext(ctx, lockID, time.Now().Add(w.cfg.LeaseDuration))
	if err != nil {
		return TickResult{}, fmt.Errorf("claim campaign: %w", err)
	}
	if c == nil {
		return TickResult{}, nil
	}

	logger := log.With().Str("campaign_id", c.ID).Str("lock_id", lockID).Logger()
	logger.Debug().Int("processed_index", c.ProcessedIndex).Msg("Campaign claimed")

	status, err := w.process(ctx, c, lockID)
	if err != nil {
		status = w.handleFailure(ctx, c, lockID, err)
	}

	return TickResult{Processed: 1, JobID: c.ID, Status: status}, nil
}

// process runs steps 3-5 of a tick: resolve work, dispatch one chunk,
// checkpoint. The returned status is the campaign's state after checkpoint.
func (w *Worker) process(ctx context.Context, c *campaign.Campaign, lockID string) (campaign.Status, error) {
	// A job missing its message or sender can never send; retrying cannot
	// help, so it fails immediately.
	if strings.TrimSpace(c.Message) == "" || strings.TrimSpace(c.SenderID) == "" {
		if err := w.repo.MarkFailed(ctx, c.ID, lockID, c.RetryCount, "campaign is missing message or sender"); err != nil {
			return "", err
		}
		log.Error().Str("campaign_id", c.ID).Msg("Campaign failed validation at dispatch time")
		return campaign.StatusFailed, nil
	}

	sendable, err := w.resolveSendable(ctx, c)
	if err != nil {
		return "", err
	}

	if c.ProcessedIndex >= len(sendable) {
		return w.finalize(ctx, c, lockID, c.ProcessedIndex, c.Delivered, c.Failed)
	}

	end := c.ProcessedIndex + w.cfg.ChunkSize
	if end > len(sendable) {
		end = len(sendable)
	}
	chunk := sendable[c.ProcessedIndex:end]

	delivered, failed, err := w.dispatchChunk(ctx, c, chunk, c.ProcessedIndex)
	if err != nil {
		return "", err
	}

	newIndex := end
	totalDelivered := c.Delivered + delivered
	totalFailed := c.Failed + failed

	if newIndex >= len(sendable) {
		return w.finalize(ctx, c, lockID, newIndex, totalDelivered, totalFailed)
	}

	if err := w.repo.Checkpoint(ctx, c.ID, lockID, newIndex, totalDelivered, totalFailed, campaign.StatusQueued, false); err != nil {
		return "", err
	}

	log.Info().
		Str("campaign_id", c.ID).
		Int("processed_index", newIndex).
		Int("total", len(sendable)).
		Int("delivered", delivered).
		Int("failed", failed).
		Msg("Chunk dispatched, campaign re-queued")

	return campaign.StatusQueued, nil
}

func (w *Worker) finalize(ctx context.Context, c *campaign.Campaign, lockID string, index, delivered, failed int) (campaign.Status, error) {
	status := campaign.StatusCompleted
	if failed > 0 {
		status = campaign.StatusCompletedWithErrors
	}

	if err := w.repo.Checkpoint(ctx, c.ID, lockID, index, delivered, failed, status, true); err != nil {
		return "", err
	}

	log.Info().
		Str("campaign_id", c.ID).
		Int("delivered", delivered).
		Int("failed", failed).
		Str("status", string(status)).
		Msg("Campaign finished")

	return status, nil
}

// resolveSendable re-fetches the recipient source and re-derives the sendable
// list exactly as admission did. Parsing is deterministic, so processed_index
// refers to the same recipients on every tick.
func (w *Worker) resolveSendable(ctx context.Context, c *campaign.Campaign) ([]string, error) {
	rc, err := w.files.Get(ctx, c.FileKey)
	if err != nil {
		return nil, fmt.Errorf("fetch recipient source: %w", err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read recipient source: %w", err)
	}

	opts := recipient.Options{}
	if c.CountryCode != "" && c.NationalLength > 0 {
		opts.Strict = &recipient.StrictRule{
			CountryCode:    c.CountryCode,
			NationalLength: c.NationalLength,
		}
	}

	parsed := recipient.Parse(raw, recipient.FileType(c.FileType), opts)
	return parsed.Sendable, nil
}

type sendOutcome struct {
	number   string
	accepted bool
	code     string
}

// dispatchChunk fans the chunk out in bounded waves, pausing between waves,
// and records one wave log per burst. Gateway rejections advance the campaign
// as failures; only infrastructure errors abort the tick.
func (w *Worker) dispatchChunk(ctx context.Context, c *campaign.Campaign, chunk []string, fromIndex int) (delivered, failed int, err error) {
	for start := 0; start < len(chunk); start += w.cfg.Concurrency {
		end := start + w.cfg.Concurrency
		if end > len(chunk) {
			end = len(chunk)
		}
		wave := chunk[start:end]

		outcomes := w.sendWave(ctx, c, wave)

		ok := 0
		for _, o := range outcomes {
			if o.accepted {
				ok++
			}
		}
		delivered += ok
		failed += len(wave) - ok

		w.recordWave(ctx, c.ID, fromIndex+start, outcomes, ok)

		if end < len(chunk) && w.cfg.WavePause > 0 {
			select {
			case <-time.After(w.cfg.WavePause):
			case <-ctx.Done():
				return delivered, failed, ctx.Err()
			}
		}
	}

	return delivered, failed, nil
}

func (w *Worker) sendWave(ctx context.Context, c *campaign.Campaign, wave []string) []sendOutcome {
	outcomes := make([]sendOutcome, len(wave))

	var wg sync.WaitGroup
	for i, number := range wave {
		wg.Add(1)
		go func(i int, number string) {
			defer wg.Done()

			result, err := w.sender.Send(ctx, number, c.Message, c.SenderID)
			if err != nil {
				outcomes[i] = sendOutcome{number: number, code: "SEND_ERROR"}
				return
			}
			outcomes[i] = sendOutcome{number: number, accepted: result.Accepted, code: result.Code}
		}(i, number)
	}
	wg.Wait()

	return outcomes
}

// recordWave writes the compact per-wave log record. A log write failure is
// not worth failing the tick over; progress lives in the checkpoint.
func (w *Worker) recordWave(ctx context.Context, campaignID string, fromIndex int, outcomes []sendOutcome, ok int) {
	sample := make([]map[string]string, 0, 3)
	for _, o := range outcomes {
		if len(sample) == 3 {
			break
		}
		sample = append(sample, map[string]string{
			"number": smsgateway.MaskNumber(o.number),
			"code":   o.code,
		})
	}
	raw, _ := json.Marshal(sample)

	wave := &campaign.WaveLog{
		CampaignID: campaignID,
		FromIndex:  fromIndex,
		Count:      len(outcomes),
		OKCount:    ok,
		FailCount:  len(outcomes) - ok,
		Sample:     string(raw),
	}
	if err := w.repo.RecordWave(ctx, wave); err != nil {
		log.Warn().Err(err).Str("campaign_id", campaignID).Msg("Wave log write failed")
	}
}

// handleFailure implements the retry gate: transient errors park the campaign
// behind an exponential backoff until the retry cap permanently fails it.
func (w *Worker) handleFailure(ctx context.Context, c *campaign.Campaign, lockID string, cause error) campaign.Status {
	retryCount := c.RetryCount + 1

	logger := log.With().Str("campaign_id", c.ID).Int("retry_count", retryCount).Err(cause).Logger()

	if retryCount > w.cfg.RetryCap {
		if err := w.repo.MarkFailed(ctx, c.ID, lockID, retryCount, cause.Error()); err != nil {
			logger.Error().Err(err).Msg("Failed to mark campaign failed")
			return c.Status
		}
		logger.Error().Msg("Campaign failed permanently, retry cap exceeded")
		return campaign.StatusFailed
	}

	backoff := Backoff(retryCount, w.cfg.BackoffBase, w.cfg.BackoffMax)
	nextRetryAt := time.Now().Add(backoff)

	if err := w.repo.ReleaseForRetry(ctx, c.ID, lockID, retryCount, nextRetryAt, cause.Error()); err != nil {
		logger.Error().Err(err).Msg("Failed to release campaign for retry")
		return c.Status
	}

	logger.Warn().Dur("backoff", backoff).Msg("Campaign tick failed, retry scheduled")
	return campaign.StatusQueued
}
