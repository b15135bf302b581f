package hlr

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/smsfleet/smsfleet-api/internal/domain/dispatch"
	"github.com/smsfleet/smsfleet-api/internal/domain/recipient"
	"github.com/smsfleet/smsfleet-api/internal/pkg/smsgateway"
	"github.com/smsfleet/smsfleet-api/internal/pkg/storage"
)

// ProcessorConfig tunes the lookup worker; same lease contract as the
// dispatch worker.
type ProcessorConfig struct {
	ChunkSize     int
	Concurrency   int
	LeaseDuration time.Duration
	RetryCap      int
	BackoffBase   time.Duration
	BackoffMax    time.Duration
}

// TickResult reports what one lookup tick did
type TickResult struct {
	Processed int    `json:"processed"` // 0 or 1
	JobID     string `json:"job_id,omitempty"`
	Status    Status `json:"status,omitempty"`
}

// Processor advances at most one lookup job per tick: resolve the next chunk
// of numbers, persist results in batches, checkpoint, and on the final chunk
// render the CSV artifact.
type Processor struct {
	cfg    ProcessorConfig
	repo   Repository
	files  storage.Storage
	looker smsgateway.Looker
}

func NewProcessor(cfg ProcessorConfig, repo Repository, files storage.Storage, looker smsgateway.Looker) *Processor {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 200
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	if cfg.RetryCap <= 0 {
		cfg.RetryCap = 5
	}
	return &Processor{
		cfg:    cfg,
		repo:   repo,
		files:  files,
		looker: looker,
	}
}

// Tick claims one runnable lookup job and advances it by one chunk
func (p *Processor) Tick(ctx context.Context) (TickResult, error) {
	lockID := uuid.New().String()

	job, err := p.repo.ClaimNext(ctx, lockID, time.Now().Add(p.cfg.LeaseDuration))
	if err != nil {
		return TickResult{}, fmt.Errorf("claim lookup job: %w", err)
	}
	if job == nil {
		return TickResult{}, nil
	}

	status, err := p.process(ctx, job, lockID)
	if err != nil {
		status = p.handleFailure(ctx, job, lockID, err)
	}

	return TickResult{Processed: 1, JobID: job.ID, Status: status}, nil
}

func (p *Processor) process(ctx context.Context, job *Job, lockID string) (Status, error) {
	numbers, err := p.resolveNumbers(ctx, job)
	if err != nil {
		return "", err
	}

	if job.Processed >= len(numbers) {
		return p.finalize(ctx, job, lockID, job.Processed)
	}

	end := job.Processed + p.cfg.ChunkSize
	if end > len(numbers) {
		end = len(numbers)
	}
	chunk := numbers[job.Processed:end]

	results := p.lookupChunk(ctx, chunk)
	if err := p.repo.InsertResults(ctx, job.ID, results); err != nil {
		return "", fmt.Errorf("persist lookup results: %w", err)
	}

	if end >= len(numbers) {
		return p.finalize(ctx, job, lockID, end)
	}

	if err := p.repo.Checkpoint(ctx, job.ID, lockID, end); err != nil {
		return "", err
	}

	log.Info().
		Str("job_id", job.ID).
		Int("processed", end).
		Int("total", len(numbers)).
		Msg("Lookup chunk processed, job re-queued")

	return StatusQueued, nil
}

// finalize renders the result artifact and completes the job
func (p *Processor) finalize(ctx context.Context, job *Job, lockID string, processed int) (Status, error) {
	results, err := p.repo.ListResults(ctx, job.ID)
	if err != nil {
		return "", fmt.Errorf("load lookup results: %w", err)
	}

	artifact, err := renderResultCSV(results)
	if err != nil {
		return "", err
	}

	resultKey := fmt.Sprintf("hlr/%s/results.csv", job.ID)
	if err := p.files.Put(ctx, resultKey, bytes.NewReader(artifact), "text/csv"); err != nil {
		return "", fmt.Errorf("store result artifact: %w", err)
	}

	if err := p.repo.Complete(ctx, job.ID, lockID, processed, resultKey); err != nil {
		return "", err
	}

	log.Info().
		Str("job_id", job.ID).
		Int("results", len(results)).
		Msg("Lookup job completed")

	return StatusCompleted, nil
}

func (p *Processor) resolveNumbers(ctx context.Context, job *Job) ([]string, error) {
	rc, err := p.files.Get(ctx, job.FileKey)
	if err != nil {
		return nil, fmt.Errorf("fetch number source: %w", err)
	}
	defer rc.Close()

	raw := new(bytes.Buffer)
	if _, err := raw.ReadFrom(rc); err != nil {
		return nil, fmt.Errorf("read number source: %w", err)
	}

	parsed := recipient.Parse(raw.Bytes(), recipient.FileType(job.FileType), recipient.Options{})
	return parsed.Sendable, nil
}

func (p *Processor) lookupChunk(ctx context.Context, numbers []string) []Result {
	results := make([]Result, len(numbers))

	var wg sync.WaitGroup
	sem := make(chan struct{}, p.cfg.Concurrency)

	for i, number := range numbers {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, number string) {
			defer wg.Done()
			defer func() { <-sem }()

			lr, err := p.looker.Lookup(ctx, number)
			if err != nil {
				results[i] = Result{Number: number, Status: "unknown"}
				return
			}
			results[i] = Result{
				Number:    lr.Number,
				Valid:     lr.Valid,
				Reachable: lr.Reachable,
				Status:    lr.Status,
				Carrier:   lr.Carrier,
				Country:   lr.Country,
			}
		}(i, number)
	}
	wg.Wait()

	return results
}

func (p *Processor) handleFailure(ctx context.Context, job *Job, lockID string, cause error) Status {
	retryCount := job.RetryCount + 1

	logger := log.With().Str("job_id", job.ID).Int("retry_count", retryCount).Err(cause).Logger()

	if retryCount > p.cfg.RetryCap {
		if err := p.repo.MarkFailed(ctx, job.ID, lockID, retryCount, cause.Error()); err != nil {
			logger.Error().Err(err).Msg("Failed to mark lookup job failed")
			return job.Status
		}
		logger.Error().Msg("Lookup job failed permanently, retry cap exceeded")
		return StatusFailed
	}

	backoff := dispatch.Backoff(retryCount, p.cfg.BackoffBase, p.cfg.BackoffMax)
	nextRetryAt := time.Now().Add(backoff)

	if err := p.repo.ReleaseForRetry(ctx, job.ID, lockID, retryCount, nextRetryAt, cause.Error()); err != nil {
		logger.Error().Err(err).Msg("Failed to release lookup job for retry")
		return job.Status
	}

	logger.Warn().Dur("backoff", backoff).Msg("Lookup tick failed, retry scheduled")
	return StatusQueued
}

func renderResultCSV(results []Result) ([]byte, error) {
	buf := new(bytes.Buffer)
	w := csv.NewWriter(buf)

	if err := w.Write([]string{"number", "valid", "reachable", "status", "carrier", "country"}); err != nil {
		return nil, err
	}
	for _, r := range results {
		record := []string{
			r.Number,
			strconv.FormatBool(r.Valid),
			strconv.FormatBool(r.Reachable),
			r.Status,
			r.Carrier,
			r.Country,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
