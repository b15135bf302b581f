package hlr_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/smsfleet/smsfleet-api/internal/domain/hlr"
	"github.com/smsfleet/smsfleet-api/internal/pkg/smsgateway"
)

/* =========================
   In-memory fakes
   ========================= */

type fakeRepo struct {
	mu      sync.Mutex
	jobs    map[string]*hlr.Job
	results map[string][]hlr.Result
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		jobs:    make(map[string]*hlr.Job),
		results: make(map[string][]hlr.Result),
	}
}

func (r *fakeRepo) Create(ctx context.Context, job *hlr.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job
	return nil
}

func (r *fakeRepo) GetByID(ctx context.Context, id string) (*hlr.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, hlr.ErrJobNotFound
	}
	snapshot := *job
	return &snapshot, nil
}

func (r *fakeRepo) GetForUpdateTx(ctx context.Context, tx *sqlx.Tx, id string) (*hlr.Job, error) {
	return nil, errors.New("not used")
}

func (r *fakeRepo) SetQueuedTx(ctx context.Context, tx *sqlx.Tx, id string, requiredCredits int) error {
	return errors.New("not used")
}

func (r *fakeRepo) ListRecent(ctx context.Context, accountID string, limit int) ([]*hlr.Job, error) {
	return nil, nil
}

func (r *fakeRepo) ClaimNext(ctx context.Context, lockID string, leaseUntil time.Time) (*hlr.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for _, job := range r.jobs {
		if job.Status != hlr.StatusQueued && job.Status != hlr.StatusRunning {
			continue
		}
		if job.NextRetryAt != nil && job.NextRetryAt.After(now) {
			continue
		}
		if job.LockUntil != nil && job.LockUntil.After(now) {
			continue
		}
		job.Status = hlr.StatusRunning
		job.LockID = &lockID
		job.LockUntil = &leaseUntil
		snapshot := *job
		return &snapshot, nil
	}
	return nil, nil
}

func (r *fakeRepo) Checkpoint(ctx context.Context, id, lockID string, processed int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, err := r.held(id, lockID)
	if err != nil {
		return err
	}
	job.Processed = processed
	job.Status = hlr.StatusQueued
	job.RetryCount = 0
	job.NextRetryAt = nil
	job.LockID = nil
	job.LockUntil = nil
	return nil
}

func (r *fakeRepo) Complete(ctx context.Context, id, lockID string, processed int, resultKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, err := r.held(id, lockID)
	if err != nil {
		return err
	}
	now := time.Now()
	job.Processed = processed
	job.ResultKey = &resultKey
	job.Status = hlr.StatusCompleted
	job.FinishedAt = &now
	job.LockID = nil
	job.LockUntil = nil
	return nil
}

func (r *fakeRepo) ReleaseForRetry(ctx context.Context, id, lockID string, retryCount int, nextRetryAt time.Time, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, err := r.held(id, lockID)
	if err != nil {
		return err
	}
	job.Status = hlr.StatusQueued
	job.RetryCount = retryCount
	job.NextRetryAt = &nextRetryAt
	job.LastError = &lastError
	job.LockID = nil
	job.LockUntil = nil
	return nil
}

func (r *fakeRepo) MarkFailed(ctx context.Context, id, lockID string, retryCount int, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, err := r.held(id, lockID)
	if err != nil {
		return err
	}
	job.Status = hlr.StatusFailed
	job.RetryCount = retryCount
	job.LastError = &lastError
	job.LockID = nil
	job.LockUntil = nil
	return nil
}

func (r *fakeRepo) InsertResults(ctx context.Context, jobID string, results []hlr.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[jobID] = append(r.results[jobID], results...)
	return nil
}

func (r *fakeRepo) ListResults(ctx context.Context, jobID string) ([]hlr.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.results[jobID], nil
}

func (r *fakeRepo) ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]*hlr.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	expired := make([]*hlr.Job, 0)
	for _, job := range r.jobs {
		if job.Status == hlr.StatusCompleted && job.FinishedAt != nil && job.FinishedAt.Before(cutoff) && job.PurgedAt == nil {
			snapshot := *job
			expired = append(expired, &snapshot)
		}
	}
	return expired, nil
}

func (r *fakeRepo) MarkPurged(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return hlr.ErrJobNotFound
	}
	now := time.Now()
	job.ResultKey = nil
	job.PurgedAt = &now
	delete(r.results, id)
	return nil
}

func (r *fakeRepo) held(id, lockID string) (*hlr.Job, error) {
	job, ok := r.jobs[id]
	if !ok {
		return nil, hlr.ErrJobNotFound
	}
	if job.LockID == nil || *job.LockID != lockID {
		return nil, hlr.ErrLeaseLost
	}
	return job, nil
}

type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    bool
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte)}
}

func (s *fakeStorage) Put(ctx context.Context, key string, reader io.Reader, contentType string) error {
	raw, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = raw
	return nil
}

func (s *fakeStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errors.New("storage unavailable")
	}
	raw, ok := s.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (s *fakeStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *fakeStorage) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok, nil
}

func (s *fakeStorage) PresignGet(ctx context.Context, key string, expires time.Duration) (string, error) {
	return "https://example.test/" + key, nil
}

func (s *fakeStorage) GetURL(key string) string {
	return "https://example.test/" + key
}

/* =========================
   Helpers
   ========================= */

func testProcessorConfig() hlr.ProcessorConfig {
	return hlr.ProcessorConfig{
		ChunkSize:     200,
		Concurrency:   10,
		LeaseDuration: 2 * time.Minute,
		RetryCap:      5,
		BackoffBase:   30 * time.Second,
		BackoffMax:    time.Hour,
	}
}

func seedJob(repo *fakeRepo, files *fakeStorage, numbers int) *hlr.Job {
	var sb strings.Builder
	for i := 0; i < numbers; i++ {
		fmt.Fprintf(&sb, "45%08d\n", i)
	}

	id := uuid.New().String()
	key := "hlr/" + id + "/numbers.txt"
	files.Put(context.Background(), key, strings.NewReader(sb.String()), "text/plain")

	job := &hlr.Job{
		ID:              id,
		AccountID:       "acct_test",
		FileKey:         key,
		FileType:        "text",
		TotalParsed:     numbers,
		TotalNumbers:    numbers,
		RequiredCredits: (numbers + 1) / 2,
		Status:          hlr.StatusQueued,
		CreatedAt:       time.Now().Add(-time.Minute),
		UpdatedAt:       time.Now().Add(-time.Minute),
	}
	repo.jobs[id] = job
	return job
}

/* =========================
   Test 1: Chunked Progress and Artifact
   ========================= */

func TestLookupProgressToCompletion(t *testing.T) {
	repo := newFakeRepo()
	files := newFakeStorage()
	processor := hlr.NewProcessor(testProcessorConfig(), repo, files, smsgateway.NewMockHLRClient())

	job := seedJob(repo, files, 450)

	// 450 numbers at chunk size 200 take three ticks
	for tick := 1; tick <= 3; tick++ {
		result, err := processor.Tick(context.Background())
		if err != nil {
			t.Fatalf("tick %d: unexpected error: %v", tick, err)
		}
		if result.Processed != 1 || result.JobID != job.ID {
			t.Fatalf("tick %d: expected to process job, got %+v", tick, result)
		}
	}

	got, _ := repo.GetByID(context.Background(), job.ID)
	if got.Status != hlr.StatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if got.Processed != 450 {
		t.Fatalf("expected 450 processed, got %d", got.Processed)
	}
	if got.ResultKey == nil {
		t.Fatal("expected result artifact key")
	}

	rc, err := files.Get(context.Background(), *got.ResultKey)
	if err != nil {
		t.Fatalf("result artifact missing: %v", err)
	}
	defer rc.Close()

	raw, _ := io.ReadAll(rc)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 451 { // header + one row per number
		t.Fatalf("expected 451 csv lines, got %d", len(lines))
	}
	if !strings.HasPrefix(lines[0], "number,valid,reachable,status") {
		t.Fatalf("unexpected csv header: %s", lines[0])
	}
}

/* =========================
   Test 2: Transient Failure
   ========================= */

func TestLookupTransientFailure(t *testing.T) {
	repo := newFakeRepo()
	files := newFakeStorage()
	processor := hlr.NewProcessor(testProcessorConfig(), repo, files, smsgateway.NewMockHLRClient())

	job := seedJob(repo, files, 100)
	files.fail = true

	result, err := processor.Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != hlr.StatusQueued {
		t.Fatalf("expected queued after transient failure, got %s", result.Status)
	}

	got, _ := repo.GetByID(context.Background(), job.ID)
	if got.RetryCount != 1 || got.NextRetryAt == nil {
		t.Fatalf("expected retry gate, got retry_count=%d next_retry_at=%v", got.RetryCount, got.NextRetryAt)
	}

	// Gate holds: the job is not eligible until next_retry_at
	result, err = processor.Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Processed != 0 {
		t.Fatalf("expected empty tick while retry gate holds, got %+v", result)
	}
}

/* =========================
   Test 3: Deterministic Mock Lookup
   ========================= */

func TestMockLookupIsDeterministic(t *testing.T) {
	looker := smsgateway.NewMockHLRClient()

	first, err := looker.Lookup(context.Background(), "4512345678")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := looker.Lookup(context.Background(), "4512345678")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first != second {
		t.Fatalf("lookup not deterministic: %+v vs %+v", first, second)
	}
}
