package dispatch_test

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

	"github.com/smsfleet/smsfleet-api/internal/domain/campaign"
	"github.com/smsfleet/smsfleet-api/internal/domain/dispatch"
	"github.com/smsfleet/smsfleet-api/internal/pkg/smsgateway"
)

/* =========================
   In-memory fakes
   ========================= */

type fakeRepo struct {
	mu        sync.Mutex
	campaigns map[string]*campaign.Campaign
	waves     []*campaign.WaveLog
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{campaigns: make(map[string]*campaign.Campaign)}
}

func (r *fakeRepo) CreateTx(ctx context.Context, tx *sqlx.Tx, c *campaign.Campaign) error {
	return errors.New("not used")
}

func (r *fakeRepo) GetByID(ctx context.Context, id string) (*campaign.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, campaign.ErrCampaignNotFound
	}
	snapshot := *c
	return &snapshot, nil
}

func (r *fakeRepo) ListRecent(ctx context.Context, accountID string, limit int) ([]*campaign.Campaign, error) {
	return nil, nil
}

func (r *fakeRepo) ClaimNext(ctx context.Context, lockID string, leaseUntil time.Time) (*campaign.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var oldest *campaign.Campaign
	for _, c := range r.campaigns {
		if c.Status.Terminal() {
			continue
		}
		if c.ScheduledAt != nil && c.ScheduledAt.After(now) {
			continue
		}
		if c.NextRetryAt != nil && c.NextRetryAt.After(now) {
			continue
		}
		if c.LockUntil != nil && c.LockUntil.After(now) {
			continue
		}
		if oldest == nil || c.CreatedAt.Before(oldest.CreatedAt) {
			oldest = c
		}
	}
	if oldest == nil {
		return nil, nil
	}

	oldest.Status = campaign.StatusSending
	oldest.LockID = &lockID
	oldest.LockUntil = &leaseUntil
	snapshot := *oldest
	return &snapshot, nil
}

func (r *fakeRepo) Checkpoint(ctx context.Context, id, lockID string, processedIndex, delivered, failed int, status campaign.Status, finished bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.held(id, lockID)
	if err != nil {
		return err
	}

	c.ProcessedIndex = processedIndex
	c.Delivered = delivered
	c.Failed = failed
	c.Status = status
	c.RetryCount = 0
	c.NextRetryAt = nil
	c.LockID = nil
	c.LockUntil = nil
	if finished {
		now := time.Now()
		c.FinishedAt = &now
	}
	return nil
}

func (r *fakeRepo) ReleaseForRetry(ctx context.Context, id, lockID string, retryCount int, nextRetryAt time.Time, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.held(id, lockID)
	if err != nil {
		return err
	}

	c.Status = campaign.StatusQueued
	c.RetryCount = retryCount
	c.NextRetryAt = &nextRetryAt
	c.LastError = &lastError
	c.LockID = nil
	c.LockUntil = nil
	return nil
}

func (r *fakeRepo) MarkFailed(ctx context.Context, id, lockID string, retryCount int, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.held(id, lockID)
	if err != nil {
		return err
	}

	c.Status = campaign.StatusFailed
	c.RetryCount = retryCount
	c.LastError = &lastError
	c.LockID = nil
	c.LockUntil = nil
	return nil
}

func (r *fakeRepo) RecordWave(ctx context.Context, wave *campaign.WaveLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waves = append(r.waves, wave)
	return nil
}

func (r *fakeRepo) ListWaves(ctx context.Context, campaignID string, limit int) ([]*campaign.WaveLog, error) {
	return r.waves, nil
}

func (r *fakeRepo) held(id, lockID string) (*campaign.Campaign, error) {
	c, ok := r.campaigns[id]
	if !ok {
		return nil, campaign.ErrCampaignNotFound
	}
	if c.LockID == nil || *c.LockID != lockID {
		return nil, campaign.ErrLeaseLost
	}
	return c, nil
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

type fakeSender struct {
	mu       sync.Mutex
	sent     []string
	rejectFn func(number string) bool
}

func (f *fakeSender) Send(ctx context.Context, to, message, senderID string) (smsgateway.SendResult, error) {
	f.mu.Lock()
	f.sent = append(f.sent, to)
	f.mu.Unlock()

	if f.rejectFn != nil && f.rejectFn(to) {
		return smsgateway.SendResult{Accepted: false, Code: "REJECTED"}, nil
	}
	return smsgateway.SendResult{Accepted: true, Code: "SUBMIT_SUCCESS", MessageID: uuid.New().String()}, nil
}

/* =========================
   Helpers
   ========================= */

func testConfig() dispatch.Config {
	return dispatch.Config{
		ChunkSize:     200,
		Concurrency:   10,
		WavePause:     0,
		LeaseDuration: 2 * time.Minute,
		RetryCap:      5,
		BackoffBase:   30 * time.Second,
		BackoffMax:    time.Hour,
	}
}

func seedCampaign(repo *fakeRepo, files *fakeStorage, recipients int) *campaign.Campaign {
	var sb strings.Builder
	for i := 0; i < recipients; i++ {
		fmt.Fprintf(&sb, "45%08d\n", i)
	}

	id := uuid.New().String()
	key := "campaigns/" + id + "/recipients.txt"
	files.Put(context.Background(), key, strings.NewReader(sb.String()), "text/plain")

	c := &campaign.Campaign{
		ID:              id,
		AccountID:       "acct_test",
		SenderID:        "TestSender",
		Message:         "hello world",
		Encoding:        "GSM7",
		Segments:        1,
		FileKey:         key,
		FileType:        "text",
		TotalParsed:     recipients,
		TotalRecipients: recipients,
		RequiredCredits: recipients,
		Status:          campaign.StatusQueued,
		CreatedAt:       time.Now().Add(-time.Minute),
		UpdatedAt:       time.Now().Add(-time.Minute),
	}
	repo.campaigns[id] = c
	return c
}

/* =========================
   Test 1: Empty Tick
   ========================= */

func TestTickNothingEligible(t *testing.T) {
	repo := newFakeRepo()
	worker := dispatch.NewWorker(testConfig(), repo, newFakeStorage(), &fakeSender{})

	result, err := worker.Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Processed != 0 {
		t.Fatalf("expected empty tick, got %+v", result)
	}
}

/* =========================
   Test 2: Chunked Progress
   ========================= */

func TestChunkedProgressToCompletion(t *testing.T) {
	repo := newFakeRepo()
	files := newFakeStorage()
	sender := &fakeSender{}
	worker := dispatch.NewWorker(testConfig(), repo, files, sender)

	c := seedCampaign(repo, files, 1000)

	for tick := 1; tick <= 5; tick++ {
		result, err := worker.Tick(context.Background())
		if err != nil {
			t.Fatalf("tick %d: unexpected error: %v", tick, err)
		}
		if result.Processed != 1 || result.JobID != c.ID {
			t.Fatalf("tick %d: expected to process campaign, got %+v", tick, result)
		}

		got, _ := repo.GetByID(context.Background(), c.ID)
		wantIndex := tick * 200
		if got.ProcessedIndex != wantIndex {
			t.Fatalf("tick %d: expected processed_index %d, got %d", tick, wantIndex, got.ProcessedIndex)
		}

		if tick < 5 {
			if got.Status != campaign.StatusQueued {
				t.Fatalf("tick %d: expected queued, got %s", tick, got.Status)
			}
		} else {
			if got.Status != campaign.StatusCompleted {
				t.Fatalf("tick %d: expected completed, got %s", tick, got.Status)
			}
			if got.FinishedAt == nil {
				t.Fatal("expected finished_at to be stamped")
			}
		}
	}

	if len(sender.sent) != 1000 {
		t.Fatalf("expected 1000 sends, got %d", len(sender.sent))
	}
}

/* =========================
   Test 3: Terminal Idempotence
   ========================= */

func TestTerminalStateIsSticky(t *testing.T) {
	repo := newFakeRepo()
	files := newFakeStorage()
	sender := &fakeSender{}
	worker := dispatch.NewWorker(testConfig(), repo, files, sender)

	c := seedCampaign(repo, files, 10)

	if _, err := worker.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	before, _ := repo.GetByID(context.Background(), c.ID)
	if before.Status != campaign.StatusCompleted {
		t.Fatalf("expected completed, got %s", before.Status)
	}
	sentBefore := len(sender.sent)

	result, err := worker.Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Processed != 0 {
		t.Fatalf("expected empty tick after terminal state, got %+v", result)
	}

	after, _ := repo.GetByID(context.Background(), c.ID)
	if after.ProcessedIndex != before.ProcessedIndex || after.Delivered != before.Delivered || after.Failed != before.Failed {
		t.Fatal("terminal campaign was mutated by a later tick")
	}
	if len(sender.sent) != sentBefore {
		t.Fatal("terminal campaign triggered further sends")
	}
}

/* =========================
   Test 4: Gateway Rejections
   ========================= */

func TestRejectionsCountAsFailed(t *testing.T) {
	repo := newFakeRepo()
	files := newFakeStorage()
	sender := &fakeSender{
		rejectFn: func(number string) bool {
			// Reject every tenth recipient
			return strings.HasSuffix(number, "0")
		},
	}
	worker := dispatch.NewWorker(testConfig(), repo, files, sender)

	c := seedCampaign(repo, files, 100)

	if _, err := worker.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := repo.GetByID(context.Background(), c.ID)
	if got.Status != campaign.StatusCompletedWithErrors {
		t.Fatalf("expected completed_with_errors, got %s", got.Status)
	}
	if got.Delivered != 90 || got.Failed != 10 {
		t.Fatalf("expected 90 delivered / 10 failed, got %d / %d", got.Delivered, got.Failed)
	}
	if got.ProcessedIndex != 100 {
		t.Fatalf("expected processed_index 100, got %d", got.ProcessedIndex)
	}
}

/* =========================
   Test 5: Transient Failure and Retry Gate
   ========================= */

func TestTransientFailureSchedulesRetry(t *testing.T) {
	repo := newFakeRepo()
	files := newFakeStorage()
	worker := dispatch.NewWorker(testConfig(), repo, files, &fakeSender{})

	c := seedCampaign(repo, files, 100)
	files.fail = true

	var lastRetryAt time.Time
	for attempt := 1; attempt <= 5; attempt++ {
		// Clear the retry gate so the next tick is eligible immediately
		repo.mu.Lock()
		repo.campaigns[c.ID].NextRetryAt = nil
		repo.mu.Unlock()

		result, err := worker.Tick(context.Background())
		if err != nil {
			t.Fatalf("attempt %d: unexpected error: %v", attempt, err)
		}
		if result.Status != campaign.StatusQueued {
			t.Fatalf("attempt %d: expected queued, got %s", attempt, result.Status)
		}

		got, _ := repo.GetByID(context.Background(), c.ID)
		if got.RetryCount != attempt {
			t.Fatalf("attempt %d: expected retry_count %d, got %d", attempt, attempt, got.RetryCount)
		}
		if got.NextRetryAt == nil {
			t.Fatalf("attempt %d: expected next_retry_at to be set", attempt)
		}
		if !got.NextRetryAt.After(lastRetryAt) {
			t.Fatalf("attempt %d: next_retry_at did not increase", attempt)
		}
		lastRetryAt = *got.NextRetryAt
		if got.LastError == nil || !strings.Contains(*got.LastError, "storage unavailable") {
			t.Fatalf("attempt %d: expected captured error, got %v", attempt, got.LastError)
		}
	}

	// Sixth failure exceeds the cap
	repo.mu.Lock()
	repo.campaigns[c.ID].NextRetryAt = nil
	repo.mu.Unlock()

	result, err := worker.Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != campaign.StatusFailed {
		t.Fatalf("expected failed after retry cap, got %s", result.Status)
	}

	got, _ := repo.GetByID(context.Background(), c.ID)
	if got.Status != campaign.StatusFailed {
		t.Fatalf("expected terminal failed, got %s", got.Status)
	}
	if got.ProcessedIndex != 0 {
		t.Fatalf("expected no progress on a failing campaign, got %d", got.ProcessedIndex)
	}
}

/* =========================
   Test 6: Mutual Exclusion
   ========================= */

func TestConcurrentTicksClaimOnce(t *testing.T) {
	repo := newFakeRepo()
	files := newFakeStorage()
	sender := &fakeSender{}
	worker := dispatch.NewWorker(testConfig(), repo, files, sender)

	seedCampaign(repo, files, 50)

	const ticks = 8
	var wg sync.WaitGroup
	results := make([]dispatch.TickResult, ticks)

	for i := 0; i < ticks; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := worker.Tick(context.Background())
			if err != nil {
				t.Errorf("tick %d: unexpected error: %v", i, err)
				return
			}
			results[i] = result
		}(i)
	}
	wg.Wait()

	claimed := 0
	for _, r := range results {
		claimed += r.Processed
	}
	if claimed != 1 {
		t.Fatalf("expected exactly one tick to claim the campaign, got %d", claimed)
	}
	if len(sender.sent) != 50 {
		t.Fatalf("expected 50 sends total, got %d", len(sender.sent))
	}
}

/* =========================
   Test 7: Missing Message Fails Without Retry
   ========================= */

func TestMissingMessageFailsImmediately(t *testing.T) {
	repo := newFakeRepo()
	files := newFakeStorage()
	worker := dispatch.NewWorker(testConfig(), repo, files, &fakeSender{})

	c := seedCampaign(repo, files, 10)
	repo.campaigns[c.ID].Message = "  "

	result, err := worker.Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != campaign.StatusFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}

	got, _ := repo.GetByID(context.Background(), c.ID)
	if got.NextRetryAt != nil {
		t.Fatal("validation failure must not schedule a retry")
	}
}

/* =========================
   Test 8: Backoff
   ========================= */

func TestBackoffDoublesAndCaps(t *testing.T) {
	base := 30 * time.Second
	max := time.Hour

	cases := []struct {
		retryCount int
		want       time.Duration
	}{
		{1, 30 * time.Second},
		{2, time.Minute},
		{3, 2 * time.Minute},
		{4, 4 * time.Minute},
		{7, 32 * time.Minute},
		{8, time.Hour},
		{20, time.Hour},
	}

	for _, tc := range cases {
		got := dispatch.Backoff(tc.retryCount, base, max)
		if got != tc.want {
			t.Errorf("Backoff(%d) = %s, want %s", tc.retryCount, got, tc.want)
		}
	}

	// Strictly increasing until the cap
	prev := time.Duration(0)
	for i := 1; i <= 8; i++ {
		got := dispatch.Backoff(i, base, max)
		if got < prev {
			t.Fatalf("backoff decreased at retry %d", i)
		}
		prev = got
	}
}
