package campaign

import "time"

// Status is the campaign lifecycle state
type Status string

const (
	StatusQueued              Status = "queued"
	StatusScheduled           Status = "scheduled"
	StatusSending             Status = "sending"
	StatusCompleted           Status = "completed"
	StatusCompletedWithErrors Status = "completed_with_errors"
	StatusFailed              Status = "failed"
)

// Terminal reports whether the status admits no further send attempts
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCompletedWithErrors || s == StatusFailed
}

// MaxRecipients bounds a single campaign's blast radius
const MaxRecipients = 50000

// Campaign is one admitted bulk-send job. Cost fields are computed server-side
// at admission and never recomputed from client input. Progress fields only
// move forward while a worker holds the lease.
type Campaign struct {
	ID        string `db:"id" json:"id"`
	AccountID string `db:"account_id" json:"account_id"`

	SenderID string `db:"sender_id" json:"sender_id"`
	Message  string `db:"message" json:"message"`
	Encoding string `db:"encoding" json:"encoding"`
	Segments int    `db:"segments" json:"segments"`

	FileKey  string `db:"file_key" json:"file_key"`
	FileType string `db:"file_type" json:"file_type"`

	// Strict validation rule captured at admission so every re-parse of the
	// source yields the same sendable list.
	CountryCode    string `db:"country_code" json:"country_code,omitempty"`
	NationalLength int    `db:"national_length" json:"national_length,omitempty"`

	TotalParsed     int `db:"total_parsed" json:"total_parsed"`
	InvalidCount    int `db:"invalid_count" json:"invalid_count"`
	DuplicateCount  int `db:"duplicate_count" json:"duplicate_count"`
	TotalRecipients int `db:"total_recipients" json:"total_recipients"`
	RequiredCredits int `db:"required_credits" json:"required_credits"`

	Status         Status `db:"status" json:"status"`
	ProcessedIndex int    `db:"processed_index" json:"processed_index"`
	Delivered      int    `db:"delivered" json:"delivered"`
	Failed         int    `db:"failed" json:"failed"`
	Skipped        int    `db:"skipped" json:"skipped"`

	LockID    *string    `db:"lock_id" json:"-"`
	LockUntil *time.Time `db:"lock_until" json:"-"`

	RetryCount  int        `db:"retry_count" json:"retry_count"`
	NextRetryAt *time.Time `db:"next_retry_at" json:"next_retry_at,omitempty"`
	LastError   *string    `db:"last_error" json:"last_error,omitempty"`

	ScheduledAt *time.Time `db:"scheduled_at" json:"scheduled_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	StartedAt   *time.Time `db:"started_at" json:"started_at,omitempty"`
	FinishedAt  *time.Time `db:"finished_at" json:"finished_at,omitempty"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// WaveLog summarizes one dispatch wave. One record per wave, not per message,
// keeps write volume bounded on very large campaigns.
type WaveLog struct {
	ID         string    `db:"id" json:"id"`
	CampaignID string    `db:"campaign_id" json:"campaign_id"`
	FromIndex  int       `db:"from_index" json:"from_index"`
	Count      int       `db:"count" json:"count"`
	OKCount    int       `db:"ok_count" json:"ok_count"`
	FailCount  int       `db:"fail_count" json:"fail_count"`
	Sample     string    `db:"sample" json:"sample"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
