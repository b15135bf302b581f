package hlr

import "time"

// Status is the lookup job lifecycle state
type Status string

const (
	StatusSaved     Status = "saved" // numbers stored, not yet paid for
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the job can no longer be advanced
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// MaxNumbers bounds one lookup job
const MaxNumbers = 50000

// Job is one bulk number-reachability lookup. Billing is fixed at run time:
// ceil(total parsed tokens / numbers-per-credit), charged through the ledger
// in the same transaction that flips the job to queued.
type Job struct {
	ID        string `db:"id" json:"id"`
	AccountID string `db:"account_id" json:"account_id"`
	Name      string `db:"name" json:"name"`

	FileKey  string `db:"file_key" json:"file_key"`
	FileType string `db:"file_type" json:"file_type"`

	TotalParsed     int `db:"total_parsed" json:"total_parsed"`
	TotalNumbers    int `db:"total_numbers" json:"total_numbers"`
	RequiredCredits int `db:"required_credits" json:"required_credits"`

	Status    Status  `db:"status" json:"status"`
	Processed int     `db:"processed" json:"processed"`
	ResultKey *string `db:"result_key" json:"-"`

	LockID    *string    `db:"lock_id" json:"-"`
	LockUntil *time.Time `db:"lock_until" json:"-"`

	RetryCount  int        `db:"retry_count" json:"retry_count"`
	NextRetryAt *time.Time `db:"next_retry_at" json:"next_retry_at,omitempty"`
	LastError   *string    `db:"last_error" json:"last_error,omitempty"`

	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	StartedAt  *time.Time `db:"started_at" json:"started_at,omitempty"`
	FinishedAt *time.Time `db:"finished_at" json:"finished_at,omitempty"`
	PurgedAt   *time.Time `db:"purged_at" json:"purged_at,omitempty"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// Result is one resolved number
type Result struct {
	ID        string    `db:"id" json:"-"`
	JobID     string    `db:"job_id" json:"-"`
	Number    string    `db:"number" json:"number"`
	Valid     bool      `db:"valid" json:"valid"`
	Reachable bool      `db:"reachable" json:"reachable"`
	Status    string    `db:"status" json:"status"`
	Carrier   string    `db:"carrier" json:"carrier,omitempty"`
	Country   string    `db:"country" json:"country,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"-"`
}
