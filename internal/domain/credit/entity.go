package credit

import "time"

// AdjustMode selects how an adjustment changes the balance
type AdjustMode string

const (
	ModeDelta AdjustMode = "delta" // balance += amount
	ModeSet   AdjustMode = "set"   // balance = amount
)

// LedgerEntry is one immutable audit row. Every balance change writes two:
// one scoped to the account and one in the global admin log, both from the
// same transaction.
type LedgerEntry struct {
	ID            string    `db:"id" json:"id"`
	AccountID     string    `db:"account_id" json:"account_id"`
	Mode          string    `db:"mode" json:"mode"`
	Amount        int       `db:"amount" json:"amount"`
	BalanceBefore int       `db:"balance_before" json:"balance_before"`
	BalanceAfter  int       `db:"balance_after" json:"balance_after"`
	Reason        string    `db:"reason" json:"reason"`
	Actor         string    `db:"actor" json:"actor"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Adjustment reports the balance around one change
type Adjustment struct {
	Before int `json:"before"`
	After  int `json:"after"`
}

// Pagination controls simple list pagination
type Pagination struct {
	Limit  int
	Offset int
}
