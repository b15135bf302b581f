package credit

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientCredits is returned when an account cannot cover a debit
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrInvalidAmount is returned when an adjustment amount is unusable
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrAccountNotFound is returned when the account is unknown
	ErrAccountNotFound = errors.New("account not found")

	ErrInternal = errors.New("internal error")
)

// InsufficientCreditsError carries the amount the rejected operation needed,
// so callers can surface it to the user. errors.Is(err, ErrInsufficientCredits)
// matches it.
type InsufficientCreditsError struct {
	Needed int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: %d needed", e.Needed)
}

func (e *InsufficientCreditsError) Unwrap() error {
	return ErrInsufficientCredits
}
