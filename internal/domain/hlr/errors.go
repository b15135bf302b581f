package hlr

import "errors"

var (
	ErrJobNotFound       = errors.New("lookup job not found")
	ErrAlreadyRunning    = errors.New("lookup job is already running")
	ErrAlreadyCompleted  = errors.New("lookup job has already completed")
	ErrNotReady          = errors.New("lookup job has not completed yet")
	ErrNoSendableNumbers = errors.New("no valid numbers after normalization")
	ErrTooManyNumbers    = errors.New("number count exceeds the per-job cap")
	ErrResultPurged      = errors.New("lookup result artifact has been purged")
	ErrLeaseLost         = errors.New("lookup job lease no longer held")
)
