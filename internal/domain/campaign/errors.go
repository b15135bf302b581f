package campaign

import "errors"

var (
	ErrCampaignNotFound     = errors.New("campaign not found")
	ErrNoSendableNumbers    = errors.New("no sendable numbers after normalization")
	ErrTooManyRecipients    = errors.New("recipient count exceeds the per-campaign cap")
	ErrInvalidScheduledTime = errors.New("scheduled time must be in the future")
	ErrMissingRequiredField = errors.New("missing required field")
	ErrLeaseLost            = errors.New("campaign lease no longer held")
	ErrInternal             = errors.New("internal campaign error")
)
