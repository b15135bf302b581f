package smsgateway

import "context"

// SendResult is the gateway's answer for a single message submission.
// Accepted means the gateway took the message; delivery itself is asynchronous
// and retried submissions may be delivered twice (at-least-once semantics).
type SendResult struct {
	Accepted  bool
	Code      string
	MessageID string
	Raw       string
}

// Sender submits one SMS to the external gateway.
type Sender interface {
	Send(ctx context.Context, to, message, senderID string) (SendResult, error)
}

// LookupResult is one number-reachability answer from the HLR provider.
type LookupResult struct {
	Number    string `json:"number"`
	Valid     bool   `json:"valid"`
	Reachable bool   `json:"reachable"`
	Status    string `json:"status"` // active | inactive | unknown | invalid
	Carrier   string `json:"carrier,omitempty"`
	Country   string `json:"country,omitempty"`
}

// Looker resolves reachability for a single MSISDN.
type Looker interface {
	Lookup(ctx context.Context, number string) (LookupResult, error)
}
