package smsgateway

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// MockSender accepts every message without contacting any gateway. Used in
// development and test environments where no gateway credentials exist.
type MockSender struct{}

// NewMockSender creates the accept-everything sender
func NewMockSender() *MockSender {
	return &MockSender{}
}

// Send pretends the gateway accepted the message
func (s *MockSender) Send(ctx context.Context, to, message, senderID string) (SendResult, error) {
	id := uuid.New().String()

	log.Debug().
		Str("to", MaskNumber(to)).
		Str("sender", senderID).
		Str("message_id", id).
		Msg("Mock gateway accepted message")

	return SendResult{
		Accepted:  true,
		Code:      "SUBMIT_SUCCESS",
		MessageID: id,
		Raw:       "SUBMIT_SUCCESS|" + id,
	}, nil
}
