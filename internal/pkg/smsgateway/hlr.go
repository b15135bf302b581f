package smsgateway

import (
	"context"
	"strings"
)

// MockHLRClient is a deterministic reachability provider used until a real
// HLR integration is configured. Output depends only on the number itself,
// which keeps lookup jobs reproducible.
type MockHLRClient struct{}

// NewMockHLRClient creates the deterministic provider
func NewMockHLRClient() *MockHLRClient {
	return &MockHLRClient{}
}

// Lookup resolves reachability for one number
func (c *MockHLRClient) Lookup(ctx context.Context, number string) (LookupResult, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return LookupResult{Number: number, Status: "invalid"}, nil
	}

	last := int(number[len(number)-1] - '0')
	if last < 0 || last > 9 {
		last = 0
	}

	reachable := last%3 != 0
	status := "unknown"
	switch {
	case last%7 == 0:
		status = "inactive"
	case reachable:
		status = "active"
	}

	carrier := "MockMobile"
	if last%2 == 0 {
		carrier = "MockTel"
	}

	country := ""
	if strings.HasPrefix(number, "45") {
		country = "DK"
	}

	return LookupResult{
		Number:    number,
		Valid:     true,
		Reachable: reachable,
		Status:    status,
		Carrier:   carrier,
		Country:   country,
	}, nil
}
