package smsgateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// BeenetConfig holds the gateway connection settings
type BeenetConfig struct {
	SendURL  string
	Username string
	Password string
	Timeout  time.Duration
}

// BeenetClient sends SMS through a Beenet-compatible HTTP gateway.
// The protocol is a GET request with credentials and message as query
// parameters; the body answers "SUBMIT_SUCCESS|<id>" on success.
type BeenetClient struct {
	cfg    BeenetConfig
	client *http.Client
}

// NewBeenetClient creates a gateway client
func NewBeenetClient(cfg BeenetConfig) (*BeenetClient, error) {
	if cfg.SendURL == "" {
		return nil, errors.New("smsgateway: send URL is required")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("smsgateway: credentials are required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	return &BeenetClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// Send submits one SMS to the gateway
func (c *BeenetClient) Send(ctx context.Context, to, message, senderID string) (SendResult, error) {
	to = strings.TrimSpace(to)
	message = strings.TrimSpace(message)
	senderID = strings.TrimSpace(senderID)

	if to == "" {
		return SendResult{Code: "MISSING_TO"}, errors.New("smsgateway: missing destination")
	}
	if message == "" {
		return SendResult{Code: "MISSING_MESSAGE"}, errors.New("smsgateway: missing message")
	}
	if senderID == "" {
		return SendResult{Code: "MISSING_SENDER"}, errors.New("smsgateway: missing sender id")
	}

	// Alphanumeric originator hard limit
	if len(senderID) > 11 {
		senderID = senderID[:11]
	}

	u, err := url.Parse(c.cfg.SendURL)
	if err != nil {
		return SendResult{}, fmt.Errorf("smsgateway: bad send URL: %w", err)
	}

	q := u.Query()
	q.Set("username", c.cfg.Username)
	q.Set("password", c.cfg.Password)
	q.Set("type", "TEXT")
	q.Set("mobile", to)
	q.Set("sender", senderID)
	q.Set("message", message)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return SendResult{}, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return SendResult{}, fmt.Errorf("smsgateway: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return SendResult{}, fmt.Errorf("smsgateway: read response: %w", err)
	}
	raw := string(body)

	result := parseBeenetResponse(resp.StatusCode, raw)

	// Gateway responses are logged with the destination masked; credentials
	// never appear in the log line.
	log.Debug().
		Int("http", resp.StatusCode).
		Bool("accepted", result.Accepted).
		Str("to", MaskNumber(to)).
		Str("sender", senderID).
		Str("code", result.Code).
		Msg("Gateway response")

	return result, nil
}

func parseBeenetResponse(statusCode int, raw string) SendResult {
	trimmed := strings.TrimSpace(raw)
	httpOK := statusCode >= 200 && statusCode < 300

	accepted := httpOK && (strings.HasPrefix(strings.ToUpper(trimmed), "SUCCESS") ||
		strings.Contains(trimmed, "SUBMIT_SUCCESS"))

	result := SendResult{Accepted: accepted, Raw: trimmed}

	if accepted {
		result.Code = "SUBMIT_SUCCESS"
		if parts := strings.SplitN(trimmed, "|", 3); len(parts) > 1 {
			result.MessageID = strings.TrimSpace(parts[1])
		}
		return result
	}

	if code := strings.SplitN(trimmed, "|", 2)[0]; code != "" {
		result.Code = code
	} else {
		result.Code = fmt.Sprintf("HTTP_%d", statusCode)
	}
	return result
}

// MaskNumber hides all but the last four digits of an MSISDN for logging
func MaskNumber(number string) string {
	if len(number) <= 4 {
		return number
	}
	return strings.Repeat("*", len(number)-4) + number[len(number)-4:]
}
