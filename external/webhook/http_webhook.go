package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/foxseedlab/nyukoku/internal/webhook"
)

const (
	auditRequestTimeout = 10 * time.Second
	auditMaxAttempts    = 3
	auditInitialBackoff = 500 * time.Millisecond
)

// errPermanent marks a response that will not succeed on retry.
var errPermanent = errors.New("audit webhook rejected payload")

// AuditSender posts finished session audits as JSON. Transport errors and 5xx responses
// are retried with exponential backoff; 4xx responses are not.
type AuditSender struct {
	url         string
	client      *http.Client
	maxAttempts int
	backoff     time.Duration
}

func NewAuditSender(url string) *AuditSender {
	return &AuditSender{
		url:         url,
		client:      &http.Client{Timeout: auditRequestTimeout},
		maxAttempts: auditMaxAttempts,
		backoff:     auditInitialBackoff,
	}
}

// SendAudit is a no-op when no URL is configured.
func (s *AuditSender) SendAudit(ctx context.Context, payload webhook.AuditWebhookPayload) error {
	if s.url == "" {
		return nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode audit payload: %w", err)
	}

	delay := s.backoff
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		lastErr = s.post(ctx, body)
		if lastErr == nil || errors.Is(lastErr, errPermanent) {
			return lastErr
		}
		if attempt == s.maxAttempts {
			break
		}
		slog.Warn("audit webhook attempt failed; retrying",
			"session_id", payload.SessionID, "attempt", attempt, "delay", delay, "error", lastErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("audit webhook failed after %d attempts: %w", s.maxAttempts, lastErr)
}

func (s *AuditSender) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", errPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("audit webhook returned status %d", resp.StatusCode)
	default:
		return fmt.Errorf("%w: status %d", errPermanent, resp.StatusCode)
	}
}
