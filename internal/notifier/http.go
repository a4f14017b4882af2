package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrStatus is wrapped by Send when the alert service answers non-2xx.
var ErrStatus = errors.New("alert service returned non-2xx status")

// maxErrorBody bounds how much of an error response is kept for the log line.
const maxErrorBody = 1024

// StatusError carries the alert service's response for a rejected send.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("alert service error: %d - %s", e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrStatus }

// HTTPNotifier posts alerts as JSON to the alert service
type HTTPNotifier struct {
	url          string
	apiKeyHeader string
	apiKey       string
	logger       zerolog.Logger
	client       *http.Client
}

// NewHTTPNotifier creates a notifier. An empty url turns Send into a log line.
func NewHTTPNotifier(url, apiKeyHeader, apiKey string, timeout time.Duration, logger zerolog.Logger) *HTTPNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPNotifier{
		url:          url,
		apiKeyHeader: apiKeyHeader,
		apiKey:       apiKey,
		logger:       logger.With().Str("component", "notifier").Logger(),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type payload struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Send makes exactly one POST attempt.
func (n *HTTPNotifier) Send(ctx context.Context, subject, body string) error {
	if n.url == "" {
		n.logger.Info().
			Str("subject", subject).
			Str("body", body).
			Msg("Would send notification (alert service not configured)")
		return nil
	}

	jsonData, err := json.Marshal(payload{Subject: subject, Body: body})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if n.apiKey != "" {
		req.Header.Set(n.apiKeyHeader, n.apiKey)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	n.logger.Debug().
		Int("status", resp.StatusCode).
		Str("subject", subject).
		Msg("Notification sent")
	return nil
}
