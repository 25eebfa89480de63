package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"pixvid/internal/scheduler"
)

// WebhookNotifier posts terminal job events to a configured endpoint with
// bounded retries.
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

// NewWebhookNotifier builds a notifier with a retrying HTTP client.
func NewWebhookNotifier(url string, logger zerolog.Logger) *WebhookNotifier {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = nil

	return &WebhookNotifier{
		url:    url,
		client: retryClient.StandardClient(),
		logger: logger,
	}
}

type webhookPayload struct {
	JobID    string `json:"job_id"`
	UserID   string `json:"user_id"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Error    string `json:"error,omitempty"`
	At       string `json:"at"`
}

// Notify posts the event. Failures are logged and swallowed.
func (n *WebhookNotifier) Notify(ctx context.Context, ev scheduler.Event) {
	payload := webhookPayload{
		JobID:    ev.JobID,
		UserID:   ev.UserID,
		Status:   string(ev.Status),
		Progress: ev.Progress,
		Error:    ev.Error,
		At:       ev.At.Format(time.RFC3339),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Error().Err(err).Str("job_id", ev.JobID).Msg("notify: marshal payload failed")
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		n.logger.Error().Err(err).Str("job_id", ev.JobID).Msg("notify: build request failed")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn().Err(err).Str("job_id", ev.JobID).Msg("notify: webhook delivery failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		n.logger.Warn().Int("status", resp.StatusCode).Str("job_id", ev.JobID).Msg("notify: webhook rejected event")
	}
}
