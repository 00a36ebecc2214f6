package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// LogSink writes every event to the structured log.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With("component", "notify_log_sink")}
}

var _ Sink = (*LogSink)(nil)

// Deliver logs the event.
func (s *LogSink) Deliver(ctx context.Context, event *Event) error {
	attrs := []any{"event_id", event.ID, "event_type", event.Type}
	if event.Job != nil {
		attrs = append(attrs, "job_id", event.Job.ID)
	}
	if event.Client != nil {
		attrs = append(attrs, "client_id", event.Client.ID)
	}
	if event.Error != "" {
		attrs = append(attrs, "error", event.Error)
	}
	if event.Reason != "" {
		attrs = append(attrs, "reason", event.Reason)
	}
	s.logger.Info("job lifecycle event", attrs...)
	return nil
}

// WebhookSink POSTs events as JSON to the client's notification target,
// falling back to a default operator URL when the client has none.
type WebhookSink struct {
	defaultURL string
	http       *http.Client
}

// NewWebhookSink creates a WebhookSink. defaultURL may be empty, in
// which case events for clients without a target are dropped.
func NewWebhookSink(defaultURL string) *WebhookSink {
	return &WebhookSink{
		defaultURL: defaultURL,
		http:       &http.Client{Timeout: 10 * time.Second},
	}
}

var _ Sink = (*WebhookSink)(nil)

// Deliver posts the event.
func (s *WebhookSink) Deliver(ctx context.Context, event *Event) error {
	target := s.defaultURL
	if event.Client != nil && event.Client.NotifyURL != "" {
		target = event.Client.NotifyURL
	}
	if target == "" {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook delivery failed with status %d", resp.StatusCode)
	}
	return nil
}
