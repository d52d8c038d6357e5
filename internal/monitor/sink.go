package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"mailmon/internal/domain/email"
)

// Sink receives one classification result per processed message.
// Delivery is fire-and-forget: a failing sink is logged by the poller and
// never blocks marking the message seen.
type Sink interface {
	Deliver(ctx context.Context, msg email.Message, result email.Classification) error
}

// LogSink writes results to the structured log.
type LogSink struct {
	Logger *slog.Logger
}

func (s *LogSink) Deliver(_ context.Context, msg email.Message, result email.Classification) error {
	s.Logger.Info("classified",
		"id", msg.ID,
		"from", msg.From,
		"subject", msg.Subject,
		"category", result.Category,
		"priority", result.Priority,
		"summary", result.Summary,
		"action_items", len(result.ActionItems),
	)
	return nil
}

// WebhookSink posts each result to a workflow-automation endpoint.
type WebhookSink struct {
	URL    string
	Client *http.Client
}

func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{
		URL: url,
		Client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type webhookPayload struct {
	MessageID   string   `json:"message_id"`
	Sender      string   `json:"sender"`
	Subject     string   `json:"subject"`
	ReceivedAt  string   `json:"received_at"`
	Category    string   `json:"category"`
	Priority    string   `json:"priority"`
	Summary     string   `json:"summary"`
	ActionItems []string `json:"action_items"`
}

func (s *WebhookSink) Deliver(ctx context.Context, msg email.Message, result email.Classification) error {
	items := result.ActionItems
	if items == nil {
		items = []string{}
	}

	body, err := json.Marshal(webhookPayload{
		MessageID:   msg.ID,
		Sender:      msg.From,
		Subject:     msg.Subject,
		ReceivedAt:  msg.ReceivedAt.Format(time.RFC3339),
		Category:    result.Category.String(),
		Priority:    result.Priority.String(),
		Summary:     result.Summary,
		ActionItems: items,
	})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
