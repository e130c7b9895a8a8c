package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/switchguard/switchguard/internal/logger"
	"github.com/switchguard/switchguard/internal/ports"
)

// WebhookNotifier posts notifications to HTTP webhooks. Ordinary mode-change
// notifications and critical incident alerts go to separate endpoints so the
// incident channel cannot be drowned out.
type WebhookNotifier struct {
	client      *http.Client
	opsURL      string
	criticalURL string
	log         logger.Logger
}

type webhookMessage struct {
	To       string `json:"to,omitempty"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	Severity string `json:"severity"`
	SentAt   string `json:"sent_at"`
}

// NewWebhookNotifier creates a notifier. Empty URLs degrade to log-only
// delivery, which keeps local development working without endpoints.
func NewWebhookNotifier(opsURL, criticalURL string, timeout time.Duration, log logger.Logger) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		client:      &http.Client{Timeout: timeout},
		opsURL:      opsURL,
		criticalURL: criticalURL,
		log:         log,
	}
}

// Send delivers an ordinary notification
func (n *WebhookNotifier) Send(ctx context.Context, to, subject, body string) error {
	return n.post(ctx, n.opsURL, webhookMessage{
		To:       to,
		Subject:  subject,
		Body:     body,
		Severity: "info",
		SentAt:   time.Now().UTC().Format(time.RFC3339),
	})
}

// SendCritical delivers an alert on the incident channel
func (n *WebhookNotifier) SendCritical(ctx context.Context, subject, body string) error {
	return n.post(ctx, n.criticalURL, webhookMessage{
		Subject:  subject,
		Body:     body,
		Severity: "critical",
		SentAt:   time.Now().UTC().Format(time.RFC3339),
	})
}

func (n *WebhookNotifier) post(ctx context.Context, url string, msg webhookMessage) error {
	if url == "" {
		n.log.Info(ctx, "Notification (log-only delivery)", map[string]interface{}{
			"to":       msg.To,
			"subject":  msg.Subject,
			"severity": msg.Severity,
		})
		return nil
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

var _ ports.Notifier = (*WebhookNotifier)(nil)
