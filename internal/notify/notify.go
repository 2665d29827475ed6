// Package notify is the outbound side-effect boundary. The core never talks
// to the chat platform directly; it hands (location, text) pairs to a
// Notifier and moves on. Delivery is best-effort — a failed notification is
// logged and never rolls back the state change that produced it.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Notifier delivers a message to a chat location (channel or thread ref).
type Notifier interface {
	Notify(location, text string) error
}

// LogNotifier writes notifications to the log. Used when no relay is
// configured and in tests.
type LogNotifier struct{}

func (LogNotifier) Notify(location, text string) error {
	slog.Info("notify", "location", location, "text", text)
	return nil
}

// WebhookNotifier posts notifications to a chat relay endpoint as JSON.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier returns a notifier posting to url, or nil if url is
// empty (relay disabled).
func NewWebhookNotifier(url string) *WebhookNotifier {
	if url == "" {
		return nil
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *WebhookNotifier) Notify(location, text string) error {
	body, err := json.Marshal(map[string]string{
		"location": location,
		"text":     text,
	})
	if err != nil {
		return fmt.Errorf("notify: marshal: %w", err)
	}

	resp, err := n.client.Post(n.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: relay returned %d", resp.StatusCode)
	}
	return nil
}
