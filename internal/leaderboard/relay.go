package leaderboard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// RelayRenderer renders boards through the chat relay's message endpoints.
// The relay owns platform specifics; this side only speaks refs and content.
type RelayRenderer struct {
	base   string
	client *http.Client
}

// NewRelayRenderer returns a renderer for the relay at base, or nil if base
// is empty (relay disabled).
func NewRelayRenderer(base string) *RelayRenderer {
	if base == "" {
		return nil
	}
	return &RelayRenderer{
		base:   base,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

type relayMessage struct {
	Ref     string `json:"ref,omitempty"`
	Content string `json:"content"`
}

// Render posts a new board message and returns the relay's ref for it.
func (r *RelayRenderer) Render(content string) (string, error) {
	body, _ := json.Marshal(relayMessage{Content: content})
	resp, err := r.client.Post(r.base+"/messages", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("relay render: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("relay render: status %d", resp.StatusCode)
	}

	var out relayMessage
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("relay render: decode: %w", err)
	}
	if out.Ref == "" {
		return "", fmt.Errorf("relay render: empty ref")
	}
	return out.Ref, nil
}

// Update edits an existing board message in place. A 404 from the relay means
// the message was deleted on the platform side.
func (r *RelayRenderer) Update(ref, content string) error {
	body, _ := json.Marshal(relayMessage{Content: content})
	req, err := http.NewRequest(http.MethodPut, r.base+"/messages/"+ref, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("relay update: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("relay update: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("relay update: status %d", resp.StatusCode)
	}
	return nil
}

// History lists the relay's recent messages, newest first.
func (r *RelayRenderer) History(limit int) ([]Rendered, error) {
	resp, err := r.client.Get(r.base + "/messages?limit=" + strconv.Itoa(limit))
	if err != nil {
		return nil, fmt.Errorf("relay history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("relay history: status %d", resp.StatusCode)
	}

	var msgs []relayMessage
	if err := json.NewDecoder(resp.Body).Decode(&msgs); err != nil {
		return nil, fmt.Errorf("relay history: decode: %w", err)
	}

	out := make([]Rendered, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, Rendered{Ref: m.Ref, Content: m.Content})
	}
	return out, nil
}

// LogRenderer is the no-relay fallback: boards go to the log, refs are
// process-local. Used in development and tests.
type LogRenderer struct {
	rendered map[string]string
}

// NewLogRenderer returns an in-memory renderer.
func NewLogRenderer() *LogRenderer {
	return &LogRenderer{rendered: make(map[string]string)}
}

func (l *LogRenderer) Render(content string) (string, error) {
	ref := uuid.NewString()
	l.rendered[ref] = content
	slog.Info("leaderboard rendered", "ref", ref, "content", content)
	return ref, nil
}

func (l *LogRenderer) Update(ref, content string) error {
	if _, ok := l.rendered[ref]; !ok {
		return ErrNotFound
	}
	l.rendered[ref] = content
	slog.Info("leaderboard updated", "ref", ref)
	return nil
}

func (l *LogRenderer) History(limit int) ([]Rendered, error) {
	out := make([]Rendered, 0, len(l.rendered))
	for ref, content := range l.rendered {
		if len(out) >= limit {
			break
		}
		out = append(out, Rendered{Ref: ref, Content: content})
	}
	return out, nil
}
