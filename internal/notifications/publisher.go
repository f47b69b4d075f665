package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"docflow/internal/config"
	"docflow/internal/model"
)

const userAgent = "docflow/0.1.0"

// Publisher pushes alerts to an external channel.
type Publisher interface {
	NotifyAssigned(ctx context.Context, n model.Notification) error
	TestNotification(ctx context.Context) error
}

// NewPublisher returns an ntfy publisher when a topic is configured and
// assignment pushes are enabled, and a no-op publisher otherwise.
func NewPublisher(cfg *config.Config) Publisher {
	if cfg == nil {
		return noopPublisher{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopPublisher{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyPublisher{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		assigned: cfg.Notifications.Assigned,
	}
}

// NewNop returns a publisher that drops everything.
func NewNop() Publisher {
	return noopPublisher{}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyPublisher struct {
	endpoint string
	client   *http.Client
	assigned bool
}

func (p *ntfyPublisher) NotifyAssigned(ctx context.Context, n model.Notification) error {
	if !p.assigned {
		return nil
	}
	tags := []string{"docflow", "assigned"}
	if step := strings.TrimSpace(n.Step); step != "" {
		tags = append(tags, strings.ReplaceAll(step, ",", " "))
	}
	title := n.Title
	if owner := strings.TrimSpace(n.Owner); owner != "" {
		title = fmt.Sprintf("%s (@%s)", title, owner)
	}
	return p.send(ctx, message{title: title, body: n.Message, tags: tags})
}

func (p *ntfyPublisher) TestNotification(ctx context.Context) error {
	return p.send(ctx, message{
		title:    "docflow - Test",
		body:     "Notification channel test",
		tags:     []string{"docflow", "test"},
		priority: "low",
	})
}

func (p *ntfyPublisher) send(ctx context.Context, m message) error {
	if p == nil || p.client == nil {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(m.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if m.title != "" {
		req.Header.Set("Title", m.title)
	}
	if len(m.tags) > 0 {
		req.Header.Set("Tags", strings.Join(m.tags, ","))
	}
	if m.priority != "" && m.priority != "default" {
		req.Header.Set("Priority", m.priority)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopPublisher struct{}

func (noopPublisher) NotifyAssigned(context.Context, model.Notification) error { return nil }
func (noopPublisher) TestNotification(context.Context) error                   { return nil }
