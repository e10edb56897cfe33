package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"lectern/internal/config"
)

const userAgent = "lectern/0.1"

// Event identifies a notification type.
type Event string

const (
	EventIngestionStarted   Event = "ingestion_started"
	EventIngestionCompleted Event = "ingestion_completed"
	EventIngestionFailed    Event = "ingestion_failed"
	EventDaemonStarted      Event = "daemon_started"
	EventTest               Event = "test"
)

// Payload carries event fields. Unknown keys are ignored.
type Payload map[string]any

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	book := payloadString(payload, "bookID")
	switch event {
	case EventIngestionCompleted:
		body := fmt.Sprintf("🎧 Narration ready: %s", book)
		if sections, ok := payload["sections"].(int); ok && sections > 0 {
			body += fmt.Sprintf(" (%d sections)", sections)
		}
		if ms, ok := payload["durationMs"].(int64); ok && ms > 0 {
			body += fmt.Sprintf(", %s", (time.Duration(ms) * time.Millisecond).Round(time.Second))
		}
		return message{
			title: "Lectern - Narration Ready",
			body:  body,
			tags:  []string{"lectern", "ingestion", "completed"},
		}, true
	case EventIngestionFailed:
		var builder strings.Builder
		builder.WriteString("❌ Narration failed: ")
		builder.WriteString(book)
		if job := payloadString(payload, "jobType"); job != "" {
			builder.WriteString(" (")
			builder.WriteString(job)
			builder.WriteString(")")
		}
		if reason := payloadString(payload, "error"); reason != "" {
			builder.WriteString("\n")
			builder.WriteString(reason)
		}
		return message{
			title:    "Lectern - Error",
			body:     builder.String(),
			tags:     []string{"lectern", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Lectern - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"lectern", "test"},
			priority: "low",
		}, true
	default:
		// started events are log-only
		return message{}, false
	}
}

func payloadString(payload Payload, key string) string {
	if payload == nil {
		return ""
	}
	switch v := payload[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	case error:
		return strings.TrimSpace(v.Error())
	default:
		return ""
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
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

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
