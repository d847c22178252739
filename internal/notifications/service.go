package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"carescribe/internal/config"
)

const userAgent = "carescribe/0.1.0"

// Event identifies a notification type.
type Event string

const (
	EventJobCompleted       Event = "job_completed"
	EventJobFailed          Event = "job_failed"
	EventReprocessCompleted Event = "reprocess_completed"
	EventTest               Event = "test"
)

// Payload carries event fields. Keys used per event:
//
//	job_completed:       recordName, fileName, displayName
//	job_failed:          fileName, stage, error
//	reprocess_completed: subject, processed, failed, skipped
type Payload map[string]any

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
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
		enabled: map[Event]bool{
			EventJobCompleted:       cfg.Notifications.JobCompleted,
			EventJobFailed:          cfg.Notifications.JobFailed,
			EventReprocessCompleted: cfg.Notifications.Reprocess,
			EventTest:               true,
		},
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
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if n == nil || !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventJobCompleted:
		name := payload.text("recordName")
		body := fmt.Sprintf("Transcript ready: %s", name)
		if who := payload.text("displayName"); who != "" {
			body = fmt.Sprintf("%s (%s)", body, who)
		}
		if file := payload.text("fileName"); file != "" {
			body = fmt.Sprintf("%s\nSource: %s", body, file)
		}
		return message{
			title: "carescribe - Session Processed",
			body:  body,
			tags:  []string{"carescribe", "job", "completed"},
		}, true
	case EventJobFailed:
		var builder strings.Builder
		builder.WriteString("Processing failed")
		if file := payload.text("fileName"); file != "" {
			builder.WriteString(" for ")
			builder.WriteString(file)
		}
		if stage := payload.text("stage"); stage != "" {
			builder.WriteString(" during ")
			builder.WriteString(stage)
		}
		builder.WriteString(": ")
		if errText := payload.text("error"); errText != "" {
			builder.WriteString(errText)
		} else {
			builder.WriteString("unknown")
		}
		return message{
			title:    "carescribe - Job Failed",
			body:     builder.String(),
			tags:     []string{"carescribe", "job", "error"},
			priority: "high",
		}, true
	case EventReprocessCompleted:
		scope := payload.text("subject")
		if scope == "" {
			scope = "all subjects"
		}
		body := fmt.Sprintf("Reprocessing finished for %s: %d updated, %d skipped",
			scope, payload.count("processed"), payload.count("skipped"))
		title := "carescribe - Reprocess Complete"
		if failed := payload.count("failed"); failed > 0 {
			body = fmt.Sprintf("%s, %d failed", body, failed)
			title = "carescribe - Reprocess Complete (with errors)"
		}
		return message{
			title: title,
			body:  body,
			tags:  []string{"carescribe", "reprocess", "completed"},
		}, true
	case EventTest:
		return message{
			title:    "carescribe - Test",
			body:     "Notification system test",
			tags:     []string{"carescribe", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n.client == nil {
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

func (p Payload) text(key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (p Payload) count(key string) int {
	if p == nil {
		return 0
	}
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
