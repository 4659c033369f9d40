package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"distill/internal/config"
)

const userAgent = "Distill-Go/0.1.0"

// Service defines the notification surface exposed to daemon components.
type Service interface {
	NotifyAuthRequired(ctx context.Context, detail string) error
	NotifyConsentMissing(ctx context.Context) error
	NotifyBatchFailed(ctx context.Context, analysisType string, failed int) error
	NotifyQueueDrained(ctx context.Context, processed int, duration time.Duration) error
	NotifySuggestionsPending(ctx context.Context, count int) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &http.Client{Timeout: timeout}
	return &ntfyService{
		endpoint: topic,
		client:   client,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyAuthRequired(ctx context.Context, detail string) error {
	detail = strings.TrimSpace(detail)
	message := "Analysis tool needs to be logged in again"
	if detail != "" {
		message = fmt.Sprintf("%s: %s", message, detail)
	}
	data := payload{
		title:    "Distill - Login Required",
		message:  message,
		tags:     []string{"distill", "auth", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyConsentMissing(ctx context.Context) error {
	data := payload{
		title:    "Distill - Consent Missing",
		message:  "Analysis is paused: consent is not granted in the configuration",
		tags:     []string{"distill", "consent", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyBatchFailed(ctx context.Context, analysisType string, failed int) error {
	analysisType = strings.TrimSpace(analysisType)
	if analysisType == "" {
		analysisType = "unknown"
	}
	data := payload{
		title:   "Distill - Batch Failures",
		message: fmt.Sprintf("%d %s item(s) failed permanently", failed, analysisType),
		tags:    []string{"distill", "batch", "failed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyQueueDrained(ctx context.Context, processed int, duration time.Duration) error {
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	data := payload{
		title:   "Distill - Queue Drained",
		message: fmt.Sprintf("Processed %d analysis item(s) in %s", processed, duration),
		tags:    []string{"distill", "queue", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifySuggestionsPending(ctx context.Context, count int) error {
	data := payload{
		title:   "Distill - Suggestions Pending",
		message: fmt.Sprintf("%d suggestion(s) awaiting review", count),
		tags:    []string{"distill", "suggestions", "review"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Distill - Test",
		message:  "Notification system test",
		tags:     []string{"distill", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
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

func (noopService) NotifyAuthRequired(context.Context, string) error             { return nil }
func (noopService) NotifyConsentMissing(context.Context) error                   { return nil }
func (noopService) NotifyBatchFailed(context.Context, string, int) error         { return nil }
func (noopService) NotifyQueueDrained(context.Context, int, time.Duration) error { return nil }
func (noopService) NotifySuggestionsPending(context.Context, int) error          { return nil }
func (noopService) TestNotification(context.Context) error                       { return nil }
