package notifications

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"sloppy/internal/config"
	"sloppy/internal/content"
)

const userAgent = "sloppy/0.1"

// Service defines the alerts the daemon and CLI can raise.
type Service interface {
	NotifyPublished(ctx context.Context, item *content.Item) error
	NotifyJobFailed(ctx context.Context, item *content.Item, kind content.Kind, errText string) error
	TestNotification(ctx context.Context) error
	Enabled() bool
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", userAgent)
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
	click    string
}

type ntfyService struct {
	endpoint string
	client   *resty.Client
}

func (n *ntfyService) Enabled() bool { return true }

func (n *ntfyService) NotifyPublished(ctx context.Context, item *content.Item) error {
	if item == nil {
		return nil
	}
	message := fmt.Sprintf("Published: %s", preview(item.Prompt))
	if ref := strings.TrimSpace(item.PublishRef); ref != "" {
		message += "\n" + ref
	}
	if cost := item.TotalCost(); cost > 0 {
		message += fmt.Sprintf("\nCost: $%.4f", cost)
	}
	return n.send(ctx, payload{
		title:   "Sloppy - Published",
		message: message,
		tags:    []string{"sloppy", "publish", "completed"},
		click:   strings.TrimSpace(item.PublishRef),
	})
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, item *content.Item, kind content.Kind, errText string) error {
	errText = strings.TrimSpace(errText)
	if errText == "" {
		errText = "unknown error"
	}
	subject := "unknown item"
	if item != nil {
		subject = fmt.Sprintf("%s (%s)", preview(item.Prompt), item.ID)
	}
	stage := string(kind)
	if stage == "" {
		stage = "job"
	}
	return n.send(ctx, payload{
		title:    "Sloppy - " + strings.ToUpper(stage[:1]) + stage[1:] + " Failed",
		message:  fmt.Sprintf("%s failed for %s: %s", stage, subject, errText),
		tags:     []string{"sloppy", stage, "error"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "Sloppy - Test",
		message:  "Notification system test",
		tags:     []string{"sloppy", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "text/plain; charset=utf-8").
		SetBody(data.message)
	if data.title != "" {
		req.SetHeader("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.SetHeader("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.SetHeader("Priority", data.priority)
	}
	if data.click != "" {
		req.SetHeader("Click", data.click)
	}

	resp, err := req.Post(n.endpoint)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	if resp.StatusCode() >= 300 {
		body := strings.TrimSpace(resp.String())
		if len(body) > 2048 {
			body = body[:2048]
		}
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode(), body)
	}
	return nil
}

func preview(prompt string) string {
	prompt = strings.Join(strings.Fields(prompt), " ")
	if runes := []rune(prompt); len(runes) > 60 {
		return string(runes[:59]) + "…"
	}
	if prompt == "" {
		return "untitled"
	}
	return prompt
}

type noopService struct{}

func (noopService) Enabled() bool                                                              { return false }
func (noopService) NotifyPublished(context.Context, *content.Item) error                       { return nil }
func (noopService) NotifyJobFailed(context.Context, *content.Item, content.Kind, string) error { return nil }
func (noopService) TestNotification(context.Context) error                                     { return nil }
