package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"nftpin/internal/config"
)

const userAgent = "nftpin/0.1.0"

// Service defines the notification surface exposed to the daemon.
type Service interface {
	NotifyPinned(ctx context.Context, tokenPath string, cidCount int) error
	NotifyPinFailed(ctx context.Context, tokenPath, code, message string) error
	NotifyUnpinFailed(ctx context.Context, tokenPath, message string) error
	NotifyAutoPinChanged(ctx context.Context, enabled bool) error
	TestNotification(ctx context.Context) error
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

func (n *ntfyService) NotifyPinned(ctx context.Context, tokenPath string, cidCount int) error {
	noun := "CIDs"
	if cidCount == 1 {
		noun = "CID"
	}
	data := payload{
		title:   "nftpin - Pinned",
		message: fmt.Sprintf("📌 Pinned %s (%d %s)", strings.TrimSpace(tokenPath), cidCount, noun),
		tags:    []string{"nftpin", "pin", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyPinFailed(ctx context.Context, tokenPath, code, message string) error {
	var builder strings.Builder
	builder.WriteString("❌ Pinning failed for ")
	builder.WriteString(strings.TrimSpace(tokenPath))
	if code = strings.TrimSpace(code); code != "" {
		builder.WriteString(" [")
		builder.WriteString(code)
		builder.WriteString("]")
	}
	if message = strings.TrimSpace(message); message != "" {
		builder.WriteString(": ")
		builder.WriteString(message)
	}
	data := payload{
		title:    "nftpin - Pin Failed",
		message:  builder.String(),
		tags:     []string{"nftpin", "pin", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyUnpinFailed(ctx context.Context, tokenPath, message string) error {
	text := fmt.Sprintf("⚠️ Unpinning failed for %s", strings.TrimSpace(tokenPath))
	if message = strings.TrimSpace(message); message != "" {
		text += ": " + message
	}
	data := payload{
		title:   "nftpin - Unpin Failed",
		message: text,
		tags:    []string{"nftpin", "unpin", "failed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyAutoPinChanged(ctx context.Context, enabled bool) error {
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	data := payload{
		title:   "nftpin - Auto-pin " + state,
		message: fmt.Sprintf("Auto-pin %s", state),
		tags:    []string{"nftpin", "autopin", state},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "nftpin - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"nftpin", "test"},
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

func (noopService) NotifyPinned(context.Context, string, int) error               { return nil }
func (noopService) NotifyPinFailed(context.Context, string, string, string) error { return nil }
func (noopService) NotifyUnpinFailed(context.Context, string, string) error       { return nil }
func (noopService) NotifyAutoPinChanged(context.Context, bool) error              { return nil }
func (noopService) TestNotification(context.Context) error                        { return nil }
