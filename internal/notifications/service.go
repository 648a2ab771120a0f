package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"proctor/internal/config"
	"proctor/internal/violation"
	"proctor/internal/violationlog"
)

const userAgent = "proctor/0.1.0"

// Service defines the notification surface used by the daemon.
type Service interface {
	NotifyViolation(ctx context.Context, entry violationlog.Entry) error
	NotifySessionReloaded(ctx context.Context, oldSession, newSession string) error
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

	return &ntfyService{
		endpoint:    topic,
		client:      &http.Client{Timeout: timeout},
		dedupWindow: time.Duration(cfg.Notifications.DedupWindowSeconds) * time.Second,
		noise:       cfg.Notifications.Noise,
		reloads:     cfg.Notifications.Reloads,
		now:         time.Now,
		lastSent:    make(map[violation.Kind]time.Time),
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint    string
	client      *http.Client
	dedupWindow time.Duration
	noise       bool
	reloads     bool
	now         func() time.Time

	mu       sync.Mutex
	lastSent map[violation.Kind]time.Time
}

func (n *ntfyService) NotifyViolation(ctx context.Context, entry violationlog.Entry) error {
	if entry.Kind == violation.NoiseDetected && !n.noise {
		return nil
	}
	if n.suppressed(entry.Kind) {
		return nil
	}

	message := entry.Message
	if message == "" {
		message = entry.Kind.Message()
	}
	if entry.SessionID != "" {
		message = fmt.Sprintf("%s\nSession: %s", message, entry.SessionID)
	}
	data := payload{
		title:    "Proctor - " + entry.Kind.Message(),
		message:  message,
		tags:     []string{"proctor", "violation", entry.Kind.String()},
		priority: "high",
	}
	if !entry.Kind.Blocking() {
		data.priority = "low"
	}
	return n.send(ctx, data)
}

// suppressed reports whether kind was sent within the dedup window, and
// records the send otherwise.
func (n *ntfyService) suppressed(kind violation.Kind) bool {
	if n.dedupWindow <= 0 {
		return false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	now := n.now()
	if last, ok := n.lastSent[kind]; ok && now.Sub(last) < n.dedupWindow {
		return true
	}
	n.lastSent[kind] = now
	return false
}

func (n *ntfyService) NotifySessionReloaded(ctx context.Context, oldSession, newSession string) error {
	if !n.reloads {
		return nil
	}
	data := payload{
		title:   "Proctor - Session Reloaded",
		message: fmt.Sprintf("Session %s was hard-reloaded\nNew session: %s", strings.TrimSpace(oldSession), strings.TrimSpace(newSession)),
		tags:    []string{"proctor", "session", "reload"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Proctor - Test",
		message:  "Notification system test",
		tags:     []string{"proctor", "test"},
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

func (noopService) NotifyViolation(context.Context, violationlog.Entry) error      { return nil }
func (noopService) NotifySessionReloaded(context.Context, string, string) error { return nil }
func (noopService) TestNotification(context.Context) error                      { return nil }
