// Package push delivers out-of-band notifications. Two sinks are supported:
// an ntfy topic for phone push (the channel the two-factor approval numbers
// ride on) and a chat webhook. Delivery is best effort; a dead sink must
// never take a run down, so failures are logged and swallowed.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"pointsweep/internal/domain/model"
	"pointsweep/internal/domain/port/driven"
)

const defaultTimeout = 10 * time.Second

// NtfyConfig points at an ntfy server and topic. Token is optional and sent
// as a bearer credential when set.
type NtfyConfig struct {
	ServerURL string
	Topic     string
	Token     string
}

// Ntfy publishes notifications to an ntfy topic.
type Ntfy struct {
	cfg    NtfyConfig
	client *http.Client
	logger *slog.Logger
}

// NewNtfy creates an ntfy notifier.
func NewNtfy(cfg NtfyConfig, logger *slog.Logger) *Ntfy {
	return &Ntfy{
		cfg:    cfg,
		client: &http.Client{Timeout: defaultTimeout},
		logger: logger,
	}
}

func (n *Ntfy) Notify(ctx context.Context, severity model.NotifySeverity, title, body string) {
	url := strings.TrimSuffix(n.cfg.ServerURL, "/") + "/" + n.cfg.Topic
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		n.logger.Warn("ntfy request build failed", "error", err)
		return
	}
	req.Header.Set("Title", title)
	req.Header.Set("Priority", ntfyPriority(severity))
	req.Header.Set("Tags", ntfyTags(severity))
	if n.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+n.cfg.Token)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("ntfy delivery failed", "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		n.logger.Warn("ntfy delivery rejected", "status", resp.StatusCode)
		return
	}
	n.logger.Debug("ntfy notification sent", "title", title, "severity", string(severity))
}

func ntfyPriority(severity model.NotifySeverity) string {
	switch severity {
	case model.NotifyError:
		return "max"
	case model.NotifyWarn:
		return "high"
	default:
		return "default"
	}
}

func ntfyTags(severity model.NotifySeverity) string {
	switch severity {
	case model.NotifyError:
		return "rotating_light"
	case model.NotifyWarn:
		return "warning"
	default:
		return "medal_sports"
	}
}

// Webhook posts notifications as chat messages to a webhook URL.
type Webhook struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewWebhook creates a webhook notifier.
func NewWebhook(url string, logger *slog.Logger) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: defaultTimeout},
		logger: logger,
	}
}

func (w *Webhook) Notify(ctx context.Context, severity model.NotifySeverity, title, body string) {
	payload, err := json.Marshal(map[string]string{
		"content": fmt.Sprintf("[%s] %s\n%s", strings.ToUpper(string(severity)), title, body),
	})
	if err != nil {
		w.logger.Warn("webhook payload build failed", "error", err)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		w.logger.Warn("webhook request build failed", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Warn("webhook delivery failed", "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		w.logger.Warn("webhook delivery rejected", "status", resp.StatusCode)
	}
}

// Multi fans every notification out to all sinks.
type Multi []driven.Notifier

func (m Multi) Notify(ctx context.Context, severity model.NotifySeverity, title, body string) {
	for _, n := range m {
		n.Notify(ctx, severity, title, body)
	}
}

// Nop discards all notifications. Used when no sink is configured.
type Nop struct{}

func (Nop) Notify(context.Context, model.NotifySeverity, string, string) {}
