// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BeatGate Contributors

// Package alert delivers audit events from the login gate to staff.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Event is an audit/alert event emitted by the login gate.
type Event struct {
	Title  string
	Detail string
	UserID int32
}

// Notifier receives audit events. Delivery is best effort; the login
// outcome never depends on it.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// LogNotifier writes events to the structured log.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify logs the event.
func (n *LogNotifier) Notify(ctx context.Context, ev Event) {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "audit event",
		"title", ev.Title,
		"detail", ev.Detail,
		"user_id", ev.UserID,
	)
}

// WebhookNotifier posts events as embeds to a chat webhook.
type WebhookNotifier struct {
	URL    string
	Logger *slog.Logger
	client *http.Client
}

// NewWebhookNotifier creates a notifier posting to the given URL.
func NewWebhookNotifier(url string, logger *slog.Logger) *WebhookNotifier {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &WebhookNotifier{
		URL:    url,
		Logger: logger,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// Notify posts the event. Failures are logged and swallowed.
func (n *WebhookNotifier) Notify(ctx context.Context, ev Event) {
	payload := map[string]any{
		"embeds": []map[string]any{{
			"title":       ev.Title,
			"description": ev.Detail,
			"color":       0xadd8e6,
			"footer":      map[string]any{"text": "login gate"},
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		n.Logger.ErrorContext(ctx, "marshal webhook payload", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		n.Logger.ErrorContext(ctx, "build webhook request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.Logger.WarnContext(ctx, "webhook delivery failed", "error", err, "user_id", ev.UserID)
		return
	}
	defer resp.Body.Close() //nolint:errcheck // response body unused

	if resp.StatusCode >= 300 {
		n.Logger.WarnContext(ctx, "webhook rejected", "status", resp.StatusCode, "user_id", ev.UserID)
	}
}
