package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/parkpool-dev/parkpool/internal/model"
)

const _defaultSendTimeout = 5 * time.Second

// WebhookNotifier posts events to an external presentation service, one
// POST per (event, recipient).
type WebhookNotifier struct {
	Logger *slog.Logger

	url    string
	client *http.Client
}

func NewWebhookNotifier(logger *slog.Logger, url string) *WebhookNotifier {
	return &WebhookNotifier{
		Logger: logger.With("module", "notify"),
		url:    url,
		client: &http.Client{Timeout: _defaultSendTimeout},
	}
}

type webhookPayload struct {
	Event      Event          `json:"event"`
	FromDriver model.ID       `json:"fromDriver"`
	ToDriver   model.ID       `json:"toDriver"`
	ToUsername string         `json:"toUsername"`
	Args       map[string]any `json:"args,omitempty"`
}

func (n *WebhookNotifier) Notify(ctx context.Context, event Event, from, to model.Driver, args Args) bool {
	logger := n.Logger.With("event", string(event), "toDriver", to.ID)

	body, err := json.Marshal(webhookPayload{
		Event:      event,
		FromDriver: from.ID,
		ToDriver:   to.ID,
		ToUsername: to.Username,
		Args:       args,
	})
	if err != nil {
		logger.Warn("failed to encode notification", "error", err)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		logger.Warn("failed to build notification request", "error", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		logger.Warn("failed to deliver notification", "error", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.Warn("notification rejected", "status", resp.StatusCode)
		return false
	}

	return true
}
