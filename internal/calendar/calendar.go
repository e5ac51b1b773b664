// Package calendar classifies business days via an external holiday
// service. The service being down must never break a rollover, so every
// failure path falls back to a plain working day.
package calendar

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

const (
	_defaultRequestTimeout = 5 * time.Second

	_fallbackLabel = "Working day"
)

type Classifier interface {
	ClassifyDay(ctx context.Context, day time.Time) (isWorkingDay bool, label string)
}

type Client struct {
	Logger *slog.Logger

	baseURL string
	client  *http.Client
}

func NewClient(logger *slog.Logger, baseURL string) *Client {
	return &Client{
		Logger:  logger.With("module", "calendar"),
		baseURL: baseURL,
		client:  &http.Client{Timeout: _defaultRequestTimeout},
	}
}

type dayInfoResponse struct {
	IsWorkingDay *bool  `json:"isWorkingDay"`
	Holiday      string `json:"holiday"`
}

func (c *Client) ClassifyDay(ctx context.Context, day time.Time) (bool, string) {
	url := c.baseURL + "/" + day.Format("2006/01/02")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.Logger.Warn("failed to build calendar request", "error", err)
		return true, _fallbackLabel
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.Logger.Warn("calendar service unavailable", "error", err)
		return true, _fallbackLabel
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.Logger.Warn("calendar service rejected request", "status", resp.StatusCode)
		return true, _fallbackLabel
	}

	var info dayInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		c.Logger.Warn("failed to decode calendar response", "error", err)
		return true, _fallbackLabel
	}

	isWorkingDay := info.IsWorkingDay == nil || *info.IsWorkingDay

	label := info.Holiday
	if label == "" {
		if isWorkingDay {
			label = _fallbackLabel
		} else {
			label = "Day off"
		}
	}

	return isWorkingDay, label
}

// Fallback always reports a working day; used when no calendar service is
// configured.
type Fallback struct{}

func (Fallback) ClassifyDay(context.Context, time.Time) (bool, string) {
	return true, _fallbackLabel
}
