// Package onesignal sends push notifications through the OneSignal REST API.
package onesignal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultBaseURL is the OneSignal v1 REST endpoint.
const DefaultBaseURL = "https://onesignal.com/api/v1"

// Config holds OneSignal credentials.
type Config struct {
	BaseURL  string
	AppID    string
	APIKey   string
	Segments []string
	Timeout  time.Duration
}

// Client posts notifications to OneSignal.
type Client struct {
	cfg    Config
	client *resty.Client
}

type notificationRequest struct {
	AppID            string            `json:"app_id"`
	Contents         map[string]string `json:"contents"`
	Headings         map[string]string `json:"headings"`
	IncludedSegments []string          `json:"included_segments"`
}

type notificationResponse struct {
	ID         string `json:"id"`
	Recipients int    `json:"recipients"`
	Errors     any    `json:"errors"`
}

// New builds a Client. AppID and APIKey are required.
func New(cfg Config) (*Client, error) {
	if cfg.AppID == "" || cfg.APIKey == "" {
		return nil, errors.New("onesignal app id and api key are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if len(cfg.Segments) == 0 {
		cfg.Segments = []string{"All"}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetTimeout(cfg.Timeout)
	client.SetHeader("Content-Type", "application/json; charset=utf-8")
	client.SetHeader("Authorization", "Basic "+cfg.APIKey)

	return &Client{cfg: cfg, client: client}, nil
}

// Send pushes one English notification to the configured segments and returns its id.
func (c *Client) Send(ctx context.Context, heading, message string) (string, error) {
	var out notificationResponse
	res, err := c.client.R().
		SetContext(ctx).
		SetBody(notificationRequest{
			AppID:            c.cfg.AppID,
			Contents:         map[string]string{"en": message},
			Headings:         map[string]string{"en": heading},
			IncludedSegments: c.cfg.Segments,
		}).
		SetResult(&out).
		Post("/notifications")
	if err != nil {
		return "", fmt.Errorf("send notification: %w", err)
	}
	if res.IsError() {
		return "", fmt.Errorf("send notification: status %d: %s", res.StatusCode(), res.String())
	}
	return out.ID, nil
}
