// Package push forwards mobile notification payloads to an external
// delivery endpoint.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"care-relay/contract"
)

// WebhookDispatcher posts each notification as a JSON document to a
// configured HTTP endpoint. The endpoint owns the actual device
// delivery (FCM, APNS, SMS fallback).
type WebhookDispatcher struct {
	endpoint string
	client   *http.Client
	log      *slog.Logger
}

func NewWebhookDispatcher(endpoint string, timeout time.Duration, log *slog.Logger) *WebhookDispatcher {
	return &WebhookDispatcher{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		log:      log,
	}
}

func (d *WebhookDispatcher) Dispatch(ctx context.Context, p contract.Push) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding push payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting push to %s: %w", d.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("push endpoint %s answered %d", d.endpoint, resp.StatusCode)
	}
	d.log.Debug("push dispatched", "to", p.To, "title", p.Title)
	return nil
}

// NoopDispatcher drops every push. Used when no endpoint is configured.
type NoopDispatcher struct{}

func (NoopDispatcher) Dispatch(context.Context, contract.Push) error {
	return nil
}
