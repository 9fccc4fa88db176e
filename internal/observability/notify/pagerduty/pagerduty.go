package pagerduty

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/target/jobtrack/internal/observability/notify"
)

// APIEndpoint is the PagerDuty Events API v2 ingest URL.
const APIEndpoint = "https://events.pagerduty.com/v2/enqueue"

// Config captures runtime configuration for the PagerDuty sink.
type Config struct {
	RoutingKey string
	Source     string
	Component  string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// Endpoint overrides APIEndpoint.
	Endpoint string
}

// Client triggers PagerDuty incidents for failed job records.
type Client struct {
	routingKey string
	source     string
	component  string
	endpoint   string
	retryLimit int
	client     *http.Client
}

// NewClient constructs a PagerDuty events client. A routing key is required.
func NewClient(cfg Config) (*Client, error) {
	key := strings.TrimSpace(cfg.RoutingKey)
	if key == "" {
		return nil, errors.New("pagerduty routing key is required")
	}
	return &Client{
		routingKey: key,
		source:     notify.Fallback(strings.TrimSpace(cfg.Source), "jobtrack"),
		component:  notify.Fallback(strings.TrimSpace(cfg.Component), "jobtrack"),
		endpoint:   notify.Fallback(strings.TrimSpace(cfg.Endpoint), APIEndpoint),
		retryLimit: max(cfg.RetryLimit, 0),
		client:     notify.HTTPClient(cfg.Client, cfg.Timeout),
	}, nil
}

// SendRecordFailure submits a trigger event.
func (c *Client) SendRecordFailure(ctx context.Context, payload notify.RecordFailurePayload) error {
	body, err := json.Marshal(c.buildEvent(payload))
	if err != nil {
		return fmt.Errorf("encode pagerduty payload: %w", err)
	}
	return notify.WithRetry(ctx, c.retryLimit, func(ctx context.Context) error {
		return notify.PostJSON(ctx, c.client, "pagerduty api", c.endpoint, body)
	})
}

// buildEvent dedups on kind:record_id so repeated alerts for one record collapse into one incident.
func (c *Client) buildEvent(payload notify.RecordFailurePayload) map[string]any {
	at := payload.OccurredAt.UTC()
	if payload.OccurredAt.IsZero() {
		at = time.Now().UTC()
	}

	details := map[string]any{
		"record_id":   payload.RecordID,
		"kind":        payload.Kind,
		"handle":      payload.Handle,
		"phase":       payload.Phase,
		"error":       payload.Error,
		"error_class": payload.ErrorClass,
	}
	if payload.Actor != "" {
		details["submitted_by"] = payload.Actor
	}
	for k, v := range payload.Metadata {
		if _, taken := details[k]; !taken {
			details[k] = v
		}
	}

	subject := notify.Fallback(payload.Label, notify.Fallback(payload.RecordID, "unknown"))
	return map[string]any{
		"routing_key":  c.routingKey,
		"event_action": "trigger",
		"dedup_key":    strings.Trim(payload.Kind+":"+payload.RecordID, ":"),
		"payload": map[string]any{
			"summary":        fmt.Sprintf("Job record %s failed", subject),
			"severity":       strings.ToLower(notify.Fallback(payload.Severity, notify.SeverityCritical)),
			"source":         c.source,
			"component":      c.component,
			"timestamp":      at.Format(time.RFC3339),
			"custom_details": details,
		},
	}
}
