package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/target/jobtrack/internal/observability/notify"
)

// Config captures the subset of Slack webhook behaviour we need.
type Config struct {
	WebhookURL string
	Channel    string
	Username   string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// RecordURLPrefix, when set, turns the record id into a link: <prefix>/<id>.
	RecordURLPrefix string
}

// Client delivers record failure notifications to a Slack incoming webhook.
type Client struct {
	webhookURL string
	channel    string
	username   string
	retryLimit int
	recordURL  *url.URL
	client     *http.Client
}

// NewClient builds a Slack webhook client.
func NewClient(cfg Config) (*Client, error) {
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	if webhookURL == "" {
		return nil, errors.New("slack webhook url is required")
	}

	c := &Client{
		webhookURL: webhookURL,
		channel:    strings.TrimSpace(cfg.Channel),
		username:   notify.Fallback(strings.TrimSpace(cfg.Username), "jobtrack"),
		retryLimit: max(cfg.RetryLimit, 0),
		client:     notify.HTTPClient(cfg.Client, cfg.Timeout),
	}
	if prefix := strings.TrimSpace(cfg.RecordURLPrefix); prefix != "" {
		u, err := url.Parse(prefix)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("slack record url prefix %q must be an absolute url", prefix)
		}
		c.recordURL = u
	}
	return c, nil
}

// SendRecordFailure posts a formatted message to the webhook.
func (c *Client) SendRecordFailure(ctx context.Context, payload notify.RecordFailurePayload) error {
	body, err := json.Marshal(c.formatMessage(payload))
	if err != nil {
		return fmt.Errorf("encode slack payload: %w", err)
	}
	return notify.WithRetry(ctx, c.retryLimit, func(ctx context.Context) error {
		return notify.PostJSON(ctx, c.client, "slack webhook", c.webhookURL, body)
	})
}

func (c *Client) formatMessage(payload notify.RecordFailurePayload) map[string]any {
	at := payload.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}

	var text strings.Builder
	text.WriteString("*Job record failed*")
	if ref := c.recordRef(payload.RecordID, payload.Label); ref != "" {
		text.WriteString(" ")
		text.WriteString(ref)
	}
	text.WriteByte('\n')

	for _, f := range [][2]string{
		{"Severity", notify.Fallback(payload.Severity, notify.SeverityCritical)},
		{"Kind", payload.Kind},
		{"Phase", payload.Phase},
		{"Handle", payload.Handle},
		{"Submitted by", payload.Actor},
		{"Error class", payload.ErrorClass},
		{"Error", payload.Error},
	} {
		writeField(&text, f[0], escape(f[1]))
	}

	if len(payload.Metadata) > 0 {
		text.WriteString("• Metadata:\n")
		keys := make([]string, 0, len(payload.Metadata))
		for k := range payload.Metadata {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			text.WriteString("    • " + k + ": " + escape(payload.Metadata[k]) + "\n")
		}
	}
	text.WriteString("• Timestamp: " + at.UTC().Format(time.RFC3339))

	msg := map[string]any{
		"text":     text.String(),
		"username": c.username,
	}
	if c.channel != "" {
		msg["channel"] = c.channel
	}
	return msg
}

// recordRef renders the record as `label` or <link|label> when a url prefix is configured.
func (c *Client) recordRef(id, label string) string {
	id = strings.TrimSpace(id)
	shown := escape(notify.Fallback(strings.TrimSpace(label), id))
	if shown == "" {
		return ""
	}
	if c.recordURL == nil || id == "" {
		return "`" + shown + "`"
	}
	return fmt.Sprintf("<%s|%s>", c.recordURL.JoinPath(id).String(), shown)
}

func writeField(text *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	text.WriteString("• " + label + ": " + value + "\n")
}

var slackEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escape(value string) string {
	return slackEscaper.Replace(value)
}
