// Package natsevents publishes job record lifecycle events to NATS subjects of the form
// <prefix>.<kind>.<transition>.
package natsevents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/target/jobtrack/internal/core"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "jobtrack.records"

// Options configures a Publisher.
type Options struct {
	Conn          *nats.Conn // Required
	SubjectPrefix string
	Logger        *slog.Logger
}

// Publisher is a core.EventPublisher backed by a NATS connection.
type Publisher struct {
	nc     *nats.Conn
	prefix string
	logger *slog.Logger
}

var _ core.EventPublisher = (*Publisher)(nil)

// Connect dials url with reconnects enabled.
func Connect(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("jobtrack"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return nc, nil
}

// New creates a Publisher on an existing connection.
func New(opts Options) (*Publisher, error) {
	if opts.Conn == nil {
		return nil, errors.New("nats connection is required")
	}
	prefix := strings.Trim(strings.TrimSpace(opts.SubjectPrefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{nc: opts.Conn, prefix: prefix, logger: logger.With("component", "nats_events")}, nil
}

// Subject returns the subject an event for kind and transition is published on.
func (p *Publisher) Subject(kind string, transition core.LifecycleTransition) string {
	return p.prefix + "." + token(kind) + "." + token(string(transition))
}

// Publish encodes evt as JSON and publishes it. NATS core publishing is fire-and-forget;
// the error only reports encoding or connection state failures.
func (p *Publisher) Publish(ctx context.Context, evt core.LifecycleEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	subject := p.Subject(evt.Kind, evt.Transition)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.logger.DebugContext(ctx, "published lifecycle event", "subject", subject, "record_id", evt.RecordID)
	return nil
}

// Subscribe delivers events matching kind (or every kind when empty) to fn until the
// returned subscription is drained or unsubscribed. Undecodable messages are logged and skipped.
func (p *Publisher) Subscribe(kind string, fn func(ctx context.Context, evt core.LifecycleEvent)) (*nats.Subscription, error) {
	subject := p.prefix + ".*.*"
	if kind != "" {
		subject = p.prefix + "." + token(kind) + ".*"
	}
	sub, err := p.nc.Subscribe(subject, func(msg *nats.Msg) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		var evt core.LifecycleEvent
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			p.logger.WarnContext(ctx, "skipping undecodable lifecycle event", "subject", msg.Subject, "error", err)
			return
		}
		fn(ctx, evt)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return sub, nil
}

// Close drains the connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
	}
}

// token makes s safe as a single subject token.
func token(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}
