package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/target/jobtrack/internal/domain/model"
	"github.com/target/jobtrack/internal/observability/metrics"
	"github.com/target/jobtrack/internal/observability/statsd"
)

// LogLineTimeFormat is the timestamp layout of persisted log lines.
const LogLineTimeFormat = "2006-01-02 15:04:05.000"

const logWriteTimeout = 5 * time.Second

// LogStore is the slice of the record store the log sink writes through.
type LogStore interface {
	AppendText(ctx context.Context, id string, field model.TextField, text string) error
}

// LogSinkOptions configures a LogSink.
type LogSinkOptions struct {
	Store  LogStore
	Record *model.JobRecord
	// Fallback receives store failures. Defaults to slog.Default().
	Fallback *slog.Logger
	Metrics  statsd.Sink
	// Level is the minimum persisted level. Defaults to INFO.
	Level slog.Leveler
}

// LogSink is a slog.Handler that appends every record to a job record's log text, and
// WARN-and-above records to its warnings text. Each Handle call is one durable write.
type LogSink struct {
	store    LogStore
	recordID string
	kind     string
	label    string
	fallback *slog.Logger
	metrics  statsd.Sink
	level    slog.Leveler

	prefix string // rendered attrs from WithAttrs
	group  string // dotted group path from WithGroup
}

var _ slog.Handler = (*LogSink)(nil)

// NewLogSink creates a sink bound to opts.Record.
func NewLogSink(opts LogSinkOptions) *LogSink {
	if opts.Store == nil || opts.Record == nil {
		panic("LogSink requires a store and a record") //nolint:forbidigo // programmer error at wiring time
	}
	fallback := opts.Fallback
	if fallback == nil {
		fallback = slog.Default()
	}
	level := opts.Level
	if level == nil {
		level = slog.LevelInfo
	}
	return &LogSink{
		store:    opts.Store,
		recordID: opts.Record.ID,
		kind:     opts.Record.Kind,
		label:    opts.Record.Label(),
		fallback: fallback,
		metrics:  opts.Metrics,
		level:    level,
	}
}

// NewLogSinkLogger returns a logger whose output is persisted on rec.
func NewLogSinkLogger(store LogStore, rec *model.JobRecord, fallback *slog.Logger) *slog.Logger {
	return slog.New(NewLogSink(LogSinkOptions{Store: store, Record: rec, Fallback: fallback}))
}

// Label returns the "Kind #id" label of the bound record.
func (h *LogSink) Label() string { return h.label }

// Enabled implements slog.Handler.
func (h *LogSink) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle formats r and appends it to the record. Store failures go to the fallback logger
// and are never returned, so a task keeps running when its log cannot be persisted.
func (h *LogSink) Handle(ctx context.Context, r slog.Record) error {
	text := "\n" + h.format(r)

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logWriteTimeout)
	defer cancel()

	h.append(wctx, model.TextFieldLog, text, r)
	if r.Level >= slog.LevelWarn {
		h.append(wctx, model.TextFieldWarnings, text, r)
	}
	return nil
}

func (h *LogSink) append(ctx context.Context, field model.TextField, text string, r slog.Record) {
	err := h.store.AppendText(ctx, h.recordID, field, text)
	if err == nil {
		return
	}
	metrics.EmitLogFallback(h.metrics, h.kind)
	h.fallback.LogAttrs(ctx, slog.LevelError, "persist task log failed",
		slog.String("record", h.label),
		slog.String("field", string(field)),
		slog.String("error", err.Error()),
		slog.String("line", r.Message),
	)
}

// WithAttrs implements slog.Handler.
func (h *LogSink) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	c := *h
	var b strings.Builder
	b.WriteString(h.prefix)
	for _, a := range attrs {
		writeAttr(&b, h.group, a)
	}
	c.prefix = b.String()
	return &c
}

// WithGroup implements slog.Handler.
func (h *LogSink) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	if c.group == "" {
		c.group = name
	} else {
		c.group += "." + name
	}
	return &c
}

// format renders "[time][LEVEL] message k=v ...".
func (h *LogSink) format(r slog.Record) string {
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(ts.UTC().Format(LogLineTimeFormat))
	b.WriteString("][")
	b.WriteString(r.Level.String())
	b.WriteString("] ")
	b.WriteString(r.Message)
	b.WriteString(h.prefix)
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.group, a)
		return true
	})
	return b.String()
}

func writeAttr(b *strings.Builder, group string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if group != "" && key != "" {
		key = group + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		sub := key
		if a.Key == "" {
			sub = group
		}
		for _, ga := range a.Value.Group() {
			writeAttr(b, sub, ga)
		}
		return
	}
	b.WriteByte(' ')
	b.WriteString(key)
	b.WriteByte('=')
	b.WriteString(quoteIfNeeded(valueString(a.Value)))
}

func valueString(v slog.Value) string {
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339Nano)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	default:
		return v.String()
	}
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}
