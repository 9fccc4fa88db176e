package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/jobtrack/internal/data/memstore"
	"github.com/target/jobtrack/internal/domain/model"
	"github.com/target/jobtrack/internal/observability/metrics"
)

type appendCall struct {
	id     string
	field  model.TextField
	text   string
	ctxErr error
}

type recordingStore struct {
	mu    sync.Mutex
	calls []appendCall
	err   error
}

func (s *recordingStore) AppendText(ctx context.Context, id string, field model.TextField, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, appendCall{id: id, field: field, text: text, ctxErr: ctx.Err()})
	return s.err
}

func (s *recordingStore) texts(field model.TextField) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, c := range s.calls {
		if c.field == field {
			out = append(out, c.text)
		}
	}
	return out
}

var testRecord = &model.JobRecord{ID: "rec-1", Kind: "export"}

func TestLogSink_FormatsLines(t *testing.T) {
	store := &recordingStore{}
	logger := NewLogSinkLogger(store, testRecord, nil)

	logger.Info("hello", "k", "v", "s", "with space", "n", 3)

	lines := store.texts(model.TextFieldLog)
	require.Len(t, lines, 1)
	re := regexp.MustCompile(`^\n\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\.\d{3}\]\[INFO\] hello k=v s="with space" n=3$`)
	assert.Regexp(t, re, lines[0])
	assert.Empty(t, store.texts(model.TextFieldWarnings))
	assert.Equal(t, "rec-1", store.calls[0].id)
}

func TestLogSink_LevelRouting(t *testing.T) {
	store := &recordingStore{}
	logger := NewLogSinkLogger(store, testRecord, nil)

	logger.Debug("dropped")
	logger.Info("info line")
	logger.Warn("warn line")
	logger.Error("error line")

	logs := store.texts(model.TextFieldLog)
	warnings := store.texts(model.TextFieldWarnings)
	require.Len(t, logs, 3)
	require.Len(t, warnings, 2)
	assert.Contains(t, logs[0], "[INFO] info line")
	assert.Contains(t, warnings[0], "[WARN] warn line")
	assert.Contains(t, warnings[1], "[ERROR] error line")
	// Warnings carry the same text as the log.
	assert.Equal(t, logs[1], warnings[0])
}

func TestLogSink_CustomLevel(t *testing.T) {
	store := &recordingStore{}
	logger := slog.New(NewLogSink(LogSinkOptions{Store: store, Record: testRecord, Level: slog.LevelDebug}))

	logger.Debug("now kept")
	require.Len(t, store.texts(model.TextFieldLog), 1)
}

func TestLogSink_AttrsAndGroups(t *testing.T) {
	store := &recordingStore{}
	logger := NewLogSinkLogger(store, testRecord, nil).With("step", 2).WithGroup("db")

	logger.Info("query", "rows", 10, slog.Group("timing", "ms", 5))

	lines := store.texts(model.TextFieldLog)
	require.Len(t, lines, 1)
	assert.True(t, strings.HasSuffix(lines[0], "query step=2 db.rows=10 db.timing.ms=5"), lines[0])
}

func TestLogSink_ErrorAttr(t *testing.T) {
	store := &recordingStore{}
	NewLogSinkLogger(store, testRecord, nil).Warn("retrying", "error", errors.New("conn reset"))

	lines := store.texts(model.TextFieldWarnings)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `error="conn reset"`)
}

func TestLogSink_StoreFailureGoesToFallback(t *testing.T) {
	store := &recordingStore{err: errors.New("db down")}
	var buf bytes.Buffer
	fallback := slog.New(slog.NewTextHandler(&buf, nil))
	rec := metrics.NewRecorder()

	logger := slog.New(NewLogSink(LogSinkOptions{
		Store:    store,
		Record:   testRecord,
		Fallback: fallback,
		Metrics:  rec,
	}))

	require.NotPanics(t, func() { logger.Warn("lost line") })

	out := buf.String()
	assert.Contains(t, out, "persist task log failed")
	assert.Contains(t, out, "export #rec-1")
	assert.Contains(t, out, "db down")
	// One failure per field written.
	assert.Equal(t, int64(2), rec.Total("record.log_fallback"))
}

func TestLogSink_WritesAfterContextCancel(t *testing.T) {
	store := &recordingStore{}
	logger := NewLogSinkLogger(store, testRecord, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	logger.InfoContext(ctx, "shutting down")

	require.Len(t, store.calls, 1)
	assert.NoError(t, store.calls[0].ctxErr)
}

func TestLogSink_Label(t *testing.T) {
	sink := NewLogSink(LogSinkOptions{Store: &recordingStore{}, Record: testRecord})
	assert.Equal(t, "export #rec-1", sink.Label())
}

func TestLogSink_RequiresStoreAndRecord(t *testing.T) {
	assert.Panics(t, func() { NewLogSink(LogSinkOptions{Record: testRecord}) })
	assert.Panics(t, func() { NewLogSink(LogSinkOptions{Store: &recordingStore{}}) })
}

func TestLogSink_ConcurrentEmitsLoseNothing(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(nil)
	rec, err := store.Create(ctx, &model.CreateJobRecordRequest{Kind: "export"})
	require.NoError(t, err)

	logger := NewLogSinkLogger(store, rec, nil)
	const writers = 25
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%5 == 0 {
				logger.Warn("line", "i", i)
				return
			}
			logger.Info("line", "i", i)
		}()
	}
	wg.Wait()

	got, err := store.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, writers, strings.Count(got.LogText, "\n"))
	assert.Equal(t, writers/5, strings.Count(got.WarningsText, "\n"))
}
