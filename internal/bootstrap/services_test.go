package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/jobtrack/config"
)

func TestEnabledBackgroundServices(t *testing.T) {
	all := []backgroundService{
		{mode: config.ServiceModeWorker, name: "worker"},
		{mode: config.ServiceModeScheduler, name: "scheduler"},
		{mode: config.ServiceModeReaper, name: "reaper"},
	}
	tests := []struct {
		name  string
		modes []config.ServiceMode
		want  []string
	}{
		{name: "none", want: []string{}},
		{name: "worker only", modes: []config.ServiceMode{config.ServiceModeWorker}, want: []string{"worker"}},
		{
			name:  "scheduler and reaper",
			modes: []config.ServiceMode{config.ServiceModeReaper, config.ServiceModeScheduler},
			want:  []string{"scheduler", "reaper"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enabled := make(map[config.ServiceMode]bool, len(tt.modes))
			for _, m := range tt.modes {
				enabled[m] = true
			}
			got := []string{}
			for _, svc := range enabledBackgroundServices(all, enabled) {
				got = append(got, svc.name)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunBackground_StopsOnCancel(t *testing.T) {
	var stopped atomic.Int32
	blocker := func(ctx context.Context) error {
		<-ctx.Done()
		stopped.Add(1)
		return ctx.Err()
	}
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- runBackground(ctx, slog.New(slog.DiscardHandler), []backgroundService{
			{name: "a", start: blocker},
			{name: "b", start: blocker},
		})
	}()
	cancel()
	require.NoError(t, <-errCh)
	assert.Equal(t, int32(2), stopped.Load())
}

func TestRunBackground_FailureCancelsOthers(t *testing.T) {
	boom := errors.New("boom")
	err := runBackground(context.Background(), slog.New(slog.DiscardHandler), []backgroundService{
		{name: "failing", start: func(context.Context) error { return boom }},
		{name: "blocking", start: func(ctx context.Context) error {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(5 * time.Second):
				return errors.New("not cancelled")
			}
		}},
	})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failing failed")
}

func TestRunServices_RequiresApp(t *testing.T) {
	require.Error(t, RunServices(context.Background(), nil))
}
