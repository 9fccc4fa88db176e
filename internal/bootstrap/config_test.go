package bootstrap

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/jobtrack/config"
)

func TestValidateServiceConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.AppConfig
		wantErr bool
	}{
		{name: "nil", wantErr: true},
		{name: "worker", cfg: &config.AppConfig{Services: "worker"}},
		{name: "invalid", cfg: &config.AppConfig{Services: "http"}, wantErr: true},
		{name: "empty", cfg: &config.AppConfig{Services: ""}, wantErr: true},
		{
			name: "inline without worker",
			cfg: &config.AppConfig{
				Services: "scheduler",
				Executor: config.ExecutorConfig{Backend: config.ExecutorBackendInline},
			},
			wantErr: true,
		},
		{
			name: "inline with worker",
			cfg: &config.AppConfig{
				Services: "worker,scheduler",
				Executor: config.ExecutorConfig{Backend: config.ExecutorBackendInline},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateServiceConfig(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestGetEnabledServices(t *testing.T) {
	assert.Empty(t, GetEnabledServices(nil))
	assert.Empty(t, GetEnabledServices(&config.AppConfig{Services: "bogus"}))
	assert.Equal(t, []string{"reaper", "worker"}, GetEnabledServices(&config.AppConfig{Services: "worker, reaper"}))
}

func TestInitLogger_Level(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := initLogger(&buf, config.ObservabilityConfig{LogLevel: "warn"})
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}
