package bootstrap

import (
	"log/slog"

	"github.com/target/jobtrack/config"
	"github.com/target/jobtrack/internal/observability/notify/pagerduty"
	"github.com/target/jobtrack/internal/observability/notify/slack"
	"github.com/target/jobtrack/internal/service/failurenotifier"
)

// buildFailureNotifier registers the sinks enabled in cfg. A sink that fails to build is
// logged and left out; the returned service is never nil.
func buildFailureNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *failurenotifier.Service {
	if logger == nil {
		logger = slog.Default()
	}
	opts := failurenotifier.Options{
		Logger:    logger.With("component", "failure_notifier"),
		SkipKinds: cfg.SkipKinds,
	}
	if !cfg.Enabled {
		return failurenotifier.NewService(opts)
	}

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:      cfg.Slack.WebhookURL,
			Channel:         cfg.Slack.Channel,
			Username:        cfg.Slack.Username,
			Timeout:         cfg.Timeout,
			RetryLimit:      cfg.RetryLimit,
			RecordURLPrefix: cfg.Slack.RecordURLPrefix,
		})
		if err != nil {
			logger.Error("failed to initialise slack notifier", "error", err)
		} else {
			opts.Sinks = append(opts.Sinks, failurenotifier.SinkRegistration{Name: "slack", Sink: client})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			logger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			opts.Sinks = append(opts.Sinks, failurenotifier.SinkRegistration{Name: "pagerduty", Sink: client})
		}
	}

	svc := failurenotifier.NewService(opts)
	if svc.Enabled() {
		logger.Info("failure notifications enabled", "sinks", len(opts.Sinks))
	}
	return svc
}
