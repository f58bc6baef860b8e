package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/contig-rekey/contig-rekey/internal/config"
	"github.com/contig-rekey/contig-rekey/internal/metrics"
	"github.com/contig-rekey/contig-rekey/internal/model"
	"github.com/contig-rekey/contig-rekey/internal/sink"
	"github.com/contig-rekey/contig-rekey/internal/store"
)

// openStore opens the configured record store backend.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (store.Store, error) {
	switch cfg.Backend {
	case config.BackendMongo:
		return store.OpenMongo(ctx, store.MongoConfig{
			Host:           cfg.Mongo.Host,
			Port:           cfg.Mongo.Port,
			Username:       cfg.Mongo.Username,
			Password:       cfg.Mongo.Password,
			AuthSource:     cfg.Mongo.AuthSource,
			Database:       cfg.Mongo.Database,
			Collection:     cfg.Mongo.Collection,
			ConnectTimeout: cfg.Mongo.ConnectTimeout,
		}, logger)
	case config.BackendPebble:
		return store.OpenPebble(cfg.Pebble.Path, nil, logger)
	case config.BackendMemory:
		return store.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// buildSinks registers the log sink and every enabled optional sink.
func buildSinks(ctx context.Context, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*sink.Registry, error) {
	reg := sink.NewRegistry(logger, m)

	logSink, err := sink.NewLogSink(logger)
	if err != nil {
		return nil, err
	}
	if err := reg.Register(logSink); err != nil {
		return nil, err
	}

	sc := cfg.Sinks
	if sc.Slack.Enabled {
		s, err := sink.NewSlackSink(sink.SlackConfig{
			WebhookURL: sc.Slack.WebhookURL,
			Channel:    sc.Slack.Channel,
			Filter: sink.Filter{
				Severities: severities(sc.Slack.SeverityFilter),
				DryRuns:    sc.Slack.IncludeDryRuns,
			},
		}, logger)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(s); err != nil {
			return nil, err
		}
	}
	if sc.Webhook.Enabled {
		s, err := sink.NewWebhookSink(sink.WebhookConfig{
			URL:     sc.Webhook.URL,
			Headers: sc.Webhook.Headers,
			Filter: sink.Filter{
				Severities: severities(sc.Webhook.SeverityFilter),
				DryRuns:    sc.Webhook.IncludeDryRuns,
			},
			AllowedHosts: sc.Webhook.AllowedHosts,
		}, logger)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(s); err != nil {
			return nil, err
		}
	}
	if sc.S3.Enabled {
		s, err := sink.NewS3Sink(ctx, sink.S3Config{
			Bucket:       sc.S3.Bucket,
			Region:       sc.S3.Region,
			Prefix:       sc.S3.Prefix,
			Endpoint:     sc.S3.Endpoint,
			UsePathStyle: sc.S3.UsePathStyle,
			DryRuns:      sc.S3.IncludeDryRuns,
		}, logger)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(s); err != nil {
			return nil, err
		}
	}

	logger.Info("sinks configured", "sinks", reg.Names())
	return reg, nil
}

func severities(in []string) []model.Severity {
	if len(in) == 0 {
		return nil
	}
	out := make([]model.Severity, len(in))
	for i, s := range in {
		out[i] = model.Severity(s)
	}
	return out
}

// pushMetrics pushes the run's metrics to the Pushgateway, grouped by
// assembly. It is a no-op when no Pushgateway is configured.
func pushMetrics(ctx context.Context, cfg config.MetricsConfig, g prometheus.Gatherer, report *model.RunReport) error {
	if cfg.PushgatewayURL == "" {
		return nil
	}
	return push.New(cfg.PushgatewayURL, cfg.Job).
		Gatherer(g).
		Grouping("assembly", report.Assembly).
		PushContext(ctx)
}
