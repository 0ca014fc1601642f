package main

import (
	"context"
	"fmt"
	"io"

	"github.com/fortna/stackfleet/internal/cloud"
	"github.com/fortna/stackfleet/internal/config"
	"github.com/fortna/stackfleet/internal/discovery"
	"github.com/fortna/stackfleet/internal/grafana"
	"github.com/fortna/stackfleet/orchestrator"
	"github.com/fortna/stackfleet/telemetry"
	"github.com/fortna/stackfleet/types"
)

// app holds everything a command needs, built from the config files.
type app struct {
	cfg      *config.Config
	logger   *telemetry.Logger
	provider *telemetry.Provider
	metrics  *telemetry.Metrics
	cloud    *cloud.Client
	orch     *orchestrator.Orchestrator

	logCloser io.Closer
}

// loadConfig reads config and secrets. Secrets are only validated when
// the command talks to remote APIs.
func loadConfig(requireSecrets bool) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	secrets, err := config.LoadSecrets(secretsPath, nil)
	if err != nil {
		return nil, err
	}
	if requireSecrets {
		if err := secrets.Validate(); err != nil {
			return nil, err
		}
	}
	cfg.Secrets = secrets
	return cfg, nil
}

func newLogger(cfg *config.Config) (*telemetry.Logger, io.Closer, error) {
	return telemetry.NewLogger(telemetry.LoggerOptions{
		Service: cfg.OTEL.ServiceName,
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
		JSON:    jsonLogs,
	})
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig(true)
	if err != nil {
		return nil, err
	}

	logger, logCloser, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	provider, err := telemetry.NewProvider(ctx, telemetry.Config{
		ServiceName:    cfg.OTEL.ServiceName,
		ServiceVersion: version,
		Endpoint:       cfg.OTEL.Endpoint,
		Insecure:       cfg.OTEL.Insecure,
		TracesEnabled:  cfg.OTEL.Traces.Enabled,
		SampleRate:     cfg.OTEL.Traces.SampleRate,
		MetricsEnabled: cfg.OTEL.Metrics.Enabled,
	})
	if err != nil {
		_ = logCloser.Close()
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	metrics, err := telemetry.NewMetrics(provider.Meter())
	if err != nil {
		_ = logCloser.Close()
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	cloudClient, err := cloud.NewClient(cfg.CloudURL, cfg.Secrets.CloudToken, cfg.OrgSlug, cloud.WithLogger(logger))
	if err != nil {
		_ = logCloser.Close()
		return nil, err
	}

	factory := grafana.NewFactory(cfg.Secrets.GrafanaToken, grafana.WithLogger(logger))

	orch := orchestrator.New(
		cloudClient,
		grafanaConnector(factory),
		discovererFactory(cfg, logger),
		orchestrator.SettingsFromConfig(cfg),
		orchestrator.WithLogger(logger),
		orchestrator.WithMetrics(metrics),
		orchestrator.WithTracer(provider.Tracer()),
	)

	return &app{
		cfg:       cfg,
		logger:    logger,
		provider:  provider,
		metrics:   metrics,
		cloud:     cloudClient,
		orch:      orch,
		logCloser: logCloser,
	}, nil
}

// Close flushes telemetry and releases the log file.
func (a *app) Close(ctx context.Context) {
	if err := a.provider.Shutdown(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("shutdown telemetry")
	}
	_ = a.logCloser.Close()
}

func grafanaConnector(f *grafana.Factory) orchestrator.GrafanaConnector {
	return func(stackURL string) (orchestrator.GrafanaAPI, error) {
		c, err := f.ForStack(stackURL)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

func discovererFactory(cfg *config.Config, logger *telemetry.Logger) orchestrator.DiscovererFactory {
	return func(main types.Stack) (orchestrator.Discoverer, error) {
		dc := discovery.ConfigForStack(main, cfg.Secrets.PrometheusToken)
		dc.PrimaryKey = cfg.Discovery.PrimaryKey
		dc.Labels = cfg.Discovery.Labels
		dc.GroupBy = cfg.Discovery.GroupBy

		d, err := discovery.New(dc, logger)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
}
