// Package discovery finds the clients reporting into the main stack's
// metrics backend.
package discovery

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/config"
	"github.com/prometheus/common/model"

	"github.com/fortna/stackfleet/telemetry"
	"github.com/fortna/stackfleet/types"
)

// Querier is the subset of the Prometheus HTTP API discovery needs.
type Querier interface {
	Query(ctx context.Context, query string, ts time.Time, opts ...v1.Option) (model.Value, v1.Warnings, error)
}

// Config describes where and how to query.
type Config struct {
	// URL is the hosted metrics endpoint of the main stack, without /api/prom.
	URL   string
	User  int64
	Token string

	PrimaryKey string
	Labels     []string
	GroupBy    []string

	// RoundTripper defaults to http.DefaultTransport.
	RoundTripper http.RoundTripper
}

// Discoverer runs the discovery query.
type Discoverer struct {
	api        Querier
	query      string
	primaryKey string
	labels     []string
	logger     *telemetry.Logger
}

// ConfigForStack points discovery at the metrics endpoint of a stack.
func ConfigForStack(main types.Stack, token string) Config {
	return Config{URL: main.PromURL, User: main.PromID, Token: token}
}

// New creates a Discoverer backed by the Prometheus HTTP API.
func New(cfg Config, logger *telemetry.Logger) (*Discoverer, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("discovery: metrics url is empty")
	}

	rt := cfg.RoundTripper
	if rt == nil {
		rt = http.DefaultTransport
	}
	rt = config.NewBasicAuthRoundTripper(
		config.NewInlineSecret(strconv.FormatInt(cfg.User, 10)),
		config.NewInlineSecret(cfg.Token),
		rt,
	)

	client, err := api.NewClient(api.Config{
		Address:      strings.TrimRight(cfg.URL, "/") + "/api/prom",
		RoundTripper: rt,
	})
	if err != nil {
		return nil, fmt.Errorf("create prometheus client: %w", err)
	}

	return NewWithQuerier(v1.NewAPI(client), cfg, logger), nil
}

// NewWithQuerier creates a Discoverer on an existing query API.
func NewWithQuerier(q Querier, cfg Config, logger *telemetry.Logger) *Discoverer {
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	labels := cfg.Labels
	if len(labels) == 0 {
		labels = []string{"client_name", "client_location", "client_environment", "client_key"}
	}
	groupBy := cfg.GroupBy
	if len(groupBy) == 0 {
		groupBy = labels
	}
	primaryKey := cfg.PrimaryKey
	if primaryKey == "" {
		primaryKey = "client_key"
	}

	return &Discoverer{
		api:        q,
		query:      BuildQuery(labels, groupBy),
		primaryKey: primaryKey,
		labels:     labels,
		logger:     logger.Component("discovery"),
	}
}

// BuildQuery renders the aggregation: one series per distinct combination
// of groupBy, over `up` series where every label is non-empty.
func BuildQuery(labels, groupBy []string) string {
	by := strings.Join(groupBy, ",")
	filters := make([]string, len(labels))
	for i, l := range labels {
		filters[i] = l + `!=""`
	}
	return fmt.Sprintf("count by(%s) (sum by(%s) (up{%s}))", by, by, strings.Join(filters, ","))
}

// Query returns the PromQL the discoverer runs.
func (d *Discoverer) Query() string {
	return d.query
}

// Clients runs the query and returns the discovered clients keyed by the
// primary label.
func (d *Discoverer) Clients(ctx context.Context) (map[string]types.Client, error) {
	logger := d.logger.WithContext(ctx)
	logger.Info().Str("query", d.query).Msg("discovering clients")

	value, warnings, err := d.api.Query(ctx, d.query, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("query clients: %w", err)
	}
	for _, w := range warnings {
		logger.Warn().Str("warning", w).Msg("discovery query warning")
	}

	vector, ok := value.(model.Vector)
	if !ok {
		return nil, fmt.Errorf("query clients: expected vector result, got %s", value.Type())
	}

	clients := make(map[string]types.Client, len(vector))
	for _, sample := range vector {
		labels := make(map[string]string, len(d.labels))
		for _, name := range d.labels {
			labels[name] = string(sample.Metric[model.LabelName(name)])
		}
		key := labels[d.primaryKey]
		if key == "" {
			logger.Debug().Str("series", sample.Metric.String()).Msg("skipping series without primary key")
			continue
		}
		clients[key] = types.ClientFromLabels(labels)
	}

	logger.Info().Int("clients", len(clients)).Msg("discovered clients")
	return clients, nil
}
