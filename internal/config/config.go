// Package config handles configuration and secrets for stackfleet.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v9"
	"gopkg.in/yaml.v3"
)

const (
	DefaultCloudURL    = "https://grafana.com"
	DefaultSlugPrefix  = "fortna-"
	DefaultTokenTTL    = 365 * 24 * time.Hour
	DefaultWatchPeriod = time.Hour
)

// DefaultDiscoveryLabels is the label set every discovered series must carry.
var DefaultDiscoveryLabels = []string{"client_name", "client_location", "client_environment", "client_key"}

// Config is the root configuration structure.
type Config struct {
	OrgSlug            string            `yaml:"org_slug" toml:"org_slug"`
	MainStack          Stack             `yaml:"main_stack" toml:"main_stack"`
	ClientNamesToSkip  []string          `yaml:"client_names_to_skip" toml:"client_names_to_skip"`
	// ClientLabelsToSkip excludes discovered series carrying any of these
	// label values, e.g. client_location: Reno.
	ClientLabelsToSkip map[string]string `yaml:"client_labels_to_skip" toml:"client_labels_to_skip"`
	LogLevel           string            `yaml:"log_level" toml:"log_level"`
	LogFile            string            `yaml:"log_file" toml:"log_file"`

	CloudURL     string             `yaml:"cloud_url" toml:"cloud_url"`
	SlugPrefix   string             `yaml:"slug_prefix" toml:"slug_prefix"`
	Environment  EnvironmentConfig  `yaml:"environment" toml:"environment"`
	Discovery    DiscoveryConfig    `yaml:"discovery" toml:"discovery"`
	Token        TokenConfig        `yaml:"token" toml:"token"`
	Datasource   DatasourceConfig   `yaml:"datasource" toml:"datasource"`
	Provisioning ProvisioningConfig `yaml:"provisioning" toml:"provisioning"`
	JournalDir   string             `yaml:"journal_dir" toml:"journal_dir"`
	OTEL         OTELConfig         `yaml:"otel" toml:"otel"`
	Watch        WatchConfig        `yaml:"watch" toml:"watch"`

	Secrets Secrets `yaml:"-" toml:"-"`
}

// Stack names the pre-existing main stack.
type Stack struct {
	Name string `yaml:"name" toml:"name"`
}

// EnvironmentConfig selects which discovered clients get provisioned.
type EnvironmentConfig struct {
	Key   string `yaml:"key" toml:"key"`
	Value string `yaml:"value" toml:"value"`
}

// DiscoveryConfig shapes the client discovery query.
type DiscoveryConfig struct {
	PrimaryKey string   `yaml:"primary_key" toml:"primary_key"`
	Labels     []string `yaml:"labels" toml:"labels"`
	GroupBy    []string `yaml:"group_by" toml:"group_by"`
}

// TokenConfig holds access token settings.
type TokenConfig struct {
	TTLStr  string `yaml:"ttl" toml:"ttl"`
	TTL     time.Duration `yaml:"-" toml:"-"`
	Replace *bool `yaml:"replace" toml:"replace"`
}

// ShouldReplace reports whether an existing token is rotated on every run.
func (t TokenConfig) ShouldReplace() bool {
	return t.Replace == nil || *t.Replace
}

// DatasourceConfig holds datasource settings.
type DatasourceConfig struct {
	DeleteConflicts bool  `yaml:"delete_conflicts" toml:"delete_conflicts"`
	IsDefault       *bool `yaml:"is_default" toml:"is_default"`
}

// Default reports whether the provisioned datasource is the stack default.
func (d DatasourceConfig) Default() bool {
	return d.IsDefault == nil || *d.IsDefault
}

// ProvisioningConfig toggles the optional pipeline steps.
type ProvisioningConfig struct {
	Folders bool `yaml:"folders" toml:"folders"`
	Teams   bool `yaml:"teams" toml:"teams"`
}

// OTELConfig holds OpenTelemetry settings.
type OTELConfig struct {
	Endpoint    string        `yaml:"endpoint" toml:"endpoint"`
	Insecure    bool          `yaml:"insecure" toml:"insecure"`
	ServiceName string        `yaml:"service_name" toml:"service_name"`
	Traces      TracesConfig  `yaml:"traces" toml:"traces"`
	Metrics     MetricsConfig `yaml:"metrics" toml:"metrics"`
}

// TracesConfig holds tracing settings.
type TracesConfig struct {
	Enabled    bool    `yaml:"enabled" toml:"enabled"`
	SampleRate float64 `yaml:"sample_rate" toml:"sample_rate"`
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Listen  string `yaml:"listen" toml:"listen"`
}

// WatchConfig holds settings for repeated runs.
type WatchConfig struct {
	IntervalStr string `yaml:"interval" toml:"interval"`
	Interval    time.Duration `yaml:"-" toml:"-"`
}

// Secrets are read from secrets.yml and overridden by the environment.
type Secrets struct {
	CloudToken      string `yaml:"GRAFANA_CLOUD_TOKEN" env:"GRAFANA_CLOUD_TOKEN"`
	GrafanaToken    string `yaml:"GRAFANA_TOKEN" env:"GRAFANA_TOKEN"`
	PrometheusToken string `yaml:"PROMETHEUS_TOKEN" env:"PROMETHEUS_TOKEN"`
}

// Load reads and parses a YAML or TOML config file. The format is chosen
// by extension; anything other than .toml is parsed as YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator supplied path
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := parseDurations(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadSecrets reads the secrets file and applies environment overrides.
// A missing file is not an error; environ nil means the process environment.
func LoadSecrets(path string, environ map[string]string) (Secrets, error) {
	var s Secrets

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- operator supplied path
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return s, fmt.Errorf("read secrets file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &s); err != nil {
				return s, fmt.Errorf("parse secrets: %w", err)
			}
		}
	}

	if err := env.ParseWithOptions(&s, env.Options{Environment: environ}); err != nil {
		return s, fmt.Errorf("parse secrets from environment: %w", err)
	}

	return s, nil
}

func applyDefaults(cfg *Config) {
	if cfg.CloudURL == "" {
		cfg.CloudURL = DefaultCloudURL
	}
	cfg.CloudURL = strings.TrimRight(cfg.CloudURL, "/")
	if cfg.SlugPrefix == "" {
		cfg.SlugPrefix = DefaultSlugPrefix
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Environment.Key == "" {
		cfg.Environment.Key = "client_environment"
	}
	if cfg.Environment.Value == "" {
		cfg.Environment.Value = "Production"
	}
	if cfg.Discovery.PrimaryKey == "" {
		cfg.Discovery.PrimaryKey = "client_key"
	}
	if len(cfg.Discovery.Labels) == 0 {
		cfg.Discovery.Labels = append([]string(nil), DefaultDiscoveryLabels...)
	}
	if len(cfg.Discovery.GroupBy) == 0 {
		cfg.Discovery.GroupBy = append([]string(nil), cfg.Discovery.Labels...)
	}
	if cfg.OTEL.ServiceName == "" {
		cfg.OTEL.ServiceName = "stackfleet"
	}
	if cfg.OTEL.Metrics.Listen == "" {
		cfg.OTEL.Metrics.Listen = ":9464"
	}
}

func parseDurations(cfg *Config) error {
	cfg.Token.TTL = DefaultTokenTTL
	if cfg.Token.TTLStr != "" {
		d, err := time.ParseDuration(cfg.Token.TTLStr)
		if err != nil {
			return fmt.Errorf("parse token ttl %q: %w", cfg.Token.TTLStr, err)
		}
		cfg.Token.TTL = d
	}

	cfg.Watch.Interval = DefaultWatchPeriod
	if cfg.Watch.IntervalStr != "" {
		d, err := time.ParseDuration(cfg.Watch.IntervalStr)
		if err != nil {
			return fmt.Errorf("parse watch interval %q: %w", cfg.Watch.IntervalStr, err)
		}
		cfg.Watch.Interval = d
	}
	return nil
}

// Validate checks the configuration is valid.
func (c *Config) Validate() error {
	if c.OrgSlug == "" {
		return fmt.Errorf("org_slug is required")
	}
	if c.MainStack.Name == "" {
		return fmt.Errorf("main_stack.name is required")
	}
	if !contains(c.Discovery.Labels, c.Discovery.PrimaryKey) {
		return fmt.Errorf("discovery: primary_key %q must be one of the labels", c.Discovery.PrimaryKey)
	}
	if !contains(c.Discovery.Labels, "client_name") {
		return fmt.Errorf("discovery: labels must include client_name")
	}
	if c.Token.TTL <= 0 {
		return fmt.Errorf("token: ttl must be positive (got %s)", c.Token.TTL)
	}
	if c.Watch.Interval <= 0 {
		return fmt.Errorf("watch: interval must be positive (got %s)", c.Watch.Interval)
	}
	if c.OTEL.Traces.SampleRate < 0.0 || c.OTEL.Traces.SampleRate > 1.0 {
		return fmt.Errorf("otel: traces.sample_rate must be between 0.0 and 1.0 (got %v)", c.OTEL.Traces.SampleRate)
	}
	return nil
}

// Validate checks every token needed for a provisioning run is set.
func (s Secrets) Validate() error {
	var missing []string
	if s.CloudToken == "" {
		missing = append(missing, "GRAFANA_CLOUD_TOKEN")
	}
	if s.GrafanaToken == "" {
		missing = append(missing, "GRAFANA_TOKEN")
	}
	if s.PrometheusToken == "" {
		missing = append(missing, "PROMETHEUS_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing secrets: %s", strings.Join(missing, ", "))
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
