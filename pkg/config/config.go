// Package config loads the runtime configuration from an optional YAML file
// with environment variable overrides, then validates the result.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/azimuth-ai/azimuth/pkg/engine"
	"github.com/azimuth-ai/azimuth/pkg/telemetry"
)

// Config is the full runtime configuration.
type Config struct {
	// Engine bounds orchestration runs.
	Engine EngineConfig `yaml:"engine" envPrefix:"AZIMUTH_ENGINE_"`

	// Reasoner configures the language-model collaborator.
	Reasoner ReasonerConfig `yaml:"reasoner" envPrefix:"AZIMUTH_REASONER_"`

	// Tools configures the action-execution collaborators.
	Tools ToolsConfig `yaml:"tools" envPrefix:"AZIMUTH_TOOLS_"`

	// Telemetry configures logging, tracing, and metrics.
	Telemetry TelemetryConfig `yaml:"telemetry" envPrefix:"AZIMUTH_TELEMETRY_"`

	// History configures run history persistence.
	History HistoryConfig `yaml:"history" envPrefix:"AZIMUTH_HISTORY_"`
}

// EngineConfig bounds a single orchestration run.
type EngineConfig struct {
	// MaxConcurrency bounds parallel goal execution.
	MaxConcurrency int `yaml:"max_concurrency" env:"MAX_CONCURRENCY" validate:"min=1,max=64"`

	// ActionTimeout is the per-action timeout.
	ActionTimeout time.Duration `yaml:"action_timeout" env:"ACTION_TIMEOUT" validate:"min=1s"`

	// MaxTransientRetries bounds backoff retries per goal.
	MaxTransientRetries int `yaml:"max_transient_retries" env:"MAX_TRANSIENT_RETRIES" validate:"min=0,max=10"`

	// MaxParameterAlternatives bounds parameter adjustments per goal.
	MaxParameterAlternatives int `yaml:"max_parameter_alternatives" env:"MAX_PARAMETER_ALTERNATIVES" validate:"min=0,max=10"`

	// BackoffSchedule is the delay before transient retry N.
	BackoffSchedule []time.Duration `yaml:"backoff_schedule"`
}

// ReasonerConfig configures the Claude reasoner.
type ReasonerConfig struct {
	// APIKey authenticates against the API. Usually set via environment.
	APIKey string `yaml:"api_key" env:"API_KEY"`

	// Model is the model identifier.
	Model string `yaml:"model" env:"MODEL"`

	// MaxTokens bounds each completion.
	MaxTokens int `yaml:"max_tokens" env:"MAX_TOKENS" validate:"min=256"`

	// RequestTimeout bounds each API call.
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT" validate:"min=1s"`
}

// ToolsConfig configures action-execution collaborators.
type ToolsConfig struct {
	// AllowedBinaries is the closed set of executables the CLI tool may
	// invoke.
	AllowedBinaries []string `yaml:"allowed_binaries" validate:"min=1"`

	// SSH configures the remote execution tool. Optional.
	SSH SSHConfig `yaml:"ssh" envPrefix:"SSH_"`
}

// SSHConfig configures the remote execution tool.
type SSHConfig struct {
	// Enabled turns the SSH tool on.
	Enabled bool `yaml:"enabled" env:"ENABLED"`

	// Host is the remote host.
	Host string `yaml:"host" env:"HOST"`

	// Port is the SSH port.
	Port int `yaml:"port" env:"PORT"`

	// User is the login user.
	User string `yaml:"user" env:"USER"`

	// PrivateKeyPath points to the private key file.
	PrivateKeyPath string `yaml:"private_key_path" env:"PRIVATE_KEY_PATH"`

	// KnownHostsPath points to the known_hosts file for host verification.
	KnownHostsPath string `yaml:"known_hosts_path" env:"KNOWN_HOSTS_PATH"`

	// ConnectTimeout bounds connection establishment.
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`
}

// TelemetryConfig configures logging, tracing, and metrics.
type TelemetryConfig struct {
	// LogLevel sets the minimum log level.
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" validate:"oneof=trace debug info warn error"`

	// LogFormat is console or json.
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT" validate:"oneof=console json"`

	// TracingEnabled turns tracing on.
	TracingEnabled bool `yaml:"tracing_enabled" env:"TRACING_ENABLED"`

	// TracingExporter is otlp, stdout, or none.
	TracingExporter string `yaml:"tracing_exporter" env:"TRACING_EXPORTER"`

	// TracingEndpoint is the OTLP collector endpoint.
	TracingEndpoint string `yaml:"tracing_endpoint" env:"TRACING_ENDPOINT"`

	// MetricsEnabled turns the Prometheus endpoint on.
	MetricsEnabled bool `yaml:"metrics_enabled" env:"METRICS_ENABLED"`

	// MetricsAddress is the scrape endpoint listen address.
	MetricsAddress string `yaml:"metrics_address" env:"METRICS_ADDRESS"`
}

// HistoryConfig configures run history persistence.
type HistoryConfig struct {
	// Path is the SQLite database file. Empty disables persistence.
	Path string `yaml:"path" env:"PATH"`
}

// Default returns the built-in configuration.
func Default() *Config {
	engineCfg := engine.DefaultConfig()
	return &Config{
		Engine: EngineConfig{
			MaxConcurrency:           engineCfg.MaxConcurrency,
			ActionTimeout:            engineCfg.ActionTimeout,
			MaxTransientRetries:      engineCfg.MaxTransientRetries,
			MaxParameterAlternatives: engineCfg.MaxParameterAlternatives,
			BackoffSchedule:          engineCfg.BackoffSchedule,
		},
		Reasoner: ReasonerConfig{
			Model:          "claude-sonnet-4-5",
			MaxTokens:      4096,
			RequestTimeout: 60 * time.Second,
		},
		Tools: ToolsConfig{
			AllowedBinaries: []string{"az", "gh"},
			SSH: SSHConfig{
				Port:           22,
				ConnectTimeout: 10 * time.Second,
			},
		},
		Telemetry: TelemetryConfig{
			LogLevel:        "info",
			LogFormat:       "console",
			TracingExporter: "stdout",
			MetricsAddress:  ":9090",
		},
		History: HistoryConfig{
			Path: "azimuth.db",
		},
	}
}

// Load builds the effective configuration: defaults, then the YAML file if
// path is non-empty, then environment overrides, then validation.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// EngineConfig converts to the engine's run configuration.
func (c *Config) EngineConfig() engine.Config {
	cfg := engine.DefaultConfig()
	cfg.MaxConcurrency = c.Engine.MaxConcurrency
	cfg.ActionTimeout = c.Engine.ActionTimeout
	cfg.MaxTransientRetries = c.Engine.MaxTransientRetries
	cfg.MaxParameterAlternatives = c.Engine.MaxParameterAlternatives
	if len(c.Engine.BackoffSchedule) > 0 {
		cfg.BackoffSchedule = c.Engine.BackoffSchedule
	}
	return cfg
}

// TelemetryConfig converts to the telemetry package configuration.
func (c *Config) TelemetryConfig(version string) *telemetry.Config {
	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceVersion = version
	tcfg.Logging.Level = c.Telemetry.LogLevel
	tcfg.Logging.Format = c.Telemetry.LogFormat
	tcfg.Tracing.Enabled = c.Telemetry.TracingEnabled
	if c.Telemetry.TracingExporter != "" {
		tcfg.Tracing.Exporter = c.Telemetry.TracingExporter
	}
	tcfg.Tracing.Endpoint = c.Telemetry.TracingEndpoint
	tcfg.Metrics.Enabled = c.Telemetry.MetricsEnabled
	tcfg.Metrics.ListenAddress = c.Telemetry.MetricsAddress
	return tcfg
}
