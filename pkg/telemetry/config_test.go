package telemetry

import "testing"

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty service name", func(c *Config) { c.ServiceName = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"bad exporter", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "jaeger2"
		}},
		{"bad sampling rate", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.SamplingRate = 1.5
		}},
		{"metrics without address", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.ListenAddress = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestDisabledTracingSkipsExporterChecks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tracing.Enabled = false
	cfg.Tracing.Exporter = "bogus"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled tracing must not validate the exporter: %v", err)
	}
}
