package config

import (
	"strings"
	"testing"
	"time"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := GetDefaultConfig()
	if err := Validate(cfg); err != nil {
		t.Errorf("Valid config failed validation: %v", err)
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"invalid log level", func(c *Config) { c.Logging.Level = "TRACE" }, "Level"},
		{"invalid log format", func(c *Config) { c.Logging.Format = "xml" }, "Format"},
		{"negative queue size", func(c *Config) { c.Logging.QueueSize = -1 }, "QueueSize"},
		{"zero shutdown timeout", func(c *Config) { c.Server.ShutdownTimeout = 0 }, "ShutdownTimeout"},
		{"metrics port out of range", func(c *Config) { c.Server.Metrics.Port = 70000 }, "Port"},
		{"empty document root", func(c *Config) { c.DocumentRoot.Path = "" }, "Path"},
		{"unknown document root source", func(c *Config) { c.DocumentRoot.Source = "ftp" }, "Source"},
		{"unknown credential store", func(c *Config) { c.Credentials.Type = "ldap" }, "Type"},
		{"privileged http port", func(c *Config) { c.Adapters.HTTP.Port = 80 }, "Port"},
		{"http port too large", func(c *Config) { c.Adapters.HTTP.Port = 65536 }, "Port"},
		{"trigger mode too large", func(c *Config) { c.Adapters.HTTP.TriggerMode = 4 }, "TriggerMode"},
		{"negative trigger mode", func(c *Config) { c.Adapters.HTTP.TriggerMode = -1 }, "TriggerMode"},
		{"negative idle timeout", func(c *Config) { c.Adapters.HTTP.IdleTimeout = -time.Second }, "IdleTimeout"},
		{"negative workers", func(c *Config) { c.Adapters.HTTP.Workers = -2 }, "Workers"},
		{"negative max connections", func(c *Config) { c.Adapters.HTTP.MaxConnections = -1 }, "MaxConnections"},
		{"no adapters", func(c *Config) { c.Adapters.HTTP.Enabled = false }, "at least one adapter"},
		{"s3 without bucket", func(c *Config) { c.DocumentRoot.Source = "s3" }, "bucket"},
		{"burst without rate", func(c *Config) { c.Adapters.HTTP.AcceptBurst = 5 }, "accept_rate"},
		{"metrics port clash", func(c *Config) {
			c.Server.Metrics.Enabled = true
			c.Server.Metrics.Port = c.Adapters.HTTP.Port
		}, "conflicts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatalf("Expected validation error for %s", tt.name)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error mentioning %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_LogLevelNormalization(t *testing.T) {
	for _, level := range []string{"debug", "Info", "WARN", "error"} {
		cfg := &Config{Logging: LoggingConfig{Level: level}}
		ApplyDefaults(cfg)

		if cfg.Logging.Level != strings.ToUpper(level) {
			t.Errorf("Expected %q normalized to %q, got %q", level, strings.ToUpper(level), cfg.Logging.Level)
		}
		if err := Validate(cfg); err != nil {
			t.Errorf("Level %q should validate: %v", level, err)
		}
	}
}

func TestValidate_S3WithBucket(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.DocumentRoot.Source = "s3"
	cfg.DocumentRoot.S3 = map[string]any{"bucket": "site", "region": "us-east-1"}

	if err := Validate(cfg); err != nil {
		t.Errorf("S3 document root with bucket should validate: %v", err)
	}
}
