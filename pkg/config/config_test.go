package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.CollectorBaseURL == "" {
		t.Error("collector URL default missing")
	}
	if c.Retries != 3 {
		t.Errorf("Retries = %d, want 3", c.Retries)
	}
	if c.OutlierSigma != 3.0 {
		t.Errorf("OutlierSigma = %v, want 3.0", c.OutlierSigma)
	}
	if c.LoadThresholdPercent != 20.0 {
		t.Errorf("LoadThresholdPercent = %v, want 20.0", c.LoadThresholdPercent)
	}
	if c.QueueStore != "dir" {
		t.Errorf("QueueStore = %q, want dir", c.QueueStore)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFileAndEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte("collectorBaseUrl: https://collector.example.com\nretries: 7\nworkers: 4\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("ENCBENCH_RETRIES", "9")
	t.Setenv("API_KEY", "k-123")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.CollectorBaseURL != "https://collector.example.com" {
		t.Errorf("CollectorBaseURL = %q", c.CollectorBaseURL)
	}
	if c.Retries != 9 {
		t.Errorf("env should beat file: Retries = %d, want 9", c.Retries)
	}
	if c.Workers != 4 {
		t.Errorf("Workers = %d, want 4", c.Workers)
	}
	if c.APIKey != "k-123" {
		t.Errorf("APIKey = %q", c.APIKey)
	}
}

func TestLoadMissingFileIsFine(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing config file should not fail: %v", err)
	}
	if c.BackoffPolicy == "" {
		t.Error("defaults not applied")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad collector url", func(c *Config) { c.CollectorBaseURL = "not-a-url" }},
		{"bad queue store", func(c *Config) { c.QueueStore = "sqlite" }},
		{"redis store without addr", func(c *Config) { c.QueueStore = "redis"; c.RedisAddr = " " }},
		{"unknown backoff policy", func(c *Config) { c.BackoffPolicy = "quadratic" }},
		{"negative workers", func(c *Config) { c.Workers = -2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Load("")
			if err != nil {
				t.Fatal(err)
			}
			tt.mutate(c)
			if err := c.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}
