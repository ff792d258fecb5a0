package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	CollectorBaseURL string `yaml:"collectorBaseUrl"`
	APIKey           string `yaml:"apiKey"`
	HMACSecret       string `yaml:"hmacSecret"`
	UseTokenProtocol bool   `yaml:"useTokenProtocol"`
	// TokenEndpoints are tried in order until one answers 2xx. Relative
	// paths are resolved against CollectorBaseURL.
	TokenEndpoints []string `yaml:"tokenEndpoints"`

	Retries            int    `yaml:"retries"`
	BackoffPolicy      string `yaml:"backoffPolicy"`
	BackoffBaseSeconds int    `yaml:"backoffBaseSeconds"`
	BackoffMaxSeconds  int    `yaml:"backoffMaxSeconds"`
	HTTPTimeoutSeconds int    `yaml:"httpTimeoutSeconds"`
	// SubmitRatePerMinute > 0 paces outbound submissions client-side.
	SubmitRatePerMinute int `yaml:"submitRatePerMinute"`
	SubmitBurst         int `yaml:"submitBurst"`

	QueueStore string `yaml:"queueStore"` // dir | redis
	QueueDir   string `yaml:"queueDir"`
	RedisAddr  string `yaml:"redisAddr"`

	Workers              int     `yaml:"workers"` // 0 = auto (physical cores)
	EncodeTimeoutSeconds int     `yaml:"encodeTimeoutSeconds"`
	ScoreTimeoutSeconds  int     `yaml:"scoreTimeoutSeconds"`
	DisableVMAF          bool    `yaml:"disableVmaf"`
	OutlierSigma         float64 `yaml:"outlierSigma"`
	LoadThresholdPercent float64 `yaml:"loadThresholdPercent"`
	LoadSampleSeconds    int     `yaml:"loadSampleSeconds"`
	BaselineLimit        int     `yaml:"baselineLimit"`

	LogLevel      string `yaml:"logLevel"`
	LogFormat     string `yaml:"logFormat"`
	MetricsListen string `yaml:"metricsListen"`

	TracingEnabled  bool    `yaml:"tracingEnabled"`
	OTLPEndpoint    string  `yaml:"otlpEndpoint"`
	OTLPInsecure    bool    `yaml:"otlpInsecure"`
	TraceSampleRate float64 `yaml:"traceSampleRate"`
}

// Load reads the yaml file at filePath (missing file is fine: defaults plus
// env apply), layers environment overrides on top, then fills defaults.
func Load(filePath string) (*Config, error) {
	var c Config
	if filePath != "" {
		data, err := os.ReadFile(filePath)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &c); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", filePath, err)
			}
		case os.IsNotExist(err):
			// fall through to env + defaults
		default:
			return nil, err
		}
	}

	if v := os.Getenv("ENCBENCH_COLLECTOR_URL"); v != "" {
		c.CollectorBaseURL = v
	}
	if v := os.Getenv("API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("INGEST_HMAC_SECRET"); v != "" {
		c.HMACSecret = v
	}
	if v := os.Getenv("ENCBENCH_USE_TOKEN"); v != "" {
		c.UseTokenProtocol = parseBool(v)
	}
	if v := os.Getenv("ENCBENCH_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Retries = n
		}
	}
	if v := os.Getenv("BACKOFF_POLICY"); v != "" {
		c.BackoffPolicy = v
	}
	if v := os.Getenv("BACKOFF_BASE_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.BackoffBaseSeconds = n
		}
	}
	if v := os.Getenv("BACKOFF_MAX_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.BackoffMaxSeconds = n
		}
	}
	if v := os.Getenv("QUEUE_DIR"); v != "" {
		c.QueueDir = v
	}
	if v := os.Getenv("QUEUE_STORE"); v != "" {
		c.QueueStore = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("ENCBENCH_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Workers = n
		}
	}
	if v := os.Getenv("DISABLE_VMAF"); v != "" {
		c.DisableVMAF = parseBool(v)
	}
	if v := os.Getenv("ENCBENCH_METRICS_LISTEN"); v != "" {
		c.MetricsListen = v
	}
	if v := os.Getenv("ENCBENCH_TRACING"); v != "" {
		c.TracingEnabled = parseBool(v)
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.OTLPEndpoint = v
	}

	applyDefaults(&c)
	return &c, nil
}

func applyDefaults(c *Config) {
	if c.CollectorBaseURL == "" {
		c.CollectorBaseURL = "https://encodingdb.platinumlabs.dev"
	}
	if len(c.TokenEndpoints) == 0 {
		c.TokenEndpoints = []string{"/token", "/api/token", "/v1/token"}
	}
	if c.Retries <= 0 {
		c.Retries = 3
	}
	if c.BackoffPolicy == "" {
		c.BackoffPolicy = "linear"
	}
	if c.BackoffBaseSeconds <= 0 {
		c.BackoffBaseSeconds = 1
	}
	if c.BackoffMaxSeconds <= 0 {
		c.BackoffMaxSeconds = 60
	}
	if c.HTTPTimeoutSeconds <= 0 {
		c.HTTPTimeoutSeconds = 30
	}
	if c.QueueStore == "" {
		c.QueueStore = "dir"
	}
	if c.QueueDir == "" {
		c.QueueDir = filepath.Join(os.TempDir(), "encodingdb-queue")
	}
	if c.RedisAddr == "" {
		c.RedisAddr = "localhost:6379"
	}
	if c.EncodeTimeoutSeconds <= 0 {
		c.EncodeTimeoutSeconds = 1800
	}
	if c.ScoreTimeoutSeconds <= 0 {
		c.ScoreTimeoutSeconds = 1800
	}
	if c.OutlierSigma <= 0 {
		c.OutlierSigma = 3.0
	}
	if c.LoadThresholdPercent <= 0 {
		c.LoadThresholdPercent = 20.0
	}
	if c.LoadSampleSeconds <= 0 {
		c.LoadSampleSeconds = 2
	}
	if c.BaselineLimit <= 0 {
		c.BaselineLimit = 500
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.TraceSampleRate <= 0 || c.TraceSampleRate > 1 {
		c.TraceSampleRate = 1
	}
}

func (c *Config) Validate() error {
	var errs []string

	u, err := url.Parse(c.CollectorBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, "collectorBaseUrl must be a valid http(s) URL")
	}
	switch c.QueueStore {
	case "dir", "redis":
	default:
		errs = append(errs, fmt.Sprintf("queueStore must be dir or redis, got %q", c.QueueStore))
	}
	if c.QueueStore == "redis" && strings.TrimSpace(c.RedisAddr) == "" {
		errs = append(errs, "redisAddr is required when queueStore is redis")
	}
	switch c.BackoffPolicy {
	case "fixed", "linear", "exponential", "exp_equal_jitter", "exp_full_jitter":
	default:
		errs = append(errs, fmt.Sprintf("unknown backoffPolicy %q", c.BackoffPolicy))
	}
	if c.Workers < 0 {
		errs = append(errs, "workers must be >= 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func parseBool(v string) bool {
	v = strings.TrimSpace(strings.ToLower(v))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}
