package config

import (
	"net/url"
	"path/filepath"
	"strings"
)

type AgentConfig struct {
	Server    UpstreamConfig  `yaml:"server"`
	Agent     IdentityConfig  `yaml:"agent"`
	Reporting ReportingConfig `yaml:"reporting"`
	Scanner   ScannerConfig   `yaml:"scanner"`
	Health    HealthConfig    `yaml:"health"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// UpstreamConfig is how the agent reaches the control plane.
type UpstreamConfig struct {
	URL             string `yaml:"url"`
	APIToken        string `yaml:"api_token"`
	APITokenFile    string `yaml:"api_token_file"`
	AllowInsecure   bool   `yaml:"allow_insecure"`
	RequestTimeout  int    `yaml:"request_timeout_s"`
	RetryInitialMs  int    `yaml:"retry_initial_ms"`
	RetryMaxMs      int    `yaml:"retry_max_ms"`
	RetryMaxRetries int    `yaml:"retry_max_attempts"`
}

type IdentityConfig struct {
	ID           string   `yaml:"id"`
	Capabilities []string `yaml:"capabilities"`
}

type ReportingConfig struct {
	Interval          int `yaml:"interval_s"`
	HeartbeatInterval int `yaml:"heartbeat_s"`
	Jitter            int `yaml:"jitter_s"`
}

type ScannerConfig struct {
	Type       string   `yaml:"type"`
	Binary     string   `yaml:"binary"`
	Targets    []string `yaml:"targets"`
	TargetType string   `yaml:"target_type"`
	TimeoutS   int      `yaml:"timeout_s"`
}

type HealthConfig struct {
	CheckServer  bool `yaml:"check_server"`
	CheckScanner bool `yaml:"check_scanner"`
}

// DefaultAgentConfig returns an agent config with sensible defaults
func DefaultAgentConfig() *AgentConfig {
	return &AgentConfig{
		Server: UpstreamConfig{
			URL:             "https://localhost:8443",
			RequestTimeout:  30,
			RetryInitialMs:  500,
			RetryMaxMs:      5000,
			RetryMaxRetries: 5,
		},
		Reporting: ReportingConfig{
			Interval:          3600,
			HeartbeatInterval: 60,
			Jitter:            30,
		},
		Scanner: ScannerConfig{
			Type:       "grype",
			TargetType: "image",
			TimeoutS:   600,
		},
		Health: HealthConfig{
			CheckServer:  true,
			CheckScanner: true,
		},
		Logging: defaultLogging(),
		Tracing: defaultTracing(),
	}
}

// LoadAgent reads config from file with env var overrides
func LoadAgent(path string) (*AgentConfig, error) {
	cfg := DefaultAgentConfig()
	if err := readYAML(path, cfg); err != nil {
		return nil, err
	}

	if v := env("SERVER_URL"); v != "" {
		cfg.Server.URL = v
	}
	if v := env("API_TOKEN"); v != "" {
		cfg.Server.APIToken = v
	}
	if v := env("API_TOKEN_FILE"); v != "" {
		cfg.Server.APITokenFile = v
	}
	if v := env("AGENT_ID"); v != "" {
		cfg.Agent.ID = v
	}
	if v := env("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if cfg.Server.APIToken == "" && cfg.Server.APITokenFile == "" && path != "" {
		cfg.Server.APITokenFile = filepath.Join(filepath.Dir(path), "api.token")
	}
	if cfg.Server.APIToken == "" {
		cfg.Server.APIToken = readSecretFile(cfg.Server.APITokenFile)
	}

	return cfg, nil
}

func (c *AgentConfig) Validate() error {
	if c.Server.URL == "" {
		return ErrMissingServerURL
	}
	u, err := url.Parse(c.Server.URL)
	if err != nil || u.Host == "" {
		return &Error{"server URL is invalid"}
	}
	switch {
	case u.Scheme == "https":
	case u.Scheme == "http" && c.Server.AllowInsecure:
	default:
		return &Error{"server URL must be https"}
	}
	c.Server.URL = strings.TrimRight(c.Server.URL, "/")
	if c.Reporting.Interval < 10 {
		return ErrInvalidInterval
	}
	if c.Reporting.HeartbeatInterval <= 0 {
		c.Reporting.HeartbeatInterval = 60
	}
	if c.Reporting.Jitter < 0 {
		c.Reporting.Jitter = 0
	}
	if c.Server.RequestTimeout <= 0 {
		c.Server.RequestTimeout = 30
	}
	if c.Server.RetryInitialMs <= 0 {
		c.Server.RetryInitialMs = 500
	}
	if c.Server.RetryMaxMs <= 0 {
		c.Server.RetryMaxMs = 5000
	}
	if c.Server.RetryMaxRetries < 0 {
		c.Server.RetryMaxRetries = 5
	}
	if c.Server.RetryMaxMs < c.Server.RetryInitialMs {
		c.Server.RetryMaxMs = c.Server.RetryInitialMs
	}

	c.Scanner.Type = strings.ToLower(strings.TrimSpace(c.Scanner.Type))
	switch c.Scanner.Type {
	case "":
		c.Scanner.Type = "grype"
	case "grype", "trivy":
	default:
		return &Error{"scanner type must be grype or trivy"}
	}
	if c.Scanner.Binary == "" {
		c.Scanner.Binary = c.Scanner.Type
	}
	if c.Scanner.TargetType == "" {
		c.Scanner.TargetType = "image"
	}
	if c.Scanner.TimeoutS <= 0 {
		c.Scanner.TimeoutS = 600
	}

	c.Tracing.normalize()
	return c.Logging.normalize()
}
