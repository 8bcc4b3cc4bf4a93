package config

import (
	"strconv"
	"strings"
)

type ServerConfig struct {
	Listen  string        `yaml:"listen"`
	Storage StorageConfig `yaml:"storage"`
	Auth    AuthConfig    `yaml:"auth"`
	Limits  LimitsConfig  `yaml:"limits"`
	Agents  AgentsConfig  `yaml:"agents"`
	Scans   ScansConfig   `yaml:"scans"`
	Policy  PolicyConfig  `yaml:"policy"`
	SSO     SSOConfig     `yaml:"sso"`
	CORS    CORSConfig    `yaml:"cors"`
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
}

// StorageConfig selects the backing store. "memory" keeps everything in process.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type AuthConfig struct {
	RequireToken   bool   `yaml:"require_token"`
	AdminToken     string `yaml:"admin_token"`
	AdminTokenFile string `yaml:"admin_token_file"`
	TokenPepper    string `yaml:"token_pepper"`
}

type LimitsConfig struct {
	IngestPerMinute int   `yaml:"ingest_per_minute"`
	MaxBodyBytes    int64 `yaml:"max_body_bytes"`
}

type AgentsConfig struct {
	HeartbeatTimeoutS int `yaml:"heartbeat_timeout_s"`
}

type ScansConfig struct {
	Capacity int `yaml:"capacity"`
}

type PolicyConfig struct {
	File string `yaml:"file"`
}

type SSOConfig struct {
	Enabled      bool               `yaml:"enabled"`
	Provider     ProviderConfig     `yaml:"provider"`
	Services     []SSOServiceConfig `yaml:"services"`
	SessionStore string             `yaml:"session_store"`
	Redis        RedisConfig        `yaml:"redis"`
	CookieName   string             `yaml:"cookie_name"`
	CookieSecure bool               `yaml:"cookie_secure"`
}

type ProviderConfig struct {
	URL          string `yaml:"url"`
	Realm        string `yaml:"realm"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri"`
	AuthURL      string `yaml:"auth_url"`
	TokenURL     string `yaml:"token_url"`
	UserInfoURL  string `yaml:"userinfo_url"`
	TimeoutS     int    `yaml:"timeout_s"`
}

type SSOServiceConfig struct {
	ID            string   `yaml:"id"`
	URL           string   `yaml:"url"`
	ClientID      string   `yaml:"client_id"`
	RequiredRoles []string `yaml:"required_roles"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DefaultServerConfig returns a server config with sensible defaults
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Listen:  ":8080",
		Storage: StorageConfig{Driver: "sqlite", DSN: "launchpad.db"},
		Auth:    AuthConfig{RequireToken: true},
		Limits: LimitsConfig{
			IngestPerMinute: 120,
			MaxBodyBytes:    10 << 20,
		},
		Agents: AgentsConfig{HeartbeatTimeoutS: 300},
		Scans:  ScansConfig{Capacity: 1000},
		SSO: SSOConfig{
			Provider: ProviderConfig{
				Realm:    "optimal-platform",
				TimeoutS: 10,
			},
			SessionStore: "memory",
			CookieName:   "launchpad_session",
		},
		Logging: defaultLogging(),
		Tracing: defaultTracing(),
	}
}

// LoadServer reads config from file with env var overrides
func LoadServer(path string) (*ServerConfig, error) {
	cfg := DefaultServerConfig()
	if err := readYAML(path, cfg); err != nil {
		return nil, err
	}

	if v := env("LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := env("STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := env("STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := env("REQUIRE_TOKEN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Auth.RequireToken = b
		}
	}
	if v := env("ADMIN_TOKEN"); v != "" {
		cfg.Auth.AdminToken = v
	}
	if v := env("ADMIN_TOKEN_FILE"); v != "" {
		cfg.Auth.AdminTokenFile = v
	}
	if v := env("TOKEN_PEPPER"); v != "" {
		cfg.Auth.TokenPepper = v
	}
	if v := env("SSO_CLIENT_SECRET"); v != "" {
		cfg.SSO.Provider.ClientSecret = v
	}
	if v := env("REDIS_ADDR"); v != "" {
		cfg.SSO.Redis.Addr = v
	}
	if v := env("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if cfg.Auth.AdminToken == "" {
		cfg.Auth.AdminToken = readSecretFile(cfg.Auth.AdminTokenFile)
	}

	return cfg, nil
}

func (c *ServerConfig) Validate() error {
	if strings.TrimSpace(c.Listen) == "" {
		c.Listen = ":8080"
	}

	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	switch c.Storage.Driver {
	case "", "memory":
		c.Storage.Driver = "memory"
	case "sqlite":
		if c.Storage.DSN == "" {
			c.Storage.DSN = "launchpad.db"
		}
	case "mysql":
		if c.Storage.DSN == "" {
			return &Error{"storage dsn is required for mysql"}
		}
	default:
		return &Error{"storage driver must be memory, sqlite or mysql"}
	}

	if c.Limits.IngestPerMinute < 0 {
		c.Limits.IngestPerMinute = 0
	}
	if c.Limits.MaxBodyBytes <= 0 {
		c.Limits.MaxBodyBytes = 10 << 20
	}
	if c.Agents.HeartbeatTimeoutS < 0 {
		c.Agents.HeartbeatTimeoutS = 0
	}
	if c.Scans.Capacity <= 0 {
		c.Scans.Capacity = 1000
	}

	if err := c.SSO.validate(); err != nil {
		return err
	}

	c.Tracing.normalize()
	return c.Logging.normalize()
}

func (s *SSOConfig) validate() error {
	if s.CookieName == "" {
		s.CookieName = "launchpad_session"
	}
	if s.Provider.TimeoutS <= 0 {
		s.Provider.TimeoutS = 10
	}
	s.SessionStore = strings.ToLower(strings.TrimSpace(s.SessionStore))
	switch s.SessionStore {
	case "":
		s.SessionStore = "memory"
	case "memory", "redis":
	default:
		return &Error{"sso session_store must be memory or redis"}
	}
	if !s.Enabled {
		return nil
	}
	if s.Provider.URL == "" && (s.Provider.AuthURL == "" || s.Provider.TokenURL == "") {
		return &Error{"sso provider url or auth_url and token_url are required"}
	}
	if s.Provider.RedirectURI == "" {
		return &Error{"sso provider redirect_uri is required"}
	}
	if s.SessionStore == "redis" && s.Redis.Addr == "" {
		return &Error{"sso redis addr is required for the redis session store"}
	}
	return nil
}
