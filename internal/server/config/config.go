// Package config handles configuration for the tokenkeeper server: defaults,
// an optional JSON file, TOKENKEEPER_* environment variables (optionally from
// a .env file) and finally command-line flags, in that order of precedence.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
)

// MinSecretKeyLength is the minimum HS256 secret size in bytes (256 bits).
const MinSecretKeyLength = 32

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreRedis    = "redis"
)

// Config holds runtime settings for the tokenkeeper server.
//
// SecretKey signs BackendTokens and must be at least 32 bytes. The Provider*
// fields describe the single OAuth2 provider the service brokers for.
// TokenEncryptionKey, when set, seals provider tokens at rest.
type Config struct {
	HTTPAddr string
	GRPCAddr string

	DatabaseDSN  string
	SQLitePath   string
	RedisAddr    string
	StoreBackend string

	SecretKey       string
	BackendTokenTTL time.Duration

	ProviderClientID     string
	ProviderClientSecret string
	ProviderAuthURL      string
	ProviderTokenURL     string
	ProviderAPIURL       string
	ProviderScopes       []string
	ProviderTimeout      time.Duration
	RedirectURL          string

	FrontendRedirectURL string
	TokenEncryptionKey  string

	LoggerBackend string
	LogLevel      string
	LogFormat     string
}

// LoadDefaults populates Config with development defaults.
// SecretKey has no default; Validate rejects it until one is configured.
func (c *Config) LoadDefaults() {
	c.HTTPAddr = ":8080"
	c.GRPCAddr = ":50051"
	c.SQLitePath = "tokenkeeper.db"
	c.StoreBackend = StoreMemory
	c.BackendTokenTTL = time.Hour
	c.ProviderAuthURL = "https://accounts.spotify.com/authorize"
	c.ProviderTokenURL = "https://accounts.spotify.com/api/token"
	c.ProviderAPIURL = "https://api.spotify.com/v1"
	c.ProviderScopes = []string{"user-read-private", "user-read-email"}
	c.ProviderTimeout = 10 * time.Second
	c.RedirectURL = "http://localhost:8080/login/oauth2/code/provider"
	c.FrontendRedirectURL = "http://localhost:5173/oauth2/redirect"
	c.LoggerBackend = "zap"
	c.LogLevel = "info"
	c.LogFormat = "console"
}

// LoadConfig builds a Config from defaults, then overlays the JSON file,
// the environment and the command-line flags found in args (usually
// os.Args[1:]). The result is validated before being returned.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseEnv(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if len(c.SecretKey) < MinSecretKeyLength {
		return fmt.Errorf("%w: secret key must be at least %d bytes: %w",
			common.ErrInvalidConfig, MinSecretKeyLength, common.ErrWeakSecret)
	}
	if c.BackendTokenTTL <= 0 {
		return fmt.Errorf("%w: backend token ttl must be positive", common.ErrInvalidConfig)
	}
	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("%w: provider timeout must be positive", common.ErrInvalidConfig)
	}
	if err := absoluteURL("frontend redirect url", c.FrontendRedirectURL); err != nil {
		return err
	}
	if err := absoluteURL("provider token url", c.ProviderTokenURL); err != nil {
		return err
	}

	switch c.StoreBackend {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("%w: postgres store requires a database dsn", common.ErrInvalidConfig)
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("%w: sqlite store requires a path", common.ErrInvalidConfig)
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: redis store requires an address", common.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store backend %q", common.ErrInvalidConfig, c.StoreBackend)
	}

	return nil
}

func absoluteURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %s %q is not an absolute url", common.ErrInvalidConfig, name, raw)
	}
	return nil
}
