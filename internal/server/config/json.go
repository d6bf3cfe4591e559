package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/tokenkeeper/internal/flagx"
	"github.com/dmitrijs2005/tokenkeeper/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations use
// timex.Duration so both "10s" and integer nanoseconds are accepted.
// Absent keys leave the current value untouched.
type JsonConfig struct {
	HTTPAddr             *string         `json:"http_addr"`
	GRPCAddr             *string         `json:"grpc_addr"`
	DatabaseDSN          *string         `json:"database_dsn"`
	SQLitePath           *string         `json:"sqlite_path"`
	RedisAddr            *string         `json:"redis_addr"`
	StoreBackend         *string         `json:"store_backend"`
	SecretKey            *string         `json:"secret_key"`
	BackendTokenTTL      *timex.Duration `json:"backend_token_ttl"`
	ProviderClientID     *string         `json:"provider_client_id"`
	ProviderClientSecret *string         `json:"provider_client_secret"`
	ProviderAuthURL      *string         `json:"provider_auth_url"`
	ProviderTokenURL     *string         `json:"provider_token_url"`
	ProviderAPIURL       *string         `json:"provider_api_url"`
	ProviderScopes       []string        `json:"provider_scopes"`
	ProviderTimeout      *timex.Duration `json:"provider_timeout"`
	RedirectURL          *string         `json:"redirect_url"`
	FrontendRedirectURL  *string         `json:"frontend_redirect_url"`
	TokenEncryptionKey   *string         `json:"token_encryption_key"`
	LoggerBackend        *string         `json:"logger_backend"`
	LogLevel             *string         `json:"log_level"`
	LogFormat            *string         `json:"log_format"`
}

// parseJson overlays values from the file named by -c/-config, if any.
func parseJson(config *Config, args []string) error {
	jsonConfigFile := flagx.JsonConfigFlag(args)

	// nothing to load
	if jsonConfigFile == "" {
		return nil
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", jsonConfigFile, err)
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.GRPCAddr, c.GRPCAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SQLitePath, c.SQLitePath)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.StoreBackend, c.StoreBackend)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.ProviderClientID, c.ProviderClientID)
	setString(&config.ProviderClientSecret, c.ProviderClientSecret)
	setString(&config.ProviderAuthURL, c.ProviderAuthURL)
	setString(&config.ProviderTokenURL, c.ProviderTokenURL)
	setString(&config.ProviderAPIURL, c.ProviderAPIURL)
	setString(&config.RedirectURL, c.RedirectURL)
	setString(&config.FrontendRedirectURL, c.FrontendRedirectURL)
	setString(&config.TokenEncryptionKey, c.TokenEncryptionKey)
	setString(&config.LoggerBackend, c.LoggerBackend)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogFormat, c.LogFormat)

	if c.BackendTokenTTL != nil {
		config.BackendTokenTTL = c.BackendTokenTTL.Duration
	}
	if c.ProviderTimeout != nil {
		config.ProviderTimeout = c.ProviderTimeout.Duration
	}
	if c.ProviderScopes != nil {
		config.ProviderScopes = c.ProviderScopes
	}

	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
