package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dmitrijs2005/tokenkeeper/internal/flagx"
)

// EnvPrefix prefixes every environment variable the server reads.
const EnvPrefix = "TOKENKEEPER_"

const defaultEnvFile = ".env"

// parseEnv loads the dotenv file (the -env-file flag, or ./.env when present)
// and overlays TOKENKEEPER_* variables. Variables already set in the process
// environment win over the file.
func parseEnv(config *Config, args []string) error {
	if err := loadEnvFile(flagx.EnvFileFlag(args)); err != nil {
		return err
	}

	strs := map[string]*string{
		"HTTP_ADDR":              &config.HTTPAddr,
		"GRPC_ADDR":              &config.GRPCAddr,
		"DATABASE_DSN":           &config.DatabaseDSN,
		"SQLITE_PATH":            &config.SQLitePath,
		"REDIS_ADDR":             &config.RedisAddr,
		"STORE_BACKEND":          &config.StoreBackend,
		"SECRET_KEY":             &config.SecretKey,
		"PROVIDER_CLIENT_ID":     &config.ProviderClientID,
		"PROVIDER_CLIENT_SECRET": &config.ProviderClientSecret,
		"PROVIDER_AUTH_URL":      &config.ProviderAuthURL,
		"PROVIDER_TOKEN_URL":     &config.ProviderTokenURL,
		"PROVIDER_API_URL":       &config.ProviderAPIURL,
		"REDIRECT_URL":           &config.RedirectURL,
		"FRONTEND_REDIRECT_URL":  &config.FrontendRedirectURL,
		"TOKEN_ENCRYPTION_KEY":   &config.TokenEncryptionKey,
		"LOGGER_BACKEND":         &config.LoggerBackend,
		"LOG_LEVEL":              &config.LogLevel,
		"LOG_FORMAT":             &config.LogFormat,
	}
	for name, dst := range strs {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"BACKEND_TOKEN_TTL": &config.BackendTokenTTL,
		"PROVIDER_TIMEOUT":  &config.ProviderTimeout,
	}
	for name, dst := range durations {
		v, ok := os.LookupEnv(EnvPrefix + name)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = d
	}

	if v, ok := os.LookupEnv(EnvPrefix + "PROVIDER_SCOPES"); ok {
		config.ProviderScopes = splitList(v)
	}

	return nil
}

func loadEnvFile(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}

	err := godotenv.Load(defaultEnvFile)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file %s: %w", defaultEnvFile, err)
	}
	return nil
}

func splitList(v string) []string {
	return strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' })
}
