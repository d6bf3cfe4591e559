package config

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/flagx"
)

// parseFlags overlays command-line flags.
//
// Supported flags:
//
//	-a string   HTTP bind address (e.g. ":8080")
//	-g string   gRPC bind address (e.g. ":50051")
//	-d string   PostgreSQL DSN
//	-s string   BackendToken HMAC secret (>= 32 bytes)
//	-t int      BackendToken validity, minutes
//	-f string   frontend redirect URL
//	-store      store backend: memory, postgres, sqlite, redis
//	-redis      redis address
//	-sqlite     sqlite file path
//	-log-level  debug, info, warn, error
//
// Only the flags above are considered; os.Args is first filtered with
// flagx.FilterArgs so the -c and -env-file loaders do not collide.
func parseFlags(config *Config, args []string) error {
	allowed := []string{"-a", "-g", "-d", "-s", "-t", "-f", "-store", "-redis", "-sqlite", "-log-level"}
	filtered := flagx.FilterArgs(args, allowed)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "HTTP address and port")
	fs.StringVar(&config.GRPCAddr, "g", config.GRPCAddr, "gRPC address and port")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	ttl := fs.Int("t", int(config.BackendTokenTTL.Minutes()), "backend token validity (in minutes)")
	fs.StringVar(&config.FrontendRedirectURL, "f", config.FrontendRedirectURL, "frontend redirect URL")
	fs.StringVar(&config.StoreBackend, "store", config.StoreBackend, "store backend")
	fs.StringVar(&config.RedisAddr, "redis", config.RedisAddr, "redis address")
	fs.StringVar(&config.SQLitePath, "sqlite", config.SQLitePath, "sqlite path")
	fs.StringVar(&config.LogLevel, "log-level", config.LogLevel, "log level")

	if err := fs.Parse(filtered); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "t" {
			config.BackendTokenTTL = minutes(*ttl)
		}
	})

	return nil
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}
