package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrijs2005/tokenkeeper/internal/cryptox"
	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/config"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/locks"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/providertokens"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/repomanager"
)

// storage is the provider token store and the locker guarding it, plus the
// connections they own.
type storage struct {
	repo       providertokens.Repository
	locker     locks.Locker
	lockerName string

	db    *sql.DB
	redis redis.UniversalClient
}

func (s *storage) Close() error {
	var errs []error
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	return errors.Join(errs...)
}

// openStorage selects the store from StoreBackend and the locker from what is
// available: Redis when an address is configured, else PostgreSQL advisory
// locks for the postgres store, else an in-process lock.
func openStorage(ctx context.Context, c *config.Config, logger logging.Logger) (_ *storage, err error) {
	s := &storage{}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	if c.RedisAddr != "" {
		s.redis = redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		if err := s.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
	}

	switch c.StoreBackend {
	case config.StoreMemory:
		s.repo = providertokens.NewMemoryRepository()
		logger.Warn(ctx, "using in-memory provider token store; credentials are lost on restart")

	case config.StorePostgres:
		if err := s.openSQL(ctx, "pgx", c.DatabaseDSN, repomanager.NewPostgresRepositoryManager()); err != nil {
			return nil, err
		}

	case config.StoreSQLite:
		if err := s.openSQL(ctx, "sqlite", c.SQLitePath, repomanager.NewSQLiteRepositoryManager()); err != nil {
			return nil, err
		}
		// One writer at a time; avoids SQLITE_BUSY under concurrent upserts.
		s.db.SetMaxOpenConns(1)

	case config.StoreRedis:
		s.repo = providertokens.NewRedisRepository(s.redis)

	default:
		return nil, fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}

	if c.TokenEncryptionKey != "" {
		sealer, err := cryptox.NewSealer([]byte(c.TokenEncryptionKey))
		if err != nil {
			return nil, fmt.Errorf("token sealer: %w", err)
		}
		s.repo = providertokens.NewSealedRepository(s.repo, sealer)
	}

	switch {
	case s.redis != nil:
		s.locker, s.lockerName = locks.NewRedis(s.redis, 0), "redis"
	case c.StoreBackend == config.StorePostgres:
		s.locker, s.lockerName = locks.NewPostgres(s.db), "postgres"
	default:
		s.locker, s.lockerName = locks.NewLocal(), "local"
	}

	return s, nil
}

func (s *storage) openSQL(ctx context.Context, driver, dsn string, rm repomanager.RepositoryManager) error {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return fmt.Errorf("db open error: %w", err)
	}
	s.db = db

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping error: %w", err)
	}
	if err := rm.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}

	s.repo = rm.ProviderTokens(db)
	return nil
}
