package server

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/config"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/locks"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/providertokens"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c := &config.Config{}
	c.LoadDefaults()
	c.SecretKey = strings.Repeat("a", 32)
	c.HTTPAddr = "127.0.0.1:0"
	c.GRPCAddr = "127.0.0.1:0"
	c.LogLevel = "error"
	require.NoError(t, c.Validate())
	return c
}

func TestOpenStorage(t *testing.T) {
	mr := miniredis.RunT(t)

	tests := []struct {
		name       string
		mutate     func(c *config.Config)
		wantLocker string
		wantSealed bool
	}{
		{name: "memory", wantLocker: "local"},
		{
			name:       "sqlite",
			mutate:     func(c *config.Config) { c.StoreBackend = config.StoreSQLite; c.SQLitePath = filepath.Join(t.TempDir(), "t.db") },
			wantLocker: "local",
		},
		{
			name:       "redis",
			mutate:     func(c *config.Config) { c.StoreBackend = config.StoreRedis; c.RedisAddr = mr.Addr() },
			wantLocker: "redis",
		},
		{
			name:       "memory with redis locks",
			mutate:     func(c *config.Config) { c.RedisAddr = mr.Addr() },
			wantLocker: "redis",
		},
		{
			name:       "sealed",
			mutate:     func(c *config.Config) { c.TokenEncryptionKey = "at-rest passphrase" },
			wantLocker: "local",
			wantSealed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testConfig(t)
			if tt.mutate != nil {
				tt.mutate(c)
			}

			s, err := openStorage(context.Background(), c, logging.Nop())
			require.NoError(t, err)
			t.Cleanup(func() { assert.NoError(t, s.Close()) })

			assert.Equal(t, tt.wantLocker, s.lockerName)
			_, sealed := s.repo.(*providertokens.SealedRepository)
			assert.Equal(t, tt.wantSealed, sealed)

			ctx := context.Background()
			rt := "r1"
			require.NoError(t, s.repo.Upsert(ctx, &models.ProviderToken{ProviderUserID: "u1", AccessToken: "a1", RefreshToken: &rt}))
			got, err := s.repo.Get(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, "a1", got.AccessToken)
			assert.Equal(t, "r1", *got.RefreshToken)

			require.NoError(t, s.locker.WithLock(ctx, "u1", func(context.Context) error { return nil }))
		})
	}
}

func TestOpenStorage_Failures(t *testing.T) {
	c := testConfig(t)
	c.StoreBackend = config.StoreRedis
	c.RedisAddr = "127.0.0.1:1"

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := openStorage(ctx, c, logging.Nop())
	require.Error(t, err)

	c = testConfig(t)
	c.StoreBackend = "etcd"
	_, err = openStorage(context.Background(), c, logging.Nop())
	require.Error(t, err)
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	c := testConfig(t)

	app, err := NewApp(context.Background(), c)
	require.NoError(t, err)
	_, isLocal := app.store.locker.(*locks.Local)
	assert.True(t, isLocal)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop after context cancel")
	}
}

func TestApp_RunFailsOnBadAddress(t *testing.T) {
	c := testConfig(t)
	c.GRPCAddr = "127.0.0.1:99999"

	app, err := NewApp(context.Background(), c)
	require.NoError(t, err)

	select {
	case err := <-runAsync(app):
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop after grpc listen failure")
	}
}

func runAsync(app *App) <-chan error {
	done := make(chan error, 1)
	go func() { done <- app.Run(context.Background()) }()
	return done
}
