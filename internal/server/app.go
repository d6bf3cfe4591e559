// Package server assembles the tokenkeeper server: logger, provider token
// store, lock backend, services and the HTTP and gRPC surfaces. It handles
// graceful shutdown on SIGINT/SIGTERM/SIGQUIT.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/auth"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/config"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/services"

	gs "github.com/dmitrijs2005/tokenkeeper/internal/server/grpc"
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	store      *storage
	httpServer *httpapi.Server
	grpcServer *gs.GRPCServer
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger, err := logging.New(logging.Options{
		Backend: c.LoggerBackend,
		Level:   c.LogLevel,
		Format:  c.LogFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}

	store, err := openStorage(ctx, c, logger)
	if err != nil {
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	app, err := newApp(c, logger, store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return app, nil
}

func newApp(c *config.Config, logger logging.Logger, store *storage) (*App, error) {
	codec, err := auth.NewCodec([]byte(c.SecretKey))
	if err != nil {
		return nil, fmt.Errorf("token codec init error: %w", err)
	}

	m := metrics.New()

	provider := services.NewProviderClient(services.ProviderConfig{
		TokenURL:     c.ProviderTokenURL,
		ClientID:     c.ProviderClientID,
		ClientSecret: c.ProviderClientSecret,
		Timeout:      c.ProviderTimeout,
	}, nil)

	tokens := services.NewTokenService(store.repo, store.locker, provider, logger, services.WithTokenMetrics(m))

	login, err := services.NewLoginService(codec, tokens, services.LoginConfig{
		BackendTokenTTL:     c.BackendTokenTTL,
		FrontendRedirectURL: c.FrontendRedirectURL,
	}, logger, m)
	if err != nil {
		return nil, err
	}

	hs, err := httpapi.NewServer(c.HTTPAddr, httpapi.OAuthConfig{
		ClientID:     c.ProviderClientID,
		ClientSecret: c.ProviderClientSecret,
		AuthURL:      c.ProviderAuthURL,
		TokenURL:     c.ProviderTokenURL,
		APIURL:       c.ProviderAPIURL,
		RedirectURL:  c.RedirectURL,
		Scopes:       c.ProviderScopes,
		Timeout:      c.ProviderTimeout,
	}, httpapi.Deps{Verifier: codec, Login: login, Metrics: m, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("http server init error: %w", err)
	}

	return &App{
		config:     c,
		logger:     logger,
		store:      store,
		httpServer: hs,
		grpcServer: gs.NewGRPCServer(c.GRPCAddr, logger, tokens, codec),
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves HTTP and gRPC until ctx is cancelled, a signal arrives or one
// of the servers fails; the other server is then stopped as well.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "store", app.config.StoreBackend, "locker", app.store.lockerName)

	app.initSignalHandler(cancelFunc)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.httpServer.Run(gctx) })
	g.Go(func() error { return app.grpcServer.Run(gctx) })

	err := g.Wait()
	if err != nil {
		app.logger.Error(ctx, "server stopped with error", "error", err)
	}

	if cerr := app.store.Close(); cerr != nil {
		app.logger.Error(ctx, "storage close error", "error", cerr)
		err = errors.Join(err, cerr)
	}

	app.logger.Info(ctx, "App stopped")
	if z, ok := app.logger.(*logging.ZapLogger); ok {
		_ = z.Sync()
	}
	return err
}
