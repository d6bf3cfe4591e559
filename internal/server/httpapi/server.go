// Package httpapi exposes the HTTP surface: the OAuth2 login routes, a
// minimal identity endpoint and the Prometheus scrape endpoint.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/auth"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/metrics"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Route paths.
const (
	RouteRoot          = "/"
	RouteMe            = "/api/me"
	RouteMetrics       = "/metrics"
	RouteAuthorization = "/oauth2/authorization/provider"
	RouteCallback      = "/login/oauth2/code/provider"
)

// Deps are the collaborators the HTTP surface calls into.
type Deps struct {
	Verifier auth.Verifier
	Login    LoginCompleter
	Metrics  *metrics.Metrics
	Logger   logging.Logger
}

type Server struct {
	address string
	handler http.Handler
	logger  logging.Logger
}

func NewServer(address string, oauth OAuthConfig, deps Deps) (*Server, error) {
	if deps.Verifier == nil || deps.Login == nil {
		return nil, errors.New("httpapi: verifier and login completer are required")
	}
	logger := deps.Logger.With("module", "http_server")

	oh, err := newOAuthHandler(oauth, deps.Login, logger)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		requestLogger(logger, deps.Metrics),
		auth.Middleware(deps.Verifier, logger),
	)

	r.Get(RouteRoot, handleRoot)
	r.Get(RouteMe, handleMe)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, RouteMetrics, deps.Metrics.Handler())
	}
	r.Get(RouteAuthorization, oh.start)
	r.Get(RouteCallback, oh.callback)

	return &Server{address: address, handler: r, logger: logger}, nil
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	return s.Serve(ctx, listen)
}

func (s *Server) Serve(ctx context.Context, listen net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	stopped := make(chan error, 1)
	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		stopped <- srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return <-stopped
}
