package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/metrics"
)

// HandshakeTokens are the provider credentials returned by the OAuth2 code exchange.
type HandshakeTokens struct {
	AccessToken  string
	ExpiresAt    *time.Time
	RefreshToken *string
}

// HandshakeResult is what a completed provider login hands over.
// Tokens is nil when the handshake yielded no usable token pair.
type HandshakeResult struct {
	ProviderUserID string
	DisplayName    string
	Tokens         *HandshakeTokens
}

// TokenMinter issues BackendTokens. *auth.Codec satisfies it.
type TokenMinter interface {
	Mint(subjectID, displayName string, ttl time.Duration) (string, error)
}

// CredentialCapturer stores provider credentials. *TokenService satisfies it.
type CredentialCapturer interface {
	Capture(ctx context.Context, providerUserID, accessToken string, expiresAt *time.Time, refreshToken *string) error
}

// LoginConfig holds LoginService settings.
type LoginConfig struct {
	BackendTokenTTL     time.Duration
	FrontendRedirectURL string
}

// LoginService turns a completed provider login into a BackendToken and a
// redirect to the frontend.
type LoginService struct {
	minter   TokenMinter
	capturer CredentialCapturer
	ttl      time.Duration
	redirect *url.URL
	logger   logging.Logger
	metrics  *metrics.Metrics
}

func NewLoginService(minter TokenMinter, capturer CredentialCapturer, cfg LoginConfig, logger logging.Logger, m *metrics.Metrics) (*LoginService, error) {
	u, err := url.Parse(cfg.FrontendRedirectURL)
	if err != nil || !u.IsAbs() {
		return nil, fmt.Errorf("%w: frontend redirect url %q", common.ErrInvalidConfig, cfg.FrontendRedirectURL)
	}
	return &LoginService{
		minter:   minter,
		capturer: capturer,
		ttl:      cfg.BackendTokenTTL,
		redirect: u,
		logger:   logger.With("component", "login"),
		metrics:  m,
	}, nil
}

// Complete mints a BackendToken for the provider user, captures the
// provider credentials and returns the frontend URL carrying the token.
//
// A mint failure aborts the login. Capture problems (missing tokens or a
// store error) are logged and do not prevent the login.
func (s *LoginService) Complete(ctx context.Context, hs HandshakeResult) (string, error) {
	token, err := s.minter.Mint(hs.ProviderUserID, hs.DisplayName, s.ttl)
	if err != nil {
		s.metrics.IncLogin(metrics.ResultFailed)
		if !errors.Is(err, common.ErrMintFailed) {
			err = fmt.Errorf("%w: %v", common.ErrMintFailed, err)
		}
		return "", err
	}

	s.capture(ctx, hs)

	u := *s.redirect
	q := u.Query()
	q.Set(common.RedirectTokenParam, token)
	u.RawQuery = q.Encode()

	s.metrics.IncLogin(metrics.ResultOK)
	s.logger.Info(ctx, "login completed", "provider_user_id", hs.ProviderUserID)
	return u.String(), nil
}

func (s *LoginService) capture(ctx context.Context, hs HandshakeResult) {
	if hs.Tokens == nil || hs.Tokens.AccessToken == "" {
		s.metrics.IncCaptureFailure()
		s.logger.Warn(ctx, "login handshake carried no provider tokens, skipping capture", "provider_user_id", hs.ProviderUserID)
		return
	}

	err := s.capturer.Capture(ctx, hs.ProviderUserID, hs.Tokens.AccessToken, hs.Tokens.ExpiresAt, hs.Tokens.RefreshToken)
	if err != nil {
		s.metrics.IncCaptureFailure()
		s.logger.Error(ctx, "failed to capture provider tokens", "provider_user_id", hs.ProviderUserID, "error", err)
		return
	}

	if hs.Tokens.ExpiresAt != nil {
		s.logger.Debug(ctx, "provider tokens captured", "provider_user_id", hs.ProviderUserID, "expires_at", hs.Tokens.ExpiresAt.UTC())
	}
}
