// Package services contains the server's business logic: keeping provider
// credentials fresh (TokenService) and completing logins (LoginService).
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/locks"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/providertokens"
)

// DefaultFlightTimeout bounds one shared load-refresh-persist sequence,
// including the wait for a cross-instance lock.
const DefaultFlightTimeout = 30 * time.Second

// Refresher exchanges a refresh token at the provider. *ProviderClient
// satisfies it.
type Refresher interface {
	RefreshAccessToken(ctx context.Context, refreshToken string) (*RefreshResult, error)
}

// TokenService hands out provider access tokens that are valid right now,
// refreshing them at most once per provider user at a time.
type TokenService struct {
	repo     providertokens.Repository
	locker   locks.Locker
	provider Refresher
	logger   logging.Logger
	metrics  *metrics.Metrics

	now           func() time.Time
	flightTimeout time.Duration
	group         singleflight.Group
}

// TokenServiceOption customises a TokenService.
type TokenServiceOption func(*TokenService)

// WithTokenClock overrides time.Now for expiry checks.
func WithTokenClock(now func() time.Time) TokenServiceOption {
	return func(s *TokenService) { s.now = now }
}

// WithTokenMetrics records refresh outcomes and shared waits on m.
func WithTokenMetrics(m *metrics.Metrics) TokenServiceOption {
	return func(s *TokenService) { s.metrics = m }
}

// WithFlightTimeout bounds one shared refresh; the default is DefaultFlightTimeout.
func WithFlightTimeout(d time.Duration) TokenServiceOption {
	return func(s *TokenService) { s.flightTimeout = d }
}

// NewTokenService builds a TokenService over repo, serialising refreshes with locker.
func NewTokenService(repo providertokens.Repository, locker locks.Locker, provider Refresher, logger logging.Logger, opts ...TokenServiceOption) *TokenService {
	s := &TokenService{
		repo:          repo,
		locker:        locker,
		provider:      provider,
		logger:        logger.With("component", "tokens"),
		now:           time.Now,
		flightTimeout: DefaultFlightTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetFresh returns a record whose access token is not expired. It fails with
// common.ErrorNotFound when no login happened for providerUserID and with a
// *RefreshError when an expired token could not be exchanged.
//
// Concurrent callers for the same id share a single refresh; callers for
// different ids never wait on each other.
func (s *TokenService) GetFresh(ctx context.Context, providerUserID string) (*models.ProviderToken, error) {
	rec, err := s.repo.Get(ctx, providerUserID)
	if err != nil {
		return nil, fmt.Errorf("load provider token: %w", err)
	}
	if !rec.IsAccessTokenExpired(s.now()) {
		return rec, nil
	}

	// The flight outlives any single caller so that one cancelled request
	// cannot fail the others waiting on the same id.
	ch := s.group.DoChan(providerUserID, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.flightTimeout)
		defer cancel()
		return s.refreshLocked(fctx, providerUserID)
	})

	select {
	case res := <-ch:
		if res.Shared {
			s.metrics.IncSharedWait()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.ProviderToken).Clone(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// refreshLocked re-reads the record under the per-key lock, so a refresh
// completed meanwhile by another instance is reused instead of repeated.
func (s *TokenService) refreshLocked(ctx context.Context, providerUserID string) (*models.ProviderToken, error) {
	var out *models.ProviderToken

	err := s.locker.WithLock(ctx, providerUserID, func(ctx context.Context) error {
		rec, err := s.repo.Get(ctx, providerUserID)
		if err != nil {
			return fmt.Errorf("load provider token: %w", err)
		}
		if !rec.IsAccessTokenExpired(s.now()) {
			out = rec
			return nil
		}

		fresh, err := s.Refresh(ctx, rec)
		if err != nil {
			return err
		}

		if err := s.repo.Upsert(ctx, fresh); err != nil {
			s.logger.Error(ctx, "failed to persist refreshed provider token", "provider_user_id", providerUserID, "error", err)
			return fmt.Errorf("persist provider token: %w", err)
		}
		out = fresh
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Refresh exchanges rec's refresh token and returns an updated copy; rec and
// the store are left untouched. The refresh token is replaced only when the
// provider rotates it.
func (s *TokenService) Refresh(ctx context.Context, rec *models.ProviderToken) (*models.ProviderToken, error) {
	if !rec.HasRefreshToken() {
		return nil, &RefreshError{Reason: "record has no refresh token"}
	}

	start := time.Now()
	res, err := s.provider.RefreshAccessToken(ctx, *rec.RefreshToken)
	took := time.Since(start)
	if err != nil {
		s.metrics.ObserveRefresh(metrics.ResultFailed, took)

		var re *RefreshError
		if !errors.As(err, &re) {
			re = &RefreshError{Reason: "token request failed", Err: err}
		}
		s.logger.Warn(ctx, "provider token refresh failed",
			"provider_user_id", rec.ProviderUserID, "status", re.StatusCode, "reason", re.Reason, "took", took)
		return nil, re
	}
	s.metrics.ObserveRefresh(metrics.ResultOK, took)

	out := rec.Clone()
	out.AccessToken = res.AccessToken
	exp := s.now().Add(res.ExpiresIn)
	out.AccessTokenExpiresAt = &exp
	if res.RefreshToken != nil {
		rt := *res.RefreshToken
		out.RefreshToken = &rt
	}

	s.logger.Info(ctx, "provider token refreshed",
		"provider_user_id", rec.ProviderUserID, "expires_in", res.ExpiresIn, "rotated", res.RefreshToken != nil, "took", took)
	return out, nil
}

// Capture records the provider tokens obtained at login. The access token
// and expiry are always overwritten; the refresh token only when one is given.
// It runs under the same per-key lock as refresh.
func (s *TokenService) Capture(ctx context.Context, providerUserID, accessToken string, expiresAt *time.Time, refreshToken *string) error {
	return s.locker.WithLock(ctx, providerUserID, func(ctx context.Context) error {
		rec, err := s.repo.Get(ctx, providerUserID)
		switch {
		case errors.Is(err, common.ErrorNotFound):
			rec = &models.ProviderToken{ProviderUserID: providerUserID}
		case err != nil:
			return fmt.Errorf("load provider token: %w", err)
		}

		rec.AccessToken = accessToken
		rec.AccessTokenExpiresAt = nil
		if expiresAt != nil {
			exp := *expiresAt
			rec.AccessTokenExpiresAt = &exp
		}
		if refreshToken != nil {
			rt := *refreshToken
			rec.RefreshToken = &rt
		}

		if err := s.repo.Upsert(ctx, rec); err != nil {
			return fmt.Errorf("persist provider token: %w", err)
		}
		return nil
	})
}
