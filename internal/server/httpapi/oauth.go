package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"golang.org/x/oauth2"

	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/services"
)

const (
	stateTTL        = 10 * time.Minute
	maxProfileBytes = 64 << 10
)

// LoginCompleter finishes a provider login. *services.LoginService satisfies it.
type LoginCompleter interface {
	Complete(ctx context.Context, hs services.HandshakeResult) (string, error)
}

// OAuthConfig describes the provider's authorization-code endpoints.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	APIURL       string
	RedirectURL  string
	Scopes       []string
	Timeout      time.Duration

	// HTTPClient is used for the code exchange and profile lookup. Optional.
	HTTPClient *http.Client
}

type providerProfile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type oauthHandler struct {
	conf   *oauth2.Config
	apiURL string
	client *http.Client
	states *cache.Cache
	login  LoginCompleter
	logger logging.Logger
}

func newOAuthHandler(cfg OAuthConfig, login LoginCompleter, logger logging.Logger) (*oauthHandler, error) {
	if cfg.AuthURL == "" || cfg.TokenURL == "" || cfg.APIURL == "" {
		return nil, errors.New("httpapi: provider auth, token and api urls are required")
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &oauthHandler{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		apiURL: strings.TrimRight(cfg.APIURL, "/"),
		client: client,
		states: cache.New(stateTTL, 2*stateTTL),
		login:  login,
		logger: logger.With("component", "oauth"),
	}, nil
}

// start redirects the browser to the provider's consent page.
func (h *oauthHandler) start(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	h.states.Set(state, struct{}{}, cache.DefaultExpiration)
	http.Redirect(w, r, h.conf.AuthCodeURL(state), http.StatusFound)
}

// callback completes the authorization-code flow and hands the result to the
// login service.
func (h *oauthHandler) callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	if e := q.Get("error"); e != "" {
		h.logger.Warn(ctx, "provider denied authorization", "error", e)
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authorization denied"})
		return
	}

	state := q.Get("state")
	if _, ok := h.states.Get(state); state == "" || !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid state"})
		return
	}
	h.states.Delete(state)

	code := q.Get("code")
	if code == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing code"})
		return
	}

	octx := context.WithValue(ctx, oauth2.HTTPClient, h.client)
	tok, err := h.conf.Exchange(octx, code)
	if err != nil {
		h.logger.Error(ctx, "authorization code exchange failed", "error", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "code exchange failed"})
		return
	}

	profile, err := h.fetchProfile(ctx, tok.AccessToken)
	if err != nil {
		h.logger.Error(ctx, "provider profile lookup failed", "error", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "profile lookup failed"})
		return
	}

	redirect, err := h.login.Complete(ctx, services.HandshakeResult{
		ProviderUserID: profile.ID,
		DisplayName:    profile.DisplayName,
		Tokens:         handshakeTokens(tok),
	})
	if err != nil {
		h.logger.Error(ctx, "login completion failed", "provider_user_id", profile.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "login failed"})
		return
	}

	http.Redirect(w, r, redirect, http.StatusFound)
}

func (h *oauthHandler) fetchProfile(ctx context.Context, accessToken string) (*providerProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.apiURL+"/me", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("profile endpoint returned %d", resp.StatusCode)
	}

	var p providerProfile
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	if p.ID == "" {
		return nil, errors.New("profile has no id")
	}
	// Providers allow users without a display name.
	if p.DisplayName == "" {
		p.DisplayName = p.ID
	}
	return &p, nil
}

func handshakeTokens(tok *oauth2.Token) *services.HandshakeTokens {
	if tok == nil || tok.AccessToken == "" {
		return nil
	}
	ht := &services.HandshakeTokens{AccessToken: tok.AccessToken}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry
		ht.ExpiresAt = &exp
	}
	if tok.RefreshToken != "" {
		rt := tok.RefreshToken
		ht.RefreshToken = &rt
	}
	return ht
}
