package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
)

const (
	// maxDiagnosticBody caps how much of a provider response is kept on errors.
	maxDiagnosticBody = 4 << 10
	maxResponseBody   = 1 << 20

	// maxExpiresIn is the largest expires_in that fits a time.Duration.
	maxExpiresIn = math.MaxInt64 / int64(time.Second)
)

// RefreshError describes a failed refresh exchange. It matches
// common.ErrRefreshFailed with errors.Is and keeps the raw provider reply.
type RefreshError struct {
	StatusCode int    // 0 when no response was received
	Body       string // raw response body, truncated
	Reason     string
	Err        error
}

func (e *RefreshError) Error() string {
	var b strings.Builder
	b.WriteString(common.ErrRefreshFailed.Error())
	b.WriteString(": ")
	b.WriteString(e.Reason)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *RefreshError) Unwrap() []error {
	if e.Err == nil {
		return []error{common.ErrRefreshFailed}
	}
	return []error{common.ErrRefreshFailed, e.Err}
}

// RefreshResult is a successful provider reply.
type RefreshResult struct {
	AccessToken  string
	ExpiresIn    time.Duration
	RefreshToken *string // nil when the provider did not rotate it
}

// ProviderConfig describes the provider token endpoint and client credentials.
type ProviderConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// ProviderClient exchanges refresh tokens at the provider token endpoint.
type ProviderClient struct {
	cfg        ProviderConfig
	httpClient *http.Client
}

// NewProviderClient builds a client. When httpClient is nil a new one is
// created; its Timeout is set to cfg.Timeout when unset.
func NewProviderClient(cfg ProviderConfig, httpClient *http.Client) *ProviderClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if httpClient.Timeout == 0 {
		httpClient.Timeout = cfg.Timeout
	}
	return &ProviderClient{cfg: cfg, httpClient: httpClient}
}

type refreshResponse struct {
	AccessToken  string  `json:"access_token"`
	ExpiresIn    *int64  `json:"expires_in"`
	RefreshToken *string `json:"refresh_token"`
}

// RefreshAccessToken posts grant_type=refresh_token with HTTP Basic client
// authentication. Every failure is a *RefreshError.
func (c *ProviderClient) RefreshAccessToken(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &RefreshError{Reason: "failed to create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		reason := "token request failed"
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			reason = "token request timed out"
		}
		return nil, &RefreshError{Reason: reason, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, &RefreshError{StatusCode: resp.StatusCode, Reason: "failed to read response", Err: err}
	}
	body := string(raw)
	if len(body) > maxDiagnosticBody {
		body = body[:maxDiagnosticBody]
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RefreshError{StatusCode: resp.StatusCode, Body: body, Reason: "provider rejected refresh"}
	}

	var tr refreshResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return nil, &RefreshError{StatusCode: resp.StatusCode, Body: body, Reason: "failed to decode token response", Err: err}
	}
	if tr.AccessToken == "" {
		return nil, &RefreshError{StatusCode: resp.StatusCode, Body: body, Reason: "response missing access_token"}
	}
	if tr.ExpiresIn == nil || *tr.ExpiresIn < 0 {
		return nil, &RefreshError{StatusCode: resp.StatusCode, Body: body, Reason: "response missing expires_in"}
	}
	if *tr.ExpiresIn > maxExpiresIn {
		return nil, &RefreshError{StatusCode: resp.StatusCode, Body: body, Reason: "response expires_in out of range"}
	}

	res := &RefreshResult{
		AccessToken: tr.AccessToken,
		ExpiresIn:   time.Duration(*tr.ExpiresIn) * time.Second,
	}
	if tr.RefreshToken != nil && *tr.RefreshToken != "" {
		res.RefreshToken = tr.RefreshToken
	}
	return res, nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
