package models

import "time"

// ProviderToken is the persisted provider credential pair for one provider user.
// A nil AccessTokenExpiresAt means the access token never expires; a nil
// RefreshToken means the provider never issued one.
type ProviderToken struct {
	ProviderUserID       string     `json:"provider_user_id"`
	AccessToken          string     `json:"access_token"`
	AccessTokenExpiresAt *time.Time `json:"access_token_expires_at,omitempty"`
	RefreshToken         *string    `json:"refresh_token,omitempty"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// IsAccessTokenExpired reports whether the access token expired before now.
func (t *ProviderToken) IsAccessTokenExpired(now time.Time) bool {
	return t.AccessTokenExpiresAt != nil && t.AccessTokenExpiresAt.Before(now)
}

// HasRefreshToken reports whether a non-empty refresh token is present.
func (t *ProviderToken) HasRefreshToken() bool {
	return t.RefreshToken != nil && *t.RefreshToken != ""
}

// Clone returns a deep copy.
func (t *ProviderToken) Clone() *ProviderToken {
	if t == nil {
		return nil
	}
	c := *t
	if t.AccessTokenExpiresAt != nil {
		exp := *t.AccessTokenExpiresAt
		c.AccessTokenExpiresAt = &exp
	}
	if t.RefreshToken != nil {
		rt := *t.RefreshToken
		c.RefreshToken = &rt
	}
	return &c
}
