// Package auth mints and verifies BackendTokens and attaches the resulting
// Identity to inbound requests.
package auth

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
)

// MinSecretLength is the minimum HMAC key size in bytes.
const MinSecretLength = 32

// Claims are the BackendToken payload: userId, userName, iat and exp.
type Claims struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	jwt.RegisteredClaims
}

// Codec is a stateless HS256 signer/verifier bound to one secret.
type Codec struct {
	secret []byte
	now    func() time.Time
	parser *jwt.Parser
}

// CodecOption customises a Codec.
type CodecOption func(*Codec)

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) {
		c.now = now
	}
}

// NewCodec returns a Codec signing with secret, which must be at least
// MinSecretLength bytes.
func NewCodec(secret []byte, opts ...CodecOption) (*Codec, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: got %d bytes, need %d", common.ErrWeakSecret, len(secret), MinSecretLength)
	}

	c := &Codec{
		secret: append([]byte(nil), secret...),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(c.now),
	)
	return c, nil
}

// Mint signs a BackendToken for subjectID valid for ttl from now.
func (c *Codec) Mint(subjectID, displayName string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(subjectID) == "" {
		return "", fmt.Errorf("%w: empty subject id", common.ErrMintFailed)
	}
	if strings.TrimSpace(displayName) == "" {
		return "", fmt.Errorf("%w: empty display name", common.ErrMintFailed)
	}

	now := c.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:   subjectID,
		UserName: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiryAt(now, ttl)),
		},
	})

	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrMintFailed, err)
	}
	return signed, nil
}

// expiryAt returns now+ttl rounded up to a whole second. NumericDate drops
// fractions, so truncating would end the token before ttl has elapsed.
func expiryAt(now time.Time, ttl time.Duration) time.Time {
	exp := now.Add(ttl)
	if whole := exp.Truncate(time.Second); !whole.Equal(exp) {
		return whole.Add(time.Second)
	}
	return exp
}

// Verify reports whether the signature matches and the token has not expired.
func (c *Codec) Verify(token string) bool {
	_, err := c.ClaimsOf(token)
	return err == nil
}

// SubjectOf returns the userId claim of a token that passed Verify.
// It returns "" for any token that does not.
func (c *Codec) SubjectOf(token string) string {
	claims, err := c.ClaimsOf(token)
	if err != nil {
		return ""
	}
	return claims.UserID
}

// ClaimsOf parses and validates token. Failures are one of
// common.ErrTokenMalformed, common.ErrTokenSignatureInvalid or
// common.ErrTokenExpired, wrapped with the underlying cause.
func (c *Codec) ClaimsOf(token string) (*Claims, error) {
	claims := &Claims{}

	_, err := c.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		return nil, classify(token, err)
	}

	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing userId claim", common.ErrTokenMalformed)
	}
	return claims, nil
}

func classify(token string, err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", common.ErrTokenSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", common.ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenMalformed) && headerAndPayloadDecode(token):
		// Only the signature segment is broken (e.g. not valid base64).
		return fmt.Errorf("%w: %v", common.ErrTokenSignatureInvalid, err)
	default:
		return fmt.Errorf("%w: %v", common.ErrTokenMalformed, err)
	}
}

func headerAndPayloadDecode(token string) bool {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return false
	}
	for _, seg := range parts[:2] {
		raw, err := base64.RawURLEncoding.DecodeString(seg)
		if err != nil {
			return false
		}
		var v map[string]any
		if err := json.Unmarshal(raw, &v); err != nil {
			return false
		}
	}
	return true
}
