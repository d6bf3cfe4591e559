// Package common defines shared constants and sentinel errors used across
// tokenkeeper packages. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Backend token errors. Verify collapses all of them to false; ClaimsOf
	// reports the specific kind.
	ErrTokenMalformed        = errors.New("token malformed")
	ErrTokenExpired          = errors.New("token expired")
	ErrTokenSignatureInvalid = errors.New("token signature invalid")

	// ErrMintFailed is returned when a backend token cannot be built from the given inputs.
	ErrMintFailed = errors.New("mint failed")
	// ErrWeakSecret is returned when the signing secret is shorter than 256 bits.
	ErrWeakSecret = errors.New("signing secret must be at least 32 bytes")

	// ErrRefreshFailed covers every failed provider refresh exchange:
	// rejected grant, missing access_token, transport error or timeout.
	ErrRefreshFailed = errors.New("provider token refresh failed")

	// Configuration errors.
	ErrInvalidConfig = errors.New("invalid configuration")
)
