package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
)

// Verifier is the subset of Codec the filters need.
type Verifier interface {
	Verify(token string) bool
	SubjectOf(token string) string
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// value. The scheme is matched case-insensitively.
func BearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, common.BearerScheme) {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

// Authenticate resolves the Identity for an Authorization header value.
// Any problem yields ok == false; it never fails loudly.
func Authenticate(v Verifier, header string) (Identity, bool) {
	token, ok := BearerToken(header)
	if !ok || !v.Verify(token) {
		return Identity{}, false
	}
	sub := v.SubjectOf(token)
	if sub == "" {
		return Identity{}, false
	}
	return Identity{SubjectID: sub}, true
}

// Middleware attaches an Identity to the request context when the request
// carries a valid BackendToken. Requests without one proceed anonymously;
// the middleware itself never writes a response.
func Middleware(v Verifier, logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			id, ok := Authenticate(v, header)
			if !ok {
				logger.Debug(r.Context(), "bearer token rejected, continuing anonymously", "path", r.URL.Path)
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// Subject is a shorthand for handlers: the current subject id or "".
func Subject(ctx context.Context) string {
	id, _ := IdentityFrom(ctx)
	return id.SubjectID
}
