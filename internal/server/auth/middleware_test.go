package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{header: "Bearer abc", want: "abc", ok: true},
		{header: "bearer abc", want: "abc", ok: true},
		{header: "BEARER   abc  ", want: "abc", ok: true},
		{header: "Basic abc"},
		{header: "Bearer"},
		{header: "Bearer "},
		{header: "abc"},
		{header: ""},
	}

	for _, tt := range tests {
		got, ok := BearerToken(tt.header)
		assert.Equal(t, tt.ok, ok, "header %q", tt.header)
		assert.Equal(t, tt.want, got, "header %q", tt.header)
	}
}

func TestMiddleware(t *testing.T) {
	c, clock := newTestCodec(t)

	valid, err := c.Mint("spX", "D", time.Minute)
	require.NoError(t, err)
	expiring, err := c.Mint("spY", "D", time.Second)
	require.NoError(t, err)
	clock.Advance(2 * time.Second)

	tests := []struct {
		name    string
		header  string
		wantSub string
	}{
		{name: "no header"},
		{name: "wrong scheme", header: "Token " + valid},
		{name: "garbage token", header: "Bearer nope"},
		{name: "expired token", header: "Bearer " + expiring},
		{name: "valid token", header: "Bearer " + valid, wantSub: "spX"},
		{name: "lowercase scheme", header: "bearer " + valid, wantSub: "spX"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				called bool
				gotID  Identity
				gotOK  bool
			)
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				gotID, gotOK = IdentityFrom(r.Context())
				w.WriteHeader(http.StatusTeapot)
			})

			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			Middleware(c, logging.Nop())(next).ServeHTTP(rec, req)

			require.True(t, called, "next handler must always run")
			assert.Equal(t, http.StatusTeapot, rec.Code, "filter never writes a response")
			if tt.wantSub == "" {
				assert.False(t, gotOK)
				return
			}
			assert.True(t, gotOK)
			assert.Equal(t, tt.wantSub, gotID.SubjectID)
		})
	}
}

func TestIdentityFrom_EmptyContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := IdentityFrom(req.Context())
	assert.False(t, ok)
	assert.Empty(t, Subject(req.Context()))

	ctx := WithIdentity(req.Context(), Identity{SubjectID: "u1"})
	assert.Equal(t, "u1", Subject(ctx))
}
