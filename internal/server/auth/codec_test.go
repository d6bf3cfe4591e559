package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCodec(t *testing.T) (*Codec, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c, err := NewCodec(testSecret, WithClock(clock.Now))
	require.NoError(t, err)
	return c, clock
}

func TestNewCodec_RejectsShortSecret(t *testing.T) {
	t.Parallel()

	_, err := NewCodec([]byte("too-short"))
	if !errors.Is(err, common.ErrWeakSecret) {
		t.Fatalf("expected ErrWeakSecret, got %v", err)
	}
}

func TestMintAndVerify_Success(t *testing.T) {
	t.Parallel()
	c, _ := newTestCodec(t)

	tok, err := c.Mint("spX", "D", time.Hour)
	if err != nil {
		t.Fatalf("Mint error: %v", err)
	}
	if !c.Verify(tok) {
		t.Fatalf("freshly minted token must verify")
	}
	if got := c.SubjectOf(tok); got != "spX" {
		t.Fatalf("subject mismatch: got %q want %q", got, "spX")
	}

	claims, err := c.ClaimsOf(tok)
	require.NoError(t, err)
	assert.Equal(t, "spX", claims.UserID)
	assert.Equal(t, "D", claims.UserName)
	assert.Equal(t, int64(1_700_000_000), claims.IssuedAt.Unix())
	assert.Equal(t, int64(1_700_003_600), claims.ExpiresAt.Unix())
}

func TestMint_WireClaimNames(t *testing.T) {
	t.Parallel()
	c, _ := newTestCodec(t)

	tok, err := c.Mint("u1", "Name", time.Minute)
	require.NoError(t, err)

	mc := jwt.MapClaims{}
	_, _, err = jwt.NewParser().ParseUnverified(tok, mc)
	require.NoError(t, err)
	for _, k := range []string{"userId", "userName", "iat", "exp"} {
		assert.Contains(t, mc, k)
	}
	assert.Equal(t, "u1", mc["userId"])
}

func TestMint_EmptyInputs(t *testing.T) {
	t.Parallel()
	c, _ := newTestCodec(t)

	for _, in := range [][2]string{{"", "name"}, {"id", ""}, {" ", "name"}} {
		_, err := c.Mint(in[0], in[1], time.Hour)
		if !errors.Is(err, common.ErrMintFailed) {
			t.Fatalf("Mint(%q, %q): expected ErrMintFailed, got %v", in[0], in[1], err)
		}
	}
}

func TestVerify_ExpiresAfterTTL(t *testing.T) {
	t.Parallel()
	c, clock := newTestCodec(t)

	tok, err := c.Mint("u1", "n", 10*time.Second)
	require.NoError(t, err)

	clock.Advance(9 * time.Second)
	assert.True(t, c.Verify(tok))

	clock.Advance(time.Second)
	assert.False(t, c.Verify(tok), "now == exp is expired")

	_, err = c.ClaimsOf(tok)
	assert.ErrorIs(t, err, common.ErrTokenExpired)
	assert.Empty(t, c.SubjectOf(tok))
}

func TestVerify_FractionalClockKeepsFullTTL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		start time.Duration
		ttl   time.Duration
		after time.Duration
	}{
		{name: "sub-second ttl", start: 200 * time.Millisecond, ttl: 500 * time.Millisecond, after: 0},
		{name: "sub-second ttl near its end", start: 200 * time.Millisecond, ttl: 500 * time.Millisecond, after: 499 * time.Millisecond},
		{name: "fractional ttl crossing a second", start: 900 * time.Millisecond, ttl: 1500 * time.Millisecond, after: 1100 * time.Millisecond},
		{name: "whole ttl on fractional clock", start: 300 * time.Millisecond, ttl: 10 * time.Second, after: 9900 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fakeClock{t: time.Unix(1_700_000_000, 0).Add(tt.start)}
			c, err := NewCodec(testSecret, WithClock(clock.Now))
			require.NoError(t, err)

			tok, err := c.Mint("u", "n", tt.ttl)
			require.NoError(t, err)

			clock.Advance(tt.after)
			assert.True(t, c.Verify(tok))
			assert.Equal(t, "u", c.SubjectOf(tok))
		})
	}
}

func TestMint_ExpiryRoundsUpToWholeSecond(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{t: time.Unix(1_700_000_000, 200_000_000)}
	c, err := NewCodec(testSecret, WithClock(clock.Now))
	require.NoError(t, err)

	tok, err := c.Mint("u", "n", 500*time.Millisecond)
	require.NoError(t, err)

	claims, err := c.ClaimsOf(tok)
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_001), claims.ExpiresAt.Unix())

	clock.Advance(800 * time.Millisecond)
	assert.False(t, c.Verify(tok))
}

func TestClaimsOf_WrongSecretIsSignatureKind(t *testing.T) {
	t.Parallel()
	c, _ := newTestCodec(t)

	other, err := NewCodec([]byte("ffffffffffffffffffffffffffffffff"))
	require.NoError(t, err)
	tok, err := other.Mint("u2", "n", time.Hour)
	require.NoError(t, err)

	_, err = c.ClaimsOf(tok)
	assert.ErrorIs(t, err, common.ErrTokenSignatureInvalid)
	assert.False(t, c.Verify(tok))
}

func TestClaimsOf_TamperedSignatureIsSignatureKind(t *testing.T) {
	t.Parallel()
	c, _ := newTestCodec(t)

	tok, err := c.Mint("u1", "n", time.Hour)
	require.NoError(t, err)

	dot := strings.LastIndex(tok, ".")
	for i := dot + 1; i < len(tok); i++ {
		for _, repl := range []byte{flip(tok[i]), '!'} {
			b := []byte(tok)
			b[i] = repl
			tampered := string(b)

			if c.Verify(tampered) {
				t.Fatalf("tampered token verified (pos %d, %q)", i, repl)
			}
			_, err := c.ClaimsOf(tampered)
			if !errors.Is(err, common.ErrTokenSignatureInvalid) {
				t.Fatalf("pos %d, %q: expected signature-kind error, got %v", i, repl, err)
			}
			if errors.Is(err, common.ErrTokenMalformed) {
				t.Fatalf("pos %d: must not be malformed-kind", i)
			}
		}
	}
}

func flip(b byte) byte {
	if b == 'A' {
		return 'B'
	}
	return 'A'
}

func TestClaimsOf_WrongAlgorithm(t *testing.T) {
	t.Parallel()
	c, _ := newTestCodec(t)

	claims := Claims{
		UserID:   "u1",
		UserName: "n",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Unix(1_800_000_000, 0)),
		},
	}

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = c.ClaimsOf(none)
	assert.ErrorIs(t, err, common.ErrTokenSignatureInvalid)

	hs384, err := jwt.NewWithClaims(jwt.SigningMethodHS384, claims).SignedString(testSecret)
	require.NoError(t, err)
	_, err = c.ClaimsOf(hs384)
	assert.ErrorIs(t, err, common.ErrTokenSignatureInvalid)
}

func TestClaimsOf_Malformed(t *testing.T) {
	t.Parallel()
	c, _ := newTestCodec(t)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: "u1", UserName: "n"}).SignedString(testSecret)
	require.NoError(t, err)

	noUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserName:         "n",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Unix(1_800_000_000, 0))},
	}).SignedString(testSecret)
	require.NoError(t, err)

	valid, err := c.Mint("u1", "n", time.Hour)
	require.NoError(t, err)
	parts := strings.Split(valid, ".")

	tests := map[string]string{
		"empty":          "",
		"garbage":        "not-a-jwt",
		"two segments":   parts[0] + "." + parts[1],
		"broken header":  "!!!." + parts[1] + "." + parts[2],
		"broken payload": parts[0] + ".e30x!." + parts[2],
		"missing exp":    noExp,
		"missing userId": noUser,
	}

	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := c.ClaimsOf(tok)
			assert.ErrorIs(t, err, common.ErrTokenMalformed)
			assert.False(t, c.Verify(tok))
		})
	}
}

func TestVerify_AgreesWithClaimsOf(t *testing.T) {
	t.Parallel()
	c, clock := newTestCodec(t)

	fresh, _ := c.Mint("a", "A", time.Hour)
	short, _ := c.Mint("b", "B", time.Second)
	clock.Advance(2 * time.Second)

	for _, tok := range []string{fresh, short, "x.y.z", fresh + "x", ""} {
		claims, err := c.ClaimsOf(tok)
		want := err == nil && clock.Now().Before(claims.ExpiresAt.Time)
		assert.Equal(t, want, c.Verify(tok), "token %q", tok)
	}
}
