package session

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var signingKey = []byte("test-signing-key-0123456789abcdef")

func mintToken(t *testing.T, key []byte, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	require.NoError(t, err)
	return tok
}

func tokenFor(t *testing.T, sub string, role Role) string {
	t.Helper()
	return mintToken(t, signingKey, jwt.MapClaims{
		"sub":  sub,
		"role": string(role),
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
}

func TestDecodeValidToken(t *testing.T) {
	for _, role := range []Role{RoleUser, RoleAdmin, RoleSuperAdmin} {
		t.Run(string(role), func(t *testing.T) {
			claims, err := NewDeriver().Decode(tokenFor(t, "alice", role))
			require.NoError(t, err)
			assert.Equal(t, "alice", claims.Subject)
			assert.Equal(t, role, claims.Role)
			assert.False(t, claims.ExpiresAt.IsZero())
		})
	}
}

func TestDecodeWithoutExpiry(t *testing.T) {
	tok := mintToken(t, signingKey, jwt.MapClaims{"sub": "bob", "role": "user"})
	claims, err := NewDeriver().Decode(tok)
	require.NoError(t, err)
	assert.True(t, claims.ExpiresAt.IsZero())
}

func TestDecodeFailures(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name   string
		token  string
		reason error
	}{
		{"Empty", "", ErrMalformedToken},
		{"Garbage", "not-a-token", ErrMalformedToken},
		{"BadBase64", "a.b.c", ErrMalformedToken},
		{"Expired", mintToken(t, signingKey, jwt.MapClaims{
			"sub": "alice", "role": "user", "exp": now.Add(-time.Hour).Unix(),
		}), ErrTokenExpired},
		{"MissingSubject", mintToken(t, signingKey, jwt.MapClaims{"role": "user"}), ErrMissingSubject},
		{"MissingRole", mintToken(t, signingKey, jwt.MapClaims{"sub": "alice"}), ErrInvalidRole},
		{"UnknownRole", mintToken(t, signingKey, jwt.MapClaims{"sub": "alice", "role": "root"}), ErrInvalidRole},
		{"RoleWrongCase", mintToken(t, signingKey, jwt.MapClaims{"sub": "alice", "role": "Admin"}), ErrInvalidRole},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			claims, err := NewDeriver().Decode(tc.token)
			require.Error(t, err)
			var de *DecodeError
			require.ErrorAs(t, err, &de)
			assert.ErrorIs(t, err, tc.reason)
			assert.Equal(t, Claims{}, claims)
		})
	}
}

func TestDecodeVerifiesSignatureWhenKeyed(t *testing.T) {
	d := NewDeriver(WithVerificationKey(signingKey))

	_, err := d.Decode(tokenFor(t, "alice", RoleAdmin))
	require.NoError(t, err)

	forged := mintToken(t, []byte("some-other-key"), jwt.MapClaims{"sub": "alice", "role": "admin"})
	_, err = d.Decode(forged)
	assert.ErrorIs(t, err, ErrBadSignature)

	// Unkeyed derivers read the same token unverified.
	_, err = NewDeriver().Decode(forged)
	assert.NoError(t, err)
}

func TestDecodeUsesClockAndLeeway(t *testing.T) {
	exp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tok := mintToken(t, signingKey, jwt.MapClaims{"sub": "alice", "role": "user", "exp": exp.Unix()})
	after := func() time.Time { return exp.Add(30 * time.Second) }

	_, err := NewDeriver(WithClock(after)).Decode(tok)
	assert.ErrorIs(t, err, ErrTokenExpired)

	_, err = NewDeriver(WithClock(after), WithLeeway(time.Minute)).Decode(tok)
	assert.NoError(t, err)
}

func TestNilDeriverDecodes(t *testing.T) {
	var d *Deriver
	_, err := d.Decode(tokenFor(t, "alice", RoleUser))
	assert.NoError(t, err)
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("super_admin")
	require.NoError(t, err)
	assert.Equal(t, RoleSuperAdmin, r)
	assert.True(t, r.Elevated())
	assert.True(t, RoleAdmin.Elevated())
	assert.False(t, RoleUser.Elevated())

	_, err = ParseRole("")
	assert.ErrorIs(t, err, ErrInvalidRole)
	_, err = ParseRole("guest")
	assert.ErrorIs(t, err, ErrInvalidRole)
}
