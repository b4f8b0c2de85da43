package services

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/yungbote/karibu-backend/internal/pkg/errors"
	"github.com/yungbote/karibu-backend/internal/platform/ctxutil"
	"github.com/yungbote/karibu-backend/internal/platform/logger"
)

func newVerifier(t *testing.T, audience string) *TokenVerifier {
	t.Helper()
	v, err := NewTokenVerifier(logger.Nop(), "test-secret", audience)
	require.NoError(t, err)
	return v
}

func TestTokenVerifierRoundTrip(t *testing.T) {
	v := newVerifier(t, "karibu")
	want := ctxutil.Principal{
		UserID:         uuid.New(),
		OrganizationID: uuid.New(),
		Role:           RoleAdmin,
		SessionID:      "session-1",
	}
	token, err := v.Sign(want, time.Minute)
	require.NoError(t, err)

	got, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, want, *got)
}

func TestTokenVerifierRejects(t *testing.T) {
	v := newVerifier(t, "karibu")
	good := ctxutil.Principal{UserID: uuid.New(), OrganizationID: uuid.New(), Role: RoleUser}

	signWith := func(method jwt.SigningMethod, key interface{}, claims JWTClaims) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	baseClaims := func() JWTClaims {
		now := time.Now()
		return JWTClaims{
			Role:           RoleAdmin,
			OrganizationID: uuid.NewString(),
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   uuid.NewString(),
				Audience:  jwt.ClaimStrings{"karibu"},
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
			},
		}
	}

	other := newVerifier(t, "elsewhere")
	foreignAudience, err := other.Sign(good, time.Minute)
	require.NoError(t, err)

	expired := baseClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	noExpiry := baseClaims()
	noExpiry.ExpiresAt = nil

	badRole := baseClaims()
	badRole.Role = "owner"

	noOrg := baseClaims()
	noOrg.OrganizationID = ""

	cases := map[string]string{
		"empty":           "",
		"garbage":         "not-a-jwt",
		"wrong secret":    signWith(jwt.SigningMethodHS256, []byte("other-secret"), baseClaims()),
		"wrong algorithm": signWith(jwt.SigningMethodHS512, []byte("test-secret"), baseClaims()),
		"wrong audience":  foreignAudience,
		"expired":         signWith(jwt.SigningMethodHS256, []byte("test-secret"), expired),
		"missing expiry":  signWith(jwt.SigningMethodHS256, []byte("test-secret"), noExpiry),
		"unknown role":    signWith(jwt.SigningMethodHS256, []byte("test-secret"), badRole),
		"missing org":     signWith(jwt.SigningMethodHS256, []byte("test-secret"), noOrg),
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			p, err := v.Verify(context.Background(), token)
			assert.Nil(t, p)
			assert.ErrorIs(t, err, errs.ErrUnauthorized)
		})
	}
}

func TestTokenVerifierWithoutAudienceAcceptsAny(t *testing.T) {
	signer := newVerifier(t, "some-audience")
	token, err := signer.Sign(ctxutil.Principal{UserID: uuid.New(), OrganizationID: uuid.New(), Role: RoleAdmin}, time.Minute)
	require.NoError(t, err)

	_, err = newVerifier(t, "").Verify(context.Background(), token)
	assert.NoError(t, err)
}

func TestNewTokenVerifierRequiresSecret(t *testing.T) {
	_, err := NewTokenVerifier(logger.Nop(), "  ", "")
	assert.Error(t, err)
}
