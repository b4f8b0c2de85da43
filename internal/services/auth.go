package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	errs "github.com/yungbote/karibu-backend/internal/pkg/errors"
	"github.com/yungbote/karibu-backend/internal/platform/ctxutil"
	"github.com/yungbote/karibu-backend/internal/platform/logger"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// JWTClaims is the access token payload issued by the identity service.
type JWTClaims struct {
	Role           string `json:"role"`
	OrganizationID string `json:"organizationId"`
	jwt.RegisteredClaims
}

type TokenVerifier struct {
	log      *logger.Logger
	secret   []byte
	audience string
}

func NewTokenVerifier(log *logger.Logger, secret, audience string) (*TokenVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("jwt secret required")
	}
	return &TokenVerifier{
		log:      log.With("service", "TokenVerifier"),
		secret:   []byte(secret),
		audience: strings.TrimSpace(audience),
	}, nil
}

// Verify checks signature, expiry and audience and returns the caller.
// Every failure wraps errors.ErrUnauthorized.
func (v *TokenVerifier) Verify(ctx context.Context, tokenString string) (*ctxutil.Principal, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, fmt.Errorf("%w: missing token", errs.ErrUnauthorized)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	claims := &JWTClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		v.log.WithContext(ctx).Debug("Token rejected", "error", err)
		return nil, fmt.Errorf("%w: %v", errs.ErrUnauthorized, err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("%w: invalid token", errs.ErrUnauthorized)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid subject", errs.ErrUnauthorized)
	}
	orgID, err := uuid.Parse(claims.OrganizationID)
	if err != nil || orgID == uuid.Nil {
		return nil, fmt.Errorf("%w: invalid organization", errs.ErrUnauthorized)
	}
	switch claims.Role {
	case RoleAdmin, RoleUser:
	default:
		return nil, fmt.Errorf("%w: invalid role %q", errs.ErrUnauthorized, claims.Role)
	}
	return &ctxutil.Principal{
		UserID:         userID,
		OrganizationID: orgID,
		Role:           claims.Role,
		SessionID:      claims.ID,
	}, nil
}

// Sign issues a token for p. Used by the CLI and tests.
func (v *TokenVerifier) Sign(p ctxutil.Principal, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errors.New("ttl must be positive")
	}
	now := time.Now()
	sessionID := p.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	claims := JWTClaims{
		Role:           p.Role,
		OrganizationID: p.OrganizationID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID.String(),
			ID:        sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
