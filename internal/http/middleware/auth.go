package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/karibu-backend/internal/http/response"
	"github.com/yungbote/karibu-backend/internal/platform/ctxutil"
	"github.com/yungbote/karibu-backend/internal/platform/logger"
)

type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*ctxutil.Principal, error)
}

type AuthMiddleware struct {
	log      *logger.Logger
	verifier TokenVerifier
}

func NewAuthMiddleware(log *logger.Logger, verifier TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{log: log.With("middleware", "AuthMiddleware"), verifier: verifier}
}

// RequireAuth verifies the bearer token and attaches the caller to the
// request context.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			abortUnauthorized(c)
			return
		}
		ctx := c.Request.Context()
		p, err := am.verifier.Verify(ctx, token)
		if err != nil || p == nil {
			am.log.WithContext(ctx).Debug("Rejected bearer token", "error", err)
			abortUnauthorized(c)
			return
		}
		c.Request = c.Request.WithContext(ctxutil.WithPrincipal(ctx, p))
		c.Next()
	}
}

// RequireRole must run after RequireAuth.
func (am *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := ctxutil.GetPrincipal(c.Request.Context())
		if p == nil {
			abortUnauthorized(c)
			return
		}
		for _, r := range roles {
			if p.Role == r {
				c.Next()
				return
			}
		}
		response.RespondError(c, http.StatusForbidden, "forbidden", errForbidden)
		c.Abort()
	}
}

type authError string

func (e authError) Error() string { return string(e) }

const (
	errUnauthorized = authError("Authentication required.")
	errForbidden    = authError("Admin access required.")
)

func abortUnauthorized(c *gin.Context) {
	response.RespondError(c, http.StatusUnauthorized, "unauthorized", errUnauthorized)
	c.Abort()
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}
