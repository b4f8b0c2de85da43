package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/karibu-backend/internal/http/response"
	"github.com/yungbote/karibu-backend/internal/platform/ctxutil"
	"github.com/yungbote/karibu-backend/internal/platform/logger"
)

type stubVerifier map[string]*ctxutil.Principal

func (s stubVerifier) Verify(ctx context.Context, token string) (*ctxutil.Principal, error) {
	if p, ok := s[token]; ok {
		return p, nil
	}
	return nil, errors.New("bad token")
}

func newAuthRouter(t *testing.T) (*gin.Engine, *ctxutil.Principal) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	admin := &ctxutil.Principal{UserID: uuid.New(), OrganizationID: uuid.New(), Role: "admin"}
	user := &ctxutil.Principal{UserID: uuid.New(), OrganizationID: uuid.New(), Role: "user"}
	am := NewAuthMiddleware(logger.Nop(), stubVerifier{"admin-token": admin, "user-token": user})

	r := gin.New()
	g := r.Group("/api", am.RequireAuth(), am.RequireRole("admin"))
	g.GET("/whoami", func(c *gin.Context) {
		p := ctxutil.GetPrincipal(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"organization_id": p.OrganizationID.String()})
	})
	return r, admin
}

func doAuth(r *gin.Engine, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/whoami", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRequireAuthAndRole(t *testing.T) {
	r, admin := newAuthRouter(t)

	cases := []struct {
		name   string
		header string
		status int
		code   string
	}{
		{"missing header", "", http.StatusUnauthorized, "unauthorized"},
		{"not bearer", "Basic abc", http.StatusUnauthorized, "unauthorized"},
		{"invalid token", "Bearer nope", http.StatusUnauthorized, "unauthorized"},
		{"non admin", "Bearer user-token", http.StatusForbidden, "forbidden"},
		{"admin", "bearer admin-token", http.StatusOK, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doAuth(r, tc.header)
			require.Equal(t, tc.status, rec.Code)
			if tc.code == "" {
				var body map[string]string
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, admin.OrganizationID.String(), body["organization_id"])
				return
			}
			var env response.ErrorEnvelope
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
			assert.Equal(t, tc.code, env.Error.Code)
			assert.NotEmpty(t, env.Error.Message)
		})
	}
}
