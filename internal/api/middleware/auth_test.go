package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdesk/opsdesk/config"
	"github.com/opsdesk/opsdesk/internal/core/auth"
	"github.com/opsdesk/opsdesk/internal/storage/memory"
)

func setupAuth(t *testing.T) (*auth.Service, string) {
	t.Helper()
	svc := auth.NewService(auth.NewRepository(memory.NewStore()), &config.JWTConfig{
		Secret:          "test-secret-1234567890",
		ExpirationHours: 1,
	})
	resp, err := svc.Register(context.Background(), &auth.RegisterRequest{
		Email:    "ana@example.com",
		Password: "long-enough-password",
		Name:     "Ana",
	})
	require.NoError(t, err)
	return svc, resp.Token
}

func protectedRouter(svc *auth.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(NewAuthMiddleware(svc).Authenticate())
	r.GET("/protected", func(c *gin.Context) {
		id, ok := GetUserID(c)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "no user in context"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": id})
	})
	return r
}

func TestAuthenticateAcceptsValidToken(t *testing.T) {
	svc, token := setupAuth(t)
	r := protectedRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "user_id")
}

func TestAuthenticateRejectsMissingHeader(t *testing.T) {
	svc, _ := setupAuth(t)
	r := protectedRouter(svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthenticateRejectsMalformedHeader(t *testing.T) {
	svc, token := setupAuth(t)
	r := protectedRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Token "+token)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthenticateRejectsGarbageToken(t *testing.T) {
	svc, _ := setupAuth(t)
	r := protectedRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
