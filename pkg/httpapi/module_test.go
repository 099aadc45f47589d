package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"offerwall/pkg/config"
	"offerwall/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
	gin.SetMode(gin.TestMode)
}

func TestNewRouterRefusesWeakSecret(t *testing.T) {
	for name, secret := range map[string]string{
		"empty": "",
		"short": "changeme",
	} {
		t.Run(name, func(t *testing.T) {
			cfg := &config.Config{}
			cfg.Auth.JWTSecret = secret

			r, err := NewRouter(cfg, NewEngine(cfg))
			require.ErrorIs(t, err, middleware.ErrWeakSecret)
			require.Nil(t, r)
		})
	}
}

func TestNewRouterPrivateRequiresToken(t *testing.T) {
	cfg := &config.Config{}
	cfg.Auth.JWTSecret = "router-secret-0123456789abcdefghij"
	cfg.Auth.Issuer = "offerwall"

	engine := NewEngine(cfg)
	r, err := NewRouter(cfg, engine)
	require.NoError(t, err)
	r.Private.GET("/me", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/me", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := middleware.SignToken(cfg.Auth.JWTSecret, cfg.Auth.Issuer, 42, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
