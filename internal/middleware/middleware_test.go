package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang-cart-sync/pkg/auth"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(jwt *auth.JWTManager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := logrus.New()
	log.SetOutput(io.Discard)

	r := gin.New()
	r.Use(RequestIDMiddleware(), RecoveryMiddleware(log), LoggerMiddleware(log))
	am := NewAuthMiddleware(jwt)
	r.GET("/me", am.AuthRequired(), func(c *gin.Context) {
		c.String(http.StatusOK, GetUserID(c)+"/"+GetUserRole(c))
	})
	r.GET("/admin", am.AuthRequired(), am.RoleRequired(auth.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	r.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})
	return r
}

func TestAuthRequired(t *testing.T) {
	jwt := auth.NewJWTManager("secret", 1)
	r := newRouter(jwt)
	token, err := jwt.GenerateToken("u1", "")
	require.NoError(t, err)

	tests := []struct {
		name   string
		setup  func(req *http.Request)
		status int
		body   string
	}{
		{name: "bearer header", setup: func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+token) }, status: http.StatusOK, body: "u1/user"},
		{name: "query param", setup: func(req *http.Request) { req.URL.RawQuery = "token=" + token }, status: http.StatusOK, body: "u1/user"},
		{name: "missing", setup: func(req *http.Request) {}, status: http.StatusUnauthorized},
		{name: "malformed header", setup: func(req *http.Request) { req.Header.Set("Authorization", token) }, status: http.StatusUnauthorized},
		{name: "bad token", setup: func(req *http.Request) { req.Header.Set("Authorization", "Bearer nope") }, status: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			tt.setup(req)
			w := httptest.NewRecorder()

			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestRoleRequired(t *testing.T) {
	jwt := auth.NewJWTManager("secret", 1)
	r := newRouter(jwt)
	userToken, _ := jwt.GenerateToken("u1", auth.RoleUser)
	adminToken, _ := jwt.GenerateToken("a1", auth.RoleAdmin)

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+userToken)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRequestID(t *testing.T) {
	r := newRouter(auth.NewJWTManager("secret", 1))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("X-Request-ID", "abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get("X-Request-ID"))
}

func TestRecovery(t *testing.T) {
	r := newRouter(auth.NewJWTManager("secret", 1))

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, w.Body.String())
}
