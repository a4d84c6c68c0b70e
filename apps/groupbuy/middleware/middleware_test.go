package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"optifish/pkg/jwt"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authRouter(tokens *jwt.Manager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger())
	r.GET("/me", AuthMiddleware(tokens), func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c).String())
	})
	return r
}

func get(r http.Handler, path, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	tokens := jwt.NewManager("secret", "optifish", time.Hour)
	r := authRouter(tokens)

	token, err := tokens.GenerateToken(42, "budi", "")
	require.NoError(t, err)

	w := get(r, "/me", "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "42", w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, get(r, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/me", token).Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/me", "Bearer not-a-token").Code)

	foreign, err := jwt.NewManager("other", "optifish", time.Hour).GenerateToken(42, "", "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/me", "Bearer "+foreign).Code)
}

func TestRateLimitRejectsOverThreshold(t *testing.T) {
	gin.SetMode(gin.TestMode)
	const resource = "middleware_test_limit"
	require.NoError(t, InitSentinel("optifish-middleware-test", resource, 2))
	t.Cleanup(func() { _ = InitSentinel("optifish-middleware-test", resource, 0) })

	r := gin.New()
	r.GET("/limited", RateLimit(resource), func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := map[int]int{}
	for i := 0; i < 10; i++ {
		codes[get(r, "/limited", "").Code]++
	}
	assert.Positive(t, codes[http.StatusOK])
	assert.Positive(t, codes[http.StatusTooManyRequests])
	assert.LessOrEqual(t, codes[http.StatusOK], 4)
}
