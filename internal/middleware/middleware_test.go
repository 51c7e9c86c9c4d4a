package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"loyalpay/config"
	"loyalpay/internal/auth"
	"loyalpay/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testJWT = &config.JWTConfig{
	AccessSecret:  "access",
	RefreshSecret: "refresh",
	AccessExpiry:  time.Hour,
	RefreshExpiry: time.Hour,
	Issuer:        "test",
}

func do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthRequired(t *testing.T) {
	r := gin.New()
	r.GET("/me", AuthRequired(testJWT), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": GetUserID(c), "role": GetRole(c)})
	})
	r.GET("/admin", AuthRequired(testJWT), AdminRequired(), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/partner", AuthRequired(testJWT), RequireRole(domain.RolePartner, domain.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	token, err := auth.GenerateAccessToken(testJWT, 42, "a@example.com", domain.RoleClient)
	require.NoError(t, err)
	adminToken, err := auth.GenerateAccessToken(testJWT, 1, "root@example.com", domain.RoleAdmin)
	require.NoError(t, err)
	refresh, err := auth.GenerateRefreshToken(testJWT, 42)
	require.NoError(t, err)

	req := func(path, header string) *http.Request {
		rq := httptest.NewRequest(http.MethodGet, path, nil)
		if header != "" {
			rq.Header.Set("Authorization", header)
		}
		return rq
	}

	w := do(r, req("/me", "Bearer "+token))
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"id":42,"role":"CLIENT"}`, w.Body.String())

	require.Equal(t, http.StatusUnauthorized, do(r, req("/me", "")).Code)
	require.Equal(t, http.StatusUnauthorized, do(r, req("/me", token)).Code)
	require.Equal(t, http.StatusUnauthorized, do(r, req("/me", "Bearer "+refresh)).Code)
	require.Equal(t, http.StatusUnauthorized, do(r, req("/me", "Bearer garbage")).Code)

	require.Equal(t, http.StatusForbidden, do(r, req("/admin", "Bearer "+token)).Code)
	require.Equal(t, http.StatusNoContent, do(r, req("/admin", "Bearer "+adminToken)).Code)
	require.Equal(t, http.StatusForbidden, do(r, req("/partner", "Bearer "+token)).Code)
	require.Equal(t, http.StatusNoContent, do(r, req("/partner", "Bearer "+adminToken)).Code)
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	l := NewInMemoryRateLimiter(2, time.Minute)
	defer l.Stop()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	require.True(t, l.Allow("a"))
	require.True(t, l.Allow("a"))
	require.False(t, l.Allow("a"))
	require.True(t, l.Allow("b"))

	now = now.Add(61 * time.Second)
	require.True(t, l.Allow("a"))
}

func TestRateLimitMiddleware(t *testing.T) {
	l := NewInMemoryRateLimiter(1, time.Minute)
	defer l.Stop()
	r := gin.New()
	r.GET("/x", RateLimit(l), func(c *gin.Context) { c.Status(http.StatusOK) })

	require.Equal(t, http.StatusOK, do(r, httptest.NewRequest(http.MethodGet, "/x", nil)).Code)
	w := do(r, httptest.NewRequest(http.MethodGet, "/x", nil))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "60", w.Header().Get("Retry-After"))
}

func TestIPAllowList(t *testing.T) {
	_, err := NewIPAllowList([]string{"not-an-ip"})
	require.Error(t, err)

	open, err := NewIPAllowList(nil)
	require.NoError(t, err)
	require.True(t, open.Allows("203.0.113.9"))

	a, err := NewIPAllowList([]string{"79.142.16.0/20", " 10.1.2.3 "})
	require.NoError(t, err)
	require.True(t, a.Allows("79.142.20.1"))
	require.True(t, a.Allows("10.1.2.3"))
	require.False(t, a.Allows("10.1.2.4"))
	require.False(t, a.Allows(""))

	r := gin.New()
	r.GET("/payment", a.Middleware("application/xml", func() []byte { return []byte("<denied/>") }), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	in := httptest.NewRequest(http.MethodGet, "/payment", nil)
	in.RemoteAddr = "79.142.16.5:5000"
	require.Equal(t, http.StatusOK, do(r, in).Code)

	out := httptest.NewRequest(http.MethodGet, "/payment", nil)
	out.RemoteAddr = "198.51.100.7:5000"
	w := do(r, out)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "<denied/>", w.Body.String())
	require.Contains(t, w.Header().Get("Content-Type"), "application/xml")
}
