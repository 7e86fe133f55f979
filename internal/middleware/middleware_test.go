package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lirads-audit-server/internal/auth"
	"github.com/lirads-audit-server/internal/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": c.GetString(UsernameKey)})
	})
	return r
}

func do(r http.Handler, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSecurityHeaders(t *testing.T) {
	w := do(newRouter(SecurityHeaders()), nil)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "script-src 'none'")
}

func TestCorrelationID(t *testing.T) {
	r := newRouter(CorrelationID())

	w := do(r, map[string]string{"X-Correlation-ID": "abc-123"})
	assert.Equal(t, "abc-123", w.Header().Get("X-Correlation-ID"))

	w = do(r, nil)
	assert.Len(t, w.Header().Get("X-Correlation-ID"), 36)
}

func TestRequestTimeout(t *testing.T) {
	r := gin.New()
	r.Use(CorrelationID(), RequestTimeout(20*time.Millisecond))
	r.GET("/slow", func(c *gin.Context) {
		<-c.Request.Context().Done()
	})

	req := httptest.NewRequest(http.MethodGet, "/slow", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestTimeout, w.Code)
	var apiErr domain.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	assert.Equal(t, domain.ErrTimeout, apiErr.Code)
	assert.NotEmpty(t, apiErr.RequestID)
}

func TestAuditLogger(t *testing.T) {
	logger, hook := test.NewNullLogger()
	do(newRouter(CorrelationID(), AuditLogger(logger)), nil)

	require.Len(t, hook.Entries, 1)
	entry := hook.LastEntry()
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "/ping", entry.Data["path"])
	assert.Equal(t, http.StatusOK, entry.Data["status"])
}

func TestRateLimiter(t *testing.T) {
	l := NewRateLimiter(domain.RateLimitConfig{Enabled: true, RequestsPerSecond: 1, Burst: 2})
	r := newRouter(l.Middleware())

	assert.Equal(t, http.StatusOK, do(r, nil).Code)
	assert.Equal(t, http.StatusOK, do(r, nil).Code)
	w := do(r, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	assert.True(t, l.Allow("other-client"))
}

func TestBearerAuth(t *testing.T) {
	tm, err := auth.NewTokenManager(domain.AuthConfig{JWTSecret: "mw-secret", Issuer: "test"})
	require.NoError(t, err)
	token, _, err := tm.Issue("dr.sato")
	require.NoError(t, err)

	r := newRouter(BearerAuth(tm))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage", "Bearer not-a-token", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var h map[string]string
			if tt.header != "" {
				h = map[string]string{"Authorization": tt.header}
			}
			w := do(r, h)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.JSONEq(t, `{"user":"dr.sato"}`, w.Body.String())
			} else {
				assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))
			}
		})
	}
}
