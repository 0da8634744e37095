package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRateLimiterRefills(t *testing.T) {
	rl := NewRateLimiter(2, time.Second)
	now := rl.lastTime

	assert.True(t, rl.allowAt(now))
	assert.True(t, rl.allowAt(now))
	assert.False(t, rl.allowAt(now))

	assert.True(t, rl.allowAt(now.Add(600*time.Millisecond)))
	assert.False(t, rl.allowAt(now.Add(700*time.Millisecond)))
}

func TestRateLimitPerClient(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(1, time.Hour))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1"))
	assert.Equal(t, http.StatusOK, do("10.0.0.2"))
}

func TestBodySizeLimit(t *testing.T) {
	r := gin.New()
	r.Use(BodySizeLimit(8))
	r.POST("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123")))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery(), Logger())
	r.GET("/", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
}

func TestClientLimitersEvictIdleBuckets(t *testing.T) {
	cl := newClientLimiters(1, time.Minute)
	now := cl.lastSweep

	assert.True(t, cl.allowAt("10.0.0.1", now))
	assert.True(t, cl.allowAt("10.0.0.2", now.Add(30*time.Second)))
	assert.False(t, cl.allowAt("10.0.0.2", now.Add(40*time.Second)))
	assert.Len(t, cl.limiters, 2)

	// 10.0.0.1 已閒置一個 window，10.0.0.2 還沒有
	assert.True(t, cl.allowAt("10.0.0.3", now.Add(time.Minute)))
	assert.Len(t, cl.limiters, 2)
	assert.NotContains(t, cl.limiters, "10.0.0.1")
	assert.Contains(t, cl.limiters, "10.0.0.2")

	// 被清掉的用戶端重新取得完整額度
	assert.True(t, cl.allowAt("10.0.0.1", now.Add(61*time.Second)))
}

func fieldMap(fields []zap.Field) map[string]zap.Field {
	out := make(map[string]zap.Field, len(fields))
	for _, f := range fields {
		out[f.Key] = f
	}
	return out
}

func TestAccessFields(t *testing.T) {
	var captured []zap.Field
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Next()
		captured = accessFields(c, time.Millisecond)
	})
	r.GET("/ingredient/:token/candidates", func(c *gin.Context) {
		c.Set(KeyResultCount, 3)
		c.Status(http.StatusOK)
	})
	r.GET("/broken", func(c *gin.Context) {
		c.Set(KeyErrorCode, "UNKNOWN_TOKEN")
		c.Status(http.StatusNotFound)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ingredient/tofu/candidates", nil))
	fields := fieldMap(captured)
	assert.Equal(t, "/ingredient/:token/candidates", fields["route"].String)
	assert.Equal(t, int64(http.StatusOK), fields["status"].Integer)
	require.Contains(t, fields, "results")
	assert.Equal(t, int64(3), fields["results"].Integer)
	assert.NotContains(t, fields, "error_code")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/broken", nil))
	fields = fieldMap(captured)
	assert.Equal(t, "UNKNOWN_TOKEN", fields["error_code"].String)
	assert.NotContains(t, fields, "results")
}
