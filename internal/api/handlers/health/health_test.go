package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReporter struct{ ready bool }

func (f fakeReporter) Ready() bool { return f.ready }

func (f fakeReporter) Status() map[string]interface{} {
	return map[string]interface{}{"ready": f.ready}
}

func serve(h *Handler, path string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/health", h.HealthCheck)
	r.GET("/ready", h.ReadinessCheck)
	r.GET("/live", h.LivenessCheck)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestReadiness(t *testing.T) {
	assert.Equal(t, http.StatusOK, serve(NewHandler("1.0.0", fakeReporter{ready: true}), "/ready").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(NewHandler("1.0.0", fakeReporter{}), "/ready").Code)
	assert.Equal(t, http.StatusOK, serve(NewHandler("1.0.0", fakeReporter{}), "/live").Code)
}

func TestHealthCheck(t *testing.T) {
	w := serve(NewHandler("1.2.3", fakeReporter{}), "/health")
	require.Equal(t, http.StatusOK, w.Code)

	var got HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "degraded", got.Status)
	assert.Equal(t, "1.2.3", got.Version)
	assert.Equal(t, false, got.Engine["ready"])
}
