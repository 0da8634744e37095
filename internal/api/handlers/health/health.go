package health

import (
	"net/http"
	"runtime"
	"time"

	"recipe-substitution/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// StatusReporter 引擎狀態
type StatusReporter interface {
	Ready() bool
	Status() map[string]interface{}
}

// HealthResponse 健康檢查響應
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Runtime   map[string]interface{} `json:"runtime"`
	Engine    map[string]interface{} `json:"engine"`
}

// Handler 健康檢查處理器
type Handler struct {
	version  string
	reporter StatusReporter
}

// NewHandler 創建健康檢查處理器
func NewHandler(version string, reporter StatusReporter) *Handler {
	return &Handler{version: version, reporter: reporter}
}

// HealthCheck 健康檢查，回傳引擎載入狀態；引擎未就緒時狀態為 degraded
func (h *Handler) HealthCheck(c *gin.Context) {
	// 獲取運行時信息
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	status := "ok"
	if !h.reporter.Ready() {
		status = "degraded"
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Version:   h.version,
		Runtime: map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"memory": map[string]interface{}{
				"alloc":       m.Alloc,
				"total_alloc": m.TotalAlloc,
				"sys":         m.Sys,
				"num_gc":      m.NumGC,
			},
		},
		Engine: h.reporter.Status(),
	}

	common.LogDebug("Health check request",
		zap.String("client_ip", c.ClientIP()),
		zap.String("status", status),
	)

	c.JSON(http.StatusOK, response)
}

// ReadinessCheck 引擎能產生替代建議時才就緒
func (h *Handler) ReadinessCheck(c *gin.Context) {
	if !h.reporter.Ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not_ready",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
	})
}

// LivenessCheck 存活檢查處理器
func (h *Handler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
	})
}
