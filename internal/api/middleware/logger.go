package middleware

import (
	"net/http"
	"time"

	"recipe-substitution/internal/pkg/common"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// 處理器寫入 gin.Context 的鍵，由 Logger 帶入存取日誌
const (
	KeyResultCount = "result_count"
	KeyErrorCode   = "error_code"
)

// Logger 存取日誌：路由樣板、狀態、耗時，以及處理器留下的結果數與錯誤代碼
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := accessFields(c, time.Since(start))
		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			common.LogError("Request failed", fields...)
		case status >= http.StatusBadRequest:
			common.LogWarn("Request rejected", fields...)
		default:
			common.LogInfo("Request completed", fields...)
		}
	}
}

// accessFields 一次請求的日誌欄位；route 使用樣板路徑，避免 :token 讓路徑值發散
func accessFields(c *gin.Context, latency time.Duration) []zap.Field {
	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	fields := []zap.Field{
		zap.String("request_id", requestid.Get(c)),
		zap.String("method", c.Request.Method),
		zap.String("route", route),
		zap.Int("status", c.Writer.Status()),
		zap.Duration("latency", latency),
		zap.String("ip", c.ClientIP()),
	}
	if n, ok := c.Get(KeyResultCount); ok {
		if count, ok := n.(int); ok {
			fields = append(fields, zap.Int("results", count))
		}
	}
	if code := c.GetString(KeyErrorCode); code != "" {
		fields = append(fields, zap.String("error_code", code))
	}
	if len(c.Errors) > 0 {
		fields = append(fields, zap.Strings("errors", c.Errors.Errors()))
	}
	return fields
}

// Recovery panic 時記錄並回傳 500
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				common.LogError("Panic recovered",
					zap.Any("error", err),
					zap.String("request_id", requestid.Get(c)),
					zap.String("route", c.FullPath()),
					zap.Stack("stack"),
				)
				c.Set(KeyErrorCode, common.ErrCodeInternalError)
				c.AbortWithStatusJSON(http.StatusInternalServerError, common.ErrorResponse{
					Code:    common.ErrCodeInternalError,
					Message: "Internal server error",
				})
			}
		}()

		c.Next()
	}
}
