package middleware

import (
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"recipe-substitution/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RateLimiter 令牌桶限流器
type RateLimiter struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	rate     float64
	lastTime time.Time
}

// NewRateLimiter 創建新的限流器，window 內最多 requests 次
func NewRateLimiter(requests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		tokens:   float64(requests),
		capacity: float64(requests),
		rate:     float64(requests) / window.Seconds(),
		lastTime: time.Now(),
	}
}

// Allow 檢查是否允許請求
func (rl *RateLimiter) Allow() bool {
	return rl.allowAt(time.Now())
}

func (rl *RateLimiter) allowAt(now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	// 添加新令牌
	elapsed := now.Sub(rl.lastTime).Seconds()
	if elapsed > 0 {
		rl.tokens = math.Min(rl.capacity, rl.tokens+elapsed*rl.rate)
		rl.lastTime = now
	}

	// 檢查是否有可用令牌
	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}
	return false
}

// clientLimiters 每個用戶端 IP 一個限流器。閒置超過 window 的桶已補滿，每隔 window 清掉一次
type clientLimiters struct {
	mu        sync.Mutex
	limiters  map[string]*RateLimiter
	requests  int
	window    time.Duration
	lastSweep time.Time
}

func newClientLimiters(requests int, window time.Duration) *clientLimiters {
	return &clientLimiters{
		limiters:  make(map[string]*RateLimiter),
		requests:  requests,
		window:    window,
		lastSweep: time.Now(),
	}
}

func (cl *clientLimiters) allow(ip string) bool {
	return cl.allowAt(ip, time.Now())
}

func (cl *clientLimiters) allowAt(ip string, now time.Time) bool {
	cl.mu.Lock()
	if now.Sub(cl.lastSweep) >= cl.window {
		cl.sweep(now)
	}
	rl, ok := cl.limiters[ip]
	if !ok {
		rl = NewRateLimiter(cl.requests, cl.window)
		rl.lastTime = now
		cl.limiters[ip] = rl
	}
	cl.mu.Unlock()
	return rl.allowAt(now)
}

// sweep 移除閒置的限流器，呼叫端須持有 cl.mu
func (cl *clientLimiters) sweep(now time.Time) {
	removed := 0
	for ip, rl := range cl.limiters {
		rl.mu.Lock()
		idle := now.Sub(rl.lastTime) >= cl.window
		rl.mu.Unlock()
		if idle {
			delete(cl.limiters, ip)
			removed++
		}
	}
	cl.lastSweep = now
	if removed > 0 {
		common.LogDebug("Idle rate limiters evicted",
			zap.Int("removed", removed),
			zap.Int("active", len(cl.limiters)),
		)
	}
}

// RateLimit 依用戶端 IP 限流的中間件
func RateLimit(requests int, window time.Duration) gin.HandlerFunc {
	clients := newClientLimiters(requests, window)

	return func(c *gin.Context) {
		if !clients.allow(c.ClientIP()) {
			common.LogInfo("Rate limit exceeded",
				zap.String("ip", c.ClientIP()),
				zap.String("path", c.Request.URL.Path),
			)

			c.Set(KeyErrorCode, common.ErrCodeTooManyRequests)
			c.Header("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, common.ErrorResponse{
				Code:    common.ErrCodeTooManyRequests,
				Message: "Too many requests",
			})
			return
		}

		c.Next()
	}
}
