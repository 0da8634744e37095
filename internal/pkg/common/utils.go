package common

import (
	"github.com/google/uuid"
)

// RequestIDHeader 請求 ID 標頭
const RequestIDHeader = "X-Request-ID"

// GenerateUUID 生成 UUID
func GenerateUUID() string {
	return uuid.New().String()
}

// EnsureRequestID 若未提供請求 ID 則產生一個新的
func EnsureRequestID(id string) string {
	if id != "" {
		return id
	}
	return GenerateUUID()
}
