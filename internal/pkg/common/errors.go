package common

import (
	"context"
	"errors"
	"net/http"
)

// ErrorResponse 定義 API 錯誤響應結構
type ErrorResponse struct {
	Code    string `json:"code"`              // 錯誤代碼
	Message string `json:"message"`           // 錯誤信息
	Details string `json:"details,omitempty"` // 詳細信息（僅在開發模式顯示）
}

// CustomError 定義自定義錯誤類型
type CustomError struct {
	Code    string // 錯誤代碼
	Message string // 錯誤信息
	Err     error  // 原始錯誤
	Status  int    // HTTP 狀態碼
}

func (e *CustomError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap 讓 errors.Is 可以穿透到原始錯誤
func (e *CustomError) Unwrap() error {
	return e.Err
}

// NewError 創建新的自定義錯誤
func NewError(code string, message string, status int, err error) *CustomError {
	return &CustomError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

// ValidationError 表示驗證錯誤
type ValidationError struct {
	message string
}

// Error 實現 error 介面
func (e *ValidationError) Error() string {
	return e.message
}

// NewValidationError 創建新的驗證錯誤
func NewValidationError(message string) error {
	return &ValidationError{
		message: message,
	}
}

// IsValidationError 檢查是否為驗證錯誤
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// 領域錯誤，一律以 fmt.Errorf("...: %w") 包裝後回傳
var (
	// ErrUnknownToken 食材不在詞彙表中
	ErrUnknownToken = errors.New("unknown token")
	// ErrSignalUnavailable 單一相似度信號無法計算
	ErrSignalUnavailable = errors.New("signal unavailable")
	// ErrScoreUndefined 任一信號不可用時綜合分數未定義
	ErrScoreUndefined = errors.New("composite score undefined")
	// ErrNoSignals 所有信號皆不可用
	ErrNoSignals = errors.New("no similarity signals available")
	// ErrArtifactMissing 預先計算的檔案不存在
	ErrArtifactMissing = errors.New("artifact missing")
	// ErrExternalService 外部服務無法連線或回傳格式錯誤
	ErrExternalService = errors.New("external service failure")
)

// 預定義錯誤代碼
const (
	// 客戶端錯誤 (4xx)
	ErrCodeInvalidRequest  = "INVALID_REQUEST"   // 400
	ErrCodeNotFound        = "NOT_FOUND"         // 404
	ErrCodeRequestTimeout  = "REQUEST_TIMEOUT"   // 408
	ErrCodeTooManyRequests = "TOO_MANY_REQUESTS" // 429
	ErrCodeUnknownToken    = "UNKNOWN_TOKEN"     // 404

	// 服務器錯誤 (5xx)
	ErrCodeInternalError      = "INTERNAL_ERROR"      // 500
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE" // 503
	ErrCodeExternalService    = "EXTERNAL_SERVICE"    // 502
	ErrCodeGatewayTimeout     = "GATEWAY_TIMEOUT"     // 504
)

// 預定義錯誤
var (
	ErrCacheFull     = NewError("CACHE_FULL", "緩存已滿", http.StatusServiceUnavailable, nil)
	ErrCacheDisabled = NewError("CACHE_DISABLED", "緩存已禁用", http.StatusServiceUnavailable, nil)
	ErrCacheMiss     = NewError("CACHE_MISS", "緩存未命中", http.StatusNotFound, nil)
)

// ToCustomError 將領域錯誤轉換為帶有 HTTP 狀態碼的錯誤
func ToCustomError(err error) *CustomError {
	var ce *CustomError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ce):
		return ce
	case IsValidationError(err):
		return NewError(ErrCodeInvalidRequest, err.Error(), http.StatusBadRequest, err)
	case errors.Is(err, ErrUnknownToken):
		return NewError(ErrCodeUnknownToken, "食材不在詞彙表中", http.StatusNotFound, err)
	case errors.Is(err, ErrNoSignals):
		return NewError(ErrCodeServiceUnavailable, "相似度信號皆不可用", http.StatusServiceUnavailable, err)
	case errors.Is(err, ErrArtifactMissing):
		return NewError(ErrCodeServiceUnavailable, "預計算檔案缺失", http.StatusServiceUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(ErrCodeGatewayTimeout, "請求逾時", http.StatusGatewayTimeout, err)
	case errors.Is(err, ErrExternalService):
		return NewError(ErrCodeExternalService, "外部服務錯誤", http.StatusBadGateway, err)
	default:
		return NewError(ErrCodeInternalError, "服務器內部錯誤", http.StatusInternalServerError, err)
	}
}
