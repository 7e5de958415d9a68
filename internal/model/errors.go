package model

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError はバックエンド呼び出しで発生したエラーの統一フォーマット。
// StatusCodeは呼び出し元の分岐（401, 429 など）に使用する。
type APIError struct {
	StatusCode int    // HTTPステータスコード（通信失敗時は500）
	Message    string // ユーザーにそのまま表示できるメッセージ
	Err        error  // 元になったエラー（存在する場合）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return e.Message
}

// Unwrap は元のエラーを返す。
func (e *APIError) Unwrap() error {
	return e.Err
}

// 定義済みメッセージ
const (
	MsgAuthRequired     = "Authentication required. Please log in again."
	MsgNoData           = "No data returned from API"
	MsgRequestFailed    = "API request failed"
	MsgUnknownError     = "Unknown error"
	MsgValidationPrefix = "Validation error"
	MsgTooManyRequests  = "Too many requests. Please wait a moment before trying again."
)

// NewAPIError はAPIErrorを生成する。
func NewAPIError(statusCode int, message string) *APIError {
	return &APIError{StatusCode: statusCode, Message: message}
}

// NewAuthRequiredError は401応答時のセッション失効エラーを生成する。
func NewAuthRequiredError() *APIError {
	return NewAPIError(http.StatusUnauthorized, MsgAuthRequired)
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return NewAPIError(http.StatusTooManyRequests, MsgTooManyRequests)
}

// WrapAPIError はAPIError以外のエラーを500のAPIErrorに包む。
// 既にAPIErrorの場合はそのまま返す。
func WrapAPIError(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return &APIError{
		StatusCode: http.StatusInternalServerError,
		Message:    err.Error(),
		Err:        err,
	}
}

// AsAPIError はエラーチェーンからAPIErrorを取り出す。
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsUnauthorized はエラーが401由来かを返す。
func IsUnauthorized(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.StatusCode == http.StatusUnauthorized
}

// IsRateLimited はエラーが429由来かを返す。
func IsRateLimited(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.StatusCode == http.StatusTooManyRequests
}

// ValidationError はネットワーク呼び出し前のクライアント側入力検証エラー。
// Error()はUIにそのまま表示するメッセージを返す。
type ValidationError struct {
	Field   string
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError はValidationErrorを生成する。
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
}

// IsValidationError はエラーがクライアント側の入力検証エラーかを返す。
func IsValidationError(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}
