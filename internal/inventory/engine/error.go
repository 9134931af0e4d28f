package engine

import (
	"errors"
	"fmt"
)

type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrorCode はメトリクスのresultラベルに使う。
func (e *DomainError) ErrorCode() string { return e.Code }

const (
	// 入力不備。ロック取得前に検出され、呼び出し側で修正可能。
	ErrCodeInvalidArgument = "INVALID_ARGUMENT"
	// 現在状態では許可されない操作。メッセージに現在状態を含める。
	ErrCodeInvalidState = "INVALID_STATE"
	// ロック後の再検証失敗・ロック待ちタイムアウト。リトライ可能。
	ErrCodeConflict = "CONFLICT"
	ErrCodeNotFound = "NOT_FOUND"
	// 参照マスタ（状態カタログ等）の欠落。運用で直すしかない致命エラー。
	ErrCodeConfig   = "CONFIG_ERROR"
	ErrCodeInternal = "INTERNAL"
)

func ErrInvalid(msg string) error {
	return &DomainError{Code: ErrCodeInvalidArgument, Message: msg}
}

func ErrInvalidState(op Op, current string) error {
	return &DomainError{
		Code:    ErrCodeInvalidState,
		Message: fmt.Sprintf("operation %s not allowed in state %q", op, current),
	}
}

func ErrConflict(msg string) error {
	return &DomainError{Code: ErrCodeConflict, Message: msg}
}

func ErrNotFound(msg string) error {
	return &DomainError{Code: ErrCodeNotFound, Message: msg}
}

func ErrConfig(msg string) error {
	return &DomainError{Code: ErrCodeConfig, Message: msg}
}

func ErrInternal(msg string) error {
	return &DomainError{Code: ErrCodeInternal, Message: msg}
}

func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ErrCodeInternal
}

func ToHTTPStatus(err error) int {
	switch CodeOf(err) {
	case ErrCodeInvalidArgument:
		return 400
	case ErrCodeNotFound:
		return 404
	case ErrCodeInvalidState, ErrCodeConflict:
		return 409
	default:
		return 500
	}
}
