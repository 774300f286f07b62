package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode classifies an AppError.
type ErrorCode string

const (
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeValidation   ErrorCode = "VALIDATION_ERROR"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeConflict     ErrorCode = "CONFLICT"

	// Download flow outcomes
	ErrCodePolicyDenied    ErrorCode = "POLICY_DENIED"
	ErrCodeContextLost     ErrorCode = "CONTEXT_LOST"
	ErrCodeFetchFailure    ErrorCode = "FETCH_FAILURE"
	ErrCodeSizeExceeded    ErrorCode = "SIZE_EXCEEDED"
	ErrCodeDeliveryFailure ErrorCode = "DELIVERY_FAILURE"

	// Infrastructure
	ErrCodeDatabaseError ErrorCode = "DATABASE_ERROR"
	ErrCodeCacheError    ErrorCode = "CACHE_ERROR"
	ErrCodeTelegramAPI   ErrorCode = "TELEGRAM_API_ERROR"
)

// AppError is a typed application error. Message is always safe to show to the end user.
type AppError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Stack     []string               `json:"-"`
	Timestamp time.Time              `json:"timestamp"`
	UserID    int64                  `json:"user_id,omitempty"`
	Cause     error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// IsPolicy reports an expected, user-facing denial that must not be retried for this attempt.
func (e *AppError) IsPolicy() bool {
	return e.Code == ErrCodePolicyDenied || e.Code == ErrCodeContextLost
}

// IsInternal reports failures that should be logged at error level.
func (e *AppError) IsInternal() bool {
	return e.Code == ErrCodeInternal ||
		e.Code == ErrCodeDatabaseError ||
		e.Code == ErrCodeCacheError ||
		e.Code == ErrCodeTelegramAPI
}

// WithDetail attaches diagnostic information.
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func (e *AppError) WithUserID(userID int64) *AppError {
	e.UserID = userID
	return e
}

// New creates an application error.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Wrap wraps err with a code and a user-facing message. The stack is captured for internal errors only.
func Wrap(err error, code ErrorCode, message string) *AppError {
	appErr := New(code, message)
	appErr.Cause = err
	if appErr.IsInternal() {
		appErr.Stack = getStackTrace()
	}
	return appErr
}

func getStackTrace() []string {
	var stack []string
	for i := 2; ; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}
		if strings.Contains(fn.Name(), "internal/common/errors") {
			continue
		}
		stack = append(stack, fmt.Sprintf("%s:%d %s", file, line, fn.Name()))
		if len(stack) >= 10 {
			break
		}
	}
	return stack
}

// NewPolicyDenied builds a PolicyDenied error with the reason shown to the user.
func NewPolicyDenied(reason, userMessage string) *AppError {
	return New(ErrCodePolicyDenied, userMessage).WithDetail("reason", reason)
}

func NewContextLost() *AppError {
	return New(ErrCodeContextLost, "Error: URL context lost. Please send the link again.")
}

func NewFetchFailure(err error, userMessage string) *AppError {
	return Wrap(err, ErrCodeFetchFailure, userMessage)
}

func NewSizeExceeded(userMessage string, size, limit int64) *AppError {
	return New(ErrCodeSizeExceeded, userMessage).
		WithDetail("size", size).
		WithDetail("limit", limit)
}

func NewDeliveryFailure(err error, userMessage string) *AppError {
	return Wrap(err, ErrCodeDeliveryFailure, userMessage)
}

func NewValidationError(field, reason string) *AppError {
	return New(ErrCodeValidation, reason).WithDetail("field", field)
}

func NewForbiddenError(reason string) *AppError {
	return New(ErrCodeForbidden, reason)
}

func NewConflictError(reason string) *AppError {
	return New(ErrCodeConflict, reason)
}

func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseError, "Database operation failed: "+operation).
		WithDetail("operation", operation)
}

func NewCacheError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeCacheError, "Store operation failed: "+operation).
		WithDetail("operation", operation)
}

// AsAppError finds the first AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the code of the AppError in err's chain, or ErrCodeInternal.
func CodeOf(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}
