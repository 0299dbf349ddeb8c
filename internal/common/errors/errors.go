package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

type ErrorCode string

const (
	ErrCodeSourceUnavailable    ErrorCode = "SOURCE_UNAVAILABLE"
	ErrCodeRateLimitExceeded    ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeRequiredSourceFailed ErrorCode = "REQUIRED_SOURCE_FAILED"
	ErrCodeGenerationFailed     ErrorCode = "GENERATION_FAILED"
	ErrCodeTimeout              ErrorCode = "TIMEOUT"

	ErrCodeConfigInvalid        ErrorCode = "CONFIG_INVALID"
	ErrCodeValidationFailed     ErrorCode = "INPUT_VALIDATION_FAILED"
	ErrCodeExternalServiceError ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeDeliveryFailed       ErrorCode = "DELIVERY_FAILED"
	ErrCodeInternal             ErrorCode = "INTERNAL_ERROR"
)

type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Cause     error                  `json:"-"`
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.Cause
}

// Is matches any *StandardError carrying the same code, so sentinel-style checks work:
// errors.Is(err, &StandardError{Code: ErrCodeTimeout}).
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMetadata returns e after merging kv into its metadata.
func (e *StandardError) WithMetadata(kv map[string]interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{}, len(kv))
	}
	for k, v := range kv {
		e.Metadata[k] = v
	}
	return e
}

type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

func newError(code ErrorCode, message string, cause error, retryable bool) *StandardError {
	se := &StandardError{
		Code:      code,
		Message:   message,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		Cause:     cause,
	}
	if cause != nil {
		se.Details = cause.Error()
	}
	return se
}

// NewSourceUnavailableError wraps a failure of an evidence source or its transport.
func NewSourceUnavailableError(source string, cause error) *StandardError {
	return newError(ErrCodeSourceUnavailable, fmt.Sprintf("source %s unavailable", source), cause, true).
		WithMetadata(map[string]interface{}{"source": source})
}

func NewRateLimitExceededError(key string, waited time.Duration) *StandardError {
	se := newError(ErrCodeRateLimitExceeded, fmt.Sprintf("rate limit exceeded for %s", key), nil, true)
	se.Details = fmt.Sprintf("no token available within %s", waited)
	return se.WithMetadata(map[string]interface{}{"key": key, "waitBudget": waited.String()})
}

func NewRequiredSourceFailedError(source string, cause error) *StandardError {
	return newError(ErrCodeRequiredSourceFailed, fmt.Sprintf("required source %s failed", source), cause, false).
		WithMetadata(map[string]interface{}{"source": source})
}

func NewGenerationFailedError(cause error, retryable bool) *StandardError {
	return newError(ErrCodeGenerationFailed, "generation failed", cause, retryable)
}

func NewTimeoutError(operation string, cause error) *StandardError {
	return newError(ErrCodeTimeout, fmt.Sprintf("%s timed out", operation), cause, true).
		WithMetadata(map[string]interface{}{"operation": operation})
}

func NewConfigInvalidError(details string) *StandardError {
	se := newError(ErrCodeConfigInvalid, "invalid configuration", nil, false)
	se.Details = details
	return se
}

func NewValidationError(details string) *StandardError {
	se := newError(ErrCodeValidationFailed, "input validation failed", nil, false)
	se.Details = details
	return se
}

func NewExternalServiceError(service string, cause error) *StandardError {
	return newError(ErrCodeExternalServiceError, fmt.Sprintf("external service %s failed", service), cause, true).
		WithMetadata(map[string]interface{}{"service": service})
}

func NewDeliveryFailedError(provider string, cause error) *StandardError {
	return newError(ErrCodeDeliveryFailed, fmt.Sprintf("digest delivery via %s failed", provider), cause, true).
		WithMetadata(map[string]interface{}{"provider": provider})
}

func NewInternalError(cause error) *StandardError {
	return newError(ErrCodeInternal, "unexpected error", cause, false)
}

// AsStandardError finds the outermost *StandardError in err's chain.
func AsStandardError(err error) (*StandardError, bool) {
	var se *StandardError
	if stderrors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// HasCode reports whether any StandardError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	return stderrors.Is(err, &StandardError{Code: code})
}

func IsRetryable(err error) bool {
	se, ok := AsStandardError(err)
	return ok && se.Retryable
}

var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeSourceUnavailable:    "SOURCE_UNAVAILABLE",
	ErrCodeRateLimitExceeded:    "RATE_LIMIT_EXCEEDED",
	ErrCodeRequiredSourceFailed: "CRM_UNAVAILABLE",
	ErrCodeGenerationFailed:     "GENERATION_FAILED",
	ErrCodeTimeout:              "RUN_TIMEOUT",
	ErrCodeConfigInvalid:        "CONFIG_INVALID",
	ErrCodeValidationFailed:     "INVALID_INPUT",
	ErrCodeExternalServiceError: "EXTERNAL_SERVICE_ERROR",
	ErrCodeDeliveryFailed:       "DIGEST_DELIVERY_FAILED",
}

func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeRequiredSourceFailed,
		ErrCodeExternalServiceError,
		ErrCodeDeliveryFailed:
		return 3

	case ErrCodeRateLimitExceeded,
		ErrCodeTimeout,
		ErrCodeSourceUnavailable:
		return 2

	case ErrCodeGenerationFailed:
		return 1

	default:
		return 0
	}
}

func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      bpmnCode,
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "SOURCE") || strings.Contains(codeStr, "RATE_LIMIT"):
		return "RESEARCH"
	case strings.Contains(codeStr, "GENERATION"):
		return "AI"
	case strings.Contains(codeStr, "DELIVERY"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "TIMEOUT"):
		return "TIMEOUT"
	case strings.Contains(codeStr, "CONFIG") || strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	case strings.Contains(codeStr, "EXTERNAL"):
		return "INTEGRATION"
	default:
		return "OTHER"
	}
}
