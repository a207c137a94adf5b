package provider

import (
	"errors"
	"fmt"
)

// Sentinel errors for common provider failures.
var (
	ErrRateLimit      = errors.New("rate limit exceeded")
	ErrQuotaExceeded  = errors.New("quota exceeded")
	ErrTimeout        = errors.New("request timeout")
	ErrContentBlocked = errors.New("content blocked by safety filters")
	ErrEmptyResponse  = errors.New("empty response")
)

// ErrorCode represents a provider error code.
type ErrorCode string

const (
	ErrorCodeRateLimit      ErrorCode = "rate_limit"
	ErrorCodeQuota          ErrorCode = "quota_exceeded"
	ErrorCodeTimeout        ErrorCode = "timeout"
	ErrorCodeUnavailable    ErrorCode = "service_unavailable"
	ErrorCodeAuth           ErrorCode = "authentication_failed"
	ErrorCodeInvalidRequest ErrorCode = "invalid_request"
	ErrorCodeContentBlocked ErrorCode = "content_blocked"
	ErrorCodeContextLength  ErrorCode = "context_length_exceeded"
	ErrorCodeEmptyResponse  ErrorCode = "empty_response"
	ErrorCodeNetwork        ErrorCode = "network_error"
)

// ProviderError wraps a backend failure with a normalised code.
type ProviderError struct {
	Code       ErrorCode
	Message    string
	Underlying error
}

func (e *ProviderError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Underlying)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Underlying
}

// Is lets errors.Is match a ProviderError against the sentinel for its code.
func (e *ProviderError) Is(target error) bool {
	switch e.Code {
	case ErrorCodeRateLimit:
		return target == ErrRateLimit
	case ErrorCodeQuota:
		return target == ErrQuotaExceeded
	case ErrorCodeTimeout:
		return target == ErrTimeout
	case ErrorCodeContentBlocked:
		return target == ErrContentBlocked
	case ErrorCodeEmptyResponse:
		return target == ErrEmptyResponse
	}
	return false
}

// CodeOf returns the ErrorCode carried by err, or "" when err is not a ProviderError.
func CodeOf(err error) ErrorCode {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}
