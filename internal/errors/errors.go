// Package errors provides the structured error kinds CRAG's components raise.
//
// These are the transport-agnostic error kinds of the admission, gateway,
// vault, and codec surfaces: every kind the caller needs to discriminate is
// its own ErrorCode rather than a sentinel, so HTTP and in-process callers
// can both pattern-match on it uniformly.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies a CRAG error kind.
type ErrorCode string

const (
	// Admission errors
	ErrCodeUnknownFeature     ErrorCode = "ADM_1001"
	ErrCodeTierBelow          ErrorCode = "ADM_1002"
	ErrCodeHardwareBelow      ErrorCode = "ADM_1003"
	ErrCodeBridgeRequired     ErrorCode = "ADM_1004"
	ErrCodeCredentialMissing  ErrorCode = "ADM_1005"
	ErrCodeScopeDenied        ErrorCode = "ADM_1006"
	ErrCodeToolUnknown        ErrorCode = "ADM_1007"

	// Gateway errors
	ErrCodeEndpointNotFound ErrorCode = "GW_2001"
	ErrCodeEndpointDisabled ErrorCode = "GW_2002"
	ErrCodeCircuitOpen      ErrorCode = "GW_2003"
	ErrCodeRateLimited      ErrorCode = "GW_2004"
	ErrCodeTimeout          ErrorCode = "GW_2005"
	ErrCodeNetworkError     ErrorCode = "GW_2006"
	ErrCodeHTTPStatus       ErrorCode = "GW_2007"
	ErrCodeCancelled        ErrorCode = "GW_2008"

	// Vault errors
	ErrCodeCredentialUnknown ErrorCode = "VAULT_3001"
	ErrCodeCredentialSealed  ErrorCode = "VAULT_3002"
	ErrCodeNormalized        ErrorCode = "VAULT_3003"

	// Codec errors
	ErrCodeIncompatibleVersion ErrorCode = "CODEC_4001"
	ErrCodeMalformedExport     ErrorCode = "CODEC_4002"
)

// ServiceError is the structured error type returned across CRAG's external
// interfaces.
type ServiceError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Err }

func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func New(code ErrorCode, message string, httpStatus int) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: httpStatus}
}

func Wrap(code ErrorCode, message string, httpStatus int, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: httpStatus, Err: err}
}

// Admission constructors

func UnknownFeature(featureID string) *ServiceError {
	return New(ErrCodeUnknownFeature, "unknown feature", http.StatusNotFound).WithDetails("feature_id", featureID)
}

func TierBelow(required string) *ServiceError {
	return New(ErrCodeTierBelow, "tier requirement not met", http.StatusForbidden).WithDetails("required_tier", required)
}

func HardwareBelow(minScore int) *ServiceError {
	return New(ErrCodeHardwareBelow, "hardware score requirement not met", http.StatusForbidden).WithDetails("min_hardware_score", minScore)
}

func BridgeRequired() *ServiceError {
	return New(ErrCodeBridgeRequired, "bridge is required and not online", http.StatusForbidden)
}

func CredentialMissing(name string) *ServiceError {
	return New(ErrCodeCredentialMissing, "required credential is missing", http.StatusForbidden).WithDetails("credential", name)
}

func ScopeDenied(required string) *ServiceError {
	return New(ErrCodeScopeDenied, "scope level insufficient", http.StatusForbidden).WithDetails("required_scope", required)
}

func ToolUnknown(toolID string) *ServiceError {
	return New(ErrCodeToolUnknown, "unknown tool", http.StatusNotFound).WithDetails("tool_id", toolID)
}

// Gateway constructors

func EndpointNotFound(id string) *ServiceError {
	return New(ErrCodeEndpointNotFound, "endpoint not found", http.StatusNotFound).WithDetails("endpoint_id", id)
}

func EndpointDisabled(id string) *ServiceError {
	return New(ErrCodeEndpointDisabled, "endpoint is disabled", http.StatusServiceUnavailable).WithDetails("endpoint_id", id)
}

func CircuitOpen(id string, retryAtMs int64) *ServiceError {
	return New(ErrCodeCircuitOpen, "circuit breaker is open", http.StatusServiceUnavailable).
		WithDetails("endpoint_id", id).WithDetails("retry_at_ms", retryAtMs)
}

func RateLimited(retryAfterMs int64) *ServiceError {
	return New(ErrCodeRateLimited, "rate limit exceeded", http.StatusTooManyRequests).WithDetails("retry_after_ms", retryAfterMs)
}

func Timeout(operation string) *ServiceError {
	return New(ErrCodeTimeout, "operation timed out", http.StatusGatewayTimeout).WithDetails("operation", operation)
}

func NetworkError(err error) *ServiceError {
	return Wrap(ErrCodeNetworkError, "network error", http.StatusBadGateway, err)
}

func HTTPStatusError(code int) *ServiceError {
	return New(ErrCodeHTTPStatus, "upstream returned an error status", http.StatusBadGateway).WithDetails("status", code)
}

func Cancelled() *ServiceError {
	return New(ErrCodeCancelled, "request was cancelled", http.StatusRequestTimeout)
}

func CredentialNotSealed(name string) *ServiceError {
	return New(ErrCodeCredentialMissing, "credential is not sealed in the vault", http.StatusForbidden).WithDetails("credential", name)
}

func GatewayDispatchFailed(id, kind string, err error) *ServiceError {
	return Wrap(ErrCodeNetworkError, "dispatch failed", http.StatusBadGateway, err).
		WithDetails("endpoint_id", id).WithDetails("kind", kind)
}

func GatewayUpstreamError(id string, statusCode int) *ServiceError {
	return New(ErrCodeHTTPStatus, "upstream returned an error status", http.StatusBadGateway).
		WithDetails("endpoint_id", id).WithDetails("status", statusCode)
}

// Vault constructors

func CredentialUnknown(name string) *ServiceError {
	return New(ErrCodeCredentialUnknown, "credential handle unknown or revoked", http.StatusNotFound).WithDetails("credential", name)
}

func CredentialSealed() *ServiceError {
	return New(ErrCodeCredentialSealed, "credential values cannot leave the vault boundary", http.StatusForbidden)
}

func Normalized(name string) *ServiceError {
	return New(ErrCodeNormalized, "credential value was normalized before sealing", http.StatusOK).WithDetails("credential", name)
}

// Codec constructors

func IncompatibleVersion(got, want int) *ServiceError {
	return New(ErrCodeIncompatibleVersion, "export version is incompatible", http.StatusConflict).
		WithDetails("got", got).WithDetails("want", want)
}

func MalformedExport(reason string) *ServiceError {
	return New(ErrCodeMalformedExport, "export payload is malformed", http.StatusBadRequest).WithDetails("reason", reason)
}

// Helper functions

func IsServiceError(err error) bool {
	var serviceErr *ServiceError
	return errors.As(err, &serviceErr)
}

func GetServiceError(err error) *ServiceError {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr
	}
	return nil
}

func GetHTTPStatus(err error) int {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.HTTPStatus
	}
	return http.StatusInternalServerError
}
