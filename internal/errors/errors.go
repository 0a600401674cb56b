// Package errors implements the discriminated application error taxonomy
// used across the pipeline core. Every stage and the orchestrator surface
// failures as *AppError so callers get a stable Type, an HTTP-shaped
// StatusCode, and a safe, user-presentable message.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorType discriminates the kind of failure that occurred.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeDatabase   ErrorType = "database"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeAuth       ErrorType = "auth"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeConflict   ErrorType = "conflict"
	ErrorTypeInternal   ErrorType = "internal"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeRateLimit  ErrorType = "rate_limit"

	// Pipeline-specific error kinds.
	ErrorTypeInputInvalid          ErrorType = "input_invalid"
	ErrorTypeLLMUnavailable        ErrorType = "llm_unavailable"
	ErrorTypeLLMMalformed          ErrorType = "llm_malformed"
	ErrorTypeTokenBudgetExceeded   ErrorType = "token_budget_exceeded"
	ErrorTypeAssetNotFound         ErrorType = "asset_not_found"
	ErrorTypeAssetServiceDegraded  ErrorType = "asset_service_degraded"
	ErrorTypeCatalogMiss           ErrorType = "catalog_miss"
	ErrorTypePlanInvalid           ErrorType = "plan_invalid"
	ErrorTypeExecutionFailed       ErrorType = "execution_failed"
	ErrorTypeDeadlineExceeded      ErrorType = "deadline_exceeded"
	ErrorTypeCancelled             ErrorType = "cancelled"
	ErrorTypeInsufficientConfidence ErrorType = "insufficient_confidence"
	ErrorTypeCircuitOpen           ErrorType = "circuit_open"
)

var statusByType = map[ErrorType]int{
	ErrorTypeValidation:             http.StatusBadRequest,
	ErrorTypeAuth:                   http.StatusUnauthorized,
	ErrorTypeNotFound:               http.StatusNotFound,
	ErrorTypeConflict:               http.StatusConflict,
	ErrorTypeTimeout:                http.StatusRequestTimeout,
	ErrorTypeRateLimit:              http.StatusTooManyRequests,
	ErrorTypeDatabase:               http.StatusInternalServerError,
	ErrorTypeNetwork:                http.StatusInternalServerError,
	ErrorTypeInternal:               http.StatusInternalServerError,
	ErrorTypeInputInvalid:           http.StatusBadRequest,
	ErrorTypeLLMUnavailable:         http.StatusServiceUnavailable,
	ErrorTypeLLMMalformed:           http.StatusBadGateway,
	ErrorTypeTokenBudgetExceeded:    http.StatusRequestEntityTooLarge,
	ErrorTypeAssetNotFound:          http.StatusNotFound,
	ErrorTypeAssetServiceDegraded:   http.StatusServiceUnavailable,
	ErrorTypeCatalogMiss:            http.StatusUnprocessableEntity,
	ErrorTypePlanInvalid:            http.StatusUnprocessableEntity,
	ErrorTypeExecutionFailed:        http.StatusBadGateway,
	ErrorTypeDeadlineExceeded:       http.StatusGatewayTimeout,
	ErrorTypeCancelled:              http.StatusRequestTimeout,
	ErrorTypeInsufficientConfidence: http.StatusUnprocessableEntity,
	ErrorTypeCircuitOpen:            http.StatusServiceUnavailable,
}

// AppError is the structured error carried across stage boundaries.
type AppError struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Details    string
	Cause      error
}

func New(t ErrorType, message string) *AppError {
	return &AppError{
		Type:       t,
		Message:    message,
		StatusCode: statusCodeFor(t),
	}
}

func statusCodeFor(t ErrorType) int {
	if code, ok := statusByType[t]; ok {
		return code
	}
	return http.StatusInternalServerError
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithDetailsf(format string, args ...interface{}) *AppError {
	e.Details = fmt.Sprintf(format, args...)
	return e
}

func Wrap(cause error, t ErrorType, message string) *AppError {
	return &AppError{
		Type:       t,
		Message:    message,
		StatusCode: statusCodeFor(t),
		Cause:      cause,
	}
}

func Wrapf(cause error, t ErrorType, format string, args ...interface{}) *AppError {
	return Wrap(cause, t, fmt.Sprintf(format, args...))
}

// Predefined constructors mirroring the most common failure shapes.

func NewValidationError(message string) *AppError {
	return New(ErrorTypeValidation, message)
}

func NewDatabaseError(operation string, cause error) *AppError {
	return Wrapf(cause, ErrorTypeDatabase, "database operation failed: %s", operation)
}

func NewNotFoundError(resource string) *AppError {
	return New(ErrorTypeNotFound, fmt.Sprintf("%s not found", resource))
}

func NewAuthError(message string) *AppError {
	return New(ErrorTypeAuth, message)
}

func NewTimeoutError(operation string) *AppError {
	return New(ErrorTypeTimeout, fmt.Sprintf("operation timed out: %s", operation))
}

func NewInputInvalidError(message string) *AppError {
	return New(ErrorTypeInputInvalid, message)
}

func NewLLMUnavailableError(cause error) *AppError {
	return Wrap(cause, ErrorTypeLLMUnavailable, "language model endpoint unavailable")
}

func NewLLMMalformedError(message string) *AppError {
	return New(ErrorTypeLLMMalformed, message)
}

func NewTokenBudgetExceededError(promptTokens, budget int) *AppError {
	return New(ErrorTypeTokenBudgetExceeded, "prompt exceeds token budget").
		WithDetailsf("prompt_tokens=%d budget=%d", promptTokens, budget)
}

func NewAssetNotFoundError(target string) *AppError {
	return New(ErrorTypeAssetNotFound, fmt.Sprintf("%s is not in the asset database", target))
}

func NewCatalogMissError(toolName string) *AppError {
	return New(ErrorTypeCatalogMiss, fmt.Sprintf("tool %q is not present in the catalog", toolName))
}

func NewPlanInvalidError(message string) *AppError {
	return New(ErrorTypePlanInvalid, message)
}

func NewInsufficientConfidenceError(attempts int) *AppError {
	return New(ErrorTypeInsufficientConfidence, "unable to reach sufficient confidence after clarification").
		WithDetailsf("attempts=%d", attempts)
}

func NewCircuitOpenError(name string) *AppError {
	return New(ErrorTypeCircuitOpen, fmt.Sprintf("circuit %q is open", name))
}

// IsType reports whether err is an *AppError of the given type.
func IsType(err error, t ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == t
	}
	return false
}

// GetType returns the error's type, or ErrorTypeInternal for non-AppErrors.
func GetType(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeInternal
}

// GetStatusCode returns the error's HTTP-shaped status, or 500 by default.
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

// ErrorMessages holds the fixed, credential-free strings shown to end users
// for error types whose internal Message may contain sensitive detail.
var ErrorMessages = struct {
	ResourceNotFound       string
	AuthenticationFailed   string
	OperationTimeout       string
	RateLimitExceeded      string
	ConcurrentModification string
}{
	ResourceNotFound:       "The requested resource could not be found",
	AuthenticationFailed:   "Authentication failed",
	OperationTimeout:       "The operation timed out",
	RateLimitExceeded:      "Too many requests, please try again later",
	ConcurrentModification: "The resource was modified concurrently, please retry",
}

// SafeErrorMessage returns a message safe to show an end user: for
// validation errors the original message passes through (it is assumed to
// already be user-facing); for everything else a fixed, generic string is
// returned so internals never leak.
func SafeErrorMessage(err error) string {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return "An unexpected error occurred"
	}
	switch appErr.Type {
	case ErrorTypeValidation, ErrorTypeInputInvalid:
		return appErr.Message
	case ErrorTypeNotFound, ErrorTypeAssetNotFound:
		return ErrorMessages.ResourceNotFound
	case ErrorTypeAuth:
		return ErrorMessages.AuthenticationFailed
	case ErrorTypeTimeout, ErrorTypeDeadlineExceeded:
		return ErrorMessages.OperationTimeout
	case ErrorTypeRateLimit:
		return ErrorMessages.RateLimitExceeded
	case ErrorTypeConflict:
		return ErrorMessages.ConcurrentModification
	default:
		return "An internal error occurred"
	}
}

// LogFields renders err into a structured map suitable for zap.Any-style
// attachment to a log line.
func LogFields(err error) map[string]interface{} {
	fields := map[string]interface{}{
		"error": err.Error(),
	}
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return fields
	}
	fields["error_type"] = string(appErr.Type)
	fields["status_code"] = appErr.StatusCode
	if appErr.Details != "" {
		fields["error_details"] = appErr.Details
	}
	if appErr.Cause != nil {
		fields["underlying_error"] = appErr.Cause.Error()
	}
	return fields
}

// Chain joins a set of errors (nils filtered) with " -> ", returning nil if
// none are non-nil and the bare error if exactly one is.
func Chain(errs ...error) error {
	var msgs []string
	var nonNil []error
	for _, e := range errs {
		if e == nil {
			continue
		}
		nonNil = append(nonNil, e)
		msgs = append(msgs, e.Error())
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		return errors.New(strings.Join(msgs, " -> "))
	}
}
