// Package apperrors defines the typed error used across the service and its
// mapping onto machine codes and HTTP status codes.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure independently of its transport mapping.
type Kind string

const (
	KindQuotaExceeded          Kind = "QuotaExceeded"
	KindPlatformLimitExceeded  Kind = "PlatformLimitExceeded"
	KindContentTypeNotAllowed  Kind = "ContentTypeNotAllowed"
	KindSchedulingNotAllowed   Kind = "SchedulingNotAllowed"
	KindPlatformNotConnected   Kind = "PlatformNotConnected"
	KindInvalidStateTransition Kind = "InvalidStateTransition"
	KindDependencyUnavailable  Kind = "DependencyUnavailable"
	KindValidation             Kind = "Validation"
	KindUnauthorized           Kind = "Unauthorized"
	KindForbidden              Kind = "Forbidden"
	KindNotFound               Kind = "NotFound"
	KindRateLimited            Kind = "RateLimited"
	KindInternal               Kind = "Internal"
)

// Machine codes returned to clients.
const (
	CodeForbidden          = "FORBIDDEN"
	CodeNotFound           = "NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeValidation         = "VALIDATION_ERROR"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeRateLimited        = "RATE_LIMITED"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeInternal           = "INTERNAL_ERROR"
)

// AppError carries a client-safe message plus the wrapped cause.
type AppError struct {
	Code       string `json:"code"`
	Kind       Kind   `json:"kind"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Internal
}

func newErr(kind Kind, code string, status int, message string) *AppError {
	return &AppError{Code: code, Kind: kind, Message: message, StatusCode: status}
}

func QuotaExceeded(limit int, tier string) *AppError {
	return newErr(KindQuotaExceeded, CodeForbidden, http.StatusForbidden,
		fmt.Sprintf("Daily post limit of %d reached for your %s plan. Upgrade to post more.", limit, tier))
}

func PlatformLimitExceeded(limit int, tier string) *AppError {
	return newErr(KindPlatformLimitExceeded, CodeForbidden, http.StatusForbidden,
		fmt.Sprintf("Your %s plan allows up to %d platforms per post.", tier, limit))
}

func ContentTypeNotAllowed(contentType, tier string) *AppError {
	return newErr(KindContentTypeNotAllowed, CodeForbidden, http.StatusForbidden,
		fmt.Sprintf("Content type %q is not available on your %s plan.", contentType, tier))
}

func SchedulingNotAllowed() *AppError {
	return newErr(KindSchedulingNotAllowed, CodeForbidden, http.StatusForbidden,
		"Scheduling is not available on the Trial plan. Upgrade to Pro or Ultra Pro.")
}

func PlatformNotConnected(platform string) *AppError {
	return newErr(KindPlatformNotConnected, CodeForbidden, http.StatusForbidden,
		fmt.Sprintf("Connect your %s account before posting to it.", platform))
}

// PostNotFound covers both a missing post and one owned by another user.
func PostNotFound() *AppError {
	return newErr(KindInvalidStateTransition, CodeNotFound, http.StatusNotFound, "Post not found")
}

func InvalidStateTransition(message string) *AppError {
	return newErr(KindInvalidStateTransition, CodeConflict, http.StatusConflict, message)
}

func DependencyUnavailable(message string, err error) *AppError {
	e := newErr(KindDependencyUnavailable, CodeServiceUnavailable, http.StatusServiceUnavailable, message)
	e.Internal = err
	return e
}

func Validation(message string) *AppError {
	return newErr(KindValidation, CodeValidation, http.StatusBadRequest, message)
}

func Unauthorized(message string) *AppError {
	return newErr(KindUnauthorized, CodeUnauthorized, http.StatusUnauthorized, message)
}

func Forbidden(message string) *AppError {
	return newErr(KindForbidden, CodeForbidden, http.StatusForbidden, message)
}

func NotFound(resource string) *AppError {
	return newErr(KindNotFound, CodeNotFound, http.StatusNotFound, fmt.Sprintf("%s not found", resource))
}

func RateLimited(message string) *AppError {
	return newErr(KindRateLimited, CodeRateLimited, http.StatusTooManyRequests, message)
}

func Internal(message string, err error) *AppError {
	e := newErr(KindInternal, CodeInternal, http.StatusInternalServerError, message)
	e.Internal = err
	return e
}

// As returns the first AppError in err's chain.
func As(err error) (*AppError, bool) {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// KindOf reports the kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	if ae, ok := As(err); ok {
		return ae.Kind
	}
	return KindInternal
}

// IsEntitlementDenial reports whether the kind is one of the tier gates.
func IsEntitlementDenial(k Kind) bool {
	switch k {
	case KindQuotaExceeded, KindPlatformLimitExceeded, KindContentTypeNotAllowed,
		KindSchedulingNotAllowed, KindPlatformNotConnected:
		return true
	}
	return false
}
