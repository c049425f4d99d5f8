package model

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Sentinels wrapped by the constructors below; match with errors.Is.
var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrUpstreamError  = errors.New("upstream error")
	ErrRateLimited    = errors.New("rate limited")
)

// APIError is a failure reported by the cart API, or one the local API
// reports to its callers. Code and Message are safe to show to clients.
type APIError struct {
	Code       string        `json:"code"`
	Message    string        `json:"message"`
	StatusCode int           `json:"-"`
	RetryAfter time.Duration `json:"-"` // Server-advised delay on 429, zero when unknown
	Err        error         `json:"-"`
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying the same request may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// RetryHint reports whether err is worth retrying and, for rate limits,
// how long the server asked us to wait.
func RetryHint(err error) (retry bool, after time.Duration) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.Temporary() {
		return false, 0
	}
	if errors.Is(err, ErrRateLimited) {
		return true, apiErr.RetryAfter
	}
	return true, 0
}

func newAPIError(status int, code, message string, err error) *APIError {
	return &APIError{Code: code, Message: message, StatusCode: status, Err: err}
}

// NewNotFoundError reports a missing line item, product or snapshot.
func NewNotFoundError(resource string) *APIError {
	return newAPIError(http.StatusNotFound, "NOT_FOUND", resource+" not found", ErrNotFound)
}

// NewValidationError reports a rejected input field.
func NewValidationError(field, reason string) *APIError {
	return newAPIError(http.StatusBadRequest, "VALIDATION_ERROR",
		fmt.Sprintf("invalid %s: %s", field, reason), ErrInvalidRequest)
}

// NewUnauthorizedError reports rejected cart API credentials.
func NewUnauthorizedError(reason string) *APIError {
	return newAPIError(http.StatusUnauthorized, "UNAUTHORIZED", reason, ErrUnauthorized)
}

// NewUpstreamError reports a cart API or catalog call that failed.
func NewUpstreamError(service string, err error) *APIError {
	return newAPIError(http.StatusBadGateway, "UPSTREAM_ERROR",
		service+" request failed", fmt.Errorf("%w: %v", ErrUpstreamError, err))
}

// NewInternalError hides err behind a generic message.
func NewInternalError(err error) *APIError {
	return newAPIError(http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred", err)
}

// NewRateLimitError reports a 429. retryAfter is zero when the server gave
// no hint.
func NewRateLimitError(service string, retryAfter time.Duration) *APIError {
	e := newAPIError(http.StatusTooManyRequests, "RATE_LIMITED",
		service+" rate limit exceeded, please retry later", ErrRateLimited)
	e.RetryAfter = retryAfter
	return e
}
