package trader

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorCategory classifies exchange failures for retry and alerting
// decisions.
type ErrorCategory int

const (
	ErrCategoryUnknown ErrorCategory = iota
	ErrCategoryNetwork
	ErrCategoryRateLimit
	ErrCategoryAuth
	ErrCategoryInsufficientBalance
	ErrCategoryValidation
	ErrCategoryExchange
)

func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryNetwork:
		return "network"
	case ErrCategoryRateLimit:
		return "rate_limit"
	case ErrCategoryAuth:
		return "auth"
	case ErrCategoryInsufficientBalance:
		return "insufficient_balance"
	case ErrCategoryValidation:
		return "validation"
	case ErrCategoryExchange:
		return "exchange"
	}
	return "unknown"
}

// ExchangeError wraps an exchange API failure with its category and the raw
// exchange code so callers can gate retries on transient failures only.
type ExchangeError struct {
	Category   ErrorCategory
	Code       string
	Message    string
	HTTPStatus int
	RetryAfter time.Duration
	Err        error
}

func (e *ExchangeError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("exchange error [%s] code=%s: %s", e.Category, e.Code, e.Message)
	}
	return fmt.Sprintf("exchange error [%s]: %s", e.Category, e.Message)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// NewNetworkError wraps a transport-level failure.
func NewNetworkError(err error) *ExchangeError {
	return &ExchangeError{
		Category: ErrCategoryNetwork,
		Message:  err.Error(),
		Err:      err,
	}
}

// okxErrorCategories maps OKX business codes to categories. Unlisted codes
// fall through to ErrCategoryExchange.
var okxErrorCategories = map[string]ErrorCategory{
	"50004": ErrCategoryAuth,
	"50005": ErrCategoryAuth,
	"50011": ErrCategoryAuth,
	"50013": ErrCategoryAuth,
	"50026": ErrCategoryRateLimit,
	"51008": ErrCategoryInsufficientBalance,
	"50001": ErrCategoryValidation,
	"50000": ErrCategoryExchange,
}

// ClassifyOKXError builds an ExchangeError from an OKX response code. An
// HTTP 429 is a rate limit regardless of the business code.
func ClassifyOKXError(code, msg string, httpStatus int) *ExchangeError {
	category, ok := okxErrorCategories[code]
	if !ok {
		category = ErrCategoryExchange
	}
	if httpStatus == http.StatusTooManyRequests {
		category = ErrCategoryRateLimit
	}

	e := &ExchangeError{
		Category:   category,
		Code:       code,
		Message:    msg,
		HTTPStatus: httpStatus,
	}
	if category == ErrCategoryRateLimit {
		e.RetryAfter = 2 * time.Second
	}
	return e
}

// IsRetryable reports whether the error is transient. Only network failures
// and rate limits qualify; auth, balance, and validation errors never do.
func IsRetryable(err error) bool {
	var exchErr *ExchangeError
	if errors.As(err, &exchErr) {
		return exchErr.Category == ErrCategoryNetwork || exchErr.Category == ErrCategoryRateLimit
	}
	return false
}
