package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindNotFound           Kind = "NOT_FOUND"
	KindUnauthorized       Kind = "UNAUTHORIZED"
	KindInvalidState       Kind = "INVALID_STATE"
	KindInsufficientStock  Kind = "INSUFFICIENT_STOCK"
	KindTransactionFailure Kind = "TRANSACTION_FAILURE"
)

// Error is the error surfaced to callers of the reservation core.
// Message is human readable and names the offending entity.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error {
	return newf(KindNotFound, format, args...)
}

func Unauthorized(format string, args ...any) error {
	return newf(KindUnauthorized, format, args...)
}

func InvalidState(format string, args ...any) error {
	return newf(KindInvalidState, format, args...)
}

func InsufficientStock(format string, args ...any) error {
	return newf(KindInsufficientStock, format, args...)
}

// TransactionFailure wraps an infrastructure error or an exhausted retry budget.
func TransactionFailure(err error) error {
	return &Error{Kind: KindTransactionFailure, Message: "transaction failed", Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsDomain reports whether err is a business rule violation. Those abort a
// transaction immediately and are never retried.
func IsDomain(err error) bool {
	switch KindOf(err) {
	case KindNotFound, KindUnauthorized, KindInvalidState, KindInsufficientStock:
		return true
	}
	return false
}

// HTTPStatus maps a kind to the status code category used by the presentation layer.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindInvalidState, KindInsufficientStock:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
