// Package apperrors defines the tagged error taxonomy shared by the ledger
// and transfer packages. Transport codes are assigned only at the HTTP
// boundary (src/utils).
package apperrors

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindForbidden
	KindConflict
	KindInsufficientFunds
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindUpstream:
		return "upstream"
	default:
		return "unknown"
	}
}

// Error is a tagged error. Code is a stable machine-readable identifier
// (e.g. "RECIPIENT_NOT_FOUND"); Msg is the user-facing message.
type Error struct {
	Kind Kind
	Code string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(code, msg string) *Error {
	return &Error{Kind: KindValidation, Code: code, Msg: msg}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Code: "NOT_FOUND", Msg: msg}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Code: "FORBIDDEN", Msg: msg}
}

func Conflict(code, msg string) *Error {
	return &Error{Kind: KindConflict, Code: code, Msg: msg}
}

func Upstream(msg string, err error) *Error {
	return &Error{Kind: KindUpstream, Code: "UPSTREAM", Msg: msg, Err: err}
}

// InsufficientFunds carries the current balance and the requested amount
// (both integer cents) for user-facing messaging.
type InsufficientFunds struct {
	Balance   int64
	Requested int64
	Msg       string
}

func (e *InsufficientFunds) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return fmt.Sprintf("insufficient funds: balance %d, requested %d", e.Balance, e.Requested)
}

// KindOf reports the taxonomy kind of err, or KindUnknown.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	var fundsErr *InsufficientFunds
	if errors.As(err, &fundsErr) {
		return KindInsufficientFunds
	}
	return KindUnknown
}

// CodeOf reports the stable error code of err, or "".
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	var fundsErr *InsufficientFunds
	if errors.As(err, &fundsErr) {
		return "INSUFFICIENT_FUNDS"
	}
	return ""
}
