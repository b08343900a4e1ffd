// Package apperrors defines the error taxonomy shared by the lifecycle engine,
// the persistence gateway and the provider clients.
//
// Callers branch on the kind with errors.Is against the sentinel values:
//
//	if errors.Is(err, apperrors.ErrAlreadyUsed) { ... }
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an Error.
type Kind string

const (
	KindUnknownPlan         Kind = "unknown_plan"
	KindAlreadyUsed         Kind = "already_used"
	KindPaymentNotConfirmed Kind = "payment_not_confirmed"
	KindProviderUnavailable Kind = "provider_unavailable"
	KindNotFound            Kind = "not_found"
	KindConflict            Kind = "conflict"
)

// Error is an application error carrying a Kind, a human readable message and
// an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same Kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrUnknownPlan         = &Error{Kind: KindUnknownPlan}
	ErrAlreadyUsed         = &Error{Kind: KindAlreadyUsed}
	ErrPaymentNotConfirmed = &Error{Kind: KindPaymentNotConfirmed}
	ErrProviderUnavailable = &Error{Kind: KindProviderUnavailable}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrConflict            = &Error{Kind: KindConflict}
)

func UnknownPlan(planID string) *Error {
	return &Error{Kind: KindUnknownPlan, Message: fmt.Sprintf("plan %q does not exist", planID)}
}

func AlreadyUsed(message string) *Error {
	return &Error{Kind: KindAlreadyUsed, Message: message}
}

// PaymentNotConfirmed reports the provider status that blocked confirmation.
func PaymentNotConfirmed(paymentID, status string) *Error {
	return &Error{Kind: KindPaymentNotConfirmed, Message: fmt.Sprintf("payment %s is %s", paymentID, status)}
}

func ProviderUnavailable(provider string, err error) *Error {
	return &Error{Kind: KindProviderUnavailable, Message: provider, Err: err}
}

func NotFound(entity string, id any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %v not found", entity, id)}
}

func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// KindOf returns the Kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// HTTPStatus maps an error to the response code used by the HTTP surface.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindUnknownPlan:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindAlreadyUsed, KindConflict:
		return http.StatusConflict
	case KindPaymentNotConfirmed:
		return http.StatusAccepted
	case KindProviderUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
