package service

import (
	"errors"
	"fmt"
)

// ErrorKind groups failures by how the caller should react
type ErrorKind string

const (
	KindValidation       ErrorKind = "validation"        // bad shape, unknown question/option; never retried
	KindAuthorization    ErrorKind = "authorization"     // closed window, consumed token, wrong tenant; never retried
	KindNotFound         ErrorKind = "not_found"         // survey or report missing
	KindConflict         ErrorKind = "conflict"          // lost a compare-and-set race
	KindStoreUnavailable ErrorKind = "store_unavailable" // transient; caller may retry
)

// Reason is the machine-readable rejection code returned to clients
type Reason string

const (
	ReasonInvalidBody        Reason = "invalid_body"
	ReasonUnknownQuestion    Reason = "unknown_question"
	ReasonDuplicateAnswer    Reason = "duplicate_answer"
	ReasonKindMismatch       Reason = "kind_mismatch"
	ReasonInvalidOption      Reason = "invalid_option"
	ReasonOutOfRange         Reason = "out_of_range"
	ReasonMissingRequired    Reason = "missing_required"
	ReasonTextTooLong        Reason = "text_too_long"
	ReasonInvalidScale       Reason = "invalid_scale"
	ReasonInvalidDefinition  Reason = "invalid_definition"
	ReasonUnauthorized       Reason = "unauthorized"
	ReasonWrongTenant        Reason = "wrong_tenant"
	ReasonSurveyNotActive    Reason = "survey_not_active"
	ReasonWindowClosed       Reason = "window_closed"
	ReasonInvitationInvalid  Reason = "invitation_invalid"
	ReasonInvitationConsumed Reason = "invitation_consumed"
	ReasonSurveyNotFound     Reason = "survey_not_found"
	ReasonReportNotFound     Reason = "report_not_found"
	ReasonInvalidTransition  Reason = "invalid_transition"
	ReasonStatusConflict     Reason = "status_conflict"
	ReasonStoreUnavailable   Reason = "store_unavailable"
	ReasonRateLimited        Reason = "rate_limited"
)

// Error is a classified service failure. Err, when set, is the underlying cause and is never
// shown to clients.
type Error struct {
	Kind    ErrorKind
	Reason  Reason
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Reason, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether resubmitting the same request may succeed
func (e *Error) Retryable() bool {
	return e.Kind == KindStoreUnavailable
}

func validationError(reason Reason, format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

func authorizationError(reason Reason, format string, args ...interface{}) *Error {
	return &Error{Kind: KindAuthorization, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

func notFoundError(reason Reason, format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

func conflictError(reason Reason, format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// storeUnavailable hides err behind a generic message
func storeUnavailable(err error) *Error {
	return &Error{
		Kind:    KindStoreUnavailable,
		Reason:  ReasonStoreUnavailable,
		Message: "temporarily unavailable, try again",
		Err:     err,
	}
}

// KindOf returns the kind of a classified error, or "" for anything else
func KindOf(err error) ErrorKind {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Kind
	}
	return ""
}

// ReasonOf returns the reason of a classified error, or "" for anything else
func ReasonOf(err error) Reason {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Reason
	}
	return ""
}
