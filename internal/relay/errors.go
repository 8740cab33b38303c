package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies relay failures by what the caller can do about them.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindConfiguration     Kind = "configuration"
	KindProviderRejection Kind = "provider_rejection"
	KindTransport         Kind = "transport"
)

// Error codes produced by the relay itself rather than a provider.
const (
	CodeMissingResult      = "missing-result"
	CodeUnrecognizedStatus = "unrecognized-status"
	CodeProviderError      = "provider-error"
	CodeInvalidInput       = "invalid-input"
	CodeMissingCredential  = "missing-credential"
)

// Error is the structured error surfaced by Submit, Poll and AwaitCompletion.
type Error struct {
	Kind       Kind
	Provider   string
	Code       string
	Message    string
	Suggestion string
	TraceID    string
	// HTTPStatus is the status the provider answered with, zero when the
	// request never got a response.
	HTTPStatus int
	// Transient marks provider rejections that are worth retrying, such as rate
	// limiting or vendor-side server errors.
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Provider != "" {
		if e.Code != "" {
			return fmt.Sprintf("%s %s [%s]: %s", e.Provider, e.Kind, e.Code, msg)
		}
		return fmt.Sprintf("%s %s: %s", e.Provider, e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the same call may succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTransport:
		return true
	case KindProviderRejection:
		return e.Transient || e.HTTPStatus >= http.StatusInternalServerError || e.HTTPStatus == http.StatusTooManyRequests
	}
	return false
}

// TaskError returns the (code, message, suggestion) triple for a failure snapshot.
func (e *Error) TaskError() *TaskError {
	code := e.Code
	if code == "" {
		code = CodeProviderError
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return &TaskError{Code: code, Message: msg, Suggestion: e.Suggestion}
}

// NewValidationError reports malformed caller input.
func NewValidationError(format string, args ...any) *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    CodeInvalidInput,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewConfigurationError reports a deployment problem such as a missing API key.
func NewConfigurationError(provider, message string) *Error {
	return &Error{
		Kind:       KindConfiguration,
		Provider:   provider,
		Code:       CodeMissingCredential,
		Message:    message,
		Suggestion: "Set the provider API key in the server configuration and restart.",
	}
}

// NewRejection reports a structured error answered by the provider.
func NewRejection(provider, code, message, suggestion, traceID string, httpStatus int) *Error {
	return &Error{
		Kind:       KindProviderRejection,
		Provider:   provider,
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
		TraceID:    traceID,
		HTTPStatus: httpStatus,
	}
}

// NewTransportError wraps a network failure or an unreadable provider response.
func NewTransportError(provider, op string, err error) *Error {
	return &Error{
		Kind:     KindTransport,
		Provider: provider,
		Code:     CodeProviderError,
		Message:  fmt.Sprintf("failed to %s", op),
		Err:      err,
	}
}

// AsError extracts a *Error from err.
func AsError(err error) (*Error, bool) {
	var re *Error
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// IsRetryable is the retry classifier used by the relay.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if re, ok := AsError(err); ok {
		return re.Retryable()
	}
	return false
}

// IsKind reports whether err is a relay error of the given kind.
func IsKind(err error, kind Kind) bool {
	re, ok := AsError(err)
	return ok && re.Kind == kind
}
