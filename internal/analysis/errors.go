package analysis

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// ErrorKind categorizes a failed analysis call.
type ErrorKind string

const (
	ErrEmptyResponse     ErrorKind = "empty_response"
	ErrMalformedResponse ErrorKind = "malformed_response"
	ErrSchemaViolation   ErrorKind = "schema_violation"
	ErrInvalidCredential ErrorKind = "invalid_credential"
	ErrPayloadTooLarge   ErrorKind = "payload_too_large"
	ErrGeneric           ErrorKind = "generic"
)

var userMessages = map[ErrorKind]string{
	ErrEmptyResponse:     "Received an empty response from the AI model.",
	ErrMalformedResponse: "The AI model returned a response that could not be parsed. Please try again.",
	ErrSchemaViolation:   "The AI model returned an incomplete analysis. Please try again.",
	ErrInvalidCredential: "The provided API Key is invalid. Please ensure it is configured correctly.",
	ErrPayloadTooLarge:   "The uploaded file is too large. Please use a smaller file.",
	ErrGeneric:           "An unexpected error occurred while communicating with the AI model.",
}

// Message returns the user-facing text for the kind.
func (k ErrorKind) Message() string {
	if msg, ok := userMessages[k]; ok {
		return msg
	}
	return userMessages[ErrGeneric]
}

// Error is returned by every Service method on failure. Message is safe to
// show to users; Cause carries the underlying detail for logs.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func newError(kind ErrorKind, cause error) *Error {
	return &Error{Kind: kind, Message: kind.Message(), Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches another *Error of the same kind, so callers can write
// errors.Is(err, &analysis.Error{Kind: analysis.ErrSchemaViolation}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// UserMessage extracts the display text from err, falling back to the
// generic message for errors that did not come from this package.
func UserMessage(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	return ErrGeneric.Message()
}

// classifyTransport maps a model-call failure to an ErrorKind.
func classifyTransport(err error) ErrorKind {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrGeneric
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case strings.Contains(apiErr.Message, "API key not valid"):
			return ErrInvalidCredential
		case apiErr.Code == http.StatusRequestEntityTooLarge,
			strings.Contains(apiErr.Message, "Request payload size exceeds the limit"):
			return ErrPayloadTooLarge
		}
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "API key not valid"):
		return ErrInvalidCredential
	case strings.Contains(msg, "Request payload size exceeds the limit"):
		return ErrPayloadTooLarge
	}
	return ErrGeneric
}

// classifyDecode maps a decodeStrict failure to an ErrorKind.
func classifyDecode(err error) ErrorKind {
	var ve *ViolationError
	if errors.As(err, &ve) {
		return ErrSchemaViolation
	}
	return ErrMalformedResponse
}
