// Package envelope turns tool failures into bounded, JSON-serializable
// objects. Nothing that leaves a tool boundary carries a raw cause, an HTTP
// response or an unbounded body.
package envelope

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a recoverable tool failure.
type Kind string

const (
	KindLogin           Kind = "login"
	KindTransport       Kind = "transport"
	KindHTTPStatus      Kind = "http_status"
	KindDecode          Kind = "decode"
	KindMissingArgument Kind = "missing_argument"
)

const (
	// BodySnippetLength bounds the response body echoed back on HTTP failures.
	BodySnippetLength = 500
	// RawLength bounds the raw text echoed back when a body is not valid JSON.
	RawLength = 1000
)

// Error is a recoverable tool failure. Map renders it as the tool result.
type Error struct {
	Kind        Kind
	Message     string
	Status      string
	BodySnippet string
	Raw         *string

	// statusFields makes Map emit status/body_snippet even when empty.
	statusFields bool
	cause        error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Kind == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the cause for errors.Is/errors.As inside the process.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Map renders the error as {"error": ...} plus any optional fields.
func (e *Error) Map() map[string]any {
	m := map[string]any{"error": e.Message}
	if e.statusFields {
		m["status"] = nullable(e.Status)
		m["body_snippet"] = nullable(e.BodySnippet)
	}
	if e.Raw != nil {
		m["raw"] = *e.Raw
	}
	return m
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Login wraps any failure of the login handshake.
func Login(cause error) *Error {
	return &Error{
		Kind:    KindLogin,
		Message: "Login error: " + causeText(cause),
		cause:   cause,
	}
}

// Transport wraps a network failure while calling url.
func Transport(url string, cause error) *Error {
	return &Error{
		Kind:    KindTransport,
		Message: fmt.Sprintf("Error calling %s: %s", url, causeText(cause)),
		cause:   cause,
	}
}

// HTTPStatus describes a non-success response from url. statusLine is the
// compact "<code> <reason>" form.
func HTTPStatus(url, statusLine string, body []byte) *Error {
	statusLine = strings.TrimSpace(statusLine)
	return &Error{
		Kind:        KindHTTPStatus,
		Message:     fmt.Sprintf("Error calling %s: %s", url, statusLine),
		Status:      statusLine,
		BodySnippet: Truncate(string(body), BodySnippetLength),
	}
}

// Decode reports a body that is not valid JSON, echoing at most RawLength
// characters of it.
func Decode(raw []byte, cause error) *Error {
	text := Truncate(string(raw), RawLength)
	return &Error{
		Kind:    KindDecode,
		Message: "Respuesta no es JSON válido",
		Raw:     &text,
		cause:   cause,
	}
}

// MissingArgument reports a required argument that was not supplied.
func MissingArgument(message string) *Error {
	return &Error{Kind: KindMissingArgument, Message: message}
}

// WithStatusFields marks e so that Map always carries status and
// body_snippet, null when unknown.
func WithStatusFields(e *Error) *Error {
	if e != nil {
		e.statusFields = true
	}
	return e
}

// As extracts an *Error from err.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e, true
	}
	return nil, false
}

// From renders any error as an error object. Errors that are not *Error are
// reduced to their message.
func From(err error) map[string]any {
	if e, ok := As(err); ok {
		return e.Map()
	}
	return map[string]any{"error": causeText(err)}
}

// Truncate returns the first maxLen runes of s. It never splits a multi-byte
// UTF-8 character.
func Truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}

func causeText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

// ErrNotImplemented marks an operation that is declared but categorically
// unsupported. Unlike *Error it is meant to propagate to the caller as a
// permanent, non-retryable failure.
var ErrNotImplemented = errors.New("not implemented")
