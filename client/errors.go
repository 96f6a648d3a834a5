package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors. Every error returned by the client matches exactly one of
// them through errors.Is, except context cancellation which is returned as is.
var (
	// ErrConfig reports a missing or malformed {base}/config.json or client configuration.
	ErrConfig = errors.New("hulybridge: configuration error")
	// ErrAuthenticationFailed reports a rejected login or workspace selection.
	ErrAuthenticationFailed = errors.New("hulybridge: authentication failed")
	// ErrNotAuthenticated reports an operation that needs an account id the session lacks.
	ErrNotAuthenticated = errors.New("hulybridge: not authenticated")
	// ErrInvalidURL reports an unusable base, endpoint or template URL.
	ErrInvalidURL = errors.New("hulybridge: invalid url")
	// ErrInvalidInput reports caller arguments that fail validation.
	ErrInvalidInput = errors.New("hulybridge: invalid input")
	// ErrNotFound reports an expected resource that does not exist.
	ErrNotFound = errors.New("hulybridge: not found")
	// ErrRequestFailed reports a non-2xx REST response. See *APIError.
	ErrRequestFailed = errors.New("hulybridge: request failed")
	// ErrInvalidResponse reports a response body that could not be decoded. See *DecodeError.
	ErrInvalidResponse = errors.New("hulybridge: invalid response")
	// ErrNotConnected reports a socket operation attempted before the handshake completed.
	ErrNotConnected = errors.New("hulybridge: socket not connected")
	// ErrConnectionClosed reports a socket closed before a response was observed.
	ErrConnectionClosed = errors.New("hulybridge: socket connection closed")
	// ErrTimeout reports a handshake or transaction that was not answered in time.
	ErrTimeout = errors.New("hulybridge: timeout")
	// ErrServer reports an application-level rejection. See *ServerError.
	ErrServer = errors.New("hulybridge: server error")
)

// APIError describes a non-2xx response from the platform.
type APIError struct {
	// Method is the HTTP method of the failed request.
	Method string
	// URL is the request URL without query string.
	URL string
	// Status is the HTTP status code returned by the server.
	Status int
	// Body contains the raw response body bytes for diagnostics.
	Body []byte
}

func (e *APIError) Error() string {
	detail := strings.TrimSpace(string(e.Body))
	if len(detail) > 256 {
		detail = detail[:256] + "..."
	}
	if detail == "" {
		detail = http.StatusText(e.Status)
	}
	return fmt.Sprintf("hulybridge: %s %s: status %d: %s", e.Method, e.URL, e.Status, detail)
}

// Unwrap makes errors.Is(err, ErrRequestFailed) hold.
func (e *APIError) Unwrap() error { return ErrRequestFailed }

// AuthError describes a failed authentication step.
type AuthError struct {
	// Step is "login" or "selectWorkspace".
	Step string
	// Code is the server-reported error code, when present.
	Code string
	// Message is the server-reported message, when present.
	Message string
	// Err is the underlying transport or decode failure, when present.
	Err error
}

func (e *AuthError) Error() string {
	var b strings.Builder
	b.WriteString("hulybridge: authentication failed at ")
	b.WriteString(e.Step)
	if e.Code != "" {
		b.WriteString(": ")
		b.WriteString(e.Code)
	}
	if e.Message != "" {
		b.WriteString(" (")
		b.WriteString(e.Message)
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes ErrAuthenticationFailed and the underlying cause.
func (e *AuthError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrAuthenticationFailed}
	}
	return []error{ErrAuthenticationFailed, e.Err}
}

// ServerError is an error object reported by the server for a transaction.
type ServerError struct {
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("hulybridge: server error %s", e.Code)
	}
	return fmt.Sprintf("hulybridge: server error %s: %s", e.Code, e.Message)
}

// Unwrap makes errors.Is(err, ErrServer) hold.
func (e *ServerError) Unwrap() error { return ErrServer }

// DecodeError names the response field that failed to decode.
type DecodeError struct {
	// Path locates the field, e.g. "value[2].modifiedOn". Empty means the document root.
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	path := e.Path
	if path == "" {
		path = "$"
	}
	return fmt.Sprintf("hulybridge: decode response at %s: %v", path, e.Err)
}

// Unwrap exposes ErrInvalidResponse and the underlying cause.
func (e *DecodeError) Unwrap() []error { return []error{ErrInvalidResponse, e.Err} }

// Stable error codes reported by ErrorCode.
const (
	CodeConfig               = "config_error"
	CodeAuthenticationFailed = "authentication_failed"
	CodeNotAuthenticated     = "not_authenticated"
	CodeInvalidURL           = "invalid_url"
	CodeInvalidInput         = "invalid_input"
	CodeNotFound             = "not_found"
	CodeRequestFailed        = "request_failed"
	CodeInvalidResponse      = "invalid_response"
	CodeNotConnected         = "not_connected"
	CodeConnectionClosed     = "connection_closed"
	CodeTimeout              = "timeout"
	CodeServerError          = "server_error"
	CodeCanceled             = "canceled"
	CodeInternal             = "internal_error"
)

var codeTable = []struct {
	err  error
	code string
}{
	{ErrConfig, CodeConfig},
	{ErrAuthenticationFailed, CodeAuthenticationFailed},
	{ErrNotAuthenticated, CodeNotAuthenticated},
	{ErrInvalidURL, CodeInvalidURL},
	{ErrInvalidInput, CodeInvalidInput},
	{ErrNotFound, CodeNotFound},
	{ErrRequestFailed, CodeRequestFailed},
	{ErrInvalidResponse, CodeInvalidResponse},
	{ErrNotConnected, CodeNotConnected},
	{ErrConnectionClosed, CodeConnectionClosed},
	{ErrTimeout, CodeTimeout},
	{ErrServer, CodeServerError},
}

// ErrorCode maps err to its stable string code. nil maps to "".
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, entry := range codeTable {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, context.Canceled):
		return CodeCanceled
	}
	return CodeInternal
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func notFound(kind, id string) error {
	return fmt.Errorf("%w: %s %q", ErrNotFound, kind, id)
}
