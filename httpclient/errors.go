package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// ErrorKind classifies the errors surfaced by a task.
type ErrorKind int

const (
	// KindUnknown is reported by KindOf for errors not produced by this package.
	KindUnknown ErrorKind = iota

	// KindResolution means the declared request could not be turned into a
	// wire request (bad URL, missing base URL, body encoding failure).
	KindResolution

	// KindTransport means the transport failed before a response was
	// available (connection, DNS, TLS, timeouts, rate limiting, open breaker).
	KindTransport

	// KindCancelled means the task was cancelled, either explicitly or
	// through its context.
	KindCancelled

	// KindUnacceptableStatus means a response arrived with a status code
	// outside the accepted set.
	KindUnacceptableStatus

	// KindUnauthorized means the server answered 401.
	KindUnauthorized

	// KindDecoding means the response body could not be decoded.
	KindDecoding

	// KindCustom wraps any other error, typically raised by an interceptor
	// or a user supplied hook.
	KindCustom
)

// String returns the lower-case name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindResolution:
		return "resolution"
	case KindTransport:
		return "transport"
	case KindCancelled:
		return "cancelled"
	case KindUnacceptableStatus:
		return "unacceptable_status"
	case KindUnauthorized:
		return "unauthorized"
	case KindDecoding:
		return "decoding"
	case KindCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// Error is the error type returned by tasks.
//
// Use errors.Is against the exported sentinels to test the kind:
//
//	resp, err := task.Response(ctx)
//	if errors.Is(err, httpclient.ErrUnauthorized) {
//	    // re-authenticate
//	}
//
// or errors.As to reach the status code and body of a status error:
//
//	var herr *httpclient.Error
//	if errors.As(err, &herr) && herr.Kind == httpclient.KindUnacceptableStatus {
//	    log.Printf("status %d: %s", herr.StatusCode, herr.Body)
//	}
type Error struct {
	// Kind classifies the failure.
	Kind ErrorKind

	// StatusCode is the HTTP status when the failure came from a response.
	// Zero when no response was received.
	StatusCode int

	// Body holds the response body for status errors, when it was read.
	Body []byte

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := "httpclient: " + e.Kind.String()
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a sentinel of the same kind.
// Sentinels are *Error values with no status code and no cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.StatusCode != 0 || t.Err != nil {
		return t == e
	}
	return t.Kind == e.Kind
}

// Kind sentinels. Match them with errors.Is.
var (
	ErrResolution         = &Error{Kind: KindResolution}
	ErrTransport          = &Error{Kind: KindTransport}
	ErrCancelled          = &Error{Kind: KindCancelled}
	ErrUnacceptableStatus = &Error{Kind: KindUnacceptableStatus}
	ErrUnauthorized       = &Error{Kind: KindUnauthorized}
	ErrDecoding           = &Error{Kind: KindDecoding}
	ErrCustom             = &Error{Kind: KindCustom}
)

// Leaf errors wrapped by the kinds above.
var (
	// ErrMissingBaseURL is returned when a relative path is resolved
	// without a base URL in the configuration.
	ErrMissingBaseURL = errors.New("httpclient: relative path requires a base URL")

	// ErrCacheMiss is returned by ReturnCacheDontLoad when nothing is cached.
	ErrCacheMiss = errors.New("httpclient: no cached response")

	// ErrTooManyRedirects is returned when the default redirect limit is hit.
	ErrTooManyRedirects = errors.New("httpclient: stopped after too many redirects")
)

// KindOf returns the kind of err, or KindUnknown when err is not an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsCancelled reports whether err is a cancellation, either as a task
// error or as a bare context cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}

func resolutionError(err error) error {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindResolution {
		return err
	}
	return &Error{Kind: KindResolution, Err: err}
}

func cancelledError(cause error) error {
	if cause == nil {
		cause = context.Canceled
	}
	return &Error{Kind: KindCancelled, Err: cause}
}

func statusError(kind ErrorKind, status int, body []byte) error {
	return &Error{Kind: kind, StatusCode: status, Body: body}
}

func decodingError(status int, err error) error {
	return &Error{Kind: KindDecoding, StatusCode: status, Err: err}
}

// wrapError normalises an arbitrary error into an *Error. Errors already
// carrying a kind pass through; cancellations become KindCancelled and
// everything else becomes KindCustom.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return cancelledError(err)
	}
	return &Error{Kind: KindCustom, Err: err}
}

// transportError maps an error returned by a Transport. Cancellation wins,
// then transport-level failures, then the generic wrapping.
func transportError(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return cancelledError(err)
	}
	if isTransportFailure(err) {
		return &Error{Kind: KindTransport, Err: err}
	}
	return &Error{Kind: KindCustom, Err: err}
}

func isTransportFailure(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrChaosInjected) ||
		errors.Is(err, ErrCircuitOpen) ||
		errors.Is(err, ErrCacheMiss) ||
		errors.Is(err, ErrTooManyRedirects)
}
