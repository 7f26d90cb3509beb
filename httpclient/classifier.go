package httpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"syscall"
)

// TransientErrorHandler is a RetryHandler that only lets transient failures
// through.
//
// Retries:
//   - Responses (the status was already checked by the policy)
//   - Network errors (timeout, connection refused or reset, EOF)
//
// Vetoes:
//   - Cancellation and deadline expiry
//   - Permanent errors (TLS certificate errors, NXDOMAIN, permission denied)
//   - Resolution and decoding errors
func TransientErrorHandler(_ int, status int, err error) bool {
	if status != 0 {
		return true
	}
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	switch KindOf(err) {
	case KindResolution, KindDecoding, KindCancelled:
		return false
	}
	if isPermanentError(err) {
		return false
	}
	return true
}

// NeverRetryHandler vetoes every retry.
func NeverRetryHandler(int, int, error) bool {
	return false
}

// StatusCodeHandler only allows retries for the given status codes.
// Status-less failures are allowed when they look transient.
//
// Example:
//
//	policy := &httpclient.DefaultRetryPolicy{
//	    MaxRetries: 3,
//	    Retryable:  httpclient.StatusRange(500, 599),
//	    Handler:    httpclient.StatusCodeHandler(500, 503),
//	}
func StatusCodeHandler(codes ...int) RetryHandler {
	set := NewStatusSet(codes...)
	return func(_ int, status int, err error) bool {
		if status != 0 {
			return set.Contains(status)
		}
		return err != nil && isRetryableNetworkError(err) && !isPermanentError(err)
	}
}

// isRetryableNetworkError returns true for network errors that are
// typically transient and may succeed on retry.
func isRetryableNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, io.EOF) ||
		errors.Is(err, ErrChaosInjected) {
		return true
	}

	return containsPattern(err,
		"connection refused",
		"connection reset",
		"network is down",
		"network unreachable",
		"i/o timeout",
		"temporary failure",
		"server closed",
		"broken pipe",
		"eof",
	)
}

// isPermanentError returns true for errors that will not succeed on retry.
func isPermanentError(err error) bool {
	if err == nil {
		return false
	}

	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return true
	}

	if errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EHOSTDOWN) {
		return true
	}

	return containsPattern(err,
		"x509:",
		"certificate",
		"tls:",
		"protocol error",
		"no route to host",
		"permission denied",
	)
}

// containsPattern is a fallback for wrapped errors where type checks fail.
func containsPattern(err error, patterns ...string) bool {
	msg := strings.ToLower(err.Error())
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
