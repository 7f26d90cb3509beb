package httpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http/httptrace"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Error type classifications for the error.type attribute.
const (
	ErrorTypeTimeout           = "timeout"
	ErrorTypeConnectionRefused = "connection_refused"
	ErrorTypeDNSError          = "dns_error"
	ErrorTypeTLSError          = "tls_error"
	ErrorTypeCancelled         = "cancelled"
	ErrorTypeConnectionReset   = "connection_reset"
	ErrorTypeEOF               = "eof"
	ErrorTypeRateLimited       = "rate_limited"
	ErrorTypeCircuitOpen       = "circuit_open"
	ErrorTypeUnknown           = "unknown"
)

// TaskMetrics is the timing breakdown of one task attempt, delivered to the
// task when the transport finishes the call.
type TaskMetrics struct {
	// Start is when the transport began the call.
	Start time.Time

	// Duration is the whole call, body transfer included.
	Duration time.Duration

	DNSLookup       time.Duration
	Connect         time.Duration
	TLSHandshake    time.Duration
	TimeToFirstByte time.Duration

	// ConnReused is true when the last hop used a pooled connection.
	ConnReused bool

	// RemoteAddr is the peer of the last hop.
	RemoteAddr string

	// Protocol is the ALPN protocol negotiated by TLS, if any.
	Protocol string

	// RedirectCount is the number of redirects followed.
	RedirectCount int

	// BytesReceived counts body bytes read.
	BytesReceived int64

	// FromCache is true when the response came from the response cache.
	FromCache bool
}

// networkTrace holds timing data collected from httptrace.ClientTrace.
// Dial hooks may fire on other goroutines, so every field is behind mu.
type networkTrace struct {
	mu sync.Mutex

	dnsStart time.Time
	dnsDone  time.Time

	connectStart time.Time
	connectDone  time.Time

	tlsStart time.Time
	tlsDone  time.Time

	gotConnTime       time.Time
	wroteRequestTime  time.Time
	firstResponseTime time.Time

	connReused  bool
	connRemote  string
	connIdle    bool
	protocolVer string

	dnsAddrs []string

	redirects int
}

type networkTraceKey struct{}

func withNetworkTrace(ctx context.Context, nt *networkTrace) context.Context {
	ctx = context.WithValue(ctx, networkTraceKey{}, nt)
	return httptrace.WithClientTrace(ctx, createClientTrace(nt))
}

func networkTraceFrom(ctx context.Context) *networkTrace {
	nt, _ := ctx.Value(networkTraceKey{}).(*networkTrace)
	return nt
}

// createClientTrace creates an httptrace.ClientTrace that populates networkTrace.
func createClientTrace(nt *networkTrace) *httptrace.ClientTrace {
	at := func(f func(now time.Time)) {
		now := time.Now()
		nt.mu.Lock()
		f(now)
		nt.mu.Unlock()
	}
	return &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			at(func(now time.Time) {
				nt.gotConnTime = now
				nt.connReused = info.Reused
				nt.connIdle = info.WasIdle
				if info.Conn != nil {
					if addr := info.Conn.RemoteAddr(); addr != nil {
						nt.connRemote = addr.String()
					}
				}
			})
		},
		DNSStart: func(_ httptrace.DNSStartInfo) {
			at(func(now time.Time) { nt.dnsStart = now })
		},
		DNSDone: func(info httptrace.DNSDoneInfo) {
			at(func(now time.Time) {
				nt.dnsDone = now
				nt.dnsAddrs = nt.dnsAddrs[:0]
				for _, addr := range info.Addrs {
					nt.dnsAddrs = append(nt.dnsAddrs, addr.String())
				}
			})
		},
		ConnectStart: func(_, _ string) {
			at(func(now time.Time) { nt.connectStart = now })
		},
		ConnectDone: func(_, _ string, _ error) {
			at(func(now time.Time) { nt.connectDone = now })
		},
		TLSHandshakeStart: func() {
			at(func(now time.Time) { nt.tlsStart = now })
		},
		TLSHandshakeDone: func(state tls.ConnectionState, _ error) {
			at(func(now time.Time) {
				nt.tlsDone = now
				nt.protocolVer = state.NegotiatedProtocol
			})
		},
		WroteRequest: func(_ httptrace.WroteRequestInfo) {
			at(func(now time.Time) { nt.wroteRequestTime = now })
		},
		GotFirstResponseByte: func() {
			at(func(now time.Time) { nt.firstResponseTime = now })
		},
	}
}

func (nt *networkTrace) recordRedirect() {
	nt.mu.Lock()
	nt.redirects++
	nt.mu.Unlock()
}

func elapsed(start, end time.Time) time.Duration {
	if start.IsZero() || end.IsZero() {
		return 0
	}
	return end.Sub(start)
}

// taskMetrics snapshots the trace into a TaskMetrics.
func (nt *networkTrace) taskMetrics(start time.Time, received int64) *TaskMetrics {
	nt.mu.Lock()
	defer nt.mu.Unlock()
	return &TaskMetrics{
		Start:           start,
		Duration:        time.Since(start),
		DNSLookup:       elapsed(nt.dnsStart, nt.dnsDone),
		Connect:         elapsed(nt.connectStart, nt.connectDone),
		TLSHandshake:    elapsed(nt.tlsStart, nt.tlsDone),
		TimeToFirstByte: elapsed(nt.wroteRequestTime, nt.firstResponseTime),
		ConnReused:      nt.connReused,
		RemoteAddr:      nt.connRemote,
		Protocol:        nt.protocolVer,
		RedirectCount:   nt.redirects,
		BytesReceived:   received,
	}
}

// addTraceEvents adds span events for network timing.
func (nt *networkTrace) addTraceEvents(s trace.Span) {
	nt.mu.Lock()
	defer nt.mu.Unlock()

	if d := elapsed(nt.dnsStart, nt.dnsDone); d > 0 {
		s.AddEvent("dns.start", trace.WithTimestamp(nt.dnsStart))
		s.AddEvent("dns.done", trace.WithTimestamp(nt.dnsDone),
			trace.WithAttributes(
				attribute.Float64("dns.duration_ms", float64(d.Milliseconds())),
				attribute.StringSlice("dns.addresses", nt.dnsAddrs),
			))
	}

	if d := elapsed(nt.connectStart, nt.connectDone); d > 0 {
		s.AddEvent("connect.start", trace.WithTimestamp(nt.connectStart))
		s.AddEvent("connect.done", trace.WithTimestamp(nt.connectDone),
			trace.WithAttributes(
				attribute.Float64("connect.duration_ms", float64(d.Milliseconds())),
			))
	}

	if d := elapsed(nt.tlsStart, nt.tlsDone); d > 0 {
		s.AddEvent("tls.start", trace.WithTimestamp(nt.tlsStart))
		s.AddEvent("tls.done", trace.WithTimestamp(nt.tlsDone),
			trace.WithAttributes(
				attribute.Float64("tls.duration_ms", float64(d.Milliseconds())),
				attribute.String("tls.protocol", nt.protocolVer),
			))
	}

	if !nt.gotConnTime.IsZero() {
		s.AddEvent("got_conn", trace.WithTimestamp(nt.gotConnTime),
			trace.WithAttributes(
				attribute.Bool("connection.reused", nt.connReused),
				attribute.Bool("connection.was_idle", nt.connIdle),
				attribute.String("network.peer.address", nt.connRemote),
			))
	}

	if !nt.wroteRequestTime.IsZero() {
		s.AddEvent("wrote_request", trace.WithTimestamp(nt.wroteRequestTime))
	}

	if !nt.firstResponseTime.IsZero() {
		ttfb := elapsed(nt.wroteRequestTime, nt.firstResponseTime)
		s.AddEvent("got_first_response_byte", trace.WithTimestamp(nt.firstResponseTime),
			trace.WithAttributes(
				attribute.Float64("ttfb_ms", float64(ttfb.Milliseconds())),
			))
	}
}

// recordTimingMetrics records network timing metrics.
func (nt *networkTrace) recordTimingMetrics(
	ctx context.Context,
	m *metrics,
	attrs []attribute.KeyValue,
) {
	if m == nil {
		return
	}
	nt.mu.Lock()
	defer nt.mu.Unlock()

	if !nt.connReused && !nt.connectStart.IsZero() {
		m.recordConnectionOpened(ctx, attrs)
	}
	if d := elapsed(nt.dnsStart, nt.dnsDone); d > 0 {
		m.recordDNSDuration(ctx, d, attrs)
	}
	if d := elapsed(nt.connectStart, nt.connectDone); d > 0 {
		m.recordConnectionDuration(ctx, d, attrs)
	}
	if d := elapsed(nt.tlsStart, nt.tlsDone); d > 0 {
		m.recordTLSDuration(ctx, d, attrs)
	}
	if d := elapsed(nt.wroteRequestTime, nt.firstResponseTime); d > 0 {
		m.recordTTFB(ctx, d, attrs)
	}
}

// classifyError returns an error.type classification for the given error.
func classifyError(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.Canceled) {
		return ErrorTypeCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTimeout
	}
	if errors.Is(err, ErrRateLimited) {
		return ErrorTypeRateLimited
	}
	if errors.Is(err, ErrCircuitOpen) {
		return ErrorTypeCircuitOpen
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorTypeTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrorTypeDNSError
	}

	var tlsRecordErr *tls.RecordHeaderError
	if errors.As(err, &tlsRecordErr) {
		return ErrorTypeTLSError
	}
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return ErrorTypeTLSError
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return ErrorTypeConnectionRefused
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return ErrorTypeConnectionReset
	}
	if errors.Is(err, io.EOF) {
		return ErrorTypeEOF
	}

	// Fallback for wrapped errors that lost their type.
	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "timeout"):
		return ErrorTypeTimeout
	case strings.Contains(errStr, "connection refused"):
		return ErrorTypeConnectionRefused
	case strings.Contains(errStr, "connection reset"):
		return ErrorTypeConnectionReset
	case strings.Contains(errStr, "no such host"), strings.Contains(errStr, "dns"):
		return ErrorTypeDNSError
	case strings.Contains(errStr, "tls"), strings.Contains(errStr, "certificate"),
		strings.Contains(errStr, "x509"):
		return ErrorTypeTLSError
	case strings.Contains(errStr, "eof"):
		return ErrorTypeEOF
	}
	return ErrorTypeUnknown
}

// errorTypeFromStatusCode returns error.type for HTTP status codes.
// Per OTel semconv, the status code itself is used as the error type for 4xx/5xx.
func errorTypeFromStatusCode(statusCode int) string {
	if statusCode >= 400 {
		return strconv.Itoa(statusCode)
	}
	return ""
}

// setSpanError records an error on the span with proper status and attributes.
func setSpanError(s trace.Span, err error, errorType string) {
	s.RecordError(err)
	s.SetStatus(codes.Error, err.Error())
	if errorType != "" {
		s.SetAttributes(attribute.String("error.type", errorType))
	}
}
