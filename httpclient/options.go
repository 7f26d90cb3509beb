package httpclient

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	// scope is the instrumentation scope name for OpenTelemetry.
	scope = "github.com/kroma-labs/courier-go/httpclient"
)

// =============================================================================
// Config - HTTP Transport Configuration
// =============================================================================

// Config holds the net/http transport settings of an HTTPTransport.
// Start from DefaultConfig or one of the presets and adjust fields:
//
//	cfg := httpclient.DefaultConfig()
//	cfg.Timeout = 5 * time.Second
//	client := httpclient.New(httpclient.WithConfig(cfg))
type Config struct {
	// Timeout bounds one wire call including redirects and the body
	// transfer. Zero means no limit. TimeoutKey bounds a whole attempt.
	//
	// Default: 15s
	Timeout time.Duration

	// MaxIdleConns is the idle pool size across all hosts.
	//
	// Default: 100
	MaxIdleConns int

	// MaxIdleConnsPerHost is the idle pool size per host. This is usually
	// the setting that matters when calling one downstream service.
	//
	// Default: 20
	MaxIdleConnsPerHost int

	// MaxConnsPerHost limits idle plus active connections per host.
	// Zero means unlimited.
	//
	// Default: 100
	MaxConnsPerHost int

	// IdleConnTimeout closes idle connections after this long. Keep it
	// below the idle timeout of any load balancer in front of the server.
	//
	// Default: 90s
	IdleConnTimeout time.Duration

	// TLSHandshakeTimeout bounds the TLS handshake.
	//
	// Default: 10s
	TLSHandshakeTimeout time.Duration

	// ExpectContinueTimeout is how long to wait for "100 Continue".
	//
	// Default: 1s
	ExpectContinueTimeout time.Duration

	// ResponseHeaderTimeout bounds the wait for response headers once the
	// request is written. Zero relies on Timeout.
	ResponseHeaderTimeout time.Duration

	// DialTimeout bounds TCP connection setup.
	//
	// Default: 5s
	DialTimeout time.Duration

	// KeepAlive is the TCP keep-alive interval.
	//
	// Default: 30s
	KeepAlive time.Duration

	// FallbackDelay is the RFC 6555 Happy Eyeballs delay. Negative
	// disables it.
	//
	// Default: 300ms
	FallbackDelay time.Duration

	// WriteBufferSize and ReadBufferSize size the per-connection buffers.
	// They are unrelated to BufferSizeKey, which sizes body read chunks.
	//
	// Default: 64KB
	WriteBufferSize int
	ReadBufferSize  int

	// MaxResponseHeaderBytes limits response header size. Zero uses the
	// net/http default.
	MaxResponseHeaderBytes int64

	// DisableKeepAlives forces a new connection per request.
	DisableKeepAlives bool

	// DisableCompression stops net/http from requesting gzip.
	//
	// Default: true
	DisableCompression bool

	// ForceHTTP2 attempts HTTP/2 even with a custom dialer or TLS config.
	ForceHTTP2 bool
}

// DefaultConfig returns balanced settings for service to service calls.
func DefaultConfig() Config {
	return Config{
		Timeout: 15 * time.Second,

		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		MaxConnsPerHost:     100,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		DialTimeout:   5 * time.Second,
		KeepAlive:     30 * time.Second,
		FallbackDelay: 300 * time.Millisecond,

		WriteBufferSize: 64 * 1024,
		ReadBufferSize:  64 * 1024,

		DisableCompression: true,
	}
}

// HighThroughputConfig favours many concurrent calls to few hosts: a
// larger pool, unlimited connections per host and larger buffers.
func HighThroughputConfig() Config {
	cfg := DefaultConfig()
	cfg.Timeout = 30 * time.Second
	cfg.MaxIdleConns = 500
	cfg.MaxIdleConnsPerHost = 100
	cfg.MaxConnsPerHost = 0
	cfg.IdleConnTimeout = 120 * time.Second
	cfg.WriteBufferSize = 128 * 1024
	cfg.ReadBufferSize = 128 * 1024
	return cfg
}

// LowLatencyConfig fails fast: short dial, handshake and header timeouts
// and HTTP/2 when available.
func LowLatencyConfig() Config {
	cfg := DefaultConfig()
	cfg.Timeout = 5 * time.Second
	cfg.MaxIdleConns = 50
	cfg.MaxIdleConnsPerHost = 25
	cfg.MaxConnsPerHost = 50
	cfg.IdleConnTimeout = 60 * time.Second
	cfg.TLSHandshakeTimeout = 5 * time.Second
	cfg.ExpectContinueTimeout = 500 * time.Millisecond
	cfg.ResponseHeaderTimeout = 3 * time.Second
	cfg.DialTimeout = 2 * time.Second
	cfg.KeepAlive = 15 * time.Second
	cfg.FallbackDelay = 150 * time.Millisecond
	cfg.WriteBufferSize = 32 * 1024
	cfg.ReadBufferSize = 32 * 1024
	cfg.ForceHTTP2 = true
	return cfg
}

// ConservativeConfig keeps pools and buffers small, for constrained
// environments or processes holding many clients.
func ConservativeConfig() Config {
	cfg := DefaultConfig()
	cfg.Timeout = 10 * time.Second
	cfg.MaxIdleConns = 20
	cfg.MaxIdleConnsPerHost = 5
	cfg.MaxConnsPerHost = 20
	cfg.IdleConnTimeout = 30 * time.Second
	cfg.WriteBufferSize = 4 * 1024
	cfg.ReadBufferSize = 4 * 1024
	return cfg
}

// =============================================================================
// Internal Configuration
// =============================================================================

// internalConfig holds every client setting: the transport stack, the
// telemetry wiring and the base task configuration.
type internalConfig struct {
	httpConfig Config

	// === OpenTelemetry ===

	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
	Metrics        *metrics

	// ServiceName is added as "http.client.name" and names the breaker.
	ServiceName string

	// EnableNetworkTrace adds DNS, connect and TLS events to attempt spans.
	EnableNetworkTrace bool

	Filters            []Filter
	SpanNameFormatter  SpanNameFormatter
	SpanStartOptions   []trace.SpanStartOption
	MetricAttributesFn func(*http.Request) []attribute.KeyValue
	Propagators        propagation.TextMapPropagator
	ClientTrace        func(context.Context) *httptrace.ClientTrace

	// === Transport ===

	TLSConfig            *tls.Config
	ProxyURL             *url.URL
	ProxyFromEnvironment bool

	// RoundTripper replaces the base *http.Transport.
	RoundTripper http.RoundTripper

	// Transport replaces the whole HTTPTransport.
	Transport Transport

	ChaosConfig     *ChaosConfig
	RateLimitConfig *RateLimitConfig
	BreakerConfig   *BreakerConfig
	ResponseCache   ResponseCache

	// === Tasks ===

	// Configuration is the base bag copied into every task.
	Configuration Configuration

	// Coalescing merges identical in-flight GET fetches.
	Coalescing bool

	// GenerateCurl fills Response.CurlCommand.
	GenerateCurl bool

	Logger zerolog.Logger
}

// newConfig creates a config with defaults and applies options.
func newConfig(opts ...Option) *internalConfig {
	cfg := &internalConfig{
		httpConfig:     DefaultConfig(),
		TracerProvider: otel.GetTracerProvider(),
		MeterProvider:  otel.GetMeterProvider(),

		EnableNetworkTrace:   true,
		ProxyFromEnvironment: true,
		Logger:               defaultLogger,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	cfg.Tracer = cfg.TracerProvider.Tracer(scope)
	cfg.Meter = cfg.MeterProvider.Meter(scope)

	// Instruments that fail to register are left nil and skipped.
	cfg.Metrics, _ = newMetrics(cfg.Meter)

	return cfg
}

// buildTransport creates the base http.Transport from the configuration.
func (cfg *internalConfig) buildTransport() *http.Transport {
	hc := cfg.httpConfig

	dialer := &net.Dialer{
		Timeout:       hc.DialTimeout,
		KeepAlive:     hc.KeepAlive,
		FallbackDelay: hc.FallbackDelay,
	}

	transport := &http.Transport{
		DialContext:            dialer.DialContext,
		MaxIdleConns:           hc.MaxIdleConns,
		MaxIdleConnsPerHost:    hc.MaxIdleConnsPerHost,
		MaxConnsPerHost:        hc.MaxConnsPerHost,
		IdleConnTimeout:        hc.IdleConnTimeout,
		TLSHandshakeTimeout:    hc.TLSHandshakeTimeout,
		ResponseHeaderTimeout:  hc.ResponseHeaderTimeout,
		ExpectContinueTimeout:  hc.ExpectContinueTimeout,
		DisableKeepAlives:      hc.DisableKeepAlives,
		DisableCompression:     hc.DisableCompression,
		WriteBufferSize:        hc.WriteBufferSize,
		ReadBufferSize:         hc.ReadBufferSize,
		MaxResponseHeaderBytes: hc.MaxResponseHeaderBytes,
		TLSClientConfig:        cfg.TLSConfig,
		ForceAttemptHTTP2:      hc.ForceHTTP2,
	}

	if cfg.ProxyURL != nil {
		transport.Proxy = http.ProxyURL(cfg.ProxyURL)
	} else if cfg.ProxyFromEnvironment {
		transport.Proxy = http.ProxyFromEnvironment
	}

	return transport
}

// baseAttributes returns common attributes for all spans and metrics.
func (cfg *internalConfig) baseAttributes() []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 1)
	if cfg.ServiceName != "" {
		attrs = append(attrs, attribute.String("http.client.name", cfg.ServiceName))
	}
	return attrs
}

// =============================================================================
// Options - Functional Options for Client Configuration
// =============================================================================

// Filter reports whether a wire attempt is traced. All filters must agree.
type Filter func(r *http.Request) bool

// SpanNameFormatter names attempt spans. Default: "HTTP {method}".
type SpanNameFormatter func(method string, r *http.Request) string

// Option configures a Client or an HTTPTransport.
type Option func(*internalConfig)

// WithConfig sets the net/http transport settings.
func WithConfig(c Config) Option {
	return func(cfg *internalConfig) {
		cfg.httpConfig = c
	}
}

// WithServiceName names the client in spans, metrics and breaker logs.
//
//	client := httpclient.New(httpclient.WithServiceName("order-service"))
func WithServiceName(name string) Option {
	return func(cfg *internalConfig) {
		cfg.ServiceName = name
	}
}

// WithTracerProvider sets the TracerProvider. Default: the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *internalConfig) {
		cfg.TracerProvider = tp
	}
}

// WithMeterProvider sets the MeterProvider. Default: the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(cfg *internalConfig) {
		cfg.MeterProvider = mp
	}
}

// WithLogger sets the zerolog logger. Per-attempt logging also needs
// WithLogging(true).
func WithLogger(logger zerolog.Logger) Option {
	return func(cfg *internalConfig) {
		cfg.Logger = logger
	}
}

// WithTLSConfig sets the TLS configuration of the base transport.
func WithTLSConfig(tlsCfg *tls.Config) Option {
	return func(cfg *internalConfig) {
		cfg.TLSConfig = tlsCfg
	}
}

// WithProxyURL routes every request through proxyURL, ignoring the
// environment.
func WithProxyURL(proxyURL *url.URL) Option {
	return func(cfg *internalConfig) {
		cfg.ProxyURL = proxyURL
		cfg.ProxyFromEnvironment = false
	}
}

// WithProxyFromEnvironment toggles HTTP_PROXY, HTTPS_PROXY and NO_PROXY.
// Default: true
func WithProxyFromEnvironment(enabled bool) Option {
	return func(cfg *internalConfig) {
		cfg.ProxyFromEnvironment = enabled
	}
}

// WithDisableNetworkTrace drops the DNS, connect and TLS events from
// attempt spans. TaskMetrics are still collected.
func WithDisableNetworkTrace() Option {
	return func(cfg *internalConfig) {
		cfg.EnableNetworkTrace = false
	}
}

// WithFilter skips tracing for attempts f rejects.
//
//	httpclient.WithFilter(func(r *http.Request) bool {
//	    return !strings.HasPrefix(r.URL.Path, "/health")
//	})
func WithFilter(f Filter) Option {
	return func(cfg *internalConfig) {
		cfg.Filters = append(cfg.Filters, f)
	}
}

// WithSpanNameFormatter sets the attempt span name formatter.
func WithSpanNameFormatter(f SpanNameFormatter) Option {
	return func(cfg *internalConfig) {
		cfg.SpanNameFormatter = f
	}
}

// WithSpanOptions adds options to every attempt span.
func WithSpanOptions(opts ...trace.SpanStartOption) Option {
	return func(cfg *internalConfig) {
		cfg.SpanStartOptions = append(cfg.SpanStartOptions, opts...)
	}
}

// WithMetricAttributesFn adds per-request attributes to attempt metrics.
func WithMetricAttributesFn(f func(*http.Request) []attribute.KeyValue) Option {
	return func(cfg *internalConfig) {
		cfg.MetricAttributesFn = f
	}
}

// WithPropagators sets the propagator injected into outgoing headers.
// Default: W3C TraceContext and Baggage.
func WithPropagators(p propagation.TextMapPropagator) Option {
	return func(cfg *internalConfig) {
		cfg.Propagators = p
	}
}

// WithClientTrace replaces the built-in network tracing of attempt spans.
func WithClientTrace(f func(context.Context) *httptrace.ClientTrace) Option {
	return func(cfg *internalConfig) {
		cfg.ClientTrace = f
	}
}

// WithRoundTripper replaces the base *http.Transport. The telemetry,
// breaker, rate limit and chaos layers still wrap rt.
func WithRoundTripper(rt http.RoundTripper) Option {
	return func(cfg *internalConfig) {
		cfg.RoundTripper = rt
	}
}

// WithTransport replaces the HTTPTransport entirely. Transports that
// implement SetDelegate still receive the client's callbacks.
func WithTransport(t Transport) Option {
	return func(cfg *internalConfig) {
		cfg.Transport = t
	}
}

// WithChaos injects faults into wire attempts.
func WithChaos(c ChaosConfig) Option {
	return func(cfg *internalConfig) {
		cfg.ChaosConfig = &c
	}
}

// WithRateLimit limits the rate of wire attempts.
func WithRateLimit(rl RateLimitConfig) Option {
	return func(cfg *internalConfig) {
		cfg.RateLimitConfig = &rl
	}
}

// WithBreakerConfig guards wire attempts with a circuit breaker.
func WithBreakerConfig(bc BreakerConfig) Option {
	return func(cfg *internalConfig) {
		cfg.BreakerConfig = &bc
	}
}

// WithResponseCache stores cacheable GET responses in cache.
func WithResponseCache(cache ResponseCache) Option {
	return func(cfg *internalConfig) {
		cfg.ResponseCache = cache
	}
}

// WithCoalescing merges concurrent identical GET fetches of data tasks
// into one wire request.
func WithCoalescing() Option {
	return func(cfg *internalConfig) {
		cfg.Coalescing = true
	}
}

// WithGenerateCurl fills Response.CurlCommand with the last wire request,
// sensitive headers masked.
func WithGenerateCurl() Option {
	return func(cfg *internalConfig) {
		cfg.GenerateCurl = true
	}
}

// WithConfiguration overlays c onto the client's base configuration.
func WithConfiguration(c Configuration) Option {
	return func(cfg *internalConfig) {
		cfg.Configuration = cfg.Configuration.Merge(c)
	}
}

// WithValue sets one key of the client's base configuration.
func WithValue[T any](key Key[T], v T) Option {
	return func(cfg *internalConfig) {
		cfg.Configuration = With(cfg.Configuration, key, v)
	}
}

// WithBaseURL sets BaseURLKey.
func WithBaseURL(baseURL string) Option {
	return WithValue(BaseURLKey, baseURL)
}

// WithDefaultHeaders sets HeadersKey.
func WithDefaultHeaders(h http.Header) Option {
	return WithValue(HeadersKey, h.Clone())
}

// WithAttemptTimeout sets TimeoutKey.
func WithAttemptTimeout(d time.Duration) Option {
	return WithValue(TimeoutKey, d)
}

// WithInterceptor sets InterceptorKey. Several interceptors can be
// combined with ChainInterceptors.
func WithInterceptor(i Interceptor) Option {
	return WithValue(InterceptorKey, i)
}

// WithAuthenticator sets AuthenticatorKey.
func WithAuthenticator(a Authenticator) Option {
	return WithValue(AuthenticatorKey, a)
}

// WithStatusValidator sets StatusValidatorKey.
func WithStatusValidator(v StatusValidator) Option {
	return WithValue(StatusValidatorKey, v)
}

// WithRetryPolicy sets RetryPolicyKey.
func WithRetryPolicy(p RetryPolicy) Option {
	return WithValue(RetryPolicyKey, p)
}

// WithRetryConfig sets RetryPolicyKey from a RetryConfig.
//
//	client := httpclient.New(httpclient.WithRetryConfig(httpclient.AggressiveRetryConfig()))
func WithRetryConfig(rc RetryConfig) Option {
	return func(cfg *internalConfig) {
		if !rc.IsEnabled() {
			cfg.Configuration = Without(cfg.Configuration, RetryPolicyKey)
			return
		}
		cfg.Configuration = With[RetryPolicy](cfg.Configuration, RetryPolicyKey, rc.Policy())
	}
}

// WithRedirectionHandler sets RedirectionHandlerKey.
func WithRedirectionHandler(h RedirectionHandler) Option {
	return WithValue(RedirectionHandlerKey, h)
}

// WithCacheHandler sets CacheHandlerKey.
func WithCacheHandler(h CacheHandler) Option {
	return WithValue(CacheHandlerKey, h)
}

// WithCachePolicy sets CachePolicyKey.
func WithCachePolicy(p CachePolicy) Option {
	return WithValue(CachePolicyKey, p)
}

// WithLogging sets LoggingKey.
func WithLogging(enabled bool) Option {
	return WithValue(LoggingKey, enabled)
}

// WithBufferSize sets BufferSizeKey.
func WithBufferSize(n int) Option {
	return WithValue(BufferSizeKey, n)
}

// WithDownloadDir sets DownloadDirKey.
func WithDownloadDir(dir string) Option {
	return WithValue(DownloadDirKey, dir)
}

// WithEncoder sets EncoderKey.
func WithEncoder(e Encoder) Option {
	return WithValue(EncoderKey, e)
}

// WithDecoder sets DecoderKey.
func WithDecoder(d Decoder) Option {
	return WithValue(DecoderKey, d)
}
