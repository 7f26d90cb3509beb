package httpclient

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// maxRedirectHops bounds redirect chains regardless of the redirection
// handler, matching net/http's default policy.
const maxRedirectHops = 10

// Transport performs the wire transfer of a resolved request. The task
// pipeline never talks to net/http directly; tests substitute a mock.
type Transport interface {
	// FetchBody sends req and reads the whole response body into memory.
	FetchBody(ctx context.Context, req *http.Request) ([]byte, *http.Response, error)

	// DownloadToFile sends req and streams the response body into a new
	// file, returning its path. The caller owns the file.
	DownloadToFile(ctx context.Context, req *http.Request) (string, *http.Response, error)
}

// Delegate receives the transport's callbacks. Each callback carries the
// wire request it belongs to; a Client routes them to the owning task
// through its Registry.
type Delegate interface {
	// WillPerformRedirection returns the request to send for a redirect,
	// or nil to stop and return the redirect response.
	WillPerformRedirection(ctx context.Context, next *http.Request, via []*http.Request) *http.Request

	// WillCacheResponse returns the entry to store, or nil to store nothing.
	WillCacheResponse(ctx context.Context, req *http.Request, proposed *CachedResponse) *CachedResponse

	// DidUpdateProgress reports the bytes received so far. total is -1
	// when the length is unknown.
	DidUpdateProgress(req *http.Request, completed, total int64)

	// DidFinishCollectingMetrics delivers the timing of a finished call.
	DidFinishCollectingMetrics(req *http.Request, m *TaskMetrics)
}

// delegateSetter is implemented by transports that report callbacks.
type delegateSetter interface {
	SetDelegate(d Delegate)
}

// HTTPTransport is the net/http implementation of Transport. Every wire
// attempt goes through the instrumented round tripper stack:
// OpenTelemetry, circuit breaker, rate limiter, chaos, then the base
// transport.
type HTTPTransport struct {
	client *http.Client
	cache  ResponseCache
	cfg    *internalConfig
	logger zerolog.Logger

	mu       sync.RWMutex
	delegate Delegate
}

var (
	_ Transport      = (*HTTPTransport)(nil)
	_ delegateSetter = (*HTTPTransport)(nil)
)

// NewHTTPTransport creates an HTTPTransport. Only the transport related
// options (Config, TLS, proxy, telemetry, breaker, rate limit, chaos,
// cache, round tripper) have an effect.
func NewHTTPTransport(opts ...Option) *HTTPTransport {
	return newHTTPTransport(newConfig(opts...))
}

func newHTTPTransport(cfg *internalConfig) *HTTPTransport {
	var rt http.RoundTripper
	if cfg.RoundTripper != nil {
		rt = cfg.RoundTripper
	} else {
		rt = cfg.buildTransport()
	}
	rt = newChaosTransport(rt, cfg.ChaosConfig)
	rt = newRateLimitTransport(rt, cfg.RateLimitConfig)
	rt = newBreakerTransport(rt, cfg)
	rt = newOtelTransport(rt, cfg)

	t := &HTTPTransport{
		cache:  cfg.ResponseCache,
		cfg:    cfg,
		logger: cfg.Logger,
	}
	t.client = &http.Client{
		Transport:     rt,
		Timeout:       cfg.httpConfig.Timeout,
		CheckRedirect: t.checkRedirect,
	}
	return t
}

// SetDelegate sets the receiver of transport callbacks.
func (t *HTTPTransport) SetDelegate(d Delegate) {
	t.mu.Lock()
	t.delegate = d
	t.mu.Unlock()
}

func (t *HTTPTransport) currentDelegate() Delegate {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.delegate
}

// PoolStats reports the connection pool settings of the base transport.
func (t *HTTPTransport) PoolStats() PoolStats {
	return poolStats(t.client.Transport)
}

// RateLimitStats reports the limiter serving host. ok is false when rate
// limiting is disabled.
func (t *HTTPTransport) RateLimitStats(host string) (stats RateLimiterStats, ok bool) {
	rl := rateLimiterOf(t.client.Transport)
	if rl == nil {
		return RateLimiterStats{}, false
	}
	return rl.Stats(host), true
}

// FetchBody implements Transport.
func (t *HTTPTransport) FetchBody(ctx context.Context, req *http.Request) ([]byte, *http.Response, error) {
	opts := transferOptionsFrom(ctx)
	start := time.Now()
	nt := &networkTrace{}
	ctx = withNetworkTrace(ctx, nt)
	req = req.WithContext(ctx)

	body, resp, err := t.lookupCache(ctx, req, opts.cachePolicy)
	if err != nil {
		return nil, nil, err
	}
	if resp != nil {
		m := nt.taskMetrics(start, int64(len(body)))
		m.FromCache = true
		t.finishMetrics(req, m)
		return body, resp, nil
	}

	resp, err = t.client.Do(req)
	if err != nil {
		t.finishMetrics(req, nt.taskMetrics(start, 0))
		return nil, nil, err
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	n, err := copyChunked(ctx, &buf, resp.Body, opts.bufferSize, opts.gate, t.progress(req, resp.ContentLength))
	t.finishMetrics(req, nt.taskMetrics(start, n))
	if err != nil {
		return nil, resp, err
	}

	body = buf.Bytes()
	t.storeCache(ctx, req, resp, body)
	return body, resp, nil
}

// DownloadToFile implements Transport. The file is created in the
// configured download directory and removed again when the transfer fails.
func (t *HTTPTransport) DownloadToFile(ctx context.Context, req *http.Request) (string, *http.Response, error) {
	opts := transferOptionsFrom(ctx)
	start := time.Now()
	nt := &networkTrace{}
	ctx = withNetworkTrace(ctx, nt)
	req = req.WithContext(ctx)

	resp, err := t.client.Do(req)
	if err != nil {
		t.finishMetrics(req, nt.taskMetrics(start, 0))
		return "", nil, err
	}
	defer resp.Body.Close()

	dir := opts.downloadDir
	if dir == "" {
		dir = os.TempDir()
	}
	f, err := os.CreateTemp(dir, "httpclient-download-*"+path.Ext(req.URL.Path))
	if err != nil {
		return "", resp, err
	}

	n, err := copyChunked(ctx, f, resp.Body, opts.bufferSize, opts.gate, t.progress(req, resp.ContentLength))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	t.finishMetrics(req, nt.taskMetrics(start, n))
	if err != nil {
		_ = os.Remove(f.Name())
		return "", resp, err
	}
	return f.Name(), resp, nil
}

func (t *HTTPTransport) checkRedirect(next *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirectHops {
		return ErrTooManyRedirects
	}

	if d := t.currentDelegate(); d != nil {
		out := d.WillPerformRedirection(next.Context(), next, via)
		if out == nil {
			return http.ErrUseLastResponse
		}
		if out != next {
			next.Method = out.Method
			next.URL = out.URL
			next.Host = out.Host
			next.Header = out.Header.Clone()
		}
	}

	if nt := networkTraceFrom(next.Context()); nt != nil {
		nt.recordRedirect()
	}
	return nil
}

// lookupCache serves req from the response cache according to policy. It
// returns a nil response when the request must go to the network.
func (t *HTTPTransport) lookupCache(
	ctx context.Context,
	req *http.Request,
	policy CachePolicy,
) ([]byte, *http.Response, error) {
	if policy == ReloadIgnoringCache || req.Method != http.MethodGet {
		return nil, nil, nil
	}

	var entry *CachedResponse
	if t.cache != nil {
		var err error
		entry, err = t.cache.Get(ctx, cacheKey(req))
		if err != nil {
			t.logger.Warn().Err(err).Str("url", req.URL.String()).Msg("response cache lookup failed")
			entry = nil
		}
	}

	result := "hit"
	switch {
	case entry == nil, !entry.Matches(req):
		result = "miss"
		entry = nil
	case policy == UseProtocolCachePolicy && !entry.Fresh(time.Now()):
		result = "stale"
		entry = nil
	}
	if t.cache != nil {
		t.cfg.Metrics.recordCacheLookup(ctx, result, t.cfg.baseAttributes())
	}

	if entry == nil {
		if policy == ReturnCacheDontLoad {
			return nil, nil, ErrCacheMiss
		}
		return nil, nil, nil
	}
	return entry.Body, entry.toResponse(req), nil
}

func (t *HTTPTransport) storeCache(ctx context.Context, req *http.Request, resp *http.Response, body []byte) {
	if t.cache == nil {
		return
	}
	proposed := cacheableResponse(req, resp, body, time.Now())
	if proposed == nil {
		return
	}
	if d := t.currentDelegate(); d != nil {
		if proposed = d.WillCacheResponse(ctx, req, proposed); proposed == nil {
			return
		}
	}
	if err := t.cache.Set(ctx, cacheKey(req), proposed); err != nil {
		t.logger.Warn().Err(err).Str("url", req.URL.String()).Msg("response cache store failed")
	}
}

func (t *HTTPTransport) progress(req *http.Request, total int64) func(int64) {
	d := t.currentDelegate()
	if d == nil {
		return nil
	}
	return func(completed int64) {
		d.DidUpdateProgress(req, completed, total)
	}
}

func (t *HTTPTransport) finishMetrics(req *http.Request, m *TaskMetrics) {
	if d := t.currentDelegate(); d != nil {
		d.DidFinishCollectingMetrics(req, m)
	}
}
