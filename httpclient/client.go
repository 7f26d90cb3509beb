package httpclient

import (
	"context"
	"net/http"
)

// Client creates tasks for declared requests and routes the transport's
// callbacks to them. A Client is safe for concurrent use; create one per
// downstream service and reuse it.
//
//	client := httpclient.New(
//	    httpclient.WithBaseURL("https://api.example.com"),
//	    httpclient.WithServiceName("payment-service"),
//	    httpclient.WithRetryConfig(httpclient.DefaultRetryConfig()),
//	)
//
//	resp, err := client.Do(ctx, httpclient.NewEndpoint("CreatePayment").
//	    Method(http.MethodPost).
//	    Path("/payments").
//	    Body(payment))
type Client struct {
	cfg       *internalConfig
	transport Transport
	registry  *Registry
	coalescer *coalescer
}

// New creates a Client. Without WithTransport it sends requests through an
// HTTPTransport built from the same options.
//
// Example - custom authenticator and logging:
//
//	client := httpclient.New(
//	    httpclient.WithBaseURL("https://api.example.com"),
//	    httpclient.WithAuthenticator(httpclient.NewBearerAuthenticator(fetchToken, refreshToken)),
//	    httpclient.WithLogger(logger),
//	    httpclient.WithLogging(true),
//	)
func New(opts ...Option) *Client {
	cfg := newConfig(opts...)

	c := &Client{
		cfg:      cfg,
		registry: NewRegistry(),
	}
	if cfg.Transport != nil {
		c.transport = cfg.Transport
	} else {
		c.transport = newHTTPTransport(cfg)
	}
	if ds, ok := c.transport.(delegateSetter); ok {
		ds.SetDelegate(c)
	}
	if cfg.Coalescing {
		c.coalescer = &coalescer{}
	}
	return c
}

// NewWithTransport creates a Client whose HTTPTransport sends through base
// instead of a new *http.Transport. Tracing, metrics, the breaker and the
// rate limiter still wrap base.
//
//	client := httpclient.NewWithTransport(&http.Transport{MaxIdleConnsPerHost: 50},
//	    httpclient.WithBaseURL("https://api.example.com"),
//	)
func NewWithTransport(base http.RoundTripper, opts ...Option) *Client {
	return New(append(opts, WithRoundTripper(base))...)
}

// NewRoundTripper wraps base with OpenTelemetry tracing and metrics only,
// for use with a plain http.Client.
//
//	httpClient := &http.Client{
//	    Transport: httpclient.NewRoundTripper(http.DefaultTransport,
//	        httpclient.WithServiceName("my-service"),
//	    ),
//	}
func NewRoundTripper(base http.RoundTripper, opts ...Option) http.RoundTripper {
	return newOtelTransport(base, newConfig(opts...))
}

// DataTask creates a task that fetches the response body into memory.
// The task starts on Resume or Response.
func (c *Client) DataTask(req Request) *Task {
	return newTask(c, req, "data", dataExecutor{coalescer: c.coalescer})
}

// DownloadTask creates a task that streams the response body to a file in
// DownloadDirKey. The task starts on Resume or Response.
func (c *Client) DownloadTask(req Request) *Task {
	return newTask(c, req, "download", downloadExecutor{})
}

// Do runs a data task for req and waits for it. The task is cancelled
// when ctx ends.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	return await(ctx, c.DataTask(req))
}

// Download runs a download task for req and waits for it. The task is
// cancelled when ctx ends.
func (c *Client) Download(ctx context.Context, req Request) (*Response, error) {
	return await(ctx, c.DownloadTask(req))
}

func await(ctx context.Context, t *Task) (*Response, error) {
	stop := context.AfterFunc(ctx, t.Cancel)
	defer stop()
	return t.Response(ctx)
}

// Configuration returns the base configuration copied into new tasks.
func (c *Client) Configuration() Configuration {
	return c.cfg.Configuration
}

// Task returns the task that owns an in-flight wire request.
func (c *Client) Task(req *http.Request) (*Task, bool) {
	return c.registry.Lookup(req)
}

// Registry returns the registry of in-flight wire requests.
func (c *Client) Registry() *Registry {
	return c.registry
}

// Transport returns the transport tasks send through.
func (c *Client) Transport() Transport {
	return c.transport
}

// PoolStats reports the connection pool settings of an HTTPTransport, or
// zero stats for other transports.
func (c *Client) PoolStats() PoolStats {
	if ht, ok := c.transport.(*HTTPTransport); ok {
		return ht.PoolStats()
	}
	return PoolStats{}
}

// RateLimitStats reports the client rate limiter for host. ok is false when
// the transport is not an HTTPTransport or rate limiting is disabled.
func (c *Client) RateLimitStats(host string) (RateLimiterStats, bool) {
	if ht, ok := c.transport.(*HTTPTransport); ok {
		return ht.RateLimitStats(host)
	}
	return RateLimiterStats{}, false
}
