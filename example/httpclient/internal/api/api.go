package api

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/kroma-labs/courier-go/example/httpclient/internal/config"
	"github.com/kroma-labs/courier-go/example/httpclient/internal/upstream"
	"github.com/kroma-labs/courier-go/httpclient"
	"github.com/rs/zerolog"
)

// Client is a typed client of the user API.
type Client struct {
	http *httpclient.Client
}

// New creates a user API client with retries, a response cache and a
// circuit breaker.
func New(baseURL string, logger zerolog.Logger) *Client {
	c := httpclient.New(
		httpclient.WithServiceName(config.ServiceName),
		httpclient.WithLogger(logger),
		httpclient.WithLogging(true),
		httpclient.WithBaseURL(baseURL),
		httpclient.WithAttemptTimeout(config.AttemptTimeout*time.Second),
		httpclient.WithRetryPolicy(httpclient.NewRetryPolicy(
			config.MaxRetries,
			httpclient.ExponentialStrategy(100*time.Millisecond, 2, true),
		)),
		httpclient.WithResponseCache(httpclient.NewMemoryCache()),
		httpclient.WithBreakerConfig(httpclient.DefaultBreakerConfig()),
		httpclient.WithInterceptor(httpclient.UserAgentInterceptor(config.ServiceName+"/"+config.ServiceVersion)),
	)
	return &Client{http: c}
}

// GetUser fetches one user.
func (c *Client) GetUser(ctx context.Context, id string) (upstream.User, error) {
	task := c.http.DataTask(httpclient.NewEndpoint("GetUser").
		Path("/users/{id}").
		PathParam("id", id))
	defer context.AfterFunc(ctx, task.Cancel)()

	return httpclient.DecodeResponse[upstream.User](ctx, task)
}

// Export downloads the user export and returns its size in bytes.
func (c *Client) Export(ctx context.Context) (int64, error) {
	resp, err := c.http.Download(ctx, httpclient.NewEndpoint("Export").
		Method(http.MethodGet).
		Path("/export").
		CachePolicy(httpclient.ReloadIgnoringCache))
	if err != nil {
		return 0, err
	}
	defer os.Remove(resp.FilePath())

	info, err := os.Stat(resp.FilePath())
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
