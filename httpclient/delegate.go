package httpclient

import (
	"context"
	"net/http"
)

var _ Delegate = (*Client)(nil)

// WillPerformRedirection implements Delegate. The task owning next is found
// through the registry and its RedirectionHandlerKey decides. Requests of
// unknown tasks, and tasks without a handler, follow the redirect.
func (c *Client) WillPerformRedirection(ctx context.Context, next *http.Request, via []*http.Request) *http.Request {
	t, ok := c.registry.Lookup(next)
	if !ok {
		return next
	}
	h := Value(t.activeConfiguration(), RedirectionHandlerKey)
	if h == nil {
		return next
	}
	return applyRedirect(h.Redirect(ctx, t, next, via), next)
}

// WillCacheResponse implements Delegate with the owning task's
// CacheHandlerKey. Without a handler the proposal is stored as is.
func (c *Client) WillCacheResponse(ctx context.Context, req *http.Request, proposed *CachedResponse) *CachedResponse {
	t, ok := c.registry.Lookup(req)
	if !ok {
		return proposed
	}
	h := Value(t.activeConfiguration(), CacheHandlerKey)
	if h == nil {
		return proposed
	}
	return applyCacheVerdict(h.Cache(ctx, t, proposed), proposed)
}

// DidUpdateProgress implements Delegate.
func (c *Client) DidUpdateProgress(req *http.Request, completed, total int64) {
	if t, ok := c.registry.Lookup(req); ok {
		t.progress.update(completed, total)
	}
}

// DidFinishCollectingMetrics implements Delegate.
func (c *Client) DidFinishCollectingMetrics(req *http.Request, m *TaskMetrics) {
	if t, ok := c.registry.Lookup(req); ok {
		t.state.setMetrics(m)
	}
}
