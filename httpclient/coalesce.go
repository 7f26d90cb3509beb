package httpclient

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/sync/singleflight"
)

// GenerateCoalesceKey returns a stable key for a request: method,
// normalised URL with sorted query parameters, and a hash of the body.
func GenerateCoalesceKey(method, rawURL string, body []byte) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return hashString(method + rawURL + string(body))
	}

	query := parsed.Query()
	params := make([]string, 0, len(query))
	for key, values := range query {
		sort.Strings(values)
		for _, v := range values {
			params = append(params, key+"="+v)
		}
	}
	sort.Strings(params)

	parts := []string{
		method,
		parsed.Scheme + "://" + parsed.Host + parsed.Path,
		strings.Join(params, "&"),
	}
	if len(body) > 0 {
		sum := sha256.Sum256(body)
		parts = append(parts, hex.EncodeToString(sum[:]))
	}
	return hashString(strings.Join(parts, "|"))
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// identityHeaders carry caller credentials. Requests that differ in them
// never share a cached or coalesced response.
var identityHeaders = []string{"Authorization", "Proxy-Authorization", "Cookie"}

// propagationHeaders differ per task without changing the response.
var propagationHeaders = map[string]struct{}{
	"Traceparent": {},
	"Tracestate":  {},
	"Baggage":     {},
}

func hasIdentity(h http.Header) bool {
	for _, name := range identityHeaders {
		if h.Get(name) != "" {
			return true
		}
	}
	return false
}

// headerDigest hashes the values of names in h. It is empty when none of
// the names is present.
func headerDigest(h http.Header, names []string) string {
	parts := make([]string, 0, len(names))
	for _, name := range names {
		values := h.Values(name)
		if len(values) == 0 {
			continue
		}
		parts = append(parts, http.CanonicalHeaderKey(name)+":"+strings.Join(values, ","))
	}
	if len(parts) == 0 {
		return ""
	}
	sort.Strings(parts)
	return hashString(strings.Join(parts, "\n"))
}

// coalesceKey keys an in-flight fetch by method, URL and every header
// except trace propagation.
func coalesceKey(req *http.Request) string {
	names := make([]string, 0, len(req.Header))
	for name := range req.Header {
		if _, skip := propagationHeaders[http.CanonicalHeaderKey(name)]; !skip {
			names = append(names, name)
		}
	}
	key := GenerateCoalesceKey(req.Method, req.URL.String(), nil)
	if digest := headerDigest(req.Header, names); digest != "" {
		key += ":" + digest
	}
	return key
}

// fetchResult is the outcome of a data transfer, shareable between
// coalesced callers. body must not be modified.
type fetchResult struct {
	body []byte
	resp *http.Response
}

// coalescer merges identical in-flight GET transfers of one client into a
// single wire request. Only the leading task receives transport callbacks.
type coalescer struct {
	group singleflight.Group
}

func coalescable(req *http.Request) bool {
	return req.Method == http.MethodGet || req.Method == http.MethodHead
}

// do runs fn, or joins an identical call already in flight. The shared call
// keeps the leader's context values and deadline but not its cancellation;
// each caller stops waiting when its own ctx ends. shared reports whether
// the result was produced for another caller too.
func (c *coalescer) do(
	ctx context.Context,
	req *http.Request,
	fn func(ctx context.Context) (fetchResult, error),
) (fetchResult, bool, error) {
	ch := c.group.DoChan(coalesceKey(req), func() (any, error) {
		sctx, cancel := detach(ctx)
		defer cancel()
		return fn(sctx)
	})
	select {
	case r := <-ch:
		res, _ := r.Val.(fetchResult)
		return res, r.Shared, r.Err
	case <-ctx.Done():
		return fetchResult{}, false, ctx.Err()
	}
}

// detach returns a context that is not cancelled with ctx but still ends at
// its deadline.
func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	out := context.WithoutCancel(ctx)
	if deadline, ok := ctx.Deadline(); ok {
		return context.WithDeadline(out, deadline)
	}
	return context.WithCancel(out)
}
