package httpclient

import (
	"context"
	"errors"
	"net/http"
)

var errNilRequest = errors.New("httpclient: request resolved to nil")

// resolve produces the wire request of one attempt. The previous attempt's
// request leaves the registry first, so callbacks racing with a retry
// never reach a stale entry. The built request then passes the general
// interceptor and the authenticator, in that order, and is registered
// under a fresh wire identity.
func (t *Task) resolve(ctx context.Context, cfg Configuration) (*http.Request, error) {
	if prev := t.state.wireRequest(); prev != nil {
		t.client.registry.Remove(prev)
	}

	req, err := t.request.Resolve(ctx, cfg)
	if err != nil {
		return nil, resolutionError(err)
	}
	if req == nil {
		return nil, resolutionError(errNilRequest)
	}

	adapters := []RequestAdapter{
		Value(cfg, InterceptorKey),
		Value(cfg, AuthenticatorKey),
	}
	for _, a := range adapters {
		if req, err = adapt(ctx, a, req, cfg); err != nil {
			return nil, err
		}
	}

	req = stampWireRequest(req)
	t.client.registry.Register(req, t)
	t.state.swapRequest(req)
	return req, nil
}

// adapt runs one request adapter. Unset adapters are skipped.
func adapt(ctx context.Context, a RequestAdapter, req *http.Request, cfg Configuration) (*http.Request, error) {
	if a == nil {
		return req, nil
	}
	out, err := a.Adapt(ctx, req, cfg)
	if err != nil {
		return nil, wrapError(err)
	}
	if out == nil {
		return nil, wrapError(errNilRequest)
	}
	return out, nil
}
