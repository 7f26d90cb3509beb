package httpclient

import (
	"context"
	"net/http"
)

// RequestAdapter rewrites a wire request before it is sent.
// Adapters may return the same request, modified in place, or a new one.
type RequestAdapter interface {
	Adapt(ctx context.Context, req *http.Request, cfg Configuration) (*http.Request, error)
}

// ResponseInterceptor inspects the outcome of an attempt and votes on what
// the task does next.
type ResponseInterceptor interface {
	Intercept(ctx context.Context, ic *InterceptorContext) Verdict
}

// Interceptor is a general-purpose hook on both sides of an attempt.
//
// Common use cases:
//   - Adding headers (API keys, correlation IDs, user agents)
//   - Request signing
//   - Forcing a retry on application-level conditions
type Interceptor interface {
	RequestAdapter
	ResponseInterceptor
}

// Authenticator is the authentication interceptor. It adapts requests with
// credentials and, on a 401, may refresh them and ask for one retry.
type Authenticator interface {
	Interceptor
}

// AdaptFunc adapts a request.
type AdaptFunc func(ctx context.Context, req *http.Request, cfg Configuration) (*http.Request, error)

// InterceptFunc votes on an attempt outcome.
type InterceptFunc func(ctx context.Context, ic *InterceptorContext) Verdict

type funcInterceptor struct {
	adapt     AdaptFunc
	intercept InterceptFunc
}

// NewInterceptor builds an Interceptor from functions. Either may be nil.
//
// Example - retry once when the body reports a stale read:
//
//	ic := httpclient.NewInterceptor(nil,
//	    func(ctx context.Context, ic *httpclient.InterceptorContext) httpclient.Verdict {
//	        if ic.Attempt == 0 && bytes.Contains(ic.Body, []byte("stale")) {
//	            return httpclient.Retry(0)
//	        }
//	        return httpclient.Continue()
//	    })
func NewInterceptor(adapt AdaptFunc, intercept InterceptFunc) Interceptor {
	return funcInterceptor{adapt: adapt, intercept: intercept}
}

func (f funcInterceptor) Adapt(
	ctx context.Context,
	req *http.Request,
	cfg Configuration,
) (*http.Request, error) {
	if f.adapt == nil {
		return req, nil
	}
	return f.adapt(ctx, req, cfg)
}

func (f funcInterceptor) Intercept(ctx context.Context, ic *InterceptorContext) Verdict {
	if f.intercept == nil {
		return Continue()
	}
	return f.intercept(ctx, ic)
}

// headerInterceptor adapts requests by setting headers; it never votes.
func headerInterceptor(set func(req *http.Request) error) Interceptor {
	return NewInterceptor(func(_ context.Context, req *http.Request, _ Configuration) (*http.Request, error) {
		if err := set(req); err != nil {
			return nil, err
		}
		return req, nil
	}, nil)
}

type interceptorChain []Interceptor

// ChainInterceptors composes interceptors. Adapters run in order, each
// receiving the previous output. On the response side every interceptor is
// consulted in order, with the same precedence as the response chain: the
// first retry wins, otherwise the last failure wins. A failure updates
// ic.Err for the interceptors after it.
func ChainInterceptors(interceptors ...Interceptor) Interceptor {
	out := make(interceptorChain, 0, len(interceptors))
	for _, i := range interceptors {
		if i != nil {
			out = append(out, i)
		}
	}
	return out
}

func (c interceptorChain) Adapt(
	ctx context.Context,
	req *http.Request,
	cfg Configuration,
) (*http.Request, error) {
	for _, i := range c {
		next, err := i.Adapt(ctx, req, cfg)
		if err != nil {
			return nil, err
		}
		req = next
	}
	return req, nil
}

func (c interceptorChain) Intercept(ctx context.Context, ic *InterceptorContext) Verdict {
	out := Continue()
	for _, i := range c {
		v := i.Intercept(ctx, ic)
		if v.IsRetry() {
			return v
		}
		if v.IsFail() {
			ic.Err = v.Err()
			out = v
		}
	}
	return out
}

// AuthBearerInterceptor adds a static Bearer token.
func AuthBearerInterceptor(token string) Interceptor {
	return headerInterceptor(func(req *http.Request) error {
		req.Header.Set("Authorization", "Bearer "+token)
		return nil
	})
}

// AuthBearerFuncInterceptor adds a Bearer token obtained from tokenFunc on
// every attempt. Use BearerAuthenticator when 401 should trigger a refresh.
func AuthBearerFuncInterceptor(tokenFunc func() (string, error)) Interceptor {
	return headerInterceptor(func(req *http.Request) error {
		token, err := tokenFunc()
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		return nil
	})
}

// APIKeyInterceptor sets an API key header.
func APIKeyInterceptor(headerName, apiKey string) Interceptor {
	return headerInterceptor(func(req *http.Request) error {
		req.Header.Set(headerName, apiKey)
		return nil
	})
}

// CorrelationIDInterceptor sets a correlation header from idFunc. The value
// is generated per attempt.
func CorrelationIDInterceptor(headerName string, idFunc func() string) Interceptor {
	return headerInterceptor(func(req *http.Request) error {
		req.Header.Set(headerName, idFunc())
		return nil
	})
}

// UserAgentInterceptor sets the User-Agent header.
func UserAgentInterceptor(userAgent string) Interceptor {
	return headerInterceptor(func(req *http.Request) error {
		req.Header.Set("User-Agent", userAgent)
		return nil
	})
}
