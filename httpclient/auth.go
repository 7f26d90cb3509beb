package httpclient

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// TokenFunc returns an access token.
type TokenFunc func(ctx context.Context) (string, error)

// BearerAuthenticator adds a Bearer token to every attempt. When an attempt
// comes back 401 it refreshes the token and asks for one retry per task.
// Concurrent refreshes from many tasks collapse into one call.
//
// Example:
//
//	auth := httpclient.NewBearerAuthenticator(
//	    func(ctx context.Context) (string, error) { return store.AccessToken(ctx) },
//	    func(ctx context.Context) (string, error) { return store.Refresh(ctx) },
//	)
//	client := httpclient.New(httpclient.WithAuthenticator(auth))
type BearerAuthenticator struct {
	fetch   TokenFunc
	refresh TokenFunc

	mu    sync.RWMutex
	token string

	group singleflight.Group
}

var _ Authenticator = (*BearerAuthenticator)(nil)

// NewBearerAuthenticator creates an authenticator. fetch provides the first
// token; refresh provides replacements after a 401 and defaults to fetch.
func NewBearerAuthenticator(fetch, refresh TokenFunc) *BearerAuthenticator {
	if refresh == nil {
		refresh = fetch
	}
	return &BearerAuthenticator{fetch: fetch, refresh: refresh}
}

// Token returns the current token, or "" before the first fetch.
func (a *BearerAuthenticator) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}

// Adapt implements RequestAdapter.
func (a *BearerAuthenticator) Adapt(
	ctx context.Context,
	req *http.Request,
	_ Configuration,
) (*http.Request, error) {
	token := a.Token()
	if token == "" {
		var err error
		token, err = a.load(ctx, "fetch", a.fetch)
		if err != nil {
			return nil, err
		}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

// Intercept implements ResponseInterceptor.
func (a *BearerAuthenticator) Intercept(ctx context.Context, ic *InterceptorContext) Verdict {
	if ic.StatusCode != http.StatusUnauthorized && !errors.Is(ic.Err, ErrUnauthorized) {
		return Continue()
	}
	if ic.AuthRetried {
		return Continue()
	}

	// Another task already replaced the token this attempt was sent with.
	if sent := sentBearer(ic.Request); sent != "" && sent != a.Token() {
		return Retry(0)
	}

	if _, err := a.load(ctx, "refresh", a.refresh); err != nil {
		return Fail(err)
	}
	return Retry(0)
}

// load runs fn once for all concurrent callers. The shared call does not
// end when one caller gives up; each caller stops waiting on its own ctx.
func (a *BearerAuthenticator) load(ctx context.Context, key string, fn TokenFunc) (string, error) {
	ch := a.group.DoChan(key, func() (any, error) {
		sctx, cancel := detach(ctx)
		defer cancel()
		token, err := fn(sctx)
		if err != nil {
			return "", err
		}
		a.mu.Lock()
		a.token = token
		a.mu.Unlock()
		return token, nil
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return "", r.Err
		}
		return r.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func sentBearer(req *http.Request) string {
	if req == nil {
		return ""
	}
	return strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
}

// TokenSourceAuthenticator authenticates with an oauth2.TokenSource. Tokens
// are cached until they expire; a 401 discards the cache and fetches anew
// from base.
//
// Example:
//
//	conf := &clientcredentials.Config{ClientID: id, ClientSecret: secret, TokenURL: url}
//	auth := httpclient.TokenSourceAuthenticator(conf.TokenSource(ctx))
func TokenSourceAuthenticator(base oauth2.TokenSource) *BearerAuthenticator {
	var (
		mu     sync.Mutex
		cached = oauth2.ReuseTokenSource(nil, base)
	)
	token := func(ts oauth2.TokenSource) (string, error) {
		tok, err := ts.Token()
		if err != nil {
			return "", err
		}
		return tok.AccessToken, nil
	}

	fetch := func(context.Context) (string, error) {
		mu.Lock()
		ts := cached
		mu.Unlock()
		return token(ts)
	}
	refresh := func(context.Context) (string, error) {
		mu.Lock()
		cached = oauth2.ReuseTokenSource(nil, base)
		ts := cached
		mu.Unlock()
		return token(ts)
	}
	return NewBearerAuthenticator(fetch, refresh)
}
