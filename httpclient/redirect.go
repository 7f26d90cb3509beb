package httpclient

import (
	"context"
	"net/http"
)

type redirectKind int

const (
	redirectFollow redirectKind = iota
	redirectIgnore
	redirectReplace
)

// RedirectVerdict tells the transport what to do with a redirect.
type RedirectVerdict struct {
	kind redirectKind
	req  *http.Request
}

// FollowRedirect follows the redirect as proposed.
func FollowRedirect() RedirectVerdict {
	return RedirectVerdict{kind: redirectFollow}
}

// IgnoreRedirect stops and returns the redirect response itself.
func IgnoreRedirect() RedirectVerdict {
	return RedirectVerdict{kind: redirectIgnore}
}

// ReplaceRedirect follows the redirect with req instead of the proposed
// request. Only the method, URL, headers and host of req are used.
func ReplaceRedirect(req *http.Request) RedirectVerdict {
	return RedirectVerdict{kind: redirectReplace, req: req}
}

// RedirectionHandler decides how a task handles a redirect. next is the
// request net/http proposes to send, with next.Response set to the redirect
// response; via holds the requests already sent, oldest first.
type RedirectionHandler interface {
	Redirect(ctx context.Context, t *Task, next *http.Request, via []*http.Request) RedirectVerdict
}

// RedirectionHandlerFunc adapts a function to RedirectionHandler.
type RedirectionHandlerFunc func(ctx context.Context, t *Task, next *http.Request, via []*http.Request) RedirectVerdict

// Redirect implements RedirectionHandler.
func (f RedirectionHandlerFunc) Redirect(
	ctx context.Context,
	t *Task,
	next *http.Request,
	via []*http.Request,
) RedirectVerdict {
	return f(ctx, t, next, via)
}

// MaxRedirects follows at most n redirects, then returns the last redirect
// response.
func MaxRedirects(n int) RedirectionHandler {
	return RedirectionHandlerFunc(func(_ context.Context, _ *Task, _ *http.Request, via []*http.Request) RedirectVerdict {
		if len(via) > n {
			return IgnoreRedirect()
		}
		return FollowRedirect()
	})
}

// SameHostRedirects only follows redirects that stay on the original host.
func SameHostRedirects() RedirectionHandler {
	return RedirectionHandlerFunc(func(_ context.Context, _ *Task, next *http.Request, via []*http.Request) RedirectVerdict {
		if len(via) > 0 && next.URL.Host != via[0].URL.Host {
			return IgnoreRedirect()
		}
		return FollowRedirect()
	})
}

// applyRedirect maps a verdict to the request net/http should send next,
// or nil to stop following.
func applyRedirect(v RedirectVerdict, next *http.Request) *http.Request {
	switch v.kind {
	case redirectIgnore:
		return nil
	case redirectReplace:
		if v.req == nil {
			return nil
		}
		next.Method = v.req.Method
		next.URL = v.req.URL
		next.Host = v.req.Host
		if v.req.Header != nil {
			next.Header = v.req.Header.Clone()
		}
		return next
	default:
		return next
	}
}
