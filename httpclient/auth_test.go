package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// newTokenServer accepts only requests bearing the token returned by valid.
func newTokenServer(t *testing.T, valid func() string) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Authorization") != "Bearer "+valid() {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func TestBearerAuthenticator(t *testing.T) {
	tests := []struct {
		name         string
		initial      string
		refreshed    string
		valid        string
		refreshErr   error
		wantErr      assert.ErrorAssertionFunc
		wantKind     ErrorKind
		wantCalls    int32
		wantRefresh  int32
		wantAttempts int
	}{
		{
			name:         "given valid token, then sends it once",
			initial:      "good",
			valid:        "good",
			wantErr:      assert.NoError,
			wantCalls:    1,
			wantAttempts: 1,
		},
		{
			name:         "given expired token, then refreshes and retries",
			initial:      "stale",
			refreshed:    "good",
			valid:        "good",
			wantErr:      assert.NoError,
			wantCalls:    2,
			wantRefresh:  1,
			wantAttempts: 2,
		},
		{
			name:        "given refreshed token still rejected, then fails unauthorized",
			initial:     "stale",
			refreshed:   "also-stale",
			valid:       "good",
			wantErr:     assert.Error,
			wantKind:    KindUnauthorized,
			wantCalls:   2,
			wantRefresh: 1,
		},
		{
			name:        "given refresh failure, then fails with it",
			initial:     "stale",
			valid:       "good",
			refreshErr:  errors.New("token endpoint down"),
			wantErr:     assert.Error,
			wantKind:    KindCustom,
			wantCalls:   1,
			wantRefresh: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, calls := newTokenServer(t, func() string { return tt.valid })

			var refreshes atomic.Int32
			auth := NewBearerAuthenticator(
				func(context.Context) (string, error) { return tt.initial, nil },
				func(context.Context) (string, error) {
					refreshes.Add(1)
					return tt.refreshed, tt.refreshErr
				},
			)
			client := New(WithBaseURL(server.URL), WithAuthenticator(auth))

			resp, err := client.Do(context.Background(), NewEndpoint("Me").Path("/me"))

			tt.wantErr(t, err)
			if err != nil {
				assert.Equal(t, tt.wantKind, KindOf(err))
			} else {
				assert.Equal(t, tt.wantAttempts, resp.Attempts())
			}
			assert.Equal(t, tt.wantCalls, calls.Load())
			assert.Equal(t, tt.wantRefresh, refreshes.Load())
		})
	}
}

func TestBearerAuthenticator_FetchError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		calls.Add(1)
	}))
	t.Cleanup(server.Close)

	errFetch := errors.New("no credentials")
	auth := NewBearerAuthenticator(func(context.Context) (string, error) { return "", errFetch }, nil)
	client := New(WithBaseURL(server.URL), WithAuthenticator(auth))

	_, err := client.Do(context.Background(), NewEndpoint("Me").Path("/me"))

	require.Error(t, err)
	assert.ErrorIs(t, err, errFetch)
	assert.Zero(t, calls.Load(), "nothing is sent without a token")
}

func TestBearerAuthenticator_ConcurrentRefreshCollapses(t *testing.T) {
	current := func() string { return "v1" }
	server, _ := newTokenServer(t, current)

	var refreshes atomic.Int32
	auth := NewBearerAuthenticator(
		func(context.Context) (string, error) { return "v0", nil },
		func(context.Context) (string, error) {
			refreshes.Add(1)
			return current(), nil
		},
	)
	_, err := auth.load(context.Background(), "fetch", auth.fetch)
	require.NoError(t, err)

	client := New(WithBaseURL(server.URL), WithAuthenticator(auth))

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = client.Do(context.Background(), NewEndpoint("Me").Path("/me"))
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, "v1", auth.Token())
	assert.LessOrEqual(t, refreshes.Load(), int32(len(errs)))
	assert.Positive(t, refreshes.Load())
}

func TestBearerAuthenticator_RefreshOutlivesCancelledCaller(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	auth := NewBearerAuthenticator(nil, func(ctx context.Context) (string, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		select {
		case <-release:
			return "fresh", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := auth.load(ctx, "refresh", auth.refresh)
		first <- err
	}()
	<-started

	second := make(chan string, 1)
	go func() {
		token, _ := auth.load(context.Background(), "refresh", auth.refresh)
		second <- token
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)

	close(release)
	assert.Equal(t, "fresh", <-second)
	assert.Equal(t, "fresh", auth.Token())
	assert.Equal(t, int32(1), calls.Load())
}

func TestBearerAuthenticator_Intercept(t *testing.T) {
	auth := NewBearerAuthenticator(func(context.Context) (string, error) { return "new", nil }, nil)
	_, err := auth.load(context.Background(), "fetch", auth.fetch)
	require.NoError(t, err)

	sentWith := func(token string) *http.Request {
		req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		return req
	}

	tests := []struct {
		name string
		ic   *InterceptorContext
		want string
	}{
		{
			name: "given successful attempt, then continues",
			ic:   &InterceptorContext{StatusCode: http.StatusOK},
			want: "continue",
		},
		{
			name: "given 401 after the auth retry, then continues",
			ic:   &InterceptorContext{StatusCode: http.StatusUnauthorized, AuthRetried: true},
			want: "continue",
		},
		{
			name: "given 401 with a superseded token, then retries without refresh",
			ic:   &InterceptorContext{StatusCode: http.StatusUnauthorized, Request: sentWith("old")},
			want: "retry",
		},
		{
			name: "given unauthorized error, then refreshes and retries",
			ic:   &InterceptorContext{Err: statusError(KindUnauthorized, http.StatusUnauthorized, nil), Request: sentWith("new")},
			want: "retry",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := auth.Intercept(context.Background(), tt.ic)
			assert.Equal(t, tt.want, v.String())
		})
	}
}

// countingTokenSource hands out numbered tokens.
type countingTokenSource struct {
	n atomic.Int32
}

func (s *countingTokenSource) Token() (*oauth2.Token, error) {
	n := s.n.Add(1)
	return &oauth2.Token{AccessToken: "token-" + strconv.Itoa(int(n)), TokenType: "Bearer"}, nil
}

func TestTokenSourceAuthenticator(t *testing.T) {
	t.Run("given static token source, then authenticates", func(t *testing.T) {
		server, calls := newTokenServer(t, func() string { return "static" })

		auth := TokenSourceAuthenticator(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "static"}))
		client := New(WithBaseURL(server.URL), WithAuthenticator(auth))

		resp, err := client.Do(context.Background(), NewEndpoint("Me").Path("/me"))
		require.NoError(t, err)
		assert.Equal(t, "ok", resp.String())
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("given rejected token, then discards it and fetches anew", func(t *testing.T) {
		server, calls := newTokenServer(t, func() string { return "token-2" })

		src := &countingTokenSource{}
		auth := TokenSourceAuthenticator(src)
		client := New(WithBaseURL(server.URL), WithAuthenticator(auth))

		resp, err := client.Do(context.Background(), NewEndpoint("Me").Path("/me"))
		require.NoError(t, err)
		assert.Equal(t, 2, resp.Attempts())
		assert.Equal(t, int32(2), calls.Load())
		assert.Equal(t, int32(2), src.n.Load())
		assert.Equal(t, "token-2", auth.Token())
	})
}
