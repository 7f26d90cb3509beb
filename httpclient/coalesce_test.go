package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCoalesceKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		method1  string
		url1     string
		body1    []byte
		method2  string
		url2     string
		body2    []byte
		wantSame bool
	}{
		{
			name:     "given_identical_requests,_then_same_key",
			method1:  "GET",
			url1:     "https://example.com/users/123",
			body1:    nil,
			method2:  "GET",
			url2:     "https://example.com/users/123",
			body2:    nil,
			wantSame: true,
		},
		{
			name:     "given_different_methods,_then_different_key",
			method1:  "GET",
			url1:     "https://example.com/users/123",
			body1:    nil,
			method2:  "POST",
			url2:     "https://example.com/users/123",
			body2:    nil,
			wantSame: false,
		},
		{
			name:     "given_different_urls,_then_different_key",
			method1:  "GET",
			url1:     "https://example.com/users/123",
			body1:    nil,
			method2:  "GET",
			url2:     "https://example.com/users/456",
			body2:    nil,
			wantSame: false,
		},
		{
			name:     "given_different_query_params,_then_different_key",
			method1:  "GET",
			url1:     "https://example.com/users?active=true",
			body1:    nil,
			method2:  "GET",
			url2:     "https://example.com/users?active=false",
			body2:    nil,
			wantSame: false,
		},
		{
			name:     "given_same_query_params_different_order,_then_same_key",
			method1:  "GET",
			url1:     "https://example.com/users?a=1&b=2",
			body1:    nil,
			method2:  "GET",
			url2:     "https://example.com/users?b=2&a=1",
			body2:    nil,
			wantSame: true,
		},
		{
			name:     "given_different_body,_then_different_key",
			method1:  "POST",
			url1:     "https://example.com/users",
			body1:    []byte(`{"name":"John"}`),
			method2:  "POST",
			url2:     "https://example.com/users",
			body2:    []byte(`{"name":"Jane"}`),
			wantSame: false,
		},
		{
			name:     "given_same_body,_then_same_key",
			method1:  "POST",
			url1:     "https://example.com/users",
			body1:    []byte(`{"name":"John"}`),
			method2:  "POST",
			url2:     "https://example.com/users",
			body2:    []byte(`{"name":"John"}`),
			wantSame: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			key1 := GenerateCoalesceKey(tt.method1, tt.url1, tt.body1)
			key2 := GenerateCoalesceKey(tt.method2, tt.url2, tt.body2)

			if tt.wantSame {
				assert.Equal(t, key1, key2)
			} else {
				assert.NotEqual(t, key1, key2)
			}
		})
	}
}

func TestCoalesce_DeduplicatesSimultaneousRequests(t *testing.T) {
	t.Parallel()

	var serverCalls atomic.Int32
	release := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		serverCalls.Add(1)
		<-release

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"result":"ok"}`))
	}))
	t.Cleanup(server.Close)

	client := New(WithBaseURL(server.URL), WithCoalescing())

	const numRequests = 10
	var wg sync.WaitGroup
	responses := make([]*Response, numRequests)
	errs := make([]error, numRequests)

	for i := 0; i < numRequests; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			responses[idx], errs[idx] = client.Do(context.Background(), NewEndpoint("GetData").Path("/data"))
		}(i)
	}

	// Hold the leader until every task has joined.
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < numRequests; i++ {
		require.NoError(t, errs[i], "request %d should not error", i)
		require.NotNil(t, responses[i], "response %d should not be nil", i)
		assert.Equal(t, http.StatusOK, responses[i].StatusCode)
		assert.JSONEq(t, `{"result":"ok"}`, responses[i].String())
	}

	assert.Equal(t, int32(1), serverCalls.Load(), "only one server call should be made")
}

func TestCoalesce_SharedMetadataIsCopied(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.Header().Set("X-Test", "original")
	}))
	t.Cleanup(server.Close)

	client := New(WithBaseURL(server.URL), WithCoalescing())

	var (
		wg    sync.WaitGroup
		first *Response
		other *Response
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		first, _ = client.Do(context.Background(), NewEndpoint("GetData").Path("/data"))
	}()
	go func() {
		defer wg.Done()
		other, _ = client.Do(context.Background(), NewEndpoint("GetData").Path("/data"))
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.NotNil(t, first)
	require.NotNil(t, other)
	first.Header.Set("X-Test", "changed")
	assert.Equal(t, "original", other.Header.Get("X-Test"))
}

func TestCoalesce_SequentialRequestsMakeNewCalls(t *testing.T) {
	t.Parallel()

	var serverCalls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		serverCalls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	client := New(WithBaseURL(server.URL), WithCoalescing())

	resp1, err1 := client.Do(context.Background(), NewEndpoint("GetData").Path("/data"))
	require.NoError(t, err1)
	assert.Equal(t, http.StatusOK, resp1.StatusCode)

	resp2, err2 := client.Do(context.Background(), NewEndpoint("GetData").Path("/data"))
	require.NoError(t, err2)
	assert.Equal(t, http.StatusOK, resp2.StatusCode)

	assert.Equal(t, int32(2), serverCalls.Load(), "sequential requests should make separate calls")
}

func TestCoalesce_NotApplied(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		coalescing bool
		endpoints  []Request
	}{
		{
			name:       "given different endpoints, then both are sent",
			coalescing: true,
			endpoints: []Request{
				NewEndpoint("GetData").Path("/data"),
				NewEndpoint("GetOther").Path("/other"),
			},
		},
		{
			name:       "given POST requests, then both are sent",
			coalescing: true,
			endpoints: []Request{
				NewEndpoint("Create").Method(http.MethodPost).Path("/data"),
				NewEndpoint("Create").Method(http.MethodPost).Path("/data"),
			},
		},
		{
			name: "given coalescing disabled, then both are sent",
			endpoints: []Request{
				NewEndpoint("GetData").Path("/data"),
				NewEndpoint("GetData").Path("/data"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var serverCalls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				serverCalls.Add(1)
				time.Sleep(50 * time.Millisecond)
				w.WriteHeader(http.StatusOK)
			}))
			t.Cleanup(server.Close)

			opts := []Option{WithBaseURL(server.URL)}
			if tt.coalescing {
				opts = append(opts, WithCoalescing())
			}
			client := New(opts...)

			var wg sync.WaitGroup
			for _, ep := range tt.endpoints {
				wg.Add(1)
				go func(ep Request) {
					defer wg.Done()
					_, _ = client.Do(context.Background(), ep)
				}(ep)
			}
			wg.Wait()

			assert.Equal(t, int32(len(tt.endpoints)), serverCalls.Load())
		})
	}
}

func TestCoalesceKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		header1  http.Header
		header2  http.Header
		wantSame bool
	}{
		{
			name:     "given identical headers, then same key",
			header1:  http.Header{"Accept": {"application/json"}},
			header2:  http.Header{"Accept": {"application/json"}},
			wantSame: true,
		},
		{
			name:     "given different Authorization, then different key",
			header1:  http.Header{"Authorization": {"Bearer alice"}},
			header2:  http.Header{"Authorization": {"Bearer bob"}},
			wantSame: false,
		},
		{
			name:     "given different Accept, then different key",
			header1:  http.Header{"Accept": {"application/json"}},
			header2:  http.Header{"Accept": {"text/csv"}},
			wantSame: false,
		},
		{
			name:     "given only trace context differs, then same key",
			header1:  http.Header{"Traceparent": {"00-aaaa-01"}},
			header2:  http.Header{"Traceparent": {"00-bbbb-01"}},
			wantSame: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req1 := httptest.NewRequest(http.MethodGet, "http://api.test/me", nil)
			req1.Header = tt.header1
			req2 := httptest.NewRequest(http.MethodGet, "http://api.test/me", nil)
			req2.Header = tt.header2

			if tt.wantSame {
				assert.Equal(t, coalesceKey(req1), coalesceKey(req2))
			} else {
				assert.NotEqual(t, coalesceKey(req1), coalesceKey(req2))
			}
		})
	}
}

func TestCoalesce_IsolatesCredentials(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		tokens    []string
		wantCalls int32
	}{
		{
			name:      "given different bearer tokens, then each task gets its own fetch",
			tokens:    []string{"Bearer alice", "Bearer bob"},
			wantCalls: 2,
		},
		{
			name:      "given the same bearer token, then the fetch is shared",
			tokens:    []string{"Bearer alice", "Bearer alice"},
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32
			release := make(chan struct{})
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				<-release
				_, _ = w.Write([]byte("for " + r.Header.Get("Authorization")))
			}))
			t.Cleanup(server.Close)

			client := New(WithBaseURL(server.URL), WithCoalescing())

			var wg sync.WaitGroup
			bodies := make([]string, len(tt.tokens))
			errs := make([]error, len(tt.tokens))
			for i, token := range tt.tokens {
				wg.Add(1)
				go func() {
					defer wg.Done()
					resp, err := client.Do(context.Background(),
						NewEndpoint("Me").Path("/me").Header("Authorization", token))
					errs[i] = err
					if err == nil {
						bodies[i] = resp.String()
					}
				}()
			}
			time.Sleep(50 * time.Millisecond)
			close(release)
			wg.Wait()

			for i, token := range tt.tokens {
				require.NoError(t, errs[i])
				assert.Equal(t, "for "+token, bodies[i])
			}
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestCoalesce_LeaderCancelDoesNotFailFollowers(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		<-release
		_, _ = w.Write([]byte("shared"))
	}))
	t.Cleanup(server.Close)

	client := New(WithBaseURL(server.URL), WithCoalescing())
	leader := client.DataTask(NewEndpoint("GetX").Path("/x"))
	follower := client.DataTask(NewEndpoint("GetX").Path("/x"))

	leaderErr := make(chan error, 1)
	go func() {
		_, err := leader.Response(context.Background())
		leaderErr <- err
	}()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	type result struct {
		resp *Response
		err  error
	}
	followerDone := make(chan result, 1)
	go func() {
		resp, err := follower.Response(context.Background())
		followerDone <- result{resp, err}
	}()
	time.Sleep(50 * time.Millisecond)

	leader.Cancel()
	err := <-leaderErr
	require.Error(t, err)
	assert.Equal(t, KindCancelled, KindOf(err))

	select {
	case r := <-followerDone:
		t.Fatalf("follower finished before the shared fetch: %v", r.err)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	r := <-followerDone
	require.NoError(t, r.err)
	assert.Equal(t, "shared", r.resp.String())
	assert.Equal(t, StateCompleted, follower.State())
	assert.Equal(t, int32(1), calls.Load())
}
