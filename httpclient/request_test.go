package httpclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolveEndpoint(t *testing.T, ep *Endpoint, cfg Configuration) (*http.Request, error) {
	t.Helper()
	return ep.Resolve(context.Background(), cfg)
}

func baseConfig(base string) Configuration {
	return With(Configuration{}, BaseURLKey, base)
}

func TestEndpoint_ResolveURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		base     string
		endpoint *Endpoint
		wantURL  string
		wantErr  error
	}{
		{
			name:     "given simple path, then joins it to the base URL",
			base:     "https://api.example.com",
			endpoint: NewEndpoint("test").Path("/users"),
			wantURL:  "https://api.example.com/users",
		},
		{
			name:     "given base with trailing slash, then joins without double slash",
			base:     "https://api.example.com/v1/",
			endpoint: NewEndpoint("test").Path("/users"),
			wantURL:  "https://api.example.com/v1/users",
		},
		{
			name:     "given single path param, then replaces it",
			base:     "https://api.example.com",
			endpoint: NewEndpoint("test").Path("/users/{id}").PathParam("id", "123"),
			wantURL:  "https://api.example.com/users/123",
		},
		{
			name: "given multiple path params, then replaces all",
			base: "https://api.example.com",
			endpoint: NewEndpoint("test").
				Path("/users/{userId}/posts/{postId}").
				PathParam("userId", "42").
				PathParam("postId", "7"),
			wantURL: "https://api.example.com/users/42/posts/7",
		},
		{
			name:     "given path param with special characters, then escapes it",
			base:     "https://api.example.com",
			endpoint: NewEndpoint("test").Path("/files/{name}").PathParam("name", "a b/c"),
			wantURL:  "https://api.example.com/files/a%20b%2Fc",
		},
		{
			name:     "given query params, then encodes them",
			base:     "https://api.example.com",
			endpoint: NewEndpoint("test").Path("/search").Query("q", "golang").Query("page", "2"),
			wantURL:  "https://api.example.com/search?page=2&q=golang",
		},
		{
			name:     "given query set twice, then the last value wins",
			base:     "https://api.example.com",
			endpoint: NewEndpoint("test").Path("/search").Query("q", "old").Query("q", "new"),
			wantURL:  "https://api.example.com/search?q=new",
		},
		{
			name:     "given queries map, then encodes all",
			base:     "https://api.example.com",
			endpoint: NewEndpoint("test").Path("/search").Queries(map[string]string{"a": "1", "b": "2"}),
			wantURL:  "https://api.example.com/search?a=1&b=2",
		},
		{
			name:     "given absolute URL path, then ignores the base URL",
			base:     "https://api.example.com",
			endpoint: NewEndpoint("test").Path("https://other.example.com/health"),
			wantURL:  "https://other.example.com/health",
		},
		{
			name:     "given absolute URL path and no base, then resolves",
			endpoint: NewEndpoint("test").Path("http://other.example.com/health"),
			wantURL:  "http://other.example.com/health",
		},
		{
			name:     "given relative path and no base URL, then fails",
			endpoint: NewEndpoint("test").Path("/users"),
			wantErr:  ErrMissingBaseURL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req, err := resolveEndpoint(t, tt.endpoint, baseConfig(tt.base))
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantURL, req.URL.String())
			assert.Equal(t, http.MethodGet, req.Method)
		})
	}
}

func TestEndpoint_ResolveHeaders(t *testing.T) {
	t.Parallel()

	cfg := baseConfig("https://api.example.com")
	cfg = With(cfg, HeadersKey, http.Header{
		"X-Default": []string{"default"},
		"X-Shared":  []string{"from-config"},
	})

	ep := NewEndpoint("test").
		Path("/").
		Header("X-Shared", "from-endpoint").
		Headers(map[string]string{"X-One": "1", "X-Two": "2"})

	req, err := resolveEndpoint(t, ep, cfg)
	require.NoError(t, err)

	assert.Equal(t, "default", req.Header.Get("X-Default"))
	assert.Equal(t, "from-endpoint", req.Header.Get("X-Shared"))
	assert.Equal(t, "1", req.Header.Get("X-One"))
	assert.Equal(t, "2", req.Header.Get("X-Two"))

	req.Header.Set("X-Default", "mutated")
	assert.Equal(t, "default", Value(cfg, HeadersKey).Get("X-Default"), "config headers are copied")
}

func TestEndpoint_ResolveBody(t *testing.T) {
	t.Parallel()

	type user struct {
		Name string `json:"name" xml:"name"`
	}

	tests := []struct {
		name            string
		endpoint        *Endpoint
		cfg             func(Configuration) Configuration
		wantBody        string
		wantContentType string
	}{
		{
			name:            "given string body, then sends text",
			endpoint:        NewEndpoint("test").Body("hello"),
			wantBody:        "hello",
			wantContentType: "text/plain; charset=utf-8",
		},
		{
			name:            "given byte body, then sends octet stream",
			endpoint:        NewEndpoint("test").Body([]byte{0x01, 0x02}),
			wantBody:        "\x01\x02",
			wantContentType: "application/octet-stream",
		},
		{
			name:            "given url values, then sends a form",
			endpoint:        NewEndpoint("test").Body(url.Values{"a": []string{"1"}}),
			wantBody:        "a=1",
			wantContentType: "application/x-www-form-urlencoded",
		},
		{
			name:            "given struct body, then encodes JSON by default",
			endpoint:        NewEndpoint("test").Body(user{Name: "John"}),
			wantBody:        `{"name":"John"}`,
			wantContentType: "application/json",
		},
		{
			name:     "given struct body and XML encoder, then encodes XML",
			endpoint: NewEndpoint("test").Body(user{Name: "John"}),
			cfg: func(cfg Configuration) Configuration {
				return With[Encoder](cfg, EncoderKey, XMLEncoder{})
			},
			wantBody:        `<user><name>John</name></user>`,
			wantContentType: "application/xml",
		},
		{
			name:            "given BodyJSON, then encodes JSON",
			endpoint:        NewEndpoint("test").BodyJSON(map[string]string{"key": "value"}),
			wantBody:        `{"key":"value"}`,
			wantContentType: "application/json",
		},
		{
			name:            "given BodyForm, then sends a form",
			endpoint:        NewEndpoint("test").BodyForm(map[string]string{"user": "john"}),
			wantBody:        "user=john",
			wantContentType: "application/x-www-form-urlencoded",
		},
		{
			name:            "given explicit content type header, then keeps it",
			endpoint:        NewEndpoint("test").Header("Content-Type", "application/vnd.api+json").BodyJSON(user{Name: "A"}),
			wantBody:        `{"name":"A"}`,
			wantContentType: "application/vnd.api+json",
		},
		{
			name:     "given nil body, then sends no body",
			endpoint: NewEndpoint("test").Body(nil),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := baseConfig("https://api.example.com")
			if tt.cfg != nil {
				cfg = tt.cfg(cfg)
			}
			req, err := resolveEndpoint(t, tt.endpoint.Method(http.MethodPost).Path("/"), cfg)
			require.NoError(t, err)

			assert.Equal(t, tt.wantContentType, req.Header.Get("Content-Type"))
			if tt.wantBody == "" {
				assert.Nil(t, req.Body)
				return
			}
			data, err := io.ReadAll(req.Body)
			require.NoError(t, err)
			assert.Equal(t, tt.wantBody, string(data))
			assert.Equal(t, int64(len(tt.wantBody)), req.ContentLength)
			require.NotNil(t, req.GetBody, "body must be replayable")
		})
	}
}

func TestEndpoint_ReaderBodyIsReplayed(t *testing.T) {
	t.Parallel()

	ep := NewEndpoint("test").Method(http.MethodPut).Path("/blob").Body(bytes.NewBufferString("raw reader content"))
	cfg := baseConfig("https://api.example.com")

	for range 2 {
		req, err := resolveEndpoint(t, ep, cfg)
		require.NoError(t, err)
		data, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		assert.Equal(t, "raw reader content", string(data))
		assert.Empty(t, req.Header.Get("Content-Type"))
	}
}

type failingMarshaler struct{}

func (failingMarshaler) MarshalJSON() ([]byte, error) {
	return nil, errors.New("cannot marshal")
}

func TestEndpoint_EncodeError(t *testing.T) {
	t.Parallel()

	_, err := resolveEndpoint(t,
		NewEndpoint("test").Method(http.MethodPost).Path("/").Body(failingMarshaler{}),
		baseConfig("https://api.example.com"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encode request body")
}

func TestEndpoint_HTTPMethods(t *testing.T) {
	t.Parallel()

	methods := []string{
		http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch,
		http.MethodDelete, http.MethodHead, http.MethodOptions,
	}
	for _, method := range methods {
		t.Run(method, func(t *testing.T) {
			t.Parallel()

			req, err := resolveEndpoint(t, NewEndpoint("test").Method(method).Path("/"), baseConfig("https://api.example.com"))
			require.NoError(t, err)
			assert.Equal(t, method, req.Method)
		})
	}
}

func TestEndpoint_ModifyConfiguration(t *testing.T) {
	t.Parallel()

	cfg := With(Configuration{}, TimeoutKey, time.Second)

	plain := NewEndpoint("test").ModifyConfiguration(cfg)
	assert.Equal(t, time.Second, Value(plain, TimeoutKey))
	assert.Equal(t, UseProtocolCachePolicy, Value(plain, CachePolicyKey))

	overridden := NewEndpoint("test").
		Timeout(5 * time.Second).
		CachePolicy(ReturnCacheElseLoad).
		ModifyConfiguration(cfg)
	assert.Equal(t, 5*time.Second, Value(overridden, TimeoutKey))
	assert.Equal(t, ReturnCacheElseLoad, Value(overridden, CachePolicyKey))
	assert.Equal(t, time.Second, Value(cfg, TimeoutKey), "input configuration is unchanged")
}

func TestNewRequestFunc(t *testing.T) {
	t.Parallel()

	errBuild := errors.New("build failed")

	tests := []struct {
		name    string
		resolve ResolveFunc
		wantErr assert.ErrorAssertionFunc
	}{
		{
			name: "given a builder, then resolves through it",
			resolve: func(ctx context.Context, cfg Configuration) (*http.Request, error) {
				return http.NewRequestWithContext(ctx, http.MethodGet, Value(cfg, BaseURLKey)+"/health", nil)
			},
			wantErr: assert.NoError,
		},
		{
			name: "given a failing builder, then returns its error",
			resolve: func(context.Context, Configuration) (*http.Request, error) {
				return nil, errBuild
			},
			wantErr: assert.Error,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := NewRequestFunc("Health", tt.resolve)
			assert.Equal(t, "Health", r.ID())

			req, err := r.Resolve(context.Background(), baseConfig("https://api.example.com"))
			tt.wantErr(t, err)
			if err == nil {
				assert.Equal(t, "https://api.example.com/health", req.URL.String())
			}
		})
	}
}
