package httpclient

import (
	"context"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCacheRequest(t *testing.T, header http.Header) *http.Request {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, "https://api.example.com/me?b=2&a=1", nil)
	require.NoError(t, err)
	for name, values := range header {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	return req
}

func TestCacheKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		header1  http.Header
		header2  http.Header
		wantSame bool
	}{
		{
			name:     "given no credentials, then same key",
			wantSame: true,
		},
		{
			name:     "given same bearer token, then same key",
			header1:  http.Header{"Authorization": {"Bearer alice"}},
			header2:  http.Header{"Authorization": {"Bearer alice"}},
			wantSame: true,
		},
		{
			name:     "given different bearer tokens, then different key",
			header1:  http.Header{"Authorization": {"Bearer alice"}},
			header2:  http.Header{"Authorization": {"Bearer bob"}},
			wantSame: false,
		},
		{
			name:     "given different cookies, then different key",
			header1:  http.Header{"Cookie": {"session=a"}},
			header2:  http.Header{"Cookie": {"session=b"}},
			wantSame: false,
		},
		{
			name:     "given credentials on one side only, then different key",
			header1:  http.Header{"Authorization": {"Bearer alice"}},
			wantSame: false,
		},
		{
			name:     "given non-identity headers differ, then same key",
			header1:  http.Header{"Accept": {"application/json"}},
			header2:  http.Header{"Accept": {"text/plain"}},
			wantSame: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			key1 := cacheKey(newCacheRequest(t, tt.header1))
			key2 := cacheKey(newCacheRequest(t, tt.header2))

			if tt.wantSame {
				assert.Equal(t, key1, key2)
			} else {
				assert.NotEqual(t, key1, key2)
			}
		})
	}
}

func TestCacheableResponse(t *testing.T) {
	t.Parallel()

	now := time.Now()
	tests := []struct {
		name       string
		reqHeader  http.Header
		respHeader http.Header
		status     int
		wantStored bool
		wantVary   map[string]string
	}{
		{
			name:       "given plain GET 200, then stored",
			respHeader: http.Header{"Cache-Control": {"max-age=60"}},
			status:     http.StatusOK,
			wantStored: true,
		},
		{
			name:       "given non-200 status, then not stored",
			respHeader: http.Header{"Cache-Control": {"max-age=60"}},
			status:     http.StatusNotFound,
		},
		{
			name:       "given no-store, then not stored",
			respHeader: http.Header{"Cache-Control": {"no-store"}},
			status:     http.StatusOK,
		},
		{
			name:       "given private, then not stored",
			respHeader: http.Header{"Cache-Control": {"private, max-age=60"}},
			status:     http.StatusOK,
		},
		{
			name:       "given Authorization without public, then not stored",
			reqHeader:  http.Header{"Authorization": {"Bearer alice"}},
			respHeader: http.Header{"Cache-Control": {"max-age=60"}},
			status:     http.StatusOK,
		},
		{
			name:       "given Cookie without public, then not stored",
			reqHeader:  http.Header{"Cookie": {"session=a"}},
			respHeader: http.Header{"Cache-Control": {"max-age=60"}},
			status:     http.StatusOK,
		},
		{
			name:       "given Authorization with public, then stored",
			reqHeader:  http.Header{"Authorization": {"Bearer alice"}},
			respHeader: http.Header{"Cache-Control": {"public, max-age=60"}},
			status:     http.StatusOK,
			wantStored: true,
		},
		{
			name:       "given Vary star, then not stored",
			respHeader: http.Header{"Cache-Control": {"max-age=60"}, "Vary": {"*"}},
			status:     http.StatusOK,
		},
		{
			name:      "given Vary headers, then request values recorded",
			reqHeader: http.Header{"Accept-Language": {"en"}},
			respHeader: http.Header{
				"Cache-Control": {"max-age=60"},
				"Vary":          {"accept-language, Accept-Encoding"},
			},
			status:     http.StatusOK,
			wantStored: true,
			wantVary:   map[string]string{"Accept-Language": "en", "Accept-Encoding": ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := newCacheRequest(t, tt.reqHeader)
			resp := &http.Response{StatusCode: tt.status, Header: tt.respHeader}

			got := cacheableResponse(req, resp, []byte("body"), now)
			if !tt.wantStored {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, []byte("body"), got.Body)
			assert.Equal(t, time.Minute, got.MaxAge)
			assert.Equal(t, tt.wantVary, got.Vary)
		})
	}
}

func TestCachedResponse_Matches(t *testing.T) {
	t.Parallel()

	entry := &CachedResponse{Vary: map[string]string{"Accept-Language": "en"}}

	assert.True(t, entry.Matches(newCacheRequest(t, http.Header{"Accept-Language": {"en"}})))
	assert.False(t, entry.Matches(newCacheRequest(t, http.Header{"Accept-Language": {"de"}})))
	assert.False(t, entry.Matches(newCacheRequest(t, nil)))
	assert.True(t, (&CachedResponse{}).Matches(newCacheRequest(t, nil)))
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cache := NewBoundedMemoryCache(2, time.Hour)

	require.NoError(t, cache.Set(ctx, "a", &CachedResponse{StatusCode: 200}))
	require.NoError(t, cache.Set(ctx, "b", &CachedResponse{StatusCode: 200}))
	_, _ = cache.Get(ctx, "a")
	require.NoError(t, cache.Set(ctx, "c", &CachedResponse{StatusCode: 200}))

	assert.Equal(t, 2, cache.Len())
	evicted, err := cache.Get(ctx, "b")
	require.NoError(t, err)
	assert.Nil(t, evicted)
	kept, err := cache.Get(ctx, "a")
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestMemoryCache_BoundedAcrossDistinctURLs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cache := NewBoundedMemoryCache(16, time.Hour)
	for i := range 1000 {
		req, err := http.NewRequest(http.MethodGet, "https://api.example.com/items?page="+strconv.Itoa(i), nil)
		require.NoError(t, err)
		require.NoError(t, cache.Set(ctx, cacheKey(req), &CachedResponse{StatusCode: 200}))
	}

	assert.Equal(t, 16, cache.Len())
}

func TestMemoryCache_DropsExpiredEntries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cache := NewBoundedMemoryCache(8, 20*time.Millisecond)
	require.NoError(t, cache.Set(ctx, "a", &CachedResponse{StatusCode: 200}))

	assert.Eventually(t, func() bool {
		entry, _ := cache.Get(ctx, "a")
		return entry == nil
	}, time.Second, 10*time.Millisecond)
}

func TestMemoryCache_Delete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cache := NewMemoryCache()
	require.NoError(t, cache.Set(ctx, "a", &CachedResponse{StatusCode: 200}))
	require.NoError(t, cache.Delete(ctx, "a"))

	entry, err := cache.Get(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.Equal(t, 0, cache.Len())
}
