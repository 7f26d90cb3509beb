package httpclient

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachePolicy selects how a request consults the response cache.
type CachePolicy int

const (
	// UseProtocolCachePolicy serves fresh cached responses and stores
	// cacheable ones, following Cache-Control.
	UseProtocolCachePolicy CachePolicy = iota

	// ReloadIgnoringCache always loads from the network. The result may
	// still be stored.
	ReloadIgnoringCache

	// ReturnCacheElseLoad serves any cached response regardless of age and
	// loads only on a miss.
	ReturnCacheElseLoad

	// ReturnCacheDontLoad serves any cached response and fails with
	// ErrCacheMiss rather than load.
	ReturnCacheDontLoad
)

// CachedResponse is a stored response.
type CachedResponse struct {
	StatusCode int           `json:"status_code"`
	Header     http.Header   `json:"header"`
	Body       []byte        `json:"body"`
	StoredAt   time.Time     `json:"stored_at"`
	MaxAge     time.Duration `json:"max_age"`

	// Vary holds the request header values named by the response's Vary
	// header. The entry only serves requests with the same values.
	Vary map[string]string `json:"vary,omitempty"`
}

// Matches reports whether req carries the header values the entry was
// stored under.
func (c *CachedResponse) Matches(req *http.Request) bool {
	for name, value := range c.Vary {
		if strings.Join(req.Header.Values(name), ",") != value {
			return false
		}
	}
	return true
}

// Fresh reports whether the entry is within its max-age at now.
func (c *CachedResponse) Fresh(now time.Time) bool {
	return c.MaxAge > 0 && now.Sub(c.StoredAt) < c.MaxAge
}

func (c *CachedResponse) toResponse(req *http.Request) *http.Response {
	return &http.Response{
		Status:        strconv.Itoa(c.StatusCode) + " " + http.StatusText(c.StatusCode),
		StatusCode:    c.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        c.Header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(c.Body)),
		ContentLength: int64(len(c.Body)),
		Request:       req,
	}
}

// ResponseCache stores responses. Get returns nil and no error on a miss.
type ResponseCache interface {
	Get(ctx context.Context, key string) (*CachedResponse, error)
	Set(ctx context.Context, key string, resp *CachedResponse) error
	Delete(ctx context.Context, key string) error
}

type cacheVerdictKind int

const (
	cacheStore cacheVerdictKind = iota
	cacheSkip
	cacheModify
)

// CacheVerdict is the answer of a CacheHandler.
type CacheVerdict struct {
	kind cacheVerdictKind
	resp *CachedResponse
}

// CacheResponse stores the proposed response.
func CacheResponse() CacheVerdict { return CacheVerdict{kind: cacheStore} }

// DoNotCache refuses the proposal.
func DoNotCache() CacheVerdict { return CacheVerdict{kind: cacheSkip} }

// ModifyCache stores resp instead of the proposal.
func ModifyCache(resp *CachedResponse) CacheVerdict {
	return CacheVerdict{kind: cacheModify, resp: resp}
}

// CacheHandler decides whether a proposed response is stored.
type CacheHandler interface {
	Cache(ctx context.Context, t *Task, proposed *CachedResponse) CacheVerdict
}

// CacheHandlerFunc adapts a function to CacheHandler.
type CacheHandlerFunc func(ctx context.Context, t *Task, proposed *CachedResponse) CacheVerdict

// Cache implements CacheHandler.
func (f CacheHandlerFunc) Cache(ctx context.Context, t *Task, proposed *CachedResponse) CacheVerdict {
	return f(ctx, t, proposed)
}

func applyCacheVerdict(v CacheVerdict, proposed *CachedResponse) *CachedResponse {
	switch v.kind {
	case cacheSkip:
		return nil
	case cacheModify:
		return v.resp
	default:
		return proposed
	}
}

// cacheKey keys a request by method, normalised URL and the credentials it
// carries.
func cacheKey(req *http.Request) string {
	key := GenerateCoalesceKey(req.Method, req.URL.String(), nil)
	if digest := headerDigest(req.Header, identityHeaders); digest != "" {
		key += ":" + digest
	}
	return key
}

// cacheableResponse proposes a cache entry for resp, or nil when the
// response must not be stored. Responses to requests with credentials are
// only stored when marked public.
func cacheableResponse(req *http.Request, resp *http.Response, body []byte, now time.Time) *CachedResponse {
	if req.Method != http.MethodGet || resp.StatusCode != http.StatusOK {
		return nil
	}
	cc := strings.ToLower(resp.Header.Get("Cache-Control"))
	if strings.Contains(cc, "no-store") || strings.Contains(cc, "private") {
		return nil
	}
	if hasIdentity(req.Header) && !hasDirective(cc, "public") {
		return nil
	}

	vary, ok := varyValues(req, resp.Header)
	if !ok {
		return nil
	}
	return &CachedResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       append([]byte(nil), body...),
		StoredAt:   now,
		MaxAge:     maxAge(cc),
		Vary:       vary,
	}
}

// varyValues records the request headers named by Vary. It reports false
// for "Vary: *", which no later request can match.
func varyValues(req *http.Request, header http.Header) (map[string]string, bool) {
	var vary map[string]string
	for _, line := range header.Values("Vary") {
		for _, name := range strings.Split(line, ",") {
			name = strings.TrimSpace(name)
			switch name {
			case "":
				continue
			case "*":
				return nil, false
			}
			if vary == nil {
				vary = make(map[string]string)
			}
			name = http.CanonicalHeaderKey(name)
			vary[name] = strings.Join(req.Header.Values(name), ",")
		}
	}
	return vary, true
}

func hasDirective(cacheControl, directive string) bool {
	for _, d := range strings.Split(cacheControl, ",") {
		if strings.TrimSpace(d) == directive {
			return true
		}
	}
	return false
}

func maxAge(cacheControl string) time.Duration {
	if strings.Contains(cacheControl, "no-cache") {
		return 0
	}
	for _, directive := range strings.Split(cacheControl, ",") {
		directive = strings.TrimSpace(directive)
		if v, ok := strings.CutPrefix(directive, "max-age="); ok {
			if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
				return time.Duration(secs) * time.Second
			}
		}
	}
	return 0
}

const (
	// DefaultMemoryCacheSize is the entry limit of NewMemoryCache.
	DefaultMemoryCacheSize = 1024

	// DefaultMemoryCacheRetention is how long NewMemoryCache keeps an entry.
	DefaultMemoryCacheRetention = time.Hour
)

// MemoryCache is an in-process ResponseCache. It holds at most a fixed
// number of entries, evicting the least recently used, and drops entries
// once their retention has passed.
type MemoryCache struct {
	entries *expirable.LRU[string, *CachedResponse]
}

var _ ResponseCache = (*MemoryCache)(nil)

// NewMemoryCache returns an empty MemoryCache with DefaultMemoryCacheSize
// entries and DefaultMemoryCacheRetention.
func NewMemoryCache() *MemoryCache {
	return NewBoundedMemoryCache(DefaultMemoryCacheSize, DefaultMemoryCacheRetention)
}

// NewBoundedMemoryCache returns an empty MemoryCache holding up to size
// entries for retention each.
func NewBoundedMemoryCache(size int, retention time.Duration) *MemoryCache {
	if size <= 0 {
		size = DefaultMemoryCacheSize
	}
	if retention <= 0 {
		retention = DefaultMemoryCacheRetention
	}
	return &MemoryCache{entries: expirable.NewLRU[string, *CachedResponse](size, nil, retention)}
}

// Get implements ResponseCache.
func (m *MemoryCache) Get(_ context.Context, key string) (*CachedResponse, error) {
	entry, _ := m.entries.Get(key)
	return entry, nil
}

// Set implements ResponseCache.
func (m *MemoryCache) Set(_ context.Context, key string, resp *CachedResponse) error {
	m.entries.Add(key, resp)
	return nil
}

// Delete implements ResponseCache.
func (m *MemoryCache) Delete(_ context.Context, key string) error {
	m.entries.Remove(key)
	return nil
}

// Len returns the number of stored entries.
func (m *MemoryCache) Len() int {
	return m.entries.Len()
}
