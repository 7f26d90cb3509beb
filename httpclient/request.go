package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Request is a declared request. Tasks call Resolve once per attempt with
// the configuration snapshot of that attempt.
type Request interface {
	// ID names the request. It is used in logs and span attributes.
	ID() string

	// Resolve builds the wire request.
	Resolve(ctx context.Context, cfg Configuration) (*http.Request, error)
}

// ConfigurationModifier is implemented by requests that override
// configuration values for their own tasks, such as a per-request cache
// policy or timeout. It is applied to every attempt's snapshot.
type ConfigurationModifier interface {
	ModifyConfiguration(cfg Configuration) Configuration
}

// ResolveFunc builds a wire request from a configuration snapshot.
type ResolveFunc func(ctx context.Context, cfg Configuration) (*http.Request, error)

type funcRequest struct {
	id      string
	resolve ResolveFunc
}

// NewRequestFunc boxes an id and a resolve function into a Request.
//
//	req := httpclient.NewRequestFunc("Health", func(ctx context.Context, _ httpclient.Configuration) (*http.Request, error) {
//	    return http.NewRequestWithContext(ctx, http.MethodGet, "https://api.example.com/health", nil)
//	})
func NewRequestFunc(id string, resolve ResolveFunc) Request {
	return funcRequest{id: id, resolve: resolve}
}

func (r funcRequest) ID() string { return r.id }

func (r funcRequest) Resolve(ctx context.Context, cfg Configuration) (*http.Request, error) {
	return r.resolve(ctx, cfg)
}

// requestBuild accumulates the effect of an Endpoint's modifiers for one
// resolution.
type requestBuild struct {
	method      string
	path        string
	pathParams  map[string]string
	query       url.Values
	header      http.Header
	body        []byte
	contentType string
	files       []FileUpload
	fields      [][2]string
}

type modifier func(cfg Configuration, b *requestBuild) error

// Endpoint declares a request as an ordered list of modifiers, applied in
// sequence on every resolution. Later modifiers override earlier ones.
//
//	ep := httpclient.NewEndpoint("CreateUser").
//	    Method(http.MethodPost).
//	    Path("/users/{org}").
//	    PathParam("org", orgID).
//	    Header("Idempotency-Key", key).
//	    Body(user)
//	resp, err := client.Do(ctx, ep)
//
// An Endpoint is not safe for concurrent modification, but once built it
// may be resolved by any number of tasks.
type Endpoint struct {
	id        string
	modifiers []modifier

	cachePolicy *CachePolicy
	timeout     *time.Duration
}

var (
	_ Request               = (*Endpoint)(nil)
	_ ConfigurationModifier = (*Endpoint)(nil)
)

// NewEndpoint creates an Endpoint. id names the operation in logs and spans.
func NewEndpoint(id string) *Endpoint {
	return &Endpoint{id: id}
}

// ID implements Request.
func (e *Endpoint) ID() string {
	return e.id
}

func (e *Endpoint) with(m modifier) *Endpoint {
	e.modifiers = append(e.modifiers, m)
	return e
}

// Method sets the HTTP method. Default: GET.
func (e *Endpoint) Method(method string) *Endpoint {
	return e.with(func(_ Configuration, b *requestBuild) error {
		b.method = method
		return nil
	})
}

// Path sets the request path. Relative paths are joined to BaseURLKey;
// absolute URLs are used as they are. {name} segments are filled by
// PathParam.
func (e *Endpoint) Path(path string) *Endpoint {
	return e.with(func(_ Configuration, b *requestBuild) error {
		b.path = path
		return nil
	})
}

// PathParam fills the {key} segment of the path, escaped.
func (e *Endpoint) PathParam(key, value string) *Endpoint {
	return e.with(func(_ Configuration, b *requestBuild) error {
		b.pathParams[key] = value
		return nil
	})
}

// Query sets a query parameter.
func (e *Endpoint) Query(key, value string) *Endpoint {
	return e.with(func(_ Configuration, b *requestBuild) error {
		b.query.Set(key, value)
		return nil
	})
}

// Queries sets several query parameters.
func (e *Endpoint) Queries(params map[string]string) *Endpoint {
	return e.with(func(_ Configuration, b *requestBuild) error {
		for k, v := range params {
			b.query.Set(k, v)
		}
		return nil
	})
}

// Header sets a header, overriding the configured default headers.
func (e *Endpoint) Header(key, value string) *Endpoint {
	return e.with(func(_ Configuration, b *requestBuild) error {
		b.header.Set(key, value)
		return nil
	})
}

// Headers sets several headers.
func (e *Endpoint) Headers(headers map[string]string) *Endpoint {
	return e.with(func(_ Configuration, b *requestBuild) error {
		for k, v := range headers {
			b.header.Set(k, v)
		}
		return nil
	})
}

// Body sets the request body:
//   - string: text/plain
//   - []byte: application/octet-stream
//   - io.Reader: read once on first resolution, then resent as is
//   - url.Values: form encoded
//   - anything else: encoded with EncoderKey (JSON by default)
func (e *Endpoint) Body(v any) *Endpoint {
	switch body := v.(type) {
	case nil:
		return e
	case string:
		return e.rawBody([]byte(body), "text/plain; charset=utf-8")
	case []byte:
		return e.rawBody(body, "application/octet-stream")
	case url.Values:
		return e.rawBody([]byte(body.Encode()), "application/x-www-form-urlencoded")
	case io.Reader:
		buf := &onceBuffer{r: body}
		return e.with(func(_ Configuration, b *requestBuild) error {
			data, err := buf.bytes()
			if err != nil {
				return fmt.Errorf("read request body: %w", err)
			}
			b.body = data
			return nil
		})
	default:
		return e.with(func(cfg Configuration, b *requestBuild) error {
			return encodeBody(Value(cfg, EncoderKey), v, b)
		})
	}
}

// BodyJSON encodes v as JSON regardless of EncoderKey.
func (e *Endpoint) BodyJSON(v any) *Endpoint {
	return e.with(func(_ Configuration, b *requestBuild) error {
		return encodeBody(JSONEncoder{}, v, b)
	})
}

// BodyXML encodes v as XML regardless of EncoderKey.
func (e *Endpoint) BodyXML(v any) *Endpoint {
	return e.with(func(_ Configuration, b *requestBuild) error {
		return encodeBody(XMLEncoder{}, v, b)
	})
}

// BodyForm sets a form encoded body.
func (e *Endpoint) BodyForm(data map[string]string) *Endpoint {
	values := make(url.Values, len(data))
	for k, v := range data {
		values.Set(k, v)
	}
	return e.rawBody([]byte(values.Encode()), "application/x-www-form-urlencoded")
}

func (e *Endpoint) rawBody(data []byte, contentType string) *Endpoint {
	return e.with(func(_ Configuration, b *requestBuild) error {
		b.body = data
		b.contentType = contentType
		return nil
	})
}

// CachePolicy overrides CachePolicyKey for tasks of this endpoint.
func (e *Endpoint) CachePolicy(p CachePolicy) *Endpoint {
	e.cachePolicy = &p
	return e
}

// Timeout overrides TimeoutKey for tasks of this endpoint.
func (e *Endpoint) Timeout(d time.Duration) *Endpoint {
	e.timeout = &d
	return e
}

// ModifyConfiguration implements ConfigurationModifier.
func (e *Endpoint) ModifyConfiguration(cfg Configuration) Configuration {
	if e.cachePolicy != nil {
		cfg = With(cfg, CachePolicyKey, *e.cachePolicy)
	}
	if e.timeout != nil {
		cfg = With(cfg, TimeoutKey, *e.timeout)
	}
	return cfg
}

// Resolve implements Request.
func (e *Endpoint) Resolve(ctx context.Context, cfg Configuration) (*http.Request, error) {
	b := &requestBuild{
		method:     http.MethodGet,
		pathParams: make(map[string]string),
		query:      make(url.Values),
		header:     make(http.Header),
	}
	for _, m := range e.modifiers {
		if err := m(cfg, b); err != nil {
			return nil, err
		}
	}

	target, err := b.url(Value(cfg, BaseURLKey))
	if err != nil {
		return nil, err
	}

	if len(b.files) > 0 {
		body, contentType, err := b.multipart()
		if err != nil {
			return nil, err
		}
		b.body, b.contentType = body, contentType
	}

	var body io.Reader
	if b.body != nil {
		body = bytes.NewReader(b.body)
	}
	req, err := http.NewRequestWithContext(ctx, b.method, target, body)
	if err != nil {
		return nil, err
	}

	for k, v := range Value(cfg, HeadersKey) {
		req.Header[k] = append([]string(nil), v...)
	}
	for k, v := range b.header {
		req.Header[k] = v
	}
	if b.contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", b.contentType)
	}
	return req, nil
}

// url joins the path to base and adds the query.
func (b *requestBuild) url(base string) (string, error) {
	path := b.path
	for k, v := range b.pathParams {
		path = strings.ReplaceAll(path, "{"+k+"}", url.PathEscape(v))
	}

	var full string
	switch {
	case strings.HasPrefix(path, "http://"), strings.HasPrefix(path, "https://"):
		full = path
	case base == "":
		return "", ErrMissingBaseURL
	case path == "":
		full = base
	default:
		full = strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
	}

	u, err := url.Parse(full)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("httpclient: %q is not an absolute URL", full)
	}
	if len(b.query) > 0 {
		q := u.Query()
		for k, vs := range b.query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func encodeBody(enc Encoder, v any, b *requestBuild) error {
	data, err := enc.Encode(v)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}
	b.body = data
	b.contentType = enc.ContentType()
	return nil
}

// onceBuffer reads a body reader on first use and replays the bytes.
type onceBuffer struct {
	once sync.Once
	r    io.Reader
	data []byte
	err  error
}

func (o *onceBuffer) bytes() ([]byte, error) {
	o.once.Do(func() {
		o.data, o.err = io.ReadAll(o.r)
		o.r = nil
	})
	return o.data, o.err
}
