package httpclient

import (
	"net/http"
	"time"
)

// keyID gives a Key its identity. Copies of a Key share the pointer.
type keyID struct {
	name string
}

// Key is a typed key into a Configuration. The zero Key is not usable;
// create keys with NewKey.
type Key[T any] struct {
	id  *keyID
	def T
}

// NewKey creates a key with a default value returned when the key is unset.
func NewKey[T any](name string, def T) Key[T] {
	return Key[T]{id: &keyID{name: name}, def: def}
}

// Name returns the name given to NewKey.
func (k Key[T]) Name() string {
	if k.id == nil {
		return ""
	}
	return k.id.name
}

// Configuration is an immutable bag of typed values. Every write returns a
// new Configuration and leaves the receiver untouched, so a value handed to
// a task cycle never observes later writes.
//
//	cfg := httpclient.Configuration{}
//	cfg = httpclient.With(cfg, httpclient.BaseURLKey, "https://api.example.com")
//	base := httpclient.Value(cfg, httpclient.BaseURLKey)
type Configuration struct {
	values map[*keyID]any
}

// Value returns the value stored under key, or the key's default.
func Value[T any](c Configuration, key Key[T]) T {
	if v, ok := c.values[key.id]; ok {
		if typed, ok := v.(T); ok {
			return typed
		}
	}
	return key.def
}

// Lookup returns the value stored under key and whether it was set.
func Lookup[T any](c Configuration, key Key[T]) (T, bool) {
	if v, ok := c.values[key.id]; ok {
		if typed, ok := v.(T); ok {
			return typed, true
		}
	}
	var zero T
	return zero, false
}

// With returns a copy of c with key set to v.
func With[T any](c Configuration, key Key[T], v T) Configuration {
	next := make(map[*keyID]any, len(c.values)+1)
	for k, val := range c.values {
		next[k] = val
	}
	next[key.id] = v
	return Configuration{values: next}
}

// Without returns a copy of c with key unset.
func Without[T any](c Configuration, key Key[T]) Configuration {
	if _, ok := c.values[key.id]; !ok {
		return c
	}
	next := make(map[*keyID]any, len(c.values))
	for k, val := range c.values {
		if k != key.id {
			next[k] = val
		}
	}
	return Configuration{values: next}
}

// Len returns the number of keys explicitly set.
func (c Configuration) Len() int {
	return len(c.values)
}

// Merge returns a copy of c overlaid with every value set in other.
func (c Configuration) Merge(other Configuration) Configuration {
	next := make(map[*keyID]any, len(c.values)+len(other.values))
	for k, val := range c.values {
		next[k] = val
	}
	for k, val := range other.values {
		next[k] = val
	}
	return Configuration{values: next}
}

// Well-known keys read by the task pipeline.
var (
	// BaseURLKey is prepended to relative request paths.
	BaseURLKey = NewKey("base_url", "")

	// HeadersKey holds headers added to every resolved request.
	HeadersKey = NewKey[http.Header]("headers", nil)

	// EncoderKey encodes struct and map request bodies.
	EncoderKey = NewKey[Encoder]("encoder", JSONEncoder{})

	// DecoderKey decodes response bodies in Response.Decode.
	DecoderKey = NewKey[Decoder]("decoder", ContentTypeDecoder{})

	// BufferSizeKey is the chunk size used when reading response bodies.
	BufferSizeKey = NewKey("buffer_size", 32*1024)

	// TimeoutKey bounds a single attempt. Zero disables the bound.
	TimeoutKey = NewKey[time.Duration]("timeout", 0)

	// InterceptorKey is the general-purpose interceptor.
	InterceptorKey = NewKey[Interceptor]("interceptor", nil)

	// AuthenticatorKey is the authentication interceptor.
	AuthenticatorKey = NewKey[Authenticator]("authenticator", nil)

	// StatusValidatorKey validates response statuses.
	StatusValidatorKey = NewKey[StatusValidator]("status_validator", DefaultStatusValidator{})

	// RetryPolicyKey decides whether failed attempts are retried.
	// Unset means failures are final.
	RetryPolicyKey = NewKey[RetryPolicy]("retry_policy", nil)

	// RedirectionHandlerKey decides how redirects are handled.
	RedirectionHandlerKey = NewKey[RedirectionHandler]("redirection_handler", nil)

	// CacheHandlerKey decides whether proposed responses are cached.
	CacheHandlerKey = NewKey[CacheHandler]("cache_handler", nil)

	// CachePolicyKey selects how the response cache is consulted.
	CachePolicyKey = NewKey("cache_policy", UseProtocolCachePolicy)

	// LoggingKey enables per-attempt logging.
	LoggingKey = NewKey("logging", false)

	// DownloadDirKey is where download tasks create their files.
	// Empty means os.TempDir.
	DownloadDirKey = NewKey("download_dir", "")
)
