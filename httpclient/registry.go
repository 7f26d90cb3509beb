package httpclient

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
)

type wireIDKey struct{}

// stampWireRequest returns req bound to a fresh wire identity. The identity
// lives in the request context, so it survives WithContext, Clone and
// redirect hops performed by net/http.
func stampWireRequest(req *http.Request) *http.Request {
	ctx := context.WithValue(req.Context(), wireIDKey{}, uuid.NewString())
	return req.WithContext(ctx)
}

// bindWireID carries the wire identity of req into ctx, for transports
// that replace the request context.
func bindWireID(ctx context.Context, req *http.Request) context.Context {
	if id := WireID(req); id != "" {
		return context.WithValue(ctx, wireIDKey{}, id)
	}
	return ctx
}

// WireID returns the wire identity of a resolved request, or "" for
// requests that were not resolved by a task.
func WireID(req *http.Request) string {
	if req == nil {
		return ""
	}
	return wireIDFromContext(req.Context())
}

func wireIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(wireIDKey{}).(string)
	return id
}

// Registry maps in-flight wire requests to the tasks that own them, so that
// transport callbacks reach the right task. It is shared by every task of a
// Client and safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*Task)}
}

// Register binds req to t. Requests without a wire identity are ignored.
func (r *Registry) Register(req *http.Request, t *Task) {
	id := WireID(req)
	if id == "" {
		return
	}
	r.mu.Lock()
	r.tasks[id] = t
	r.mu.Unlock()
}

// Remove drops the entry for req, if any.
func (r *Registry) Remove(req *http.Request) {
	id := WireID(req)
	if id == "" {
		return
	}
	r.mu.Lock()
	delete(r.tasks, id)
	r.mu.Unlock()
}

// Lookup returns the task owning req.
func (r *Registry) Lookup(req *http.Request) (*Task, bool) {
	id := WireID(req)
	if id == "" {
		return nil, false
	}
	r.mu.RLock()
	t, ok := r.tasks[id]
	r.mu.RUnlock()
	return t, ok
}

// Len returns the number of registered requests.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}
