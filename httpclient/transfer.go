package httpclient

import (
	"context"
	"sync"
	"sync/atomic"
)

// transferGate pauses body transfer while a task is suspended.
type transferGate struct {
	mu      sync.Mutex
	resumed chan struct{} // nil while not suspended
}

func (g *transferGate) suspend() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.resumed == nil {
		g.resumed = make(chan struct{})
	}
}

func (g *transferGate) resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.resumed != nil {
		close(g.resumed)
		g.resumed = nil
	}
}

// wait blocks while the gate is suspended. It returns ctx.Err() if the
// context ends first.
func (g *transferGate) wait(ctx context.Context) error {
	if g == nil {
		return ctx.Err()
	}
	g.mu.Lock()
	ch := g.resumed
	g.mu.Unlock()
	if ch == nil {
		return ctx.Err()
	}
	select {
	case <-ch:
		return ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// transferHandle is the task's handle on the in-flight transport call.
type transferHandle struct {
	gate   *transferGate
	cancel context.CancelFunc
}

func newTransferHandle(cancel context.CancelFunc) *transferHandle {
	return &transferHandle{gate: &transferGate{}, cancel: cancel}
}

func (h *transferHandle) suspend() { h.gate.suspend() }
func (h *transferHandle) resume()  { h.gate.resume() }

func (h *transferHandle) stop() {
	h.gate.resume()
	h.cancel()
}

// transferOptions carries per-call settings from the executor to the
// transport through the request context.
type transferOptions struct {
	bufferSize  int
	downloadDir string
	cachePolicy CachePolicy
	gate        *transferGate
}

type transferOptionsKey struct{}

func withTransferOptions(ctx context.Context, opts transferOptions) context.Context {
	return context.WithValue(ctx, transferOptionsKey{}, opts)
}

func transferOptionsFrom(ctx context.Context) transferOptions {
	opts, _ := ctx.Value(transferOptionsKey{}).(transferOptions)
	if opts.bufferSize <= 0 {
		opts.bufferSize = Value(Configuration{}, BufferSizeKey)
	}
	return opts
}

// Progress tracks the bytes received for a task. Total is -1 while the
// expected length is unknown.
type Progress struct {
	completed atomic.Int64
	total     atomic.Int64
}

func newProgress() *Progress {
	p := &Progress{}
	p.total.Store(-1)
	return p
}

// Completed returns the bytes received so far.
func (p *Progress) Completed() int64 {
	return p.completed.Load()
}

// Total returns the expected length, or -1 when unknown.
func (p *Progress) Total() int64 {
	return p.total.Load()
}

// Fraction returns completed/total in [0, 1], or 0 when total is unknown.
func (p *Progress) Fraction() float64 {
	total := p.total.Load()
	if total <= 0 {
		return 0
	}
	f := float64(p.completed.Load()) / float64(total)
	if f > 1 {
		return 1
	}
	return f
}

func (p *Progress) update(completed, total int64) {
	p.completed.Store(completed)
	p.total.Store(total)
}

func (p *Progress) reset() {
	p.completed.Store(0)
	p.total.Store(-1)
}

// finish marks the transfer as complete with whatever was received.
func (p *Progress) finish() {
	done := p.completed.Load()
	if p.total.Load() < done {
		p.total.Store(done)
	}
}
