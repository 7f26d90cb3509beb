package httpclient

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Task is one unit of work for a declared request. It owns the request
// across retries: every attempt resolves the request again, executes it
// once and runs the outcome through the response interceptors.
//
// A task does nothing until Resume or Response is called. Response is the
// await point; any number of goroutines may call it and all of them
// observe the same result.
//
//	task := client.DataTask(httpclient.NewEndpoint("GetUser").Path("/users/42"))
//	task.OnStateChange(func(from, to httpclient.State) {
//	    log.Printf("task %s: %s -> %s", task.ID(), from, to)
//	})
//	resp, err := task.Response(ctx)
type Task struct {
	id       string
	kind     string
	request  Request
	client   *Client
	exec     executor
	progress *Progress
	state    *taskState

	cfgMu  sync.RWMutex
	cfg    Configuration
	active Configuration

	// ctx is cancelled by Cancel, and released when the task finishes.
	ctx    context.Context
	cancel context.CancelCauseFunc

	spanMu  sync.Mutex
	span    trace.Span
	started time.Time
}

func newTask(c *Client, req Request, kind string, exec executor) *Task {
	ctx, cancel := context.WithCancelCause(context.Background())
	t := &Task{
		id:       uuid.NewString(),
		kind:     kind,
		request:  req,
		client:   c,
		exec:     exec,
		progress: newProgress(),
		state:    newTaskState(),
		cfg:      c.cfg.Configuration,
		ctx:      ctx,
		cancel:   cancel,
	}

	attrs := t.metricAttributes()
	t.state.subscribe(func(from, to State) {
		c.cfg.Metrics.recordStateTransition(context.Background(), from, to, attrs)
	})
	return t
}

// ID returns the task identity. It is stable across retries.
func (t *Task) ID() string {
	return t.id
}

// RequestID returns the ID of the declared request.
func (t *Task) RequestID() string {
	return t.request.ID()
}

// State returns the current lifecycle state.
func (t *Task) State() State {
	return t.state.current()
}

// Attempt returns the attempt counter: zero for the first attempt,
// incremented by every retry.
func (t *Task) Attempt() int {
	return t.state.currentAttempt()
}

// Progress returns the transfer progress of the current attempt.
func (t *Task) Progress() *Progress {
	return t.progress
}

// Metrics returns the timing of the current attempt, or nil before the
// transport reported it.
func (t *Task) Metrics() *TaskMetrics {
	return t.state.taskMetrics()
}

// Configuration returns the task's configuration. Attempts that already
// started keep the snapshot they were resolved with.
func (t *Task) Configuration() Configuration {
	t.cfgMu.RLock()
	defer t.cfgMu.RUnlock()
	return t.cfg
}

// Configure replaces the task's configuration with fn's result. The change
// applies from the next attempt on.
//
//	task.Configure(func(cfg httpclient.Configuration) httpclient.Configuration {
//	    return httpclient.With(cfg, httpclient.TimeoutKey, 2*time.Second)
//	})
func (t *Task) Configure(fn func(Configuration) Configuration) *Task {
	t.cfgMu.Lock()
	t.cfg = fn(t.cfg)
	t.cfgMu.Unlock()
	return t
}

// OnStateChange registers fn for every applied state transition.
// Notifications arrive in transition order, once per transition, on the
// goroutine that applied it. fn must not block.
func (t *Task) OnStateChange(fn func(from, to State)) {
	t.state.subscribe(fn)
}

// Resume starts the task, or resumes a suspended transfer. Starting an
// already running task has no effect.
func (t *Task) Resume() {
	t.wake()
	if t.state.current() != StateRunning {
		return
	}
	t.start(context.Background())
}

// Suspend pauses a running task. The body transfer stops reading and the
// task holds at its next step until Resume. Suspending a task that is not
// running has no effect.
func (t *Task) Suspend() {
	t.state.transition(StateSuspended)
}

// Cancel cancels the task and its in-flight transfer. Cancelling twice,
// or cancelling a finished task, has no effect.
func (t *Task) Cancel() {
	if !t.state.transition(StateCancelled) {
		return
	}
	t.cancel(context.Canceled)
	if h := t.state.transferHandle(); h != nil {
		h.stop()
	}
}

// Response starts the task if needed and waits for its final result.
// Ending ctx stops the wait but not the task; use Cancel for that.
//
// The error, if any, is an *Error: match it with errors.Is against
// ErrCancelled, ErrTransport, ErrUnacceptableStatus and the other kinds.
func (t *Task) Response(ctx context.Context) (*Response, error) {
	if t.state.current() == StateCancelled {
		return nil, cancelledError(context.Canceled)
	}
	t.wake()
	return t.start(ctx).wait(ctx)
}

// wake moves a created or suspended task to running. Tasks in the middle
// of a cycle are left to the loop.
func (t *Task) wake() {
	t.state.transitionFrom(StateRunning, func(from State) bool {
		return from == StateCreated || from == StateSuspended
	})
}

// start returns the in-flight execution, starting the first cycle with
// parent's values when there is none.
func (t *Task) start(parent context.Context) *execution {
	return t.state.activeExecution(func() (*Response, error) {
		return t.run(parent)
	})
}

// run opens the task span and enters the first cycle.
func (t *Task) run(parent context.Context) (*Response, error) {
	ctx, stop := context.WithCancelCause(context.WithoutCancel(parent))
	release := context.AfterFunc(t.ctx, func() {
		stop(context.Cause(t.ctx))
	})
	defer func() {
		release()
		stop(nil)
	}()

	ctx, span := t.client.cfg.Tracer.Start(ctx, "httpclient.task",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(t.attributes()...),
	)
	t.spanMu.Lock()
	t.span = span
	t.started = time.Now()
	t.spanMu.Unlock()

	return t.cycle(ctx)
}

// snapshot returns the configuration of the next attempt.
func (t *Task) snapshot() Configuration {
	t.cfgMu.Lock()
	defer t.cfgMu.Unlock()
	cfg := t.cfg
	if m, ok := t.request.(ConfigurationModifier); ok {
		cfg = m.ModifyConfiguration(cfg)
	}
	t.active = cfg
	return cfg
}

// activeConfiguration returns the snapshot of the current attempt.
func (t *Task) activeConfiguration() Configuration {
	t.cfgMu.RLock()
	defer t.cfgMu.RUnlock()
	return t.active
}

func (t *Task) attributes() []attribute.KeyValue {
	return append(t.metricAttributes(), attribute.String("httpclient.task.id", t.id))
}

// metricAttributes leaves out the task id to bound cardinality.
func (t *Task) metricAttributes() []attribute.KeyValue {
	attrs := t.client.cfg.baseAttributes()
	return append(attrs,
		attribute.String("httpclient.task.kind", t.kind),
		attribute.String("httpclient.request.id", t.request.ID()),
	)
}
