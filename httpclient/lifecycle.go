package httpclient

import (
	"context"
	"net/http"
	"sync"
)

// execution is the single-flight handle of one task cycle. Every caller
// awaiting the cycle observes the same result.
type execution struct {
	done chan struct{}
	resp *Response
	err  error
}

// wait blocks until the cycle finishes or ctx ends. Ending ctx only stops
// the wait; the cycle keeps running for the other callers.
func (e *execution) wait(ctx context.Context) (*Response, error) {
	select {
	case <-e.done:
		return e.resp, e.err
	case <-ctx.Done():
		return nil, cancelledError(ctx.Err())
	}
}

// taskState owns every mutable field of a task behind one mutex.
type taskState struct {
	mu        sync.Mutex
	state     State
	attempt   int
	request   *http.Request
	handle    *transferHandle
	metrics   *TaskMetrics
	exec      *execution
	authRetry bool

	// resumed is open while the task is suspended.
	resumed chan struct{}

	// notifyMu serialises notifications so subscribers see transitions in
	// the order they were applied.
	notifyMu    sync.Mutex
	subscribers []func(from, to State)
}

func newTaskState() *taskState {
	return &taskState{state: StateCreated}
}

// transition applies from the current state to next if the move is legal.
// Illegal transitions leave the state unchanged and notify nobody.
func (s *taskState) transition(next State) bool {
	return s.transitionFrom(next, nil)
}

// transitionFrom is transition restricted to the source states accepted by
// allow. A nil allow accepts every legal source.
func (s *taskState) transitionFrom(next State, allow func(State) bool) bool {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	from := s.state
	if !CanTransition(from, next) || (allow != nil && !allow(from)) {
		s.mu.Unlock()
		return false
	}
	s.state = next
	switch {
	case next == StateSuspended:
		s.resumed = make(chan struct{})
		if s.handle != nil {
			s.handle.suspend()
		}
	case from == StateSuspended:
		if s.resumed != nil {
			close(s.resumed)
			s.resumed = nil
		}
		if s.handle != nil && next == StateRunning {
			s.handle.resume()
		}
	}
	subs := s.subscribers
	s.mu.Unlock()

	for _, fn := range subs {
		fn(from, next)
	}
	return true
}

// subscribe registers fn for every applied transition. fn runs on the
// goroutine that applied the transition and must not call transition.
func (s *taskState) subscribe(fn func(from, to State)) {
	s.mu.Lock()
	s.subscribers = append(s.subscribers[:len(s.subscribers):len(s.subscribers)], fn)
	s.mu.Unlock()
}

func (s *taskState) current() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// awaitResume blocks while the task is suspended.
func (s *taskState) awaitResume(ctx context.Context) error {
	s.mu.Lock()
	ch := s.resumed
	s.mu.Unlock()
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

func (s *taskState) currentAttempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt
}

// activeExecution returns the in-flight execution, starting perform on a
// new goroutine when there is none. Concurrent callers share one start.
func (s *taskState) activeExecution(perform func() (*Response, error)) *execution {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exec != nil {
		return s.exec
	}
	return s.startLocked(perform)
}

// retryExecution resets the state for the next attempt and starts perform
// as its execution, in one step. Callers arriving in between attach to the
// new execution instead of starting their own.
func (s *taskState) retryExecution(perform func() (*Response, error)) *execution {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	return s.startLocked(perform)
}

func (s *taskState) startLocked(perform func() (*Response, error)) *execution {
	exec := &execution{done: make(chan struct{})}
	s.exec = exec
	go func() {
		exec.resp, exec.err = perform()
		close(exec.done)
	}()
	return exec
}

// resetForRetry prepares the state for the next cycle: the attempt counter
// moves forward and the per-attempt handles are dropped.
func (s *taskState) resetForRetry() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *taskState) resetLocked() {
	s.attempt++
	s.exec = nil
	s.handle = nil
	s.metrics = nil
}

// swapRequest replaces the stored wire request and returns the previous one.
func (s *taskState) swapRequest(req *http.Request) *http.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.request
	s.request = req
	return prev
}

func (s *taskState) wireRequest() *http.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.request
}

// setHandle stores the transport handle. It reports false, and stores
// nothing, once the task is cancelled.
func (s *taskState) setHandle(h *transferHandle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateCancelled {
		return false
	}
	s.handle = h
	if s.state == StateSuspended {
		h.suspend()
	}
	return true
}

func (s *taskState) transferHandle() *transferHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

func (s *taskState) setMetrics(m *TaskMetrics) {
	s.mu.Lock()
	s.metrics = m
	s.mu.Unlock()
}

func (s *taskState) taskMetrics() *TaskMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}

func (s *taskState) markAuthRetry() {
	s.mu.Lock()
	s.authRetry = true
	s.mu.Unlock()
}

func (s *taskState) authRetried() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authRetry
}
