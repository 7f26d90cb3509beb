package httpclient

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// cycle runs one attempt: resolve, execute once, intercept. A retry verdict
// starts the next cycle as the task's new execution and waits for it, so
// callers attached to any earlier cycle receive the final result.
func (t *Task) cycle(ctx context.Context) (*Response, error) {
	if err := t.advance(ctx, StateRunning); err != nil {
		return t.finalize(ctx, nil, err)
	}

	cfg := t.snapshot()
	attempt := t.state.currentAttempt()

	var resp *Response
	req, err := t.resolve(ctx, cfg)
	if err == nil {
		resp, err = t.perform(ctx, req, cfg, attempt)
	}
	if t.cancelled() {
		t.exec.discard(resp)
		return t.finalize(ctx, nil, t.cancellation())
	}

	if err := t.advance(ctx, StateIntercepting); err != nil {
		t.exec.discard(resp)
		return t.finalize(ctx, nil, err)
	}

	ic := &InterceptorContext{
		TaskID:        t.id,
		Attempt:       attempt,
		Configuration: cfg,
		Request:       req,
		Err:           err,
		AuthRetried:   t.state.authRetried(),
	}
	if resp != nil && resp.Response != nil {
		ic.Response = resp.Response
		ic.StatusCode = resp.StatusCode
		ic.Body = resp.body
	}

	out := newResponseChain(cfg, t.client.cfg.Logger).run(ctx, ic)
	switch {
	case out.verdict.IsRetry():
		t.exec.discard(resp)
		return t.retry(ctx, cfg, attempt, out)
	case out.verdict.IsFail():
		return t.finalize(ctx, resp, out.verdict.Err())
	default:
		return t.finalize(ctx, resp, nil)
	}
}

// perform executes one attempt under a fresh transfer handle, bounded by
// TimeoutKey when set.
func (t *Task) perform(ctx context.Context, req *http.Request, cfg Configuration, attempt int) (*Response, error) {
	var (
		actx   context.Context
		cancel context.CancelFunc
	)
	if d := Value(cfg, TimeoutKey); d > 0 {
		actx, cancel = context.WithTimeout(ctx, d)
	} else {
		actx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	h := newTransferHandle(cancel)
	if !t.state.setHandle(h) {
		return nil, t.cancellation()
	}

	actx = bindWireID(actx, req)
	actx = withTransferOptions(actx, transferOptions{
		bufferSize:  Value(cfg, BufferSizeKey),
		downloadDir: Value(cfg, DownloadDirKey),
		cachePolicy: Value(cfg, CachePolicyKey),
		gate:        h.gate,
	})
	return t.exec.execute(actx, t, req, cfg, attempt)
}

// advance moves the task to next, holding while it is suspended.
// Transitions that are already in effect count as done.
func (t *Task) advance(ctx context.Context, next State) error {
	for {
		if err := t.state.awaitResume(ctx); err != nil {
			return t.cancellation()
		}
		if t.state.transition(next) {
			return nil
		}
		switch t.state.current() {
		case StateSuspended:
			continue
		case StateCancelled:
			return t.cancellation()
		default:
			return nil
		}
	}
}

// retry waits out the delay and hands over to the next cycle.
func (t *Task) retry(ctx context.Context, cfg Configuration, attempt int, out chainOutcome) (*Response, error) {
	delay := out.verdict.Delay()
	if out.stage == stageAuthenticator {
		t.state.markAuthRetry()
	}

	t.client.cfg.Metrics.recordRetryAttempt(ctx, t.metricAttributes(), attempt+1)
	t.addSpanEvent("retry",
		attribute.Int("retry.attempt", attempt+1),
		attribute.String("retry.delay", delay.String()),
		attribute.String("retry.stage", out.stage.String()),
	)
	if logger, ok := t.logger(cfg); ok {
		logger.Warn().
			Str("task_id", t.id).
			Int("attempt", attempt).
			Dur("delay", delay).
			Str("stage", out.stage.String()).
			Msg("Retrying HTTP task")
	}

	if err := sleepContext(ctx, delay); err != nil || t.cancelled() {
		return t.finalize(ctx, nil, t.cancellation())
	}

	next := t.state.retryExecution(func() (*Response, error) {
		return t.cycle(ctx)
	})
	return next.wait(context.Background())
}

// finalize ends the task: the state moves to completed unless cancelled,
// the wire request leaves the registry and the executor tears down. A
// cancelled task reports its cancellation whatever the outcome.
func (t *Task) finalize(ctx context.Context, resp *Response, err error) (*Response, error) {
	if t.cancelled() && KindOf(err) != KindCancelled {
		err = t.cancellation()
	}

	t.state.transition(StateCompleted)
	if req := t.state.wireRequest(); req != nil {
		t.client.registry.Remove(req)
	}
	t.exec.finish(t, resp, err)

	attempts := t.state.currentAttempt() + 1
	attrs := t.metricAttributes()
	m := t.client.cfg.Metrics

	t.spanMu.Lock()
	span, started := t.span, t.started
	t.spanMu.Unlock()

	duration := time.Since(started)
	m.recordTaskFinished(ctx, duration, attempts, attrs)
	if attempts > 1 {
		m.recordRetryDuration(ctx, attrs, duration)
		if err != nil && KindOf(err) != KindCancelled {
			m.recordRetryExhausted(ctx, attrs)
		}
	}

	if span != nil {
		endTaskSpan(span, attempts, t.state.current(), resp, err)
	}

	if logger, ok := t.logger(t.activeConfiguration()); ok {
		ev := logger.Debug().
			Str("task_id", t.id).
			Str("request_id", t.request.ID()).
			Int("attempts", attempts).
			Str("state", t.state.current().String()).
			Dur("duration", duration)
		if err != nil {
			ev = ev.AnErr("error", err)
		}
		ev.Msg("HTTP task finished")
	}

	if err != nil {
		return nil, err
	}
	return resp, nil
}

func endTaskSpan(span trace.Span, attempts int, state State, resp *Response, err error) {
	span.SetAttributes(
		attribute.Int("httpclient.task.attempts", attempts),
		attribute.String("httpclient.task.state", state.String()),
	)
	if resp != nil && resp.Response != nil {
		span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	}
	if err != nil {
		setSpanError(span, err, KindOf(err).String())
	}
	span.End()
}

func (t *Task) addSpanEvent(name string, attrs ...attribute.KeyValue) {
	t.spanMu.Lock()
	span := t.span
	t.spanMu.Unlock()
	if span != nil {
		span.AddEvent(name, trace.WithAttributes(attrs...))
	}
}

// sleepContext waits for d or until ctx ends.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
