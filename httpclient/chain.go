package httpclient

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

type verdictKind int

const (
	verdictContinue verdictKind = iota
	verdictFail
	verdictRetry
)

// Verdict is the decision of a response interceptor.
type Verdict struct {
	kind  verdictKind
	err   error
	delay time.Duration
}

// Continue accepts the attempt outcome as it stands.
func Continue() Verdict {
	return Verdict{kind: verdictContinue}
}

// Fail ends the task with err.
func Fail(err error) Verdict {
	if err == nil {
		err = errInterceptorFailed
	}
	return Verdict{kind: verdictFail, err: wrapError(err)}
}

// Retry schedules another attempt after delay.
func Retry(delay time.Duration) Verdict {
	if delay < 0 {
		delay = 0
	}
	return Verdict{kind: verdictRetry, delay: delay}
}

var errInterceptorFailed = errors.New("httpclient: interceptor failed without an error")

// IsContinue reports whether v is a continue verdict.
func (v Verdict) IsContinue() bool { return v.kind == verdictContinue }

// IsFail reports whether v is a fail verdict.
func (v Verdict) IsFail() bool { return v.kind == verdictFail }

// IsRetry reports whether v is a retry verdict.
func (v Verdict) IsRetry() bool { return v.kind == verdictRetry }

// Err returns the error of a fail verdict.
func (v Verdict) Err() error { return v.err }

// Delay returns the delay of a retry verdict.
func (v Verdict) Delay() time.Duration { return v.delay }

func (v Verdict) String() string {
	switch v.kind {
	case verdictFail:
		return "fail"
	case verdictRetry:
		return "retry"
	default:
		return "continue"
	}
}

// InterceptorContext describes one attempt to the response interceptors.
// Interceptors that fail the attempt update Err, and interceptors running
// later in the same pass see the updated value.
type InterceptorContext struct {
	// TaskID identifies the task across attempts.
	TaskID string

	// Attempt is zero for the first attempt.
	Attempt int

	// Configuration is the snapshot the attempt was resolved with.
	Configuration Configuration

	// Request is the wire request, nil when resolution failed.
	Request *http.Request

	// Response is the response metadata, nil when none was received.
	Response *http.Response

	// StatusCode is Response.StatusCode, or zero when absent.
	StatusCode int

	// Body is the response body of a data task.
	Body []byte

	// Err is the error of the attempt so far.
	Err error

	// AuthRetried is true once the authenticator has used its retry.
	AuthRetried bool
}

// chainStage names the interceptor that produced a retry.
type chainStage int

const (
	stageNone chainStage = iota
	stageInterceptor
	stageAuthenticator
	stagePolicy
)

func (s chainStage) String() string {
	switch s {
	case stageInterceptor:
		return "interceptor"
	case stageAuthenticator:
		return "authenticator"
	case stagePolicy:
		return "retry_policy"
	default:
		return "none"
	}
}

type chainOutcome struct {
	verdict Verdict
	stage   chainStage
}

// responseChain runs the fixed interceptor sequence for one attempt:
// status validator, general interceptor, authenticator, retry policy.
// The authenticator and retry policy only run when the attempt carries an
// error or a 401.
type responseChain struct {
	validator     StatusValidator
	interceptor   Interceptor
	authenticator Authenticator
	policy        RetryPolicy
	logger        *zerolog.Logger
}

func newResponseChain(cfg Configuration, logger zerolog.Logger) responseChain {
	c := responseChain{
		validator:     Value(cfg, StatusValidatorKey),
		interceptor:   Value(cfg, InterceptorKey),
		authenticator: Value(cfg, AuthenticatorKey),
		policy:        Value(cfg, RetryPolicyKey),
	}
	if Value(cfg, LoggingKey) {
		c.logger = &logger
	}
	return c
}

// run evaluates the chain. A retry from any stage ends the pass at once;
// otherwise a recorded failure wins over continue.
func (c responseChain) run(ctx context.Context, ic *InterceptorContext) chainOutcome {
	c.logAttempt(ic)

	out := Continue()
	apply := func(v Verdict) bool {
		switch {
		case v.IsRetry():
			return true
		case v.IsFail():
			ic.Err = v.Err()
			out = v
		}
		return false
	}

	if c.validator != nil && ic.Response != nil && ic.Err == nil {
		if err := c.validator.Validate(ic); err != nil {
			apply(Fail(err))
		}
	}

	if c.interceptor != nil {
		if v := c.interceptor.Intercept(ctx, ic); apply(v) {
			return chainOutcome{verdict: v, stage: stageInterceptor}
		}
	}

	if ic.Err == nil && ic.StatusCode != http.StatusUnauthorized {
		return chainOutcome{verdict: out}
	}

	if c.authenticator != nil {
		if v := c.authenticator.Intercept(ctx, ic); apply(v) {
			return chainOutcome{verdict: v, stage: stageAuthenticator}
		}
	}

	if c.policy != nil {
		d := c.policy.ShouldRetry(ctx, ic.Attempt, ic.StatusCode, ic.Err)
		if d.Retry {
			return chainOutcome{verdict: Retry(d.Delay), stage: stagePolicy}
		}
	}

	if ic.Err != nil && !out.IsFail() {
		out = Fail(ic.Err)
	}
	return chainOutcome{verdict: out}
}

func (c responseChain) logAttempt(ic *InterceptorContext) {
	if c.logger == nil {
		return
	}
	ev := c.logger.Debug().
		Str("task_id", ic.TaskID).
		Int("attempt", ic.Attempt)
	if ic.Request != nil {
		ev = ev.Str("method", ic.Request.Method).Str("url", ic.Request.URL.String())
	}
	if ic.StatusCode != 0 {
		ev = ev.Int("status", ic.StatusCode)
	}
	if ic.Err != nil {
		ev = ev.AnErr("error", ic.Err)
	}
	ev.Msg("HTTP task attempt")
}
