package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var errNoResponse = errors.New("httpclient: transport returned no response")

// executor performs the single transport call of an attempt. Data and
// download tasks differ only here.
type executor interface {
	// execute sends req once. A non-nil Response may accompany an error
	// when the status arrived but the body transfer failed.
	execute(ctx context.Context, t *Task, req *http.Request, cfg Configuration, attempt int) (*Response, error)

	// discard releases an attempt result that will not be returned.
	discard(resp *Response)

	// finish tears down per-task transfer state once the task ends.
	finish(t *Task, resp *Response, err error)
}

// dataExecutor fetches the response body into memory. With a coalescer,
// identical GET fetches in flight across tasks share one wire request.
type dataExecutor struct {
	coalescer *coalescer
}

func (e dataExecutor) execute(
	ctx context.Context,
	t *Task,
	req *http.Request,
	cfg Configuration,
	attempt int,
) (*Response, error) {
	logger, logging := t.logger(cfg)
	if logging {
		logRequest(logger, t.id, attempt, req)
	}
	start := time.Now()

	res, err := e.fetch(ctx, t.client.transport, req)
	if err == nil && res.resp == nil {
		err = errNoResponse
	}
	if t.cancelled() {
		return nil, t.cancellation()
	}
	if err != nil {
		return partialResponse(res.resp, cfg, attempt), transportError(err)
	}

	if logging {
		logResponse(logger, t.id, res.resp, time.Since(start))
		logger.Debug().
			Str("task_id", t.id).
			Int("status", res.resp.StatusCode).
			Int("bytes", len(res.body)).
			Msg("HTTP body received")
	}

	resp := newResponse(res.resp, cfg, attempt)
	resp.body = res.body
	t.decorate(resp, req)
	return resp, nil
}

func (e dataExecutor) fetch(ctx context.Context, tr Transport, req *http.Request) (fetchResult, error) {
	get := func(ctx context.Context) (fetchResult, error) {
		body, resp, err := tr.FetchBody(ctx, req)
		return fetchResult{body: body, resp: resp}, err
	}
	if e.coalescer == nil || !coalescable(req) || req.Body != nil && req.Body != http.NoBody {
		return get(ctx)
	}

	// The shared transfer must not pause when the leading task suspends.
	opts := transferOptionsFrom(ctx)
	opts.gate = nil
	res, _, err := e.coalescer.do(withTransferOptions(ctx, opts), req, get)
	if res.resp != nil {
		// The metadata may be shared with other tasks.
		meta := *res.resp
		meta.Header = res.resp.Header.Clone()
		res.resp = &meta
	}
	return res, err
}

func (dataExecutor) discard(*Response) {}

func (dataExecutor) finish(t *Task, _ *Response, err error) {
	if err == nil {
		t.progress.finish()
	}
}

// downloadExecutor streams the response body into a file.
type downloadExecutor struct{}

func (downloadExecutor) execute(
	ctx context.Context,
	t *Task,
	req *http.Request,
	cfg Configuration,
	attempt int,
) (*Response, error) {
	t.progress.reset()

	logger, logging := t.logger(cfg)
	if logging {
		logRequest(logger, t.id, attempt, req)
	}
	start := time.Now()

	path, meta, err := t.client.transport.DownloadToFile(ctx, req)
	if err == nil && meta == nil {
		err = errNoResponse
	}
	if t.cancelled() {
		removeFile(path)
		return nil, t.cancellation()
	}
	if err != nil {
		removeFile(path)
		return partialResponse(meta, cfg, attempt), transportError(err)
	}

	if logging {
		logResponse(logger, t.id, meta, time.Since(start))
		logger.Debug().
			Str("task_id", t.id).
			Int("status", meta.StatusCode).
			Str("file", path).
			Msg("HTTP body downloaded")
	}

	resp := newResponse(meta, cfg, attempt)
	resp.filePath = path
	t.decorate(resp, req)
	return resp, nil
}

func (downloadExecutor) discard(resp *Response) {
	if resp != nil {
		removeFile(resp.filePath)
	}
}

func (e downloadExecutor) finish(t *Task, resp *Response, err error) {
	if err != nil {
		e.discard(resp)
		return
	}
	t.progress.finish()
}

func removeFile(path string) {
	if path != "" {
		_ = os.Remove(path)
	}
}

// partialResponse keeps the metadata of a failed transfer so that the
// interceptors still see the status.
func partialResponse(meta *http.Response, cfg Configuration, attempt int) *Response {
	if meta == nil {
		return nil
	}
	return newResponse(meta, cfg, attempt)
}

// decorate attaches the attempt metrics and, when enabled, the cURL form
// of the wire request.
func (t *Task) decorate(resp *Response, req *http.Request) {
	resp.metrics = t.state.taskMetrics()
	if t.client.cfg.GenerateCurl {
		resp.curl = generateCurlCommand(req, requestBody(req), true)
	}
}

// requestBody re-reads a replayable request body.
func requestBody(req *http.Request) []byte {
	if req.GetBody == nil {
		return nil
	}
	rc, err := req.GetBody()
	if err != nil {
		return nil
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	return data
}

func (t *Task) logger(cfg Configuration) (zerolog.Logger, bool) {
	return t.client.cfg.Logger, Value(cfg, LoggingKey)
}

// cancelled reports whether Cancel was called. Attempt timeouts are not
// cancellations.
func (t *Task) cancelled() bool {
	return t.state.current() == StateCancelled || t.ctx.Err() != nil
}

func (t *Task) cancellation() error {
	if cause := context.Cause(t.ctx); cause != nil {
		return cancelledError(cause)
	}
	return cancelledError(context.Canceled)
}
