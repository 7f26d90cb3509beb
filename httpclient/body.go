package httpclient

import (
	"context"
	"io"
	"net/http"
	"sync/atomic"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// spanBody wraps an http.Response.Body so the attempt span covers the body
// transfer:
//  1. Track the number of bytes read
//  2. Record read errors on the span
//  3. End the span once, on EOF or Close
type spanBody struct {
	span   trace.Span
	body   io.ReadCloser
	read   atomic.Int64
	closed atomic.Bool

	// onClose is called with total bytes read when the span ends.
	onClose func(bytesRead int64)
}

func newSpanBody(span trace.Span, body io.ReadCloser, onClose func(bytesRead int64)) io.ReadCloser {
	if body == nil || body == http.NoBody {
		span.End()
		if onClose != nil {
			onClose(0)
		}
		return body
	}
	return &spanBody{span: span, body: body, onClose: onClose}
}

// Read reads from the underlying body, tracking bytes and errors.
func (w *spanBody) Read(p []byte) (int, error) {
	n, err := w.body.Read(p)
	w.read.Add(int64(n))

	switch err {
	case nil:
	case io.EOF:
		w.endSpan()
	default:
		w.span.RecordError(err)
		w.span.SetStatus(codes.Error, err.Error())
	}
	return n, err
}

// Close closes the underlying body and ends the span.
func (w *spanBody) Close() error {
	w.endSpan()
	return w.body.Close()
}

func (w *spanBody) endSpan() {
	if w.closed.CompareAndSwap(false, true) {
		if w.onClose != nil {
			w.onClose(w.read.Load())
		}
		w.span.End()
	}
}

// copyChunked copies src to dst in chunks of size bytes. Before each chunk
// it waits on gate, so a suspended task stops pulling bytes off the wire;
// after each chunk it reports the running total to progress.
func copyChunked(
	ctx context.Context,
	dst io.Writer,
	src io.Reader,
	size int,
	gate *transferGate,
	progress func(completed int64),
) (int64, error) {
	buf := make([]byte, size)
	var written int64
	for {
		if err := gate.wait(ctx); err != nil {
			return written, err
		}

		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return written, werr
			}
			written += int64(n)
			if progress != nil {
				progress(written)
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}
