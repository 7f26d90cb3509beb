package httpclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func newTestSpan(t *testing.T) (trace.Span, *tracetest.InMemoryExporter) {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := tp.Tracer("test").Start(context.Background(), "test")
	return span, exporter
}

func TestNewSpanBody(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		body        io.ReadCloser
		wantWrapped bool
		wantEnded   bool
	}{
		{
			name:      "given nil body, then ends span immediately",
			body:      nil,
			wantEnded: true,
		},
		{
			name:      "given no body, then ends span immediately",
			body:      http.NoBody,
			wantEnded: true,
		},
		{
			name:        "given valid body, then returns wrapped body",
			body:        io.NopCloser(bytes.NewReader([]byte("test"))),
			wantWrapped: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			span, exporter := newTestSpan(t)
			closed := false

			result := newSpanBody(span, tt.body, func(int64) { closed = true })

			_, wrapped := result.(*spanBody)
			assert.Equal(t, tt.wantWrapped, wrapped)
			assert.Equal(t, tt.wantEnded, closed)
			if tt.wantEnded {
				assert.Len(t, exporter.GetSpans(), 1)
			} else {
				assert.Empty(t, exporter.GetSpans())
			}
		})
	}
}

func TestSpanBody_Read(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		content       string
		wantBytesRead int
	}{
		{name: "given content, then reads and tracks bytes", content: "hello world", wantBytesRead: 11},
		{name: "given empty content, then reads zero bytes", content: "", wantBytesRead: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			span, exporter := newTestSpan(t)
			var recordedBytes int64
			body := newSpanBody(
				span,
				io.NopCloser(strings.NewReader(tt.content)),
				func(n int64) { recordedBytes = n },
			)

			data, err := io.ReadAll(body)
			require.NoError(t, err)

			assert.Len(t, data, tt.wantBytesRead)
			assert.Equal(t, int64(tt.wantBytesRead), recordedBytes)
			assert.Len(t, exporter.GetSpans(), 1)
		})
	}
}

func TestSpanBody_CloseAfterEOF(t *testing.T) {
	t.Parallel()

	span, exporter := newTestSpan(t)
	closeCount := 0
	body := newSpanBody(span, io.NopCloser(strings.NewReader("x")), func(int64) {
		closeCount++
	})

	_, err := io.ReadAll(body)
	require.NoError(t, err)
	require.NoError(t, body.Close())
	require.NoError(t, body.Close())

	assert.Equal(t, 1, closeCount)
	assert.Len(t, exporter.GetSpans(), 1)
}

func TestSpanBody_ReadError(t *testing.T) {
	t.Parallel()

	span, exporter := newTestSpan(t)
	expectedErr := errors.New("read error")
	body := newSpanBody(span, &errorReader{err: expectedErr}, nil)

	_, err := body.Read(make([]byte, 10))
	require.ErrorIs(t, err, expectedErr)
	require.NoError(t, body.Close())

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.NotEmpty(t, spans[0].Events)
}

func TestCopyChunked(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		src          io.Reader
		size         int
		wantWritten  int64
		wantProgress []int64
		wantErr      assert.ErrorAssertionFunc
	}{
		{
			name:         "given small chunks, then reports progress per chunk",
			src:          strings.NewReader("abcdefgh"),
			size:         3,
			wantWritten:  8,
			wantProgress: []int64{3, 6, 8},
			wantErr:      assert.NoError,
		},
		{
			name:        "given empty source, then writes nothing",
			src:         strings.NewReader(""),
			size:        4,
			wantWritten: 0,
			wantErr:     assert.NoError,
		},
		{
			name:    "given read error, then returns it",
			src:     &errorReader{err: io.ErrUnexpectedEOF},
			size:    4,
			wantErr: assert.Error,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var dst bytes.Buffer
			var progress []int64
			written, err := copyChunked(
				context.Background(), &dst, tt.src, tt.size, &transferGate{},
				func(n int64) { progress = append(progress, n) },
			)

			tt.wantErr(t, err)
			assert.Equal(t, tt.wantWritten, written)
			assert.Equal(t, tt.wantProgress, progress)
		})
	}
}

func TestCopyChunked_SuspendedGate(t *testing.T) {
	t.Parallel()

	gate := &transferGate{}
	gate.suspend()

	var copied atomic.Int64
	done := make(chan error, 1)
	go func() {
		var dst bytes.Buffer
		n, err := copyChunked(context.Background(), &dst, strings.NewReader("payload"), 2, gate, nil)
		copied.Store(n)
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("copy ran through a suspended gate")
	case <-time.After(30 * time.Millisecond):
	}
	assert.Zero(t, copied.Load())

	gate.resume()
	require.NoError(t, <-done)
	assert.Equal(t, int64(7), copied.Load())
}

func TestCopyChunked_ContextCancelled(t *testing.T) {
	t.Parallel()

	gate := &transferGate{}
	gate.suspend()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := copyChunked(ctx, io.Discard, strings.NewReader("payload"), 2, gate, nil)

	assert.ErrorIs(t, err, context.Canceled)
}

// errorReader is a mock reader that always returns an error.
type errorReader struct {
	err error
}

func (e *errorReader) Read(_ []byte) (int, error) {
	return 0, e.err
}

func (e *errorReader) Close() error {
	return nil
}
