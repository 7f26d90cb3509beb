package httpclient

import (
	"context"
	"fmt"
	"net/http"
)

// Response is the final result of a task.
//
// The embedded *http.Response carries the status and headers of the last
// attempt; its Body has already been consumed. Data tasks expose the body
// through Bytes, String and Decode, download tasks through FilePath.
//
//	task := client.DataTask(httpclient.NewEndpoint("GetUser").Path("/users/1"))
//	resp, err := task.Response(ctx)
//	if err != nil {
//	    return err
//	}
//	var user User
//	if err := resp.Decode(&user); err != nil {
//	    return err
//	}
type Response struct {
	*http.Response

	body     []byte
	filePath string
	attempts int
	metrics  *TaskMetrics
	decoder  Decoder
	curl     string
}

func newResponse(meta *http.Response, cfg Configuration, attempt int) *Response {
	if meta != nil {
		meta.Body = http.NoBody
	}
	return &Response{
		Response: meta,
		attempts: attempt + 1,
		decoder:  Value(cfg, DecoderKey),
	}
}

// Bytes returns the body of a data task.
func (r *Response) Bytes() []byte {
	return r.body
}

// String returns the body of a data task as a string.
func (r *Response) String() string {
	return string(r.body)
}

// FilePath returns the file written by a download task. The caller owns
// the file and should remove it when done.
func (r *Response) FilePath() string {
	return r.filePath
}

// Decode decodes the body into v with the configured decoder.
// Failures are reported as KindDecoding errors.
func (r *Response) Decode(v any) error {
	if r.decoder == nil {
		r.decoder = ContentTypeDecoder{}
	}
	var contentType string
	if r.Response != nil {
		contentType = r.Header.Get("Content-Type")
	}
	if err := r.decoder.Decode(r.body, contentType, v); err != nil {
		return decodingError(r.statusCode(), err)
	}
	return nil
}

// IsSuccess reports whether the status code is 2xx.
func (r *Response) IsSuccess() bool {
	return SuccessStatuses.Contains(r.statusCode())
}

// IsError reports whether the status code is 4xx or 5xx.
func (r *Response) IsError() bool {
	return r.statusCode() >= 400
}

// Attempts returns how many attempts the task made, retries included.
func (r *Response) Attempts() int {
	return r.attempts
}

// Metrics returns the timing of the last attempt, or nil when the
// transport reported none.
func (r *Response) Metrics() *TaskMetrics {
	return r.metrics
}

// CurlCommand returns the last wire request as a cURL command line. It is
// only populated when the client was built WithGenerateCurl.
func (r *Response) CurlCommand() string {
	return r.curl
}

func (r *Response) statusCode() int {
	if r.Response == nil {
		return 0
	}
	return r.StatusCode
}

// DecodeResponse awaits t and decodes its body into a T.
//
//	user, err := httpclient.DecodeResponse[User](ctx, task)
func DecodeResponse[T any](ctx context.Context, t *Task) (T, error) {
	var out T
	resp, err := t.Response(ctx)
	if err != nil {
		return out, err
	}
	if err := resp.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}

// String renders the metrics as an aligned table.
//
//	DNS Lookup:    2.1ms
//	TCP Connect:   15.3ms
//	TLS Handshake: 28.7ms
//	Server Time:   45.2ms
//	Total Time:    91.3ms
func (m *TaskMetrics) String() string {
	if m == nil {
		return "TaskMetrics: nil"
	}
	return fmt.Sprintf(
		"DNS Lookup:    %s\nTCP Connect:   %s\nTLS Handshake: %s\nServer Time:   %s\nTotal Time:    %s\nRedirects:     %d\nFrom Cache:    %t",
		m.DNSLookup,
		m.Connect,
		m.TLSHandshake,
		m.TimeToFirstByte,
		m.Duration,
		m.RedirectCount,
		m.FromCache,
	)
}
