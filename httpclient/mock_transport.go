package httpclient

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sync"
)

// MockResponse is a canned response served by MockTransport.
type MockResponse struct {
	StatusCode int
	Header     http.Header
	Body       string
	Err        error
}

func (r MockResponse) build(req *http.Request) (*http.Response, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	header := r.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	return &http.Response{
		StatusCode:    r.StatusCode,
		Status:        fmt.Sprintf("%d %s", r.StatusCode, http.StatusText(r.StatusCode)),
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewBufferString(r.Body)),
		ContentLength: int64(len(r.Body)),
		Request:       req,
	}, nil
}

type mockStub struct {
	matcher   func(*http.Request) bool
	responses []MockResponse
	served    int
}

// next returns the stub's next response. The last response repeats.
func (s *mockStub) next() MockResponse {
	r := s.responses[min(s.served, len(s.responses)-1)]
	s.served++
	return r
}

// MockTransport is an http.RoundTripper serving canned responses, for
// tests that exercise the task pipeline without a server.
//
//	mock := httpclient.NewMockTransport().
//	    StubSequence(
//	        httpclient.MockResponse{StatusCode: 503},
//	        httpclient.MockResponse{StatusCode: 200, Body: `{"ok":true}`},
//	    )
//	client := httpclient.New(httpclient.WithMockTransport(mock))
type MockTransport struct {
	mu       sync.Mutex
	stubs    []*mockStub
	fallback *mockStub
	requests []*http.Request
	hook     func(*http.Request)
}

// NewMockTransport returns a MockTransport with no stubs.
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// StubResponse answers every unmatched request with statusCode and body.
func (m *MockTransport) StubResponse(statusCode int, body string) *MockTransport {
	return m.StubSequence(MockResponse{StatusCode: statusCode, Body: body})
}

// StubError fails every unmatched request with err.
func (m *MockTransport) StubError(err error) *MockTransport {
	return m.StubSequence(MockResponse{Err: err})
}

// StubSequence answers unmatched requests with responses in order,
// repeating the last one once the sequence is exhausted.
func (m *MockTransport) StubSequence(responses ...MockResponse) *MockTransport {
	if len(responses) == 0 {
		return m
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = &mockStub{responses: responses}
	return m
}

// StubPath answers requests for path.
func (m *MockTransport) StubPath(path string, statusCode int, body string) *MockTransport {
	return m.StubFunc(func(req *http.Request) bool {
		return req.URL.Path == path
	}, MockResponse{StatusCode: statusCode, Body: body})
}

// StubPathRegex answers requests whose path matches pattern.
func (m *MockTransport) StubPathRegex(pattern string, statusCode int, body string) *MockTransport {
	re := regexp.MustCompile(pattern)
	return m.StubFunc(func(req *http.Request) bool {
		return re.MatchString(req.URL.Path)
	}, MockResponse{StatusCode: statusCode, Body: body})
}

// StubFunc answers requests matching matcher with responses in order.
// Stubs are consulted in registration order; the first match wins.
func (m *MockTransport) StubFunc(matcher func(*http.Request) bool, responses ...MockResponse) *MockTransport {
	if len(responses) == 0 {
		return m
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stubs = append(m.stubs, &mockStub{matcher: matcher, responses: responses})
	return m
}

// OnRequest registers a hook called with every request.
func (m *MockTransport) OnRequest(fn func(*http.Request)) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = fn
	return m
}

// RoundTrip implements http.RoundTripper.
func (m *MockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	hook := m.hook

	var resp MockResponse
	matched := false
	for _, s := range m.stubs {
		if s.matcher(req) {
			resp, matched = s.next(), true
			break
		}
	}
	if !matched && m.fallback != nil {
		resp, matched = m.fallback.next(), true
	}
	m.mu.Unlock()

	if hook != nil {
		hook(req)
	}
	if !matched {
		return nil, fmt.Errorf("httpclient: no stub for %s %s", req.Method, req.URL)
	}
	return resp.build(req)
}

// Requests returns every request received so far.
func (m *MockTransport) Requests() []*http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*http.Request(nil), m.requests...)
}

// RequestCount returns the number of requests received.
func (m *MockTransport) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// LastRequest returns the most recent request, or nil.
func (m *MockTransport) LastRequest() *http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}

// Reset drops every stub and recorded request.
func (m *MockTransport) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stubs = nil
	m.fallback = nil
	m.requests = nil
	m.hook = nil
}

// WithMockTransport sends every wire attempt to mock instead of the
// network. The OpenTelemetry, breaker and rate limiting layers still wrap it.
func WithMockTransport(mock *MockTransport) Option {
	return WithRoundTripper(mock)
}
