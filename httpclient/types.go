package httpclient

import "net/http"

// RoundTripper mirrors http.RoundTripper so that a mock can be generated
// for the transport stack tests. Transport is mocked the same way.
type RoundTripper interface {
	RoundTrip(*http.Request) (*http.Response, error)
}

var _ RoundTripper = http.RoundTripper(nil)
