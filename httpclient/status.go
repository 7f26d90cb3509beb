package httpclient

import (
	"net/http"
	"slices"
)

// StatusSet is an immutable set of HTTP status codes.
type StatusSet struct {
	codes map[int]struct{}
}

// NewStatusSet returns a set containing codes.
func NewStatusSet(codes ...int) StatusSet {
	s := StatusSet{codes: make(map[int]struct{}, len(codes))}
	for _, c := range codes {
		s.codes[c] = struct{}{}
	}
	return s
}

// StatusRange returns a set containing every code in [lo, hi]. It is empty
// when lo > hi.
func StatusRange(lo, hi int) StatusSet {
	if lo > hi {
		return NewStatusSet()
	}
	codes := make([]int, 0, hi-lo+1)
	for c := lo; c <= hi; c++ {
		codes = append(codes, c)
	}
	return NewStatusSet(codes...)
}

// Contains reports whether code is in the set.
func (s StatusSet) Contains(code int) bool {
	_, ok := s.codes[code]
	return ok
}

// Union returns a new set holding the codes of both sets.
func (s StatusSet) Union(other StatusSet) StatusSet {
	return NewStatusSet(append(s.Codes(), other.Codes()...)...)
}

// Codes returns the codes in ascending order.
func (s StatusSet) Codes() []int {
	out := make([]int, 0, len(s.codes))
	for c := range s.codes {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// Len returns the number of codes.
func (s StatusSet) Len() int {
	return len(s.codes)
}

// SuccessStatuses is the default accepted set: every 2xx code.
var SuccessStatuses = StatusRange(200, 299)

// RetryableStatuses is the default set of transient failures that a retry
// may fix: 408, 429, 502, 503 and 504. 500 is left out since it usually
// reports a server bug rather than a transient condition.
var RetryableStatuses = NewStatusSet(
	http.StatusRequestTimeout,
	http.StatusTooManyRequests,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
)
