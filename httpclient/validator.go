package httpclient

import (
	"net/http"
)

// StatusValidator checks the status of a received response. Returning an
// error marks the attempt as failed.
type StatusValidator interface {
	Validate(ic *InterceptorContext) error
}

// StatusErrorHandler turns an unaccepted response into a domain error.
// Returning nil falls back to an unacceptable status error.
type StatusErrorHandler func(resp *http.Response, body []byte) error

// DefaultStatusValidator accepts a set of statuses and rejects the rest.
//
//   - Accepted statuses pass.
//   - 401 fails with an unauthorized error.
//   - Anything else goes to Handler, falling back to an unacceptable
//     status error when Handler is nil or returns nil.
//
// Example - decode API errors into a domain type:
//
//	v := httpclient.DefaultStatusValidator{
//	    Handler: func(resp *http.Response, body []byte) error {
//	        var apiErr APIError
//	        if json.Unmarshal(body, &apiErr) == nil {
//	            return &apiErr
//	        }
//	        return nil
//	    },
//	}
type DefaultStatusValidator struct {
	// Accept is the accepted set. Empty means SuccessStatuses.
	Accept StatusSet

	// Handler maps rejected responses to domain errors.
	Handler StatusErrorHandler
}

// Validate implements StatusValidator.
func (v DefaultStatusValidator) Validate(ic *InterceptorContext) error {
	if ic.Response == nil {
		return nil
	}
	accept := v.Accept
	if accept.Len() == 0 {
		accept = SuccessStatuses
	}

	status := ic.Response.StatusCode
	if accept.Contains(status) {
		return nil
	}
	if status == http.StatusUnauthorized {
		return statusError(KindUnauthorized, status, ic.Body)
	}
	if v.Handler != nil {
		if err := v.Handler(ic.Response, ic.Body); err != nil {
			return err
		}
	}
	return statusError(KindUnacceptableStatus, status, ic.Body)
}

// AcceptStatuses returns a validator accepting exactly codes.
func AcceptStatuses(codes ...int) DefaultStatusValidator {
	return DefaultStatusValidator{Accept: NewStatusSet(codes...)}
}
