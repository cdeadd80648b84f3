package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
)

// Result classifies a response.
type Result uint8

const (
	// ResultSuccess indicates a 2xx response.
	ResultSuccess Result = iota

	// ResultTemporaryError indicates the request may succeed if retried.
	ResultTemporaryError

	// ResultPermanentError indicates the request must not be retried.
	ResultPermanentError

	// ResultExpired indicates the request timed out before a response arrived.
	ResultExpired
)

// String returns the result name.
func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "SUCCESS"
	case ResultTemporaryError:
		return "TEMPORARY_ERROR"
	case ResultPermanentError:
		return "PERMANENT_ERROR"
	case ResultExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// Response is the outcome of a request.
type Response struct {
	// HTTPStatus is the response status code, 0 if no response was received.
	HTTPStatus int

	// Payload is the raw response body.
	Payload []byte

	// Err is the transport error, if the request failed before a response.
	Err error
}

// NewErrorResponse creates a response for a transport failure.
func NewErrorResponse(err error) *Response {
	return &Response{Err: err}
}

// Result classifies the response.
func (r *Response) Result() Result {
	if r.Err != nil {
		if errors.Is(r.Err, context.DeadlineExceeded) {
			return ResultExpired
		}
		if errors.Is(r.Err, ErrResponseTooLarge) {
			return ResultPermanentError
		}
		return ResultTemporaryError
	}
	switch {
	case r.HTTPStatus >= 200 && r.HTTPStatus < 300:
		return ResultSuccess
	case r.HTTPStatus == http.StatusRequestTimeout, r.HTTPStatus == http.StatusTooManyRequests:
		return ResultTemporaryError
	case r.HTTPStatus >= 500:
		return ResultTemporaryError
	default:
		return ResultPermanentError
	}
}

// DecodeJSON unmarshals the payload into v.
func (r *Response) DecodeJSON(v any) error {
	if len(r.Payload) == 0 {
		return ErrEmptyPayload
	}
	return json.Unmarshal(r.Payload, v)
}
