package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wireapp/go-request-strategy/pkg/apiversion"
)

func TestNewRequest(t *testing.T) {
	a := NewGetRequest("/self")
	b := NewGetRequest("/self")

	assert.Equal(t, http.MethodGet, a.Method)
	assert.Equal(t, "/self", a.Path)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.NotNil(t, a.Query)
}

func TestNewJSONRequest(t *testing.T) {
	req, err := NewJSONRequest(http.MethodPut, "/properties/x", map[string]int{"value": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":1}`, string(req.Payload))

	_, err = NewJSONRequest(http.MethodPut, "/x", make(chan int))
	assert.Error(t, err)
}

func TestRequestURLPath(t *testing.T) {
	req := NewGetRequest("/notifications")
	assert.Equal(t, "/notifications", req.URLPath())

	req.APIVersion = apiversion.V2
	assert.Equal(t, "/v2/notifications", req.URLPath())

	req.Unversioned = true
	assert.Equal(t, "/notifications", req.URLPath())
}

func TestRequestCompleteOnce(t *testing.T) {
	req := NewGetRequest("/self")

	var got []int
	req.AddCompletionHandler(func(resp *Response) { got = append(got, resp.HTTPStatus) })
	req.AddCompletionHandler(func(resp *Response) { got = append(got, resp.HTTPStatus+1) })

	assert.False(t, req.IsCompleted())
	req.Complete(&Response{HTTPStatus: 200})
	req.Complete(&Response{HTTPStatus: 500})

	assert.True(t, req.IsCompleted())
	assert.Equal(t, []int{200, 201}, got)
}

func TestResponseResult(t *testing.T) {
	tests := []struct {
		name string
		resp Response
		want Result
	}{
		{"OK", Response{HTTPStatus: 200}, ResultSuccess},
		{"NoContent", Response{HTTPStatus: 204}, ResultSuccess},
		{"BadRequest", Response{HTTPStatus: 400}, ResultPermanentError},
		{"NotFound", Response{HTTPStatus: 404}, ResultPermanentError},
		{"RequestTimeout", Response{HTTPStatus: 408}, ResultTemporaryError},
		{"TooManyRequests", Response{HTTPStatus: 429}, ResultTemporaryError},
		{"ServerError", Response{HTTPStatus: 500}, ResultTemporaryError},
		{"BadGateway", Response{HTTPStatus: 502}, ResultTemporaryError},
		{"Redirect", Response{HTTPStatus: 302}, ResultPermanentError},
		{"TransportError", Response{Err: errors.New("connection reset")}, ResultTemporaryError},
		{"Deadline", Response{Err: fmt.Errorf("do: %w", context.DeadlineExceeded)}, ResultExpired},
		{"TooLarge", Response{Err: fmt.Errorf("do: %w", ErrResponseTooLarge)}, ResultPermanentError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.resp.Result())
		})
	}
}

func TestResultString(t *testing.T) {
	assert.Equal(t, "SUCCESS", ResultSuccess.String())
	assert.Equal(t, "TEMPORARY_ERROR", ResultTemporaryError.String())
	assert.Equal(t, "PERMANENT_ERROR", ResultPermanentError.String())
	assert.Equal(t, "EXPIRED", ResultExpired.String())
	assert.Equal(t, "UNKNOWN", Result(42).String())
}

func TestResponseDecodeJSON(t *testing.T) {
	var v struct{ Name string }
	assert.ErrorIs(t, (&Response{}).DecodeJSON(&v), ErrEmptyPayload)

	require.NoError(t, (&Response{Payload: []byte(`{"Name":"x"}`)}).DecodeJSON(&v))
	assert.Equal(t, "x", v.Name)

	assert.Error(t, (&Response{Payload: []byte(`{`)}).DecodeJSON(&v))
}
