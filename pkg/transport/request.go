package transport

import (
	"encoding/json"
	"net/http"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"github.com/wireapp/go-request-strategy/pkg/apiversion"
)

// CompletionHandler receives the response to a request.
type CompletionHandler func(resp *Response)

// Request is a single backend request.
type Request struct {
	// ID uniquely identifies the request in logs.
	ID string

	// Method is the HTTP method.
	Method string

	// Path is the backend path without version prefix, e.g. "/notifications".
	Path string

	// Query holds URL query parameters.
	Query url.Values

	// Payload is the JSON request body, if any.
	Payload json.RawMessage

	// APIVersion selects the versioned path prefix.
	APIVersion apiversion.Version

	// Unversioned requests are sent without a version prefix.
	Unversioned bool

	// Background requests must be sent on a session that survives app suspension.
	Background bool

	// Strategy names the strategy that produced the request.
	Strategy string

	mu        sync.Mutex
	handlers  []CompletionHandler
	completed bool
}

// NewRequest creates a request with a fresh ID.
func NewRequest(method, path string) *Request {
	return &Request{
		ID:     uuid.NewString(),
		Method: method,
		Path:   path,
		Query:  url.Values{},
	}
}

// NewGetRequest creates a GET request for path.
func NewGetRequest(path string) *Request {
	return NewRequest(http.MethodGet, path)
}

// NewJSONRequest creates a request with payload marshaled as JSON.
func NewJSONRequest(method, path string, payload any) (*Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req := NewRequest(method, path)
	req.Payload = body
	return req, nil
}

// AddCompletionHandler registers fn to be called with the response.
func (r *Request) AddCompletionHandler(fn CompletionHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, fn)
}

// Complete delivers resp to all completion handlers.
// Only the first call has an effect.
func (r *Request) Complete(resp *Response) {
	r.mu.Lock()
	if r.completed {
		r.mu.Unlock()
		return
	}
	r.completed = true
	handlers := r.handlers
	r.mu.Unlock()

	for _, h := range handlers {
		h(resp)
	}
}

// IsCompleted returns true once Complete has been called.
func (r *Request) IsCompleted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completed
}

// URLPath returns the path including the version prefix.
func (r *Request) URLPath() string {
	if r.Unversioned || r.APIVersion == apiversion.V0 {
		return r.Path
	}
	return "/" + r.APIVersion.String() + r.Path
}
