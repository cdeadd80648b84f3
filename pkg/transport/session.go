package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Transport errors.
var (
	ErrEmptyPayload  = errors.New("response has no payload")
	ErrInvalidConfig = errors.New("invalid session config")

	// ErrResponseTooLarge is returned when a response body exceeds
	// SessionConfig.MaxResponseSize.
	ErrResponseTooLarge = errors.New("response body too large")
)

// DefaultMaxResponseSize caps the response body read from the backend.
const DefaultMaxResponseSize = 8 << 20

// Session executes requests against the backend.
type Session interface {
	// Do sends req and returns the response. A non-nil error means no
	// response was received.
	Do(ctx context.Context, req *Request) (*Response, error)
}

// SessionConfig configures an HTTPSession.
type SessionConfig struct {
	// BaseURL is the backend URL, e.g. "https://prod-nginz-https.wire.com".
	BaseURL string

	// ClientID identifies this client; sent as Z-Client header.
	ClientID string

	// Timeout bounds a single request (default: 60s).
	Timeout time.Duration

	// MaxResponseSize caps the response body (default: 8MB).
	MaxResponseSize int64

	// HTTPClient overrides the underlying client.
	HTTPClient *http.Client
}

// HTTPSession sends requests over HTTP.
type HTTPSession struct {
	base   *url.URL
	config SessionConfig
	client *http.Client
}

// NewHTTPSession creates a session for the configured backend.
func NewHTTPSession(config SessionConfig) (*HTTPSession, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("%w: base URL is required", ErrInvalidConfig)
	}
	base, err := url.Parse(strings.TrimRight(config.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.MaxResponseSize == 0 {
		config.MaxResponseSize = DefaultMaxResponseSize
	}
	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}
	return &HTTPSession{base: base, config: config, client: client}, nil
}

// Do implements Session.
func (s *HTTPSession) Do(ctx context.Context, req *Request) (*Response, error) {
	u := *s.base
	u.Path = s.base.Path + req.URLPath()
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	var body io.Reader
	if len(req.Payload) > 0 {
		body = bytes.NewReader(req.Payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if s.config.ClientID != "" {
		httpReq.Header.Set("Z-Client", s.config.ClientID)
	}

	httpResp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(httpResp.Body, s.config.MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(payload)) > s.config.MaxResponseSize {
		return nil, fmt.Errorf("%w: status %d, limit %d bytes", ErrResponseTooLarge, httpResp.StatusCode, s.config.MaxResponseSize)
	}

	return &Response{HTTPStatus: httpResp.StatusCode, Payload: payload}, nil
}

// Compile-time interface satisfaction check.
var _ Session = (*HTTPSession)(nil)
