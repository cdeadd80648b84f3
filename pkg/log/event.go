package log

import (
	"time"
)

// Event is a request-layer log event.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"2,keyasint"`

	// Strategy is the name of the request strategy involved, if any.
	Strategy string `cbor:"3,keyasint,omitempty"`

	// RequestID correlates request and response events.
	RequestID string `cbor:"4,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Request     *RequestEvent     `cbor:"10,keyasint,omitempty"`
	Response    *ResponseEvent    `cbor:"11,keyasint,omitempty"`
	Gate        *GateEvent        `cbor:"12,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"13,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"`
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryRequest indicates a request handed to the transport.
	CategoryRequest Category = 0
	// CategoryResponse indicates a response delivered to a strategy.
	CategoryResponse Category = 1
	// CategoryGate indicates a gate decision for a strategy.
	CategoryGate Category = 2
	// CategoryState indicates an application status change.
	CategoryState Category = 3
	// CategoryError indicates an error event.
	CategoryError Category = 4
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryRequest:
		return "REQUEST"
	case CategoryResponse:
		return "RESPONSE"
	case CategoryGate:
		return "GATE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// RequestEvent describes an outgoing request.
type RequestEvent struct {
	Method     string `cbor:"1,keyasint"`
	Path       string `cbor:"2,keyasint"`
	APIVersion int32  `cbor:"3,keyasint"`
	Background bool   `cbor:"4,keyasint,omitempty"`
}

// ResponseEvent describes the outcome of a request.
type ResponseEvent struct {
	HTTPStatus  int    `cbor:"1,keyasint"`
	Result      string `cbor:"2,keyasint"`
	PayloadSize int    `cbor:"3,keyasint,omitempty"`

	// Duration from send to response, stored as nanoseconds.
	Duration time.Duration `cbor:"4,keyasint,omitempty"`
}

// GateEvent records whether a strategy was allowed to issue a request.
// Configuration and Prerequisites are raw option bitmasks.
type GateEvent struct {
	Configuration uint32 `cbor:"1,keyasint"`
	Prerequisites uint32 `cbor:"2,keyasint"`
	Allowed       bool   `cbor:"3,keyasint"`

	// Status is the application status the decision was based on.
	Status string `cbor:"4,keyasint,omitempty"`
}

// StateChangeEvent captures application status changes.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntitySync indicates a sync state change.
	StateEntitySync StateEntity = 0
	// StateEntityOperation indicates a foreground/background change.
	StateEntityOperation StateEntity = 1
	// StateEntityNotificationStream indicates the stream fetch started or stopped.
	StateEntityNotificationStream StateEntity = 2
	// StateEntityAPIVersion indicates a newly negotiated API version.
	StateEntityAPIVersion StateEntity = 3
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntitySync:
		return "SYNC"
	case StateEntityOperation:
		return "OPERATION"
	case StateEntityNotificationStream:
		return "NOTIFICATION_STREAM"
	case StateEntityAPIVersion:
		return "API_VERSION"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors on the request path.
type ErrorEventData struct {
	// Message is the error text.
	Message string `cbor:"1,keyasint"`

	// Context describes what was being done, e.g. "decode feature config".
	Context string `cbor:"2,keyasint,omitempty"`
}
