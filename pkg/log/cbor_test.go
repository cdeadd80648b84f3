package log

import (
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
)

func TestEventCBORRoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 589793238, time.UTC)
	original := Event{
		Timestamp: ts,
		Category:  CategoryGate,
		Strategy:  "notification-stream",
		RequestID: "5f0c3a52-3c1e-4f0d-9a84-7f3b3f2c1e10",
		Gate: &GateEvent{
			Configuration: 0x3a,
			Prerequisites: 0x12,
			Allowed:       true,
			Status:        "ONLINE/BACKGROUND",
		},
	}

	data, err := EncodeEvent(original)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}

	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}

	if !decoded.Timestamp.Equal(original.Timestamp) {
		t.Errorf("Timestamp: got %v, want %v", decoded.Timestamp, original.Timestamp)
	}
	if decoded.Category != original.Category {
		t.Errorf("Category: got %v, want %v", decoded.Category, original.Category)
	}
	if decoded.Strategy != original.Strategy {
		t.Errorf("Strategy: got %q, want %q", decoded.Strategy, original.Strategy)
	}
	if decoded.RequestID != original.RequestID {
		t.Errorf("RequestID: got %q, want %q", decoded.RequestID, original.RequestID)
	}
	if decoded.Gate == nil {
		t.Fatal("Gate is nil")
	}
	if *decoded.Gate != *original.Gate {
		t.Errorf("Gate: got %+v, want %+v", *decoded.Gate, *original.Gate)
	}
	if decoded.Request != nil || decoded.Response != nil || decoded.StateChange != nil || decoded.Error != nil {
		t.Error("unset payloads should decode as nil")
	}
}

func TestEventCBORIntegerKeys(t *testing.T) {
	data, err := EncodeEvent(Event{
		Timestamp: time.Unix(0, 0).UTC(),
		Category:  CategoryRequest,
		Request:   &RequestEvent{Method: "GET", Path: "/notifications", APIVersion: 2},
	})
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}

	var raw map[int]cbor.RawMessage
	if err := cbor.Unmarshal(data, &raw); err != nil {
		t.Fatalf("event is not a map with integer keys: %v", err)
	}
	for _, key := range []int{1, 2, 10} {
		if _, ok := raw[key]; !ok {
			t.Errorf("missing key %d", key)
		}
	}
	for _, key := range []int{3, 4, 11, 12, 13, 14} {
		if _, ok := raw[key]; ok {
			t.Errorf("empty field %d should be omitted", key)
		}
	}
}

func TestEventCBORDeterministic(t *testing.T) {
	event := Event{
		Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Category:  CategoryResponse,
		RequestID: "r1",
		Response:  &ResponseEvent{HTTPStatus: 200, Result: "SUCCESS", PayloadSize: 12, Duration: 15 * time.Millisecond},
	}

	a, err := EncodeEvent(event)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	b, err := EncodeEvent(event)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	if string(a) != string(b) {
		t.Error("encoding is not deterministic")
	}
}

func TestDecodeEventIgnoresUnknownKeys(t *testing.T) {
	data, err := cbor.Marshal(map[int]any{
		2:  uint8(CategoryError),
		3:  "feature-config",
		99: "from a newer writer",
	})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	event, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}
	if event.Category != CategoryError || event.Strategy != "feature-config" {
		t.Errorf("unexpected event: %+v", event)
	}
}

func TestCategoryString(t *testing.T) {
	tests := map[Category]string{
		CategoryRequest:  "REQUEST",
		CategoryResponse: "RESPONSE",
		CategoryGate:     "GATE",
		CategoryState:    "STATE",
		CategoryError:    "ERROR",
		Category(200):    "UNKNOWN",
	}
	for c, want := range tests {
		if got := c.String(); got != want {
			t.Errorf("Category(%d).String() = %q, want %q", c, got, want)
		}
	}
}

func TestStateEntityString(t *testing.T) {
	tests := map[StateEntity]string{
		StateEntitySync:               "SYNC",
		StateEntityOperation:          "OPERATION",
		StateEntityNotificationStream: "NOTIFICATION_STREAM",
		StateEntityAPIVersion:         "API_VERSION",
		StateEntity(200):              "UNKNOWN",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("StateEntity(%d).String() = %q, want %q", s, got, want)
		}
	}
}
