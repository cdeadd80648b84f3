package versionsync

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wireapp/go-request-strategy/pkg/apiversion"
	"github.com/wireapp/go-request-strategy/pkg/appstatus"
	"github.com/wireapp/go-request-strategy/pkg/log"
	"github.com/wireapp/go-request-strategy/pkg/strategy"
	"github.com/wireapp/go-request-strategy/pkg/transport"
)

type countingNotifier struct {
	calls int
}

func (n *countingNotifier) NewRequestsAvailable() { n.calls++ }

type eventSink struct {
	events []log.Event
}

func (e *eventSink) Log(ev log.Event) { e.events = append(e.events, ev) }

func newStrategy(t *testing.T, status appstatus.Status) (*Strategy, *apiversion.Store, *eventSink) {
	t.Helper()
	versions := apiversion.NewStore()
	events := &eventSink{}
	s := NewStrategy(appstatus.NewTrackerWithStatus(status), versions, nil, Config{Events: events})
	return s, versions, events
}

func TestStrategyRequestsWhileUnauthenticated(t *testing.T) {
	s, _, _ := newStrategy(t, appstatus.Status{})

	req := s.NextRequest(context.Background(), apiversion.V2)
	require.NotNil(t, req)
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "/api-version", req.Path)
	assert.True(t, req.Unversioned)
	assert.Equal(t, "/api-version", req.URLPath())

	assert.Nil(t, s.NextRequest(context.Background(), apiversion.V2), "one request in flight")
}

func TestStrategyNegotiates(t *testing.T) {
	s, versions, events := newStrategy(t, appstatus.Status{SyncState: appstatus.SyncStateOnline})

	req := s.NextRequest(context.Background(), apiversion.V0)
	require.NotNil(t, req)
	req.Complete(&transport.Response{
		HTTPStatus: http.StatusOK,
		Payload:    []byte(`{"supported":[0,1,2,3],"federation":true,"domain":"example.com"}`),
	})

	v, ok := versions.Current()
	require.True(t, ok)
	assert.Equal(t, apiversion.V2, v)

	info, ok := s.Backend()
	require.True(t, ok)
	assert.True(t, info.Federation)
	assert.Equal(t, "example.com", info.Domain)

	require.Len(t, events.events, 2)
	assert.Equal(t, log.CategoryGate, events.events[0].Category)
	state := events.events[1]
	assert.Equal(t, log.CategoryState, state.Category)
	require.NotNil(t, state.StateChange)
	assert.Equal(t, log.StateEntityAPIVersion, state.StateChange.Entity)
	assert.Equal(t, "v2", state.StateChange.NewState)

	assert.Nil(t, s.NextRequest(context.Background(), apiversion.V2), "no request once negotiated")
}

func TestStrategyLegacyBackend(t *testing.T) {
	s, versions, _ := newStrategy(t, appstatus.Status{})

	req := s.NextRequest(context.Background(), apiversion.V0)
	require.NotNil(t, req)
	req.Complete(&transport.Response{HTTPStatus: http.StatusNotFound})

	v, ok := versions.Current()
	require.True(t, ok)
	assert.Equal(t, apiversion.V0, v)
}

func TestStrategyTemporaryFailureRetries(t *testing.T) {
	s, versions, _ := newStrategy(t, appstatus.Status{})

	req := s.NextRequest(context.Background(), apiversion.V0)
	require.NotNil(t, req)
	req.Complete(transport.NewErrorResponse(errors.New("offline")))

	_, ok := versions.Current()
	assert.False(t, ok)
	assert.False(t, s.GaveUp())
	assert.NotNil(t, s.NextRequest(context.Background(), apiversion.V0))
}

func TestStrategyGivesUp(t *testing.T) {
	tests := []struct {
		name string
		resp *transport.Response
	}{
		{"PermanentError", &transport.Response{HTTPStatus: http.StatusForbidden}},
		{"BadPayload", &transport.Response{HTTPStatus: http.StatusOK, Payload: []byte("nope")}},
		{"EmptyPayload", &transport.Response{HTTPStatus: http.StatusOK}},
		{"NoCommonVersion", &transport.Response{HTTPStatus: http.StatusOK, Payload: []byte(`{"supported":[7,8]}`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, versions, _ := newStrategy(t, appstatus.Status{})

			req := s.NextRequest(context.Background(), apiversion.V0)
			require.NotNil(t, req)
			req.Complete(tt.resp)

			_, ok := versions.Current()
			assert.False(t, ok)
			assert.True(t, s.GaveUp())
			assert.Nil(t, s.NextRequest(context.Background(), apiversion.V0))

			s.Retry()
			assert.NotNil(t, s.NextRequest(context.Background(), apiversion.V0))
		})
	}
}

func TestStrategyRetryNotifies(t *testing.T) {
	versions := apiversion.NewStore()
	notifier := &countingNotifier{}
	s := NewStrategy(appstatus.NewTracker(), versions, notifier, Config{})

	req := s.NextRequest(context.Background(), apiversion.V0)
	require.NotNil(t, req)
	req.Complete(&transport.Response{HTTPStatus: http.StatusBadRequest})
	require.True(t, s.GaveUp())
	assert.Equal(t, 0, notifier.calls)

	s.Retry()
	assert.False(t, s.GaveUp())
	assert.Equal(t, 1, notifier.calls)
	assert.NotNil(t, s.NextRequest(context.Background(), apiversion.V0))
}

func TestStrategyRenegotiatesAfterReset(t *testing.T) {
	s, versions, _ := newStrategy(t, appstatus.Status{})
	require.NoError(t, versions.Set(apiversion.V1))
	assert.Nil(t, s.NextRequest(context.Background(), apiversion.V1))

	require.NoError(t, versions.Reset())
	assert.NotNil(t, s.NextRequest(context.Background(), apiversion.V0))
}

func TestStrategyOverride(t *testing.T) {
	versions := apiversion.NewStore()
	s := NewStrategy(appstatus.NewTracker(), versions, nil, Config{
		Overrides: strategy.Registry{StrategyName: strategy.AllowsRequestsWhileOnline},
	})
	assert.Equal(t, strategy.AllowsRequestsWhileOnline, s.Configuration())
	assert.Nil(t, s.NextRequest(context.Background(), apiversion.V0))
}
