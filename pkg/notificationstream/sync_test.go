package notificationstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wireapp/go-request-strategy/pkg/apiversion"
	"github.com/wireapp/go-request-strategy/pkg/appstatus"
	"github.com/wireapp/go-request-strategy/pkg/strategy"
	"github.com/wireapp/go-request-strategy/pkg/transport"
)

type recordingDelegate struct {
	mu      sync.Mutex
	pages   [][]Event
	hasMore []bool
	failed  int
	gaps    int
}

func (d *recordingDelegate) FetchedEvents(events []Event, hasMore bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pages = append(d.pages, events)
	d.hasMore = append(d.hasMore, hasMore)
}

func (d *recordingDelegate) FailedFetchingEvents() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failed++
}

func (d *recordingDelegate) DetectedGap() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gaps++
}

type memoryPositions struct {
	id      string
	saves   int
	loadErr error
}

func (m *memoryPositions) LoadLastNotificationID() (string, error) { return m.id, m.loadErr }

func (m *memoryPositions) SaveLastNotificationID(id string) error {
	m.id = id
	m.saves++
	return nil
}

type syncFixture struct {
	tracker  *appstatus.Tracker
	push     *PushStatus
	delegate *recordingDelegate
	sync     *Sync
	notified int
}

func newSyncFixture(t *testing.T, config Config) *syncFixture {
	t.Helper()
	f := &syncFixture{
		tracker:  appstatus.NewTrackerWithStatus(appstatus.Status{SyncState: appstatus.SyncStateOnline}),
		delegate: &recordingDelegate{},
	}
	f.push = NewPushStatus(f.tracker, nil)

	s, err := NewSync(f.tracker, f.push, f.delegate, strategy.NotifierFunc(func() { f.notified++ }), config)
	require.NoError(t, err)
	f.sync = s
	return f
}

func (f *syncFixture) next() *transport.Request {
	return f.sync.NextRequest(context.Background(), apiversion.V2)
}

func pageJSON(t *testing.T, hasMore bool, notifications ...notification) []byte {
	t.Helper()
	data, err := json.Marshal(notificationsPage{HasMore: hasMore, Notifications: notifications})
	require.NoError(t, err)
	return data
}

func note(id string, types ...string) notification {
	n := notification{ID: id}
	for _, typ := range types {
		n.Payload = append(n.Payload, json.RawMessage(`{"type":"`+typ+`"}`))
	}
	return n
}

func TestSyncIdleWithoutAnnouncedEvents(t *testing.T) {
	f := newSyncFixture(t, Config{})
	assert.Nil(t, f.next())
}

func TestSyncConfiguration(t *testing.T) {
	f := newSyncFixture(t, Config{})
	assert.Equal(t, DefaultConfiguration, f.sync.Configuration())
	assert.Equal(t, StrategyName, f.sync.Name())

	f.tracker.SetSyncState(appstatus.SyncStateSlowSyncing)
	f.push.Fetch("e1", nil)
	assert.Nil(t, f.next(), "notification stream is not fetched during slow sync")

	f.tracker.SetSyncState(appstatus.SyncStateQuickSyncing)
	assert.NotNil(t, f.next())
}

func TestSyncRequest(t *testing.T) {
	f := newSyncFixture(t, Config{ClientID: "c0ffee", PageSize: 100})
	f.push.Fetch("e1", nil)

	req := f.next()
	require.NotNil(t, req)
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "/notifications", req.Path)
	assert.Equal(t, "100", req.Query.Get("size"))
	assert.Equal(t, "c0ffee", req.Query.Get("client"))
	assert.Empty(t, req.Query.Get("since"))
	assert.True(t, req.Background)
	assert.Equal(t, apiversion.V2, req.APIVersion)

	assert.Nil(t, f.next(), "only one page request in flight")
}

func TestSyncDeliversEvents(t *testing.T) {
	positions := &memoryPositions{}
	f := newSyncFixture(t, Config{Positions: positions})

	completed := 0
	f.push.Fetch("n2", func() { completed++ })
	assert.True(t, f.tracker.Snapshot().FetchingNotificationStream)

	req := f.next()
	require.NotNil(t, req)
	req.Complete(&transport.Response{
		HTTPStatus: http.StatusOK,
		Payload: pageJSON(t, false,
			note("n1", "conversation.member-join"),
			note("n2", "conversation.otr-message-add", "conversation.typing"),
		),
	})

	require.Len(t, f.delegate.pages, 1)
	events := f.delegate.pages[0]
	require.Len(t, events, 3)
	assert.Equal(t, "n1", events[0].NotificationID)
	assert.Equal(t, "conversation.member-join", events[0].Type)
	assert.Equal(t, "conversation.typing", events[2].Type)
	assert.False(t, f.delegate.hasMore[0])

	assert.Equal(t, "n2", f.sync.LastNotificationID())
	assert.Equal(t, "n2", positions.id)
	assert.Equal(t, 1, completed)
	assert.Equal(t, FetchStatusDone, f.push.Status())
	assert.False(t, f.tracker.Snapshot().FetchingNotificationStream)
	assert.Nil(t, f.next())
}

func TestSyncPaginates(t *testing.T) {
	f := newSyncFixture(t, Config{})

	completed := 0
	f.push.Fetch("n1", func() { completed++ })

	first := f.next()
	require.NotNil(t, first)
	first.Complete(&transport.Response{HTTPStatus: http.StatusOK, Payload: pageJSON(t, true, note("n1", "a"))})

	assert.Equal(t, 1, f.notified, "more pages ask for another request")
	assert.Equal(t, 0, completed)

	second := f.next()
	require.NotNil(t, second, "paging continues after the announced event was seen")
	assert.Equal(t, "n1", second.Query.Get("since"))

	second.Complete(&transport.Response{HTTPStatus: http.StatusOK, Payload: pageJSON(t, false, note("n2", "b"))})
	assert.Equal(t, 1, completed)
	assert.Equal(t, "n2", f.sync.LastNotificationID())
	assert.Nil(t, f.next())
}

func TestSyncTransientNotificationsDoNotMovePosition(t *testing.T) {
	f := newSyncFixture(t, Config{})
	f.push.Fetch("n1", nil)

	transient := note("t1", "conversation.typing")
	transient.Transient = true

	req := f.next()
	require.NotNil(t, req)
	req.Complete(&transport.Response{HTTPStatus: http.StatusOK, Payload: pageJSON(t, false, note("n1", "a"), transient)})

	assert.Equal(t, "n1", f.sync.LastNotificationID())
	require.Len(t, f.delegate.pages[0], 2)
	assert.True(t, f.delegate.pages[0][1].Transient)
}

func TestSyncResumesFromStoredPosition(t *testing.T) {
	f := newSyncFixture(t, Config{Positions: &memoryPositions{id: "stored"}})
	assert.Equal(t, "stored", f.sync.LastNotificationID())

	f.push.Fetch("e1", nil)
	req := f.next()
	require.NotNil(t, req)
	assert.Equal(t, "stored", req.Query.Get("since"))
}

func TestSyncStoredPositionCompletesImmediately(t *testing.T) {
	f := newSyncFixture(t, Config{Positions: &memoryPositions{id: "stored"}})

	called := 0
	f.push.Fetch("stored", func() { called++ })
	assert.Equal(t, 1, called)
	assert.False(t, f.push.HasEventsToFetch())
	assert.False(t, f.tracker.Snapshot().FetchingNotificationStream)
	assert.Nil(t, f.next())
}

func TestSyncPositionLoadError(t *testing.T) {
	tracker := appstatus.NewTracker()
	_, err := NewSync(tracker, NewPushStatus(tracker, nil), nil, nil, Config{
		Positions: &memoryPositions{loadErr: errors.New("corrupt")},
	})
	assert.Error(t, err)
}

func TestSyncGap(t *testing.T) {
	f := newSyncFixture(t, Config{Positions: &memoryPositions{id: "gone"}})
	f.push.Fetch("n5", nil)

	req := f.next()
	require.NotNil(t, req)
	req.Complete(&transport.Response{HTTPStatus: http.StatusNotFound, Payload: pageJSON(t, false, note("n5", "a"))})

	assert.Equal(t, 1, f.delegate.gaps)
	assert.Equal(t, 0, f.delegate.failed)
	require.Len(t, f.delegate.pages, 1, "the page returned with a gap is still delivered")
	assert.Equal(t, "n5", f.sync.LastNotificationID())
}

func TestSyncFailure(t *testing.T) {
	tests := []struct {
		name string
		resp *transport.Response
	}{
		{"ServerError", &transport.Response{HTTPStatus: http.StatusInternalServerError}},
		{"TransportError", transport.NewErrorResponse(errors.New("offline"))},
		{"BadJSON", &transport.Response{HTTPStatus: http.StatusOK, Payload: []byte("{")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSyncFixture(t, Config{})
			completed := 0
			f.push.Fetch("e1", func() { completed++ })

			req := f.next()
			require.NotNil(t, req)
			req.Complete(tt.resp)

			assert.Equal(t, 1, f.delegate.failed)
			assert.Equal(t, 1, completed)
			assert.Equal(t, FetchStatusDone, f.push.Status())
			assert.Nil(t, f.next())
		})
	}
}

func TestSyncWithoutDelegate(t *testing.T) {
	tracker := appstatus.NewTrackerWithStatus(appstatus.Status{SyncState: appstatus.SyncStateOnline})
	push := NewPushStatus(tracker, nil)
	s, err := NewSync(tracker, push, nil, nil, Config{})
	require.NoError(t, err)

	push.Fetch("n1", nil)
	req := s.NextRequest(context.Background(), apiversion.V0)
	require.NotNil(t, req)
	assert.NotPanics(t, func() {
		req.Complete(&transport.Response{HTTPStatus: http.StatusOK, Payload: pageJSON(t, false, note("n1", "a"))})
	})
	assert.Equal(t, "n1", s.LastNotificationID())
}
