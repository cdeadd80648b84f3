package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wireapp/go-request-strategy/pkg/apiversion"
	"github.com/wireapp/go-request-strategy/pkg/appstatus"
	"github.com/wireapp/go-request-strategy/pkg/config"
	"github.com/wireapp/go-request-strategy/pkg/log"
	"github.com/wireapp/go-request-strategy/pkg/notificationstream"
	"github.com/wireapp/go-request-strategy/pkg/persistence"
	"github.com/wireapp/go-request-strategy/pkg/strategy"
)

type backend struct {
	mu    sync.Mutex
	paths []string
}

func (b *backend) Paths() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.paths...)
}

func newBackend(t *testing.T) (*backend, *httptest.Server) {
	t.Helper()
	b := &backend{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api-version", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"supported": []int{0, 1, 2}, "domain": "test.local"})
	})
	mux.HandleFunc("/v2/teams/team-1/features", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"applock":{"status":"enabled","config":{"enforceAppLock":true,"inactivityTimeoutSecs":10}}}`))
	})
	mux.HandleFunc("/v2/notifications", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"has_more":false,"notifications":[{"id":"n1","payload":[{"type":"user.update"}]}]}`))
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.paths = append(b.paths, r.URL.Path)
		b.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return b, srv
}

type delegate struct {
	mu     sync.Mutex
	events []notificationstream.Event
}

func (d *delegate) FetchedEvents(events []notificationstream.Event, _ bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, events...)
}

func (d *delegate) FailedFetchingEvents() {}
func (d *delegate) DetectedGap() {}

func (d *delegate) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.events)
}

func testConfig(url string) *config.Config {
	cfg := config.Default()
	cfg.Backend.URL = url
	cfg.Backend.ClientID = "client-1"
	cfg.Backend.TeamID = "team-1"
	return cfg
}

func TestNewWithoutBackend(t *testing.T) {
	_, err := New(config.Default(), Options{})
	assert.ErrorIs(t, err, ErrNoBackend)
}

func TestClientStrategies(t *testing.T) {
	_, srv := newBackend(t)
	c, err := New(testConfig(srv.URL), Options{})
	require.NoError(t, err)
	defer c.Close()

	var names []string
	for _, s := range c.Strategies() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"api-version", "notification-stream", "feature-config"}, names)
	assert.Equal(t, 3, c.Store.Len())
}

func TestClientEndToEnd(t *testing.T) {
	b, srv := newBackend(t)
	dir := t.TempDir()

	cfg := testConfig(srv.URL)
	cfg.StateFile = filepath.Join(dir, "state.json")
	cfg.Logging.EventLog = filepath.Join(dir, "events.rlog")

	d := &delegate{}
	c, err := New(cfg, Options{Delegate: d})
	require.NoError(t, err)
	require.NoError(t, c.Start())

	// Unauthenticated: only version negotiation may run.
	assert.Eventually(t, func() bool {
		v, ok := c.Versions.Current()
		return ok && v == apiversion.V2
	}, 2*time.Second, 10*time.Millisecond)

	c.FeatureSync.RequestAllConfigs()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"/api-version"}, b.Paths(), "feature configs wait until the client is online")

	c.Status.SetSyncState(appstatus.SyncStateOnline)
	assert.Eventually(t, func() bool {
		_, cfg, err := c.Features.AppLock()
		return err == nil && cfg.EnforceAppLock
	}, 2*time.Second, 10*time.Millisecond)

	fetched := make(chan struct{})
	c.Push.Fetch("n1", func() { close(fetched) })
	select {
	case <-fetched:
	case <-time.After(2 * time.Second):
		t.Fatal("notification fetch did not complete")
	}
	assert.Equal(t, 1, d.Count())
	assert.Equal(t, "n1", c.StreamSync.LastNotificationID())
	assert.False(t, c.Status.Snapshot().FetchingNotificationStream)

	require.NoError(t, c.Close())

	state, err := persistence.NewClientStateStore(cfg.StateFile).Load()
	require.NoError(t, err)
	require.NotNil(t, state)
	require.NotNil(t, state.APIVersion)
	assert.Equal(t, int32(2), *state.APIVersion)
	assert.Equal(t, "n1", state.LastNotificationID)

	gate := log.CategoryGate
	r, err := log.NewFilteredReader(cfg.Logging.EventLog, log.Filter{Category: &gate, Strategy: "feature-config"})
	require.NoError(t, err)
	defer r.Close()
	gates, err := r.ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, gates)
	assert.False(t, gates[0].Gate.Allowed)

	req := log.CategoryRequest
	rr, err := log.NewFilteredReader(cfg.Logging.EventLog, log.Filter{Category: &req, Strategy: "api-version"})
	require.NoError(t, err)
	defer rr.Close()
	requests, err := rr.ReadAll()
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, "/api-version", requests[0].Request.Path)
}

func TestClientRestoresState(t *testing.T) {
	_, srv := newBackend(t)
	statePath := filepath.Join(t.TempDir(), "state.json")

	store := persistence.NewClientStateStore(statePath)
	v := int32(1)
	require.NoError(t, store.Save(&persistence.ClientState{APIVersion: &v, LastNotificationID: "n0"}))

	cfg := testConfig(srv.URL)
	cfg.StateFile = statePath
	c, err := New(cfg, Options{})
	require.NoError(t, err)
	defer c.Close()

	current, ok := c.Versions.Current()
	require.True(t, ok)
	assert.Equal(t, apiversion.V1, current)
	assert.Equal(t, "n0", c.StreamSync.LastNotificationID())
}

func TestClientOverrides(t *testing.T) {
	_, srv := newBackend(t)
	cfg := testConfig(srv.URL)
	cfg.Strategies = strategy.Registry{"feature-config": strategy.AllowsRequestsWhileUnauthenticated}

	c, err := New(cfg, Options{})
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, strategy.AllowsRequestsWhileUnauthenticated, c.FeatureSync.Configuration())
	assert.True(t, c.FeatureSync.IsAllowed())
}

func TestClientRetriesVersionNegotiation(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api-version" {
			http.NotFound(w, r)
			return
		}
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()
		if first {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"supported": []int{0, 1, 2}})
	}))
	defer srv.Close()
	callCount := func() int {
		mu.Lock()
		defer mu.Unlock()
		return calls
	}

	c, err := New(testConfig(srv.URL), Options{})
	require.NoError(t, err)
	require.NoError(t, c.Start())
	defer c.Close()

	assert.Eventually(t, c.VersionSync.GaveUp, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, callCount())

	c.VersionSync.Retry()
	assert.Eventually(t, func() bool {
		v, ok := c.Versions.Current()
		return ok && v == apiversion.V2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, callCount())
	assert.False(t, c.VersionSync.GaveUp())
}
