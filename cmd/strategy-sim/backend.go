package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// fakeBackend is an in-process backend serving the endpoints the built-in
// strategies use.
type fakeBackend struct {
	mu            sync.Mutex
	notifications []fakeNotification
	features      map[string]json.RawMessage
	server        *httptest.Server
}

type fakeNotification struct {
	ID        string            `json:"id"`
	Transient bool              `json:"transient,omitempty"`
	Payload   []json.RawMessage `json:"payload"`
}

func newFakeBackend() *fakeBackend {
	b := &fakeBackend{
		features: map[string]json.RawMessage{
			"applock":     json.RawMessage(`{"status":"enabled","config":{"enforceAppLock":true,"inactivityTimeoutSecs":60}}`),
			"fileSharing": json.RawMessage(`{"status":"disabled"}`),
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api-version", b.handleAPIVersion)
	mux.HandleFunc("/", b.handleVersioned)
	b.server = httptest.NewServer(mux)
	return b
}

// URL returns the base URL of the backend.
func (b *fakeBackend) URL() string { return b.server.URL }

// Close shuts the backend down.
func (b *fakeBackend) Close() { b.server.Close() }

// Publish appends a notification carrying a single event and returns its ID.
func (b *fakeBackend) Publish(eventType string) string {
	id := uuid.NewString()
	event, _ := json.Marshal(map[string]any{
		"type": eventType,
		"time": time.Now().UTC().Format(time.RFC3339Nano),
	})

	b.mu.Lock()
	defer b.mu.Unlock()
	b.notifications = append(b.notifications, fakeNotification{
		ID:      id,
		Payload: []json.RawMessage{event},
	})
	return id
}

func (b *fakeBackend) handleAPIVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"supported":  []int{0, 1, 2, 3},
		"federation": false,
		"domain":     "sim.local",
	})
}

func (b *fakeBackend) handleVersioned(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	// Strip the version prefix, e.g. /v2/notifications.
	if strings.HasPrefix(path, "/v") {
		if i := strings.Index(path[1:], "/"); i > 0 {
			path = path[i+1:]
		}
	}

	switch {
	case path == "/notifications":
		b.handleNotifications(w, r)
	case strings.HasPrefix(path, "/teams/"):
		b.handleFeatures(w, strings.TrimPrefix(path, "/teams/"))
	default:
		http.NotFound(w, r)
	}
}

func (b *fakeBackend) handleNotifications(w http.ResponseWriter, r *http.Request) {
	since := r.URL.Query().Get("since")
	size, err := strconv.Atoi(r.URL.Query().Get("size"))
	if err != nil || size <= 0 {
		size = 500
	}

	b.mu.Lock()
	start := 0
	if since != "" {
		start = -1
		for i, n := range b.notifications {
			if n.ID == since {
				start = i + 1
				break
			}
		}
	}
	status := http.StatusOK
	if start < 0 {
		// Unknown position: return everything and report the gap.
		status = http.StatusNotFound
		start = 0
	}
	end := start + size
	if end > len(b.notifications) {
		end = len(b.notifications)
	}
	page := append([]fakeNotification(nil), b.notifications[start:end]...)
	hasMore := end < len(b.notifications)
	b.mu.Unlock()

	writeJSON(w, status, map[string]any{
		"notifications": page,
		"has_more":      hasMore,
		"time":          time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (b *fakeBackend) handleFeatures(w http.ResponseWriter, rest string) {
	// rest is "<team>/features" or "<team>/features/<name>"
	parts := strings.Split(rest, "/")
	if len(parts) < 2 || parts[1] != "features" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(parts) == 3 {
		f, ok := b.features[parts[2]]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, f)
		return
	}
	writeJSON(w, http.StatusOK, b.features)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
