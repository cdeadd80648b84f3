package appstatus

import (
	"fmt"
	"strings"
	"sync"
)

// SyncState is the synchronization phase of the client.
type SyncState uint8

const (
	// SyncStateUnauthenticated indicates no user is logged in.
	SyncStateUnauthenticated SyncState = iota

	// SyncStateSlowSyncing indicates a full resync of all local state.
	SyncStateSlowSyncing

	// SyncStateQuickSyncing indicates an incremental catch-up from the notification stream.
	SyncStateQuickSyncing

	// SyncStateOnline indicates the client is in sync and processing live events.
	SyncStateOnline
)

// String returns a human-readable state name.
func (s SyncState) String() string {
	switch s {
	case SyncStateUnauthenticated:
		return "UNAUTHENTICATED"
	case SyncStateSlowSyncing:
		return "SLOW_SYNCING"
	case SyncStateQuickSyncing:
		return "QUICK_SYNCING"
	case SyncStateOnline:
		return "ONLINE"
	default:
		return "UNKNOWN"
	}
}

// ParseSyncState parses a sync state name. Both the String() form and
// short lowercase forms (unauthenticated, slow, quick, online) are accepted.
func ParseSyncState(s string) (SyncState, error) {
	switch strings.ToLower(strings.ReplaceAll(s, "-", "_")) {
	case "unauthenticated":
		return SyncStateUnauthenticated, nil
	case "slow_syncing", "slow_sync", "slow":
		return SyncStateSlowSyncing, nil
	case "quick_syncing", "quick_sync", "quick":
		return SyncStateQuickSyncing, nil
	case "online":
		return SyncStateOnline, nil
	default:
		return SyncStateUnauthenticated, fmt.Errorf("unknown sync state %q", s)
	}
}

// OperationState is the application lifecycle state.
type OperationState uint8

const (
	// OperationStateForeground indicates the app is in the foreground.
	OperationStateForeground OperationState = iota

	// OperationStateBackground indicates the app is in the background.
	OperationStateBackground
)

// String returns a human-readable state name.
func (s OperationState) String() string {
	switch s {
	case OperationStateForeground:
		return "FOREGROUND"
	case OperationStateBackground:
		return "BACKGROUND"
	default:
		return "UNKNOWN"
	}
}

// Status is a snapshot of the application status.
type Status struct {
	SyncState                  SyncState
	OperationState             OperationState
	FetchingNotificationStream bool
}

// String returns a compact representation, e.g. "ONLINE/BACKGROUND+stream".
func (s Status) String() string {
	str := s.SyncState.String() + "/" + s.OperationState.String()
	if s.FetchingNotificationStream {
		str += "+stream"
	}
	return str
}

// Tracker holds the current application status.
// It is safe for concurrent use.
type Tracker struct {
	mu       sync.RWMutex
	status   Status
	onChange []func(old, current Status)
}

// NewTracker creates a tracker in the unauthenticated, foreground state.
func NewTracker() *Tracker {
	return &Tracker{}
}

// NewTrackerWithStatus creates a tracker starting from the given status.
func NewTrackerWithStatus(status Status) *Tracker {
	return &Tracker{status: status}
}

// Snapshot returns the current status.
func (t *Tracker) Snapshot() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// SetSyncState updates the sync state.
func (t *Tracker) SetSyncState(s SyncState) {
	t.update(func(st *Status) { st.SyncState = s })
}

// SetOperationState updates the operation state.
func (t *Tracker) SetOperationState(s OperationState) {
	t.update(func(st *Status) { st.OperationState = s })
}

// SetFetchingNotificationStream marks whether the notification stream is being fetched.
func (t *Tracker) SetFetchingNotificationStream(fetching bool) {
	t.update(func(st *Status) { st.FetchingNotificationStream = fetching })
}

// OnChange registers a callback invoked after every effective status change.
// Callbacks run on the goroutine that made the change, outside the lock.
func (t *Tracker) OnChange(fn func(old, current Status)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChange = append(t.onChange, fn)
}

func (t *Tracker) update(mutate func(*Status)) {
	t.mu.Lock()
	old := t.status
	mutate(&t.status)
	current := t.status
	callbacks := t.onChange
	t.mu.Unlock()

	if old == current {
		return
	}
	for _, fn := range callbacks {
		fn(old, current)
	}
}
