package notificationstream

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

// DefaultFetchedCacheSize bounds the number of remembered fetched event IDs.
const DefaultFetchedCacheSize = 1024

// FetchStatus reports whether announced events are still outstanding.
type FetchStatus uint8

const (
	// FetchStatusDone indicates no announced event is waiting to be fetched.
	FetchStatusDone FetchStatus = iota

	// FetchStatusInProgress indicates announced events are still outstanding.
	FetchStatusInProgress
)

// String returns the status name.
func (s FetchStatus) String() string {
	switch s {
	case FetchStatusDone:
		return "DONE"
	case FetchStatusInProgress:
		return "IN_PROGRESS"
	default:
		return "UNKNOWN"
	}
}

// StreamFetchObserver is told when fetching starts and stops.
// Implemented by *appstatus.Tracker.
type StreamFetchObserver interface {
	SetFetchingNotificationStream(fetching bool)
}

// PushStatus tracks events announced by push notifications.
// It is safe for concurrent use.
type PushStatus struct {
	mu       sync.Mutex
	pending  []string
	handlers map[string][]func()
	fetched  *lru.Cache

	observer StreamFetchObserver
	notify   func()
	fetching bool
}

// NewPushStatus creates a push status. observer and notify may be nil.
// notify is called whenever new events are announced.
func NewPushStatus(observer StreamFetchObserver, notify func()) *PushStatus {
	// lru.New only fails for a non-positive size.
	fetched, _ := lru.New(DefaultFetchedCacheSize)
	return &PushStatus{
		handlers: make(map[string][]func()),
		fetched:  fetched,
		observer: observer,
		notify:   notify,
	}
}

// Status returns whether announced events are outstanding.
func (p *PushStatus) Status() FetchStatus {
	if p.HasEventsToFetch() {
		return FetchStatusInProgress
	}
	return FetchStatusDone
}

// HasEventsToFetch returns true while announced events are outstanding.
func (p *PushStatus) HasEventsToFetch() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending) > 0
}

// Fetch announces eventID. completion is called once the event has been
// fetched and the stream is exhausted, or fetching failed. If the event was
// already fetched, completion is called immediately.
func (p *PushStatus) Fetch(eventID string, completion func()) {
	if p.fetched.Contains(eventID) {
		if completion != nil {
			completion()
		}
		return
	}

	p.mu.Lock()
	if !contains(p.pending, eventID) {
		p.pending = append(p.pending, eventID)
	}
	if completion != nil {
		p.handlers[eventID] = append(p.handlers[eventID], completion)
	}
	p.mu.Unlock()

	p.publish()
	if p.notify != nil {
		p.notify()
	}
}

// MarkFetched records events as already fetched, e.g. the stream position
// restored at startup. Later Fetch calls for them complete immediately.
func (p *PushStatus) MarkFetched(eventIDs ...string) {
	for _, id := range eventIDs {
		if id != "" {
			p.fetched.Add(id, struct{}{})
		}
	}
}

// DidFetch records a fetched page. eventIDs are the events in the page,
// lastEventID the stream position after it and finished whether the
// stream has no more pages.
func (p *PushStatus) DidFetch(eventIDs []string, lastEventID string, finished bool) {
	for _, id := range eventIDs {
		p.fetched.Add(id, struct{}{})
	}
	if lastEventID != "" {
		p.fetched.Add(lastEventID, struct{}{})
	}

	p.mu.Lock()
	var first string
	if len(p.pending) > 0 {
		first = p.pending[0]
	}
	remaining := p.pending[:0]
	for i, id := range p.pending {
		if i == 0 || p.fetched.Contains(id) {
			continue
		}
		remaining = append(remaining, id)
	}
	p.pending = remaining

	var completions []func()
	if finished {
		for id, hs := range p.handlers {
			if id == first || p.fetched.Contains(id) {
				completions = append(completions, hs...)
				delete(p.handlers, id)
			}
		}
	}
	p.mu.Unlock()

	p.publish()
	for _, c := range completions {
		c()
	}
}

// DidFailToFetchEvents gives up on all outstanding events and calls their
// completion handlers.
func (p *PushStatus) DidFailToFetchEvents() {
	p.mu.Lock()
	var completions []func()
	for _, hs := range p.handlers {
		completions = append(completions, hs...)
	}
	p.handlers = make(map[string][]func())
	p.pending = nil
	p.mu.Unlock()

	p.publish()
	for _, c := range completions {
		c()
	}
}

// publish pushes a change of HasEventsToFetch to the observer.
func (p *PushStatus) publish() {
	p.mu.Lock()
	fetching := len(p.pending) > 0
	changed := fetching != p.fetching
	p.fetching = fetching
	p.mu.Unlock()

	if changed && p.observer != nil {
		p.observer.SetFetchingNotificationStream(fetching)
	}
}

func contains(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
