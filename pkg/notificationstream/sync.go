package notificationstream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/wireapp/go-request-strategy/pkg/apiversion"
	"github.com/wireapp/go-request-strategy/pkg/log"
	"github.com/wireapp/go-request-strategy/pkg/strategy"
	"github.com/wireapp/go-request-strategy/pkg/transport"
)

// StrategyName identifies the notification stream strategy in logs and
// configuration overrides.
const StrategyName = "notification-stream"

// DefaultPageSize is the number of notifications requested per page.
const DefaultPageSize = 500

// DefaultConfiguration is the built-in gate configuration.
const DefaultConfiguration = strategy.AllowsRequestsWhileOnline |
	strategy.AllowsRequestsDuringQuickSync |
	strategy.AllowsRequestsWhileInBackground |
	strategy.AllowsRequestsDuringNotificationStreamFetch

// Event is one update event from the notification stream.
type Event struct {
	// NotificationID is the ID of the notification carrying the event.
	NotificationID string

	// Type is the event type, e.g. "conversation.otr-message-add".
	Type string

	// Transient events are not stored by the backend and do not advance
	// the stream position.
	Transient bool

	// Payload is the raw event JSON.
	Payload json.RawMessage
}

// Delegate receives fetched events.
type Delegate interface {
	// FetchedEvents is called for every page. hasMoreToFetch reports
	// whether further pages follow.
	FetchedEvents(events []Event, hasMoreToFetch bool)

	// FailedFetchingEvents is called when a page could not be fetched.
	FailedFetchingEvents()

	// DetectedGap is called when the backend no longer has all
	// notifications since the last known position.
	DetectedGap()
}

// PositionStore persists the stream position.
// Implemented by *persistence.ClientStateStore.
type PositionStore interface {
	LoadLastNotificationID() (string, error)
	SaveLastNotificationID(id string) error
}

// Config configures a Sync.
type Config struct {
	// ClientID is sent as the client query parameter.
	ClientID string

	// PageSize overrides DefaultPageSize.
	PageSize int

	// Positions persists the stream position (optional).
	Positions PositionStore

	// Logger is the operational logger (default: slog.Default()).
	Logger *slog.Logger

	// Events receives request events (optional).
	Events log.Logger

	// Overrides replace the built-in gate configuration by name.
	Overrides strategy.Registry
}

type notificationsPage struct {
	HasMore       bool           `json:"has_more"`
	Time          string         `json:"time,omitempty"`
	Notifications []notification `json:"notifications"`
}

type notification struct {
	ID        string            `json:"id"`
	Transient bool              `json:"transient,omitempty"`
	Payload   []json.RawMessage `json:"payload"`
}

type eventType struct {
	Type string `json:"type"`
}

// Sync pages through the notification stream while the push status has
// events to fetch.
type Sync struct {
	*strategy.Base

	config   Config
	push     *PushStatus
	delegate Delegate
	notifier strategy.RequestNotifier
	logger   *slog.Logger

	mu              sync.Mutex
	lastID          string
	inProgress      bool
	hasMore         bool
	serverTimeDelta time.Duration
}

// NewSync creates the notification stream strategy.
func NewSync(status strategy.ApplicationStatus, push *PushStatus, delegate Delegate, notifier strategy.RequestNotifier, config Config) (*Sync, error) {
	if config.PageSize <= 0 {
		config.PageSize = DefaultPageSize
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if notifier == nil {
		notifier = strategy.NoopNotifier{}
	}

	s := &Sync{
		config:   config,
		push:     push,
		delegate: delegate,
		notifier: notifier,
		logger:   config.Logger.With("strategy", StrategyName),
	}
	if config.Positions != nil {
		id, err := config.Positions.LoadLastNotificationID()
		if err != nil {
			return nil, err
		}
		s.lastID = id
		push.MarkFetched(id)
	}
	s.Base = strategy.NewBase(StrategyName, DefaultConfiguration, status, s.nextRequestIfAllowed,
		strategy.WithEventLogger(config.Events),
		strategy.WithOverrides(config.Overrides),
	)
	return s, nil
}

// LastNotificationID returns the current stream position.
func (s *Sync) LastNotificationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastID
}

// ServerTimeDelta returns the offset of the backend clock from the local
// clock, as reported by the last page.
func (s *Sync) ServerTimeDelta() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverTimeDelta
}

func (s *Sync) nextRequestIfAllowed(_ context.Context, _ apiversion.Version) *transport.Request {
	announced := s.push.HasEventsToFetch()

	s.mu.Lock()
	defer s.mu.Unlock()

	// A started fetch runs until the stream is exhausted, even when the
	// announced events arrived on an earlier page.
	if s.inProgress || (!announced && !s.hasMore) {
		return nil
	}
	s.inProgress = true

	req := transport.NewRequest(http.MethodGet, "/notifications")
	req.Background = true
	req.Query.Set("size", strconv.Itoa(s.config.PageSize))
	if s.lastID != "" {
		req.Query.Set("since", s.lastID)
	}
	if s.config.ClientID != "" {
		req.Query.Set("client", s.config.ClientID)
	}
	req.AddCompletionHandler(s.didReceive)
	return req
}

func (s *Sync) didReceive(resp *transport.Response) {
	s.mu.Lock()
	s.inProgress = false
	s.mu.Unlock()

	gap := resp.HTTPStatus == http.StatusNotFound
	if resp.Result() != transport.ResultSuccess && !gap {
		s.logger.Warn("failed to fetch notification stream", "status", resp.HTTPStatus, "result", resp.Result(), "error", resp.Err)
		s.fail()
		return
	}

	var page notificationsPage
	if len(resp.Payload) > 0 {
		if err := json.Unmarshal(resp.Payload, &page); err != nil {
			s.logger.Error("failed to decode notification stream page", "error", err)
			s.fail()
			return
		}
	}
	if gap {
		s.logger.Warn("notification stream has a gap")
		if s.delegate != nil {
			s.delegate.DetectedGap()
		}
	}

	events, ids, latest := s.process(page)
	if page.Time != "" {
		if serverTime, err := time.Parse(time.RFC3339Nano, page.Time); err == nil {
			s.mu.Lock()
			s.serverTimeDelta = time.Until(serverTime)
			s.mu.Unlock()
		}
	}

	s.mu.Lock()
	if latest != "" {
		s.lastID = latest
	}
	lastID := s.lastID
	s.hasMore = page.HasMore
	s.mu.Unlock()

	if latest != "" && s.config.Positions != nil {
		if err := s.config.Positions.SaveLastNotificationID(latest); err != nil {
			s.logger.Error("failed to persist notification stream position", "error", err)
		}
	}

	if s.delegate != nil {
		s.delegate.FetchedEvents(events, page.HasMore)
	}
	s.push.DidFetch(ids, lastID, !page.HasMore)

	if page.HasMore {
		s.notifier.NewRequestsAvailable()
	}
}

// process flattens a page into events and returns the notification IDs and
// the ID of the last non-transient notification.
func (s *Sync) process(page notificationsPage) ([]Event, []string, string) {
	var (
		events []Event
		ids    []string
		latest string
	)
	for _, n := range page.Notifications {
		if n.ID == "" {
			continue
		}
		ids = append(ids, n.ID)
		if !n.Transient {
			latest = n.ID
		}
		for _, raw := range n.Payload {
			var et eventType
			if err := json.Unmarshal(raw, &et); err != nil {
				s.logger.Warn("skipping malformed event", "notification", n.ID, "error", err)
				continue
			}
			events = append(events, Event{
				NotificationID: n.ID,
				Type:           et.Type,
				Transient:      n.Transient,
				Payload:        raw,
			})
		}
	}
	return events, ids, latest
}

func (s *Sync) fail() {
	s.mu.Lock()
	s.hasMore = false
	s.mu.Unlock()

	if s.delegate != nil {
		s.delegate.FailedFetchingEvents()
	}
	s.push.DidFailToFetchEvents()
}
