package featureconfig

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/wireapp/go-request-strategy/pkg/apiversion"
	"github.com/wireapp/go-request-strategy/pkg/log"
	"github.com/wireapp/go-request-strategy/pkg/strategy"
	"github.com/wireapp/go-request-strategy/pkg/transport"
)

// StrategyName identifies the feature config strategy in logs and
// configuration overrides.
const StrategyName = "feature-config"

// DefaultConfiguration is the built-in gate configuration.
const DefaultConfiguration = strategy.AllowsRequestsWhileOnline |
	strategy.AllowsRequestsDuringQuickSync |
	strategy.AllowsRequestsWhileInBackground

// TeamIDFunc returns the team of the self user, or "" if the user has none.
type TeamIDFunc func() string

// Config configures a Strategy.
type Config struct {
	// Logger is the operational logger (default: slog.Default()).
	Logger *slog.Logger

	// Events receives request events (optional).
	Events log.Logger

	// Overrides replace the built-in gate configuration by name.
	Overrides strategy.Registry
}

// pendingItem is either a single feature (name set) or all features.
type pendingItem struct {
	name string
}

func (p pendingItem) all() bool { return p.name == "" }

// Strategy fetches feature configurations on demand.
type Strategy struct {
	*strategy.Base

	store    *Store
	teamID   TeamIDFunc
	notifier strategy.RequestNotifier
	logger   *slog.Logger
	events   log.Logger

	mu      sync.Mutex
	pending []pendingItem
}

// NewStrategy creates the feature config strategy.
func NewStrategy(status strategy.ApplicationStatus, store *Store, teamID TeamIDFunc, notifier strategy.RequestNotifier, config Config) *Strategy {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if notifier == nil {
		notifier = strategy.NoopNotifier{}
	}
	s := &Strategy{
		store:    store,
		teamID:   teamID,
		notifier: notifier,
		logger:   config.Logger.With("strategy", StrategyName),
		events:   log.OrNoop(config.Events),
	}
	s.Base = strategy.NewBase(StrategyName, DefaultConfiguration, status, s.nextRequestIfAllowed,
		strategy.WithEventLogger(config.Events),
		strategy.WithOverrides(config.Overrides),
	)
	return s
}

// RequestConfig schedules a fetch of a single feature.
func (s *Strategy) RequestConfig(name string) {
	s.enqueue(pendingItem{name: name})
}

// RequestAllConfigs schedules a fetch of all features.
func (s *Strategy) RequestAllConfigs() {
	s.enqueue(pendingItem{})
}

// Pending returns the number of scheduled fetches.
func (s *Strategy) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Strategy) enqueue(item pendingItem) {
	s.mu.Lock()
	s.pending = append(s.pending, item)
	s.mu.Unlock()
	s.notifier.NewRequestsAvailable()
}

func (s *Strategy) nextRequestIfAllowed(_ context.Context, _ apiversion.Version) *transport.Request {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return nil
	}
	item := s.pending[0]
	s.pending = s.pending[1:]
	s.mu.Unlock()

	team := ""
	if s.teamID != nil {
		team = s.teamID()
	}
	if team == "" {
		s.logger.Debug("no team, dropping feature config fetch")
		return nil
	}

	path := "/teams/" + url.PathEscape(team) + "/features"
	if !item.all() {
		path += "/" + url.PathEscape(item.name)
	}
	req := transport.NewGetRequest(path)
	req.AddCompletionHandler(func(resp *transport.Response) {
		s.didReceive(item, resp)
	})
	return req
}

func (s *Strategy) didReceive(item pendingItem, resp *transport.Response) {
	if resp.Result() != transport.ResultSuccess {
		s.logger.Error("error downloading feature configuration", "status", resp.HTTPStatus, "result", resp.Result())
		return
	}
	if len(resp.Payload) == 0 {
		s.logger.Error("feature configuration response has no payload")
		return
	}

	if !item.all() {
		var f Feature
		if err := json.Unmarshal(resp.Payload, &f); err != nil {
			s.decodeFailed(err)
			return
		}
		f.Name = item.name
		s.store.Save(f)
		return
	}

	var all map[string]Feature
	if err := json.Unmarshal(resp.Payload, &all); err != nil {
		s.decodeFailed(err)
		return
	}
	for name, f := range all {
		f.Name = name
		s.store.Save(f)
	}
}

func (s *Strategy) decodeFailed(err error) {
	s.logger.Error("failed to decode feature config response", "error", err)
	s.events.Log(log.Event{
		Timestamp: time.Now(),
		Category:  log.CategoryError,
		Strategy:  StrategyName,
		Error:     &log.ErrorEventData{Message: err.Error(), Context: "decode feature config"},
	})
}
