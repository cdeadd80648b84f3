// Package versionsync negotiates the backend API version.
//
// Before any versioned request can be made the client asks the backend
// which versions it supports (GET /api-version) and selects the highest
// version both sides understand.
package versionsync

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/wireapp/go-request-strategy/pkg/apiversion"
	"github.com/wireapp/go-request-strategy/pkg/log"
	"github.com/wireapp/go-request-strategy/pkg/strategy"
	"github.com/wireapp/go-request-strategy/pkg/transport"
)

// StrategyName identifies the strategy in logs and configuration overrides.
const StrategyName = "api-version"

// DefaultConfiguration allows negotiation in every sync phase.
const DefaultConfiguration = strategy.AllowsRequestsWhileUnauthenticated |
	strategy.AllowsRequestsDuringSlowSync |
	strategy.AllowsRequestsDuringQuickSync |
	strategy.AllowsRequestsWhileOnline |
	strategy.AllowsRequestsWhileInBackground

// BackendInfo is the response of GET /api-version.
type BackendInfo struct {
	Supported  []int32 `json:"supported"`
	Federation bool    `json:"federation"`
	Domain     string  `json:"domain"`
}

// Config configures a Strategy.
type Config struct {
	Logger    *slog.Logger
	Events    log.Logger
	Overrides strategy.Registry
}

// Strategy fetches the backend API versions while none is negotiated.
type Strategy struct {
	*strategy.Base

	versions *apiversion.Store
	notifier strategy.RequestNotifier
	logger   *slog.Logger
	events   log.Logger

	mu         sync.Mutex
	inProgress bool
	gaveUp     bool
	backend    *BackendInfo
}

// NewStrategy creates the version negotiation strategy.
func NewStrategy(status strategy.ApplicationStatus, versions *apiversion.Store, notifier strategy.RequestNotifier, config Config) *Strategy {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if notifier == nil {
		notifier = strategy.NoopNotifier{}
	}
	s := &Strategy{
		versions: versions,
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

// Backend returns the last backend info received, if any.
func (s *Strategy) Backend() (BackendInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backend == nil {
		return BackendInfo{}, false
	}
	return *s.backend, true
}

// GaveUp reports whether negotiation stopped after a permanent failure.
func (s *Strategy) GaveUp() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gaveUp
}

// Retry resumes negotiation after a permanent failure and asks for the
// request to be sent.
func (s *Strategy) Retry() {
	s.mu.Lock()
	s.gaveUp = false
	s.mu.Unlock()

	s.notifier.NewRequestsAvailable()
}

func (s *Strategy) nextRequestIfAllowed(_ context.Context, _ apiversion.Version) *transport.Request {
	if _, ok := s.versions.Current(); ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inProgress || s.gaveUp {
		return nil
	}
	s.inProgress = true

	req := transport.NewGetRequest("/api-version")
	req.Unversioned = true
	req.AddCompletionHandler(s.didReceive)
	return req
}

func (s *Strategy) didReceive(resp *transport.Response) {
	s.mu.Lock()
	s.inProgress = false
	s.mu.Unlock()

	var info BackendInfo
	switch {
	case resp.HTTPStatus == http.StatusNotFound:
		// Backends predating versioning only speak v0.
		info.Supported = []int32{int32(apiversion.V0)}
	case resp.Result() == transport.ResultPermanentError:
		s.logger.Error("failed to fetch api version", "status", resp.HTTPStatus)
		s.giveUp()
		return
	case resp.Result() != transport.ResultSuccess:
		s.logger.Warn("failed to fetch api version", "status", resp.HTTPStatus, "result", resp.Result())
		return
	default:
		if err := resp.DecodeJSON(&info); err != nil {
			s.logger.Error("failed to decode api version response", "error", err)
			s.giveUp()
			return
		}
	}

	s.mu.Lock()
	s.backend = &info
	s.mu.Unlock()

	v, ok := apiversion.HighestCommon(info.Supported)
	if !ok {
		s.logger.Error("no common api version with backend", "backend", info.Supported)
		s.giveUp()
		return
	}
	if err := s.versions.Set(v); err != nil {
		s.logger.Error("failed to persist api version", "error", err)
	}
	s.logger.Info("negotiated api version", "version", v.String(), "domain", info.Domain)
	s.events.Log(log.Event{
		Timestamp: time.Now(),
		Category:  log.CategoryState,
		Strategy:  StrategyName,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityAPIVersion,
			NewState: v.String(),
			Reason:   "negotiated",
		},
	})
}

func (s *Strategy) giveUp() {
	s.mu.Lock()
	s.gaveUp = true
	s.mu.Unlock()
}
