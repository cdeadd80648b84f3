// Package client assembles the request layer of a sync client from a
// configuration: application status, request strategies, the request
// store and the operation loop.
package client

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/wireapp/go-request-strategy/pkg/apiversion"
	"github.com/wireapp/go-request-strategy/pkg/appstatus"
	"github.com/wireapp/go-request-strategy/pkg/config"
	"github.com/wireapp/go-request-strategy/pkg/featureconfig"
	"github.com/wireapp/go-request-strategy/pkg/log"
	"github.com/wireapp/go-request-strategy/pkg/notificationstream"
	"github.com/wireapp/go-request-strategy/pkg/operationloop"
	"github.com/wireapp/go-request-strategy/pkg/persistence"
	"github.com/wireapp/go-request-strategy/pkg/strategy"
	"github.com/wireapp/go-request-strategy/pkg/transport"
	"github.com/wireapp/go-request-strategy/pkg/versionsync"
)

// ErrNoBackend is returned when neither a backend URL nor a session is given.
var ErrNoBackend = errors.New("no backend configured")

// Options supplies collaborators that are not part of the configuration.
type Options struct {
	// Session overrides the HTTP session built from the backend config.
	Session transport.Session

	// Delegate receives notification stream events (optional).
	Delegate notificationstream.Delegate

	// Logger is the operational logger (default: slog.Default()).
	Logger *slog.Logger

	// Events receives request events in addition to the configured event log.
	Events log.Logger
}

// Client is an assembled request layer.
type Client struct {
	Status   *appstatus.Tracker
	Versions *apiversion.Store
	Push     *notificationstream.PushStatus
	Features *featureconfig.Store

	VersionSync *versionsync.Strategy
	StreamSync  *notificationstream.Sync
	FeatureSync *featureconfig.Strategy

	Store *strategy.Store
	Loop  *operationloop.Loop

	fileLogger *log.FileLogger
}

// New builds a client. Nothing is sent until Start is called.
func New(cfg *config.Config, opts Options) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{}

	var eventLoggers []log.Logger
	if opts.Events != nil {
		eventLoggers = append(eventLoggers, opts.Events)
	}
	if cfg.Logging.EventLog != "" {
		fl, err := log.NewFileLogger(cfg.Logging.EventLog)
		if err != nil {
			return nil, fmt.Errorf("open event log: %w", err)
		}
		c.fileLogger = fl
		eventLoggers = append(eventLoggers, fl)
	}
	events := log.Logger(log.NewMultiLogger(eventLoggers...))

	session := opts.Session
	if session == nil {
		if cfg.Backend.URL == "" {
			c.closeLogs()
			return nil, ErrNoBackend
		}
		httpSession, err := transport.NewHTTPSession(transport.SessionConfig{
			BaseURL:  cfg.Backend.URL,
			ClientID: cfg.Backend.ClientID,
			Timeout:  cfg.Backend.RequestTimeout,
		})
		if err != nil {
			c.closeLogs()
			return nil, err
		}
		session = httpSession
	}

	var positions notificationstream.PositionStore
	if cfg.StateFile != "" {
		state := persistence.NewClientStateStore(cfg.StateFile)
		versions, err := apiversion.NewPersistentStore(state)
		if err != nil {
			c.closeLogs()
			return nil, err
		}
		c.Versions = versions
		positions = state
	} else {
		c.Versions = apiversion.NewStore()
	}

	c.Status = appstatus.NewTrackerWithStatus(cfg.Status())
	c.Features = featureconfig.NewStore()

	// Strategies are created before the loop; route their notifications
	// through a closure so they reach the loop once it exists.
	notifier := strategy.NotifierFunc(func() {
		if c.Loop != nil {
			c.Loop.NewRequestsAvailable()
		}
	})

	c.Push = notificationstream.NewPushStatus(c.Status, notifier.NewRequestsAvailable)

	c.VersionSync = versionsync.NewStrategy(c.Status, c.Versions, notifier, versionsync.Config{
		Logger:    logger,
		Events:    events,
		Overrides: cfg.Strategies,
	})

	streamSync, err := notificationstream.NewSync(c.Status, c.Push, opts.Delegate, notifier, notificationstream.Config{
		ClientID:  cfg.Backend.ClientID,
		PageSize:  cfg.NotificationStream.PageSize,
		Positions: positions,
		Logger:    logger,
		Events:    events,
		Overrides: cfg.Strategies,
	})
	if err != nil {
		c.closeLogs()
		return nil, fmt.Errorf("notification stream: %w", err)
	}
	c.StreamSync = streamSync

	teamID := cfg.Backend.TeamID
	c.FeatureSync = featureconfig.NewStrategy(c.Status, c.Features, func() string { return teamID }, notifier, featureconfig.Config{
		Logger:    logger,
		Events:    events,
		Overrides: cfg.Strategies,
	})

	c.Store = strategy.NewStore(c.VersionSync, c.StreamSync, c.FeatureSync)
	c.Loop = operationloop.New(c.Store, session, c.Versions, operationloop.Config{
		RequestTimeout: cfg.Backend.RequestTimeout,
		Logger:         logger,
		Events:         events,
	})
	c.Loop.ObserveStatus(c.Status)

	return c, nil
}

// Strategies returns the gated strategies in priority order.
func (c *Client) Strategies() []*strategy.Base {
	return []*strategy.Base{c.VersionSync.Base, c.StreamSync.Base, c.FeatureSync.Base}
}

// Start starts the operation loop.
func (c *Client) Start() error {
	return c.Loop.Start()
}

// Close stops the loop, tears down the strategies and closes the event log.
func (c *Client) Close() error {
	c.Loop.Close()
	c.Store.TearDown()
	return c.closeLogs()
}

func (c *Client) closeLogs() error {
	if c.fileLogger == nil {
		return nil
	}
	return c.fileLogger.Close()
}
