package operationloop

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/wireapp/go-request-strategy/pkg/apiversion"
	"github.com/wireapp/go-request-strategy/pkg/appstatus"
	"github.com/wireapp/go-request-strategy/pkg/log"
	"github.com/wireapp/go-request-strategy/pkg/strategy"
	"github.com/wireapp/go-request-strategy/pkg/transport"
)

// Loop errors.
var (
	ErrLoopClosed  = errors.New("operation loop closed")
	ErrLoopStarted = errors.New("operation loop already started")
)

// DefaultRequestTimeout bounds a single request.
const DefaultRequestTimeout = 60 * time.Second

// VersionSource provides the API version for new requests.
// Implemented by *apiversion.Store.
type VersionSource interface {
	Current() (apiversion.Version, bool)
}

// Config configures a Loop.
type Config struct {
	// RequestTimeout bounds a single request (default: 60s).
	RequestTimeout time.Duration

	// Backoff configures the retry delay after temporary failures.
	Backoff BackoffConfig

	// Logger is the operational logger (default: slog.Default()).
	Logger *slog.Logger

	// Events receives request events (optional).
	Events log.Logger
}

// Stats counts requests handled by the loop.
type Stats struct {
	Sent            int
	Succeeded       int
	TemporaryFailed int
	PermanentFailed int
	Expired         int
}

// Loop sends the requests produced by a store.
type Loop struct {
	store    strategy.RequestGenerator
	session  transport.Session
	versions VersionSource
	config   Config
	logger   *slog.Logger
	events   log.Logger
	backoff  *Backoff

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	signal chan struct{}

	mu      sync.Mutex
	started bool
	closed  bool
	retry   *time.Timer
	stats   Stats
}

// New creates a loop. versions may be nil, in which case requests use v0.
func New(store strategy.RequestGenerator, session transport.Session, versions VersionSource, config Config) *Loop {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultRequestTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Loop{
		store:    store,
		session:  session,
		versions: versions,
		config:   config,
		logger:   config.Logger.With("component", "operationloop"),
		events:   log.OrNoop(config.Events),
		backoff:  NewBackoff(config.Backoff),
		ctx:      ctx,
		cancel:   cancel,
		signal:   make(chan struct{}, 1),
	}
}

// Start launches the worker goroutine and schedules a first pass.
func (l *Loop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrLoopClosed
	}
	if l.started {
		return ErrLoopStarted
	}
	l.started = true

	l.wg.Add(1)
	go l.run()
	l.trigger()
	return nil
}

// NewRequestsAvailable schedules another pass over the store.
// Calls while a pass is pending are coalesced.
func (l *Loop) NewRequestsAvailable() {
	l.trigger()
}

// ObserveStatus schedules a pass on every application status change and
// records the change in the event log.
func (l *Loop) ObserveStatus(t *appstatus.Tracker) {
	t.OnChange(func(old, current appstatus.Status) {
		l.logStatusChange(old, current)
		l.trigger()
	})
}

// Stats returns a copy of the request counters.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Close stops the worker and waits for it to exit. In-flight requests are
// cancelled. It is safe to call Close multiple times.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	if l.retry != nil {
		l.retry.Stop()
	}
	l.mu.Unlock()

	l.cancel()
	l.wg.Wait()
}

func (l *Loop) trigger() {
	select {
	case l.signal <- struct{}{}:
	default:
		// Already pending
	}
}

func (l *Loop) run() {
	defer l.wg.Done()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-l.signal:
			l.drain()
		}
	}
}

// drain sends requests until the store runs dry or a temporary failure
// asks for a pause.
func (l *Loop) drain() {
	for l.ctx.Err() == nil {
		v := apiversion.V0
		if l.versions != nil {
			if current, ok := l.versions.Current(); ok {
				v = current
			}
		}

		req := l.store.NextRequest(l.ctx, v)
		if req == nil {
			return
		}
		if !l.execute(req) {
			l.scheduleRetry()
			return
		}
	}
}

// execute sends req and completes it. It returns false if the loop should
// back off.
func (l *Loop) execute(req *transport.Request) bool {
	l.events.Log(log.Event{
		Timestamp: time.Now(),
		Category:  log.CategoryRequest,
		Strategy:  req.Strategy,
		RequestID: req.ID,
		Request: &log.RequestEvent{
			Method:     req.Method,
			Path:       req.URLPath(),
			APIVersion: int32(req.APIVersion),
			Background: req.Background,
		},
	})

	ctx, cancel := context.WithTimeout(l.ctx, l.config.RequestTimeout)
	start := time.Now()
	resp, err := l.session.Do(ctx, req)
	cancel()
	if err != nil {
		resp = transport.NewErrorResponse(err)
	}
	if resp == nil {
		resp = transport.NewErrorResponse(errors.New("session returned no response"))
	}
	result := resp.Result()

	l.events.Log(log.Event{
		Timestamp: time.Now(),
		Category:  log.CategoryResponse,
		Strategy:  req.Strategy,
		RequestID: req.ID,
		Response: &log.ResponseEvent{
			HTTPStatus:  resp.HTTPStatus,
			Result:      result.String(),
			PayloadSize: len(resp.Payload),
			Duration:    time.Since(start),
		},
	})

	l.mu.Lock()
	l.stats.Sent++
	switch result {
	case transport.ResultSuccess:
		l.stats.Succeeded++
	case transport.ResultTemporaryError:
		l.stats.TemporaryFailed++
	case transport.ResultPermanentError:
		l.stats.PermanentFailed++
	case transport.ResultExpired:
		l.stats.Expired++
	}
	l.mu.Unlock()

	if l.ctx.Err() != nil {
		// Shutting down; the response is a cancellation, not a backend answer.
		req.Complete(transport.NewErrorResponse(ErrLoopClosed))
		return true
	}

	if result != transport.ResultSuccess {
		l.logger.Debug("request failed", "method", req.Method, "path", req.URLPath(), "status", resp.HTTPStatus, "result", result, "error", resp.Err)
	}
	req.Complete(resp)

	switch result {
	case transport.ResultSuccess:
		l.backoff.Reset()
		return true
	case transport.ResultTemporaryError, transport.ResultExpired:
		return false
	default:
		return true
	}
}

func (l *Loop) scheduleRetry() {
	delay := l.backoff.Next()
	l.logger.Info("backing off after temporary failure", "delay", delay, "attempt", l.backoff.Attempts())

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	if l.retry != nil {
		l.retry.Stop()
	}
	l.retry = time.AfterFunc(delay, l.trigger)
}

func (l *Loop) logStatusChange(old, current appstatus.Status) {
	emit := func(entity log.StateEntity, oldState, newState string) {
		l.events.Log(log.Event{
			Timestamp: time.Now(),
			Category:  log.CategoryState,
			StateChange: &log.StateChangeEvent{
				Entity:   entity,
				OldState: oldState,
				NewState: newState,
			},
		})
	}
	if old.SyncState != current.SyncState {
		emit(log.StateEntitySync, old.SyncState.String(), current.SyncState.String())
	}
	if old.OperationState != current.OperationState {
		emit(log.StateEntityOperation, old.OperationState.String(), current.OperationState.String())
	}
	if old.FetchingNotificationStream != current.FetchingNotificationStream {
		emit(log.StateEntityNotificationStream, fetchState(old.FetchingNotificationStream), fetchState(current.FetchingNotificationStream))
	}
}

func fetchState(fetching bool) string {
	if fetching {
		return "FETCHING"
	}
	return "IDLE"
}
