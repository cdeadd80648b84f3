package strategy

import (
	"context"
	"sync"
	"time"

	"github.com/wireapp/go-request-strategy/pkg/apiversion"
	"github.com/wireapp/go-request-strategy/pkg/appstatus"
	"github.com/wireapp/go-request-strategy/pkg/log"
	"github.com/wireapp/go-request-strategy/pkg/transport"
)

// Prerequisites returns the conditions that hold for the given status.
func Prerequisites(s appstatus.Status) Option {
	var o Option
	switch s.SyncState {
	case appstatus.SyncStateUnauthenticated:
		o |= AllowsRequestsWhileUnauthenticated
	case appstatus.SyncStateSlowSyncing:
		o |= AllowsRequestsDuringSlowSync
	case appstatus.SyncStateQuickSyncing:
		o |= AllowsRequestsDuringQuickSync
	case appstatus.SyncStateOnline:
		o |= AllowsRequestsWhileOnline
	}
	if s.OperationState == appstatus.OperationStateBackground {
		o |= AllowsRequestsWhileInBackground
	}
	if s.FetchingNotificationStream {
		o |= AllowsRequestsDuringNotificationStreamFetch
	}
	return o
}

// Allows reports whether a strategy with the given configuration may issue
// requests under status s.
func Allows(configuration Option, s appstatus.Status) bool {
	if configuration.IsEmpty() {
		return false
	}
	return Prerequisites(s).IsSubsetOf(configuration)
}

// ApplicationStatus provides the status snapshot used for gating.
// Implemented by *appstatus.Tracker.
type ApplicationStatus interface {
	Snapshot() appstatus.Status
}

// RequestGenerator produces the next request, or nil if there is nothing to do.
type RequestGenerator interface {
	NextRequest(ctx context.Context, v apiversion.Version) *transport.Request
}

// RequestFunc adapts a function to RequestGenerator.
type RequestFunc func(ctx context.Context, v apiversion.Version) *transport.Request

// NextRequest calls f.
func (f RequestFunc) NextRequest(ctx context.Context, v apiversion.Version) *transport.Request {
	return f(ctx, v)
}

// BaseOption configures a Base.
type BaseOption func(*Base)

// WithEventLogger reports gate decisions to l.
func WithEventLogger(l log.Logger) BaseOption {
	return func(b *Base) { b.events = log.OrNoop(l) }
}

// WithOverrides replaces the built-in configuration with the one in r, if
// r has an entry for the strategy name.
func WithOverrides(r Registry) BaseOption {
	return func(b *Base) {
		if o, ok := r.Lookup(b.name); ok {
			b.configuration = o
		}
	}
}

// Base gates a strategy's request function behind its configuration.
// Concrete strategies embed or wrap a Base and implement only the
// "next request if allowed" part.
type Base struct {
	name          string
	configuration Option
	status        ApplicationStatus
	next          RequestFunc
	events        log.Logger

	mu          sync.Mutex
	lastAllowed *bool
}

// NewBase creates a gated strategy. The configuration is fixed for the
// lifetime of the Base.
func NewBase(name string, configuration Option, status ApplicationStatus, next RequestFunc, opts ...BaseOption) *Base {
	b := &Base{
		name:          name,
		configuration: configuration,
		status:        status,
		next:          next,
		events:        log.NoopLogger{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the strategy name.
func (b *Base) Name() string { return b.name }

// Configuration returns the conditions under which the strategy may issue requests.
func (b *Base) Configuration() Option { return b.configuration }

// IsAllowed reports whether the strategy may issue requests right now.
func (b *Base) IsAllowed() bool {
	return Allows(b.configuration, b.status.Snapshot())
}

// NextRequest returns the next request if the current application status
// allows it. The request is stamped with the API version v unless it is
// unversioned.
func (b *Base) NextRequest(ctx context.Context, v apiversion.Version) *transport.Request {
	st := b.status.Snapshot()
	pre := Prerequisites(st)
	allowed := !b.configuration.IsEmpty() && pre.IsSubsetOf(b.configuration)
	b.reportGate(st, pre, allowed)

	if !allowed || b.next == nil {
		return nil
	}
	req := b.next(ctx, v)
	if req == nil {
		return nil
	}
	if !req.Unversioned {
		req.APIVersion = v
	}
	if req.Strategy == "" {
		req.Strategy = b.name
	}
	return req
}

// reportGate logs a gate event when the decision differs from the previous one.
func (b *Base) reportGate(st appstatus.Status, pre Option, allowed bool) {
	b.mu.Lock()
	changed := b.lastAllowed == nil || *b.lastAllowed != allowed
	b.lastAllowed = &allowed
	b.mu.Unlock()

	if !changed {
		return
	}
	b.events.Log(log.Event{
		Timestamp: time.Now(),
		Category:  log.CategoryGate,
		Strategy:  b.name,
		Gate: &log.GateEvent{
			Configuration: uint32(b.configuration),
			Prerequisites: uint32(pre),
			Allowed:       allowed,
			Status:        st.String(),
		},
	})
}

// Compile-time interface satisfaction check.
var _ RequestGenerator = (*Base)(nil)
