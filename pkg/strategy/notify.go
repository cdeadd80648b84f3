package strategy

// RequestNotifier is told when a strategy has new work, so the operation
// loop asks the store again. Implemented by *operationloop.Loop.
type RequestNotifier interface {
	NewRequestsAvailable()
}

// NotifierFunc adapts a function to RequestNotifier.
type NotifierFunc func()

// NewRequestsAvailable calls f.
func (f NotifierFunc) NewRequestsAvailable() {
	if f != nil {
		f()
	}
}

// NoopNotifier ignores notifications.
type NoopNotifier struct{}

// NewRequestsAvailable does nothing.
func (NoopNotifier) NewRequestsAvailable() {}
