package strategy

import (
	"context"
	"sync"

	"github.com/wireapp/go-request-strategy/pkg/apiversion"
	"github.com/wireapp/go-request-strategy/pkg/transport"
)

// GeneratorSource is implemented by strategies that produce requests
// through more than one generator.
type GeneratorSource interface {
	RequestGenerators() []RequestGenerator
}

// TearDowner is implemented by strategies holding resources that must be
// released when the store is torn down.
type TearDowner interface {
	TearDown()
}

// Store collects request generators and asks them for requests in order.
// It is safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	generators []RequestGenerator
	strategies []any
	tornDown   bool
}

// NewStore creates a store from strategies. Each strategy contributes
// itself if it is a RequestGenerator, followed by its generators if it is a
// GeneratorSource.
func NewStore(strategies ...any) *Store {
	s := &Store{}
	for _, st := range strategies {
		s.Add(st)
	}
	return s
}

// Add registers another strategy after the existing ones.
func (s *Store) Add(st any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.strategies = append(s.strategies, st)
	if g, ok := st.(RequestGenerator); ok {
		s.generators = append(s.generators, g)
	}
	if src, ok := st.(GeneratorSource); ok {
		s.generators = append(s.generators, src.RequestGenerators()...)
	}
}

// Len returns the number of registered generators.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.generators)
}

// NextRequest returns the first request produced by any generator, or nil.
func (s *Store) NextRequest(ctx context.Context, v apiversion.Version) *transport.Request {
	s.mu.RLock()
	if s.tornDown {
		s.mu.RUnlock()
		return nil
	}
	generators := s.generators
	s.mu.RUnlock()

	for _, g := range generators {
		if ctx.Err() != nil {
			return nil
		}
		if req := g.NextRequest(ctx, v); req != nil {
			return req
		}
	}
	return nil
}

// TearDown releases all strategies. The store produces no requests afterwards.
// It is safe to call TearDown multiple times.
func (s *Store) TearDown() {
	s.mu.Lock()
	if s.tornDown {
		s.mu.Unlock()
		return
	}
	s.tornDown = true
	strategies := s.strategies
	s.mu.Unlock()

	for _, st := range strategies {
		if td, ok := st.(TearDowner); ok {
			td.TearDown()
		}
	}
}

// IsTornDown returns true after TearDown.
func (s *Store) IsTornDown() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tornDown
}
