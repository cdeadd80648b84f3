// Package apiversion defines the backend API versions understood by the
// client and keeps track of the version negotiated with the backend.
package apiversion

import (
	"fmt"
	"sync"
)

// Version is a backend API version.
type Version int32

const (
	V0 Version = 0
	V1 Version = 1
	V2 Version = 2
)

// Supported lists the versions this client can speak, in ascending order.
var Supported = []Version{V0, V1, V2}

// String returns the version as used in request paths, e.g. "v1".
func (v Version) String() string {
	return fmt.Sprintf("v%d", int32(v))
}

// IsSupported returns true if the client supports v.
func (v Version) IsSupported() bool {
	for _, s := range Supported {
		if s == v {
			return true
		}
	}
	return false
}

// HighestCommon returns the highest of the backend versions that the client
// also supports. The second return value is false if there is none.
func HighestCommon(backendVersions []int32) (Version, bool) {
	best, found := V0, false
	for _, raw := range backendVersions {
		v := Version(raw)
		if !v.IsSupported() {
			continue
		}
		if !found || v > best {
			best, found = v, true
		}
	}
	return best, found
}

// Persister stores the negotiated version across restarts.
type Persister interface {
	LoadAPIVersion() (*int32, error)
	SaveAPIVersion(v *int32) error
}

// Store holds the version against which new requests are made.
// An unset version means it has to be (re-)negotiated with the backend.
type Store struct {
	mu        sync.RWMutex
	current   *Version
	persister Persister
}

// NewStore creates an empty, non-persistent store.
func NewStore() *Store {
	return &Store{}
}

// NewPersistentStore creates a store backed by p and loads the saved version.
func NewPersistentStore(p Persister) (*Store, error) {
	s := &Store{persister: p}
	raw, err := p.LoadAPIVersion()
	if err != nil {
		return nil, fmt.Errorf("load api version: %w", err)
	}
	if raw != nil {
		v := Version(*raw)
		if v.IsSupported() {
			s.current = &v
		}
	}
	return s, nil
}

// Current returns the negotiated version, if any.
func (s *Store) Current() (Version, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return V0, false
	}
	return *s.current, true
}

// Set stores v as the current version.
func (s *Store) Set(v Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = &v
	if s.persister == nil {
		return nil
	}
	raw := int32(v)
	return s.persister.SaveAPIVersion(&raw)
}

// Reset clears the current version so it is negotiated again.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
	if s.persister == nil {
		return nil
	}
	return s.persister.SaveAPIVersion(nil)
}
