// Package featureconfig fetches team feature configurations from the
// backend and keeps the latest known state of each feature.
package featureconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Feature names known to the client.
const (
	FeatureAppLock = "applock"
)

// ErrFeatureNotFound is returned for features that were never fetched.
var ErrFeatureNotFound = errors.New("feature not found")

// Status is the team-level state of a feature.
type Status string

const (
	StatusEnabled  Status = "enabled"
	StatusDisabled Status = "disabled"
)

// Feature is the stored state of one feature.
type Feature struct {
	Name   string          `json:"-"`
	Status Status          `json:"status"`
	Config json.RawMessage `json:"config,omitempty"`
}

// IsEnabled returns true if the feature is enabled for the team.
func (f Feature) IsEnabled() bool { return f.Status == StatusEnabled }

// AppLockConfig is the configuration of the applock feature.
type AppLockConfig struct {
	EnforceAppLock        bool `json:"enforceAppLock"`
	InactivityTimeoutSecs uint `json:"inactivityTimeoutSecs"`
}

// Store holds the latest feature states.
// It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	features map[string]Feature
	onChange []func(Feature)
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{features: make(map[string]Feature)}
}

// Save stores f and notifies observers.
func (s *Store) Save(f Feature) {
	s.mu.Lock()
	s.features[f.Name] = f
	callbacks := s.onChange
	s.mu.Unlock()

	for _, fn := range callbacks {
		fn(f)
	}
}

// Get returns the stored feature.
func (s *Store) Get(name string) (Feature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.features[name]
	if !ok {
		return Feature{}, fmt.Errorf("%w: %s", ErrFeatureNotFound, name)
	}
	return f, nil
}

// Names returns all stored feature names in sorted order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.features))
	for name := range s.features {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OnChange registers a callback for every saved feature.
func (s *Store) OnChange(fn func(Feature)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// AppLock returns the decoded applock configuration.
func (s *Store) AppLock() (Feature, AppLockConfig, error) {
	f, err := s.Get(FeatureAppLock)
	if err != nil {
		return Feature{}, AppLockConfig{}, err
	}
	var cfg AppLockConfig
	if len(f.Config) > 0 {
		if err := json.Unmarshal(f.Config, &cfg); err != nil {
			return f, AppLockConfig{}, fmt.Errorf("decode applock config: %w", err)
		}
	}
	return f, cfg, nil
}
