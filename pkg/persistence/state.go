package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StateVersion is the current version of the state file format.
const StateVersion = 1

// ClientState contains the sync state of one client.
type ClientState struct {
	// Version is the state file format version.
	Version int `json:"version"`

	// SavedAt is when the state was last saved.
	SavedAt time.Time `json:"saved_at"`

	// APIVersion is the negotiated backend API version, nil if not negotiated.
	APIVersion *int32 `json:"api_version,omitempty"`

	// LastNotificationID is the ID of the last processed notification.
	LastNotificationID string `json:"last_notification_id,omitempty"`
}

// ClientStateStore manages persistence of client state to a JSON file.
type ClientStateStore struct {
	mu   sync.Mutex
	path string
}

// NewClientStateStore creates a new client state store.
func NewClientStateStore(path string) *ClientStateStore {
	return &ClientStateStore{path: path}
}

// Path returns the state file path.
func (s *ClientStateStore) Path() string { return s.path }

// Save persists the client state to disk.
func (s *ClientStateStore) Save(state *ClientState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(state)
}

// Load reads the client state from disk.
// Returns nil, nil if the file doesn't exist (empty state).
func (s *ClientStateStore) Load() (*ClientState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Update loads the state (or an empty one), applies fn and saves the result.
func (s *ClientStateStore) Update(fn func(*ClientState)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load()
	if err != nil {
		return err
	}
	if state == nil {
		state = &ClientState{}
	}
	fn(state)
	state.SavedAt = time.Time{}
	return s.save(state)
}

// Clear removes the state file.
func (s *ClientStateStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// LoadAPIVersion implements apiversion.Persister.
func (s *ClientStateStore) LoadAPIVersion() (*int32, error) {
	state, err := s.Load()
	if err != nil || state == nil {
		return nil, err
	}
	return state.APIVersion, nil
}

// SaveAPIVersion implements apiversion.Persister.
func (s *ClientStateStore) SaveAPIVersion(v *int32) error {
	return s.Update(func(st *ClientState) { st.APIVersion = v })
}

// LoadLastNotificationID returns the stored stream position.
func (s *ClientStateStore) LoadLastNotificationID() (string, error) {
	state, err := s.Load()
	if err != nil || state == nil {
		return "", err
	}
	return state.LastNotificationID, nil
}

// SaveLastNotificationID stores the stream position.
func (s *ClientStateStore) SaveLastNotificationID(id string) error {
	return s.Update(func(st *ClientState) { st.LastNotificationID = id })
}

func (s *ClientStateStore) save(state *ClientState) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}

	state.Version = StateVersion
	if state.SavedAt.IsZero() {
		state.SavedAt = time.Now()
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	// Write to a temp file first so a crash never leaves a truncated state.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *ClientStateStore) load() (*ClientState, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	state := &ClientState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, err
	}
	return state, nil
}
