package mode

import (
	"encoding/json"
	"fmt"
	"sync"
)

// StorageKey is the key-value entry holding the persisted selection.
const StorageKey = "mode-storage"

// Store persists the (mode, capability) pair. History is never persisted.
type Store interface {
	// Load returns the saved state and whether one existed.
	Load() (State, bool, error)
	// Save replaces the saved state.
	Save(state State) error
}

// KeyValue is the subset of a key-value store the selector persists through.
type KeyValue interface {
	Get(key string) (string, bool, error)
	Set(key string, value string) error
}

// persistedEnvelope mirrors the versioned envelope written under StorageKey.
type persistedEnvelope struct {
	State   State `json:"state"`
	Version int   `json:"version"`
}

// KVStore stores the selection as JSON under StorageKey.
type KVStore struct {
	kv KeyValue
}

// NewKVStore wraps a key-value store.
func NewKVStore(kv KeyValue) *KVStore {
	return &KVStore{kv: kv}
}

// Load reads and decodes the stored selection. Unknown values fall back to defaults.
func (s *KVStore) Load() (State, bool, error) {
	raw, ok, err := s.kv.Get(StorageKey)
	if err != nil {
		return State{}, false, fmt.Errorf("load %s: %w", StorageKey, err)
	}
	if !ok {
		return State{}, false, nil
	}
	var envelope persistedEnvelope
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		return State{}, false, fmt.Errorf("parse %s: %w", StorageKey, err)
	}
	return sanitize(envelope.State), true, nil
}

// Save encodes the selection and writes it under StorageKey.
func (s *KVStore) Save(state State) error {
	payload, err := json.Marshal(persistedEnvelope{State: state})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", StorageKey, err)
	}
	if err := s.kv.Set(StorageKey, string(payload)); err != nil {
		return fmt.Errorf("save %s: %w", StorageKey, err)
	}
	return nil
}

// MemoryStore keeps the selection in memory.
type MemoryStore struct {
	mu    sync.Mutex
	state State
	saved bool
	saves int
}

// Load returns the last saved state.
func (s *MemoryStore) Load() (State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.saved, nil
}

// Save records state.
func (s *MemoryStore) Save(state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.saved = true
	s.saves++
	return nil
}

// Saves reports how many times Save was called.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// sanitize replaces values outside the enums with defaults so a corrupted
// entry cannot leak an invalid pair into the selector.
func sanitize(state State) State {
	defaults := DefaultState()
	if _, ok := modeConfigs[state.Mode]; !ok {
		state.Mode = defaults.Mode
	}
	if _, ok := capabilityConfigs[state.Capability]; !ok {
		state.Capability = defaults.Capability
	}
	return state
}
