package mode

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultHistoryLimit bounds the switch history when no limit is configured.
const DefaultHistoryLimit = 256

// Listener observes state changes after they are applied.
type Listener func(state State)

// Option configures a Selector.
type Option func(*Selector)

// WithClock overrides the time source used for history timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Selector) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithHistoryLimit bounds the history ring. Non-positive values use DefaultHistoryLimit.
func WithHistoryLimit(limit int) Option {
	return func(s *Selector) {
		if limit > 0 {
			s.history = newRing(limit)
		}
	}
}

// WithLogger sets the logger used for persistence failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Selector) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithInitialState seeds the selection when the store has nothing saved.
func WithInitialState(state State) Option {
	return func(s *Selector) {
		s.state = sanitize(state)
	}
}

// Selector holds the current (mode, capability) pair and its switch history.
// It is safe for concurrent use.
type Selector struct {
	mu        sync.Mutex
	state     State
	history   *ring
	store     Store
	now       func() time.Time
	logger    *slog.Logger
	listeners map[int]Listener
	nextID    int
}

// NewSelector builds a selector and restores the persisted pair from store.
// A nil store keeps state in memory only.
func NewSelector(store Store, opts ...Option) (*Selector, error) {
	s := &Selector{
		state:     DefaultState(),
		history:   newRing(DefaultHistoryLimit),
		store:     store,
		now:       time.Now,
		logger:    slog.New(slog.DiscardHandler),
		listeners: map[int]Listener{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if store == nil {
		return s, nil
	}
	saved, ok, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("restore mode selection: %w", err)
	}
	if ok {
		s.state = saved
	}
	return s, nil
}

// Mode returns the current scene.
func (s *Selector) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Mode
}

// Capability returns the current capability.
func (s *Selector) Capability() Capability {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Capability
}

// State returns the current pair.
func (s *Selector) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SwitchMode sets the scene and records a history entry, even when unchanged.
func (s *Selector) SwitchMode(m Mode) {
	s.mu.Lock()
	s.state.Mode = m
	s.history.push(Context{Mode: m, Capability: s.state.Capability, Timestamp: s.now()})
	s.persistLocked()
	state, listeners := s.state, s.snapshotListeners()
	s.mu.Unlock()

	notify(state, listeners)
}

// SwitchCapability sets the capability and records a history entry, even when unchanged.
func (s *Selector) SwitchCapability(c Capability) {
	s.mu.Lock()
	s.state.Capability = c
	s.history.push(Context{Mode: s.state.Mode, Capability: c, Timestamp: s.now()})
	s.persistLocked()
	state, listeners := s.state, s.snapshotListeners()
	s.mu.Unlock()

	notify(state, listeners)
}

// AutoDetectMode classifies input by keyword and switches to the matching
// scene. Without a match it returns the current scene and records nothing.
func (s *Selector) AutoDetectMode(input string) Mode {
	detected, ok := Classify(input)
	if !ok {
		return s.Mode()
	}
	s.SwitchMode(detected)
	return detected
}

// ResetMode restores the default pair and clears history.
func (s *Selector) ResetMode() {
	s.mu.Lock()
	s.state = DefaultState()
	s.history.reset()
	s.persistLocked()
	state, listeners := s.state, s.snapshotListeners()
	s.mu.Unlock()

	notify(state, listeners)
}

// AvailableActions returns the actions for the current pair.
func (s *Selector) AvailableActions() []ActionConfig {
	state := s.State()
	return ActionsFor(state.Mode, state.Capability)
}

// ModeConfig returns the descriptor of the current scene.
func (s *Selector) ModeConfig() ModeConfig {
	config, _ := ConfigForMode(s.Mode())
	return config
}

// CapabilityConfig returns the descriptor of the current capability,
// populated with the currently available actions.
func (s *Selector) CapabilityConfig() CapabilityConfig {
	state := s.State()
	config, _ := ConfigForCapability(state.Mode, state.Capability)
	return config
}

// History returns the recorded switches, oldest first.
func (s *Selector) History() []Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.items()
}

// Subscribe registers a listener and returns a function that removes it.
func (s *Selector) Subscribe(listener Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = listener
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Selector) snapshotListeners() []Listener {
	listeners := make([]Listener, 0, len(s.listeners))
	for id := 0; id < s.nextID; id++ {
		if listener, ok := s.listeners[id]; ok {
			listeners = append(listeners, listener)
		}
	}
	return listeners
}

// persistLocked writes the current pair while s.mu is held so saves land in
// call order. Save failures are logged; in-memory state stays authoritative.
func (s *Selector) persistLocked() {
	if s.store == nil {
		return
	}
	if err := s.store.Save(s.state); err != nil {
		s.logger.Warn("persist mode selection", "mode", s.state.Mode, "capability", s.state.Capability, "error", err)
	}
}

func notify(state State, listeners []Listener) {
	for _, listener := range listeners {
		listener(state)
	}
}

// ring is a fixed-capacity history buffer that evicts the oldest entry.
type ring struct {
	buffer []Context
	start  int
	size   int
}

func newRing(capacity int) *ring {
	return &ring{buffer: make([]Context, capacity)}
}

func (r *ring) push(entry Context) {
	if r.size < len(r.buffer) {
		r.buffer[(r.start+r.size)%len(r.buffer)] = entry
		r.size++
		return
	}
	r.buffer[r.start] = entry
	r.start = (r.start + 1) % len(r.buffer)
}

func (r *ring) items() []Context {
	out := make([]Context, 0, r.size)
	for i := 0; i < r.size; i++ {
		out = append(out, r.buffer[(r.start+i)%len(r.buffer)])
	}
	return out
}

func (r *ring) reset() {
	r.start = 0
	r.size = 0
	clear(r.buffer)
}
