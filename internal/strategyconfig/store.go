package strategyconfig

import (
	"sync"
	"time"
)

// Store holds the live strategy config behind a single-writer lock
// Readers get deep copies and never observe a half-applied update.
type Store struct {
	mu       sync.RWMutex
	cfg      *Config
	override *Override
}

// NewStore validates cfg and wraps it
func NewStore(cfg *Config) (*Store, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return &Store{cfg: cfg.Clone()}, nil
}

// Snapshot returns a copy of the current config
func (s *Store) Snapshot() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone()
}

// Update applies fn to a copy, validates it, then commits
func (s *Store) Update(fn func(cfg *Config) error) (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if err := Validate(next); err != nil {
		return nil, err
	}

	s.cfg = next
	return next.Clone(), nil
}

// Replace swaps in a whole new config after validation
func (s *Store) Replace(cfg *Config) error {
	if err := Validate(cfg); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg.Clone()
	s.override = nil
	return nil
}

// ApplyOverride replaces the factor weights with an external override
func (s *Store) ApplyOverride(o Override) (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := ApplyOverride(s.cfg, o)
	if err != nil {
		return nil, err
	}

	o.AppliedAt = time.Now()
	s.cfg = next
	s.override = &o
	return next.Clone(), nil
}

// LastOverride returns the most recently applied override, if any
func (s *Store) LastOverride() (Override, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.override == nil {
		return Override{}, false
	}
	return *s.override, true
}

// MarkRebalanced records the last rebalance time
func (s *Store) MarkRebalanced(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Rebalance.LastRebalance = at
}
