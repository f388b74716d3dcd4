package prefs

import (
	"context"
	"sync"
)

// MemoryStore keeps Preferences in process. Used in tests and when persistence is disabled.
type MemoryStore struct {
	mu    sync.Mutex
	p     Preferences
	saved bool
	// Err, when set, is returned by Load and Save.
	Err error
}

// NewMemoryStore returns a store seeded with Defaults.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{p: Defaults()}
}

func (s *MemoryStore) Load(ctx context.Context) (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return Preferences{}, s.Err
	}
	return s.p, ctx.Err()
}

func (s *MemoryStore) Save(ctx context.Context, p Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.p = p
	s.saved = true
	return nil
}

// Saved reports whether Save has succeeded at least once.
func (s *MemoryStore) Saved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved
}
