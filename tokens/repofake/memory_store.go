package tokensrepofake

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-market-client/tokens"
)

var _ tokens.Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory tokens.Store with injectable failures.
type MemoryStore struct {
	pair     *tokens.Pair
	saveErr  error
	loadErr  error
	clearErr error
	saves    int
	clears   int
	lock     sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Seed stores a pair without counting it as a save.
func (s *MemoryStore) Seed(pair tokens.Pair) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.pair = &pair
}

// FailSave makes subsequent saves fail with err (nil restores success).
func (s *MemoryStore) FailSave(err error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.saveErr = err
}

func (s *MemoryStore) FailLoad(err error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.loadErr = err
}

func (s *MemoryStore) FailClear(err error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.clearErr = err
}

func (s *MemoryStore) Save(_ context.Context, pair tokens.Pair) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.saveErr != nil {
		return &tokens.StorageError{Op: "save", Err: s.saveErr}
	}
	s.pair = &pair
	s.saves++
	return nil
}

func (s *MemoryStore) Load(_ context.Context) (*tokens.Pair, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.loadErr != nil {
		return nil, &tokens.StorageError{Op: "load", Err: s.loadErr}
	}
	if s.pair == nil {
		return nil, nil
	}
	p := *s.pair
	return &p, nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.clearErr != nil {
		return &tokens.StorageError{Op: "clear", Err: s.clearErr}
	}
	s.pair = nil
	s.clears++
	return nil
}

func (s *MemoryStore) Saves() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.saves
}

func (s *MemoryStore) Clears() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.clears
}
