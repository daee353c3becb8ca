package policy

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
)

// Store holds the live engine. Readers take a snapshot and keep using it for
// the whole decision; reloads swap the pointer only after a candidate built.
type Store struct {
	current atomic.Pointer[Engine]
	version atomic.Uint64
}

// NewStore wraps an initial engine.
func NewStore(initial *Engine) (*Store, error) {
	if initial == nil {
		return nil, errors.New("policy: store requires an initial engine")
	}
	s := &Store{}
	s.current.Store(initial)
	s.version.Store(1)
	return s, nil
}

// Snapshot returns the engine in effect at the time of the call.
func (s *Store) Snapshot() *Engine {
	return s.current.Load()
}

// Version increments on every successful swap.
func (s *Store) Version() uint64 {
	return s.version.Load()
}

// Swap atomically replaces the live engine.
func (s *Store) Swap(next *Engine) {
	if next == nil {
		return
	}
	s.current.Store(next)
	s.version.Add(1)
}

// Reload builds a candidate from src and swaps it in. On failure the previous
// engine stays live and the build error is returned.
func (s *Store) Reload(ctx context.Context, src Source) (*Engine, error) {
	if src == nil {
		return nil, errors.New("policy: reload source not configured")
	}
	doc, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("policy: reload %s: %w", src.Name(), err)
	}
	next, err := Build(doc)
	if err != nil {
		return nil, fmt.Errorf("policy: reload %s: %w", src.Name(), err)
	}
	s.Swap(next)
	return next, nil
}
