package audit

import (
	"context"
	"sort"
	"sync"
)

// Store persists entries. Implementations must be append-only: there is no
// update or delete.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	Query(ctx context.Context, params QueryParams) ([]Entry, error)
}

// MemoryStore keeps entries in process. Suitable for development and tests;
// data is lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
	ids     map[string]struct{}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ids: make(map[string]struct{})}
}

// Append stores a copy of the entry. Re-appending an existing ID returns
// ErrDuplicateEntry and leaves the stored entry untouched.
func (s *MemoryStore) Append(ctx context.Context, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := entry.ID.String()
	if _, exists := s.ids[key]; exists {
		return ErrDuplicateEntry
	}
	entry.Details = cloneDetails(entry.Details)
	s.entries = append(s.entries, entry)
	s.ids[key] = struct{}{}
	return nil
}

// Query returns matching entries, most recent first.
func (s *MemoryStore) Query(ctx context.Context, params QueryParams) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	matches := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if matchesParams(e, params) {
			e.Details = cloneDetails(e.Details)
			matches = append(matches, e)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matches, func(i, j int) bool {
		if !matches[i].Timestamp.Equal(matches[j].Timestamp) {
			return matches[i].Timestamp.After(matches[j].Timestamp)
		}
		return matches[i].ID.String() > matches[j].ID.String()
	})
	if params.Offset > 0 {
		if params.Offset >= len(matches) {
			return []Entry{}, nil
		}
		matches = matches[params.Offset:]
	}
	if params.Limit > 0 && len(matches) > params.Limit {
		matches = matches[:params.Limit]
	}
	return matches, nil
}

// Len reports the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func matchesParams(e Entry, p QueryParams) bool {
	if p.ActorID != "" && e.ActorID != p.ActorID {
		return false
	}
	if p.Action != "" && e.Action != p.Action {
		return false
	}
	if p.TargetType != "" && e.TargetType != p.TargetType {
		return false
	}
	if !p.From.IsZero() && e.Timestamp.Before(p.From) {
		return false
	}
	if !p.To.IsZero() && !e.Timestamp.Before(p.To) {
		return false
	}
	return true
}
