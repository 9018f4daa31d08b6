package attempt

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"liveness/internal/liveness/models"
	"liveness/pkg/platform/sentinel"
)

// InMemoryStore keeps attempt history in process. Used when no database is
// configured and in tests.
type InMemoryStore struct {
	mu        sync.RWMutex
	byOwner   map[string][]*models.Attempt
	bySession map[models.SessionID]struct{}
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byOwner:   make(map[string][]*models.Attempt),
		bySession: make(map[models.SessionID]struct{}),
	}
}

// Save stores a copy of the attempt. A session id may appear in at most one
// attempt; attempts that never allocated a session are not constrained.
func (s *InMemoryStore) Save(_ context.Context, a *models.Attempt) error {
	if a == nil {
		return fmt.Errorf("save attempt: nil attempt")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !a.SessionID.IsZero() {
		if _, dup := s.bySession[a.SessionID]; dup {
			return fmt.Errorf("save attempt for session %s: %w", a.SessionID, sentinel.ErrConflict)
		}
		s.bySession[a.SessionID] = struct{}{}
	}
	cp := *a
	s.byOwner[a.Owner] = append(s.byOwner[a.Owner], &cp)
	return nil
}

// ListByOwner returns the owner's attempts, newest first.
func (s *InMemoryStore) ListByOwner(_ context.Context, owner string) ([]*models.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.byOwner[owner]
	out := make([]*models.Attempt, 0, len(stored))
	for _, a := range stored {
		cp := *a
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out, nil
}
