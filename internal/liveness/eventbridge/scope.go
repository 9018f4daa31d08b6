package eventbridge

import (
	"context"
	"errors"
	"sync"

	"liveness/internal/liveness/models"
)

// Handlers are the pair of callbacks a flow arms before launching the
// capture surface.
type Handlers struct {
	OnComplete func(ctx context.Context, evt models.OutcomeEvent)
	OnFailed   func(ctx context.Context, evt models.OutcomeEvent)
}

// Scope holds one owner's armed subscriptions. Release must run on every
// exit path; it is safe to call more than once.
type Scope struct {
	bridge    *Bridge
	owner     string
	sessionID models.SessionID
	subs      []Subscription

	mu       sync.Mutex
	released bool
}

// Arm subscribes both outcome handlers for owner, filtered to sessionID:
// events for any other session never reach them. Any scope the owner armed
// earlier is released first, so at most one flow instance per owner listens.
func (b *Bridge) Arm(owner string, sessionID models.SessionID, h Handlers) (*Scope, error) {
	if h.OnComplete == nil || h.OnFailed == nil {
		return nil, errors.New("both outcome handlers are required")
	}
	if sessionID.IsZero() {
		return nil, errors.New("a session id is required")
	}

	b.mu.Lock()
	prev := b.scopes[owner]
	b.mu.Unlock()
	if prev != nil {
		prev.Release()
	}

	scope := &Scope{bridge: b, owner: owner, sessionID: sessionID}
	complete, err := b.Subscribe(TopicComplete, scope.filter(h.OnComplete))
	if err != nil {
		return nil, err
	}
	scope.subs = append(scope.subs, complete)
	failed, err := b.Subscribe(TopicError, scope.filter(h.OnFailed))
	if err != nil {
		scope.Release()
		return nil, err
	}
	scope.subs = append(scope.subs, failed)

	b.mu.Lock()
	b.scopes[owner] = scope
	b.sessions[sessionID] = scope
	b.mu.Unlock()
	return scope, nil
}

func (s *Scope) filter(h func(context.Context, models.OutcomeEvent)) Handler {
	return func(ctx context.Context, evt models.OutcomeEvent) {
		if evt.SessionID != s.sessionID {
			return
		}
		h(ctx, evt)
	}
}

// SessionID is the session the scope listens for.
func (s *Scope) SessionID() models.SessionID {
	if s == nil {
		return ""
	}
	return s.sessionID
}

// Armed reports whether the scope still holds its subscriptions.
func (s *Scope) Armed() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.released
}

func (s *Scope) Release() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.released = true
	subs := s.subs
	s.mu.Unlock()

	for _, sub := range subs {
		s.bridge.Unsubscribe(sub)
	}
	s.bridge.mu.Lock()
	if s.bridge.scopes[s.owner] == s {
		delete(s.bridge.scopes, s.owner)
	}
	if s.bridge.sessions[s.sessionID] == s {
		delete(s.bridge.sessions, s.sessionID)
	}
	s.bridge.mu.Unlock()
}
