// Package memstore is an in-process implementation of [store.Store]. It is the
// default backend for development and the backend used by package tests.
package memstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/frontdesk/internal/knowledge"
	"github.com/MrWong99/frontdesk/internal/store"
)

// Compile-time assertion that Store satisfies the store.Store interface.
var _ store.Store = (*Store)(nil)

// Store is a thread-safe, in-memory implementation of [store.Store].
type Store struct {
	matcher *knowledge.Matcher
	now     func() time.Time
	seed    bool

	mu        sync.RWMutex
	kb        []store.KnowledgeEntry
	customers map[string]store.Customer // keyed by phone number
	requests  []store.HelpRequest
	index     map[string]int // request id → position in requests
}

// Option is a functional option for configuring a Store.
type Option func(*Store)

// WithoutSeed starts with an empty knowledge base instead of
// [store.DefaultKnowledge].
func WithoutSeed() Option {
	return func(s *Store) { s.seed = false }
}

// WithMatcher overrides the knowledge matcher used by GetAnswer.
func WithMatcher(m *knowledge.Matcher) Option {
	return func(s *Store) { s.matcher = m }
}

// WithClock overrides time.Now, for deterministic timestamps in tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns a Store seeded with [store.DefaultKnowledge].
func New(opts ...Option) *Store {
	s := &Store{
		matcher:   knowledge.New(),
		now:       time.Now,
		customers: make(map[string]store.Customer),
		index:     make(map[string]int),
		seed:      true,
	}
	for _, o := range opts {
		o(s)
	}
	if s.seed {
		for _, d := range store.DefaultKnowledge {
			s.appendKnowledge(d.Question, d.Answer, s.now())
		}
	}
	return s
}

func (s *Store) appendKnowledge(q, a string, at time.Time) {
	s.kb = append(s.kb, store.KnowledgeEntry{
		ID:        int64(len(s.kb) + 1),
		Question:  strings.ToLower(q),
		Answer:    a,
		CreatedAt: at,
	})
}

// GetAnswer implements [store.Store.GetAnswer].
func (s *Store) GetAnswer(ctx context.Context, question string) (string, bool, error) {
	kb, err := s.GetKnowledgeBase(ctx)
	if err != nil {
		return "", false, err
	}
	a, ok := store.MatchAnswer(s.matcher, question, kb)
	return a, ok, nil
}

// GetKnowledgeBase implements [store.Store.GetKnowledgeBase].
func (s *Store) GetKnowledgeBase(_ context.Context) ([]store.KnowledgeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.KnowledgeEntry, len(s.kb))
	copy(out, s.kb)
	return out, nil
}

// AddKnowledge implements [store.Store.AddKnowledge].
func (s *Store) AddKnowledge(_ context.Context, question, answer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendKnowledge(question, answer, s.now())
	return nil
}

// CreateHelpRequest implements [store.Store.CreateHelpRequest].
func (s *Store) CreateHelpRequest(_ context.Context, question, callerID, phone string) (string, error) {
	id := uuid.New().String()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index[id] = len(s.requests)
	s.requests = append(s.requests, store.HelpRequest{
		ID:          id,
		Question:    question,
		CallerID:    callerID,
		PhoneNumber: phone,
		Status:      store.StatusPending,
		CreatedAt:   s.now(),
	})
	return id, nil
}

// ResolveRequest implements [store.Store.ResolveRequest].
func (s *Store) ResolveRequest(_ context.Context, id, answer string) error {
	return s.transition(id, store.StatusResolved, func(r *store.HelpRequest, at time.Time) {
		r.SupervisorAnswer = answer
		r.ResolvedAt = at
	})
}

// MarkDelivered implements [store.Store.MarkDelivered].
func (s *Store) MarkDelivered(_ context.Context, id string) error {
	return s.transition(id, store.StatusDelivered, func(r *store.HelpRequest, at time.Time) {
		r.DeliveredAt = at
	})
}

func (s *Store) transition(id string, next store.Status, apply func(*store.HelpRequest, time.Time)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return store.ErrNotFound
	}
	r := &s.requests[i]
	if !r.Status.CanTransition(next) {
		return store.ErrInvalidTransition
	}
	r.Status = next
	apply(r, s.now())
	return nil
}

// GetOrCreateCustomer implements [store.Store.GetOrCreateCustomer].
func (s *Store) GetOrCreateCustomer(_ context.Context, phone, name string) (store.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.customers[phone]; ok {
		return c, nil
	}
	if name == "" {
		name = "Unknown"
	}
	c := store.Customer{
		ID:          uuid.New().String(),
		PhoneNumber: phone,
		Name:        name,
		CreatedAt:   s.now(),
	}
	s.customers[phone] = c
	return c, nil
}

// GetRequest implements [store.Store.GetRequest].
func (s *Store) GetRequest(_ context.Context, id string) (store.HelpRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return store.HelpRequest{}, store.ErrNotFound
	}
	return s.requests[i], nil
}

// ListAllRequests implements [store.Store.ListAllRequests].
func (s *Store) ListAllRequests(_ context.Context) ([]store.HelpRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.HelpRequest, len(s.requests))
	copy(out, s.requests)
	return out, nil
}

// ListPendingRequests implements [store.Store.ListPendingRequests].
func (s *Store) ListPendingRequests(_ context.Context) ([]store.HelpRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.HelpRequest
	for _, r := range s.requests {
		if r.Status == store.StatusPending {
			out = append(out, r)
		}
	}
	return out, nil
}

// Ping implements [store.Store.Ping]. It always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close implements [store.Store.Close]. It is a no-op.
func (s *Store) Close() error { return nil }
