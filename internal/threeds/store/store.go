// Package store provides the durable, concurrency-safe map from order id
// to in-flight authentication attempt. The store is the join point between
// the initiation flow and the asynchronous bank callback, and the only
// shared mutable state in the orchestrator.
package store

import (
	"context"
	"sync"
	"time"

	"cardauth/internal/threeds/domain"
)

// Store is the attempt persistence interface.
type Store interface {
	// Create records a new attempt in state INITIATED. Returns
	// domain.ErrDuplicateAttempt when the order id is already present.
	Create(ctx context.Context, orderID, bankName string) (*domain.Attempt, error)

	// Finalize atomically transitions the attempt from INITIATED to the
	// terminal status carried by result, only if currently INITIATED.
	// When the attempt is already terminal the previously stored attempt
	// is returned unchanged with applied=false; side effects must not be
	// re-triggered. Unknown order ids yield domain.ErrUnknownAttempt.
	Finalize(ctx context.Context, orderID string, result *domain.AuthenticationResult) (attempt *domain.Attempt, applied bool, err error)

	// Get looks up an attempt by order id for diagnostics. Returns
	// domain.ErrUnknownAttempt when absent.
	Get(ctx context.Context, orderID string) (*domain.Attempt, error)
}

// MemoryStore is a mutex-guarded in-memory Store. It backs tests and
// no-database deployments; production wiring uses PostgresStore.
type MemoryStore struct {
	mu       sync.RWMutex
	attempts map[string]*domain.Attempt
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{attempts: make(map[string]*domain.Attempt)}
}

// Create implements Store.
func (s *MemoryStore) Create(_ context.Context, orderID, bankName string) (*domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.attempts[orderID]; exists {
		return nil, domain.ErrDuplicateAttempt
	}

	attempt := &domain.Attempt{
		OrderID:   orderID,
		BankName:  bankName,
		Status:    domain.StatusInitiated,
		CreatedAt: time.Now().UTC(),
	}
	s.attempts[orderID] = attempt
	return copyAttempt(attempt), nil
}

// Finalize implements Store.
func (s *MemoryStore) Finalize(_ context.Context, orderID string, result *domain.AuthenticationResult) (*domain.Attempt, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	attempt, exists := s.attempts[orderID]
	if !exists {
		return nil, false, domain.ErrUnknownAttempt
	}

	if attempt.Status != domain.StatusInitiated {
		// Already terminal: idempotent no-op, return what was stored.
		return copyAttempt(attempt), false, nil
	}

	now := time.Now().UTC()
	attempt.Status = result.Status
	attempt.FinalizedAt = &now
	stored := *result
	attempt.Result = &stored

	return copyAttempt(attempt), true, nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, orderID string) (*domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	attempt, exists := s.attempts[orderID]
	if !exists {
		return nil, domain.ErrUnknownAttempt
	}
	return copyAttempt(attempt), nil
}

func copyAttempt(a *domain.Attempt) *domain.Attempt {
	out := *a
	if a.FinalizedAt != nil {
		t := *a.FinalizedAt
		out.FinalizedAt = &t
	}
	if a.Result != nil {
		r := *a.Result
		out.Result = &r
	}
	return &out
}
