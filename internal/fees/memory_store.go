package fees

import (
	"context"
	"sync"
	"time"
)

// MemoryQuoteStore is an in-memory quote store for development and tests.
type MemoryQuoteStore struct {
	quotes map[string]*Quote
	mu     sync.RWMutex
}

// NewMemoryQuoteStore creates a new in-memory quote store.
func NewMemoryQuoteStore() *MemoryQuoteStore {
	return &MemoryQuoteStore{quotes: make(map[string]*Quote)}
}

func (m *MemoryQuoteStore) Save(ctx context.Context, q *Quote) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.quotes[q.ID()] = copyQuote(q)
	return nil
}

func (m *MemoryQuoteStore) Get(ctx context.Context, id string) (*Quote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	q, ok := m.quotes[id]
	if !ok {
		return nil, ErrQuoteNotFound
	}
	return copyQuote(q), nil
}

func (m *MemoryQuoteStore) MarkAccepted(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.quotes[id]
	if !ok {
		return ErrQuoteNotFound
	}
	if q.AcceptedAt != nil {
		return ErrAlreadyAccepted
	}
	q.AcceptedAt = &at
	return nil
}

func (m *MemoryQuoteStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, q := range m.quotes {
		if q.Estimate.ValidUntil.Before(cutoff) {
			delete(m.quotes, id)
			n++
		}
	}
	return n, nil
}

func copyQuote(q *Quote) *Quote {
	cp := *q
	est := *q.Estimate
	cp.Estimate = &est
	if q.AcceptedAt != nil {
		at := *q.AcceptedAt
		cp.AcceptedAt = &at
	}
	return &cp
}
