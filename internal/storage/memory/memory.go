package memory

import (
	"context"
	"fmt"
	"sync"

	"ledger/internal/core"
	"ledger/internal/storage"
)

// Store keeps transactions in process memory in insertion order.
type Store struct {
	mu    sync.Mutex
	items []core.Transaction
	ids   map[string]struct{}
}

func New() *Store {
	return &Store{ids: map[string]struct{}{}}
}

// NewWithTransactions seeds the store, skipping duplicate ids.
func NewWithTransactions(txs ...core.Transaction) *Store {
	s := New()
	for _, t := range txs {
		_ = s.Create(context.Background(), t)
	}
	return s
}

// Create stores the transaction. Ids must be unique.
func (s *Store) Create(_ context.Context, t core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.ids[t.ID]; dup {
		return fmt.Errorf("insert transaction: duplicate id %q", t.ID)
	}
	s.ids[t.ID] = struct{}{}
	s.items = append(s.items, t)
	return nil
}

// List returns a copy of the matching transactions.
func (s *Store) List(_ context.Context, f storage.Filter) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Transaction, 0, len(s.items))
	for _, t := range s.items {
		if matches(t, f) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) Get(_ context.Context, id string, f storage.Filter) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.items {
		if t.ID == id && matches(t, f) {
			return t, nil
		}
	}
	return core.Transaction{}, storage.ErrNotFound
}

func (s *Store) Summarize(ctx context.Context, f storage.Filter) (core.Money, error) {
	txs, err := s.List(ctx, f)
	if err != nil {
		return core.Money{}, err
	}
	return core.Summarize(txs).Amount, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// Len returns the number of stored transactions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func matches(t core.Transaction, f storage.Filter) bool {
	return !f.Scoped() || t.SessionID == f.SessionID
}
