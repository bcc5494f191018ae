package operations

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const defaultListLimit = 50

// MemoryStore is an in-memory Store for demo mode and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	byOpID map[string]*Record
	byUser map[string][]*Record // append order = receipt order
}

// NewMemoryStore creates an empty in-memory operation store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byOpID: make(map[string]*Record),
		byUser: make(map[string][]*Record),
	}
}

func (s *MemoryStore) Append(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byOpID[rec.OperationID]; taken {
		return ErrDuplicateOperation
	}

	cp := *rec
	s.byOpID[rec.OperationID] = &cp
	s.byUser[rec.UserID] = append(s.byUser[rec.UserID], &cp)
	return nil
}

func (s *MemoryStore) Exists(ctx context.Context, operationID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, found := s.byOpID[operationID]
	return found, nil
}

func (s *MemoryStore) CountSince(ctx context.Context, userID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, rec := range s.byUser[userID] {
		if rec.Timestamp.After(since) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) AverageAmount(ctx context.Context, userID string, typ Type) (decimal.Decimal, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := decimal.Zero
	n := 0
	for _, rec := range s.byUser[userID] {
		if rec.Type == typ {
			sum = sum.Add(rec.Amount)
			n++
		}
	}
	if n == 0 {
		return decimal.Zero, false, nil
	}
	return sum.Div(decimal.NewFromInt(int64(n))), true, nil
}

func (s *MemoryStore) CountBlockedSince(ctx context.Context, userID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, rec := range s.byUser[userID] {
		if rec.Blocked && rec.Timestamp.After(since) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = defaultListLimit
	}

	all := s.byUser[userID]
	start := len(all) - limit
	if start < 0 {
		start = 0
	}

	// Most recent first.
	result := make([]*Record, 0, len(all)-start)
	for i := len(all) - 1; i >= start; i-- {
		cp := *all[i]
		result = append(result, &cp)
	}
	return result, nil
}
