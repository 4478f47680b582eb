package logserver

import (
	"context"
	"sync"

	"github.com/kjannette/swap-price-monitor/internal/models"
)

// Store keeps posted trade logs in arrival order.
type Store interface {
	Append(ctx context.Context, rec models.RawSwapRecord) error
	All(ctx context.Context) ([]models.RawSwapRecord, error)
	Count(ctx context.Context) (int, error)
}

// MemoryStore is the default store; it is lost on restart.
type MemoryStore struct {
	mu   sync.RWMutex
	logs []models.RawSwapRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, rec models.RawSwapRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, rec)
	return nil
}

// All returns a copy of the slice; records themselves are shared and must
// not be mutated by callers.
func (s *MemoryStore) All(_ context.Context) ([]models.RawSwapRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.RawSwapRecord, len(s.logs))
	copy(out, s.logs)
	return out, nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.logs), nil
}
