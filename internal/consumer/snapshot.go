package consumer

import (
	"context"
	"sync"

	"github.com/kjannette/swap-price-monitor/internal/pipeline"
	"github.com/kjannette/swap-price-monitor/internal/pricing"
)

// Snapshot keeps the latest cycle for the dashboard API.
type Snapshot struct {
	pair pricing.Pair

	mu    sync.RWMutex
	cycle pipeline.Cycle
	view  View
	ok    bool
}

func NewSnapshot(pair pricing.Pair) *Snapshot {
	return &Snapshot{pair: pair}
}

func (s *Snapshot) Consume(_ context.Context, c pipeline.Cycle) {
	v := NewView(c, s.pair)
	s.mu.Lock()
	s.cycle = c
	s.view = v
	s.ok = true
	s.mu.Unlock()
}

func (s *Snapshot) Pair() pricing.Pair { return s.pair }

// Latest returns the view of the most recent cycle. ok is false until the
// first cycle has completed.
func (s *Snapshot) Latest() (v View, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view, s.ok
}

// Cycle returns the most recent raw cycle.
func (s *Snapshot) Cycle() (pipeline.Cycle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cycle, s.ok
}
