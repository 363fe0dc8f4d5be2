package storage

import "github.com/Lixeiden/sngrep/internal/filter"

// StorageStats is a point-in-time scalar snapshot for the presentation
// layer (spec §4.5), copied out under the lock without touching Call
// bodies. TotalCalls, CallCount (retained), and Displayed form the
// testable property "displayed <= retained <= total" (spec §3).
type StorageStats struct {
	TotalCalls   uint64
	CallCount    int
	Displayed    int
	DroppedCount uint64
	MemoryBytes  int64
	MemoryLimit  int64
	Generation   uint64
	ByState      map[string]int
	ByMethod     map[string]int
}

// Stats snapshots current counters. pred, if non-nil, is evaluated
// against each retained Call to compute Displayed (spec §4.5's Filter
// step); nil counts every retained Call as displayed.
func (s *Store) Stats(pred filter.Predicate) StorageStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	byState := make(map[string]int, len(s.byState))
	for state, ids := range s.byState {
		byState[state] = len(ids)
	}
	byMethod := make(map[string]int, len(s.byMethod))
	for method, ids := range s.byMethod {
		byMethod[method] = len(ids)
	}

	displayed := 0
	for _, call := range s.calls {
		if callMatches(call, pred) {
			displayed++
		}
	}

	return StorageStats{
		TotalCalls:   s.totalCalls,
		CallCount:    len(s.calls),
		Displayed:    displayed,
		DroppedCount: s.dropped,
		MemoryBytes:  s.currentSize,
		MemoryLimit:  s.memoryLimit,
		Generation:   s.generation,
		ByState:      byState,
		ByMethod:     byMethod,
	}
}
