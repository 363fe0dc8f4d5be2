// Memory-cap eviction (spec §4.5 step 6): "evict the oldest Calls whose
// state is terminal until under threshold; purge their back-references;
// emit a change-notification." Must be called with s.mu already held.
package storage

import "github.com/Lixeiden/sngrep/internal/metrics"

// evictUntilUnderBudget removes the oldest terminal Calls, in insertion
// order, until currentSize is back under memoryLimit. Reports whether
// the budget was actually satisfied; false means no terminal Call
// remained to reclaim, and the caller (Append) must reject rather than
// permanently retain whatever pushed the store over budget, per spec
// §7's ResourceExhausted policy.
func (s *Store) evictUntilUnderBudget() bool {
	for s.currentSize > s.memoryLimit {
		victimID, ok := s.oldestTerminal()
		if !ok {
			return false
		}
		s.evict(victimID)
	}
	return true
}

func (s *Store) oldestTerminal() (string, bool) {
	for _, id := range s.order {
		call, ok := s.calls[id]
		if !ok {
			continue
		}
		if call.IsTerminal() {
			return id, true
		}
	}
	return "", false
}

// evict removes one Call and purges every back-reference to it: its
// entry in the call table and insertion-order list, its xcalls peers'
// references, any pending cross-link parked under its Call-ID, its
// media-stream index entries, and its attribute indexes.
func (s *Store) evict(callID string) {
	if !s.removeCall(callID) {
		return
	}
	metrics.StorageEvictionsTotal.Inc()
}

// removeCall does the bookkeeping evict shares with the reject-on-
// resource-exhaustion path (store.go's Append): it tears a Call out of
// every index without touching eviction-specific metrics, since a
// rejected-on-arrival Call was never counted as "active" in the first
// place. Reports whether callID was present.
func (s *Store) removeCall(callID string) bool {
	call, ok := s.calls[callID]
	if !ok {
		return false
	}

	for peerID := range call.XCalls {
		if peer, ok := s.lookup(peerID); ok {
			delete(peer.XCalls, callID)
		}
	}
	delete(s.pending, callID)

	for addr, owner := range s.mediaIndex {
		if owner == callID {
			delete(s.mediaIndex, addr)
		}
	}

	s.byState[call.State()] = removeID(s.byState[call.State()], callID)
	if len(call.Messages) > 0 {
		method := call.Messages[0].Method
		s.byMethod[method] = removeID(s.byMethod[method], callID)
	}

	s.currentSize -= call.SizeBytes
	delete(s.calls, callID)
	s.order = removeID(s.order, callID)
	if s.sort.attr != "" {
		s.sort.ids = removeID(s.sort.ids, callID)
	}
	return true
}

func removeID(ids []string, target string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}
