// Sort (spec §4.5): "Configurable (attr, asc|desc). Stable merge sort on
// first mutation after the sort key changes; subsequent insertions use
// binary insertion." SetSort performs the stable merge sort; Append
// (via reindexSorted) performs the binary insertion for calls touched
// after that.
package storage

import (
	"sort"
	"time"
)

// SortAttr names a Call attribute the presentation layer can sort by.
type SortAttr string

const (
	SortByFirstTimestamp SortAttr = "first_timestamp"
	SortByLastTimestamp  SortAttr = "last_timestamp"
	SortBySrcUser        SortAttr = "src"
	SortByDstUser        SortAttr = "dst"
	SortByMethod         SortAttr = "method"
	SortByState          SortAttr = "state"
	SortByMsgCount       SortAttr = "msgcnt"
)

type sortState struct {
	attr SortAttr
	asc  bool
	ids  []string // presentation order, maintained incrementally
}

// SetSort installs a new sort key and performs the one required stable
// merge sort over every Call currently held. Subsequent Appends fold
// new/changed calls in via binary insertion (insertSorted) instead of
// re-sorting the whole list.
func (s *Store) SetSort(attr SortAttr, asc bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, len(s.order))
	copy(ids, s.order)
	less := sortLess(s, attr, asc)
	sort.SliceStable(ids, func(i, j int) bool { return less(ids[i], ids[j]) })
	s.sort = sortState{attr: attr, asc: asc, ids: ids}
}

// Sorted returns the Calls in the current presentation order. If no sort
// key has been set, insertion order is returned.
func (s *Store) Sorted() []*Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.sort.ids
	if ids == nil {
		ids = s.order
	}
	out := make([]*Call, 0, len(ids))
	for _, id := range ids {
		if c, ok := s.calls[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

// reindexSorted binary-inserts callID into the active sort order,
// removing any prior occurrence first (a call's sort key, e.g. msgcnt or
// state, can change across its lifetime). No-op when no sort key is
// active; Sorted then falls back to insertion order, which Append
// already maintains.
func (s *Store) reindexSorted(callID string) {
	if s.sort.attr == "" {
		return
	}
	s.sort.ids = removeID(s.sort.ids, callID)
	less := sortLess(s, s.sort.attr, s.sort.asc)
	pos := sort.Search(len(s.sort.ids), func(i int) bool { return less(callID, s.sort.ids[i]) })
	s.sort.ids = append(s.sort.ids, "")
	copy(s.sort.ids[pos+1:], s.sort.ids[pos:])
	s.sort.ids[pos] = callID
}

// sortLess returns a comparator over Call-IDs for the given attribute.
// Ties fall back to insertion order (position in s.order) to keep the
// comparator a strict weak ordering, matching the insertion-order
// tie-break documented for the related timestamp open question.
func sortLess(s *Store, attr SortAttr, asc bool) func(a, b string) bool {
	pos := make(map[string]int, len(s.order))
	for i, id := range s.order {
		pos[id] = i
	}
	return func(a, b string) bool {
		ca, okA := s.calls[a]
		cb, okB := s.calls[b]
		if !okA || !okB {
			return a < b
		}
		less := compareCalls(ca, cb, attr)
		if !asc {
			less = -less
		}
		if less != 0 {
			return less < 0
		}
		return pos[a] < pos[b]
	}
}

func compareCalls(a, b *Call, attr SortAttr) int {
	switch attr {
	case SortByFirstTimestamp:
		return compareTime(a.FirstSeen, b.FirstSeen)
	case SortByLastTimestamp:
		return compareTime(a.LastSeen, b.LastSeen)
	case SortBySrcUser:
		return compareString(a.SrcUser, b.SrcUser)
	case SortByDstUser:
		return compareString(a.DstUser, b.DstUser)
	case SortByMethod:
		return compareString(firstMethod(a), firstMethod(b))
	case SortByState:
		return compareString(a.State(), b.State())
	case SortByMsgCount:
		return a.MsgCount() - b.MsgCount()
	default:
		return compareString(a.CallID, b.CallID)
	}
}

func firstMethod(c *Call) string {
	if len(c.Messages) == 0 {
		return ""
	}
	return c.Messages[0].Method
}

func compareString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// compareTime orders two timestamps, breaking exact ties as equal so the
// caller's insertion-order fallback decides — this is the insertion-order
// tie-break documented for identical frames on different transports
// (spec §9's Open Question, resolved in DESIGN.md).
func compareTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}
