// Package callgroup implements CallGroup (spec §4.7, §3): a thin,
// presentation-owned, ordered de-duplicated set of Call-IDs plus an
// optional anchor, used by the flow viewer to render an attended
// transfer's two dialogs together. CallGroup never outlives its
// referenced Calls and holds no Call pointers itself — it stores
// Call-IDs and resolves them through storage.Store.Lookup on demand,
// the same lazy-resolution discipline Call.XCalls uses (Design Notes
// §9).
package callgroup

import (
	"fmt"

	"github.com/Lixeiden/sngrep/internal/core"
	"github.com/Lixeiden/sngrep/internal/storage"
)

// Group is an ordered, de-duplicated set of Call-IDs with an optional
// anchor (the call the group was built around, e.g. the transferee's
// dialog in an attended transfer).
type Group struct {
	anchor string
	ids    []string
	index  map[string]int
}

// New builds an empty Group, optionally anchored at anchorCallID (pass
// "" for no anchor).
func New(anchorCallID string) *Group {
	g := &Group{anchor: anchorCallID, index: make(map[string]int)}
	if anchorCallID != "" {
		g.Add(anchorCallID)
	}
	return g
}

// Anchor returns the group's anchor Call-ID, or "" if none was set.
func (g *Group) Anchor() string { return g.anchor }

// Add appends callID if not already present.
func (g *Group) Add(callID string) {
	if _, ok := g.index[callID]; ok {
		return
	}
	g.index[callID] = len(g.ids)
	g.ids = append(g.ids, callID)
}

// AddCalls adds every Call-ID from ids, preserving iteration order for
// any not already present.
func (g *Group) AddCalls(ids []string) {
	for _, id := range ids {
		g.Add(id)
	}
}

// Remove drops callID from the group, if present.
func (g *Group) Remove(callID string) {
	pos, ok := g.index[callID]
	if !ok {
		return
	}
	g.ids = append(g.ids[:pos], g.ids[pos+1:]...)
	delete(g.index, callID)
	for i := pos; i < len(g.ids); i++ {
		g.index[g.ids[i]] = i
	}
	if g.anchor == callID {
		g.anchor = ""
	}
}

// Contains reports whether callID is a member.
func (g *Group) Contains(callID string) bool {
	_, ok := g.index[callID]
	return ok
}

// Count returns the number of member Call-IDs.
func (g *Group) Count() int { return len(g.ids) }

// Clone returns an independent copy of the group.
func (g *Group) Clone() *Group {
	clone := New("")
	clone.anchor = g.anchor
	clone.AddCalls(g.ids)
	return clone
}

// IDs returns the member Call-IDs in insertion order.
func (g *Group) IDs() []string {
	out := make([]string, len(g.ids))
	copy(out, g.ids)
	return out
}

// Iter resolves every member against store and returns their Messages
// merged in timestamp order, for flow rendering (spec §4.7: "Messages
// within a group are iterated in merged timestamp order"). A member
// Call-ID that only exists as an unresolved Replaces/Refer-To reference
// (spec §4.5 step 5) is reported via a wrapped core.ErrCrossLinkPending
// rather than silently skipped, since its dialog may still arrive and
// the caller may want to retry; a Call-ID that was never referenced at
// all (already evicted, or simply unknown) is skipped as before.
func Iter(store *storage.Store, g *Group) ([]*storage.Message, error) {
	var all []*storage.Message
	var pending error
	for _, id := range g.ids {
		call, ok := store.Lookup(id)
		if !ok {
			if store.IsPending(id) {
				pending = fmt.Errorf("callgroup: %s: %w", id, core.ErrCrossLinkPending)
			}
			continue
		}
		all = append(all, call.Messages...)
	}
	mergeByTimestamp(all)
	return all, pending
}

// mergeByTimestamp stably sorts messages by timestamp in place. A
// stable sort keeps each call's own message order intact for equal
// timestamps, consistent with the insertion-order tie-break storage
// already documents for this scenario.
func mergeByTimestamp(msgs []*storage.Message) {
	for i := 1; i < len(msgs); i++ {
		for j := i; j > 0 && msgs[j].Timestamp.Before(msgs[j-1].Timestamp); j-- {
			msgs[j], msgs[j-1] = msgs[j-1], msgs[j]
		}
	}
}
