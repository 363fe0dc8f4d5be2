// Package storage is the correlation heart (spec §4.5): a call table
// keyed by Call-ID, an insertion-ordered list for presentation, attribute
// indexes for sort/filter, and a pending cross-link table for forward
// references (Replaces/Refer-To naming a dialog not yet seen).
//
// Grounded on the teacher's internal/task.Manager, which keeps the same
// shape (a table + mutex + generation counter read by a separate
// goroutine without callbacks) for its own task lifecycle; generalized
// here to spec §4.5's Call table instead of Otus's task table, and its
// correlation step (5) is grounded on SIfoxDevTeam-heplify's
// decoder/correlator.go Call-ID<->address cache pattern, adapted from
// fastcache to a plain map since the pending table only needs Call-ID
// keys, not an LRU.
package storage

import (
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/Lixeiden/sngrep/internal/core"
	"github.com/Lixeiden/sngrep/internal/dissect"
	"github.com/Lixeiden/sngrep/internal/filter"
	"github.com/Lixeiden/sngrep/internal/metrics"
	"github.com/Lixeiden/sngrep/internal/packet"
)

// Store is the single owner of every Call observed by a capture run. The
// zero value is not usable; construct with New.
type Store struct {
	mu sync.Mutex

	calls map[string]*Call
	order []string // Call-ID insertion order

	byState  map[string][]string
	byMethod map[string][]string

	// pending maps a not-yet-seen Call-ID to the Call-IDs that reference
	// it (spec §4.5 step 4/5).
	pending map[string][]string

	// mediaIndex maps "ip:port" of an SDP-advertised RTP stream to the
	// Call-ID expecting it, so appendMedia (via matchMedia) can resolve
	// which Call a later RTP/RTCP packet belongs to.
	mediaIndex map[string]string

	sort sortState

	generation  uint64
	paused      bool
	memoryLimit int64
	currentSize int64
	dropped     uint64
	// totalCalls counts every Call ever created, bumped once on creation
	// and never decremented by eviction (spec §3's displayed <= retained
	// <= total property).
	totalCalls uint64
	// resourceExhausted counts messages rejected because memoryLimit
	// could not be freed even after evicting every terminal Call.
	resourceExhausted uint64

	// filterMethods restricts ingestion to the named SIP methods (spec
	// §6's storage.filter.methods); empty accepts every method.
	filterMethods map[string]bool
	// filterPayload additionally requires the raw payload to match this
	// regexp (storage.filter.payload); nil disables the check.
	filterPayload *regexp.Regexp
	// matchInviteOnly keeps only calls whose first message is an INVITE
	// (storage.match.invite).
	matchInviteOnly bool
	// matchCompleteOnly evicts a call the instant it reaches a terminal
	// state rather than waiting for memory pressure (storage.match.complete).
	matchCompleteOnly bool
}

// Config configures a Store at construction time (spec §6's `storage.*`
// keys).
type Config struct {
	// MemoryLimit is the approximate byte budget (spec §4.5 step 6);
	// zero disables eviction.
	MemoryLimit int64
	// FilterMethods restricts ingestion to these SIP methods; empty
	// accepts every method.
	FilterMethods []string
	// FilterPayload is a regexp source pre-filtering the raw payload
	// before a message reaches the call index; empty disables it.
	FilterPayload string
	// MatchInviteOnly keeps only calls whose first message is an INVITE.
	MatchInviteOnly bool
	// MatchCompleteOnly evicts calls as soon as they reach a terminal
	// state instead of waiting for memory pressure.
	MatchCompleteOnly bool
}

// New constructs an empty Store per cfg.
func New(cfg Config) (*Store, error) {
	s := &Store{
		calls:             make(map[string]*Call),
		byState:           make(map[string][]string),
		byMethod:          make(map[string][]string),
		pending:           make(map[string][]string),
		mediaIndex:        make(map[string]string),
		memoryLimit:       cfg.MemoryLimit,
		matchInviteOnly:   cfg.MatchInviteOnly,
		matchCompleteOnly: cfg.MatchCompleteOnly,
	}
	if len(cfg.FilterMethods) > 0 {
		s.filterMethods = make(map[string]bool, len(cfg.FilterMethods))
		for _, m := range cfg.FilterMethods {
			s.filterMethods[m] = true
		}
	}
	if cfg.FilterPayload != "" {
		re, err := regexp.Compile(cfg.FilterPayload)
		if err != nil {
			return nil, fmt.Errorf("storage: compile filter.payload: %w", err)
		}
		s.filterPayload = re
	}
	return s, nil
}

// Generation returns the current change-notification counter (spec's
// storage_calls_changed()). The presentation thread compares this value
// across polls to decide whether to redraw.
func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Pause toggles packet ingestion (spec §4.6: "when paused ... storage
// rejects new packets").
func (s *Store) Pause(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
}

// DroppedCount returns the number of packets rejected: while paused, for
// lacking a SIP record, by the filter/match settings, for exceeding the
// memory budget, or as RTP/RTCP matching no SDP-advertised address.
func (s *Store) DroppedCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Append is the sole ingestion entry point, implementing spec §4.5
// steps 1-7. RTP/RTCP frames carry no SIP Call-ID to key the call table
// on, so they're routed to appendMedia instead (spec §4.1, §3's RTP-
// stream descriptor).
func (s *Store) Append(pkt *packet.Packet) error {
	if pkt.Has(packet.ProtoRTP) || pkt.Has(packet.ProtoRTCP) {
		return s.appendMedia(pkt)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Step 1: drop if paused or no SIP record.
	if s.paused {
		s.dropped++
		return nil
	}
	rec := pkt.Get(packet.ProtoSIP)
	sip, ok := rec.(*dissect.SIPMessage)
	if !ok || sip == nil {
		s.dropped++
		return nil
	}
	if s.filterMethods != nil && !s.filterMethods[sip.Method] && !s.filterMethods[sip.CSeqMethod] {
		s.dropped++
		metrics.StorageMessagesFilteredTotal.Inc()
		return nil
	}
	if s.filterPayload != nil && !s.filterPayload.Match(pkt.Raw()) {
		s.dropped++
		metrics.StorageMessagesFilteredTotal.Inc()
		return nil
	}
	if s.matchInviteOnly {
		if _, exists := s.calls[sip.CallID]; !exists && sip.Method != "INVITE" {
			s.dropped++
			metrics.StorageMessagesFilteredTotal.Inc()
			return nil
		}
	}

	// Step 2: resolve Call-ID; look up or create Call.
	call, created := s.lookupOrCreate(sip.CallID, pkt.Timestamp)
	if created {
		s.flushPending(call)
	}
	prevState := call.State()

	// Step 3: classify the FSM event against messages seen so far (before
	// this one is appended — classifyEvent's retransmission check needs
	// to compare against the call's prior history, not itself), then
	// create the Message, append it, and update last-timestamp + FSM.
	event, fireEvent := classifyEvent(call, sip)
	msg := newMessage(pkt, sip)
	if created {
		call.Direction = resolveDirection(pkt)
	}
	call.Messages = append(call.Messages, msg)
	call.LastSeen = pkt.Timestamp
	if len(pkt.Path) == 2 {
		call.Transport = pkt.Path[0].Proto.String()
	}
	if fireEvent {
		if err := call.trigger(event, pkt.Timestamp); err != nil {
			return err
		}
	}
	s.reindex(call, prevState)
	s.reindexSorted(call.CallID)

	// Step 4: SDP media -> register RTP-stream expectation.
	if len(sip.Media) > 0 {
		for _, m := range sip.Media {
			if m.ConnAddr == "" || m.Port == 0 {
				continue
			}
			s.mediaIndex[fmt.Sprintf("%s:%d", m.ConnAddr, m.Port)] = call.CallID
		}
	}

	// Step 5: cross-link references.
	s.linkCrossReference(call, sip.ReplacesCallID)
	s.linkCrossReference(call, sip.ReferToCallID)

	// Step 6: memory accounting + eviction of terminal calls. If matchCompleteOnly
	// is set, a call that just reached a terminal state evicts itself
	// immediately; otherwise, once over budget, the oldest terminal call
	// (possibly this one) is reclaimed. If no terminal call remains
	// after the evictable set is exhausted, spec §3's memory invariant
	// cannot be honored by eviction alone, so the message just appended
	// is rejected rather than permanently retained over budget (spec §7).
	size := int64(pkt.ApproxSize())
	s.currentSize += size
	call.SizeBytes += size
	switch {
	case s.matchCompleteOnly && call.IsTerminal():
		s.evict(call.CallID)
	case s.memoryLimit > 0 && s.currentSize > s.memoryLimit:
		if !s.evictUntilUnderBudget() {
			s.currentSize -= size
			call.SizeBytes -= size
			s.undoAppend(call, msg, created)
			s.dropped++
			s.resourceExhausted++
			metrics.StorageResourceExhaustedTotal.Inc()
			return fmt.Errorf("storage: %w: memory_limit %d bytes exceeded", core.ErrResourceExhausted, s.memoryLimit)
		}
	}

	// Step 7: bump generation counter.
	s.generation++
	metrics.StorageCallsActive.Set(float64(len(s.calls)))
	metrics.StorageBytesInUse.Set(float64(s.currentSize))
	return nil
}

// undoAppend reverts the storage-visible effects of the message just
// appended when the memory budget cannot accommodate it. A brand new
// call is dropped outright, undoing its creation entirely; an existing
// call just loses the rejected message. The FSM event, if any fired,
// already applied (looplab/fsm has no rollback primitive) — an existing
// call's state can still have advanced even though the message that
// triggered it was rejected. That's judged preferable to silently
// holding the message past memory_limit.
func (s *Store) undoAppend(call *Call, msg *Message, created bool) {
	if created {
		s.removeCall(call.CallID)
		return
	}
	if n := len(call.Messages); n > 0 && call.Messages[n-1] == msg {
		call.Messages = call.Messages[:n-1]
	}
}

// appendMedia correlates an RTP/RTCP packet against mediaIndex (step 4's
// SDP-advertised addresses) and, on a match, accounts for its
// approximate size against the owning Call. A packet addressed to
// neither of its own two path endpoints is dropped like any other
// unmatched frame (spec §4.1).
func (s *Store) appendMedia(pkt *packet.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused {
		s.dropped++
		return nil
	}

	callID, ok := s.matchMedia(pkt)
	if !ok {
		s.dropped++
		return nil
	}
	call, ok := s.calls[callID]
	if !ok {
		s.dropped++
		return nil
	}

	size := int64(pkt.ApproxSize())
	s.currentSize += size
	call.SizeBytes += size
	call.LastSeen = pkt.Timestamp

	if s.memoryLimit > 0 && s.currentSize > s.memoryLimit && !s.evictUntilUnderBudget() {
		s.currentSize -= size
		call.SizeBytes -= size
		s.dropped++
		s.resourceExhausted++
		metrics.StorageResourceExhaustedTotal.Inc()
		return fmt.Errorf("storage: %w: memory_limit %d bytes exceeded", core.ErrResourceExhausted, s.memoryLimit)
	}

	s.generation++
	metrics.StorageBytesInUse.Set(float64(s.currentSize))
	return nil
}

// matchMedia looks up every address on an RTP/RTCP packet's path (both
// endpoints of the UDP hop it travelled) against mediaIndex, since
// either the source or destination address may be the one an SDP offer
// advertised, depending on which leg of the call this frame belongs to.
func (s *Store) matchMedia(pkt *packet.Packet) (string, bool) {
	for _, a := range pkt.Path {
		key := fmt.Sprintf("%s:%d", a.IP, a.Port)
		if callID, ok := s.mediaIndex[key]; ok {
			return callID, true
		}
	}
	return "", false
}

func (s *Store) lookupOrCreate(callID string, now time.Time) (*Call, bool) {
	if c, ok := s.calls[callID]; ok {
		return c, false
	}
	c := newCall(callID, now)
	s.calls[callID] = c
	s.order = append(s.order, callID)
	s.totalCalls++
	return c, true
}

// lookup resolves a Call-ID to its Call without creating one; used for
// xcalls' lazy resolution (Design Notes §9).
func (s *Store) lookup(callID string) (*Call, bool) {
	c, ok := s.calls[callID]
	return c, ok
}

func (s *Store) linkCrossReference(call *Call, peerID string) {
	if peerID == "" || peerID == call.CallID {
		return
	}
	call.XCalls[peerID] = struct{}{}
	if peer, ok := s.lookup(peerID); ok {
		peer.XCalls[call.CallID] = struct{}{}
		return
	}
	s.pending[peerID] = append(s.pending[peerID], call.CallID)
}

// flushPending resolves every Call that referenced `call` before it
// existed, completing the xcalls symmetry invariant (spec §4.5 step 5).
func (s *Store) flushPending(call *Call) {
	waiters := s.pending[call.CallID]
	if len(waiters) == 0 {
		return
	}
	delete(s.pending, call.CallID)
	for _, waiterID := range waiters {
		if waiter, ok := s.lookup(waiterID); ok {
			waiter.XCalls[call.CallID] = struct{}{}
			call.XCalls[waiterID] = struct{}{}
		}
	}
}

// classifyEvent maps a SIP message to an FSM event name per spec §4.5's
// transition table. Retransmissions (identical CSeq as the call's last
// message of the same method) report ok=false so the caller leaves the
// state untouched.
func classifyEvent(call *Call, sip *dissect.SIPMessage) (string, bool) {
	if isRetransmission(call, sip) {
		return "", false
	}
	if sip.IsRequest() {
		switch sip.Method {
		case "INVITE":
			return eventInvite, true
		case "CANCEL":
			return eventCancel, true
		case "BYE":
			if byeFromCaller(call, sip) {
				return eventByeCaller, true
			}
			return eventByeCallee, true
		default:
			return "", false
		}
	}

	if sip.CSeqMethod != "INVITE" {
		return "", false
	}
	switch {
	case sip.StatusCode >= 100 && sip.StatusCode < 200:
		if call.Direction == StateOutgoing {
			return eventProvisionalOut, true
		}
		return eventProvisionalIn, true
	case sip.StatusCode >= 200 && sip.StatusCode < 300:
		return eventAnswer, true
	case sip.StatusCode >= 300 && sip.StatusCode < 400:
		return eventRedirect, true
	case sip.StatusCode == 486 || sip.StatusCode == 600:
		return eventBusy, true
	case sip.StatusCode == 487:
		return eventCancel, true
	case sip.StatusCode >= 400 && sip.StatusCode < 500:
		return eventReject, true
	default:
		return "", false
	}
}

func isRetransmission(call *Call, sip *dissect.SIPMessage) bool {
	for i := len(call.Messages) - 1; i >= 0; i-- {
		prev := call.Messages[i]
		if prev.CSeqMethod != sip.CSeqMethod {
			continue
		}
		return prev.CSeqNum == sip.CSeqNum && prev.Method == sip.Method && prev.Status == sip.StatusCode
	}
	return false
}

// byeFromCaller reports whether a BYE request's From-tag matches the
// tag the dialog's original caller used (the first message's From-tag).
func byeFromCaller(call *Call, sip *dissect.SIPMessage) bool {
	if len(call.Messages) == 0 {
		return true
	}
	return sip.FromTag == call.Messages[0].FromTag
}

// resolveDirection picks Incoming/Outgoing... actually Calling's initial
// direction tag, used only to pick which provisional event fires later.
// See DESIGN.md: without a configured "local network" list there is no
// way to know which endpoint is "us", so every call defaults to
// Outgoing; a future local-network config key could refine this without
// changing the FSM.
func resolveDirection(pkt *packet.Packet) string {
	_ = pkt
	return StateOutgoing
}

// reindex keeps byState/byMethod in sync after a Call's state may have
// changed. prevState is the bucket the call was filed under before this
// Append's FSM trigger ran; it's removed before the call is filed under
// its current state, so a long-lived call doesn't accumulate under
// every state it ever passed through (spec §4.5's Stats().ByState must
// reflect only the current state).
func (s *Store) reindex(call *Call, prevState string) {
	if prevState != "" && prevState != call.State() {
		s.byState[prevState] = removeID(s.byState[prevState], call.CallID)
	}
	s.byState[call.State()] = appendUnique(s.byState[call.State()], call.CallID)
	if len(call.Messages) > 0 {
		method := call.Messages[0].Method
		s.byMethod[method] = appendUnique(s.byMethod[method], call.CallID)
	}
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

// Calls returns a snapshot slice of every Call in insertion order. The
// caller must not mutate the returned Call values' slices concurrently
// with Append; per spec §5, message/packet bodies are read immutably
// under the lock without copying, so this returns pointers, not copies.
func (s *Store) Calls() []*Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Call, 0, len(s.order))
	for _, id := range s.order {
		if c, ok := s.calls[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Lookup resolves a Call-ID to its Call, for presentation-layer lookups
// (e.g. rendering an xcalls peer).
func (s *Store) Lookup(callID string) (*Call, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookup(callID)
}

// IsPending reports whether callID has been referenced by a Replaces or
// Refer-To header (spec §4.5 step 5's cross-link table) but has not yet
// been observed directly — distinguishing "forward reference, might
// still arrive" from "never referenced at all".
func (s *Store) IsPending(callID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[callID]
	return ok
}

// Displayed returns the Calls currently matching pred, in insertion
// order (spec §4.5's Filter step). A nil pred returns every retained
// Call.
func (s *Store) Displayed(pred filter.Predicate) []*Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Call, 0, len(s.order))
	for _, id := range s.order {
		call, ok := s.calls[id]
		if !ok || !callMatches(call, pred) {
			continue
		}
		out = append(out, call)
	}
	return out
}

// Len returns the number of Calls currently held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}
