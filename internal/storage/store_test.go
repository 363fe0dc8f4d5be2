package storage

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Lixeiden/sngrep/internal/addr"
	"github.com/Lixeiden/sngrep/internal/core"
	"github.com/Lixeiden/sngrep/internal/dissect"
	"github.com/Lixeiden/sngrep/internal/filter"
	"github.com/Lixeiden/sngrep/internal/packet"
)

func sipPacket(t *testing.T, ts time.Time, sip *dissect.SIPMessage) *packet.Packet {
	t.Helper()
	pkt := packet.New(ts, []byte("raw-sip-bytes"))
	pkt.Set(packet.ProtoSIP, sip)
	return pkt
}

func newStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	s, err := New(cfg)
	require.NoError(t, err)
	return s
}

func TestAppendCreatesCallAndTransitionsToCalling(t *testing.T) {
	s := newStore(t, Config{})
	now := time.Now()

	invite := &dissect.SIPMessage{Method: "INVITE", CallID: "call-1", FromTag: "tag-a", CSeqMethod: "INVITE", CSeqNum: 1}
	require.NoError(t, s.Append(sipPacket(t, now, invite)))

	call, ok := s.Lookup("call-1")
	require.True(t, ok)
	require.Equal(t, StateCalling, call.State())
	require.Equal(t, 1, call.MsgCount())
}

func TestAppendFullInviteFlowEndsInSendBye(t *testing.T) {
	s := newStore(t, Config{})
	base := time.Now()

	invite := &dissect.SIPMessage{Method: "INVITE", CallID: "call-2", FromTag: "caller-tag", CSeqMethod: "INVITE", CSeqNum: 1}
	ok200 := &dissect.SIPMessage{StatusCode: 200, CallID: "call-2", CSeqMethod: "INVITE", CSeqNum: 1}
	bye := &dissect.SIPMessage{Method: "BYE", CallID: "call-2", FromTag: "caller-tag", CSeqMethod: "BYE", CSeqNum: 2}

	require.NoError(t, s.Append(sipPacket(t, base, invite)))
	require.NoError(t, s.Append(sipPacket(t, base.Add(time.Second), ok200)))
	require.NoError(t, s.Append(sipPacket(t, base.Add(2*time.Second), bye)))

	call, ok := s.Lookup("call-2")
	require.True(t, ok)
	require.Equal(t, StateSendBye, call.State())
	require.True(t, call.IsTerminal())
	require.False(t, call.AnswerAt.IsZero())
	require.False(t, call.EndAt.IsZero())
}

func TestAppendRetransmissionDoesNotAdvanceState(t *testing.T) {
	s := newStore(t, Config{})
	base := time.Now()

	invite := &dissect.SIPMessage{Method: "INVITE", CallID: "call-3", CSeqMethod: "INVITE", CSeqNum: 1}
	require.NoError(t, s.Append(sipPacket(t, base, invite)))
	require.NoError(t, s.Append(sipPacket(t, base.Add(time.Millisecond), invite)))

	call, ok := s.Lookup("call-3")
	require.True(t, ok)
	require.Equal(t, StateCalling, call.State())
	require.Equal(t, 2, call.MsgCount())
}

func TestAppendDropsWhenPaused(t *testing.T) {
	s := newStore(t, Config{})
	s.Pause(true)

	invite := &dissect.SIPMessage{Method: "INVITE", CallID: "call-4"}
	require.NoError(t, s.Append(sipPacket(t, time.Now(), invite)))

	require.Equal(t, 0, s.Len())
	require.Equal(t, uint64(1), s.DroppedCount())
}

func TestAppendDropsNonSIPPacket(t *testing.T) {
	s := newStore(t, Config{})
	pkt := packet.New(time.Now(), []byte("not sip"))
	require.NoError(t, s.Append(pkt))
	require.Equal(t, 0, s.Len())
	require.Equal(t, uint64(1), s.DroppedCount())
}

func TestAppendXCallsSymmetryOutOfOrder(t *testing.T) {
	s := newStore(t, Config{})
	now := time.Now()

	// The Refer-To message arrives before the dialog it names exists.
	referring := &dissect.SIPMessage{Method: "REFER", CallID: "call-a", ReferToCallID: "call-b"}
	require.NoError(t, s.Append(sipPacket(t, now, referring)))

	callA, _ := s.Lookup("call-a")
	_, hasB := callA.XCalls["call-b"]
	require.True(t, hasB, "call-a records the one-sided link immediately")

	target := &dissect.SIPMessage{Method: "INVITE", CallID: "call-b"}
	require.NoError(t, s.Append(sipPacket(t, now, target)))

	callB, ok := s.Lookup("call-b")
	require.True(t, ok)
	_, aLinksB := callA.XCalls["call-b"]
	_, bLinksA := callB.XCalls["call-a"]
	require.True(t, aLinksB)
	require.True(t, bLinksA)
}

func TestEvictUnderMemoryPressure(t *testing.T) {
	// 200 bytes comfortably fits two single-message calls (~77 bytes
	// each) but not three, so call-2's second message forces an
	// eviction pass.
	s := newStore(t, Config{MemoryLimit: 200})
	base := time.Now()

	invite1 := &dissect.SIPMessage{Method: "INVITE", CallID: "call-1", CSeqMethod: "INVITE", CSeqNum: 1}
	require.NoError(t, s.Append(sipPacket(t, base, invite1)))
	_, ok := s.Lookup("call-1")
	require.True(t, ok)

	// call-2 goes straight to a terminal state (busy) and is evicted
	// within the same Append that made it terminal, freeing enough
	// budget that call-1 is left untouched.
	invite2 := &dissect.SIPMessage{Method: "INVITE", CallID: "call-2", CSeqMethod: "INVITE", CSeqNum: 1}
	busy2 := &dissect.SIPMessage{StatusCode: 486, CallID: "call-2", CSeqMethod: "INVITE", CSeqNum: 1}
	require.NoError(t, s.Append(sipPacket(t, base.Add(time.Second), invite2)))
	require.NoError(t, s.Append(sipPacket(t, base.Add(2*time.Second), busy2)))

	_, stillThere := s.Lookup("call-2")
	require.False(t, stillThere, "call-2 should be evicted once it becomes terminal over budget")
	_, call1Remains := s.Lookup("call-1")
	require.True(t, call1Remains)
}

func TestAppendRejectsNewCallWhenBudgetCannotBeFreed(t *testing.T) {
	s := newStore(t, Config{MemoryLimit: 1})

	invite := &dissect.SIPMessage{Method: "INVITE", CallID: "call-x", CSeqMethod: "INVITE", CSeqNum: 1}
	err := s.Append(sipPacket(t, time.Now(), invite))
	require.ErrorIs(t, err, core.ErrResourceExhausted)
	require.Equal(t, 0, s.Len(), "the call that couldn't be accommodated is not retained")
	require.Equal(t, uint64(1), s.DroppedCount())
}

func TestAppendRejectsMessageWithoutDroppingExistingCall(t *testing.T) {
	// 77 bytes is exactly enough for call-y's first message and no more.
	s := newStore(t, Config{MemoryLimit: 77})
	base := time.Now()

	invite := &dissect.SIPMessage{Method: "INVITE", CallID: "call-y", CSeqMethod: "INVITE", CSeqNum: 1}
	require.NoError(t, s.Append(sipPacket(t, base, invite)))

	ringing := &dissect.SIPMessage{StatusCode: 180, CallID: "call-y", CSeqMethod: "INVITE", CSeqNum: 1}
	err := s.Append(sipPacket(t, base.Add(time.Second), ringing))
	require.ErrorIs(t, err, core.ErrResourceExhausted)

	call, ok := s.Lookup("call-y")
	require.True(t, ok, "the existing call is kept; only the over-budget message is rejected")
	require.Equal(t, 1, call.MsgCount())
}

func TestFilterMethodsDropsUnlistedMethod(t *testing.T) {
	s := newStore(t, Config{FilterMethods: []string{"INVITE"}})
	options := &dissect.SIPMessage{Method: "OPTIONS", CallID: "call-5"}
	require.NoError(t, s.Append(sipPacket(t, time.Now(), options)))
	require.Equal(t, 0, s.Len())

	invite := &dissect.SIPMessage{Method: "INVITE", CallID: "call-6", CSeqMethod: "INVITE"}
	require.NoError(t, s.Append(sipPacket(t, time.Now(), invite)))
	require.Equal(t, 1, s.Len())
}

func TestMatchInviteOnlyRejectsNonInviteFirstMessage(t *testing.T) {
	s := newStore(t, Config{MatchInviteOnly: true})
	bye := &dissect.SIPMessage{Method: "BYE", CallID: "call-7"}
	require.NoError(t, s.Append(sipPacket(t, time.Now(), bye)))
	require.Equal(t, 0, s.Len())
}

func TestSetSortByMsgCount(t *testing.T) {
	s := newStore(t, Config{})
	now := time.Now()

	one := &dissect.SIPMessage{Method: "INVITE", CallID: "busy", CSeqMethod: "INVITE", CSeqNum: 1}
	require.NoError(t, s.Append(sipPacket(t, now, one)))

	two := &dissect.SIPMessage{Method: "INVITE", CallID: "quiet", CSeqMethod: "INVITE", CSeqNum: 1}
	require.NoError(t, s.Append(sipPacket(t, now, two)))
	ack := &dissect.SIPMessage{StatusCode: 180, CallID: "quiet", CSeqMethod: "INVITE", CSeqNum: 1}
	require.NoError(t, s.Append(sipPacket(t, now.Add(time.Second), ack)))

	s.SetSort(SortByMsgCount, true)
	sorted := s.Sorted()
	require.Len(t, sorted, 2)
	require.Equal(t, "busy", sorted[0].CallID)
	require.Equal(t, "quiet", sorted[1].CallID)
}

func TestGenerationBumpsOnAppend(t *testing.T) {
	s := newStore(t, Config{})
	g0 := s.Generation()
	invite := &dissect.SIPMessage{Method: "INVITE", CallID: "call-8"}
	require.NoError(t, s.Append(sipPacket(t, time.Now(), invite)))
	require.Greater(t, s.Generation(), g0)
}

func TestStatsTotalCallsOutlivesEviction(t *testing.T) {
	s := newStore(t, Config{MatchCompleteOnly: true})
	base := time.Now()

	invite := &dissect.SIPMessage{Method: "INVITE", CallID: "call-9", CSeqMethod: "INVITE", CSeqNum: 1}
	busy := &dissect.SIPMessage{StatusCode: 486, CallID: "call-9", CSeqMethod: "INVITE", CSeqNum: 1}
	require.NoError(t, s.Append(sipPacket(t, base, invite)))
	require.NoError(t, s.Append(sipPacket(t, base.Add(time.Second), busy)))

	_, stillThere := s.Lookup("call-9")
	require.False(t, stillThere, "matchCompleteOnly evicts immediately on reaching a terminal state")

	stats := s.Stats(nil)
	require.Equal(t, uint64(1), stats.TotalCalls, "total survives the call's own eviction")
	require.Equal(t, 0, stats.CallCount)
}

func TestStatsDisplayedAppliesFilterPredicate(t *testing.T) {
	s := newStore(t, Config{})
	now := time.Now()

	alice := &dissect.SIPMessage{Method: "INVITE", CallID: "call-alice", CSeqMethod: "INVITE", CSeqNum: 1, FromURI: "sip:alice@example.com"}
	bob := &dissect.SIPMessage{Method: "INVITE", CallID: "call-bob", CSeqMethod: "INVITE", CSeqNum: 1, FromURI: "sip:bob@example.com"}
	require.NoError(t, s.Append(sipPacket(t, now, alice)))
	require.NoError(t, s.Append(sipPacket(t, now, bob)))

	all := s.Stats(nil)
	require.Equal(t, 2, all.CallCount)
	require.Equal(t, 2, all.Displayed, "displayed <= retained <= total, nil predicate matches everything")

	pred := filter.Contains{Key: "from", Substr: "alice"}
	filtered := s.Stats(pred)
	require.Equal(t, 2, filtered.CallCount)
	require.Equal(t, 1, filtered.Displayed)

	displayed := s.Displayed(pred)
	require.Len(t, displayed, 1)
	require.Equal(t, "call-alice", displayed[0].CallID)
}

func TestReindexRemovesCallFromPreviousStateBucket(t *testing.T) {
	s := newStore(t, Config{})
	base := time.Now()

	invite := &dissect.SIPMessage{Method: "INVITE", CallID: "call-z", CSeqMethod: "INVITE", CSeqNum: 1}
	ok200 := &dissect.SIPMessage{StatusCode: 200, CallID: "call-z", CSeqMethod: "INVITE", CSeqNum: 1}
	require.NoError(t, s.Append(sipPacket(t, base, invite)))
	require.NoError(t, s.Append(sipPacket(t, base.Add(time.Second), ok200)))

	stats := s.Stats(nil)
	require.Equal(t, 1, stats.ByState[StateInCall])
	require.Equal(t, 0, stats.ByState[StateCalling], "call-z must not linger in the bucket for a state it already left")
}

func mediaPacket(t *testing.T, ts time.Time, proto packet.ProtoID, src, dst addr.Address) *packet.Packet {
	t.Helper()
	pkt := packet.New(ts, []byte("rtp-payload"))
	pkt.PushAddr(src, dst)
	pkt.Set(proto, struct{}{})
	return pkt
}

func TestAppendCorrelatesRTPAgainstSDPMediaIndex(t *testing.T) {
	s := newStore(t, Config{})
	base := time.Now()

	ua := addr.New(netip.MustParseAddr("198.51.100.10"), 5060, addr.ProtoUDP)
	media := addr.New(netip.MustParseAddr("198.51.100.10"), 49170, addr.ProtoUDP)
	far := addr.New(netip.MustParseAddr("203.0.113.20"), 49170, addr.ProtoUDP)

	invite := &dissect.SIPMessage{
		Method: "INVITE", CallID: "call-media", CSeqMethod: "INVITE", CSeqNum: 1,
		Media: []*dissect.MediaDescriptor{{ConnAddr: "198.51.100.10", Port: 49170}},
	}
	require.NoError(t, s.Append(sipPacket(t, base, invite)))

	rtp := mediaPacket(t, base.Add(time.Second), packet.ProtoRTP, far, media)
	require.NoError(t, s.Append(rtp))

	call, ok := s.Lookup("call-media")
	require.True(t, ok)
	require.Greater(t, call.SizeBytes, int64(0))

	unmatched := mediaPacket(t, base.Add(2*time.Second), packet.ProtoRTP,
		addr.New(netip.MustParseAddr("203.0.113.99"), 40000, addr.ProtoUDP),
		addr.New(netip.MustParseAddr("203.0.113.98"), 40001, addr.ProtoUDP))
	require.NoError(t, s.Append(unmatched))
	require.Equal(t, uint64(1), s.DroppedCount(), "an RTP packet matching no SDP-advertised address is dropped")
}

func TestAppendDropsRTPWhenPaused(t *testing.T) {
	s := newStore(t, Config{})
	s.Pause(true)

	src := addr.New(netip.MustParseAddr("198.51.100.1"), 10000, addr.ProtoUDP)
	dst := addr.New(netip.MustParseAddr("198.51.100.2"), 10001, addr.ProtoUDP)
	require.NoError(t, s.Append(mediaPacket(t, time.Now(), packet.ProtoRTP, src, dst)))
	require.Equal(t, uint64(1), s.DroppedCount())
}
