// IP dissection: IPv4/IPv6 header decode plus IPv4 fragment reassembly
// (spec §4.1: "hold fragments keyed by (src, dst, id, proto) for up to
// 30s; emit the reassembled datagram once all fragments arrive, or drop
// the hold on timeout"). Header decode is delegated to gopacket/layers,
// consistent with the link-layer dissector; reassembly is hand-rolled
// because the pack's only fragment-reassembly library (gopacket's own)
// targets TCP streams, not IP fragments.
package dissect

import (
	"net/netip"
	"sort"
	"sync"
	"time"

	"github.com/google/gopacket/layers"
)

const ipFragmentHoldTTL = 30 * time.Second

// IPPacket is the record attached to a Packet at packet.ProtoIPv4 or
// packet.ProtoIPv6.
type IPPacket struct {
	Src, Dst netip.Addr
	Proto    layers.IPProtocol
}

type fragmentKey struct {
	src, dst netip.Addr
	id       uint16
	proto    layers.IPProtocol
}

type fragment struct {
	offset int
	more   bool
	data   []byte
}

type fragmentHold struct {
	firstSeen time.Time
	frags     []fragment
	totalLen  int // known once the non-MF fragment is seen; 0 until then
}

// Reassembler holds in-flight IPv4 fragment groups. The zero value is
// not usable (its hold table is nil); construct with NewReassembler.
// Stale holds are dropped only when Sweep is called.
type Reassembler struct {
	mu    sync.Mutex
	holds map[fragmentKey]*fragmentHold
}

// NewReassembler constructs an empty fragment table.
func NewReassembler() *Reassembler {
	return &Reassembler{holds: make(map[fragmentKey]*fragmentHold)}
}

// ParseIPv4 decodes an IPv4 header and, if the packet is unfragmented,
// returns the payload immediately. Fragmented packets are folded into
// the hold table and yield ErrNeedMoreData until reassembly completes.
func (r *Reassembler) ParseIPv4(data []byte, now time.Time) (*IPPacket, []byte, error) {
	var ip layers.IPv4
	if err := ip.DecodeFromBytes(data, gopacketNilFeedback{}); err != nil {
		return nil, nil, wrapSkip("ipv4", err)
	}
	pkt := &IPPacket{Proto: ip.Protocol}
	pkt.Src, _ = netip.AddrFromSlice(ip.SrcIP)
	pkt.Dst, _ = netip.AddrFromSlice(ip.DstIP)
	pkt.Src = pkt.Src.Unmap()
	pkt.Dst = pkt.Dst.Unmap()

	moreFragments := ip.Flags&layers.IPv4MoreFragments != 0
	fragOffset := int(ip.FragOffset) * 8
	if !moreFragments && fragOffset == 0 {
		return pkt, ip.Payload, nil
	}

	key := fragmentKey{src: pkt.Src, dst: pkt.Dst, id: ip.Id, proto: ip.Protocol}
	complete := r.addFragment(key, fragOffset, moreFragments, ip.Payload, now)
	if complete == nil {
		return pkt, nil, ErrNeedMoreData
	}
	return pkt, complete, nil
}

// ParseIPv6 decodes an IPv6 header. IPv6 fragmentation uses a distinct
// extension header this dissector does not chase; a fragmented IPv6
// datagram is returned with the Fragment header's next-header value as
// its Proto, which the chain's transport dispatch rejects with
// ErrUnsupportedProto, rather than held,
// since SIP/RTP deployments overwhelmingly avoid IPv6 fragmentation.
func ParseIPv6(data []byte) (*IPPacket, []byte, error) {
	var ip layers.IPv6
	if err := ip.DecodeFromBytes(data, gopacketNilFeedback{}); err != nil {
		return nil, nil, wrapSkip("ipv6", err)
	}
	pkt := &IPPacket{Proto: ip.NextHeader}
	pkt.Src, _ = netip.AddrFromSlice(ip.SrcIP)
	pkt.Dst, _ = netip.AddrFromSlice(ip.DstIP)
	pkt.Src = pkt.Src.Unmap()
	pkt.Dst = pkt.Dst.Unmap()
	return pkt, ip.Payload, nil
}

func (r *Reassembler) addFragment(key fragmentKey, offset int, more bool, data []byte, now time.Time) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	hold, ok := r.holds[key]
	if !ok {
		hold = &fragmentHold{firstSeen: now}
		r.holds[key] = hold
	}
	hold.frags = append(hold.frags, fragment{offset: offset, more: more, data: data})
	if !more {
		hold.totalLen = offset + len(data)
	}

	if hold.totalLen == 0 {
		return nil
	}
	sort.Slice(hold.frags, func(i, j int) bool { return hold.frags[i].offset < hold.frags[j].offset })

	buf := make([]byte, hold.totalLen)
	covered := 0
	for _, f := range hold.frags {
		if f.offset > covered {
			return nil // gap remains
		}
		end := f.offset + len(f.data)
		copy(buf[f.offset:end], f.data)
		if end > covered {
			covered = end
		}
	}
	if covered < hold.totalLen {
		return nil
	}
	delete(r.holds, key)
	return buf
}

// Sweep drops fragment holds older than ipFragmentHoldTTL, returning the
// number evicted. Intended to be called periodically from the capture
// manager's run loop.
func (r *Reassembler) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for k, h := range r.holds {
		if now.Sub(h.firstSeen) > ipFragmentHoldTTL {
			delete(r.holds, k)
			evicted++
		}
	}
	return evicted
}
