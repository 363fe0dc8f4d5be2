// Package packet defines the decoded-frame value the dissector chain
// builds and the storage layer consumes.
//
// Design Notes (spec §9): the "weakly-typed protocol record map on
// Packet" from the original implementation is replaced here with a fixed
// enum-keyed table of typed variants, one slot per known protocol id.
// Unknown protocols are never stored — when no dissector recognizes a
// protocol the chain returns an error (ErrUnsupportedProto) and nothing
// is attached.
package packet

import (
	"io"
	"time"

	"github.com/Lixeiden/sngrep/internal/addr"
)

// ProtoID indexes the fixed record table on Packet.
type ProtoID int

const (
	ProtoLink ProtoID = iota
	ProtoIPv4
	ProtoIPv6
	ProtoTCP
	ProtoUDP
	ProtoTLS
	ProtoWS
	ProtoSIP
	ProtoSDP
	ProtoRTP
	ProtoRTCP
	ProtoSTUN
	ProtoHEP
	numProtocols
)

func (p ProtoID) String() string {
	switch p {
	case ProtoLink:
		return "link"
	case ProtoIPv4:
		return "ipv4"
	case ProtoIPv6:
		return "ipv6"
	case ProtoTCP:
		return "tcp"
	case ProtoUDP:
		return "udp"
	case ProtoTLS:
		return "tls"
	case ProtoWS:
		return "ws"
	case ProtoSIP:
		return "sip"
	case ProtoSDP:
		return "sdp"
	case ProtoRTP:
		return "rtp"
	case ProtoRTCP:
		return "rtcp"
	case ProtoSTUN:
		return "stun"
	case ProtoHEP:
		return "hep"
	default:
		return "unknown"
	}
}

// Packet is one decoded frame. It owns its raw bytes, carries the
// addresses visited at each transport layer (outermost first), and a
// fixed table of per-protocol decoded records.
type Packet struct {
	Timestamp time.Time
	Path      []addr.Address
	raw       []byte
	records   [numProtocols]any
}

// New creates a Packet over raw bytes captured at ts. The Packet takes
// ownership of raw; callers must not mutate it afterward.
func New(ts time.Time, raw []byte) *Packet {
	return &Packet{Timestamp: ts, raw: raw}
}

// Raw returns the original captured bytes for this frame.
func (p *Packet) Raw() []byte { return p.raw }

// Set attaches a decoded record for protocol id, keyed by a fixed slot —
// at most one record per protocol per packet.
func (p *Packet) Set(id ProtoID, rec any) {
	p.records[id] = rec
}

// Get returns the decoded record for protocol id, or nil if no dissector
// attached one.
func (p *Packet) Get(id ProtoID) any {
	return p.records[id]
}

// Has reports whether a record is attached for protocol id.
func (p *Packet) Has(id ProtoID) bool {
	return p.records[id] != nil
}

// PushAddr appends the (src) and (dst) endpoints seen at one transport
// layer, outermost-first.
func (p *Packet) PushAddr(src, dst addr.Address) {
	p.Path = append(p.Path, src, dst)
}

// Free releases any record implementing io.Closer (e.g. TCP reassembly
// buffers held by a dissector) and clears the record table. Storage does
// not call it when it drops a packet or evicts a Call.
func (p *Packet) Free() {
	for i, rec := range p.records {
		if closer, ok := rec.(io.Closer); ok {
			_ = closer.Close()
		}
		p.records[i] = nil
	}
}

// ApproxSize estimates the heap footprint of this packet for storage's
// memory accounting (spec §3 invariant on Σ approx-sizeof).
func (p *Packet) ApproxSize() int {
	const overhead = 64
	return overhead + len(p.raw) + len(p.Path)*32
}
