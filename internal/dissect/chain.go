// Chain wires the per-protocol dissectors together into the tree
// described by spec §4.1: link -> IP (+ fragment reassembly) -> TCP
// (+ stream reassembly, SIP framing) or UDP (+ content dispatch) ->
// SIP/SDP/RTP/RTCP/STUN/HEP, each layer attaching a typed record to the
// Packet's fixed protocol table and handing the next layer its residual
// bytes.
//
// TCP's reassembly is inherently asynchronous (a SIP message can span
// several captured segments, or several messages can arrive in one
// segment), so Chain exposes two entry points: Dissect for
// single-datagram protocols (UDP, and the HEP-wrapped remote input
// path) which always returns synchronously, and DrainTCPMessages for
// the framed SIP messages the stream reassembler has completed since
// the last call. The capture manager's run loop drives both every
// iteration (SPEC_FULL.md §B.3).
package dissect

import (
	"net/netip"
	"strconv"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/tcpassembly"

	"github.com/Lixeiden/sngrep/internal/addr"
	"github.com/Lixeiden/sngrep/internal/packet"
)

// Chain is the top-level entry point capture.Manager calls for every
// captured frame. Not safe for concurrent Dissect calls from more than
// one goroutine; the capture manager owns a single Chain per run loop.
type Chain struct {
	linkType LinkType
	ipReasm  *Reassembler
	tls      *TLSKeyring

	factory   *StreamFactory
	pool      *tcpassembly.StreamPool
	assembler *tcpassembly.Assembler

	wsFlows map[string]*wsFlowState

	Stats ChainStats
}

// ChainStats counts packets dropped at each layer (spec §4.1's "drop
// counters per layer"). capture.Manager's Status does not report it.
type ChainStats struct {
	LinkErrors, IPErrors, TCPErrors, UDPErrors, AppErrors uint64
}

// NewChain builds a dissector chain for the given link type. tlsKeyring
// may be nil, in which case TLS records always yield ErrNoKey. tlsServer
// is the tls.server addr:port hint (spec §6); an empty or unparseable
// string disables TLS flow demultiplexing even when a keyring is set.
func NewChain(linkType LinkType, tlsKeyring *TLSKeyring, tlsServer string) *Chain {
	tlsAddr, _ := netip.ParseAddrPort(tlsServer)
	factory := NewStreamFactory(tlsKeyring, tlsAddr)
	pool := tcpassembly.NewStreamPool(factory)
	return &Chain{
		linkType:  linkType,
		ipReasm:   NewReassembler(),
		tls:       tlsKeyring,
		factory:   factory,
		pool:      pool,
		assembler: tcpassembly.NewAssembler(pool),
		wsFlows:   make(map[string]*wsFlowState),
	}
}

// Dissect decodes one captured frame. UDP-carried protocols (including
// HEP-wrapped remote packets) resolve synchronously; TCP segments are
// fed to the stream reassembler and Dissect returns (nil, ErrNeedMoreData)
// — completed messages surface later via DrainTCPMessages.
func (c *Chain) Dissect(raw []byte, ts time.Time) (*packet.Packet, error) {
	link, afterLink, err := ParseLink(c.linkType, raw)
	if err != nil {
		c.Stats.LinkErrors++
		return nil, err
	}
	pkt := packet.New(ts, raw)
	pkt.Set(packet.ProtoLink, link)

	switch link.NextProto {
	case layers.EthernetTypeIPv4:
		return c.dissectIPv4(pkt, afterLink, ts)
	case layers.EthernetTypeIPv6:
		return c.dissectIPv6(pkt, afterLink)
	default:
		c.Stats.LinkErrors++
		return nil, ErrUnsupportedProto
	}
}

func (c *Chain) dissectIPv4(pkt *packet.Packet, data []byte, ts time.Time) (*packet.Packet, error) {
	ip, payload, err := c.ipReasm.ParseIPv4(data, ts)
	if err != nil {
		if err == ErrNeedMoreData {
			return nil, err
		}
		c.Stats.IPErrors++
		return nil, err
	}
	pkt.Set(packet.ProtoIPv4, ip)
	return c.dissectTransport(pkt, ip.Proto, ip.Src, ip.Dst, payload, ts)
}

func (c *Chain) dissectIPv6(pkt *packet.Packet, data []byte) (*packet.Packet, error) {
	ip, payload, err := ParseIPv6(data)
	if err != nil {
		c.Stats.IPErrors++
		return nil, err
	}
	pkt.Set(packet.ProtoIPv6, ip)
	return c.dissectTransport(pkt, ip.Proto, ip.Src, ip.Dst, payload, pkt.Timestamp)
}

func (c *Chain) dissectTransport(pkt *packet.Packet, proto layers.IPProtocol, src, dst netip.Addr, payload []byte, ts time.Time) (*packet.Packet, error) {
	switch proto {
	case layers.IPProtocolUDP:
		return c.dissectUDP(pkt, src, dst, payload)
	case layers.IPProtocolTCP:
		c.feedTCP(src, dst, payload, ts)
		return nil, ErrNeedMoreData
	default:
		c.Stats.IPErrors++
		return nil, ErrUnsupportedProto
	}
}

func (c *Chain) dissectUDP(pkt *packet.Packet, src, dst netip.Addr, data []byte) (*packet.Packet, error) {
	datagram, err := ParseUDP(data)
	if err != nil {
		c.Stats.UDPErrors++
		return nil, err
	}
	pkt.Set(packet.ProtoUDP, datagram)
	pkt.PushAddr(addr.New(src, datagram.SrcPort, addr.ProtoUDP), addr.New(dst, datagram.DstPort, addr.ProtoUDP))
	return c.dissectApplication(pkt, datagram.Payload)
}

// dissectApplication classifies and parses a single self-contained
// application payload, whether it arrived directly over UDP or was
// unwrapped from a HEP envelope.
func (c *Chain) dissectApplication(pkt *packet.Packet, payload []byte) (*packet.Packet, error) {
	switch ClassifyUDPPayload(payload) {
	case UDPPayloadSIP:
		msg, err := ParseSIP(payload)
		if err != nil {
			c.Stats.AppErrors++
			return nil, err
		}
		pkt.Set(packet.ProtoSIP, msg)
		if msg.Media != nil {
			pkt.Set(packet.ProtoSDP, &SDPDescription{Media: msg.Media})
		}
		return pkt, nil

	case UDPPayloadHEP:
		env, inner, err := ParseHEP(payload)
		if err != nil {
			c.Stats.AppErrors++
			return nil, err
		}
		pkt.Set(packet.ProtoHEP, env)
		return c.dissectApplication(pkt, inner)

	case UDPPayloadSTUN:
		pkt.Set(packet.ProtoSTUN, &STUNRecord{})
		return pkt, nil

	case UDPPayloadRTP:
		rec, err := ParseRTP(payload)
		if err != nil {
			c.Stats.AppErrors++
			return nil, err
		}
		pkt.Set(packet.ProtoRTP, rec)
		return pkt, nil

	case UDPPayloadRTCP:
		rec, err := ParseRTCP(payload)
		if err != nil {
			c.Stats.AppErrors++
			return nil, err
		}
		pkt.Set(packet.ProtoRTCP, rec)
		return pkt, nil

	default:
		c.Stats.AppErrors++
		return nil, ErrUnsupportedProto
	}
}

// feedTCP hands a TCP segment's IP payload to the stream reassembler.
// src/dst are folded into gopacket Flows so the reassembler can key
// streams independent of this chain's own addressing.
func (c *Chain) feedTCP(src, dst netip.Addr, payload []byte, ts time.Time) {
	var tcp layers.TCP
	if err := tcp.DecodeFromBytes(payload, gopacketNilFeedback{}); err != nil {
		c.Stats.TCPErrors++
		return
	}
	netFlow := ipFlow(src, dst)
	c.assembler.AssembleWithTimestamp(netFlow, &tcp, ts)
}

func ipFlow(src, dst netip.Addr) gopacket.Flow {
	srcEp := gopacket.NewEndpoint(gopacket.EndpointIPv4, src.AsSlice())
	dstEp := gopacket.NewEndpoint(gopacket.EndpointIPv4, dst.AsSlice())
	if src.Is6() && !src.Is4In6() {
		srcEp = gopacket.NewEndpoint(gopacket.EndpointIPv6, src.AsSlice())
		dstEp = gopacket.NewEndpoint(gopacket.EndpointIPv6, dst.AsSlice())
	}
	flow, _ := gopacket.FlowFromEndpoints(srcEp, dstEp)
	return flow
}

// DrainTCPMessages converts every SIP message the stream reassembler
// has completed since the last call into a Packet.
func (c *Chain) DrainTCPMessages() []*packet.Packet {
	var out []*packet.Packet
	for {
		select {
		case fm := <-c.factory.Messages():
			pkt := packet.New(fm.LastActivity, fm.Payload)
			src, srcPort := flowEndpoint(fm.NetFlow, fm.TransportFlow, true)
			dst, dstPort := flowEndpoint(fm.NetFlow, fm.TransportFlow, false)
			pkt.PushAddr(addr.New(src, srcPort, addr.ProtoTCP), addr.New(dst, dstPort, addr.ProtoTCP))
			pkt.Set(packet.ProtoTCP, fm)

			msg, err := ParseSIP(fm.Payload)
			if err != nil {
				c.Stats.AppErrors++
				continue
			}
			pkt.Set(packet.ProtoSIP, msg)
			if msg.Media != nil {
				pkt.Set(packet.ProtoSDP, &SDPDescription{Media: msg.Media})
			}
			out = append(out, pkt)
		default:
			return out
		}
	}
}

func flowEndpoint(netFlow, transportFlow gopacket.Flow, source bool) (netip.Addr, uint16) {
	var ipStr, portStr string
	if source {
		ipStr, portStr = netFlow.Src().String(), transportFlow.Src().String()
	} else {
		ipStr, portStr = netFlow.Dst().String(), transportFlow.Dst().String()
	}
	ip, _ := netip.ParseAddr(ipStr)
	port, _ := strconv.ParseUint(portStr, 10, 16)
	return ip, uint16(port)
}

// Sweep evicts stale IP fragment holds and flushes idle TCP streams
// (60s, spec §4.1). Intended to be called periodically by the capture
// manager.
func (c *Chain) Sweep(now time.Time) {
	c.ipReasm.Sweep(now)
	c.assembler.FlushOlderThan(c.factory.IdleBefore())
}
