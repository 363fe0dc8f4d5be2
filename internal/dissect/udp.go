// UDP dissection: header decode plus content-based dispatch to SIP,
// RTP, RTCP, STUN, or HEP (spec §4.1: "UDP payload dispatch order is
// SIP text sniff, then HEP magic, then STUN magic, then RTP/RTCP
// version+PT heuristic"). Grounded on the teacher's parser registry in
// plugins/parser/{sip,rtp}, which dispatches the same way on raw UDP
// payload content rather than port number alone, since SIP and RTP
// both commonly share dynamic port ranges behind NAT.
package dissect

import (
	"github.com/google/gopacket/layers"
)

// UDPDatagram is the record attached to a Packet at packet.ProtoUDP.
type UDPDatagram struct {
	SrcPort, DstPort uint16
	Payload          []byte
}

// ParseUDP decodes the UDP header and returns the payload.
func ParseUDP(data []byte) (*UDPDatagram, error) {
	var udp layers.UDP
	if err := udp.DecodeFromBytes(data, gopacketNilFeedback{}); err != nil {
		return nil, wrapSkip("udp", err)
	}
	return &UDPDatagram{
		SrcPort: uint16(udp.SrcPort),
		DstPort: uint16(udp.DstPort),
		Payload: udp.Payload,
	}, nil
}

// UDPPayloadKind is the dispatch result of classifying a UDP payload.
type UDPPayloadKind int

const (
	UDPPayloadUnknown UDPPayloadKind = iota
	UDPPayloadSIP
	UDPPayloadHEP
	UDPPayloadSTUN
	UDPPayloadRTP
	UDPPayloadRTCP
)

// ClassifyUDPPayload applies the dispatch order documented above.
func ClassifyUDPPayload(payload []byte) UDPPayloadKind {
	switch {
	case LooksLikeSIP(payload):
		return UDPPayloadSIP
	case LooksLikeHEP(payload):
		return UDPPayloadHEP
	case LooksLikeSTUN(payload):
		return UDPPayloadSTUN
	case LooksLikeRTCP(payload):
		return UDPPayloadRTCP
	case LooksLikeRTP(payload):
		return UDPPayloadRTP
	default:
		return UDPPayloadUnknown
	}
}
