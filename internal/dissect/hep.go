// HEP decapsulation for remote inputs (spec §4.2, §4.1): a RemoteInput
// receives HEPv3-wrapped packets from another probe; this dissector
// unwraps the envelope so the rest of the chain (SIP/SDP/RTP) sees the
// original captured payload, with the HEP chunk set available for
// storage to use as the address/timestamp source instead of an outer
// UDP/IP header that describes the probe-to-collector hop, not the
// original call.
package dissect

import (
	"github.com/Lixeiden/sngrep/pkg/hep"
)

// HEPEnvelope is the record attached to a Packet at packet.ProtoHEP.
type HEPEnvelope struct {
	SrcIP, DstIP     string
	SrcPort, DstPort uint16
	ProtocolType     hep.ProtoType
	NodeName         string
	CorrelationID    string
}

// LooksLikeHEP performs the magic-prefix check used by the UDP
// dispatcher ahead of the STUN/RTP heuristics.
func LooksLikeHEP(data []byte) bool {
	return len(data) >= 6 && string(data[:4]) == "HEP3"
}

// ParseHEP decodes a HEP3 envelope and returns the inner payload for
// re-dispatch through ClassifyUDPPayload.
func ParseHEP(data []byte) (*HEPEnvelope, []byte, error) {
	p, err := hep.Decode(data)
	if err != nil {
		return nil, nil, wrapSkip("hep", err)
	}
	env := &HEPEnvelope{
		SrcIP: p.SrcIP, DstIP: p.DstIP,
		SrcPort: p.SrcPort, DstPort: p.DstPort,
		ProtocolType: p.ProtocolType, NodeName: p.NodeName, CorrelationID: p.CorrelationID,
	}
	return env, p.Payload, nil
}
