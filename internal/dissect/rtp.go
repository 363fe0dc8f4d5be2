// RTP/RTCP heuristic classification (spec §4.1): "heuristic classify by
// version=2 + payload-type + port parity; attach (ssrc, payload type,
// sequence, timestamp)". Grounded on the teacher's plugins/parser/rtp/
// rtp.go for the heuristic thresholds; header fields are decoded with
// pion/rtp (arzzra-soft_phone's go.mod) rather than raw binary.BigEndian
// reads, since the pack already carries a real RTP library.
package dissect

import (
	"fmt"

	"github.com/pion/rtp"
)

const (
	rtcpPayloadTypeMin = 200
	rtcpPayloadTypeMax = 209

	rtpMinLength  = 12
	rtcpMinLength = 8
)

// RTPRecord is the record attached to a Packet at packet.ProtoRTP.
type RTPRecord struct {
	SSRC           uint32
	PayloadType    uint8
	SequenceNumber uint16
	Timestamp      uint32
	Marker         bool
}

// RTCPRecord is the record attached to a Packet at packet.ProtoRTCP.
// RTCP compound packets may carry several report blocks; only the
// leading packet type and the sender SSRC are kept, which is all storage
// needs to correlate a stream's control traffic with its Call.
type RTCPRecord struct {
	PacketType uint8
	SSRC       uint32
}

// LooksLikeRTP applies the version/payload-type/length heuristic. It does
// not look at port parity, and neither does the UDP dissector's
// classification that calls it.
func LooksLikeRTP(data []byte) bool {
	if len(data) < rtpMinLength {
		return false
	}
	version := data[0] >> 6
	if version != 2 {
		return false
	}
	pt := data[1] & 0x7F
	return pt < rtcpPayloadTypeMin || pt > rtcpPayloadTypeMax
}

// LooksLikeRTCP applies the same version check but requires a payload
// type in the RTCP sender/receiver/source-description/bye range.
func LooksLikeRTCP(data []byte) bool {
	if len(data) < rtcpMinLength {
		return false
	}
	version := data[0] >> 6
	if version != 2 {
		return false
	}
	pt := data[1]
	return pt >= rtcpPayloadTypeMin && pt <= rtcpPayloadTypeMax
}

// ParseRTP decodes an RTP packet header via pion/rtp.
func ParseRTP(data []byte) (*RTPRecord, error) {
	var pkt rtp.Packet
	if err := pkt.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("%w: rtp unmarshal: %v", ErrDecodeSkip, err)
	}
	return &RTPRecord{
		SSRC:           pkt.SSRC,
		PayloadType:    pkt.PayloadType,
		SequenceNumber: pkt.SequenceNumber,
		Timestamp:      pkt.Timestamp,
		Marker:         pkt.Marker,
	}, nil
}

// ParseRTCP decodes only the common RTCP header (packet type + sender
// SSRC) — storage needs no more than that to correlate control traffic
// with the Call whose SDP advertised the stream.
func ParseRTCP(data []byte) (*RTCPRecord, error) {
	if len(data) < rtcpMinLength {
		return nil, fmt.Errorf("%w: rtcp header too short", ErrPacketTooShort)
	}
	return &RTCPRecord{
		PacketType: data[1],
		SSRC:       uint32(data[4])<<24 | uint32(data[5])<<16 | uint32(data[6])<<8 | uint32(data[7]),
	}, nil
}
