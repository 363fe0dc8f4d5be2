// Package hep implements the HEPv3 (Homer Encapsulation Protocol) wire
// format used to forward captured packets to a remote collector and to
// receive them from one (spec §4.2, §5): a "HEP3" magic, a total length,
// and a sequence of vendor/type/length-tagged chunks.
//
// Grounded on the teacher's plugins/reporter/hep/{hep.go,encoder.go},
// which encodes this same chunk set for its Kafka/SkyWalking reporting
// path; adapted here to also decode (for capture.RemoteInput) and to add
// the From/To identity chunks this tool's call correlation needs that
// the teacher's fire-and-forget reporter never read back.
package hep

import "time"

// ChunkType identifies one HEP3 chunk. Values 1-19 are the standard
// vendor-0 chunk set (github.com/sipcapture/homer's wire format);
// 20-21 are this tool's vendor extension for correlation-by-identity
// when the standard correlation-id chunk (17) isn't populated by the
// sender.
type ChunkType uint16

const (
	ChunkIPProtocolFamily ChunkType = 1
	ChunkIPProtocolID     ChunkType = 2
	ChunkIP4SrcAddr       ChunkType = 3
	ChunkIP4DstAddr       ChunkType = 4
	ChunkIP6SrcAddr       ChunkType = 5
	ChunkIP6DstAddr       ChunkType = 6
	ChunkProtoSrcPort     ChunkType = 7
	ChunkProtoDstPort     ChunkType = 8
	ChunkTimestampSec     ChunkType = 9
	ChunkTimestampUsec    ChunkType = 10
	ChunkProtoType        ChunkType = 11
	ChunkCaptureAgentID   ChunkType = 12
	ChunkAuthKey          ChunkType = 14
	ChunkPayload          ChunkType = 15
	ChunkCorrelationID    ChunkType = 17
	ChunkNodeName         ChunkType = 18
	ChunkFromIdentity     ChunkType = 20
	ChunkToIdentity       ChunkType = 21
)

// ProtoType is HEP's "protocol type" chunk value, identifying the
// captured payload's application protocol.
type ProtoType uint8

const (
	ProtoTypeSIP  ProtoType = 1
	ProtoTypeRTP  ProtoType = 34
	ProtoTypeRTCP ProtoType = 35
)

const (
	magic      = "HEP3"
	vendorZero = 0
	vendorTool = 1
)

// Packet is the decoded/to-be-encoded representation of one HEP3
// message; Encode/Decode convert it to and from the wire chunk format.
type Packet struct {
	IPFamily      uint8 // 2 = IPv4, 10 = IPv6
	Proto         uint8 // IPPROTO_UDP/TCP
	SrcIP, DstIP  string
	SrcPort       uint16
	DstPort       uint16
	Timestamp     time.Time
	ProtocolType  ProtoType
	CaptureAgent  uint32
	AuthKey       string
	Payload       []byte
	CorrelationID string
	NodeName      string
	FromIdentity  string
	ToIdentity    string
}
