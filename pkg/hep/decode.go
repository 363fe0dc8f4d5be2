package hep

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"
)

// ErrNotHEP means the buffer doesn't start with the HEP3 magic.
var ErrNotHEP = fmt.Errorf("hep: missing magic")

// Decode parses a HEP3 message, the counterpart to Encode. Used by
// capture.RemoteInput to unwrap packets forwarded by another probe
// (spec §4.2).
func Decode(data []byte) (*Packet, error) {
	if len(data) < 6 || string(data[:4]) != magic {
		return nil, ErrNotHEP
	}
	total := int(binary.BigEndian.Uint16(data[4:6]))
	if total > len(data) {
		return nil, fmt.Errorf("hep: truncated message: want %d have %d", total, len(data))
	}

	p := &Packet{}
	var usec uint32
	off := 6
	for off+6 <= total {
		vendor := binary.BigEndian.Uint16(data[off : off+2])
		typ := ChunkType(binary.BigEndian.Uint16(data[off+2 : off+4]))
		length := int(binary.BigEndian.Uint16(data[off+4 : off+6]))
		if length < 6 || off+length > total {
			return nil, fmt.Errorf("hep: malformed chunk type %d", typ)
		}
		payload := data[off+6 : off+length]
		applyChunk(p, vendor, typ, payload, &usec)
		off += length
	}
	p.Timestamp = p.Timestamp.Add(time.Duration(usec) * time.Microsecond)
	return p, nil
}

func applyChunk(p *Packet, vendor uint16, typ ChunkType, payload []byte, usec *uint32) {
	switch typ {
	case ChunkIPProtocolFamily:
		if len(payload) == 1 {
			p.IPFamily = payload[0]
		}
	case ChunkIPProtocolID:
		if len(payload) == 1 {
			p.Proto = payload[0]
		}
	case ChunkIP4SrcAddr, ChunkIP6SrcAddr:
		p.SrcIP = net.IP(payload).String()
	case ChunkIP4DstAddr, ChunkIP6DstAddr:
		p.DstIP = net.IP(payload).String()
	case ChunkProtoSrcPort:
		if len(payload) == 2 {
			p.SrcPort = binary.BigEndian.Uint16(payload)
		}
	case ChunkProtoDstPort:
		if len(payload) == 2 {
			p.DstPort = binary.BigEndian.Uint16(payload)
		}
	case ChunkTimestampSec:
		if len(payload) == 4 {
			p.Timestamp = time.Unix(int64(binary.BigEndian.Uint32(payload)), 0).UTC()
		}
	case ChunkTimestampUsec:
		if len(payload) == 4 {
			*usec = binary.BigEndian.Uint32(payload)
		}
	case ChunkProtoType:
		if len(payload) == 1 {
			p.ProtocolType = ProtoType(payload[0])
		}
	case ChunkCaptureAgentID:
		if len(payload) == 4 {
			p.CaptureAgent = binary.BigEndian.Uint32(payload)
		}
	case ChunkAuthKey:
		p.AuthKey = string(payload)
	case ChunkPayload:
		p.Payload = append([]byte(nil), payload...)
	case ChunkCorrelationID:
		p.CorrelationID = string(payload)
	case ChunkNodeName:
		p.NodeName = string(payload)
	case ChunkFromIdentity:
		if vendor == vendorTool {
			p.FromIdentity = string(payload)
		}
	case ChunkToIdentity:
		if vendor == vendorTool {
			p.ToIdentity = string(payload)
		}
	}
}
