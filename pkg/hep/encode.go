package hep

import (
	"encoding/binary"
	"net"
)

// Encode serializes p as a HEP3 message: magic, total length, then the
// chunk sequence. Grounded on the teacher's plugins/reporter/hep/encoder.go
// chunk-write loop.
func Encode(p *Packet) []byte {
	var chunks [][]byte

	chunks = append(chunks, chunkU8(ChunkIPProtocolFamily, p.IPFamily))
	chunks = append(chunks, chunkU8(ChunkIPProtocolID, p.Proto))

	if p.IPFamily == 10 {
		chunks = append(chunks, chunkBytes(ChunkIP6SrcAddr, net.ParseIP(p.SrcIP).To16()))
		chunks = append(chunks, chunkBytes(ChunkIP6DstAddr, net.ParseIP(p.DstIP).To16()))
	} else {
		chunks = append(chunks, chunkBytes(ChunkIP4SrcAddr, net.ParseIP(p.SrcIP).To4()))
		chunks = append(chunks, chunkBytes(ChunkIP4DstAddr, net.ParseIP(p.DstIP).To4()))
	}

	chunks = append(chunks, chunkU16(ChunkProtoSrcPort, p.SrcPort))
	chunks = append(chunks, chunkU16(ChunkProtoDstPort, p.DstPort))
	chunks = append(chunks, chunkU32(ChunkTimestampSec, uint32(p.Timestamp.Unix())))
	chunks = append(chunks, chunkU32(ChunkTimestampUsec, uint32(p.Timestamp.Nanosecond()/1000)))
	chunks = append(chunks, chunkU8(ChunkProtoType, uint8(p.ProtocolType)))
	chunks = append(chunks, chunkU32(ChunkCaptureAgentID, p.CaptureAgent))

	if p.AuthKey != "" {
		chunks = append(chunks, chunkString(ChunkAuthKey, p.AuthKey))
	}
	if p.CorrelationID != "" {
		chunks = append(chunks, chunkString(ChunkCorrelationID, p.CorrelationID))
	}
	if p.NodeName != "" {
		chunks = append(chunks, chunkString(ChunkNodeName, p.NodeName))
	}
	if p.FromIdentity != "" {
		chunks = append(chunks, chunkString(ChunkFromIdentity, p.FromIdentity))
	}
	if p.ToIdentity != "" {
		chunks = append(chunks, chunkString(ChunkToIdentity, p.ToIdentity))
	}
	chunks = append(chunks, chunkBytes(ChunkPayload, p.Payload))

	total := 6 // magic + length
	for _, c := range chunks {
		total += len(c)
	}

	out := make([]byte, 0, total)
	out = append(out, magic...)
	out = binary.BigEndian.AppendUint16(out, uint16(total))
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

func chunkHeader(vendor uint16, typ ChunkType, payloadLen int) []byte {
	h := make([]byte, 6)
	binary.BigEndian.PutUint16(h[0:2], vendor)
	binary.BigEndian.PutUint16(h[2:4], uint16(typ))
	binary.BigEndian.PutUint16(h[4:6], uint16(6+payloadLen))
	return h
}

func chunkU8(typ ChunkType, v uint8) []byte {
	return append(chunkHeader(vendorZero, typ, 1), v)
}

func chunkU16(typ ChunkType, v uint16) []byte {
	h := chunkHeader(vendorZero, typ, 2)
	return binary.BigEndian.AppendUint16(h, v)
}

func chunkU32(typ ChunkType, v uint32) []byte {
	h := chunkHeader(vendorZero, typ, 4)
	return binary.BigEndian.AppendUint32(h, v)
}

func chunkBytes(typ ChunkType, v []byte) []byte {
	vendor := uint16(vendorZero)
	if typ == ChunkFromIdentity || typ == ChunkToIdentity {
		vendor = vendorTool
	}
	return append(chunkHeader(vendor, typ, len(v)), v...)
}

func chunkString(typ ChunkType, v string) []byte {
	return chunkBytes(typ, []byte(v))
}
