package hep

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"
)

// legacyHeaderLen is the fixed HEPv2 header: 2 (total len) + 1 (family)
// + 1 (proto) + 2 (sport) + 2 (dport) + 4 (src) + 4 (dst) + 4 (tv_sec)
// + 4 (tv_usec) + 2 (capture id) bytes, IPv4 only — the format predates
// IPv6 capture support.
const legacyHeaderLen = 26

// DecodeLegacy parses the older fixed-header HEPv2 envelope (no magic,
// no chunks), accepted alongside HEPv3 per spec §6 ("both versioned
// envelope forms in common use are accepted on input").
func DecodeLegacy(data []byte) (*Packet, error) {
	if len(data) < legacyHeaderLen {
		return nil, fmt.Errorf("hep: legacy header too short")
	}
	if data[2] != 2 { // AF_INET; this legacy format never carried IPv6.
		return nil, fmt.Errorf("hep: legacy header unsupported family %d", data[2])
	}

	p := &Packet{
		IPFamily: data[2],
		Proto:    data[3],
		SrcPort:  binary.BigEndian.Uint16(data[4:6]),
		DstPort:  binary.BigEndian.Uint16(data[6:8]),
		SrcIP:    net.IP(data[8:12]).String(),
		DstIP:    net.IP(data[12:16]).String(),
	}
	sec := binary.BigEndian.Uint32(data[16:20])
	usec := binary.BigEndian.Uint32(data[20:24])
	p.Timestamp = time.Unix(int64(sec), 0).UTC().Add(time.Duration(usec) * time.Microsecond)
	p.ProtocolType = ProtoTypeSIP
	p.Payload = append([]byte(nil), data[legacyHeaderLen:]...)
	return p, nil
}

// DecodeAny tries HEPv3 first (self-describing via magic), falling back
// to the legacy fixed header.
func DecodeAny(data []byte) (*Packet, error) {
	if len(data) >= 4 && string(data[:4]) == magic {
		return Decode(data)
	}
	return DecodeLegacy(data)
}
