// Link-layer dissection: Ethernet, Linux "cooked" capture (SLL, used
// by the "any" pseudo-device), and the BSD loopback/null header. This
// is the root of the dissector chain (spec §4.1): it only strips the
// link header and reports which network-layer protocol follows.
//
// Grounded on the teacher's internal/otus/module/capture/codec/decoder.go,
// which drives gopacket's DecodingLayerParser over exactly this layer
// set; reused here since the pack's capture stack already standardizes
// on google/gopacket for link/network decode.
package dissect

import (
	"encoding/binary"
	"fmt"

	"github.com/google/gopacket/layers"
)

// LinkType mirrors the handful of pcap DLT_* values the capture package
// can hand us (see internal/capture).
type LinkType int

const (
	LinkTypeEthernet LinkType = iota
	LinkTypeLinuxSLL
	LinkTypeLoopback
	LinkTypeRaw
)

// LinkFrame is the record attached to a Packet at packet.ProtoLink.
type LinkFrame struct {
	SrcMAC, DstMAC string
	NextProto      layers.EthernetType
}

// ParseLink strips the link-layer header for linkType and returns the
// network-layer payload plus what follows it.
func ParseLink(linkType LinkType, data []byte) (*LinkFrame, []byte, error) {
	switch linkType {
	case LinkTypeEthernet:
		return parseEthernet(data)
	case LinkTypeLinuxSLL:
		return parseLinuxSLL(data)
	case LinkTypeLoopback:
		return parseLoopback(data)
	case LinkTypeRaw:
		return &LinkFrame{NextProto: guessRawIPVersion(data)}, data, nil
	default:
		return nil, nil, fmt.Errorf("%w: link type %d", ErrUnsupportedProto, linkType)
	}
}

func parseEthernet(data []byte) (*LinkFrame, []byte, error) {
	var eth layers.Ethernet
	if err := eth.DecodeFromBytes(data, gopacketNilFeedback{}); err != nil {
		return nil, nil, fmt.Errorf("%w: ethernet: %v", ErrDecodeSkip, err)
	}
	return &LinkFrame{
		SrcMAC:    eth.SrcMAC.String(),
		DstMAC:    eth.DstMAC.String(),
		NextProto: eth.EthernetType,
	}, eth.Payload, nil
}

// parseLinuxSLL handles DLT_LINUX_SLL (the "any" interface pseudo
// header): 2 bytes packet type, 2 bytes ARPHRD type, 2 bytes address
// length, 8 bytes address, 2 bytes protocol.
func parseLinuxSLL(data []byte) (*LinkFrame, []byte, error) {
	const sllHeaderLen = 16
	if len(data) < sllHeaderLen {
		return nil, nil, fmt.Errorf("%w: linux sll header", ErrPacketTooShort)
	}
	proto := layers.EthernetType(binary.BigEndian.Uint16(data[14:16]))
	return &LinkFrame{NextProto: proto}, data[sllHeaderLen:], nil
}

// parseLoopback handles DLT_NULL/DLT_LOOP: a 4-byte host-byte-order (or
// big-endian, for DLT_LOOP) address family field ahead of the IP header.
func parseLoopback(data []byte) (*LinkFrame, []byte, error) {
	const loopbackHeaderLen = 4
	if len(data) < loopbackHeaderLen {
		return nil, nil, fmt.Errorf("%w: loopback header", ErrPacketTooShort)
	}
	family := binary.LittleEndian.Uint32(data[:4])
	if family > 0xFFFF {
		family = binary.BigEndian.Uint32(data[:4])
	}
	proto := layers.EthernetTypeIPv4
	if family == 24 || family == 28 || family == 30 {
		proto = layers.EthernetTypeIPv6
	}
	return &LinkFrame{NextProto: proto}, data[loopbackHeaderLen:], nil
}

func guessRawIPVersion(data []byte) layers.EthernetType {
	if len(data) > 0 && data[0]>>4 == 6 {
		return layers.EthernetTypeIPv6
	}
	return layers.EthernetTypeIPv4
}

// gopacketNilFeedback satisfies gopacket.DecodeFeedback with no-ops;
// the chain doesn't need gopacket's truncation tracking since each
// dissector already reports ErrPacketTooShort itself.
type gopacketNilFeedback struct{}

func (gopacketNilFeedback) SetTruncated() {}
