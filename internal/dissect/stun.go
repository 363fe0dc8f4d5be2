// STUN sniff on UDP (supplemented feature, SPEC_FULL.md §C): a magic
// cookie check ahead of the RTP/RTCP heuristic, since ICE-enabled
// deployments commonly share the same UDP 5-tuple range between STUN
// binding checks and RTP media.
package dissect

import "encoding/binary"

// stunMagicCookie is the fixed value at byte offset 4 of every STUN
// message (RFC 5389 §6).
const stunMagicCookie = 0x2112A442

// STUNRecord is the record attached to a Packet at packet.ProtoSTUN.
// Only the magic-cookie sniff is used by storage (to exclude ICE
// connectivity checks from RTP media stream accounting); the binding
// transaction's contents aren't otherwise consumed, so the record
// carries no fields beyond its own existence as a type-safe marker.
type STUNRecord struct{}

// LooksLikeSTUN checks the STUN magic cookie and the top two
// message-type bits (always 0 per RFC 5389 §6).
func LooksLikeSTUN(data []byte) bool {
	if len(data) < 8 {
		return false
	}
	if data[0]&0xC0 != 0 {
		return false
	}
	return binary.BigEndian.Uint32(data[4:8]) == stunMagicCookie
}
