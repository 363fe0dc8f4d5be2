package dissect

import (
	"errors"
	"fmt"
)

// Sentinel errors for the dissector chain (spec §7). Chain.Dissect
// returns them to its caller; capture.Manager counts each one in
// DissectErrorsTotal and drops the packet.
var (
	// ErrDecodeSkip marks a malformed or uninteresting packet at any
	// dissector layer. The packet is dropped silently.
	ErrDecodeSkip = errors.New("dissect: decode skip")

	// ErrPacketTooShort means fewer bytes were available than the
	// dissector's minimum header length.
	ErrPacketTooShort = errors.New("dissect: packet too short")

	// ErrUnsupportedProto means the dissector recognized the protocol
	// field but has no handler registered for its value.
	ErrUnsupportedProto = errors.New("dissect: unsupported protocol")

	// ErrNeedMoreData means a stream dissector (TCP SIP framer) has a
	// partial message and must wait for more bytes; not a failure.
	ErrNeedMoreData = errors.New("dissect: need more data")

	// ErrNoKey means a TLS/WS dissector has no keying material
	// configured and must yield without decoding further.
	ErrNoKey = errors.New("dissect: no decryption key configured")
)

// IsSkip reports whether err should be treated as a silent, counted drop
// rather than propagated.
func IsSkip(err error) bool {
	return errors.Is(err, ErrDecodeSkip) ||
		errors.Is(err, ErrPacketTooShort) ||
		errors.Is(err, ErrUnsupportedProto) ||
		errors.Is(err, ErrNoKey)
}

// wrapSkip wraps err from a third-party decoder (gopacket, pion, ...) as
// ErrDecodeSkip so the chain drops it like any other malformed packet.
func wrapSkip(proto string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrDecodeSkip, proto, err)
}
