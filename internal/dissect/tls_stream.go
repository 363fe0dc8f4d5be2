// tlsStream decrypts one direction of a TLS-wrapped SIP-over-TCP flow
// (spec §4.1's optional TLS leg, config key tls.server) and feeds the
// recovered plaintext through the same Content-Length framer sipStream
// uses, so SIP-over-TLS produces identical FramedMessage values to
// plaintext SIP-over-TCP. Handshake key derivation state is shared
// across both directions of a connection (connKey), since the client
// and server random nonces and the client's premaster secret are each
// observed on only one of the two directional streams tcpassembly
// hands out.
package dissect

import (
	"bytes"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/tcpassembly"
)

type tlsStream struct {
	keyring    *TLSKeyring
	state      *tlsFlowState
	fromClient bool

	raw    bytes.Buffer
	framer sipStream
}

func newTLSStream(net, transport gopacket.Flow, keyring *TLSKeyring, state *tlsFlowState, fromClient bool, out chan<- *FramedMessage) *tlsStream {
	return &tlsStream{
		keyring:    keyring,
		state:      state,
		fromClient: fromClient,
		framer:     sipStream{net: net, transport: transport, lastActivity: time.Now(), out: out},
	}
}

func (t *tlsStream) Reassembled(reassembly []tcpassembly.Reassembly) {
	for _, r := range reassembly {
		if len(r.Bytes) == 0 {
			continue
		}
		t.raw.Write(r.Bytes)
		t.framer.lastActivity = r.Seen
	}
	t.drainRecords()
}

func (t *tlsStream) ReassemblyComplete() {}

func (t *tlsStream) drainRecords() {
	for {
		data := t.raw.Bytes()
		rec, residual, err := ParseRecord(data)
		if err != nil {
			return
		}
		consumed := len(data) - len(residual)

		switch rec.ContentType {
		case tlsContentHandshake:
			parseHandshakeRecord(t.keyring, t.state, rec.Plaintext)
		case tlsContentApplicationData:
			if plain, err := t.keyring.Decrypt(t.state, rec.Plaintext, t.fromClient); err == nil {
				t.framer.buf.Write(plain)
				t.framer.drainMessages()
			}
		}
		t.raw.Next(consumed)
	}
}

// connKey canonicalizes a TCP 4-tuple so both directional streams of
// the same connection resolve to the same shared tlsFlowState.
func connKey(net, transport gopacket.Flow) string {
	fwd := net.String() + transport.String()
	rev := net.Reverse().String() + transport.Reverse().String()
	if fwd < rev {
		return fwd
	}
	return rev
}
