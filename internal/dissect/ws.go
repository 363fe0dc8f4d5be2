// WebSocket dissection (spec §4.1, optional): "unmask and defragment
// WS frames carrying SIP (RFC 7118); hand the reassembled text message
// to the SIP dissector." Grounded on gobwas/ws: ws.ReadHeader parses
// each frame header and ws.Cipher unmasks the payload, so this file
// only coalesces continuation frames and recognizes SIP-over-WS
// framing, not reimplement RFC 6455 header parsing.
package dissect

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/tcpassembly"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// WSMessage is the record attached to a Packet at packet.ProtoWS: a
// defragmented, unmasked WebSocket message payload.
type WSMessage struct {
	OpCode  ws.OpCode
	Payload []byte
}

// wsFlowState buffers continuation frames across TCP segments for one
// WebSocket connection until a FIN frame completes the message.
type wsFlowState struct {
	opCode  ws.OpCode
	pending []byte
}

// ParseWSFrame reads one WebSocket frame from data (as delivered by the
// TCP stream reassembler) and folds it into state. Returns a non-nil
// message only once a complete (possibly multi-frame) message has been
// assembled; otherwise ErrNeedMoreData signals the caller to keep
// buffering subsequent segments under the same flow state.
func ParseWSFrame(state *wsFlowState, data []byte) (*WSMessage, int, error) {
	r := bytes.NewReader(data)
	header, err := ws.ReadHeader(r)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, 0, ErrNeedMoreData
		}
		return nil, 0, fmt.Errorf("%w: ws header: %v", ErrDecodeSkip, err)
	}
	if int64(r.Len()) < int64(header.Length) {
		return nil, 0, ErrNeedMoreData
	}

	payload := make([]byte, header.Length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, 0, ErrNeedMoreData
	}
	if header.Masked {
		ws.Cipher(payload, header.Mask, 0)
	}
	consumed := len(data) - r.Len()

	if header.OpCode == ws.OpClose || header.OpCode == ws.OpPing || header.OpCode == ws.OpPong {
		return nil, consumed, fmt.Errorf("%w: ws control frame", ErrDecodeSkip)
	}

	if header.OpCode != ws.OpContinuation {
		state.opCode = header.OpCode
		state.pending = state.pending[:0]
	}
	state.pending = append(state.pending, payload...)

	if !header.Fin {
		return nil, consumed, ErrNeedMoreData
	}

	msg := &WSMessage{OpCode: state.opCode, Payload: append([]byte(nil), state.pending...)}
	state.pending = state.pending[:0]
	return msg, consumed, nil
}

// LooksLikeWSFrame heuristically distinguishes a WebSocket frame header
// from plaintext SIP at the start of a TCP stream: a SIP start-line
// always begins with a printable ASCII method name or "SIP/2.0", while
// a WS frame's first byte packs FIN/RSV/opcode bits that fall outside
// that range for every opcode gobwas/ws defines.
func LooksLikeWSFrame(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	return data[0] < 0x20 || data[0] > 0x7e
}

// wsStream buffers one direction of a WebSocket-carried SIP flow and
// publishes each defragmented WS message as a FramedMessage, since
// RFC 7118 makes the WS message boundary the SIP message boundary —
// no further Content-Length framing is needed on top.
type wsStream struct {
	net, transport gopacket.Flow
	state          wsFlowState
	buf            []byte
	lastActivity   time.Time
	out            chan<- *FramedMessage
}

func newWSStream(net, transport gopacket.Flow, out chan<- *FramedMessage) *wsStream {
	return &wsStream{net: net, transport: transport, lastActivity: time.Now(), out: out}
}

func (s *wsStream) Reassembled(reassembly []tcpassembly.Reassembly) {
	for _, r := range reassembly {
		if len(r.Bytes) == 0 {
			continue
		}
		s.buf = append(s.buf, r.Bytes...)
		s.lastActivity = r.Seen
	}
	s.drainFrames()
}

func (s *wsStream) ReassemblyComplete() {}

func (s *wsStream) drainFrames() {
	for {
		msg, consumed, err := ParseWSFrame(&s.state, s.buf)
		if err != nil {
			if err == ErrNeedMoreData && consumed == 0 {
				return
			}
			if consumed == 0 {
				return
			}
			s.buf = s.buf[consumed:]
			continue
		}
		s.buf = s.buf[consumed:]
		if msg != nil && (msg.OpCode == ws.OpText || msg.OpCode == ws.OpBinary) {
			s.out <- &FramedMessage{NetFlow: s.net, TransportFlow: s.transport, Payload: msg.Payload, LastActivity: s.lastActivity}
		}
	}
}

// unmaskFrame is a thin wrapper over wsutil.ReadData for a caller that
// holds an io.Reader rather than a byte slice. Nothing in this module
// calls it; the stream path uses ParseWSFrame.
func unmaskFrame(r io.Reader, state ws.State) ([]byte, ws.OpCode, error) {
	payload, opCode, err := wsutil.ReadData(r, state)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: wsutil read: %v", ErrDecodeSkip, err)
	}
	return payload, opCode, nil
}
