// TCP dissection: stream reassembly plus a SIP message framer that
// respects Content-Length and the blank-line header/body boundary
// (spec §4.1: "reassemble the byte stream; frame complete SIP messages
// off it by Content-Length, or by the double-CRLF when Content-Length
// is 0; idle streams with no activity for 60s are torn down").
//
// Grounded on the teacher's
// internal/otus/module/capture/codec/assembly_tcp.go, which drives
// google/gopacket/tcpassembly the same way for its own protocol
// decoders; the SIP-specific framing on top is new, generalized from
// plugins/parser/sip/sip_parser.go's Content-Length handling which the
// teacher only needed for single-datagram UDP messages.
package dissect

import (
	"bytes"
	"net/netip"
	"strconv"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/tcpassembly"
)

const tcpStreamIdleTimeout = 60 * time.Second

// FramedMessage is one complete application-layer message extracted
// from a TCP stream (a SIP request/response framed by this file's SIP
// framer, or one defragmented WebSocket message payload from ws.go).
type FramedMessage struct {
	NetFlow, TransportFlow gopacket.Flow
	Payload                []byte
	LastActivity           time.Time
}

// sipStream buffers one direction of a bidirectional TCP flow and peels
// off complete SIP messages as Content-Length allows.
type sipStream struct {
	net, transport gopacket.Flow
	buf            bytes.Buffer
	lastActivity   time.Time
	out            chan<- *FramedMessage
}

func (s *sipStream) Reassembled(reassembly []tcpassembly.Reassembly) {
	for _, r := range reassembly {
		if len(r.Bytes) == 0 {
			continue
		}
		s.buf.Write(r.Bytes)
		s.lastActivity = r.Seen
	}
	s.drainMessages()
}

func (s *sipStream) ReassemblyComplete() {}

// drainMessages extracts as many complete SIP messages as the buffer
// currently holds, framing each by the header/body Content-Length rule.
func (s *sipStream) drainMessages() {
	for {
		data := s.buf.Bytes()
		headerEnd := bytes.Index(data, []byte("\r\n\r\n"))
		if headerEnd == -1 {
			return
		}
		contentLength := extractContentLength(data[:headerEnd])
		total := headerEnd + 4 + contentLength
		if len(data) < total {
			return
		}

		msg := append([]byte(nil), data[:total]...)
		s.out <- &FramedMessage{
			NetFlow: s.net, TransportFlow: s.transport,
			Payload: msg, LastActivity: s.lastActivity,
		}
		s.buf.Next(total)
	}
}

func extractContentLength(header []byte) int {
	lines := bytes.Split(header, []byte("\n"))
	for _, line := range lines {
		line = bytes.TrimRight(line, "\r")
		colon := bytes.IndexByte(line, ':')
		if colon == -1 {
			continue
		}
		name := bytes.ToLower(bytes.TrimSpace(line[:colon]))
		if string(name) == "content-length" || string(name) == "l" {
			n := 0
			for _, c := range bytes.TrimSpace(line[colon+1:]) {
				if c < '0' || c > '9' {
					n = 0
					break
				}
				n = n*10 + int(c-'0')
			}
			return n
		}
	}
	return 0
}

// StreamFactory builds a per-flow tcpassembly.Stream and publishes
// framed application messages to a single shared channel, which the
// dissector Chain reads from alongside its UDP path. New demultiplexes
// three TCP-carried transports per spec §4.1: plaintext SIP (the
// default), TLS-wrapped SIP (when tls.server names this flow's server
// endpoint and a keyring is configured), and WebSocket-framed SIP
// (content-sniffed, since RFC 7118 has no reserved port).
type StreamFactory struct {
	mu       sync.Mutex
	streams  map[string]*sipStream
	out      chan *FramedMessage
	tls      *TLSKeyring
	tlsAddr  netip.AddrPort
	tlsConns map[string]*tlsFlowState
}

// NewStreamFactory constructs a factory whose framed-message channel is
// buffered to absorb bursty reassembly without blocking the assembler.
// tlsKeyring may be nil; tlsServer may be the zero value, in which case
// no flow is ever treated as TLS-wrapped.
func NewStreamFactory(tlsKeyring *TLSKeyring, tlsServer netip.AddrPort) *StreamFactory {
	return &StreamFactory{
		streams:  make(map[string]*sipStream),
		out:      make(chan *FramedMessage, 256),
		tls:      tlsKeyring,
		tlsAddr:  tlsServer,
		tlsConns: make(map[string]*tlsFlowState),
	}
}

// Messages returns the channel framed SIP messages are published to.
func (f *StreamFactory) Messages() <-chan *FramedMessage { return f.out }

// New implements tcpassembly.StreamFactory.
func (f *StreamFactory) New(netFlow, transport gopacket.Flow) tcpassembly.Stream {
	if f.tls != nil && f.tlsAddr.IsValid() {
		dst := flowAddrPort(netFlow, transport, false)
		src := flowAddrPort(netFlow, transport, true)
		if dst == f.tlsAddr || src == f.tlsAddr {
			f.mu.Lock()
			key := connKey(netFlow, transport)
			state, ok := f.tlsConns[key]
			if !ok {
				state = &tlsFlowState{}
				f.tlsConns[key] = state
			}
			f.mu.Unlock()
			return newTLSStream(netFlow, transport, f.tls, state, dst == f.tlsAddr, f.out)
		}
	}

	s := &sipStream{net: netFlow, transport: transport, lastActivity: time.Now(), out: f.out}
	f.mu.Lock()
	f.streams[netFlow.String()+transport.String()] = s
	f.mu.Unlock()
	return &sipOrWSStream{sip: s, out: f.out}
}

// flowAddrPort resolves one endpoint of a flow pair to a netip.AddrPort
// for comparison against a configured tls.server hint.
func flowAddrPort(netFlow, transport gopacket.Flow, source bool) netip.AddrPort {
	var ipStr, portStr string
	if source {
		ipStr, portStr = netFlow.Src().String(), transport.Src().String()
	} else {
		ipStr, portStr = netFlow.Dst().String(), transport.Dst().String()
	}
	ip, err := netip.ParseAddr(ipStr)
	if err != nil {
		return netip.AddrPort{}
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return netip.AddrPort{}
	}
	return netip.AddrPortFrom(ip, uint16(port))
}

// sipOrWSStream defers the plaintext-vs-WebSocket decision until the
// first reassembled bytes arrive, since neither framing has a reserved
// port to dispatch on up front (spec §4.1).
type sipOrWSStream struct {
	sip     *sipStream
	ws      *wsStream
	out     chan<- *FramedMessage
	decided bool
}

func (s *sipOrWSStream) Reassembled(reassembly []tcpassembly.Reassembly) {
	if !s.decided {
		for _, r := range reassembly {
			if len(r.Bytes) == 0 {
				continue
			}
			if LooksLikeWSFrame(r.Bytes) {
				s.ws = newWSStream(s.sip.net, s.sip.transport, s.out)
			}
			s.decided = true
			break
		}
	}
	if s.ws != nil {
		s.ws.Reassembled(reassembly)
		return
	}
	s.sip.Reassembled(reassembly)
}

func (s *sipOrWSStream) ReassemblyComplete() {}

// IdleBefore returns the idle cutoff (now minus the stream idle timeout)
// that Chain.Sweep passes to the assembler's FlushOlderThan.
func (f *StreamFactory) IdleBefore() time.Time {
	return time.Now().Add(-tcpStreamIdleTimeout)
}
