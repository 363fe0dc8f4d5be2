// Message is a successfully parsed SIP request or response (spec §3).
package storage

import (
	"time"

	"github.com/Lixeiden/sngrep/internal/dissect"
	"github.com/Lixeiden/sngrep/internal/packet"
)

// Message holds one dissected SIP line plus the Packet it came from.
// Retained for the lifetime of its owning Call.
type Message struct {
	Packet *packet.Packet
	SIP    *dissect.SIPMessage

	Timestamp time.Time
	Method    string // empty for responses
	Status    int    // 0 for requests
	CallID    string
	FromTag   string
	ToTag     string
	CSeqNum   uint32
	CSeqMethod string
	RequestURI string

	Media []*dissect.MediaDescriptor
}

func newMessage(pkt *packet.Packet, sip *dissect.SIPMessage) *Message {
	return &Message{
		Packet:     pkt,
		SIP:        sip,
		Timestamp:  pkt.Timestamp,
		Method:     sip.Method,
		Status:     sip.StatusCode,
		CallID:     sip.CallID,
		FromTag:    sip.FromTag,
		ToTag:      sip.ToTag,
		CSeqNum:    sip.CSeqNum,
		CSeqMethod: sip.CSeqMethod,
		RequestURI: sip.RequestURI,
		Media:      sip.Media,
	}
}

// IsRequest reports whether the owning SIP message was a request.
func (m *Message) IsRequest() bool { return m.Method != "" }
