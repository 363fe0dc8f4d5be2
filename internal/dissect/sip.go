// SIP dissection: start-line + header parse, Call-ID/From/To-tag/CSeq/
// method extraction, and handoff of an application/sdp body to the SDP
// dissector. Framing (finding a complete message inside a TCP byte
// stream) lives in tcp.go; this file assumes data already holds exactly
// one SIP message.
//
// Grounded on the teacher's plugins/parser/sip/{sip.go,sip_parser.go}:
// same Content-Length/CRLFCRLF framing rule, same header-folding handling,
// same set of extracted headers — generalized to also keep From/To tags
// and Replaces/Refer-To (spec §3, §4.1, §4.5) which the teacher's parser
// (which only needed coarse labels) did not.
package dissect

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// sipMethods lists the request methods this dissector recognizes as a
// valid start-line (spec §4.1's "parse start-line + headers + body").
var sipMethods = []string{
	"INVITE", "ACK", "BYE", "CANCEL", "REGISTER", "OPTIONS", "PRACK",
	"SUBSCRIBE", "NOTIFY", "PUBLISH", "INFO", "REFER", "MESSAGE", "UPDATE",
}

const sipVersion = "SIP/2.0"

// LooksLikeSIP performs the fast detect used both by the UDP dispatcher
// and the TCP framer before committing to a full parse.
func LooksLikeSIP(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	if bytes.HasPrefix(data, []byte(sipVersion+" ")) {
		return true
	}
	for _, m := range sipMethods {
		if bytes.HasPrefix(data, []byte(m)) && len(data) > len(m) && data[len(m)] == ' ' {
			return true
		}
	}
	return false
}

// SIPMessage is the record attached to a Packet at packet.ProtoSIP.
type SIPMessage struct {
	Method      string // empty for responses
	StatusCode  int    // 0 for requests
	RequestURI  string
	CallID      string
	FromURI     string
	FromTag     string
	ToURI       string
	ToTag       string
	CSeqNum     uint32
	CSeqMethod  string
	Via         []string
	ContentType string
	Body        []byte
	Media       []*MediaDescriptor // filled by the SDP dissector when ContentType is application/sdp

	// ReplacesCallID / ReferToCallID carry a cross-linked Call-ID when
	// this message's Replaces header or Refer-To's embedded Replaces
	// names another dialog (spec §4.5 step 5, attended transfer).
	ReplacesCallID string
	ReferToCallID  string
}

// IsRequest reports whether the message is a SIP request (vs. response).
func (m *SIPMessage) IsRequest() bool { return m.Method != "" }

// ParseSIP parses exactly one complete SIP message (header block already
// delimited by the caller — the TCP framer, or a full UDP datagram).
func ParseSIP(data []byte) (*SIPMessage, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: sip message too short", ErrPacketTooShort)
	}

	headerEnd := bytes.Index(data, []byte("\r\n\r\n"))
	if headerEnd == -1 {
		headerEnd = bytes.Index(data, []byte("\n\n"))
		if headerEnd == -1 {
			headerEnd = len(data)
		}
	}

	headerBlock := data[:headerEnd]
	lines := splitLines(headerBlock)
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: empty sip message", ErrDecodeSkip)
	}

	msg := &SIPMessage{Via: make([]string, 0, 2)}

	firstLine := strings.TrimSpace(lines[0])
	switch {
	case strings.HasPrefix(firstLine, sipVersion+" "):
		parts := strings.SplitN(firstLine, " ", 3)
		if len(parts) >= 2 {
			code, err := strconv.Atoi(parts[1])
			if err != nil {
				return nil, fmt.Errorf("%w: bad status line %q", ErrDecodeSkip, firstLine)
			}
			msg.StatusCode = code
		}
	default:
		parts := strings.SplitN(firstLine, " ", 3)
		if len(parts) < 2 || !LooksLikeSIP(data) {
			return nil, fmt.Errorf("%w: not a sip start-line %q", ErrDecodeSkip, firstLine)
		}
		msg.Method = parts[0]
		msg.RequestURI = parts[1]
	}

	for i := 1; i < len(lines); i++ {
		line := lines[i]
		// RFC 3261 header folding: a line starting with SP/HTAB continues the previous header.
		for i+1 < len(lines) && len(lines[i+1]) > 0 && (lines[i+1][0] == ' ' || lines[i+1][0] == '\t') {
			i++
			line = line + " " + strings.TrimSpace(lines[i])
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		colon := strings.IndexByte(line, ':')
		if colon == -1 {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(line[:colon]))
		value := strings.TrimSpace(line[colon+1:])

		switch name {
		case "call-id", "i":
			msg.CallID = value
		case "from", "f":
			uri, tag := parseURIAndTag(value)
			msg.FromURI, msg.FromTag = uri, tag
		case "to", "t":
			uri, tag := parseURIAndTag(value)
			msg.ToURI, msg.ToTag = uri, tag
		case "via", "v":
			msg.Via = append(msg.Via, value)
		case "cseq":
			num, method := parseCSeq(value)
			msg.CSeqNum, msg.CSeqMethod = num, method
		case "content-type", "c":
			msg.ContentType = strings.ToLower(value)
		case "replaces":
			msg.ReplacesCallID = parseReplacesCallID(value)
		case "refer-to", "r":
			msg.ReferToCallID = parseReferToCallID(value)
		}
	}

	if msg.CallID == "" {
		return nil, fmt.Errorf("%w: sip message missing Call-ID", ErrDecodeSkip)
	}

	bodyStart := headerEnd + 4
	if bodyStart <= len(data) {
		msg.Body = data[bodyStart:]
	}
	if msg.ContentType == "application/sdp" && len(msg.Body) > 0 {
		desc, err := ParseSDP(msg.Body)
		if err == nil {
			msg.Media = desc.Media
		}
	}

	return msg, nil
}

func splitLines(b []byte) []string {
	raw := strings.Split(string(b), "\n")
	out := make([]string, 0, len(raw))
	for _, l := range raw {
		out = append(out, strings.TrimRight(l, "\r"))
	}
	return out
}

// parseURIAndTag splits a From/To header value into its URI and tag
// parameter: `"Bob" <sip:bob@biloxi.com>;tag=456248`.
func parseURIAndTag(value string) (uri, tag string) {
	parts := strings.Split(value, ";")
	uri = strings.TrimSpace(parts[0])
	if lt := strings.IndexByte(uri, '<'); lt != -1 {
		if gt := strings.IndexByte(uri, '>'); gt > lt {
			uri = uri[lt+1 : gt]
		}
	}
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		if strings.HasPrefix(strings.ToLower(p), "tag=") {
			tag = p[len("tag="):]
		}
	}
	return uri, tag
}

func parseCSeq(value string) (num uint32, method string) {
	parts := strings.SplitN(strings.TrimSpace(value), " ", 2)
	if len(parts) == 0 {
		return 0, ""
	}
	n, _ := strconv.ParseUint(parts[0], 10, 32)
	if len(parts) == 2 {
		method = strings.TrimSpace(parts[1])
	}
	return uint32(n), method
}

// parseReplacesCallID extracts the Call-ID component of a Replaces header:
// `Replaces: 12345@192.168.1.1;to-tag=12345;from-tag=5FFE-3994`.
func parseReplacesCallID(value string) string {
	parts := strings.Split(value, ";")
	return strings.TrimSpace(parts[0])
}

// parseReferToCallID pulls an embedded Replaces Call-ID out of a Refer-To
// header's URI parameter, e.g.
// `Refer-To: <sip:b@biloxi.com?Replaces=12345%40192.168.1.1%3Bto-tag%3D...>`.
func parseReferToCallID(value string) string {
	idx := strings.Index(strings.ToLower(value), "replaces=")
	if idx == -1 {
		return ""
	}
	rest := value[idx+len("replaces="):]
	if gt := strings.IndexAny(rest, ">&"); gt != -1 {
		rest = rest[:gt]
	}
	unescaped := strings.NewReplacer("%40", "@", "%3B", ";", "%3D", "=").Replace(rest)
	parts := strings.Split(unescaped, ";")
	return strings.TrimSpace(parts[0])
}
