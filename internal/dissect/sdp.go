// SDP dissection. Per spec §4.1: "c= sets session or per-media connection
// address. m= opens a new media descriptor. a=rtpmap fills the format
// name for a payload-type code; a=rtcp sets RTCP port; a=channel sets an
// MRCP channel tag. Unknown payload codes default to an id-only record so
// later RTP frames still match."
//
// The teacher hand-rolls this (plugins/parser/sip/sip.go's sdpInfo /
// mediaStream); arzzra-soft_phone's go.mod already carries a real RFC 4566
// library (pion/sdp/v3) for exactly this concern, so this dissector uses
// that instead of re-deriving SDP grammar by hand.
package dissect

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"
)

// PayloadFormat is one entry of an m= line's format list, labeled by a
// later a=rtpmap (or left id-only if the code is never mapped).
type PayloadFormat struct {
	PayloadType int
	Codec       string // e.g. "PCMU/8000"; empty if never rtpmapped
}

// MediaDescriptor is an RTP stream descriptor (spec §3): a source/dest
// Address pair (dest resolved here, source resolved once the emitting
// endpoint is known to storage) and a payload-type list, parsed from one
// SDP m= line.
type MediaDescriptor struct {
	MediaType string // "audio", "video", "application" (MRCP), ...
	Transport string // "RTP/AVP", "RTP/SAVP", "UDP/TLS/RTP/SAVPF", ...
	ConnAddr  string // resolved connection address (per-media, else session)
	Port      int
	RTCPPort  int  // explicit a=rtcp: port, or Port+1 when unset and rtcpMux is false
	RTCPMux   bool // a=rtcp-mux present
	Direction string // sendrecv/sendonly/recvonly/inactive
	Channel   string // a=channel (MRCP)
	Formats   []PayloadFormat
}

// SDPDescription is the record attached to a Packet at packet.ProtoSDP,
// and embedded into SIPMessage.Media for storage.
type SDPDescription struct {
	SessionConnAddr string
	Media           []*MediaDescriptor
}

// ParseSDP decodes an SDP body via pion/sdp/v3 and lifts it into our
// MediaDescriptor shape.
func ParseSDP(body []byte) (*SDPDescription, error) {
	var sd sdp.SessionDescription
	if err := sd.Unmarshal(body); err != nil {
		return nil, fmt.Errorf("%w: sdp unmarshal: %v", ErrDecodeSkip, err)
	}

	desc := &SDPDescription{}
	if sd.ConnectionInformation != nil && sd.ConnectionInformation.Address != nil {
		desc.SessionConnAddr = sd.ConnectionInformation.Address.Address
	}

	for _, m := range sd.MediaDescriptions {
		md := &MediaDescriptor{
			MediaType: m.MediaName.Media,
			Transport: strings.Join(m.MediaName.Protos, "/"),
			Port:      m.MediaName.Port.Value,
			ConnAddr:  desc.SessionConnAddr,
			Direction: "sendrecv",
		}
		if m.ConnectionInformation != nil && m.ConnectionInformation.Address != nil {
			md.ConnAddr = m.ConnectionInformation.Address.Address
		}

		rtpmap := make(map[int]string, len(m.MediaName.Formats))
		for _, attr := range m.Attributes {
			switch strings.ToLower(attr.Key) {
			case "rtpmap":
				pt, codec, ok := parseRTPMap(attr.Value)
				if ok {
					rtpmap[pt] = codec
				}
			case "rtcp":
				if port, err := strconv.Atoi(firstField(attr.Value)); err == nil {
					md.RTCPPort = port
				}
			case "rtcp-mux":
				md.RTCPMux = true
			case "channel":
				md.Channel = attr.Value
			case "sendonly", "recvonly", "inactive", "sendrecv":
				md.Direction = strings.ToLower(attr.Key)
			}
		}

		if md.RTCPPort == 0 && !md.RTCPMux {
			md.RTCPPort = md.Port + 1
		}

		for _, f := range m.MediaName.Formats {
			pt, err := strconv.Atoi(f)
			if err != nil {
				continue
			}
			// Unknown payload codes default to an id-only record so later
			// RTP frames still match on payload type alone (spec §4.1).
			md.Formats = append(md.Formats, PayloadFormat{PayloadType: pt, Codec: rtpmap[pt]})
		}

		desc.Media = append(desc.Media, md)
	}

	return desc, nil
}

// parseRTPMap parses an `a=rtpmap:<pt> <encoding>/<clock>[/<params>]` value
// (the part after "rtpmap:" has already been split off by the attribute
// key/value split, so value here is `"<pt> <encoding>/<clock>..."`).
func parseRTPMap(value string) (pt int, codec string, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(value), " ", 2)
	if len(parts) != 2 {
		return 0, "", false
	}
	n, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, "", false
	}
	return n, strings.TrimSpace(parts[1]), true
}

func firstField(value string) string {
	parts := strings.Fields(value)
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}
