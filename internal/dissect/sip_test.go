package dissect

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLooksLikeSIPRequestAndResponse(t *testing.T) {
	require.True(t, LooksLikeSIP([]byte("INVITE sip:bob@biloxi.com SIP/2.0\r\n")))
	require.True(t, LooksLikeSIP([]byte("SIP/2.0 200 OK\r\n")))
	require.False(t, LooksLikeSIP([]byte("GET / HTTP/1.1\r\n")))
	require.False(t, LooksLikeSIP(nil))
}

func TestParseSIPInviteRequest(t *testing.T) {
	raw := "INVITE sip:bob@biloxi.com SIP/2.0\r\n" +
		"Via: SIP/2.0/UDP pc33.atlanta.com;branch=z9hG4bK776asdhds\r\n" +
		"To: Bob <sip:bob@biloxi.com>\r\n" +
		"From: Alice <sip:alice@atlanta.com>;tag=1928301774\r\n" +
		"Call-ID: a84b4c76e66710@pc33.atlanta.com\r\n" +
		"CSeq: 314159 INVITE\r\n" +
		"Content-Type: application/sdp\r\n" +
		"Content-Length: 4\r\n" +
		"\r\n" +
		"x=1\n"

	msg, err := ParseSIP([]byte(raw))
	require.NoError(t, err)
	require.Equal(t, "INVITE", msg.Method)
	require.True(t, msg.IsRequest())
	require.Equal(t, "sip:bob@biloxi.com", msg.RequestURI)
	require.Equal(t, "a84b4c76e66710@pc33.atlanta.com", msg.CallID)
	require.Equal(t, "sip:alice@atlanta.com", msg.FromURI)
	require.Equal(t, "1928301774", msg.FromTag)
	require.Equal(t, "sip:bob@biloxi.com", msg.ToURI)
	require.Equal(t, "", msg.ToTag)
	require.Equal(t, uint32(314159), msg.CSeqNum)
	require.Equal(t, "INVITE", msg.CSeqMethod)
	require.Len(t, msg.Via, 1)
	require.Equal(t, "application/sdp", msg.ContentType)
}

func TestParseSIPResponse(t *testing.T) {
	raw := "SIP/2.0 200 OK\r\n" +
		"Via: SIP/2.0/UDP pc33.atlanta.com;branch=z9hG4bK776asdhds\r\n" +
		"To: Bob <sip:bob@biloxi.com>;tag=a6c85cf\r\n" +
		"From: Alice <sip:alice@atlanta.com>;tag=1928301774\r\n" +
		"Call-ID: a84b4c76e66710@pc33.atlanta.com\r\n" +
		"CSeq: 314159 INVITE\r\n" +
		"\r\n"

	msg, err := ParseSIP([]byte(raw))
	require.NoError(t, err)
	require.False(t, msg.IsRequest())
	require.Equal(t, 200, msg.StatusCode)
	require.Equal(t, "a6c85cf", msg.ToTag)
}

func TestParseSIPHeaderFolding(t *testing.T) {
	raw := "OPTIONS sip:bob@biloxi.com SIP/2.0\r\n" +
		"Via: SIP/2.0/UDP pc33.atlanta.com\r\n" +
		" ;branch=z9hG4bK776asdhds\r\n" +
		"To: Bob <sip:bob@biloxi.com>\r\n" +
		"From: Alice <sip:alice@atlanta.com>;tag=1928301774\r\n" +
		"Call-ID: folded-call\r\n" +
		"CSeq: 1 OPTIONS\r\n" +
		"\r\n"

	msg, err := ParseSIP([]byte(raw))
	require.NoError(t, err)
	require.Len(t, msg.Via, 1)
	require.Contains(t, msg.Via[0], "branch=z9hG4bK776asdhds")
}

func TestParseSIPCompactHeaders(t *testing.T) {
	raw := "BYE sip:bob@biloxi.com SIP/2.0\r\n" +
		"v: SIP/2.0/UDP pc33.atlanta.com\r\n" +
		"t: Bob <sip:bob@biloxi.com>\r\n" +
		"f: Alice <sip:alice@atlanta.com>;tag=1928301774\r\n" +
		"i: compact-call\r\n" +
		"CSeq: 2 BYE\r\n" +
		"\r\n"

	msg, err := ParseSIP([]byte(raw))
	require.NoError(t, err)
	require.Equal(t, "compact-call", msg.CallID)
	require.Equal(t, "1928301774", msg.FromTag)
}

func TestParseSIPMissingCallIDErrors(t *testing.T) {
	raw := "OPTIONS sip:bob@biloxi.com SIP/2.0\r\n" +
		"CSeq: 1 OPTIONS\r\n" +
		"\r\n"
	_, err := ParseSIP([]byte(raw))
	require.Error(t, err)
}

func TestParseSIPTooShortErrors(t *testing.T) {
	_, err := ParseSIP([]byte("hi"))
	require.ErrorIs(t, err, ErrPacketTooShort)
}

func TestParseSIPNotAStartLineErrors(t *testing.T) {
	_, err := ParseSIP([]byte("not a sip message at all\r\n\r\n"))
	require.Error(t, err)
}

func TestParseSIPReplacesHeader(t *testing.T) {
	raw := "INVITE sip:bob@biloxi.com SIP/2.0\r\n" +
		"Call-ID: new-call\r\n" +
		"CSeq: 1 INVITE\r\n" +
		"Replaces: 12345@192.168.1.1;to-tag=12345;from-tag=5FFE-3994\r\n" +
		"\r\n"
	msg, err := ParseSIP([]byte(raw))
	require.NoError(t, err)
	require.Equal(t, "12345@192.168.1.1", msg.ReplacesCallID)
}

func TestParseSIPReferToEmbeddedReplaces(t *testing.T) {
	raw := "REFER sip:bob@biloxi.com SIP/2.0\r\n" +
		"Call-ID: transfer-call\r\n" +
		"CSeq: 1 REFER\r\n" +
		"Refer-To: <sip:b@biloxi.com?Replaces=12345%40192.168.1.1%3Bto-tag%3D12345>\r\n" +
		"\r\n"
	msg, err := ParseSIP([]byte(raw))
	require.NoError(t, err)
	require.Equal(t, "12345@192.168.1.1", msg.ReferToCallID)
}

func TestParseSIPSDPBodyExtractsMedia(t *testing.T) {
	body := "v=0\r\no=alice 123 456 IN IP4 127.0.0.1\r\n" +
		"c=IN IP4 127.0.0.1\r\nm=audio 49170 RTP/AVP 0\r\n"
	raw := "INVITE sip:bob@biloxi.com SIP/2.0\r\n" +
		"Call-ID: sdp-call\r\n" +
		"CSeq: 1 INVITE\r\n" +
		"Content-Type: application/sdp\r\n" +
		"Content-Length: " + itoa(len(body)) + "\r\n" +
		"\r\n" + body

	msg, err := ParseSIP([]byte(raw))
	require.NoError(t, err)
	require.NotEmpty(t, msg.Media)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
