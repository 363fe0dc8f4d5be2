package hep

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTripIPv4(t *testing.T) {
	p := &Packet{
		IPFamily:     2,
		Proto:        17,
		SrcIP:        "10.0.0.1",
		DstIP:        "10.0.0.2",
		SrcPort:      5060,
		DstPort:      5061,
		Timestamp:    time.Date(2026, 1, 2, 3, 4, 5, 6000, time.UTC),
		ProtocolType: ProtoTypeSIP,
		CaptureAgent: 42,
		AuthKey:      "secret",
		Payload:      []byte("INVITE sip:alice@example.com SIP/2.0\r\n"),
	}

	encoded := Encode(p)
	decoded, err := Decode(encoded)
	require.NoError(t, err)

	require.Equal(t, p.IPFamily, decoded.IPFamily)
	require.Equal(t, p.Proto, decoded.Proto)
	require.Equal(t, p.SrcIP, decoded.SrcIP)
	require.Equal(t, p.DstIP, decoded.DstIP)
	require.Equal(t, p.SrcPort, decoded.SrcPort)
	require.Equal(t, p.DstPort, decoded.DstPort)
	require.Equal(t, p.Timestamp.Unix(), decoded.Timestamp.Unix())
	require.Equal(t, p.ProtocolType, decoded.ProtocolType)
	require.Equal(t, p.CaptureAgent, decoded.CaptureAgent)
	require.Equal(t, p.AuthKey, decoded.AuthKey)
	require.Equal(t, p.Payload, decoded.Payload)
}

func TestEncodeDecodeRoundTripIPv6(t *testing.T) {
	p := &Packet{
		IPFamily:  10,
		Proto:     17,
		SrcIP:     "2001:db8::1",
		DstIP:     "2001:db8::2",
		SrcPort:   5060,
		DstPort:   5060,
		Timestamp: time.Now().UTC(),
		Payload:   []byte("OPTIONS sip:bob@example.com SIP/2.0\r\n"),
	}

	decoded, err := Decode(Encode(p))
	require.NoError(t, err)
	require.Equal(t, p.SrcIP, decoded.SrcIP)
	require.Equal(t, p.DstIP, decoded.DstIP)
}

func TestEncodeDecodeToolVendorIdentityChunks(t *testing.T) {
	p := &Packet{
		IPFamily:     2,
		SrcIP:        "10.0.0.1",
		DstIP:        "10.0.0.2",
		Timestamp:    time.Now().UTC(),
		FromIdentity: "sip:alice@example.com",
		ToIdentity:   "sip:bob@example.com",
		Payload:      []byte("x"),
	}

	decoded, err := Decode(Encode(p))
	require.NoError(t, err)
	require.Equal(t, p.FromIdentity, decoded.FromIdentity)
	require.Equal(t, p.ToIdentity, decoded.ToIdentity)
}

func TestDecodeRejectsMissingMagic(t *testing.T) {
	_, err := Decode([]byte("NOT3xx"))
	require.ErrorIs(t, err, ErrNotHEP)
}

func TestDecodeRejectsTruncatedMessage(t *testing.T) {
	p := &Packet{IPFamily: 2, SrcIP: "10.0.0.1", DstIP: "10.0.0.2", Timestamp: time.Now()}
	encoded := Encode(p)
	_, err := Decode(encoded[:len(encoded)-4])
	require.Error(t, err)
}
