// RemoteOutput forwards accepted packets to a remote collector using
// the HEPv3 envelope (spec §6: "output uses the newer" of the two
// accepted versions). Grounded on the teacher's
// plugins/reporter/hep/{hep.go,encoder.go}, generalized from Otus's
// fire-and-forget Kafka-adjacent reporter to a plain UDP forwarder,
// since this tool has no message-bus collaborator to hand HEP frames to.
package capture

import (
	"fmt"
	"net"

	"github.com/Lixeiden/sngrep/internal/packet"
	"github.com/Lixeiden/sngrep/pkg/hep"
)

// RemoteOutput sends every accepted packet to a remote HEP collector.
type RemoteOutput struct {
	conn      *net.UDPConn
	agentID   uint32
	authKey   string
	nodeName  string
}

// NewRemoteOutput dials collectorAddr ("host:port") over UDP.
func NewRemoteOutput(collectorAddr string, agentID uint32, authKey, nodeName string) (*RemoteOutput, error) {
	addr, err := net.ResolveUDPAddr("udp", collectorAddr)
	if err != nil {
		return nil, fmt.Errorf("capture: resolve collector address: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("capture: dial collector: %w", err)
	}
	return &RemoteOutput{conn: conn, agentID: agentID, authKey: authKey, nodeName: nodeName}, nil
}

// Write encodes pkt as a HEPv3 message and sends it to the collector.
func (o *RemoteOutput) Write(pkt *packet.Packet) error {
	hp := &hep.Packet{
		IPFamily:     4,
		ProtocolType: hep.ProtoTypeSIP,
		Timestamp:    pkt.Timestamp,
		CaptureAgent: o.agentID,
		AuthKey:      o.authKey,
		NodeName:     o.nodeName,
		Payload:      pkt.Raw(),
	}
	if len(pkt.Path) >= 2 {
		src, dst := pkt.Path[0], pkt.Path[1]
		if src.IP.Is6() {
			hp.IPFamily = 10
		}
		hp.SrcIP, hp.DstIP = src.IP.String(), dst.IP.String()
		hp.SrcPort, hp.DstPort = src.Port, dst.Port
		if src.Proto.String() == "TCP" {
			hp.Proto = 6
		} else {
			hp.Proto = 17
		}
	}

	_, err := o.conn.Write(hep.Encode(hp))
	return err
}

// Close releases the UDP socket.
func (o *RemoteOutput) Close() error {
	return o.conn.Close()
}
