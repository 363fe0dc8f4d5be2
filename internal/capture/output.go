// Output is a capture sink (spec §4.3): the manager calls Write once
// per packet accepted into storage, and Close to flush/release it.
package capture

import "github.com/Lixeiden/sngrep/internal/packet"

// Output receives every accepted packet for forwarding or persistence.
type Output interface {
	Write(pkt *packet.Packet) error
	Close() error
}
