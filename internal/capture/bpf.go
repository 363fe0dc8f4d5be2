// BPF compilation (spec §4.2: "Filter expression is a BPF program
// installed on the device"). Grounded on the teacher's
// internal/utils/bpf.go, which compiles a libpcap filter expression via
// gopacket/pcap and converts the resulting instructions to
// golang.org/x/net/bpf's raw instruction form for afpacket's SetBPF —
// afpacket has no libpcap underneath it to compile the expression
// itself, so the conversion step is unavoidable for the live-capture
// path.
package capture

import (
	"fmt"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"golang.org/x/net/bpf"
)

const defaultSnapLen = 65536

// compileBPF compiles a libpcap filter expression into raw BPF
// instructions suitable for afpacket.TPacket.SetBPF.
func compileBPF(expr string, linkType layers.LinkType) ([]bpf.RawInstruction, error) {
	if expr == "" {
		return nil, nil
	}
	instructions, err := pcap.CompileBPFFilter(linkType, defaultSnapLen, expr)
	if err != nil {
		return nil, fmt.Errorf("capture: compile bpf %q: %w", expr, err)
	}
	raw := make([]bpf.RawInstruction, len(instructions))
	for i, ins := range instructions {
		raw[i] = bpf.RawInstruction{Op: ins.Code, Jt: ins.Jt, Jf: ins.Jf, K: ins.K}
	}
	return raw, nil
}
