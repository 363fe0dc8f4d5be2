// RemoteInput listens for HEP-encapsulated frames forwarded by another
// probe (spec §4.2's "Remote encapsulation (optional)"). Grounded on the
// teacher's plugins/reporter/hep pairing (which only sends); this is the
// receive side, a plain net.UDPConn loop since nothing in the pack
// carries a dedicated HEP server library.
package capture

import (
	"fmt"
	"net"
	"sync/atomic"

	"github.com/Lixeiden/sngrep/internal/metrics"
	"github.com/Lixeiden/sngrep/pkg/hep"
)

const remoteReadBufSize = 65536

// RemoteInput accepts HEPv2/HEPv3 UDP datagrams and forwards the
// decapsulated inner payload as a Frame.
type RemoteInput struct {
	listenAddr string

	conn   *net.UDPConn
	frames chan Frame
	loaded atomic.Int64
	closed atomic.Bool
}

// NewRemoteInput constructs a RemoteInput bound to listenAddr
// ("host:port").
func NewRemoteInput(listenAddr string) *RemoteInput {
	return &RemoteInput{listenAddr: listenAddr, frames: make(chan Frame, 1024)}
}

func (r *RemoteInput) Name() string       { return r.listenAddr }
func (r *RemoteInput) Mode() Mode          { return ModeLive }
func (r *RemoteInput) TotalSize() int64    { return 0 }
func (r *RemoteInput) LoadedSize() int64   { return r.loaded.Load() }
func (r *RemoteInput) Frames() <-chan Frame { return r.frames }

// Filter is not supported on remote inputs: there's no device to attach
// a BPF program to — the remote probe does its own capture-side
// filtering. Matches spec §4.4's "on failure, the manager's filter
// string remains unset and an error is returned" contract.
func (r *RemoteInput) Filter(string) error {
	return fmt.Errorf("capture: remote input does not support BPF filters")
}

// Start binds the UDP listener and begins the receive loop.
func (r *RemoteInput) Start() error {
	addr, err := net.ResolveUDPAddr("udp", r.listenAddr)
	if err != nil {
		return fmt.Errorf("capture: resolve remote listen address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("capture: listen %s: %w", r.listenAddr, err)
	}
	r.conn = conn
	go r.readLoop()
	return nil
}

func (r *RemoteInput) readLoop() {
	defer close(r.frames)
	buf := make([]byte, remoteReadBufSize)
	for {
		n, err := r.conn.Read(buf)
		if err != nil {
			return
		}
		if r.closed.Load() {
			return
		}
		r.loaded.Add(int64(n))

		pkt, err := hep.DecodeAny(buf[:n])
		if err != nil {
			metrics.CaptureDropsTotal.WithLabelValues(r.listenAddr, "hep_decode").Inc()
			continue // malformed envelope: drop, not fatal (spec §4.1 policy)
		}
		r.frames <- Frame{Timestamp: pkt.Timestamp, Data: pkt.Payload}
	}
}

// Stop closes the UDP socket, ending the receive loop.
func (r *RemoteInput) Stop() error {
	r.closed.Store(true)
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
