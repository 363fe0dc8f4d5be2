// Manager owns the capture run loop (spec §4.4). Constructed explicitly
// via New — never a package global (Design Notes §9: "re-express
// singleton capture manager as an explicitly constructed/threaded
// value"), so tests build their own Manager per case instead of sharing
// mutable global capture state the way the teacher's original handle
// package did.
package capture

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/gopacket/layers"

	"github.com/Lixeiden/sngrep/internal/core"
	"github.com/Lixeiden/sngrep/internal/dissect"
	"github.com/Lixeiden/sngrep/internal/metrics"
	"github.com/Lixeiden/sngrep/internal/packet"
	"github.com/Lixeiden/sngrep/internal/storage"
)

const sweepInterval = 5 * time.Second

// Config configures a Manager at construction time.
type Config struct {
	LinkType   layers.LinkType
	TLSKeyFile string // optional; empty disables TLS decryption
	TLSServer  string // tls.server addr:port hint (spec §6); required alongside TLSKeyFile
}

// Manager runs one capture/worker thread that polls every attached
// Input, dissects each frame, appends the result to Store, and fans the
// accepted Packet out to every attached Output.
type Manager struct {
	store *storage.Store
	chain *dissect.Chain

	mu      sync.Mutex
	inputs  []Input
	outputs []Output
	filter  string

	paused  atomic.Bool
	running atomic.Bool
	stopped atomic.Bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Manager bound to store. TLS keyring loading failures
// are non-fatal — TLS simply yields ErrNoKey per spec §4.1, so a bad
// keyfile path degrades to "capture without decryption" rather than
// refusing to start.
func New(cfg Config, store *storage.Store) *Manager {
	var keyring *dissect.TLSKeyring
	if cfg.TLSKeyFile != "" {
		if k, err := dissect.LoadTLSKeyring(cfg.TLSKeyFile); err == nil {
			keyring = k
		}
	}
	linkType := cfg.LinkType
	chainLinkType := dissect.LinkTypeEthernet
	if linkType == layers.LinkTypeLoop || linkType == layers.LinkTypeNull {
		chainLinkType = dissect.LinkTypeLoopback
	} else if linkType == layers.LinkTypeLinuxSLL {
		chainLinkType = dissect.LinkTypeLinuxSLL
	}

	return &Manager{
		store:  store,
		chain:  dissect.NewChain(chainLinkType, keyring, cfg.TLSServer),
		stopCh: make(chan struct{}),
	}
}

// AddInput attaches input to the run loop. Safe to call before or after
// Start; inputs added after Start begin contributing frames immediately.
// Returns an error wrapping core.ErrShutdown once the Manager has been
// stopped — a Manager is not restartable, so there is no live run loop
// left for a late input to join.
func (m *Manager) AddInput(in Input) error {
	if m.stopped.Load() {
		return fmt.Errorf("capture: add input %s: %w", in.Name(), core.ErrShutdown)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, in)
	if m.filter != "" {
		_ = in.Filter(m.filter)
	}
	if m.running.Load() {
		if err := in.Start(); err == nil {
			metrics.CaptureInputStatus.WithLabelValues(in.Name()).Set(metrics.CaptureInputRunning)
			m.wg.Add(1)
			go m.pump(in)
		}
	}
	return nil
}

// AddOutput attaches output to the fan-out list. Returns an error
// wrapping core.ErrShutdown once the Manager has been stopped.
func (m *Manager) AddOutput(out Output) error {
	if m.stopped.Load() {
		return fmt.Errorf("capture: add output: %w", core.ErrShutdown)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outputs = append(m.outputs, out)
	return nil
}

// SetFilter applies expr to every attached input. On failure the
// manager's filter string is left unchanged and an error is returned
// (spec §4.4).
func (m *Manager) SetFilter(expr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, in := range m.inputs {
		if err := in.Filter(expr); err != nil {
			return fmt.Errorf("capture: set filter: %w", err)
		}
	}
	m.filter = expr
	return nil
}

// Start spawns the worker thread: one goroutine per input pumping
// frames into the dissector chain and storage, plus a sweep goroutine
// driving periodic TCP/IP reassembly timeouts.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running.Swap(true) {
		return fmt.Errorf("capture: manager already started")
	}
	for _, in := range m.inputs {
		if err := in.Start(); err != nil {
			return fmt.Errorf("capture: start input: %w", err)
		}
		metrics.CaptureInputStatus.WithLabelValues(in.Name()).Set(metrics.CaptureInputRunning)
		m.wg.Add(1)
		go m.pump(in)
	}
	m.wg.Add(1)
	go m.sweepLoop()
	return nil
}

// Stop destroys every input, closes every output, and joins the worker
// thread (spec §4.4: "destroys input sources, closes outputs, quits the
// loop, joins"). In-flight frames already past dissection are still
// appended; there is no per-frame cancellation.
func (m *Manager) Stop() error {
	defer m.stopped.Store(true)
	if !m.running.Swap(false) {
		return nil
	}
	close(m.stopCh)

	m.mu.Lock()
	inputs := append([]Input(nil), m.inputs...)
	outputs := append([]Output(nil), m.outputs...)
	m.mu.Unlock()

	for _, in := range inputs {
		_ = in.Stop()
		metrics.CaptureInputStatus.WithLabelValues(in.Name()).Set(metrics.CaptureInputPaused)
	}
	m.wg.Wait()
	for _, out := range outputs {
		_ = out.Close()
	}
	return nil
}

// pump drains one input's Frames channel, running each frame through
// the dissector chain and appending the result to storage, then fanning
// the accepted Packet out to every output (spec §4.3's "once per packet
// delivered to storage").
func (m *Manager) pump(in Input) {
	defer m.wg.Done()
	name := in.Name()
	for frame := range in.Frames() {
		metrics.CapturePacketsTotal.WithLabelValues(name).Inc()
		pkt, err := m.chain.Dissect(frame.Data, frame.Timestamp)
		m.drainTCP()
		if err != nil {
			metrics.DissectErrorsTotal.WithLabelValues("dissect").Inc()
			continue
		}
		if pkt == nil {
			continue
		}
		m.deliver(pkt)
	}
}

func (m *Manager) drainTCP() {
	for _, pkt := range m.chain.DrainTCPMessages() {
		m.deliver(pkt)
	}
}

func (m *Manager) deliver(pkt *packet.Packet) {
	metrics.DissectMessagesTotal.WithLabelValues(transportLabel(pkt)).Inc()
	if err := m.store.Append(pkt); err != nil {
		return
	}
	m.OutputPacket(pkt)
}

// transportLabel classifies pkt by the outermost SIP-bearing transport
// it traveled over, for the dissect_messages_total metric.
func transportLabel(pkt *packet.Packet) string {
	switch {
	case pkt.Has(packet.ProtoTLS):
		return "tls"
	case pkt.Has(packet.ProtoWS):
		return "ws"
	case pkt.Has(packet.ProtoTCP):
		return "tcp"
	default:
		return "udp"
	}
}

// OutputPacket fans pkt out to every attached Output (spec §4.4).
func (m *Manager) OutputPacket(pkt *packet.Packet) {
	m.mu.Lock()
	outputs := m.outputs
	m.mu.Unlock()
	for _, out := range outputs {
		_ = out.Write(pkt)
	}
}

func (m *Manager) sweepLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case now := <-ticker.C:
			m.chain.Sweep(now)
		}
	}
}

// Pause sets the paused flag; the run loop keeps pumping frames through
// dissection, but Store.Append rejects them while paused (spec §4.4,
// §4.6).
func (m *Manager) Pause(paused bool) {
	m.paused.Store(paused)
	m.store.Pause(paused)
}

// TogglePause flips the paused flag and returns the new value.
func (m *Manager) TogglePause() bool {
	next := !m.paused.Load()
	m.Pause(next)
	return next
}

// IsOnline reports true iff every attached input is live (spec §4.4).
func (m *Manager) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.inputs) == 0 {
		return false
	}
	for _, in := range m.inputs {
		if in.Mode() != ModeLive {
			return false
		}
	}
	return true
}

// LoadProgress reports 0..100, weighted by loaded/total across offline
// inputs (spec §4.4). Returns 100 if there are no offline inputs.
func (m *Manager) LoadProgress() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total, loaded int64
	for _, in := range m.inputs {
		if in.Mode() != ModeOffline {
			continue
		}
		total += in.TotalSize()
		loaded += in.LoadedSize()
	}
	if total == 0 {
		return 100
	}
	pct := int(loaded * 100 / total)
	if pct > 100 {
		pct = 100
	}
	return pct
}

// Status derives {Online|Offline|Mixed} x {Running|Loading|Paused} from
// input modes and flags (spec §4.4).
func (m *Manager) Status() Status {
	m.mu.Lock()
	live, offline := 0, 0
	for _, in := range m.inputs {
		if in.Mode() == ModeLive {
			live++
		} else {
			offline++
		}
	}
	m.mu.Unlock()

	online := StateOffline
	switch {
	case live > 0 && offline == 0:
		online = StateOnline
	case live > 0 && offline > 0:
		online = StateMixed
	}

	run := RunStopped
	switch {
	case !m.running.Load():
		run = RunStopped
	case m.paused.Load():
		run = RunPaused
	case m.LoadProgress() < 100:
		run = RunLoading
	default:
		run = RunRunning
	}
	return Status{Online: online, Run: run}
}
