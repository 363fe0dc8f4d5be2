// OfflineInput reads a pcap/pcap-ng capture file end to end, then
// self-closes (spec §4.2: "Terminates when EOF is reached (the source
// self-destroys)"). Grounded on the teacher's internal/source/file
// source, which opens the same pcap.OpenOffline handle.
package capture

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/google/gopacket/pcap"
)

// OfflineInput captures from a pre-recorded capture file.
type OfflineInput struct {
	path      string
	totalSize int64

	handle *pcap.Handle
	frames chan Frame
	loaded atomic.Int64
}

// NewOfflineInput constructs an OfflineInput for the file at path.
// TotalSize (spec's total_size, used for LoadProgress) is read from the
// file's own size on disk.
func NewOfflineInput(path string) (*OfflineInput, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	return &OfflineInput{path: path, totalSize: info.Size(), frames: make(chan Frame, 1024)}, nil
}

func (o *OfflineInput) Name() string      { return o.path }
func (o *OfflineInput) Mode() Mode         { return ModeOffline }
func (o *OfflineInput) TotalSize() int64   { return o.totalSize }
func (o *OfflineInput) LoadedSize() int64  { return o.loaded.Load() }
func (o *OfflineInput) Frames() <-chan Frame { return o.frames }

// Start opens the capture file and begins reading it into Frames on a
// background goroutine; the goroutine closes Frames and returns on EOF
// without needing Stop to be called.
func (o *OfflineInput) Start() error {
	handle, err := pcap.OpenOffline(o.path)
	if err != nil {
		return err
	}
	o.handle = handle
	go o.readLoop()
	return nil
}

func (o *OfflineInput) readLoop() {
	defer close(o.frames)
	defer o.handle.Close()
	for {
		data, ci, err := o.handle.ZeroCopyReadPacketData()
		if err != nil {
			return // EOF or closed handle: self-destroy per spec §4.2.
		}
		o.loaded.Add(int64(ci.CaptureLength))
		o.frames <- Frame{Timestamp: ci.Timestamp, Data: append([]byte(nil), data...)}
	}
}

// Stop closes the pcap handle early, interrupting the read loop.
func (o *OfflineInput) Stop() error {
	if o.handle != nil {
		o.handle.Close()
	}
	return nil
}

// Filter installs a BPF expression via libpcap directly (pcap.Handle
// natively supports this, unlike afpacket).
func (o *OfflineInput) Filter(expr string) error {
	if o.handle == nil {
		return fmt.Errorf("capture: filter set before Start")
	}
	return o.handle.SetBPFFilter(expr)
}
