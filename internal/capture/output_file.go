// FileOutput writes accepted packets to a pcap capture file (spec §6:
// "Read and written bit-identical"). Grounded on gopacket/pcapgo, the
// same family the teacher's offline input reads with.
package capture

import (
	"fmt"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/Lixeiden/sngrep/internal/packet"
)

// FileOutput persists every accepted packet's raw bytes to a pcap file.
type FileOutput struct {
	file   *os.File
	writer *pcapgo.Writer
}

// NewFileOutput creates (or truncates) path and writes a pcap file
// header sized for linkType.
func NewFileOutput(path string, linkType layers.LinkType) (*FileOutput, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("capture: create output file: %w", err)
	}
	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(defaultSnapLen, linkType); err != nil {
		f.Close()
		return nil, fmt.Errorf("capture: write pcap header: %w", err)
	}
	return &FileOutput{file: f, writer: w}, nil
}

// Write appends pkt's raw bytes as one pcap record.
func (o *FileOutput) Write(pkt *packet.Packet) error {
	raw := pkt.Raw()
	ci := gopacket.CaptureInfo{
		Timestamp:     pkt.Timestamp,
		CaptureLength: len(raw),
		Length:        len(raw),
	}
	return o.writer.WritePacket(ci, raw)
}

// Close flushes and closes the underlying file.
func (o *FileOutput) Close() error {
	return o.file.Close()
}
