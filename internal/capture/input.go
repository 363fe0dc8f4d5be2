// Package capture implements the capture manager and its input/output
// sources (spec §4.2-§4.4): live/offline/remote frame sources feeding a
// single run loop, file/remote sinks fanned out to once a packet is
// accepted, all owned by an explicitly constructed, non-singleton
// Manager (Design Notes §9 — generalized from the teacher's package
// global capture handle into a constructed value every test builds its
// own copy of).
package capture

import "time"

// Mode classifies an Input as live or offline, driving Manager.Status
// and IsOnline (spec §4.2, §4.4).
type Mode int

const (
	ModeLive Mode = iota
	ModeOffline
)

// Frame is one captured link-layer frame with its capture timestamp,
// handed to the dissector chain by the manager's run loop.
type Frame struct {
	Timestamp time.Time
	Data      []byte
}

// Input is a capture frame source (spec §4.2): live interface, offline
// file, or remote HEP listener.
type Input interface {
	// Name identifies the input for logging and metric labels (the
	// interface name, file path, or listen address).
	Name() string
	// Start begins producing frames on Frames(). Returns once the
	// source is ready (device opened, file opened, socket bound).
	Start() error
	// Stop tears the source down; Frames() is closed afterward.
	Stop() error
	// Filter installs a BPF expression on this input; offline/remote
	// inputs that can't apply one return an error naming why.
	Filter(expr string) error
	Mode() Mode
	// TotalSize is the input's known total size in bytes, 0 if
	// unbounded (live, remote).
	TotalSize() int64
	// LoadedSize is bytes consumed so far.
	LoadedSize() int64
	// Frames is the channel of captured frames; closed when the input
	// stops, whether by Stop or (offline) reaching EOF on its own.
	Frames() <-chan Frame
}
