package capture

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/require"

	"github.com/Lixeiden/sngrep/internal/core"
	"github.com/Lixeiden/sngrep/internal/packet"
	"github.com/Lixeiden/sngrep/internal/storage"
)

type fakeInput struct {
	name   string
	mode   Mode
	total  int64
	loaded int64

	mu          sync.Mutex
	frames      chan Frame
	filterCalls []string
	filterErr   error
	startErr    error
	stopped     bool
}

func newFakeInput(name string, mode Mode) *fakeInput {
	return &fakeInput{name: name, mode: mode, frames: make(chan Frame)}
}

func (f *fakeInput) Name() string   { return f.name }
func (f *fakeInput) Start() error   { return f.startErr }
func (f *fakeInput) Mode() Mode     { return f.mode }
func (f *fakeInput) TotalSize() int64  { return f.total }
func (f *fakeInput) LoadedSize() int64 { return f.loaded }

func (f *fakeInput) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.stopped {
		f.stopped = true
		close(f.frames)
	}
	return nil
}

func (f *fakeInput) Filter(expr string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filterCalls = append(f.filterCalls, expr)
	return f.filterErr
}

func (f *fakeInput) Frames() <-chan Frame { return f.frames }

type fakeOutput struct {
	mu      sync.Mutex
	written []*packet.Packet
	closed  bool
}

func (o *fakeOutput) Write(pkt *packet.Packet) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.written = append(o.written, pkt)
	return nil
}

func (o *fakeOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	return nil
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	store, err := storage.New(storage.Config{})
	require.NoError(t, err)
	return New(Config{LinkType: layers.LinkTypeEthernet}, store)
}

func TestIsOnlineAllLive(t *testing.T) {
	m := newTestManager(t)
	m.AddInput(newFakeInput("eth0", ModeLive))
	require.True(t, m.IsOnline())
}

func TestIsOnlineMixedWhenAnyOffline(t *testing.T) {
	m := newTestManager(t)
	m.AddInput(newFakeInput("eth0", ModeLive))
	m.AddInput(newFakeInput("capture.pcap", ModeOffline))
	require.False(t, m.IsOnline())
}

func TestIsOnlineFalseWithNoInputs(t *testing.T) {
	m := newTestManager(t)
	require.False(t, m.IsOnline())
}

func TestLoadProgressNoOfflineInputsIsComplete(t *testing.T) {
	m := newTestManager(t)
	m.AddInput(newFakeInput("eth0", ModeLive))
	require.Equal(t, 100, m.LoadProgress())
}

func TestLoadProgressWeightedAcrossOfflineInputs(t *testing.T) {
	m := newTestManager(t)
	in := newFakeInput("a.pcap", ModeOffline)
	in.total, in.loaded = 200, 50
	m.AddInput(in)
	require.Equal(t, 25, m.LoadProgress())
}

func TestSetFilterAppliesToEveryInput(t *testing.T) {
	m := newTestManager(t)
	a := newFakeInput("eth0", ModeLive)
	b := newFakeInput("eth1", ModeLive)
	m.AddInput(a)
	m.AddInput(b)

	require.NoError(t, m.SetFilter("udp port 5060"))
	require.Equal(t, []string{"udp port 5060"}, a.filterCalls)
	require.Equal(t, []string{"udp port 5060"}, b.filterCalls)
}

func TestSetFilterPropagatesError(t *testing.T) {
	m := newTestManager(t)
	bad := newFakeInput("eth0", ModeLive)
	bad.filterErr = fmt.Errorf("bad bpf expression")
	m.AddInput(bad)

	err := m.SetFilter("not a filter")
	require.Error(t, err)
}

func TestStatusStoppedBeforeStart(t *testing.T) {
	m := newTestManager(t)
	m.AddInput(newFakeInput("eth0", ModeLive))
	st := m.Status()
	require.Equal(t, RunStopped, st.Run)
	require.Equal(t, StateOnline, st.Online)
}

func TestStartStopLifecycle(t *testing.T) {
	m := newTestManager(t)
	in := newFakeInput("eth0", ModeLive)
	out := &fakeOutput{}
	m.AddInput(in)
	m.AddOutput(out)

	require.NoError(t, m.Start())
	require.Equal(t, RunRunning, m.Status().Run)
	require.Error(t, m.Start(), "starting twice is rejected")

	require.NoError(t, m.Stop())
	require.Equal(t, RunStopped, m.Status().Run)
	require.True(t, out.closed)
}

func TestPauseTogglesStoreAndManagerFlag(t *testing.T) {
	m := newTestManager(t)
	in := newFakeInput("eth0", ModeLive)
	m.AddInput(in)
	require.NoError(t, m.Start())
	defer m.Stop()

	require.Equal(t, RunRunning, m.Status().Run)
	m.Pause(true)
	require.Equal(t, RunPaused, m.Status().Run)

	next := m.TogglePause()
	require.False(t, next)
	require.Equal(t, RunRunning, m.Status().Run)
}

func TestAddInputAfterStartBeginsContributing(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Start())
	defer m.Stop()

	late := newFakeInput("eth1", ModeLive)
	require.NoError(t, m.AddInput(late))
	require.True(t, m.IsOnline())
}

func TestAddInputAfterStopIsRejected(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Start())
	require.NoError(t, m.Stop())

	err := m.AddInput(newFakeInput("eth2", ModeLive))
	require.ErrorIs(t, err, core.ErrShutdown)
}

func TestAddOutputAfterStopIsRejected(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Start())
	require.NoError(t, m.Stop())

	err := m.AddOutput(&fakeOutput{})
	require.ErrorIs(t, err, core.ErrShutdown)
}
