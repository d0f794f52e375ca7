package govadapter

import (
	"errors"
	"sync"
	"testing"

	"github.com/newtron-network/btgovernor/pkg/bturl"
	"github.com/newtron-network/btgovernor/pkg/transport"
)

type fakeAdapterHandle struct {
	url bturl.URL

	mu          sync.Mutex
	powered     bool
	discovering bool
	alias       string
	devices     []bturl.URL

	setPoweredErr   error
	startDiscErr    error
	stopDiscErr     error
	stopDiscCalls   int
	startDiscCalls  int
	poweredCb       func(bool)
	discoveringCb   func(bool)
	disposed        bool
}

func (h *fakeAdapterHandle) URL() bturl.URL { return h.url }
func (h *fakeAdapterHandle) Dispose()       { h.disposed = true }

func (h *fakeAdapterHandle) IsPowered() bool { h.mu.Lock(); defer h.mu.Unlock(); return h.powered }
func (h *fakeAdapterHandle) SetPowered(on bool) error {
	if h.setPoweredErr != nil {
		return h.setPoweredErr
	}
	h.mu.Lock()
	h.powered = on
	h.mu.Unlock()
	return nil
}

func (h *fakeAdapterHandle) IsDiscovering() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.discovering
}
func (h *fakeAdapterHandle) StartDiscovery() error {
	h.startDiscCalls++
	if h.startDiscErr != nil {
		return h.startDiscErr
	}
	h.mu.Lock()
	h.discovering = true
	h.mu.Unlock()
	return nil
}
func (h *fakeAdapterHandle) StopDiscovery() error {
	h.stopDiscCalls++
	if h.stopDiscErr != nil {
		return h.stopDiscErr
	}
	h.mu.Lock()
	h.discovering = false
	h.mu.Unlock()
	return nil
}

func (h *fakeAdapterHandle) Alias() string { h.mu.Lock(); defer h.mu.Unlock(); return h.alias }
func (h *fakeAdapterHandle) SetAlias(alias string) error {
	h.mu.Lock()
	h.alias = alias
	h.mu.Unlock()
	return nil
}

func (h *fakeAdapterHandle) Devices() []bturl.URL {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.devices
}

func (h *fakeAdapterHandle) OnPoweredChanged(f func(bool))     { h.poweredCb = f }
func (h *fakeAdapterHandle) OnDiscoveringChanged(f func(bool)) { h.discoveringCb = f }

type fakeFactory struct {
	handle transport.Handle
	err    error
}

func (f *fakeFactory) GetBluetoothObject(bturl.URL) (transport.Handle, error) {
	return f.handle, f.err
}
func (f *fakeFactory) GetDiscoveredAdapters() ([]transport.AdapterHandle, error) { return nil, nil }
func (f *fakeFactory) GetDiscoveredDevices() ([]transport.DeviceHandle, error)   { return nil, nil }

type recordingListener struct {
	mu          sync.Mutex
	powered     []bool
	discovering []bool
}

func (l *recordingListener) PoweredChanged(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.powered = append(l.powered, on)
}

func (l *recordingListener) DiscoveringChanged(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.discovering = append(l.discovering, on)
}

func TestUpdateReconcilesPoweredAndDiscovering(t *testing.T) {
	url := bturl.New("mem", "AA:BB", "", "")
	handle := &fakeAdapterHandle{url: url.CopyWithProtocol("mem")}
	factory := &fakeFactory{handle: handle}

	g := New(url, factory, nil)
	g.SetPowered(true)
	g.SetDiscovering(true)
	g.SetAlias("living-room")

	g.Update()

	if !handle.IsPowered() {
		t.Fatal("expected adapter to be powered on")
	}
	if !handle.IsDiscovering() {
		t.Fatal("expected discovery to be started")
	}
	if handle.Alias() != "living-room" {
		t.Fatalf("alias = %q, want living-room", handle.Alias())
	}
	if !g.IsReady() {
		t.Fatal("expected governor ready")
	}
}

func TestDevicesReflectsLastUpdate(t *testing.T) {
	url := bturl.New("mem", "AA:BB", "", "")
	dev1 := bturl.New("mem", "AA:BB", "11:22", "")
	handle := &fakeAdapterHandle{url: url.CopyWithProtocol("mem"), devices: []bturl.URL{dev1}}
	factory := &fakeFactory{handle: handle}

	g := New(url, factory, nil)
	g.Update()

	got := g.Devices()
	if len(got) != 1 || !got[0].Equals(dev1) {
		t.Fatalf("Devices() = %v, want [%v]", got, dev1)
	}
}

func TestResetStopsDiscoveryStartedByUs(t *testing.T) {
	url := bturl.New("mem", "AA:BB", "", "")
	handle := &fakeAdapterHandle{url: url.CopyWithProtocol("mem")}
	factory := &fakeFactory{handle: handle}

	g := New(url, factory, nil)
	g.SetDiscovering(true)
	g.Update()

	if !handle.IsDiscovering() {
		t.Fatal("setup: expected discovery running before reset")
	}

	g.Reset()

	if handle.IsDiscovering() {
		t.Fatal("expected discovery to be stopped on reset")
	}
	if handle.stopDiscCalls == 0 {
		t.Fatal("expected StopDiscovery to be called")
	}
}

func TestUpdateFailurePropagatesAndResets(t *testing.T) {
	url := bturl.New("mem", "AA:BB", "", "")
	handle := &fakeAdapterHandle{url: url.CopyWithProtocol("mem")}
	factory := &fakeFactory{handle: handle}

	g := New(url, factory, nil)
	g.Update()
	if !g.IsReady() {
		t.Fatal("setup: expected ready")
	}

	handle.setPoweredErr = errors.New("power toggle rejected")
	g.SetPowered(false)
	g.Update()

	if g.IsReady() {
		t.Fatal("expected governor to be reset after a failed updateHandle")
	}
}

func TestSignalsFanOutToListeners(t *testing.T) {
	url := bturl.New("mem", "AA:BB", "", "")
	handle := &fakeAdapterHandle{url: url.CopyWithProtocol("mem")}
	factory := &fakeFactory{handle: handle}

	g := New(url, factory, nil)
	l := &recordingListener{}
	g.AddListener(l)
	g.Update()

	handle.poweredCb(true)
	handle.discoveringCb(true)

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.powered) != 1 || !l.powered[0] {
		t.Fatalf("powered callbacks = %v, want [true]", l.powered)
	}
	if len(l.discovering) != 1 || !l.discovering[0] {
		t.Fatalf("discovering callbacks = %v, want [true]", l.discovering)
	}
}
