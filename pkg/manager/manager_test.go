package manager

import (
	"sync"
	"testing"
	"time"

	"github.com/newtron-network/btgovernor/pkg/bturl"
	"github.com/newtron-network/btgovernor/pkg/transport"
)

// fakeAdapterHandle and fakeDeviceHandle are minimal transport handles
// sufficient to drive govadapter.Governor / govdevice.Governor through the
// manager without a real backend.
type fakeAdapterHandle struct {
	url         bturl.URL
	mu          sync.Mutex
	powered     bool
	discovering bool
	alias       string
	devices     []bturl.URL
}

func (h *fakeAdapterHandle) URL() bturl.URL { return h.url }
func (h *fakeAdapterHandle) Dispose()       {}
func (h *fakeAdapterHandle) IsPowered() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.powered
}
func (h *fakeAdapterHandle) SetPowered(on bool) error {
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
	h.mu.Lock()
	h.discovering = true
	h.mu.Unlock()
	return nil
}
func (h *fakeAdapterHandle) StopDiscovery() error {
	h.mu.Lock()
	h.discovering = false
	h.mu.Unlock()
	return nil
}
func (h *fakeAdapterHandle) Alias() string { h.mu.Lock(); defer h.mu.Unlock(); return h.alias }
func (h *fakeAdapterHandle) SetAlias(a string) error {
	h.mu.Lock()
	h.alias = a
	h.mu.Unlock()
	return nil
}
func (h *fakeAdapterHandle) Devices() []bturl.URL             { return h.devices }
func (h *fakeAdapterHandle) OnPoweredChanged(func(bool))      {}
func (h *fakeAdapterHandle) OnDiscoveringChanged(func(bool))  {}

type fakeDeviceHandle struct {
	url       bturl.URL
	mu        sync.Mutex
	connected bool
	rssiValue int16
	txPower   int16
	rssiCb    func(int16)
}

func (h *fakeDeviceHandle) URL() bturl.URL    { return h.url }
func (h *fakeDeviceHandle) Dispose()          {}
func (h *fakeDeviceHandle) IsConnected() bool { h.mu.Lock(); defer h.mu.Unlock(); return h.connected }
func (h *fakeDeviceHandle) Connect() error {
	h.mu.Lock()
	h.connected = true
	h.mu.Unlock()
	return nil
}
func (h *fakeDeviceHandle) Disconnect() error {
	h.mu.Lock()
	h.connected = false
	h.mu.Unlock()
	return nil
}
func (h *fakeDeviceHandle) IsBlocked() bool          { return false }
func (h *fakeDeviceHandle) SetBlocked(bool) error    { return nil }
func (h *fakeDeviceHandle) RSSI() int16              { return h.rssiValue }
func (h *fakeDeviceHandle) TxPower() int16           { h.mu.Lock(); defer h.mu.Unlock(); return h.txPower }
func (h *fakeDeviceHandle) ManufacturerData() map[uint16][]byte { return nil }
func (h *fakeDeviceHandle) ServiceData() map[string][]byte      { return nil }
func (h *fakeDeviceHandle) Services() []bturl.URL                { return nil }
func (h *fakeDeviceHandle) OnRSSIChanged(f func(int16)) { h.mu.Lock(); h.rssiCb = f; h.mu.Unlock() }
func (h *fakeDeviceHandle) pushRSSI(v int16) {
	h.mu.Lock()
	cb := h.rssiCb
	h.mu.Unlock()
	if cb != nil {
		cb(v)
	}
}
func (h *fakeDeviceHandle) OnConnectedChanged(func(bool))                    {}
func (h *fakeDeviceHandle) OnServicesResolved(func([]bturl.URL))             {}
func (h *fakeDeviceHandle) OnBlockedChanged(func(bool))                      {}
func (h *fakeDeviceHandle) OnManufacturerDataChanged(func(map[uint16][]byte)) {}
func (h *fakeDeviceHandle) OnServiceDataChanged(func(map[string][]byte))     {}

type fakeFactory struct {
	mu              sync.Mutex
	handles         map[string]transport.Handle
	adapters        []transport.AdapterHandle
	devices         []transport.DeviceHandle
	adaptersErr     error
	devicesErr      error
}

func (f *fakeFactory) GetBluetoothObject(url bturl.URL) (transport.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if h, ok := f.handles[url.String()]; ok {
		return h, nil
	}
	return nil, nil
}

func (f *fakeFactory) GetDiscoveredAdapters() ([]transport.AdapterHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.adapters, f.adaptersErr
}

func (f *fakeFactory) GetDiscoveredDevices() ([]transport.DeviceHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.devices, f.devicesErr
}

func (f *fakeFactory) register(h transport.Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handles == nil {
		f.handles = make(map[string]transport.Handle)
	}
	f.handles[h.URL().String()] = h
}

func TestGetGovernorLazyConstructsAndEnrolls(t *testing.T) {
	adapterURL := bturl.New("mem", "AA:BB", "", "")
	handle := &fakeAdapterHandle{url: adapterURL.CopyWithProtocol("mem")}
	factory := &fakeFactory{}
	factory.register(handle)

	m := New(factory, DefaultOptions())
	defer m.Dispose()

	g := m.AdapterGovernor(adapterURL)
	if !g.IsReady() {
		t.Fatal("expected adapter governor ready after lazy construction")
	}

	again := m.AdapterGovernor(adapterURL)
	if g != again {
		t.Fatal("expected GetGovernor to return the same instance on repeat lookups")
	}
}

func TestCascadingResetTearsDownAdapterAndDescendants(t *testing.T) {
	adapterURL := bturl.New("mem", "AA:BB", "", "")
	device1URL := bturl.New("mem", "AA:BB", "11:11", "")
	device2URL := bturl.New("mem", "AA:BB", "22:22", "")

	adapterHandle := &fakeAdapterHandle{url: adapterURL.CopyWithProtocol("mem")}
	device1Handle := &fakeDeviceHandle{url: device1URL.CopyWithProtocol("mem"), rssiValue: -50}
	device2Handle := &fakeDeviceHandle{url: device2URL.CopyWithProtocol("mem"), rssiValue: -50}

	factory := &fakeFactory{}
	factory.register(adapterHandle)
	factory.register(device1Handle)
	factory.register(device2Handle)

	m := New(factory, DefaultOptions())
	defer m.Dispose()

	a := m.AdapterGovernor(adapterURL)
	d1 := m.DeviceGovernor(device1URL)
	d2 := m.DeviceGovernor(device2URL)

	if !a.IsReady() || !d1.IsReady() || !d2.IsReady() {
		t.Fatal("setup: expected all governors ready before reset")
	}

	a.Reset()

	if a.IsReady() || d1.IsReady() || d2.IsReady() {
		t.Fatal("expected cascading reset to tear down adapter and both devices")
	}
}

func TestDiscoveryEmitsDiscoveredAndLost(t *testing.T) {
	adapterURL := bturl.New("mem", "AA:BB", "", "")
	adapterHandle := &fakeAdapterHandle{url: adapterURL.CopyWithProtocol("mem")}

	factory := &fakeFactory{adapters: []transport.AdapterHandle{adapterHandle}}

	opts := DefaultOptions()
	m := New(factory, opts)
	defer m.Dispose()

	type event struct {
		discovered bool
		url        bturl.URL
	}
	var mu sync.Mutex
	var events []event
	m.AddAdapterDiscoveryListener(adapterListenerFunc{
		discovered: func(a DiscoveredAdapter) {
			mu.Lock()
			events = append(events, event{discovered: true, url: a.URL})
			mu.Unlock()
		},
		lost: func(url bturl.URL) {
			mu.Lock()
			events = append(events, event{discovered: false, url: url})
			mu.Unlock()
		},
	})

	m.runDiscoveryJob() // first pass: discovered

	factory.mu.Lock()
	factory.adapters = nil
	factory.mu.Unlock()

	m.runDiscoveryJob() // second pass: lost

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 {
		t.Fatalf("events = %v, want 2 (discovered then lost)", events)
	}
	if !events[0].discovered || events[1].discovered {
		t.Fatalf("events = %v, want [discovered, lost]", events)
	}
}

func TestDiscoveryIgnoresZeroRSSIDevices(t *testing.T) {
	deviceURL := bturl.New("mem", "AA:BB", "11:11", "")
	deviceHandle := &fakeDeviceHandle{url: deviceURL.CopyWithProtocol("mem"), rssiValue: 0}

	factory := &fakeFactory{devices: []transport.DeviceHandle{deviceHandle}}
	m := New(factory, DefaultOptions())
	defer m.Dispose()

	var fired bool
	m.AddDeviceDiscoveryListener(deviceListenerFunc{
		discovered: func(DiscoveredDevice) { fired = true },
		lost:       func(bturl.URL) {},
	})

	m.runDiscoveryJob()

	if fired {
		t.Fatal("expected zero-RSSI devices to be treated as transient and not reported")
	}
}

func TestStartIsIdempotent(t *testing.T) {
	factory := &fakeFactory{}
	opts := DefaultOptions()
	opts.DiscoveryRate = 20 * time.Millisecond
	m := New(factory, opts)
	defer m.Dispose()

	m.Start(false)
	m.Start(false)
	m.Stop()
}

func TestClosestAdapterSingleAdapter(t *testing.T) {
	deviceURL := bturl.New("mem", "AA:BB", "11:11", "")
	deviceHandle := &fakeDeviceHandle{url: deviceURL.CopyWithProtocol("mem"), txPower: -59}

	factory := &fakeFactory{}
	factory.register(deviceHandle)

	m := New(factory, DefaultOptions())
	defer m.Dispose()

	dg := m.DeviceGovernor(deviceURL)
	deviceHandle.pushRSSI(-69)
	dg.Update()

	adapter, err := m.ClosestAdapter("11:11")
	if err != nil {
		t.Fatalf("ClosestAdapter: %v", err)
	}
	if adapter.AdapterAddress != "aa:bb" {
		t.Fatalf("adapter = %v, want aa:bb", adapter)
	}
}

func TestClosestAdapterPicksSmallestEstimatedDistance(t *testing.T) {
	nearURL := bturl.New("mem", "BB:BB", "11:11", "")
	farURL := bturl.New("mem", "AA:AA", "11:11", "")

	nearHandle := &fakeDeviceHandle{url: nearURL.CopyWithProtocol("mem"), txPower: -59}
	farHandle := &fakeDeviceHandle{url: farURL.CopyWithProtocol("mem"), txPower: -59}

	factory := &fakeFactory{}
	factory.register(nearHandle)
	factory.register(farHandle)

	m := New(factory, DefaultOptions())
	defer m.Dispose()

	near := m.DeviceGovernor(nearURL)
	far := m.DeviceGovernor(farURL)
	nearHandle.pushRSSI(-60) // closer: weaker attenuation
	farHandle.pushRSSI(-90)  // farther: stronger attenuation
	near.Update()
	far.Update()

	adapter, err := m.ClosestAdapter("11:11")
	if err != nil {
		t.Fatalf("ClosestAdapter: %v", err)
	}
	if adapter.AdapterAddress != "bb:bb" {
		t.Fatalf("adapter = %v, want bb:bb (nearer device)", adapter)
	}
}

func TestClosestAdapterBreaksTiesByAdapterAddress(t *testing.T) {
	url1 := bturl.New("mem", "BB:BB", "11:11", "")
	url2 := bturl.New("mem", "AA:AA", "11:11", "")

	handle1 := &fakeDeviceHandle{url: url1.CopyWithProtocol("mem"), txPower: -59}
	handle2 := &fakeDeviceHandle{url: url2.CopyWithProtocol("mem"), txPower: -59}

	factory := &fakeFactory{}
	factory.register(handle1)
	factory.register(handle2)

	m := New(factory, DefaultOptions())
	defer m.Dispose()

	g1 := m.DeviceGovernor(url1)
	g2 := m.DeviceGovernor(url2)
	handle1.pushRSSI(-70)
	handle2.pushRSSI(-70)
	g1.Update()
	g2.Update()

	adapter, err := m.ClosestAdapter("11:11")
	if err != nil {
		t.Fatalf("ClosestAdapter: %v", err)
	}
	if adapter.AdapterAddress != "aa:aa" {
		t.Fatalf("adapter = %v, want aa:aa (lexicographically smallest on tie)", adapter)
	}
}

func TestClosestAdapterUnknownDeviceErrors(t *testing.T) {
	factory := &fakeFactory{}
	m := New(factory, DefaultOptions())
	defer m.Dispose()

	if _, err := m.ClosestAdapter("ff:ff"); err == nil {
		t.Fatal("expected an error for a device address with no registered governor")
	}
}

type adapterListenerFunc struct {
	discovered func(DiscoveredAdapter)
	lost       func(bturl.URL)
}

func (f adapterListenerFunc) Discovered(a DiscoveredAdapter) { f.discovered(a) }
func (f adapterListenerFunc) Lost(url bturl.URL)             { f.lost(url) }

type deviceListenerFunc struct {
	discovered func(DiscoveredDevice)
	lost       func(bturl.URL)
}

func (f deviceListenerFunc) Discovered(d DiscoveredDevice) { f.discovered(d) }
func (f deviceListenerFunc) Lost(url bturl.URL)            { f.lost(url) }
