package memtransport

import (
	"sync"

	"github.com/newtron-network/btgovernor/pkg/bturl"
	"github.com/newtron-network/btgovernor/pkg/transport"
)

// Adapter is an in-memory transport.AdapterHandle.
type Adapter struct {
	factory *Factory
	address string

	mu          sync.Mutex
	powered     bool
	discovering bool
	alias       string
	devices     map[string]*Device

	// FailSetPowered, when true, makes SetPowered return an error; used to
	// exercise the governor's reset-on-failure path in tests.
	FailSetPowered bool

	poweredCb     func(bool)
	discoveringCb func(bool)
}

func newAdapter(f *Factory, address string) *Adapter {
	return &Adapter{factory: f, address: address, devices: make(map[string]*Device)}
}

func (a *Adapter) url() bturl.URL {
	return bturl.New(protocol, a.address, "", "")
}

// URL implements transport.Handle.
func (a *Adapter) URL() bturl.URL { return a.url() }

// Dispose implements transport.Handle; the in-memory adapter has no
// external resource to release.
func (a *Adapter) Dispose() {}

// AddDevice registers a simulated device under this adapter.
func (a *Adapter) AddDevice(address string) *Device {
	a.mu.Lock()
	defer a.mu.Unlock()
	d := newDevice(a, address)
	a.devices[address] = d
	return d
}

// RemoveDevice drops a device as if it moved out of range.
func (a *Adapter) RemoveDevice(address string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.devices, address)
}

func (a *Adapter) lookupDevice(address string) (*Device, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	d, ok := a.devices[address]
	return d, ok
}

func (a *Adapter) allDevices() []*Device {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*Device, 0, len(a.devices))
	for _, d := range a.devices {
		out = append(out, d)
	}
	return out
}

// IsPowered implements transport.AdapterHandle.
func (a *Adapter) IsPowered() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.powered
}

// SetPowered implements transport.AdapterHandle.
func (a *Adapter) SetPowered(on bool) error {
	if a.FailSetPowered {
		return errUnavailable
	}
	a.mu.Lock()
	a.powered = on
	cb := a.poweredCb
	a.mu.Unlock()
	if cb != nil {
		cb(on)
	}
	return nil
}

// IsDiscovering implements transport.AdapterHandle.
func (a *Adapter) IsDiscovering() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.discovering
}

// StartDiscovery implements transport.AdapterHandle.
func (a *Adapter) StartDiscovery() error {
	a.mu.Lock()
	a.discovering = true
	cb := a.discoveringCb
	a.mu.Unlock()
	if cb != nil {
		cb(true)
	}
	return nil
}

// StopDiscovery implements transport.AdapterHandle.
func (a *Adapter) StopDiscovery() error {
	a.mu.Lock()
	a.discovering = false
	cb := a.discoveringCb
	a.mu.Unlock()
	if cb != nil {
		cb(false)
	}
	return nil
}

// Alias implements transport.AdapterHandle.
func (a *Adapter) Alias() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.alias
}

// SetAlias implements transport.AdapterHandle.
func (a *Adapter) SetAlias(alias string) error {
	a.mu.Lock()
	a.alias = alias
	a.mu.Unlock()
	return nil
}

// Devices implements transport.AdapterHandle.
func (a *Adapter) Devices() []bturl.URL {
	devices := a.allDevices()
	out := make([]bturl.URL, len(devices))
	for i, d := range devices {
		out[i] = d.url()
	}
	return out
}

// OnPoweredChanged implements transport.AdapterHandle.
func (a *Adapter) OnPoweredChanged(f func(bool)) {
	a.mu.Lock()
	a.poweredCb = f
	a.mu.Unlock()
}

// OnDiscoveringChanged implements transport.AdapterHandle.
func (a *Adapter) OnDiscoveringChanged(f func(bool)) {
	a.mu.Lock()
	a.discoveringCb = f
	a.mu.Unlock()
}

var _ transport.AdapterHandle = (*Adapter)(nil)
