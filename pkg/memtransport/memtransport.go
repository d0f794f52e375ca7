// Package memtransport is an in-memory transport.Factory used by tests and
// the demo command. It models a small Bluetooth topology, built and changed
// programmatically, entirely in process memory, with no real radio or OS
// Bluetooth stack involved.
package memtransport

import (
	"sync"

	"github.com/newtron-network/btgovernor/pkg/bterrors"
	"github.com/newtron-network/btgovernor/pkg/bturl"
	"github.com/newtron-network/btgovernor/pkg/transport"
)

const protocol = "mem"

// Factory is the in-memory transport.Factory. Zero value is not usable;
// construct with New.
type Factory struct {
	mu       sync.Mutex
	adapters map[string]*Adapter
}

// New returns an empty Factory with no adapters registered.
func New() *Factory {
	return &Factory{adapters: make(map[string]*Adapter)}
}

// AddAdapter registers a simulated adapter, visible to discovery and
// resolvable by GetBluetoothObject from this point on.
func (f *Factory) AddAdapter(address string) *Adapter {
	f.mu.Lock()
	defer f.mu.Unlock()

	a := newAdapter(f, address)
	f.adapters[address] = a
	return a
}

// RemoveAdapter drops the adapter at address as if it had gone out of
// range; subsequent
// discovery passes will report it lost.
func (f *Factory) RemoveAdapter(address string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.adapters, address)
}

func (f *Factory) lookupAdapter(address string) (*Adapter, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.adapters[address]
	return a, ok
}

// GetBluetoothObject implements transport.Factory. It returns a true nil
// Handle interface value (not a typed-nil *Adapter/*Device/*Characteristic)
// when the entity is unavailable, as required by the Handle contract.
func (f *Factory) GetBluetoothObject(url bturl.URL) (transport.Handle, error) {
	adapter, ok := f.lookupAdapter(url.AdapterAddress)
	if !ok {
		return nil, nil
	}
	if url.IsAdapter() {
		return adapter, nil
	}

	device, ok := adapter.lookupDevice(url.DeviceAddress)
	if !ok {
		return nil, nil
	}
	if url.IsDevice() {
		return device, nil
	}

	char, ok := device.lookupCharacteristic(url.CharacteristicUUID)
	if !ok {
		return nil, nil
	}
	return char, nil
}

// GetDiscoveredAdapters implements transport.Factory.
func (f *Factory) GetDiscoveredAdapters() ([]transport.AdapterHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]transport.AdapterHandle, 0, len(f.adapters))
	for _, a := range f.adapters {
		out = append(out, a)
	}
	return out, nil
}

// GetDiscoveredDevices implements transport.Factory: every device across
// every registered adapter.
func (f *Factory) GetDiscoveredDevices() ([]transport.DeviceHandle, error) {
	f.mu.Lock()
	adapters := make([]*Adapter, 0, len(f.adapters))
	for _, a := range f.adapters {
		adapters = append(adapters, a)
	}
	f.mu.Unlock()

	var out []transport.DeviceHandle
	for _, a := range adapters {
		for _, d := range a.allDevices() {
			out = append(out, d)
		}
	}
	return out, nil
}

var _ transport.Factory = (*Factory)(nil)

// errUnavailable is returned by write-like operations when the simulated
// radio is configured to fail them, exercising the governor's error paths.
var errUnavailable = bterrors.ErrTransport
