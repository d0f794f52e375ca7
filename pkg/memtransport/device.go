package memtransport

import (
	"sync"

	"github.com/newtron-network/btgovernor/pkg/bturl"
	"github.com/newtron-network/btgovernor/pkg/transport"
)

// Device is an in-memory transport.DeviceHandle.
type Device struct {
	adapter *Adapter
	address string

	mu               sync.Mutex
	connected        bool
	blocked          bool
	rssi             int16
	txPower          int16
	manufacturerData map[uint16][]byte
	serviceData      map[string][]byte
	characteristics  map[string]*Characteristic
	servicesResolved []bturl.URL

	// FailConnect, when true, makes Connect return an error.
	FailConnect bool

	rssiCb      func(int16)
	connectedCb func(bool)
	servicesCb  func([]bturl.URL)
	blockedCb   func(bool)
	mfgCb       func(map[uint16][]byte)
	svcDataCb   func(map[string][]byte)
}

func newDevice(a *Adapter, address string) *Device {
	return &Device{adapter: a, address: address, characteristics: make(map[string]*Characteristic)}
}

func (d *Device) url() bturl.URL {
	return bturl.New(protocol, d.adapter.address, d.address, "")
}

// URL implements transport.Handle.
func (d *Device) URL() bturl.URL { return d.url() }

// Dispose implements transport.Handle.
func (d *Device) Dispose() {}

// AddCharacteristic registers a simulated GATT characteristic and marks its
// parent service resolved.
func (d *Device) AddCharacteristic(uuid string) *Characteristic {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := newCharacteristic(d, uuid)
	d.characteristics[uuid] = c
	d.servicesResolved = append(d.servicesResolved, d.url())
	return c
}

func (d *Device) lookupCharacteristic(uuid string) (*Characteristic, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.characteristics[uuid]
	return c, ok
}

// PushRSSI simulates a new advertisement sample arriving from the radio.
func (d *Device) PushRSSI(value int16) {
	d.mu.Lock()
	d.rssi = value
	cb := d.rssiCb
	d.mu.Unlock()
	if cb != nil {
		cb(value)
	}
}

// IsConnected implements transport.DeviceHandle.
func (d *Device) IsConnected() bool { d.mu.Lock(); defer d.mu.Unlock(); return d.connected }

// Connect implements transport.DeviceHandle.
func (d *Device) Connect() error {
	if d.FailConnect {
		return errUnavailable
	}
	d.mu.Lock()
	d.connected = true
	cb := d.connectedCb
	svcCb := d.servicesCb
	services := d.servicesResolved
	d.mu.Unlock()
	if cb != nil {
		cb(true)
	}
	if svcCb != nil && len(services) > 0 {
		svcCb(services)
	}
	return nil
}

// Disconnect implements transport.DeviceHandle.
func (d *Device) Disconnect() error {
	d.mu.Lock()
	d.connected = false
	cb := d.connectedCb
	d.mu.Unlock()
	if cb != nil {
		cb(false)
	}
	return nil
}

// IsBlocked implements transport.DeviceHandle.
func (d *Device) IsBlocked() bool { d.mu.Lock(); defer d.mu.Unlock(); return d.blocked }

// SetBlocked implements transport.DeviceHandle.
func (d *Device) SetBlocked(blocked bool) error {
	d.mu.Lock()
	d.blocked = blocked
	cb := d.blockedCb
	d.mu.Unlock()
	if cb != nil {
		cb(blocked)
	}
	return nil
}

// RSSI implements transport.DeviceHandle.
func (d *Device) RSSI() int16 { d.mu.Lock(); defer d.mu.Unlock(); return d.rssi }

// TxPower implements transport.DeviceHandle.
func (d *Device) TxPower() int16 { d.mu.Lock(); defer d.mu.Unlock(); return d.txPower }

// SetTxPower configures the device's advertised TX power.
func (d *Device) SetTxPower(v int16) {
	d.mu.Lock()
	d.txPower = v
	d.mu.Unlock()
}

// ManufacturerData implements transport.DeviceHandle.
func (d *Device) ManufacturerData() map[uint16][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.manufacturerData
}

// ServiceData implements transport.DeviceHandle.
func (d *Device) ServiceData() map[string][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.serviceData
}

// Services implements transport.DeviceHandle.
func (d *Device) Services() []bturl.URL {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.servicesResolved
}

// OnRSSIChanged implements transport.DeviceHandle.
func (d *Device) OnRSSIChanged(f func(int16)) { d.mu.Lock(); d.rssiCb = f; d.mu.Unlock() }

// OnConnectedChanged implements transport.DeviceHandle.
func (d *Device) OnConnectedChanged(f func(bool)) { d.mu.Lock(); d.connectedCb = f; d.mu.Unlock() }

// OnServicesResolved implements transport.DeviceHandle.
func (d *Device) OnServicesResolved(f func([]bturl.URL)) { d.mu.Lock(); d.servicesCb = f; d.mu.Unlock() }

// OnBlockedChanged implements transport.DeviceHandle.
func (d *Device) OnBlockedChanged(f func(bool)) { d.mu.Lock(); d.blockedCb = f; d.mu.Unlock() }

// OnManufacturerDataChanged implements transport.DeviceHandle.
func (d *Device) OnManufacturerDataChanged(f func(map[uint16][]byte)) {
	d.mu.Lock()
	d.mfgCb = f
	d.mu.Unlock()
}

// OnServiceDataChanged implements transport.DeviceHandle.
func (d *Device) OnServiceDataChanged(f func(map[string][]byte)) {
	d.mu.Lock()
	d.svcDataCb = f
	d.mu.Unlock()
}

var _ transport.DeviceHandle = (*Device)(nil)
