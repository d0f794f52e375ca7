// Package transport declares the contract a concrete Bluetooth backend
// must satisfy to be driven by the governor layer. Nothing in this module
// implements a real backend; pkg/memtransport provides an in-memory
// reference implementation for tests and the demo command.
package transport

import "github.com/newtron-network/btgovernor/pkg/bturl"

// Handle is the capability every native handle shares: identity and
// disposal. AdapterHandle, DeviceHandle, and CharacteristicHandle each
// embed it.
type Handle interface {
	URL() bturl.URL
	Dispose()
}

// AdapterHandle is the native handle bound to one Bluetooth adapter.
type AdapterHandle interface {
	Handle

	IsPowered() bool
	SetPowered(on bool) error

	IsDiscovering() bool
	StartDiscovery() error
	StopDiscovery() error

	Alias() string
	SetAlias(alias string) error

	// Devices returns the URLs of devices currently visible through this
	// adapter.
	Devices() []bturl.URL

	OnPoweredChanged(func(bool))
	OnDiscoveringChanged(func(bool))
}

// DeviceHandle is the native handle bound to one Bluetooth device.
type DeviceHandle interface {
	Handle

	IsConnected() bool
	Connect() error
	Disconnect() error

	IsBlocked() bool
	SetBlocked(blocked bool) error

	// RSSI returns the most recent raw RSSI sample in dBm.
	RSSI() int16
	// TxPower returns the device's advertised TX power, or 0 if unknown.
	TxPower() int16

	ManufacturerData() map[uint16][]byte
	ServiceData() map[string][]byte

	// Services returns the URLs of GATT services resolved for this
	// device, used to derive characteristic URLs.
	Services() []bturl.URL

	OnRSSIChanged(func(int16))
	OnConnectedChanged(func(bool))
	OnServicesResolved(func([]bturl.URL))
	OnBlockedChanged(func(bool))
	OnManufacturerDataChanged(func(map[uint16][]byte))
	OnServiceDataChanged(func(map[string][]byte))
}

// CharacteristicHandle is the native handle bound to one GATT
// characteristic.
type CharacteristicHandle interface {
	Handle

	Read() ([]byte, error)
	Write(value []byte) error

	IsNotifying() bool
	Subscribe(onNotify func([]byte)) error
	Unsubscribe() error
}

// Factory is the abstract transport backend: it yields handles for URLs
// and enumerates currently-visible adapters and devices.
type Factory interface {
	// GetBluetoothObject returns a handle bound to url (possibly with a
	// refined protocol), or nil if the entity is currently unavailable.
	GetBluetoothObject(url bturl.URL) (Handle, error)

	GetDiscoveredAdapters() ([]AdapterHandle, error)
	// GetDiscoveredDevices may return (nil, nil) when the backend has
	// nothing to report yet.
	GetDiscoveredDevices() ([]DeviceHandle, error)
}
