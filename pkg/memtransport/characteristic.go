package memtransport

import (
	"sync"

	"github.com/newtron-network/btgovernor/pkg/bturl"
	"github.com/newtron-network/btgovernor/pkg/transport"
)

// Characteristic is an in-memory transport.CharacteristicHandle.
type Characteristic struct {
	device *Device
	uuid   string

	mu        sync.Mutex
	value     []byte
	notifying bool
	onNotify  func([]byte)

	// FailWrite, when true, makes Write return an error.
	FailWrite bool
}

func newCharacteristic(d *Device, uuid string) *Characteristic {
	return &Characteristic{device: d, uuid: uuid}
}

func (c *Characteristic) url() bturl.URL {
	return bturl.New(protocol, c.device.adapter.address, c.device.address, c.uuid)
}

// URL implements transport.Handle.
func (c *Characteristic) URL() bturl.URL { return c.url() }

// Dispose implements transport.Handle.
func (c *Characteristic) Dispose() {}

// Read implements transport.CharacteristicHandle.
func (c *Characteristic) Read() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, nil
}

// Write implements transport.CharacteristicHandle.
func (c *Characteristic) Write(value []byte) error {
	if c.FailWrite {
		return errUnavailable
	}
	c.mu.Lock()
	c.value = value
	c.mu.Unlock()
	return nil
}

// PushNotification simulates the remote peripheral notifying this
// characteristic's value.
func (c *Characteristic) PushNotification(value []byte) {
	c.mu.Lock()
	c.value = value
	notifying := c.notifying
	cb := c.onNotify
	c.mu.Unlock()
	if notifying && cb != nil {
		cb(value)
	}
}

// IsNotifying implements transport.CharacteristicHandle.
func (c *Characteristic) IsNotifying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notifying
}

// Subscribe implements transport.CharacteristicHandle.
func (c *Characteristic) Subscribe(onNotify func([]byte)) error {
	c.mu.Lock()
	c.notifying = true
	c.onNotify = onNotify
	c.mu.Unlock()
	return nil
}

// Unsubscribe implements transport.CharacteristicHandle.
func (c *Characteristic) Unsubscribe() error {
	c.mu.Lock()
	c.notifying = false
	c.onNotify = nil
	c.mu.Unlock()
	return nil
}

var _ transport.CharacteristicHandle = (*Characteristic)(nil)
