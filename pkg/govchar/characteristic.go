// Package govchar implements the concrete governor for one GATT
// characteristic: resolution under its parent device, notification
// subscription reconciliation, and read/write via the Interact conduit.
package govchar

import (
	"sync"

	"github.com/newtron-network/btgovernor/pkg/btlog"
	"github.com/newtron-network/btgovernor/pkg/bturl"
	"github.com/newtron-network/btgovernor/pkg/govcore"
	"github.com/newtron-network/btgovernor/pkg/transport"
)

// Listener receives notification payloads in addition to the base
// governor's Ready/LastUpdatedChanged pair.
type Listener interface {
	Notified(value []byte)
}

// Governor drives one characteristic's lifecycle.
type Governor struct {
	*govcore.Base

	factory transport.Factory

	mu              sync.RWMutex
	notifyRequested bool
	cachedValue     []byte

	listenersMu sync.Mutex
	listeners   []Listener
}

// New constructs a characteristic governor for url, backed by factory.
func New(url bturl.URL, factory transport.Factory, hooks govcore.Hooks) *Governor {
	g := &Governor{factory: factory}
	g.Base = govcore.New(url, hooks, govcore.Callbacks{
		Acquire: g.acquire,
		Init:    g.initHandle,
		Update:  g.updateHandle,
		Reset:   g.resetHandle,
	})
	return g
}

// SetNotifyRequested sets whether this characteristic should be subscribed
// for notifications; takes effect on the next update.
func (g *Governor) SetNotifyRequested(want bool) {
	g.mu.Lock()
	g.notifyRequested = want
	g.mu.Unlock()
}

// CachedValue returns the most recently read or notified value.
func (g *Governor) CachedValue() []byte {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cachedValue
}

// Read performs a GATT read through the Interact conduit and caches the
// result.
func (g *Governor) Read() ([]byte, error) {
	var value []byte
	err := g.Interact("read", func(h transport.Handle) error {
		ch := h.(transport.CharacteristicHandle)
		v, err := ch.Read()
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.cachedValue = value
	g.mu.Unlock()

	return value, nil
}

// Write performs a GATT write through the Interact conduit.
func (g *Governor) Write(value []byte) error {
	return g.Interact("write", func(h transport.Handle) error {
		return h.(transport.CharacteristicHandle).Write(value)
	})
}

// AddListener registers l for notification payloads.
func (g *Governor) AddListener(l Listener) {
	g.listenersMu.Lock()
	g.listeners = append(g.listeners, l)
	g.listenersMu.Unlock()
}

// RemoveListener unregisters l, a no-op if it was never added.
func (g *Governor) RemoveListener(l Listener) {
	g.listenersMu.Lock()
	defer g.listenersMu.Unlock()
	for i, existing := range g.listeners {
		if existing == l {
			g.listeners = append(g.listeners[:i], g.listeners[i+1:]...)
			return
		}
	}
}

func (g *Governor) listenerSnapshot() []Listener {
	g.listenersMu.Lock()
	defer g.listenersMu.Unlock()
	snapshot := make([]Listener, len(g.listeners))
	copy(snapshot, g.listeners)
	return snapshot
}

func (g *Governor) fireNotified(value []byte) {
	g.mu.Lock()
	g.cachedValue = value
	g.mu.Unlock()

	for _, l := range g.listenerSnapshot() {
		func() {
			defer func() {
				if r := recover(); r != nil {
					btlog.WithURL(g.URL().String()).Errorf("listener panicked: %v", r)
				}
			}()
			l.Notified(value)
		}()
	}
}

func (g *Governor) acquire(protocolHint string) (transport.Handle, error) {
	u := g.URL()
	if protocolHint != "" {
		u = u.CopyWithProtocol(protocolHint)
	}
	return g.factory.GetBluetoothObject(u)
}

func (g *Governor) initHandle(h transport.Handle) error {
	ch := h.(transport.CharacteristicHandle)

	g.mu.RLock()
	want := g.notifyRequested
	g.mu.RUnlock()

	if want && !ch.IsNotifying() {
		return ch.Subscribe(g.fireNotified)
	}
	return nil
}

func (g *Governor) updateHandle(h transport.Handle) error {
	ch := h.(transport.CharacteristicHandle)

	g.mu.RLock()
	want := g.notifyRequested
	g.mu.RUnlock()

	subscribed := ch.IsNotifying()
	switch {
	case want && !subscribed:
		return ch.Subscribe(g.fireNotified)
	case !want && subscribed:
		return ch.Unsubscribe()
	}
	return nil
}

func (g *Governor) resetHandle(h transport.Handle) error {
	ch, ok := h.(transport.CharacteristicHandle)
	if !ok {
		return nil
	}
	if ch.IsNotifying() {
		return ch.Unsubscribe()
	}
	return nil
}
