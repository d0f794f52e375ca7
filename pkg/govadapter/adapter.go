// Package govadapter implements the concrete governor for one Bluetooth
// adapter: power and discovery control, alias reconciliation, and the
// device set visible through this adapter.
package govadapter

import (
	"sync"

	"github.com/newtron-network/btgovernor/pkg/bturl"
	"github.com/newtron-network/btgovernor/pkg/btlog"
	"github.com/newtron-network/btgovernor/pkg/govcore"
	"github.com/newtron-network/btgovernor/pkg/transport"
)

// Listener receives adapter-specific signal notifications in addition to
// the base governor's Ready/LastUpdatedChanged pair.
type Listener interface {
	PoweredChanged(on bool)
	DiscoveringChanged(on bool)
}

// Governor drives one adapter's lifecycle. Embedding *govcore.Base supplies
// the acquire/update/reset state machine; Governor only wires the three
// handle operations and carries adapter-specific desired state.
type Governor struct {
	*govcore.Base

	factory transport.Factory

	mu                 sync.RWMutex
	poweredControl     bool
	discoveringControl bool
	alias              string
	devices            []bturl.URL

	listenersMu sync.Mutex
	listeners   []Listener
}

// New constructs an adapter governor for url, backed by factory. The
// governor starts with discovery disabled; callers (typically the Manager's
// discovery job) turn it on with SetDiscovering(true).
func New(url bturl.URL, factory transport.Factory, hooks govcore.Hooks) *Governor {
	g := &Governor{factory: factory, poweredControl: true}
	g.Base = govcore.New(url, hooks, govcore.Callbacks{
		Acquire: g.acquire,
		Init:    g.initHandle,
		Update:  g.updateHandle,
		Reset:   g.resetHandle,
	})
	return g
}

// SetPowered sets the desired power state; takes effect on the next update.
func (g *Governor) SetPowered(on bool) {
	g.mu.Lock()
	g.poweredControl = on
	g.mu.Unlock()
}

// SetDiscovering sets the desired discovery state; takes effect on the next
// update.
func (g *Governor) SetDiscovering(on bool) {
	g.mu.Lock()
	g.discoveringControl = on
	g.mu.Unlock()
}

// SetAlias sets the desired adapter alias; takes effect on the next update.
func (g *Governor) SetAlias(alias string) {
	g.mu.Lock()
	g.alias = alias
	g.mu.Unlock()
}

// AddListener registers l for power/discovery signal notifications.
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

func (g *Governor) firePoweredChanged(on bool) {
	for _, l := range g.listenerSnapshot() {
		func() {
			defer func() {
				if r := recover(); r != nil {
					btlog.WithURL(g.URL().String()).Errorf("listener panicked: %v", r)
				}
			}()
			l.PoweredChanged(on)
		}()
	}
}

func (g *Governor) fireDiscoveringChanged(on bool) {
	for _, l := range g.listenerSnapshot() {
		func() {
			defer func() {
				if r := recover(); r != nil {
					btlog.WithURL(g.URL().String()).Errorf("listener panicked: %v", r)
				}
			}()
			l.DiscoveringChanged(on)
		}()
	}
}

// Devices returns a frozen snapshot of device URLs visible through this
// adapter as of the last successful update.
func (g *Governor) Devices() []bturl.URL {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]bturl.URL, len(g.devices))
	copy(out, g.devices)
	return out
}

func (g *Governor) desired() (powered, discovering bool, alias string) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.poweredControl, g.discoveringControl, g.alias
}

func (g *Governor) acquire(protocolHint string) (transport.Handle, error) {
	u := g.URL()
	if protocolHint != "" {
		u = u.CopyWithProtocol(protocolHint)
	}
	return g.factory.GetBluetoothObject(u)
}

func (g *Governor) initHandle(h transport.Handle) error {
	ah := h.(transport.AdapterHandle)

	ah.OnPoweredChanged(g.firePoweredChanged)
	ah.OnDiscoveringChanged(g.fireDiscoveringChanged)

	return nil
}

func (g *Governor) updateHandle(h transport.Handle) error {
	ah := h.(transport.AdapterHandle)

	powered, discovering, alias := g.desired()

	if ah.IsPowered() != powered {
		if err := ah.SetPowered(powered); err != nil {
			return err
		}
	}

	if ah.IsDiscovering() != discovering {
		var err error
		if discovering {
			err = ah.StartDiscovery()
		} else {
			err = ah.StopDiscovery()
		}
		if err != nil {
			return err
		}
	}

	if alias != "" && ah.Alias() != alias {
		if err := ah.SetAlias(alias); err != nil {
			return err
		}
	}

	devices := ah.Devices()
	g.mu.Lock()
	g.devices = devices
	g.mu.Unlock()

	return nil
}

func (g *Governor) resetHandle(h transport.Handle) error {
	ah, ok := h.(transport.AdapterHandle)
	if !ok {
		return nil
	}

	_, discovering, _ := g.desired()
	if discovering && ah.IsDiscovering() {
		if err := ah.StopDiscovery(); err != nil {
			return err
		}
	}

	g.mu.Lock()
	g.devices = nil
	g.mu.Unlock()

	return nil
}
