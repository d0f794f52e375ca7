package manager

import (
	"github.com/newtron-network/btgovernor/pkg/bturl"
	"github.com/newtron-network/btgovernor/pkg/btlog"
)

// DiscoveredAdapter is the snapshot handed to AdapterDiscoveryListener.
// Identity is (adapterAddress); mutable fields are not part of identity.
type DiscoveredAdapter struct {
	URL   bturl.URL
	Alias string
}

// DiscoveredDevice is the snapshot handed to DeviceDiscoveryListener.
// Identity is (adapterAddress, deviceAddress); mutable fields (name, RSSI)
// are not part of identity.
type DiscoveredDevice struct {
	URL  bturl.URL
	RSSI int16
}

// AdapterDiscoveryListener observes the discovery job's adapter diff.
type AdapterDiscoveryListener interface {
	Discovered(a DiscoveredAdapter)
	Lost(url bturl.URL)
}

// DeviceDiscoveryListener observes the discovery job's device diff.
type DeviceDiscoveryListener interface {
	Discovered(d DiscoveredDevice)
	Lost(url bturl.URL)
}

func (m *Manager) runDiscoveryJob() {
	m.discoverAdapters()
	m.discoverDevices()
}

func (m *Manager) discoverAdapters() {
	m.adapterMu.Lock()
	defer m.adapterMu.Unlock()

	handles, err := m.factory.GetDiscoveredAdapters()
	if err != nil {
		btlog.L().Warnf("discovery: GetDiscoveredAdapters failed: %v", err)
		return
	}

	seen := make(map[string]bturl.URL, len(handles))
	for _, h := range handles {
		url := h.URL()
		key := url.AdapterAddress
		seen[key] = url

		_, known := m.knownAdapters[key]
		if !known || m.opts.Rediscover {
			m.fireAdapterDiscovered(DiscoveredAdapter{URL: url, Alias: h.Alias()})
		}
		if !known && m.opts.StartDiscovering {
			m.AdapterGovernor(url).SetDiscovering(true)
		}
	}

	for key, url := range m.knownAdapters {
		if _, stillVisible := seen[key]; !stillVisible {
			m.fireAdapterLost(url)
			if g, ok := m.lookupGovernor(url); ok {
				g.Reset()
			}
		}
	}

	m.knownAdapters = seen
}

func (m *Manager) discoverDevices() {
	m.deviceMu.Lock()
	defer m.deviceMu.Unlock()

	handles, err := m.factory.GetDiscoveredDevices()
	if err != nil {
		btlog.L().Warnf("discovery: GetDiscoveredDevices failed: %v", err)
		return
	}

	seen := make(map[string]bturl.URL, len(handles))
	for _, h := range handles {
		if h.RSSI() == 0 {
			continue
		}
		url := h.URL()
		key := url.AdapterAddress + "/" + url.DeviceAddress
		seen[key] = url

		_, known := m.knownDevices[key]
		if !known || m.opts.Rediscover {
			m.fireDeviceDiscovered(DiscoveredDevice{URL: url, RSSI: h.RSSI()})
		}
	}

	for key, url := range m.knownDevices {
		if _, stillVisible := seen[key]; !stillVisible {
			m.fireDeviceLost(url)
		}
	}

	m.knownDevices = seen
}

func (m *Manager) adapterListenerSnapshot() []AdapterDiscoveryListener {
	out := make([]AdapterDiscoveryListener, len(m.adapterListeners))
	copy(out, m.adapterListeners)
	return out
}

func (m *Manager) deviceListenerSnapshot() []DeviceDiscoveryListener {
	out := make([]DeviceDiscoveryListener, len(m.deviceListeners))
	copy(out, m.deviceListeners)
	return out
}

func (m *Manager) fireAdapterDiscovered(a DiscoveredAdapter) {
	for _, l := range m.adapterListenerSnapshot() {
		safeCall(func() { l.Discovered(a) })
	}
}

func (m *Manager) fireAdapterLost(url bturl.URL) {
	for _, l := range m.adapterListenerSnapshot() {
		safeCall(func() { l.Lost(url) })
	}
}

func (m *Manager) fireDeviceDiscovered(d DiscoveredDevice) {
	for _, l := range m.deviceListenerSnapshot() {
		safeCall(func() { l.Discovered(d) })
	}
}

func (m *Manager) fireDeviceLost(url bturl.URL) {
	for _, l := range m.deviceListenerSnapshot() {
		safeCall(func() { l.Lost(url) })
	}
}

func safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			btlog.L().Errorf("discovery listener panicked: %v", r)
		}
	}()
	fn()
}
