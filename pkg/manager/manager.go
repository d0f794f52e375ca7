// Package manager implements the governor registry and scheduler: lazy
// governor construction, per-governor refresh scheduling on a bounded
// worker pool, and the periodic discovery job that keeps the registry in
// sync with what the transport factory currently reports.
package manager

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/newtron-network/btgovernor/pkg/btlog"
	"github.com/newtron-network/btgovernor/pkg/bturl"
	"github.com/newtron-network/btgovernor/pkg/govadapter"
	"github.com/newtron-network/btgovernor/pkg/govchar"
	"github.com/newtron-network/btgovernor/pkg/govcore"
	"github.com/newtron-network/btgovernor/pkg/govdevice"
	"github.com/newtron-network/btgovernor/pkg/transport"
)

const (
	// DefaultRefreshWorkers matches the spec's default bounded refresh pool
	// size.
	DefaultRefreshWorkers = 5
	refreshInitialDelay   = 5 * time.Second
	refreshPeriod         = 5 * time.Second
)

// governor is the subset of govcore.Base's public surface the manager
// needs to schedule and cascade, satisfied by every concrete governor
// through struct embedding.
type governor interface {
	URL() bturl.URL
	Update()
	Reset()
	Dispose()
}

// Options configures the manager's scheduling policy and per-device
// defaults applied to lazily-constructed device governors.
type Options struct {
	DiscoveryRate    time.Duration
	StartDiscovering bool
	Rediscover       bool
	RefreshWorkers   int
	DeviceOptions    govdevice.Options
}

// DefaultOptions returns the spec's documented manager defaults:
// discoveryRate=10s, startDiscovering=false, rediscover=false.
func DefaultOptions() Options {
	return Options{
		DiscoveryRate:  10 * time.Second,
		RefreshWorkers: DefaultRefreshWorkers,
		DeviceOptions:  govdevice.DefaultOptions(),
	}
}

func (o Options) withDefaults() Options {
	if o.DiscoveryRate <= 0 {
		o.DiscoveryRate = 10 * time.Second
	}
	if o.RefreshWorkers <= 0 {
		o.RefreshWorkers = DefaultRefreshWorkers
	}
	return o
}

// Manager owns every governor's lifecycle: lazy construction, periodic
// refresh, cascading reset/update, and discovery.
type Manager struct {
	factory transport.Factory
	opts    Options

	registryMu sync.Mutex
	registry   map[string]governor
	refreshers map[string]chan struct{}

	refreshSem chan struct{}
	wg         sync.WaitGroup

	discoveryMu      sync.Mutex
	discoveryRunning bool
	discoveryStop    chan struct{}

	adapterMu        sync.Mutex
	knownAdapters    map[string]bturl.URL
	adapterListeners []AdapterDiscoveryListener

	deviceMu        sync.Mutex
	knownDevices    map[string]bturl.URL
	deviceListeners []DeviceDiscoveryListener
}

// New constructs a Manager backed by factory.
func New(factory transport.Factory, opts Options) *Manager {
	opts = opts.withDefaults()
	return &Manager{
		factory:       factory,
		opts:          opts,
		registry:      make(map[string]governor),
		refreshers:    make(map[string]chan struct{}),
		refreshSem:    make(chan struct{}, opts.RefreshWorkers),
		knownAdapters: make(map[string]bturl.URL),
		knownDevices:  make(map[string]bturl.URL),
	}
}

// AddAdapterDiscoveryListener registers l for adapter discovered/lost
// events.
func (m *Manager) AddAdapterDiscoveryListener(l AdapterDiscoveryListener) {
	m.adapterMu.Lock()
	m.adapterListeners = append(m.adapterListeners, l)
	m.adapterMu.Unlock()
}

// AddDeviceDiscoveryListener registers l for device discovered/lost events.
func (m *Manager) AddDeviceDiscoveryListener(l DeviceDiscoveryListener) {
	m.deviceMu.Lock()
	m.deviceListeners = append(m.deviceListeners, l)
	m.deviceMu.Unlock()
}

// Start schedules the discovery job at a fixed rate, starting immediately.
// Idempotent with respect to concurrent calls.
func (m *Manager) Start(startDiscovering bool) {
	m.discoveryMu.Lock()
	defer m.discoveryMu.Unlock()
	if m.discoveryRunning {
		return
	}
	m.opts.StartDiscovering = startDiscovering
	m.discoveryRunning = true
	m.discoveryStop = make(chan struct{})

	stop := m.discoveryStop
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.runDiscoveryJob()
		ticker := time.NewTicker(m.opts.DiscoveryRate)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.runDiscoveryJob()
			}
		}
	}()
}

// Stop cancels the discovery task.
func (m *Manager) Stop() {
	m.discoveryMu.Lock()
	defer m.discoveryMu.Unlock()
	if !m.discoveryRunning {
		return
	}
	close(m.discoveryStop)
	m.discoveryRunning = false
}

// GetGovernor looks up or lazily constructs the governor for url, enrolling
// it in the refresh schedule on first construction.
func (m *Manager) GetGovernor(url bturl.URL) governor {
	key := url.String()

	m.registryMu.Lock()
	if g, ok := m.registry[key]; ok {
		m.registryMu.Unlock()
		return g
	}
	g := m.construct(url)
	m.registry[key] = g
	m.registryMu.Unlock()

	g.Update()
	m.enrollRefresh(key, g)
	return g
}

func (m *Manager) lookupGovernor(url bturl.URL) (governor, bool) {
	m.registryMu.Lock()
	defer m.registryMu.Unlock()
	g, ok := m.registry[url.String()]
	return g, ok
}

// AdapterGovernor returns the typed adapter governor for url, lazily
// constructing it. Panics if url does not address an adapter.
func (m *Manager) AdapterGovernor(url bturl.URL) *govadapter.Governor {
	if !url.IsAdapter() {
		panic("manager: AdapterGovernor called with a non-adapter URL: " + url.String())
	}
	return m.GetGovernor(url).(*govadapter.Governor)
}

// DeviceGovernor returns the typed device governor for url, lazily
// constructing it. Panics if url does not address a device.
func (m *Manager) DeviceGovernor(url bturl.URL) *govdevice.Governor {
	if !url.IsDevice() {
		panic("manager: DeviceGovernor called with a non-device URL: " + url.String())
	}
	return m.GetGovernor(url).(*govdevice.Governor)
}

// CharacteristicGovernor returns the typed characteristic governor for url,
// lazily constructing it. Panics if url does not address a characteristic.
func (m *Manager) CharacteristicGovernor(url bturl.URL) *govchar.Governor {
	if !url.IsCharacteristic() {
		panic("manager: CharacteristicGovernor called with a non-characteristic URL: " + url.String())
	}
	return m.GetGovernor(url).(*govchar.Governor)
}

// ClosestAdapter resolves a device's location: among every registered
// device governor sharing deviceAddress (one per adapter the device is
// currently visible through), it returns the adapter URL of the one
// reporting the smallest estimated distance. Ties break on the
// lexicographically smallest adapter address. Returns an error if no
// device governor for that address is registered, and only considers
// governors already in the registry — it never triggers discovery.
func (m *Manager) ClosestAdapter(deviceAddress string) (bturl.URL, error) {
	deviceAddress = strings.ToLower(deviceAddress)

	m.registryMu.Lock()
	var candidates []*govdevice.Governor
	for _, g := range m.registry {
		dg, ok := g.(*govdevice.Governor)
		if ok && dg.URL().DeviceAddress == deviceAddress {
			candidates = append(candidates, dg)
		}
	}
	m.registryMu.Unlock()

	if len(candidates) == 0 {
		return bturl.URL{}, fmt.Errorf("manager: no device governor registered for device address %q", deviceAddress)
	}

	best := candidates[0]
	bestDistance := best.EstimatedDistance()
	for _, dg := range candidates[1:] {
		d := dg.EstimatedDistance()
		if d < bestDistance || (d == bestDistance && dg.URL().AdapterAddress < best.URL().AdapterAddress) {
			best, bestDistance = dg, d
		}
	}
	return best.URL().AdapterURL(), nil
}

func (m *Manager) construct(url bturl.URL) governor {
	switch {
	case url.IsCharacteristic():
		return govchar.New(url, m.factory, m)
	case url.IsDevice():
		return govdevice.New(url, m.factory, m, m.opts.DeviceOptions)
	default:
		return govadapter.New(url, m.factory, m)
	}
}

func (m *Manager) enrollRefresh(key string, g governor) {
	stop := make(chan struct{})
	m.registryMu.Lock()
	m.refreshers[key] = stop
	m.registryMu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		timer := time.NewTimer(refreshInitialDelay)
		defer timer.Stop()
		for {
			select {
			case <-stop:
				return
			case <-timer.C:
				m.runRefresh(g)
				timer.Reset(refreshPeriod)
			}
		}
	}()
}

func (m *Manager) runRefresh(g governor) {
	m.refreshSem <- struct{}{}
	defer func() { <-m.refreshSem }()
	g.Update()
}

// DisposeGovernor cancels the governor's refresh task, disposes it, and
// removes it from the registry.
func (m *Manager) DisposeGovernor(url bturl.URL) {
	key := url.String()

	m.registryMu.Lock()
	g, ok := m.registry[key]
	if !ok {
		m.registryMu.Unlock()
		return
	}
	if stop, ok := m.refreshers[key]; ok {
		close(stop)
		delete(m.refreshers, key)
	}
	delete(m.registry, key)
	m.registryMu.Unlock()

	g.Dispose()
}

// Dispose shuts down discovery and refresh scheduling, clears listener
// sets, and disposes every governor, logging and swallowing individual
// failures.
func (m *Manager) Dispose() {
	m.Stop()

	m.registryMu.Lock()
	governors := make([]governor, 0, len(m.registry))
	for key, stop := range m.refreshers {
		close(stop)
		delete(m.refreshers, key)
	}
	for key, g := range m.registry {
		governors = append(governors, g)
		delete(m.registry, key)
	}
	m.registryMu.Unlock()

	m.wg.Wait()

	for _, g := range governors {
		m.disposeOne(g)
	}

	m.adapterMu.Lock()
	m.adapterListeners = nil
	m.adapterMu.Unlock()

	m.deviceMu.Lock()
	m.deviceListeners = nil
	m.deviceMu.Unlock()
}

func (m *Manager) disposeOne(g governor) {
	defer func() {
		if r := recover(); r != nil {
			btlog.WithURL(g.URL().String()).Errorf("governor Dispose panicked: %v", r)
		}
	}()
	g.Dispose()
}

// ResetDescendants implements govcore.Hooks: every registered governor
// whose URL is a strict descendant of parent is reset.
func (m *Manager) ResetDescendants(parent bturl.URL) {
	for _, g := range m.descendants(parent) {
		g.Reset()
	}
}

// UpdateDescendants refreshes every registered governor whose URL is a
// strict descendant of parent.
func (m *Manager) UpdateDescendants(parent bturl.URL) {
	for _, g := range m.descendants(parent) {
		g.Update()
	}
}

// GovernorReady implements govcore.Hooks. The manager has no independent
// readiness aggregation today; it exists so governors can report through a
// single hook surface without an import cycle.
func (m *Manager) GovernorReady(bturl.URL, bool) {}

func (m *Manager) descendants(parent bturl.URL) []governor {
	m.registryMu.Lock()
	defer m.registryMu.Unlock()

	var out []governor
	for _, g := range m.registry {
		if g.URL().IsDescendant(parent) {
			out = append(out, g)
		}
	}
	return out
}

var _ govcore.Hooks = (*Manager)(nil)
