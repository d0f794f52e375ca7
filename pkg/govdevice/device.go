// Package govdevice implements the concrete governor for one Bluetooth
// device: connection control via a caller-indexed bitmap, blocked-state
// control, online tracking, the RSSI smoothing/throttling pipeline, and
// distance estimation.
package govdevice

import (
	"sync"
	"time"

	"github.com/newtron-network/btgovernor/pkg/bitmap"
	"github.com/newtron-network/btgovernor/pkg/btlog"
	"github.com/newtron-network/btgovernor/pkg/bturl"
	"github.com/newtron-network/btgovernor/pkg/govcore"
	"github.com/newtron-network/btgovernor/pkg/rssi"
	"github.com/newtron-network/btgovernor/pkg/transport"
)

const (
	// DefaultOnlineTimeout matches the spec's default of 20 seconds.
	DefaultOnlineTimeout = 20 * time.Second
	// DefaultRSSIReportingRate matches the spec's default of 1000ms.
	DefaultRSSIReportingRate = 1000 * time.Millisecond
)

// Listener receives device-specific signal notifications in addition to the
// base governor's Ready/LastUpdatedChanged pair.
type Listener interface {
	RSSIChanged(rssi int16)
	ConnectedChanged(connected bool)
	OnlineChanged(online bool)
	BlockedChanged(blocked bool)
}

// Options configures a device governor's policy knobs. New replaces a zero
// OnlineTimeout and a non-positive SignalPropagationExponent with spec
// defaults. A zero RSSIReportingRate means every sample is reported, and a
// zero MeasuredTxPower means none is configured. RSSIFilteringEnabled has no
// zero-value default since false is a meaningful, deliberate choice; use
// DefaultOptions for the spec's recommended starting point.
type Options struct {
	OnlineTimeout             time.Duration
	MeasuredTxPower           int16
	SignalPropagationExponent float64
	RSSIReportingRate         time.Duration
	RSSIFilteringEnabled      bool
	RSSIFilterKind            rssi.Kind
}

// DefaultOptions returns the spec's documented per-device defaults:
// onlineTimeout=20s, exponent=2.0, rssiReportingRate=1000ms, filtering
// enabled with a Kalman filter.
func DefaultOptions() Options {
	return Options{
		OnlineTimeout:             DefaultOnlineTimeout,
		SignalPropagationExponent: rssi.DefaultPropagationExponent,
		RSSIReportingRate:         DefaultRSSIReportingRate,
		RSSIFilteringEnabled:      true,
		RSSIFilterKind:            rssi.KindKalman,
	}
}

func (o Options) withDefaults() Options {
	if o.OnlineTimeout == 0 {
		o.OnlineTimeout = DefaultOnlineTimeout
	}
	if o.SignalPropagationExponent <= 0 {
		o.SignalPropagationExponent = rssi.DefaultPropagationExponent
	}
	return o
}

// Governor drives one device's lifecycle.
type Governor struct {
	*govcore.Base

	factory transport.Factory
	opts    Options

	connectionControl *bitmap.BitMap
	filterFactory     rssi.Factory

	mu               sync.RWMutex
	blockedControl   bool
	filter           rssi.Filter
	lastAdvertised   time.Time
	lastRSSINotified time.Time
	lastRSSI         int16
	lastAdvertisedTx int16
	online           bool
	manufacturerData map[uint16][]byte
	serviceData      map[string][]byte
	services         []bturl.URL

	listenersMu sync.Mutex
	listeners   []Listener
}

// New constructs a device governor for url, backed by factory.
func New(url bturl.URL, factory transport.Factory, hooks govcore.Hooks, opts Options) *Governor {
	opts = opts.withDefaults()

	g := &Governor{
		factory:       factory,
		opts:          opts,
		filterFactory: rssi.NewFactory(opts.RSSIFilterKind),
	}
	if opts.RSSIFilteringEnabled {
		g.filter = g.filterFactory()
	}

	g.connectionControl = bitmap.New()

	g.Base = govcore.New(url, hooks, govcore.Callbacks{
		Acquire: g.acquire,
		Init:    g.initHandle,
		Update:  g.updateHandle,
		Reset:   g.resetHandle,
	})
	return g
}

// RequestConnection sets caller index's connection-control bit. When the
// aggregate bitmap is any-set, the device should be connected; when it
// clears back to zero, the device should be disconnected.
func (g *Governor) RequestConnection(callerIndex int, want bool) error {
	return g.connectionControl.Set(callerIndex, want)
}

// SetBlocked sets the desired blocked-state; takes effect on the next
// update.
func (g *Governor) SetBlocked(blocked bool) {
	g.mu.Lock()
	g.blockedControl = blocked
	g.mu.Unlock()
}

// SetRSSIFilterEnabled toggles RSSI filtering. Disabling drops the current
// filter instance; re-enabling constructs a fresh one, discarding prior
// filter state.
func (g *Governor) SetRSSIFilterEnabled(enabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if enabled {
		g.filter = g.filterFactory()
	} else {
		g.filter = nil
	}
}

// IsOnline reports whether the device has shown activity within its online
// timeout as of the last update.
func (g *Governor) IsOnline() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.online
}

// LastRSSI returns the most recently reported (post-filter) RSSI sample.
func (g *Governor) LastRSSI() int16 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.lastRSSI
}

// ManufacturerData returns the most recently cached manufacturer data map.
func (g *Governor) ManufacturerData() map[uint16][]byte {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.manufacturerData
}

// ServiceData returns the most recently cached service data map.
func (g *Governor) ServiceData() map[string][]byte {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.serviceData
}

// Services returns the GATT service URLs resolved for this device.
func (g *Governor) Services() []bturl.URL {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]bturl.URL, len(g.services))
	copy(out, g.services)
	return out
}

// EstimatedDistance estimates this device's distance using the last
// reported RSSI and the configured propagation exponent. The TX power used
// is opts.MeasuredTxPower if configured, else the device's own advertised
// TX power as last observed from the native handle, else 0.
func (g *Governor) EstimatedDistance() float64 {
	g.mu.RLock()
	tx := g.opts.MeasuredTxPower
	exponent := g.opts.SignalPropagationExponent
	last := g.lastRSSI
	advertisedTx := g.lastAdvertisedTx
	g.mu.RUnlock()

	if tx == 0 {
		tx = advertisedTx
	}
	return rssi.EstimateDistance(tx, last, exponent)
}

// AddListener registers l for device signal notifications.
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

func (g *Governor) safeFanOut(fn func(Listener)) {
	for _, l := range g.listenerSnapshot() {
		func() {
			defer func() {
				if r := recover(); r != nil {
					btlog.WithURL(g.URL().String()).Errorf("listener panicked: %v", r)
				}
			}()
			fn(l)
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
	dh := h.(transport.DeviceHandle)

	dh.OnRSSIChanged(g.onRSSISample)
	dh.OnConnectedChanged(func(connected bool) {
		g.safeFanOut(func(l Listener) { l.ConnectedChanged(connected) })
	})
	dh.OnServicesResolved(func(svcs []bturl.URL) {
		g.mu.Lock()
		g.services = svcs
		g.mu.Unlock()
	})
	dh.OnBlockedChanged(func(blocked bool) {
		g.safeFanOut(func(l Listener) { l.BlockedChanged(blocked) })
	})
	dh.OnManufacturerDataChanged(func(data map[uint16][]byte) {
		g.mu.Lock()
		g.manufacturerData = data
		g.mu.Unlock()
	})
	dh.OnServiceDataChanged(func(data map[string][]byte) {
		g.mu.Lock()
		g.serviceData = data
		g.mu.Unlock()
	})

	return nil
}

// onRSSISample implements the RSSI pipeline: timestamp, filter, throttled
// emission. Filter state is updated on every sample regardless of whether
// the throttle allows emission.
func (g *Governor) onRSSISample(raw int16) {
	now := time.Now()

	g.mu.Lock()
	g.lastAdvertised = now

	reportable := raw
	if g.filter != nil {
		reportable = int16(g.filter.Update(float64(raw)))
	}

	rate := g.opts.RSSIReportingRate
	emit := rate == 0 || g.lastRSSINotified.IsZero() || now.Sub(g.lastRSSINotified) >= rate
	if emit {
		g.lastRSSINotified = now
		g.lastRSSI = reportable
	}
	g.mu.Unlock()

	if emit {
		g.safeFanOut(func(l Listener) { l.RSSIChanged(reportable) })
	}
}

func (g *Governor) updateHandle(h transport.Handle) error {
	dh := h.(transport.DeviceHandle)

	g.mu.Lock()
	wantBlocked := g.blockedControl
	g.lastAdvertisedTx = dh.TxPower()
	g.mu.Unlock()

	if dh.IsBlocked() != wantBlocked {
		if err := dh.SetBlocked(wantBlocked); err != nil {
			return err
		}
	}

	wantConnected := g.connectionControl.AnySet()
	if wantConnected && !dh.IsConnected() {
		if err := dh.Connect(); err != nil {
			return err
		}
	} else if !wantConnected && dh.IsConnected() {
		if err := dh.Disconnect(); err != nil {
			return err
		}
	}

	g.recomputeOnline()

	return nil
}

func (g *Governor) recomputeOnline() {
	last, ok := g.LastActivity()
	online := ok && time.Since(last) <= g.opts.OnlineTimeout

	g.mu.Lock()
	changed := online != g.online
	g.online = online
	g.mu.Unlock()

	if changed {
		g.safeFanOut(func(l Listener) { l.OnlineChanged(online) })
	}
}

func (g *Governor) resetHandle(h transport.Handle) error {
	g.mu.Lock()
	g.services = nil
	g.online = false
	g.mu.Unlock()
	return nil
}
