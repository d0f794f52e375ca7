// Package btconfig loads the manager's configuration document: discovery
// policy and per-device defaults, mirroring the YAML scenario loading style
// used elsewhere in this codebase.
package btconfig

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/newtron-network/btgovernor/pkg/govdevice"
	"github.com/newtron-network/btgovernor/pkg/manager"
	"github.com/newtron-network/btgovernor/pkg/rssi"
)

// Config is the on-disk configuration document. Duration-like fields are
// expressed in the spec's native units (seconds, milliseconds) to keep the
// YAML close to the spec's Configuration Options table.
type Config struct {
	DiscoveryRateSeconds int  `yaml:"discoveryRate"`
	StartDiscovering     bool `yaml:"startDiscovering"`
	Rediscover           bool `yaml:"rediscover"`
	RefreshWorkers       int  `yaml:"refreshWorkers"`

	Device DeviceConfig `yaml:"device"`
}

// DeviceConfig carries the per-device defaults applied to every
// lazily-constructed device governor. An rssiReportingRate of 0 is treated
// as unset and replaced by 1000ms, so unconditional RSSI reporting cannot
// be selected through this document.
type DeviceConfig struct {
	OnlineTimeoutSeconds        int     `yaml:"onlineTimeout"`
	MeasuredTxPower             int16   `yaml:"measuredTxPower"`
	SignalPropagationExponent   float64 `yaml:"signalPropagationExponent"`
	RSSIReportingRateMillis     int     `yaml:"rssiReportingRate"`
	RSSIFilteringEnabled        *bool   `yaml:"rssiFilteringEnabled"`
	RSSIFilter                  string  `yaml:"rssiFilter"`
}

// Load reads and parses a configuration document from path, applying spec
// defaults to any field left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	applyDefaults(&c)
	return &c, nil
}

func applyDefaults(c *Config) {
	if c.DiscoveryRateSeconds == 0 {
		c.DiscoveryRateSeconds = 10
	}
	if c.RefreshWorkers == 0 {
		c.RefreshWorkers = manager.DefaultRefreshWorkers
	}
	if c.Device.OnlineTimeoutSeconds == 0 {
		c.Device.OnlineTimeoutSeconds = 20
	}
	if c.Device.SignalPropagationExponent <= 0 {
		c.Device.SignalPropagationExponent = rssi.DefaultPropagationExponent
	}
	if c.Device.RSSIReportingRateMillis == 0 {
		c.Device.RSSIReportingRateMillis = 1000
	}
	if c.Device.RSSIFilteringEnabled == nil {
		enabled := true
		c.Device.RSSIFilteringEnabled = &enabled
	}
	if c.Device.RSSIFilter == "" {
		c.Device.RSSIFilter = "kalman"
	}
}

// ManagerOptions translates the parsed document into manager.Options.
func (c *Config) ManagerOptions() manager.Options {
	return manager.Options{
		DiscoveryRate:    time.Duration(c.DiscoveryRateSeconds) * time.Second,
		StartDiscovering: c.StartDiscovering,
		Rediscover:       c.Rediscover,
		RefreshWorkers:   c.RefreshWorkers,
		DeviceOptions:    c.Device.deviceOptions(),
	}
}

func (d DeviceConfig) deviceOptions() govdevice.Options {
	filteringEnabled := true
	if d.RSSIFilteringEnabled != nil {
		filteringEnabled = *d.RSSIFilteringEnabled
	}

	return govdevice.Options{
		OnlineTimeout:             time.Duration(d.OnlineTimeoutSeconds) * time.Second,
		MeasuredTxPower:           d.MeasuredTxPower,
		SignalPropagationExponent: d.SignalPropagationExponent,
		RSSIReportingRate:         time.Duration(d.RSSIReportingRateMillis) * time.Millisecond,
		RSSIFilteringEnabled:      filteringEnabled,
		RSSIFilterKind:            parseFilterKind(d.RSSIFilter),
	}
}

func parseFilterKind(token string) rssi.Kind {
	switch token {
	case "kalman":
		return rssi.KindKalman
	case "moving_average":
		return rssi.KindMovingAverage
	case "none":
		return rssi.KindNone
	default:
		return rssi.KindKalman
	}
}
