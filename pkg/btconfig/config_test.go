package btconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/newtron-network/btgovernor/pkg/rssi"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing test config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "discoveryRate: 5\n")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if c.DiscoveryRateSeconds != 5 {
		t.Fatalf("DiscoveryRateSeconds = %d, want 5", c.DiscoveryRateSeconds)
	}
	if c.Device.OnlineTimeoutSeconds != 20 {
		t.Fatalf("OnlineTimeoutSeconds = %d, want 20 (default)", c.Device.OnlineTimeoutSeconds)
	}
	if c.Device.SignalPropagationExponent != rssi.DefaultPropagationExponent {
		t.Fatalf("SignalPropagationExponent = %v, want default", c.Device.SignalPropagationExponent)
	}
	if c.Device.RSSIFilteringEnabled == nil || !*c.Device.RSSIFilteringEnabled {
		t.Fatal("expected RSSIFilteringEnabled to default to true")
	}
}

func TestLoadRespectsExplicitFalse(t *testing.T) {
	path := writeConfig(t, "device:\n  rssiFilteringEnabled: false\n")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if c.Device.RSSIFilteringEnabled == nil || *c.Device.RSSIFilteringEnabled {
		t.Fatal("expected explicit false to be preserved, not overwritten by the default")
	}

	opts := c.ManagerOptions()
	if opts.DeviceOptions.RSSIFilteringEnabled {
		t.Fatal("expected ManagerOptions to carry the explicit false through")
	}
}

func TestManagerOptionsTranslatesUnits(t *testing.T) {
	path := writeConfig(t, `
discoveryRate: 15
startDiscovering: true
device:
  onlineTimeout: 30
  rssiReportingRate: 2000
  measuredTxPower: -59
  rssiFilter: moving_average
`)

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	opts := c.ManagerOptions()
	if opts.DiscoveryRate != 15*time.Second {
		t.Fatalf("DiscoveryRate = %v, want 15s", opts.DiscoveryRate)
	}
	if !opts.StartDiscovering {
		t.Fatal("expected StartDiscovering to be true")
	}
	if opts.DeviceOptions.OnlineTimeout != 30*time.Second {
		t.Fatalf("OnlineTimeout = %v, want 30s", opts.DeviceOptions.OnlineTimeout)
	}
	if opts.DeviceOptions.RSSIReportingRate != 2*time.Second {
		t.Fatalf("RSSIReportingRate = %v, want 2s", opts.DeviceOptions.RSSIReportingRate)
	}
	if opts.DeviceOptions.MeasuredTxPower != -59 {
		t.Fatalf("MeasuredTxPower = %d, want -59", opts.DeviceOptions.MeasuredTxPower)
	}
	if opts.DeviceOptions.RSSIFilterKind != rssi.KindMovingAverage {
		t.Fatalf("RSSIFilterKind = %v, want moving_average", opts.DeviceOptions.RSSIFilterKind)
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
