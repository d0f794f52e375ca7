// Command btctl runs a small in-memory Bluetooth topology through the
// governor and manager layer and logs the lifecycle events it produces.
// It exists to exercise the library end to end; it is not a supported CLI
// for driving real Bluetooth hardware.
//
// Usage:
//
//	btctl -config <file> -duration 10s
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/newtron-network/btgovernor/pkg/btconfig"
	"github.com/newtron-network/btgovernor/pkg/btlog"
	"github.com/newtron-network/btgovernor/pkg/bturl"
	"github.com/newtron-network/btgovernor/pkg/manager"
	"github.com/newtron-network/btgovernor/pkg/memtransport"
)

func main() {
	configPath := flag.String("config", "", "Path to a manager configuration YAML file (optional)")
	duration := flag.Duration("duration", 10*time.Second, "How long to run the demo before shutting down")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	if *verbose {
		if err := btlog.SetLevel("debug"); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	opts := manager.DefaultOptions()
	if *configPath != "" {
		cfg, err := btconfig.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		opts = cfg.ManagerOptions()
	}
	opts.StartDiscovering = true

	factory := memtransport.New()
	adapter := factory.AddAdapter("aa:bb:cc:00:00:01")
	device := adapter.AddDevice("11:22:33:44:55:66")
	device.SetTxPower(-59)
	device.AddCharacteristic("2a00")

	m := manager.New(factory, opts)
	m.Start(true)
	defer m.Dispose()

	deviceURL := bturl.New("", "aa:bb:cc:00:00:01", "11:22:33:44:55:66", "")
	dg := m.DeviceGovernor(deviceURL)
	if err := dg.RequestConnection(0, true); err != nil {
		btlog.L().Warnf("RequestConnection: %v", err)
	}

	device.PushRSSI(-69)

	btlog.L().Infof("btgovernor demo running for %s", *duration)
	time.Sleep(*duration)

	btlog.L().Infof("estimated distance: %.3fm", dg.EstimatedDistance())
	if closest, err := m.ClosestAdapter("11:22:33:44:55:66"); err == nil {
		btlog.L().Infof("closest adapter: %s", closest)
	}
	btlog.L().Info("shutting down")
}
