package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/shopper-runner/pkg/config"
	"github.com/devicelab-dev/shopper-runner/pkg/device"
	"github.com/devicelab-dev/shopper-runner/pkg/logger"
)

// newLister is replaced in tests.
var newLister = device.NewLister

var devicesCommand = &cli.Command{
	Name:  "devices",
	Usage: "List devices attached over adb",
	Description: `Print every device "adb devices" reports with its state. Only
devices in the "device" state can run sessions.

Examples:
  shopper-runner devices`,
	Action: runDevices,
}

func runDevices(c *cli.Context) error {
	level := "warn"
	if c.Bool("verbose") {
		level = "debug"
	}
	log, err := logger.New(config.LoggerConfig{Level: level, ServiceName: "shopper-runner"})
	if err != nil {
		return err
	}
	defer func() {
		_ = log.Close()
	}()

	listings, err := newLister(log.Logger).List(c.Context)
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}
	if len(listings) == 0 {
		fmt.Fprintln(c.App.Writer, "No devices attached")
		return nil
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SERIAL\tSTATE\tREADY")
	for _, d := range listings {
		ready := "no"
		if d.Available() {
			ready = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", d.Serial, d.State, ready)
	}
	return w.Flush()
}
