package main

import (
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/0xmhha/biorecorder/pkg/recorder"
)

// devicesCommand lists reachable devices.
type devicesCommand struct {
	app *app

	scanTimeout time.Duration
}

func newDevicesCmd(a *app) *cobra.Command {
	c := &devicesCommand{app: a}
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "Scan for BLE peripherals and probe cameras",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Execute(cmd, cmd.OutOrStdout())
		},
	}
	cmd.Flags().DurationVar(&c.scanTimeout, "scan-timeout", 5*time.Second, "how long to listen for BLE advertisements")
	return cmd
}

// Execute runs the scan and displays the inventory.
func (c *devicesCommand) Execute(cmd *cobra.Command, out io.Writer) error {
	cfg := c.app.cfg
	rec := recorder.New(cfg, c.app.devices(cfg), c.app.log)

	inv, err := rec.Scan(cmd.Context(), c.scanTimeout)
	if err != nil {
		return err
	}

	formatter, err := c.app.formatter(out)
	if err != nil {
		return err
	}
	return formatter.FormatDevices(out, inv.Peripherals, inv.Cameras)
}
