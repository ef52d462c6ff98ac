package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// console prints one line per telemetry record, coloured when stdout is a terminal.
type console struct {
	out     io.Writer
	satName *color.Color
	freq    *color.Color
}

func newConsole() *console {
	c := &console{
		out:     os.Stdout,
		satName: color.New(color.FgHiWhite, color.Bold),
		freq:    color.New(color.FgHiGreen),
	}
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		c.satName.DisableColor()
		c.freq.DisableColor()
	}
	return c
}

func (c *console) record(rec TelemetryRecord) {
	fmt.Fprintf(c.out, "%s az=%.1f el=%.1f down=%s %s up=%s %s\n",
		c.satName.Sprint(rec.SatelliteName),
		rec.Azimuth, rec.Elevation,
		c.freq.Sprint(rec.DownlinkHz), rec.DownlinkMode,
		c.freq.Sprint(rec.UplinkHz), rec.UplinkMode)
}

func (c *console) banner() {
	fmt.Fprintln(c.out, "Click a satellite in SatPC32. You'll see lines appearing here when the selected sat is over the horizon.")
	fmt.Fprintln(c.out, "Press CTRL-C to quit.")
}
