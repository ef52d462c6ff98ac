package main

import (
	"github.com/spf13/pflag"
)

type options struct {
	listPorts  bool
	emulateRig bool
	help       bool
	usage      string
}

// parseArgs builds the configuration: defaults, then the --config file, then any
// flag given explicitly on the command line.
func parseArgs(args []string) (Config, options, error) {
	fs := pflag.NewFlagSet("satpc-rig-bridge", pflag.ContinueOnError)

	configPath := fs.StringP("config", "c", "", "YAML configuration file")
	useRig := fs.BoolP("rig-control", "r", false, "Enable rig control (TS-2000 CAT, also SDR Console through a virtual COM pair)")
	port := fs.StringP("comport", "p", "", "Rig port, e.g. /dev/ttyUSB0, COM4 or tcp://host:port")
	baud := fs.IntP("baud", "b", 0, "Rig baud rate, e.g. 57600")
	followMode := fs.BoolP("follow-mode", "m", false, "Also set the rig mode from the downlink mode")
	udp := fs.StringP("udp", "u", "", "Send MacDoppler UDP datagrams to hostname:port (e.g. 10.45.0.1:2345)")
	telemetry := fs.StringP("telemetry", "t", "", "Telemetry source, tcp://host:port or file:/path (default "+defaultTelemetrySource+")")
	httpListen := fs.StringP("http", "H", "", "Serve the /ws status feed and /metrics on this address, e.g. 127.0.0.1:17800")
	verbose := fs.BoolP("verbose", "v", false, "Enable verbose (debug) logging")
	quiet := fs.BoolP("quiet", "q", false, "Only log warnings and errors")
	listPorts := fs.BoolP("list-ports", "l", false, "List serial ports and exit")
	emulate := fs.BoolP("emulate-rig", "e", false, "Run a TS-2000 emulator on a new pseudo terminal instead of bridging")
	help := fs.BoolP("help", "h", false, "Display help")

	opts := options{usage: fs.FlagUsages()}
	if err := fs.Parse(args); err != nil {
		return Config{}, opts, err
	}

	opts.help = *help
	opts.listPorts = *listPorts
	opts.emulateRig = *emulate

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return cfg, opts, err
	}

	if fs.Changed("rig-control") {
		cfg.UseRig = *useRig
	}
	if fs.Changed("comport") {
		cfg.Rig.Port = *port
	}
	if fs.Changed("baud") {
		cfg.Rig.Baud = *baud
	}
	if fs.Changed("follow-mode") {
		cfg.Rig.FollowMode = *followMode
	}
	if fs.Changed("udp") {
		cfg.UDP = *udp
	}
	if fs.Changed("telemetry") {
		cfg.Telemetry.Source = *telemetry
	}
	if fs.Changed("http") {
		cfg.HTTPListen = *httpListen
	}
	if fs.Changed("verbose") {
		cfg.Verbose = *verbose
	}
	if fs.Changed("quiet") {
		cfg.Quiet = *quiet
	}

	return cfg, opts, nil
}
