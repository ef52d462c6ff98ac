package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// main polls the SatPC32 status line and follows the selected satellite with a
// TS-2000 compatible rig and/or a MacDoppler UDP consumer.
func main() {
	if len(os.Args) == 1 {
		fmt.Println("Pass --help for instructions.")
	}

	cfg, opts, err := parseArgs(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if opts.help {
		fmt.Println("Usage: satpc-rig-bridge [options]")
		fmt.Print(opts.usage)
		return
	}

	if opts.listPorts {
		for _, p := range listSerialPorts() {
			fmt.Println(p)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.emulateRig {
		log.init(cfg.Verbose, false)
		exit(runEmulatorPTY(ctx))
		return
	}

	if err := cfg.validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log.init(cfg.Verbose, cfg.Quiet)
	exit(runBridge(ctx, cfg))
}

func exit(err error) {
	if err != nil {
		log.Error(err)
		log.sync()
		os.Exit(1)
	}
	log.sync()
}
