//go:build !windows

package main

import (
	"context"
	"fmt"

	"github.com/creack/pty"
)

// runEmulatorPTY serves a TS-2000 emulator on a fresh pseudo terminal until ctx
// is cancelled. Point the bridge (or any CAT program) at the printed slave path.
func runEmulatorPTY(ctx context.Context) error {
	ptmx, tty, err := pty.Open()
	if err != nil {
		return fmt.Errorf("pty open: %w", err)
	}
	defer tty.Close()

	emu := newTS2000Emulator()
	log.Printf("[EMU] TS-2000 emulator on %s", tty.Name())

	errc := make(chan error, 1)
	go func() {
		errc <- emu.serve(ptmx)
	}()

	select {
	case <-ctx.Done():
		ptmx.Close()
		<-errc
		return nil
	case err := <-errc:
		ptmx.Close()
		return err
	}
}
