//go:build windows

package main

import (
	"context"
	"errors"
)

// Pseudo terminals do not exist on Windows; use a virtual COM pair (com0com, VSPE)
// and a real CAT program instead.
func runEmulatorPTY(ctx context.Context) error {
	return errors.New("--emulate-rig needs a pseudo terminal and is not supported on Windows")
}
