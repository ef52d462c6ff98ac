//go:build !windows

package main

import (
	"sort"

	"go.bug.st/serial"
)

// listSerialPorts returns the serial devices the driver enumerates: USB CAT
// cables, on-board UARTs and macOS call-out devices.
func listSerialPorts() []string {
	ports, err := serial.GetPortsList()
	if err != nil {
		log.Debugf("[PORTS] enumerate: %v", err)
		return nil
	}
	sort.Strings(ports)
	return ports
}
