//go:build windows

package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sys/windows/registry"
)

// listSerialPorts returns the registered COM ports in numeric order, each with the
// driver device behind it so virtual pairs (com0com, VSPE) can be told apart.
func listSerialPorts() []string {
	key, err := registry.OpenKey(registry.LOCAL_MACHINE, `HARDWARE\DEVICEMAP\SERIALCOMM`, registry.QUERY_VALUE)
	if err != nil {
		log.Debugf("[PORTS] registry: %v", err)
		return nil
	}
	defer key.Close()

	devices, err := key.ReadValueNames(-1)
	if err != nil {
		return nil
	}

	type comPort struct{ name, device string }
	var found []comPort
	for _, device := range devices {
		if name, _, err := key.GetStringValue(device); err == nil {
			found = append(found, comPort{name: name, device: device})
		}
	}
	sort.Slice(found, func(i, j int) bool {
		return comNumber(found[i].name) < comNumber(found[j].name)
	})

	ports := make([]string, 0, len(found))
	for _, p := range found {
		ports = append(ports, fmt.Sprintf("%s\t%s", p.name, p.device))
	}
	return ports
}

func comNumber(name string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(strings.ToUpper(name), "COM"))
	if err != nil {
		return 1 << 30
	}
	return n
}
