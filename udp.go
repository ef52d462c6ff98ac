package main

import (
	"fmt"
	"net"
)

// FormatRadioReport renders the MacDoppler style datagram, e.g.
//
//	[Sat Radio Report:Down Mhz:435.18000, Down Mode:FM, Up MHz:145.98000, Up Mode:FM]
func FormatRadioReport(rec TelemetryRecord) string {
	return fmt.Sprintf("[Sat Radio Report:Down Mhz:%.5f, Down Mode:%s, Up MHz:%.5f, Up Mode:%s]",
		float64(rec.DownlinkHz)/1e6, rec.DownlinkMode,
		float64(rec.UplinkHz)/1e6, rec.UplinkMode)
}

type udpReporter struct {
	conn    net.PacketConn
	addr    *net.UDPAddr
	metrics *metrics
}

func newUDPReporter(target string, m *metrics) (*udpReporter, error) {
	if _, _, err := parseUDPTarget(target); err != nil {
		return nil, err
	}

	addr, err := net.ResolveUDPAddr("udp", target)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", target, err)
	}

	conn, err := net.ListenPacket("udp", ":0")
	if err != nil {
		return nil, err
	}

	log.Printf("[UDP] reporting to %s", addr)
	return &udpReporter{conn: conn, addr: addr, metrics: m}, nil
}

func (u *udpReporter) Send(rec TelemetryRecord) error {
	datagram := FormatRadioReport(rec)
	if _, err := u.conn.WriteTo([]byte(datagram), u.addr); err != nil {
		u.metrics.udpReport(resultError)
		return fmt.Errorf("send to %s: %w", u.addr, err)
	}
	u.metrics.udpReport(resultOK)
	log.Debugf("[UDP] %s", datagram)
	return nil
}

func (u *udpReporter) Close() error {
	return u.conn.Close()
}
