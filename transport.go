package main

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"go.bug.st/serial"
)

var ErrReadTimeout = errors.New("read timeout")

// Port is the byte channel to the radio. ReadByte blocks for at most timeout and
// returns ErrReadTimeout when nothing arrived.
type Port interface {
	Write(p []byte) (int, error)
	ReadByte(timeout time.Duration) (byte, error)
	Close() error
}

// openPort opens addr as either "tcp://host:port" (CAT over a network bridge) or a
// serial device ("serial:/dev/ttyUSB0", "/dev/ttyUSB0", "COM4").
func openPort(addr string, baud int) (Port, error) {
	if strings.HasPrefix(addr, "tcp://") {
		return openTCPPort(strings.TrimPrefix(addr, "tcp://"))
	}
	return openSerialPort(strings.TrimPrefix(addr, "serial:"), baud)
}

type serialPort struct {
	port    serial.Port
	timeout time.Duration
	buf     [1]byte
}

func openSerialPort(device string, baud int) (*serialPort, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	p, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s @ %d baud: %w", device, baud, err)
	}
	return &serialPort{port: p}, nil
}

func (s *serialPort) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *serialPort) ReadByte(timeout time.Duration) (byte, error) {
	if timeout != s.timeout {
		if err := s.port.SetReadTimeout(timeout); err != nil {
			return 0, err
		}
		s.timeout = timeout
	}

	n, err := s.port.Read(s.buf[:])
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrReadTimeout
	}
	return s.buf[0], nil
}

func (s *serialPort) Close() error {
	return s.port.Close()
}

type tcpPort struct {
	conn net.Conn
	r    *bufio.Reader
}

func openTCPPort(hostport string) (*tcpPort, error) {
	conn, err := net.DialTimeout("tcp", hostport, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", hostport, err)
	}
	return newTCPPort(conn), nil
}

func newTCPPort(conn net.Conn) *tcpPort {
	return &tcpPort{conn: conn, r: bufio.NewReader(conn)}
}

func (t *tcpPort) Write(p []byte) (int, error) {
	return t.conn.Write(p)
}

func (t *tcpPort) ReadByte(timeout time.Duration) (byte, error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, err
	}

	b, err := t.r.ReadByte()
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return 0, ErrReadTimeout
		}
		return 0, err
	}
	return b, nil
}

func (t *tcpPort) Close() error {
	return t.conn.Close()
}
