package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// ts2000Emulator answers the part of the TS-2000 CAT set this bridge and most
// satellite trackers use. Set commands are silent; anything unknown gets "?;".
type ts2000Emulator struct {
	mu     sync.Mutex
	freqHz int64
	mode   byte
}

func newTS2000Emulator() *ts2000Emulator {
	return &ts2000Emulator{freqHz: 145_800_000, mode: '4'}
}

func (e *ts2000Emulator) state() (int64, byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.freqHz, e.mode
}

// handle executes one command, given without its ';', and returns the reply frame.
func (e *ts2000Emulator) handle(cmd string) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case cmd == "FA":
		return fmt.Sprintf("FA%011d;", e.freqHz)

	case strings.HasPrefix(cmd, "FA"):
		if hz, ok := DecodeFrequency(cmd + ";"); ok {
			e.freqHz = hz
			return ""
		}

	case cmd == "MD":
		return "MD" + string(e.mode) + ";"

	case strings.HasPrefix(cmd, "MD"):
		if len(cmd) == 3 && cmd[2] >= '1' && cmd[2] <= '9' && cmd[2] != '8' {
			e.mode = cmd[2]
			return ""
		}

	case cmd == "IF":
		// P1 freq, P2 step, P3 RIT offset, P4-P6 RIT/XIT/bank, P7 memory, P8 TX,
		// P9 mode, P10 VFO, P11 scan, P12 split, P13 tone, P14 tone no, P15 shift.
		return fmt.Sprintf("IF%011d%05d%+05d%d%d%d%02d%d%c%d%d%d%d%02d%d;",
			e.freqHz, 0, 0, 0, 0, 0, 0, 0, e.mode, 0, 0, 0, 0, 0, 0)

	case cmd == "ID":
		return "ID019;"

	case cmd == "AI":
		return "AI0;"

	case strings.HasPrefix(cmd, "AI") && len(cmd) == 3:
		return ""
	}
	return "?;"
}

// serve answers commands read from rw until it fails; closing rw stops it.
func (e *ts2000Emulator) serve(rw io.ReadWriter) error {
	var catBuf strings.Builder
	buf := make([]byte, 256)

	for {
		n, err := rw.Read(buf)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		catBuf.Write(buf[:n])

		for {
			full := catBuf.String()
			idx := strings.IndexByte(full, frameTerminator)
			if idx < 0 {
				break
			}

			cmd := strings.TrimSpace(full[:idx])
			rest := full[idx+1:]
			catBuf.Reset()
			catBuf.WriteString(rest)

			if cmd == "" {
				continue
			}
			reply := e.handle(cmd)
			log.Debugf("[EMU] %s; -> %q", cmd, reply)
			if reply == "" {
				continue
			}
			if _, err := io.WriteString(rw, reply); err != nil {
				return err
			}
		}
	}
}
