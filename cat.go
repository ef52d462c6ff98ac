package main

import (
	"errors"
	"fmt"
	"strings"
)

// CAT command dialect of the Kenwood TS-2000 (and the radios / SDR front ends that
// emulate it). Every frame is ASCII and terminated by ';'.
//
//	FA;               -> FA00145951275;   query VFO A frequency
//	FA00145951275;                        set VFO A frequency, no reply
//	MD;               -> MD2;             query operating mode
//	MD2;                                  set operating mode, no reply
const (
	frameTerminator = ';'

	cmdFrequency = "FA"
	cmdMode      = "MD"

	freqDigits   = 11
	freqFrameLen = len(cmdFrequency) + freqDigits + 1
	modeFrameLen = len(cmdMode) + 1 + 1
	maxFrameLen  = 64
	maxFrequency = 99_999_999_999
)

var (
	ErrFrequencyRange = errors.New("frequency out of range")
	ErrUnmappedMode   = errors.New("mode has no CAT code")
)

type Mode int

const (
	ModeUndefined Mode = iota
	ModeLSB
	ModeUSB
	ModeCW
	ModeFM
	ModeAM
	ModeFSK
)

func (m Mode) String() string {
	switch m {
	case ModeLSB:
		return "LSB"
	case ModeUSB:
		return "USB"
	case ModeCW:
		return "CW"
	case ModeFM:
		return "FM"
	case ModeAM:
		return "AM"
	case ModeFSK:
		return "FSK"
	default:
		return "undefined"
	}
}

// catCode returns the MD digit for m. CW-R (7) and FSK-R (9) exist on the radio
// but are never produced here.
func (m Mode) catCode() (byte, bool) {
	switch m {
	case ModeLSB:
		return '1', true
	case ModeUSB:
		return '2', true
	case ModeCW:
		return '3', true
	case ModeFM:
		return '4', true
	case ModeAM:
		return '5', true
	case ModeFSK:
		return '6', true
	default:
		return 0, false
	}
}

func modeFromCATCode(c byte) Mode {
	switch c {
	case '1':
		return ModeLSB
	case '2':
		return ModeUSB
	case '3':
		return ModeCW
	case '4':
		return ModeFM
	case '5':
		return ModeAM
	case '6':
		return ModeFSK
	default:
		return ModeUndefined
	}
}

// ParseMode maps a tracker mode token such as "USB" or "fm" onto a Mode.
// Reverse sideband and data variants come back as ModeUndefined.
func ParseMode(s string) Mode {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LSB":
		return ModeLSB
	case "USB":
		return ModeUSB
	case "CW":
		return ModeCW
	case "FM":
		return ModeFM
	case "AM":
		return ModeAM
	case "FSK":
		return ModeFSK
	default:
		return ModeUndefined
	}
}

// EncodeSetFrequency builds "FA" + 11 digit Hz + ";".
func EncodeSetFrequency(hz int64) ([]byte, error) {
	if hz < 0 || hz > maxFrequency {
		return nil, fmt.Errorf("%w: %d Hz", ErrFrequencyRange, hz)
	}
	return []byte(fmt.Sprintf("%s%0*d;", cmdFrequency, freqDigits, hz)), nil
}

func EncodeQueryFrequency() []byte {
	return []byte(cmdFrequency + ";")
}

// DecodeFrequency parses an FA reply. ok is false for anything that is not
// exactly "FA" + 11 digits + ";".
func DecodeFrequency(frame string) (hz int64, ok bool) {
	if len(frame) != freqFrameLen ||
		!strings.HasPrefix(frame, cmdFrequency) ||
		frame[len(frame)-1] != frameTerminator {
		return 0, false
	}

	for _, c := range frame[len(cmdFrequency) : len(frame)-1] {
		if c < '0' || c > '9' {
			return 0, false
		}
		hz = hz*10 + int64(c-'0')
	}
	return hz, true
}

// EncodeSetMode builds "MD" + code + ";" for modes the radio accepts.
func EncodeSetMode(m Mode) ([]byte, error) {
	code, ok := m.catCode()
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnmappedMode, m)
	}
	return []byte{'M', 'D', code, frameTerminator}, nil
}

func EncodeQueryMode() []byte {
	return []byte(cmdMode + ";")
}

// DecodeMode parses an MD reply; malformed frames and unknown codes give ModeUndefined.
func DecodeMode(frame string) Mode {
	if len(frame) != modeFrameLen ||
		!strings.HasPrefix(frame, cmdMode) ||
		frame[len(frame)-1] != frameTerminator {
		return ModeUndefined
	}
	return modeFromCATCode(frame[2])
}

// isErrorReply reports the radio's "?;" (syntax), "E;" (comms) and "O;" (overflow) answers.
func isErrorReply(frame string) bool {
	switch frame {
	case "?;", "E;", "O;":
		return true
	}
	return false
}

// answers reports whether frame is a reply to a query for cmd. Anything else that
// arrives while waiting is a late answer to an earlier query and is dropped.
func answers(cmd, frame string) bool {
	return strings.HasPrefix(frame, cmd) || isErrorReply(frame) || len(frame) >= maxFrameLen
}
