package events

import (
	"fmt"
	"strconv"
	"strings"
)

// Code identifies an event. Values at or above UserBase are application
// defined.
type Code int32

// System event codes.
const (
	Complete             Code = 0x01
	UserAbort            Code = 0x02
	ErrorAbort           Code = 0x03
	Time                 Code = 0x04
	Repaint              Code = 0x05
	StreamErrorStopped   Code = 0x06
	StreamErrorStill     Code = 0x07
	ErrorStillPlaying    Code = 0x08
	PaletteChanged       Code = 0x09
	VideoSizeChanged     Code = 0x0A
	QualityChange        Code = 0x0B
	ShuttingDown         Code = 0x0C
	ClockChanged         Code = 0x0D
	Paused               Code = 0x0E
	OpeningFile          Code = 0x10
	BufferingData        Code = 0x11
	FullscreenLost       Code = 0x12
	Activate             Code = 0x13
	NeedRestart          Code = 0x14
	WindowDestroyed      Code = 0x15
	DisplayChanged       Code = 0x16
	Starvation           Code = 0x17
	OLEEvent             Code = 0x18
	NotifyWindow         Code = 0x19
	StreamControlStopped Code = 0x1A
	StreamControlStarted Code = 0x1B
	ErrorAbortEx         Code = 0x45

	// UserBase is the first application-defined code.
	UserBase Code = 0x8000
)

var codeNames = map[Code]string{
	Complete:             "Complete",
	UserAbort:            "UserAbort",
	ErrorAbort:           "ErrorAbort",
	Time:                 "Time",
	Repaint:              "Repaint",
	StreamErrorStopped:   "StreamErrorStopped",
	StreamErrorStill:     "StreamErrorStill",
	ErrorStillPlaying:    "ErrorStillPlaying",
	PaletteChanged:       "PaletteChanged",
	VideoSizeChanged:     "VideoSizeChanged",
	QualityChange:        "QualityChange",
	ShuttingDown:         "ShuttingDown",
	ClockChanged:         "ClockChanged",
	Paused:               "Paused",
	OpeningFile:          "OpeningFile",
	BufferingData:        "BufferingData",
	FullscreenLost:       "FullscreenLost",
	Activate:             "Activate",
	NeedRestart:          "NeedRestart",
	WindowDestroyed:      "WindowDestroyed",
	DisplayChanged:       "DisplayChanged",
	Starvation:           "Starvation",
	OLEEvent:             "OLEEvent",
	NotifyWindow:         "NotifyWindow",
	StreamControlStopped: "StreamControlStopped",
	StreamControlStarted: "StreamControlStarted",
	ErrorAbortEx:         "ErrorAbortEx",
}

// IsUser reports whether c is an application-defined code.
func (c Code) IsUser() bool {
	return c >= UserBase
}

// IsTerminal reports whether c ends a WaitForTerminal loop.
func (c Code) IsTerminal() bool {
	return c == Complete || c == UserAbort || c == ErrorAbort
}

// String returns the code name, "User+N" for user codes, or hex.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	if c.IsUser() {
		return fmt.Sprintf("User+%d", int32(c-UserBase))
	}
	return fmt.Sprintf("0x%02X", int32(c))
}

// ParseCode parses a code name, a "User+N" form, or a decimal/hex integer.
func ParseCode(s string) (Code, error) {
	for c, name := range codeNames {
		if strings.EqualFold(name, s) {
			return c, nil
		}
	}
	if rest, ok := strings.CutPrefix(s, "User+"); ok {
		n, err := strconv.ParseInt(rest, 10, 32)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid user event code %q", s)
		}
		return UserBase + Code(n), nil
	}
	n, err := strconv.ParseInt(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("unknown event code %q", s)
	}
	return Code(n), nil
}
