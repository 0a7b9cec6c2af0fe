package vaxel

/*------------------------------------------------------------------
 *
 * Purpose:   	Enumerations and small value types shared by every
 *		part of the exchange.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"time"
)

const MAX_LINES = 8

// NoLine is the sentinel for "no line" in the registry and the peer
// fields of a Line.
const NoLine = -1

type LineStatus uint8

const (
	LineIdle LineStatus = iota
	LineReady
	LinePulseDialing
	LineToneDialing
	LineBusy
	LineFail
	LineRinging
	LineConnected
	LineDisconnected
	LineTimeout
	LineAbandoned
	LineIncoming
	LineOperator
	LineSystemConfig
)

var lineStatusNames = [...]string{
	LineIdle:         "line_idle",
	LineReady:        "line_ready",
	LinePulseDialing: "line_pulse_dialing",
	LineToneDialing:  "line_tone_dialing",
	LineBusy:         "line_busy",
	LineFail:         "line_fail",
	LineRinging:      "line_ringing",
	LineConnected:    "line_connected",
	LineDisconnected: "line_disconnected",
	LineTimeout:      "line_timeout",
	LineAbandoned:    "line_abandoned",
	LineIncoming:     "line_incoming",
	LineOperator:     "line_operator",
	LineSystemConfig: "system_config",
}

func (s LineStatus) String() string {
	if int(s) < len(lineStatusNames) {
		return lineStatusNames[s]
	}

	return "unknown"
}

type HookStatus uint8

const (
	HookOn HookStatus = iota
	HookOff
	HookDisconnected
)

func (h HookStatus) String() string {
	switch h {
	case HookOn:
		return "on"
	case HookOff:
		return "off"
	case HookDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

/*
 * Event is one pin change reported by an expander.
 * Line is the derived line index for hook-sense pins, NoLine otherwise.
 */
type Event struct {
	Addr  uint8
	Pin   uint8
	Level bool
	Line  int
}

func (e Event) String() string {
	return fmt.Sprintf("0x%02X/%d=%t (line %d)", e.Addr, e.Pin, e.Level, e.Line)
}

// Clock is the millisecond time source of the main loop.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock used outside of tests.
var SystemClock Clock = systemClock{}

func validLine(line int) bool {
	return line >= 0 && line < MAX_LINES
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
