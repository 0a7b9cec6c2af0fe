package vaxel

/*------------------------------------------------------------------
 *
 * Purpose:   	DTMF digits from the MT8870 decoder.
 *
 * Description:	There is one decoder for the whole exchange.  A 4051
 *		multiplexer (TM_A0-2) picks which line it listens to.
 *		The decoder raises STD when it has a tone and puts the
 *		code on Q1-Q4 (Q1 is the least significant bit).
 *
 *		STD comes to us as interrupt events.  A rising edge is
 *		not trusted straight away: STD has to stay high for
 *		StableMs before Q1-Q4 are read, all four in one bulk
 *		read.  A key held down or a re-strobe gives the same
 *		code again, which is dropped if it comes within
 *		DebounceMs of the last accepted one.
 *
 *		Digits go to the line that is tone dialing, or else to
 *		the line that went Ready most recently.
 *
 *		The decoder is powered only while some active line is
 *		off its Idle status.
 *
 *---------------------------------------------------------------*/

import (
	"time"

	"github.com/charmbracelet/log"
)

// MT8870 code to character.  Code 0 means D, but the decoder also shows 0
// with no tone so it is never accepted.
var dtmf_map = [16]byte{'D', '1', '2', '3', '4', '5', '6', '7', '8', '9', '0', '*', '#', 'A', 'B', 'C'}

const no_nibble = 0xFF

// What the tone decoder needs from the expanders.  Satisfied by *MCPDriver.
type toneIO interface {
	pinWriter
	Present(addr uint8) bool
	ReadAllPins16(addr uint8) (uint16, bool)
}

type ToneReader struct {
	mcp   toneIO
	im    *InterruptManager
	lines *LineManager

	addr   uint8
	cfg    DTMFConfig
	timers TimerConfig
	active uint8

	powered  bool
	selected int

	stdHigh bool
	stdRise time.Time
	pending bool

	lastNibble uint8
	lastTime   time.Time

	toneLine int

	clock Clock
	log   *log.Logger
}

func NewToneReader(mcp toneIO, im *InterruptManager, lines *LineManager, cfg *Config, clock Clock) *ToneReader {
	return &ToneReader{
		mcp:        mcp,
		im:         im,
		lines:      lines,
		addr:       cfg.I2C.Main,
		cfg:        cfg.DTMF,
		timers:     cfg.Timers,
		active:     cfg.ActiveLinesMask,
		selected:   NoLine,
		lastNibble: no_nibble,
		toneLine:   NoLine,
		clock:      clock,
		log:        component_logger("DTMF", cfg.Debug.DTMF),
	}
}

// Activate powers the decoder up.
func (tr *ToneReader) Activate() {
	if !tr.mcp.WritePin(tr.addr, PIN_PWDN_MT8870, false) {
		tr.log.Warn("could not power up the decoder")
		return
	}
	tr.powered = true
	tr.stdHigh = false
	tr.pending = false
	tr.log.Info("decoder on")
}

// Deactivate powers the decoder down and forgets any tone in progress.
func (tr *ToneReader) Deactivate() {
	tr.mcp.WritePin(tr.addr, PIN_PWDN_MT8870, true)
	tr.powered = false
	tr.stdHigh = false
	tr.pending = false
	tr.lastNibble = no_nibble
	tr.toneLine = NoLine
	tr.drainStd()
	tr.log.Info("decoder off")
}

func (tr *ToneReader) IsActive() bool {
	return tr.powered
}

// SelectLine points the input multiplexer at a line.
func (tr *ToneReader) SelectLine(line int) bool {
	if !validLine(line) {
		return false
	}
	if line == tr.selected {
		return true
	}
	var mask = uint16(1<<PIN_TM_A0 | 1<<PIN_TM_A1 | 1<<PIN_TM_A2)
	var values = uint16(line&1)<<PIN_TM_A0 | uint16(line>>1&1)<<PIN_TM_A1 | uint16(line>>2&1)<<PIN_TM_A2
	if !tr.mcp.WritePins(tr.addr, mask, values) {
		return false
	}
	tr.selected = line
	tr.log.Debugf("listening to line %d", line)
	return true
}

func (tr *ToneReader) SelectedLine() int {
	return tr.selected
}

/*-------------------------------------------------------------------
 *
 * Name:        Update
 *
 * Purpose:     Called once per main loop cycle.
 *
 * Description:	Power follows the lines.  STD events are taken
 *		from the queue in order, then a rising edge that has
 *		now been high long enough is read.
 *
 *--------------------------------------------------------------------*/

func (tr *ToneReader) Update() {
	if !tr.mcp.Present(tr.addr) {
		return
	}

	if tr.lines.LinesNotIdle()&tr.active == 0 {
		if tr.powered {
			tr.Deactivate()
		}
		tr.drainStd()
		return
	}
	if !tr.powered {
		tr.Activate()
	}

	if target := tr.activeLine(); target != NoLine {
		tr.SelectLine(target)
	}

	for {
		var ev, ok = tr.im.PollEvent(tr.addr, PIN_STD)
		if !ok {
			break
		}
		tr.handleStd(ev.Level)
	}

	var now = tr.clock.Now()
	if tr.pending && now.Sub(tr.stdRise) >= ms(tr.cfg.StableMs) {
		tr.pending = false
		tr.readAndDecode()
	}
}

func (tr *ToneReader) handleStd(high bool) {
	var now = tr.clock.Now()

	if high {
		if tr.stdHigh {
			return
		}
		tr.stdHigh = true
		tr.stdRise = now
		tr.pending = true
		return
	}

	if !tr.stdHigh {
		return
	}
	tr.stdHigh = false

	var held = now.Sub(tr.stdRise)
	if tr.pending {
		tr.pending = false
		if held < ms(tr.cfg.MinToneMs) {
			tr.log.Debugf("tone of %v ignored", held)
			return
		}
		// Q1-Q4 stay latched after STD drops.
		tr.readAndDecode()
	}

	if line := tr.activeLine(); line != NoLine && tr.digitsAllowed(line) {
		tr.lines.SetLineTimer(line, tr.timers.DialingMs)
	}
}

func (tr *ToneReader) drainStd() {
	for {
		if _, ok := tr.im.PollEvent(tr.addr, PIN_STD); !ok {
			return
		}
	}
}

func (tr *ToneReader) readNibble() (uint8, bool) {
	var gpio, ok = tr.mcp.ReadAllPins16(tr.addr)
	if !ok {
		return 0, false
	}

	var n uint8
	for bit, pin := range []uint8{PIN_Q1, PIN_Q2, PIN_Q3, PIN_Q4} {
		if gpio&(1<<pin) != 0 {
			n |= 1 << bit
		}
	}
	return n, true
}

func (tr *ToneReader) readAndDecode() {
	var n, ok = tr.readNibble()
	if !ok {
		tr.log.Warn("could not read the decoder outputs")
		return
	}
	tr.processNibble(n)
}

/*-------------------------------------------------------------------
 *
 * Name:        processNibble
 *
 * Purpose:     Turn one decoder code into a dialed digit.
 *
 * Inputs:	n	- Code from Q1-Q4.
 *
 * Description:	0 is dropped without touching the debounce state.
 *		The first digit on a Ready line makes it ToneDialing.
 *
 *--------------------------------------------------------------------*/

func (tr *ToneReader) processNibble(n uint8) {
	var now = tr.clock.Now()

	if n == 0 {
		tr.log.Debug("empty code ignored")
		return
	}

	if n == tr.lastNibble && now.Sub(tr.lastTime) < ms(tr.cfg.DebounceMs) {
		tr.log.Debugf("repeat of %c ignored", dtmf_map[n])
		return
	}
	tr.lastNibble = n
	tr.lastTime = now

	var ch = dtmf_map[n&0x0F]
	var line = tr.activeLine()
	if line == NoLine {
		tr.log.Warnf("tone %c with no line to take it", ch)
		return
	}
	if !tr.digitsAllowed(line) {
		tr.log.Infof("tone %c rejected, line %d is %s", ch, line, tr.lines.Line(line).CurrentStatus)
		return
	}

	if tr.lines.Line(line).CurrentStatus == LineReady {
		tr.lines.SetStatus(line, LineToneDialing)
	}
	tr.toneLine = line

	tr.log.Infof("line %d tone %c", line, ch)
	tr.lines.AppendDigit(line, ch)
	tr.lines.SetLineTimer(line, tr.timers.DialingMs)
	metricDigits.WithLabelValues("tone").Inc()
}

func (tr *ToneReader) activeLine() int {
	if validLine(tr.toneLine) && tr.lines.Line(tr.toneLine).CurrentStatus == LineToneDialing {
		return tr.toneLine
	}
	return tr.lines.LastLineReady()
}

func (tr *ToneReader) digitsAllowed(line int) bool {
	var st = tr.lines.Line(line).CurrentStatus
	return st == LineReady || st == LineToneDialing
}
