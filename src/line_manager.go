package vaxel

/*------------------------------------------------------------------
 *
 * Purpose:   	Line registry and status state machine.
 *
 * Description:	There are always MAX_LINES line records.  They are
 *		created once and never go away; configuration only
 *		decides which are active.
 *
 *		Every accepted status change raises a change bit for
 *		the line.  The line action layer picks those up once per
 *		cycle.  Several changes of one line within one cycle
 *		collapse into a single dispatch of the latest status.
 *
 *		The registry also remembers the line that most recently
 *		went Ready.  The DTMF decoder is shared by all lines and
 *		cannot tell which one a tone came from, so that is the
 *		line its digits go to.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

type StatusChangedFunc func(line int, st LineStatus)

type Line struct {
	Number      int
	Active      bool
	PhoneNumber string

	CurrentStatus  LineStatus
	PreviousStatus LineStatus
	CurrentHook    HookStatus
	PreviousHook   HookStatus

	DialedDigits string

	IncomingFrom int
	OutgoingTo   int

	// Zero means no timer.
	TimerEnd time.Time

	Ring RingTelemetry

	// Pulse diagnostics.
	Gap      time.Duration
	LastEdge time.Time
}

// RingTelemetry is owned by the ring generator and mirrored here for status readers.
type RingTelemetry struct {
	State      RingState
	Iteration  int
	StateStart time.Time
	LastToggle time.Time
	FR         bool
	RM         bool
}

func (l *Line) reset() {
	l.DialedDigits = ""
	l.TimerEnd = time.Time{}
	l.IncomingFrom = NoLine
	l.OutgoingTo = NoLine
}

type LineManager struct {
	lines [MAX_LINES]Line

	changeFlag uint8
	timersMask uint8
	notIdle    uint8
	activeMask uint8
	configured uint8

	lastLineReady int

	callback StatusChangedFunc
	clock    Clock
	log      *log.Logger
}

func NewLineManager(cfg *Config, clock Clock) *LineManager {
	var lm = &LineManager{
		lastLineReady: NoLine,
		clock:         clock,
		log:           component_logger("LINES", cfg.Debug.Lines),
	}

	for i := range lm.lines {
		var l = &lm.lines[i]
		l.Number = i
		l.PhoneNumber = cfg.PhoneNumber(i)
		l.CurrentStatus = LineIdle
		l.PreviousStatus = LineIdle
		l.CurrentHook = HookOn
		l.PreviousHook = HookOn
		l.reset()
	}

	lm.configured = cfg.ActiveLinesMask
	lm.SetActiveMask(cfg.ActiveLinesMask)

	return lm
}

// Line returns the record for one line, nil for an invalid index.
func (lm *LineManager) Line(i int) *Line {
	if !validLine(i) {
		lm.log.Errorf("invalid line index %d", i)
		return nil
	}
	return &lm.lines[i]
}

func (lm *LineManager) SetActiveMask(mask uint8) {
	lm.activeMask = mask
	for i := range lm.lines {
		lm.lines[i].Active = mask&(1<<i) != 0
	}
}

// AdjustActiveLines drops the configured lines whose SLIC expander did not answer.
func (lm *LineManager) AdjustActiveLines(slic1, slic2 bool) {
	var mask = lm.configured & AllowMask(slic1, slic2)
	if mask != lm.configured {
		lm.log.Warnf("active lines 0x%02X, configured 0x%02X (SLIC1 %t, SLIC2 %t)", mask, lm.configured, slic1, slic2)
	}
	lm.SetActiveMask(mask)
}

func (lm *LineManager) ActiveMask() uint8 {
	return lm.activeMask
}

func (lm *LineManager) SetStatusChangedCallback(cb StatusChangedFunc) {
	lm.callback = cb
}

/*-------------------------------------------------------------------
 *
 * Name:        SetStatus
 *
 * Purpose:     Move a line to a new status.
 *
 * Inputs:	line	- Line index.
 *		st	- New status.
 *
 * Description:	Entry side effects:
 *
 *		Idle	dialed digits, peers and the line timer are
 *			cleared.
 *		Ready	the line becomes the last ready line.
 *
 *		Leaving Ready while being the last ready line clears
 *		that pointer.  The not-idle mask follows the status.
 *		Then the change bit is raised and the callback runs.
 *
 *		Setting the status a line already has raises nothing;
 *		for Idle the entry side effects still apply.
 *
 *--------------------------------------------------------------------*/

func (lm *LineManager) SetStatus(line int, st LineStatus) {
	var l = lm.Line(line)
	if l == nil {
		return
	}

	if l.CurrentStatus == st {
		if st == LineIdle {
			l.reset()
			lm.timersMask &^= 1 << line
		}
		lm.log.Debugf("line %d already %s", line, st)
		return
	}

	l.PreviousStatus = l.CurrentStatus
	l.CurrentStatus = st

	if l.PreviousStatus == LineReady && lm.lastLineReady == line {
		lm.lastLineReady = NoLine
	}

	switch st {
	case LineIdle:
		l.reset()
		lm.timersMask &^= 1 << line
		lm.notIdle &^= 1 << line
	case LineReady:
		lm.lastLineReady = line
		lm.notIdle |= 1 << line
	default:
		lm.notIdle |= 1 << line
	}

	lm.changeFlag |= 1 << line

	lm.log.Infof("line %d: %s -> %s", line, l.PreviousStatus, st)
	observe_status(line, st)

	if lm.callback != nil {
		lm.callback(line, st)
	}
}

func (lm *LineManager) SetHook(line int, hook HookStatus) {
	var l = lm.Line(line)
	if l == nil {
		return
	}
	l.PreviousHook = l.CurrentHook
	l.CurrentHook = hook
}

// SetLineTimer arms the one timer of a line, replacing any earlier deadline.
func (lm *LineManager) SetLineTimer(line int, durationMs int) {
	var l = lm.Line(line)
	if l == nil {
		return
	}
	l.TimerEnd = lm.clock.Now().Add(ms(durationMs))
	lm.timersMask |= 1 << line
}

func (lm *LineManager) ResetLineTimer(line int) {
	var l = lm.Line(line)
	if l == nil {
		return
	}
	l.TimerEnd = time.Time{}
	lm.timersMask &^= 1 << line
}

func (lm *LineManager) TimerActive(line int) bool {
	return validLine(line) && lm.timersMask&(1<<line) != 0
}

// ExpiredTimers returns lines in mask whose deadline has passed, disarming them.
func (lm *LineManager) ExpiredTimers(mask uint8) []int {
	var timers = lm.timersMask & mask
	if timers == 0 {
		return nil
	}

	var now = lm.clock.Now()
	var expired []int
	for i := range MAX_LINES {
		if timers&(1<<i) == 0 {
			continue
		}
		var l = &lm.lines[i]
		if !l.TimerEnd.IsZero() && !now.Before(l.TimerEnd) {
			lm.timersMask &^= 1 << i
			l.TimerEnd = time.Time{}
			expired = append(expired, i)
		}
	}
	return expired
}

func (lm *LineManager) AppendDigit(line int, d byte) {
	var l = lm.Line(line)
	if l == nil {
		return
	}
	l.DialedDigits += string(d)
	lm.log.Infof("line %d dialed %q (%s)", line, d, l.DialedDigits)
}

func (lm *LineManager) ChangeFlags() uint8 {
	return lm.changeFlag
}

func (lm *LineManager) ClearChangeFlag(line int) {
	if validLine(line) {
		lm.changeFlag &^= 1 << line
	}
}

// TakeChanged clears and returns the changed lines within mask, lowest first.
func (lm *LineManager) TakeChanged(mask uint8) []int {
	var changes = lm.changeFlag & mask
	if changes == 0 {
		return nil
	}

	var out []int
	for i := range MAX_LINES {
		if changes&(1<<i) != 0 {
			lm.ClearChangeFlag(i)
			out = append(out, i)
		}
	}
	return out
}

func (lm *LineManager) LinesNotIdle() uint8 {
	return lm.notIdle
}

func (lm *LineManager) LastLineReady() int {
	return lm.lastLineReady
}

// ResetLine puts a line back to Idle with nothing left over, even if it already was.
func (lm *LineManager) ResetLine(line int) {
	var l = lm.Line(line)
	if l == nil {
		return
	}
	lm.SetStatus(line, LineIdle)
	l.reset()
	lm.ResetLineTimer(line)
}

func (lm *LineManager) String() string {
	var b strings.Builder
	for i := range lm.lines {
		var l = &lm.lines[i]
		var mark = " "
		if l.Active {
			mark = "*"
		}
		b.WriteString(mark)
		b.WriteString(lineSummary(l))
		b.WriteString("\n")
	}
	return b.String()
}

func lineSummary(l *Line) string {
	var s = fmt.Sprintf("L%d %-4s %-20s hook=%s", l.Number, l.PhoneNumber, l.CurrentStatus, l.CurrentHook)
	if l.DialedDigits != "" {
		s += " digits=" + l.DialedDigits
	}
	if l.Ring.State != RingIdle {
		s += fmt.Sprintf(" ring=%s/%d", l.Ring.State, l.Ring.Iteration)
	}
	return s
}
