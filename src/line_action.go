package vaxel

/*------------------------------------------------------------------
 *
 * Purpose:   	What the exchange does when a line changes status.
 *
 * Description:	The hook and tone decoders only move lines between
 *		statuses.  Once per cycle this layer picks up the
 *		changed lines and acts: route the DTMF decoder, arm
 *		the line timer, ring the called line, connect the
 *		audio path when it answers, tear it down on hang up.
 *
 *		Expired line timers are handled here too.  The end of
 *		the dialing timer is what places a call: the digits
 *		collected so far are looked up as a phone number.
 *
 *		Roughly:
 *
 *		Idle -> Ready -> dialing -> Ringing -> Connected
 *		                    |          |
 *		                 Busy/Fail   Timeout -> Abandoned
 *
 *---------------------------------------------------------------*/

import (
	"github.com/charmbracelet/log"
)

type LineAction struct {
	lines *LineManager
	conn  *ConnectionHandler
	ring  *RingGenerator
	calls *CallLog

	cfg    *Config
	timers TimerConfig

	log *log.Logger
}

func NewLineAction(lines *LineManager, conn *ConnectionHandler, ring *RingGenerator, calls *CallLog, cfg *Config) *LineAction {
	return &LineAction{
		lines:  lines,
		conn:   conn,
		ring:   ring,
		calls:  calls,
		cfg:    cfg,
		timers: cfg.Timers,
		log:    component_logger("ACTION", cfg.Debug.Action),
	}
}

// Update handles status changes first, then timers that ran out.
func (la *LineAction) Update() {
	var active = la.lines.ActiveMask()

	for _, line := range la.lines.TakeChanged(active) {
		la.action(line)
	}

	for _, line := range la.lines.ExpiredTimers(active) {
		la.timerExpired(line)
	}

	la.keepRinging()
}

/*-------------------------------------------------------------------
 *
 * Name:        action
 *
 * Purpose:     Entry actions for the status a line now has.
 *
 * Inputs:	line	- Line whose change bit was set.
 *
 * Description:	Only the latest status is seen, whatever happened
 *		in between during the cycle.
 *
 *--------------------------------------------------------------------*/

func (la *LineAction) action(line int) {
	var l = la.lines.Line(line)

	la.log.Debugf("line %d now %s", line, l.CurrentStatus)

	switch l.CurrentStatus {
	case LineIdle:
		la.hangUp(line)

	case LineReady:
		if caller := la.ringingCaller(line); caller != NoLine {
			la.answer(caller, line)
			return
		}
		la.conn.ConnectDTMF(line)
		la.lines.SetLineTimer(line, la.timers.ReadyMs)

	case LinePulseDialing, LineToneDialing:
		// The decoders arm the dialing timer on each digit.

	case LineBusy:
		la.releaseDTMF(line)
		la.lines.SetLineTimer(line, la.timers.BusyMs)

	case LineFail:
		la.releaseDTMF(line)
		la.lines.SetLineTimer(line, la.timers.FailMs)

	case LineDisconnected:
		la.releaseDTMF(line)
		la.lines.SetLineTimer(line, la.timers.DisconnectedMs)

	case LineTimeout:
		la.releaseDTMF(line)
		la.lines.SetLineTimer(line, la.timers.TimeoutMs)

	case LineRinging:
		la.releaseDTMF(line)
		la.lines.SetLineTimer(line, la.timers.RingingMs)

	case LineConnected:
		la.releaseDTMF(line)
		la.lines.ResetLineTimer(line)

	case LineAbandoned:
		la.releaseDTMF(line)
		la.lines.ResetLineTimer(line)

	default:
		la.log.Debugf("line %d: nothing to do for %s", line, l.CurrentStatus)
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        hangUp
 *
 * Purpose:     A line went back on hook.
 *
 * Description:	A connected partner is left Disconnected.  If the
 *		line was calling, the called line stops ringing.  If
 *		the line hangs up while its own caller still waits,
 *		that caller is told so too.
 *
 *--------------------------------------------------------------------*/

func (la *LineAction) hangUp(line int) {
	la.ring.StopRinging(line)
	la.releaseDTMF(line)

	for peer, state := range la.conn.DisconnectLine(line) {
		var p = la.lines.Line(peer)

		switch state {
		case ConnEstablished:
			la.calls.Record(CallHangup, line, peer, "", LineIdle)
			if p.CurrentStatus == LineConnected {
				la.lines.SetStatus(peer, LineDisconnected)
			}

		case ConnRinging, ConnAttempting:
			if p.CurrentStatus == LineRinging {
				// The peer was calling us.
				la.lines.SetStatus(peer, LineDisconnected)
				la.calls.Record(CallHangup, line, peer, "", LineIdle)
				continue
			}
			la.ring.StopRinging(peer)
			la.calls.Record(CallAbandoned, line, peer, "", LineIdle)

		default:
		}
	}
}

// ringingCaller is the line whose call to line is ringing, NoLine if none.
func (la *LineAction) ringingCaller(line int) int {
	var m = la.conn.Matrix()
	for _, p := range m.GetAllConnectedLines(line, ConnRinging) {
		if m.GetConnectionState(line, p) != ConnRinging {
			continue
		}
		if la.lines.Line(p).CurrentStatus == LineRinging {
			return p
		}
	}
	return NoLine
}

func (la *LineAction) answer(caller int, callee int) {
	la.ring.StopRinging(callee)
	la.releaseDTMF(callee)
	la.conn.ConnectLines(caller, callee)

	la.lines.SetStatus(caller, LineConnected)
	la.lines.SetStatus(callee, LineConnected)
	la.lines.Line(caller).OutgoingTo = callee
	la.lines.Line(callee).IncomingFrom = caller

	la.log.Infof("line %d answered call from %d", callee, caller)
	la.calls.Record(CallAnswer, callee, caller, "", LineConnected)
}

func (la *LineAction) releaseDTMF(line int) {
	if la.conn.DTMFLine() == line {
		la.conn.DisconnectDTMF()
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        timerExpired
 *
 * Purpose:     The line timer ran out.
 *
 *--------------------------------------------------------------------*/

func (la *LineAction) timerExpired(line int) {
	var l = la.lines.Line(line)

	la.log.Debugf("line %d timer expired in %s", line, l.CurrentStatus)

	switch l.CurrentStatus {
	case LineReady:
		la.lines.SetStatus(line, LineTimeout)

	case LinePulseDialing, LineToneDialing:
		la.placeCall(line)

	case LineRinging:
		var target = l.OutgoingTo
		if validLine(target) {
			la.ring.StopRinging(target)
			la.lines.Line(target).IncomingFrom = NoLine
		}
		la.conn.DisconnectLine(line)
		la.calls.Record(CallNoAnswer, line, target, l.DialedDigits, LineTimeout)
		la.lines.SetStatus(line, LineTimeout)

	case LineBusy, LineFail, LineDisconnected:
		la.lines.SetStatus(line, LineTimeout)

	case LineTimeout:
		la.lines.SetStatus(line, LineAbandoned)

	default:
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        placeCall
 *
 * Purpose:     Connect the dialed number.
 *
 * Inputs:	line	- Calling line, done dialing.
 *
 * Description:	A number that is not in the table, the caller's own
 *		number, or an inactive line is a Fail.  A called line
 *		that is in use is Busy.  Otherwise the called line
 *		starts ringing and the caller hears it ring.
 *
 *--------------------------------------------------------------------*/

func (la *LineAction) placeCall(line int) {
	var l = la.lines.Line(line)
	var digits = l.DialedDigits

	var target = la.cfg.LineForNumber(digits)
	if target == NoLine || target == line || !la.lines.Line(target).Active {
		la.log.Infof("line %d dialed %q, no such line", line, digits)
		la.lines.SetStatus(line, LineFail)
		la.calls.Record(CallFail, line, target, digits, LineFail)
		return
	}

	var t = la.lines.Line(target)
	if t.CurrentStatus != LineIdle || la.ring.IsRinging(target) || la.conn.Matrix().HasAnyConnection(target) {
		la.log.Infof("line %d dialed %q, line %d is %s", line, digits, target, t.CurrentStatus)
		la.lines.SetStatus(line, LineBusy)
		la.calls.Record(CallBusy, line, target, digits, LineBusy)
		return
	}

	la.conn.SetState(line, target, ConnRinging)
	la.lines.SetStatus(line, LineRinging)
	l.OutgoingTo = target
	t.IncomingFrom = line

	if !la.ring.GenerateRingSignal(target) {
		la.log.Warnf("could not ring line %d", target)
	}

	la.log.Infof("line %d calling line %d", line, target)
	la.calls.Record(CallDial, line, target, digits, LineRinging)
}

// keepRinging starts a new cadence when the old one ran out and the caller still waits.
func (la *LineAction) keepRinging() {
	var m = la.conn.Matrix()
	for i := range MAX_LINES {
		var l = la.lines.Line(i)
		if l.CurrentStatus != LineRinging || !validLine(l.OutgoingTo) {
			continue
		}
		var target = l.OutgoingTo
		if m.GetConnectionState(i, target) != ConnRinging {
			continue
		}
		if la.lines.Line(target).CurrentStatus == LineIdle && !la.ring.IsRinging(target) {
			la.ring.GenerateRingSignal(target)
		}
	}
}
