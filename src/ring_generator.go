package vaxel

/*------------------------------------------------------------------
 *
 * Purpose:   	Ring cadence for each line.
 *
 * Description:	The SLIC rings when RM (ring mode) is high and FR
 *		(forward/reverse) is switched back and forth.  FR is
 *		toggled every half period, 25 ms for 20 Hz.
 *
 *		One cadence is
 *
 *			toggling for LengthMs
 *			pause (RM and FR low) for PauseMs
 *
 *		repeated Iterations times.  The last one ends straight
 *		after its toggling phase, there is no trailing pause.
 *
 *		Ringing only starts on an Idle line and stops the moment
 *		that line is anything other than Idle, which is how an
 *		answered phone stops ringing.
 *
 *---------------------------------------------------------------*/

import (
	"github.com/charmbracelet/log"
)

type RingState uint8

const (
	RingIdle RingState = iota
	RingToggling
	RingPause
)

func (s RingState) String() string {
	switch s {
	case RingIdle:
		return "idle"
	case RingToggling:
		return "toggling"
	case RingPause:
		return "pause"
	default:
		return "unknown"
	}
}

type RingGenerator struct {
	mcp   pinWriter
	lines *LineManager
	pins  [MAX_LINES]LinePins
	cfg   RingConfig

	state [MAX_LINES]RingTelemetry

	clock Clock
	log   *log.Logger
}

func NewRingGenerator(mcp pinWriter, lines *LineManager, pins [MAX_LINES]LinePins, cfg *Config, clock Clock) *RingGenerator {
	return &RingGenerator{
		mcp:   mcp,
		lines: lines,
		pins:  pins,
		cfg:   cfg.Ring,
		clock: clock,
		log:   component_logger("RING", cfg.Debug.Ring),
	}
}

// GenerateRingSignal starts a cadence.  False if the line is not Idle or already ringing.
func (rg *RingGenerator) GenerateRingSignal(line int) bool {
	var l = rg.lines.Line(line)
	if l == nil {
		return false
	}

	if rg.state[line].State != RingIdle {
		rg.log.Debugf("line %d already ringing", line)
		return false
	}

	if l.CurrentStatus != LineIdle {
		rg.log.Infof("line %d is %s, not ringing", line, l.CurrentStatus)
		return false
	}

	rg.log.Infof("ringing line %d", line)
	metricRingsStarted.Inc()

	rg.state[line].Iteration = 0
	rg.startToggling(line)
	return true
}

func (rg *RingGenerator) StopRinging(line int) {
	if !validLine(line) || rg.state[line].State == RingIdle {
		return
	}

	rg.log.Infof("stop ringing line %d", line)
	rg.setRM(line, false)
	rg.setFR(line, false)
	rg.state[line] = RingTelemetry{}
	rg.mirror(line)
}

// StopAll silences every line at once.
func (rg *RingGenerator) StopAll() {
	for i := range MAX_LINES {
		rg.StopRinging(i)
	}
}

func (rg *RingGenerator) IsRinging(line int) bool {
	return validLine(line) && rg.state[line].State != RingIdle
}

func (rg *RingGenerator) State(line int) RingState {
	if !validLine(line) {
		return RingIdle
	}
	return rg.state[line].State
}

// TogglingMask has a bit set for each line whose FR pin is being switched.
func (rg *RingGenerator) TogglingMask() uint8 {
	var mask uint8
	for i := range MAX_LINES {
		if rg.state[i].State == RingToggling {
			mask |= 1 << i
		}
	}
	return mask
}

/*-------------------------------------------------------------------
 *
 * Name:        Update
 *
 * Purpose:     Advance every cadence.  Called once per main loop cycle.
 *
 *--------------------------------------------------------------------*/

func (rg *RingGenerator) Update() {
	var now = rg.clock.Now()

	for i := range MAX_LINES {
		var s = &rg.state[i]
		if s.State == RingIdle {
			continue
		}

		if rg.lines.Line(i).CurrentStatus != LineIdle {
			rg.log.Debugf("line %d left idle while ringing", i)
			rg.StopRinging(i)
			continue
		}

		switch s.State {
		case RingToggling:
			if now.Sub(s.StateStart) >= ms(rg.cfg.LengthMs) {
				s.Iteration++
				if s.Iteration >= rg.cfg.Iterations {
					rg.StopRinging(i)
					continue
				}
				rg.startPause(i)
				break
			}
			if now.Sub(s.LastToggle) >= ms(rg.cfg.HalfPeriodMs) {
				rg.setFR(i, !s.FR)
				s.LastToggle = now
			}

		case RingPause:
			if now.Sub(s.StateStart) >= ms(rg.cfg.PauseMs) {
				rg.startToggling(i)
			}
		}

		rg.mirror(i)
	}
}

func (rg *RingGenerator) startToggling(line int) {
	var now = rg.clock.Now()
	var s = &rg.state[line]

	rg.log.Debugf("line %d ring %d", line, s.Iteration+1)

	s.State = RingToggling
	s.StateStart = now
	s.LastToggle = now
	rg.setRM(line, true)
	rg.setFR(line, false)
	rg.mirror(line)
}

func (rg *RingGenerator) startPause(line int) {
	var s = &rg.state[line]

	rg.log.Debugf("line %d pause", line)

	s.State = RingPause
	s.StateStart = rg.clock.Now()
	rg.setRM(line, false)
	rg.setFR(line, false)
}

func (rg *RingGenerator) setRM(line int, v bool) {
	var p = rg.pins[line]
	if !rg.mcp.WritePin(p.Addr, p.RM, v) {
		rg.log.Debugf("line %d RM write failed", line)
	}
	rg.state[line].RM = v
}

func (rg *RingGenerator) setFR(line int, v bool) {
	var p = rg.pins[line]
	if !rg.mcp.WritePin(p.Addr, p.FR, v) {
		rg.log.Debugf("line %d FR write failed", line)
	}
	rg.state[line].FR = v
}

func (rg *RingGenerator) mirror(line int) {
	rg.lines.Line(line).Ring = rg.state[line]
}
