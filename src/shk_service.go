package vaxel

/*------------------------------------------------------------------
 *
 * Purpose:   	Hook state and rotary dial pulses.
 *
 * Description:	Each line has one SHK (switch hook) input.  Lifting
 *		the handset, hanging up and every break of a rotary
 *		dial all show up on that same pin, so two filters run
 *		over the same samples:
 *
 *		Hook filter	A new level must hold for StableMs and for
 *				StableConsec samples before it becomes the
 *				accepted hook state.  While a digit is being
 *				dialed the time is raised above the longest
 *				pulse so dial breaks are not taken for a
 *				hang up.
 *
 *		Pulse detector	Only while off hook and Ready or
 *				PulseDialing.  A break of the loop is a pulse
 *				when it lasts between DebounceMs and
 *				PulseLowMaxMs.  A gap of DigitGapMinMs after
 *				the last pulse ends the digit.
 *
 *		Sampling is done in bursts.  An SHK interrupt puts its
 *		line into the burst mask and from then on the line is
 *		sampled every BurstTickMs until both filters are at
 *		rest.  Lines that nobody touches cost nothing.
 *
 *		While a line rings the FR toggling couples into its SHK
 *		input, so interrupts from ringing lines are ignored.
 *		When the toggling stops the line is sampled once more
 *		to catch a handset lifted during the ring.
 *
 *---------------------------------------------------------------*/

import (
	"time"

	"github.com/charmbracelet/log"
)

// Extra hook stability time while dialing, on top of PulseLowMaxMs.
const pulse_hook_margin_ms = 50

// Pulses are ignored for this long after a digit.
const pulse_block_ms = 80

type pulseState uint8

const (
	pulseIdle pulseState = iota
	pulseInPulse
	pulseBetween
)

func (p pulseState) String() string {
	switch p {
	case pulseIdle:
		return "idle"
	case pulseInPulse:
		return "in_pulse"
	case pulseBetween:
		return "between_pulses"
	default:
		return "unknown"
	}
}

// What the decoder reads from the expanders.  Satisfied by *MCPDriver.
type hookReader interface {
	Present(addr uint8) bool
	ReadAllPins16(addr uint8) (uint16, bool)
}

// Levels here are logical: true means off hook, whatever the pin polarity.
type shkLine struct {
	hookCand   bool
	hookSince  time.Time
	hookConsec int

	lastRaw   bool
	rawChange time.Time
	fastLevel bool

	pd         pulseState
	pulses     int
	lowStart   time.Time
	lastEdge   time.Time
	blockUntil time.Time
}

type SHKService struct {
	lines *LineManager
	im    *InterruptManager
	mcp   hookReader
	ring  *RingGenerator

	pins   [MAX_LINES]LinePins
	cfg    HookConfig
	i2c    I2CConfig
	timers TimerConfig
	active uint8

	allow uint8
	state [MAX_LINES]shkLine

	burstMask   uint8
	nextTick    time.Time
	nextScan    time.Time
	wasToggling uint8

	clock Clock
	log   *log.Logger
}

func NewSHKService(lines *LineManager, im *InterruptManager, mcp hookReader, ring *RingGenerator, cfg *Config, clock Clock) *SHKService {
	return &SHKService{
		lines:  lines,
		im:     im,
		mcp:    mcp,
		ring:   ring,
		pins:   LinePinMap(cfg.I2C),
		cfg:    cfg.Hook,
		i2c:    cfg.I2C,
		timers: cfg.Timers,
		active: cfg.ActiveLinesMask,
		allow:  cfg.ActiveLinesMask,
		clock:  clock,
		log:    component_logger("SHK", cfg.Debug.SHK),
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        Begin
 *
 * Purpose:     Take the first hook reading.
 *
 * Description:	Whatever the pins say at startup is accepted as
 *		stable.  A line that is already off hook goes Ready
 *		so it can dial without hanging up first.
 *
 *--------------------------------------------------------------------*/

func (s *SHKService) Begin() {
	s.allow = s.active & AllowMask(s.mcp.Present(s.i2c.SLIC1), s.mcp.Present(s.i2c.SLIC2))
	var now = s.clock.Now()

	var raw, valid = s.readHookMask()
	for i := range MAX_LINES {
		if s.allow&valid&(1<<i) == 0 {
			continue
		}
		var off = s.offHook(raw, i)
		s.state[i] = shkLine{
			hookCand:   off,
			hookSince:  now,
			hookConsec: s.cfg.StableConsec,
			lastRaw:    off,
			rawChange:  now,
			fastLevel:  off,
		}
		if off {
			s.lines.SetHook(i, HookOff)
			s.lines.SetStatus(i, LineReady)
			s.log.Infof("line %d off hook at startup", i)
		}
	}

	s.nextScan = now.Add(ms(s.cfg.ScanIntervalMs))
	s.log.Debugf("hook sense on lines 0x%02X", s.allow)
}

// Notify puts lines into the burst mask.
func (s *SHKService) Notify(mask uint8) {
	mask &= s.allow
	if mask == 0 {
		return
	}
	s.log.Debugf("burst 0x%02X", mask)
	s.burstMask |= mask

	var now = s.clock.Now()
	if now.Before(s.nextTick) {
		s.nextTick = now
	}
}

func (s *SHKService) BurstMask() uint8 {
	return s.burstMask
}

// Update runs once per main loop cycle.
func (s *SHKService) Update() {
	var toggling = s.ring.TogglingMask()

	for _, addr := range []uint8{s.i2c.SLIC1, s.i2c.SLIC2} {
		for {
			var _, ok = s.im.PollEventByAddress(addr)
			if !ok {
				break
			}
			// INTF stays latched until read, so a second line on the
			// same port may have changed without an event of its own.
			// Sample every line on the chip.
			s.Notify(s.chipLines(addr) &^ toggling)
		}
	}

	if ended := s.wasToggling &^ toggling; ended != 0 {
		s.Notify(ended)
	}
	s.wasToggling = toggling

	var now = s.clock.Now()
	if s.cfg.ScanIntervalMs > 0 && !now.Before(s.nextScan) {
		s.Notify(s.allow &^ toggling)
		s.nextScan = now.Add(ms(s.cfg.ScanIntervalMs))
	}

	if s.burstMask != 0 && !now.Before(s.nextTick) {
		s.tick(now, toggling)
	}
}

// chipLines is the mask of lines whose SHK pin is on the chip at addr.
func (s *SHKService) chipLines(addr uint8) uint8 {
	var mask uint8
	for i := range MAX_LINES {
		if s.pins[i].Addr == addr {
			mask |= 1 << i
		}
	}
	return mask
}

func (s *SHKService) tick(now time.Time, toggling uint8) {
	var raw, valid = s.readHookMask()
	var next uint8

	for i := range MAX_LINES {
		var bit = uint8(1) << i
		if s.burstMask&bit == 0 {
			continue
		}
		if valid&bit == 0 || toggling&bit != 0 {
			s.resetPulse(i)
			continue
		}

		var off = s.offHook(raw, i)
		s.updateHookFilter(i, off, now)
		s.updatePulseDetector(i, off, now)

		if s.hookUnstable(i, now) || s.state[i].pd != pulseIdle {
			next |= bit
		}
	}

	s.burstMask = next
	if next == 0 {
		s.log.Debug("burst finished")
		return
	}
	s.nextTick = now.Add(s.cfg.burstTick())
}

/*-------------------------------------------------------------------
 *
 * Name:        readHookMask
 *
 * Purpose:     Sample every SHK pin.
 *
 * Returns:	raw	- Bit per line, set when the pin is high.
 *		valid	- Bit per line whose expander was read.
 *
 * Description:	One 16 bit read per SLIC chip, so the four lines on
 *		a chip are always sampled at the same instant.
 *
 *--------------------------------------------------------------------*/

func (s *SHKService) readHookMask() (uint8, uint8) {
	var raw, valid uint8

	var chips = map[uint8]uint16{}
	for i := range MAX_LINES {
		if s.allow&(1<<i) == 0 {
			continue
		}
		var p = s.pins[i]
		var gpio, seen = chips[p.Addr]
		if !seen {
			var ok bool
			if gpio, ok = s.mcp.ReadAllPins16(p.Addr); !ok {
				continue
			}
			chips[p.Addr] = gpio
		}
		valid |= 1 << i
		if gpio&(1<<p.SHK) != 0 {
			raw |= 1 << i
		}
	}

	return raw, valid
}

func (s *SHKService) offHook(raw uint8, line int) bool {
	return (raw&(1<<line) != 0) == s.cfg.HighMeansOffHook
}

func (s *SHKService) hookUnstable(line int, now time.Time) bool {
	var st = &s.state[line]
	if s.cfg.StableConsec > 0 && st.hookConsec < s.cfg.StableConsec {
		return true
	}
	if now.Sub(st.hookSince) < ms(s.cfg.StableMs) {
		return true
	}
	return st.hookCand != (s.lines.Line(line).CurrentHook == HookOff)
}

func (s *SHKService) updateHookFilter(line int, off bool, now time.Time) {
	var st = &s.state[line]

	if st.hookCand != off {
		st.hookCand = off
		st.hookSince = now
		st.hookConsec = 1
	} else if st.hookConsec < 255 {
		st.hookConsec++
	}

	var required = ms(s.cfg.StableMs)
	if st.pd != pulseIdle {
		required = ms(s.cfg.PulseLowMaxMs + pulse_hook_margin_ms)
	}

	var timeOk = now.Sub(st.hookSince) >= required
	var consecOk = s.cfg.StableConsec == 0 || st.hookConsec >= s.cfg.StableConsec
	if timeOk && consecOk {
		s.setStableHook(line, st.hookCand, now)
	}
}

func (s *SHKService) setStableHook(line int, off bool, now time.Time) {
	var hook = HookOn
	if off {
		hook = HookOff
	}

	var l = s.lines.Line(line)
	if l.CurrentHook == hook {
		return
	}

	s.log.Infof("line %d %s", line, map[bool]string{true: "off hook", false: "on hook"}[off])
	s.lines.SetHook(line, hook)
	if off {
		s.lines.SetStatus(line, LineReady)
	} else {
		s.lines.SetStatus(line, LineIdle)
	}

	s.resyncFast(line, off, now)
	if !off {
		s.resetPulse(line)
	}
}

func (s *SHKService) pulseModeAllowed(l *Line) bool {
	if l.CurrentHook != HookOff {
		return false
	}
	return l.CurrentStatus == LineReady || l.CurrentStatus == LinePulseDialing
}

/*-------------------------------------------------------------------
 *
 * Name:        updatePulseDetector
 *
 * Purpose:     Count dial pulses and turn them into digits.
 *
 * Inputs:	line	- Line index.
 *		off	- Logical off hook level of this sample.
 *		now	- Sample time.
 *
 * Description:	A level has to last PulseGlitchMs before it counts as
 *		an edge.  Loop open (on hook level) starts a pulse,
 *		loop closed ends it.
 *
 *		A pulse that stays open longer than GlobalPulseTimeoutMs
 *		is abandoned without a digit.  Normally the hook filter
 *		has seen a hang up long before that.
 *
 *--------------------------------------------------------------------*/

func (s *SHKService) updatePulseDetector(line int, off bool, now time.Time) {
	var st = &s.state[line]
	var l = s.lines.Line(line)

	if now.Before(st.blockUntil) {
		return
	}

	if !s.pulseModeAllowed(l) {
		s.resetPulse(line)
		s.updateGap(l, now)
		return
	}

	if off != st.lastRaw {
		st.lastRaw = off
		st.rawChange = now
	}
	var accept = now.Sub(st.rawChange) >= ms(s.cfg.PulseGlitchMs)

	if accept && off != st.fastLevel {
		st.fastLevel = off
		if !off {
			s.pulseFalling(line, now)
		} else {
			s.pulseRising(line, now)
		}
	}

	switch st.pd {
	case pulseBetween:
		if now.Sub(st.lastEdge) >= ms(s.cfg.DigitGapMinMs) {
			s.emitDigit(line, off, now)
			return
		}
	case pulseInPulse:
		if now.Sub(st.lowStart) >= ms(s.cfg.GlobalPulseTimeoutMs) {
			s.log.Debugf("line %d pulse timed out", line)
			s.resetPulse(line)
			return
		}
	}

	s.updateGap(l, now)
}

func (s *SHKService) pulseFalling(line int, now time.Time) {
	var st = &s.state[line]
	if st.pd == pulseInPulse {
		return
	}

	st.pd = pulseInPulse
	st.lowStart = now
	st.lastEdge = now
	s.lines.Line(line).LastEdge = now
	s.log.Debugf("line %d pulse start", line)
}

func (s *SHKService) pulseRising(line int, now time.Time) {
	var st = &s.state[line]
	if st.pd != pulseInPulse {
		return
	}

	var l = s.lines.Line(line)
	var low = now.Sub(st.lowStart)
	l.LastEdge = now
	s.log.Debugf("line %d pulse low %v", line, low)

	if low < ms(s.cfg.DebounceMs) || low > ms(s.cfg.PulseLowMaxMs) {
		s.log.Debugf("line %d pulse of %v rejected", line, low)
		s.resetPulse(line)
		return
	}

	// Only an accepted pulse stops the ready or dialing timer.
	s.lines.ResetLineTimer(line)
	if st.pulses == 0 && l.CurrentStatus == LineReady {
		s.lines.SetStatus(line, LinePulseDialing)
	}
	st.pulses++
	st.pd = pulseBetween
	st.lastEdge = now
}

func (s *SHKService) emitDigit(line int, off bool, now time.Time) {
	var st = &s.state[line]

	if st.pulses > 0 {
		var d = s.pulseDigit(st.pulses)
		s.log.Infof("line %d digit %c (%d pulses)", line, d, st.pulses)
		s.lines.AppendDigit(line, d)
		metricDigits.WithLabelValues("pulse").Inc()
	}

	s.lines.SetLineTimer(line, s.timers.DialingMs)
	s.resetPulse(line)
	st.blockUntil = now.Add(pulse_block_ms * time.Millisecond)
	s.resyncFast(line, off, now)
}

// pulseDigit maps a pulse count to its digit, wrapping modulo 10.
func (s *SHKService) pulseDigit(count int) byte {
	var p = count % 10
	if s.cfg.PulseAdjustment == 1 {
		if p == 0 {
			return '9'
		}
		return byte('0' + p - 1)
	}
	return byte('0' + p)
}

func (s *SHKService) resetPulse(line int) {
	var st = &s.state[line]
	st.pd = pulseIdle
	st.pulses = 0
	st.lowStart = time.Time{}
	st.lastEdge = time.Time{}
}

func (s *SHKService) resyncFast(line int, off bool, now time.Time) {
	var st = &s.state[line]
	st.lastRaw = off
	st.fastLevel = off
	st.rawChange = now
}

func (s *SHKService) updateGap(l *Line, now time.Time) {
	if l.LastEdge.IsZero() {
		l.Gap = 0
		return
	}
	l.Gap = now.Sub(l.LastEdge)
}

// PulseState is for the console.
func (s *SHKService) PulseState(line int) (string, int) {
	if !validLine(line) {
		return pulseIdle.String(), 0
	}
	return s.state[line].pd.String(), s.state[line].pulses
}
