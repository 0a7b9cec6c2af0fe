package vaxel

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type actionRig struct {
	cfg    *Config
	clock  *manualClock
	pins   *pinLevels
	lines  *LineManager
	matrix *ConnectionMatrix
	mt     *MT8816Driver
	conn   *ConnectionHandler
	ring   *RingGenerator
	action *LineAction
}

func newActionRig(t *testing.T, mutate func(*Config)) *actionRig {
	t.Helper()

	var cfg = DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}

	var r = &actionRig{cfg: cfg, clock: newManualClock(), pins: newPinLevels()}
	r.lines = NewLineManager(cfg, r.clock)
	r.matrix = NewConnectionMatrix(cfg)
	r.mt = NewMT8816Driver(r.pins, cfg)
	require.True(t, r.mt.Begin())
	r.conn = NewConnectionHandler(r.matrix, r.mt, cfg)
	r.ring = NewRingGenerator(r.pins, r.lines, LinePinMap(cfg.I2C), cfg, r.clock)
	r.action = NewLineAction(r.lines, r.conn, r.ring, nil, cfg)
	return r
}

func (r *actionRig) step(msec int) {
	for range msec {
		r.clock.Advance(time.Millisecond)
		r.ring.Update()
		r.action.Update()
	}
}

// dialNumber takes a line off hook and dials digits, leaving the dialing timer to run out.
func (r *actionRig) dialNumber(line int, digits string) {
	r.lines.SetStatus(line, LineReady)
	r.step(1)
	r.lines.SetStatus(line, LinePulseDialing)
	for i := range len(digits) {
		r.lines.AppendDigit(line, digits[i])
	}
	r.lines.SetLineTimer(line, r.cfg.Timers.DialingMs)
	r.step(1)
}

func TestActionReadyRoutesDTMF(t *testing.T) {
	var r = newActionRig(t, nil)

	r.lines.SetStatus(3, LineReady)
	r.step(1)
	assert.Equal(t, 3, r.conn.DTMFLine())
	assert.True(t, r.mt.GetConnection(AUDIO_DTMF_IN, 3))
	assert.True(t, r.lines.TimerActive(3))

	// Nobody dials: Ready, Timeout, Abandoned.
	r.step(r.cfg.Timers.ReadyMs + 1)
	assert.Equal(t, LineTimeout, r.lines.Line(3).CurrentStatus)
	assert.Equal(t, NoLine, r.conn.DTMFLine())
	assert.False(t, r.mt.GetConnection(AUDIO_DTMF_IN, 3))

	r.step(r.cfg.Timers.TimeoutMs + 1)
	assert.Equal(t, LineAbandoned, r.lines.Line(3).CurrentStatus)
	assert.False(t, r.lines.TimerActive(3))
}

func TestActionCallAnsweredAndHungUp(t *testing.T) {
	var r = newActionRig(t, nil)

	r.dialNumber(0, "102")
	r.step(r.cfg.Timers.DialingMs)

	assert.Equal(t, LineRinging, r.lines.Line(0).CurrentStatus)
	assert.Equal(t, 2, r.lines.Line(0).OutgoingTo)
	assert.Equal(t, ConnRinging, r.matrix.GetConnectionState(0, 2))
	assert.True(t, r.ring.IsRinging(2))
	assert.False(t, r.mt.GetConnection(0, 2), "no audio until answered")

	// Line 2 picks up.
	r.step(10)
	r.lines.SetStatus(2, LineReady)
	r.step(1)

	assert.Equal(t, LineConnected, r.lines.Line(0).CurrentStatus)
	assert.Equal(t, LineConnected, r.lines.Line(2).CurrentStatus)
	assert.Equal(t, 0, r.lines.Line(2).IncomingFrom)
	assert.False(t, r.ring.IsRinging(2))
	assert.True(t, r.matrix.AreConnected(0, 2))
	assert.True(t, r.mt.GetConnection(0, 2))
	assert.True(t, r.mt.GetConnection(2, 0))
	assert.NotEqual(t, 2, r.conn.DTMFLine(), "the answering line is not routed to the decoder")

	r.step(1)
	assert.False(t, r.lines.TimerActive(0))
	assert.False(t, r.lines.TimerActive(2))

	// Caller hangs up first.
	r.lines.SetStatus(0, LineIdle)
	r.step(1)
	assert.Equal(t, LineDisconnected, r.lines.Line(2).CurrentStatus)
	assert.False(t, r.matrix.HasAnyConnection(2))
	assert.False(t, r.mt.GetConnection(0, 2))

	r.step(r.cfg.Timers.DisconnectedMs + 1)
	assert.Equal(t, LineTimeout, r.lines.Line(2).CurrentStatus)
}

func TestActionUnknownNumberFails(t *testing.T) {
	var r = newActionRig(t, nil)

	r.dialNumber(1, "555")
	r.step(r.cfg.Timers.DialingMs)
	assert.Equal(t, LineFail, r.lines.Line(1).CurrentStatus)

	r.step(r.cfg.Timers.FailMs + 1)
	assert.Equal(t, LineTimeout, r.lines.Line(1).CurrentStatus)
}

func TestActionOwnNumberFails(t *testing.T) {
	var r = newActionRig(t, nil)

	r.dialNumber(1, "101")
	r.step(r.cfg.Timers.DialingMs)
	assert.Equal(t, LineFail, r.lines.Line(1).CurrentStatus)
}

func TestActionInactiveTargetFails(t *testing.T) {
	var r = newActionRig(t, func(c *Config) { c.ActiveLinesMask = 0x0F })

	r.dialNumber(1, "106")
	r.step(r.cfg.Timers.DialingMs)
	assert.Equal(t, LineFail, r.lines.Line(1).CurrentStatus)
	assert.False(t, r.ring.IsRinging(6))
}

func TestActionBusyTarget(t *testing.T) {
	var r = newActionRig(t, nil)

	r.lines.SetStatus(4, LineReady)
	r.step(1)

	r.dialNumber(1, "104")
	r.step(r.cfg.Timers.DialingMs)
	assert.Equal(t, LineBusy, r.lines.Line(1).CurrentStatus)
	assert.False(t, r.ring.IsRinging(4))
	assert.False(t, r.matrix.HasAnyConnection(1))
}

func TestActionTargetAlreadyCalled(t *testing.T) {
	var r = newActionRig(t, nil)

	r.dialNumber(0, "103")
	r.step(r.cfg.Timers.DialingMs)
	require.Equal(t, LineRinging, r.lines.Line(0).CurrentStatus)

	// Line 3 is still Idle but it is ringing for line 0.
	r.dialNumber(1, "103")
	r.step(r.cfg.Timers.DialingMs)
	assert.Equal(t, LineBusy, r.lines.Line(1).CurrentStatus)
	assert.Equal(t, ConnNone, r.matrix.GetConnectionState(1, 3))
}

func TestActionCallerGivesUp(t *testing.T) {
	var r = newActionRig(t, nil)

	r.dialNumber(0, "105")
	r.step(r.cfg.Timers.DialingMs)
	require.True(t, r.ring.IsRinging(5))

	r.lines.SetStatus(0, LineIdle)
	r.step(1)
	assert.False(t, r.ring.IsRinging(5))
	assert.False(t, r.matrix.HasAnyConnection(5))
	assert.Equal(t, LineIdle, r.lines.Line(5).CurrentStatus)
}

func TestActionNoAnswer(t *testing.T) {
	var r = newActionRig(t, func(c *Config) {
		c.Timers.RingingMs = 20000
		c.Ring.Iterations = 2
	})

	r.dialNumber(0, "107")
	r.step(r.cfg.Timers.DialingMs)
	require.True(t, r.ring.IsRinging(7))

	// Two cadences take 1000+4000+1000 ms; then it starts over.
	r.step(6500)
	assert.True(t, r.ring.IsRinging(7), "caller still waiting, keep ringing")

	r.step(r.cfg.Timers.RingingMs)
	assert.Equal(t, LineTimeout, r.lines.Line(0).CurrentStatus)
	assert.False(t, r.ring.IsRinging(7))
	assert.False(t, r.matrix.HasAnyConnection(0))
}

func TestActionCallLogged(t *testing.T) {
	var r = newActionRig(t, nil)
	r.cfg.CallLog.Dir = t.TempDir()
	var cl, err = NewCallLog(r.cfg, r.clock)
	require.NoError(t, err)
	defer cl.Close()
	r.action.calls = cl

	r.dialNumber(0, "101")
	r.step(r.cfg.Timers.DialingMs)
	r.lines.SetStatus(1, LineReady)
	r.step(1)
	r.lines.SetStatus(1, LineIdle)
	r.step(1)

	var rows = readCallLog(t, filepath.Join(r.cfg.CallLog.Dir, "calls-2024-03-01.csv"))
	require.Len(t, rows, 4)
	assert.Equal(t, "dial", rows[1][3])
	assert.Equal(t, "101", rows[1][6])
	assert.Equal(t, "answer", rows[2][3])
	assert.Equal(t, "hangup", rows[3][3])
	assert.Equal(t, rows[1][0], rows[3][0])
}
