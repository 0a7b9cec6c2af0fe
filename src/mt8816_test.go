package vaxel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pinTrace records what the crosspoint driver asks of the expander.
type pinTrace struct {
	olat uint16
	ops  []string
	fail bool
}

func (p *pinTrace) WritePin(addr uint8, pin uint8, value bool) bool {
	if p.fail {
		return false
	}
	if value {
		p.olat |= 1 << pin
	} else {
		p.olat &^= 1 << pin
	}
	switch pin {
	case PIN_MT_STROBE:
		p.ops = append(p.ops, map[bool]string{true: "strobe+", false: "strobe-"}[value])
	case PIN_MT_RESET:
		p.ops = append(p.ops, map[bool]string{true: "reset+", false: "reset-"}[value])
	case PIN_MT_CS:
		p.ops = append(p.ops, "cs")
	}
	return true
}

func (p *pinTrace) WritePins(addr uint8, mask uint16, values uint16) bool {
	if p.fail {
		return false
	}
	p.olat = (p.olat &^ mask) | (values & mask)
	p.ops = append(p.ops, "addr")
	return true
}

func (p *pinTrace) ax() int { return int(p.olat>>PIN_MT_AX0) & 0xF }
func (p *pinTrace) ay() int { return int(p.olat>>PIN_MT_AY0) & 0x7 }

func TestMT8816Begin(t *testing.T) {
	var p pinTrace
	var mt = NewMT8816Driver(&p, DefaultConfig())

	require.True(t, mt.Begin())
	assert.Equal(t, []string{"cs", "reset+", "reset-"}, p.ops)
	assert.NotZero(t, p.olat&(1<<PIN_MT_CS))
}

func TestMT8816SetConnection(t *testing.T) {
	var p pinTrace
	var mt = NewMT8816Driver(&p, DefaultConfig())

	require.True(t, mt.SetConnection(13, 5, true))
	assert.Equal(t, []string{"addr", "strobe+", "strobe-"}, p.ops)
	assert.Equal(t, 13, p.ax())
	assert.Equal(t, 5, p.ay())
	assert.NotZero(t, p.olat&(1<<PIN_MT_DATA))
	assert.True(t, mt.GetConnection(13, 5))

	require.True(t, mt.SetConnection(13, 5, false))
	assert.Zero(t, p.olat&(1<<PIN_MT_DATA))
	assert.False(t, mt.GetConnection(13, 5))

	assert.False(t, mt.SetConnection(16, 0, true))
	assert.False(t, mt.SetConnection(0, 8, true))
}

func TestMT8816LineAndAudio(t *testing.T) {
	var p pinTrace
	var mt = NewMT8816Driver(&p, DefaultConfig())

	require.True(t, mt.SetLineConnection(2, 6, true))
	assert.True(t, mt.GetConnection(2, 6))
	assert.True(t, mt.GetConnection(6, 2))

	require.True(t, mt.SetAudioConnection(3, AUDIO_DTMF_IN, true))
	assert.True(t, mt.GetConnection(AUDIO_DTMF_IN, 3))
	assert.False(t, mt.SetAudioConnection(3, 7, true), "7 is a line column, not an audio source")

	mt.Reset()
	assert.False(t, mt.GetConnection(2, 6))
	assert.False(t, mt.GetConnection(AUDIO_DTMF_IN, 3))
}

func TestMT8816WriteFailureKeepsShadow(t *testing.T) {
	var p = pinTrace{fail: true}
	var mt = NewMT8816Driver(&p, DefaultConfig())

	assert.False(t, mt.SetConnection(1, 2, true))
	assert.False(t, mt.GetConnection(1, 2))
}

func TestMT8816OverExpander(t *testing.T) {
	var d, bus = newTestMCP(t, 0x20, 0x21)
	require.NoError(t, d.Begin())

	var mt = NewMT8816Driver(d, DefaultConfig())
	require.True(t, mt.Begin())
	require.True(t, mt.SetConnection(9, 3, true))

	var chip = bus.chip(0x21)
	assert.Equal(t, uint16(9), (chip.olat()>>PIN_MT_AX0)&0xF)
	assert.Equal(t, uint16(3), (chip.olat()>>PIN_MT_AY0)&0x7)
	assert.True(t, chip.outPin(PIN_MT_DATA))
	assert.False(t, chip.outPin(PIN_MT_STROBE), "strobe returns low")
	assert.True(t, chip.outPin(PIN_MT_CS))
}

func TestConnectionHandler(t *testing.T) {
	var cfg = DefaultConfig()
	var p pinTrace
	var h = NewConnectionHandler(NewConnectionMatrix(cfg), NewMT8816Driver(&p, cfg), cfg)
	var mt = h.mt

	require.True(t, h.SetState(1, 2, ConnRinging))
	assert.False(t, mt.GetConnection(1, 2), "no audio while ringing")

	require.True(t, h.ConnectLines(1, 2))
	assert.True(t, mt.GetConnection(1, 2))
	assert.True(t, mt.GetConnection(2, 1))

	h.SetState(3, 4, ConnAttempting)
	var partners = h.DisconnectLine(1)
	assert.Equal(t, map[int]ConnState{2: ConnEstablished}, partners)
	assert.False(t, mt.GetConnection(1, 2))
	assert.False(t, mt.GetConnection(2, 1))
	assert.True(t, h.Matrix().AreConnected(3, 4))

	require.True(t, h.ConnectDTMF(5))
	require.True(t, h.ConnectDTMF(6))
	assert.False(t, mt.GetConnection(AUDIO_DTMF_IN, 5))
	assert.True(t, mt.GetConnection(AUDIO_DTMF_IN, 6))
	assert.Equal(t, 6, h.DTMFLine())

	h.ClearAll()
	assert.Equal(t, NoLine, h.DTMFLine())
	assert.False(t, h.Matrix().HasAnyConnection(3))
}
