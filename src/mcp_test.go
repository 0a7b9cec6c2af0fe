package vaxel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMCP(t *testing.T, addrs ...uint8) (*MCPDriver, *fakeBus) {
	t.Helper()

	var bus = newFakeBus(addrs...)
	var d = NewMCPDriver(bus, DefaultConfig())
	for _, a := range addrs {
		var addr = a
		bus.chip(addr).onInterrupt = func() { d.Interrupt(addr) }
	}

	return d, bus
}

func TestMCPBeginNoChips(t *testing.T) {
	var d, _ = newTestMCP(t)

	assert.ErrorIs(t, d.Begin(), ErrNoExpanders)
}

func TestMCPBeginConfiguresTables(t *testing.T) {
	var d, bus = newTestMCP(t, 0x20, 0x21, 0x22, 0x23)
	require.NoError(t, d.Begin())

	var slic = bus.chip(0x22)
	assert.Equal(t, byte(IOCON_MIRROR|IOCON_ODR), slic.regs[MCP_IOCON])
	assert.Equal(t, mcp_slic_int_pins, slic.reg16(MCP_GPINTENA))
	assert.Equal(t, uint16(0), slic.reg16(MCP_INTCONA), "interrupt on change, not against DEFVAL")

	for k := range 4 {
		assert.NotZero(t, slic.iodir()&(1<<slic_shk_pins[k]), "SHK is an input")
		assert.NotZero(t, slic.reg16(MCP_GPPUA)&(1<<slic_shk_pins[k]), "SHK has a pull-up")
		assert.Zero(t, slic.iodir()&(1<<slic_rm_pins[k]), "RM is an output")
		assert.Zero(t, slic.iodir()&(1<<slic_fr_pins[k]), "FR is an output")
	}

	var main = bus.chip(0x20)
	assert.True(t, main.outPin(PIN_PWDN_MT8870), "DTMF decoder starts powered down")
	assert.Equal(t, uint16(0), bus.chip(0x21).iodir(), "crosspoint chip is all outputs")
}

func TestMCPMissingChipFailsQuietly(t *testing.T) {
	var d, _ = newTestMCP(t, 0x20, 0x22)
	require.NoError(t, d.Begin())

	assert.True(t, d.Present(0x22))
	assert.False(t, d.Present(0x23))

	assert.False(t, d.WritePin(0x23, 3, true))
	var _, ok = d.ReadPin(0x23, 3)
	assert.False(t, ok)
	var _, ok16 = d.ReadAllPins16(0x23)
	assert.False(t, ok16)

	d.Interrupt(0x23)
	var _, got = d.PollInterrupt(0x23)
	assert.False(t, got)
}

func TestMCPWriteReadPin(t *testing.T) {
	var d, bus = newTestMCP(t, 0x22)
	require.NoError(t, d.Begin())

	assert.True(t, d.WritePin(0x22, 9, true))
	assert.True(t, bus.chip(0x22).outPin(9))
	assert.True(t, d.WritePin(0x22, 2, true))
	assert.True(t, d.WritePin(0x22, 9, false))
	assert.False(t, bus.chip(0x22).outPin(9))
	assert.True(t, bus.chip(0x22).outPin(2), "other pins keep their latch")

	bus.chip(0x22).setPin(5, true)
	var v, ok = d.ReadPin(0x22, 5)
	require.True(t, ok)
	assert.True(t, v)

	var all, ok16 = d.ReadAllPins16(0x22)
	require.True(t, ok16)
	assert.Equal(t, uint16(1<<5|1<<2), all)
}

func TestMCPTransientBusError(t *testing.T) {
	var d, bus = newTestMCP(t, 0x22)
	require.NoError(t, d.Begin())

	bus.fail = true
	assert.False(t, d.WritePin(0x22, 6, true))
	bus.fail = false

	assert.False(t, bus.chip(0x22).outPin(6))
	assert.True(t, d.WritePin(0x22, 6, true))
}

func TestMCPPollInterruptSingle(t *testing.T) {
	var d, bus = newTestMCP(t, 0x22, 0x23)
	require.NoError(t, d.Begin())

	var _, none = d.PollInterrupt(0x22)
	assert.False(t, none, "no flag, no event")

	bus.chip(0x23).setPin(8, true) // SHK of line 6

	var ev, ok = d.PollInterrupt(0x23)
	require.True(t, ok)
	assert.Equal(t, Event{Addr: 0x23, Pin: 8, Level: true, Line: 6}, ev)

	var _, again = d.PollInterrupt(0x23)
	assert.False(t, again, "acknowledged")
	assert.Zero(t, bus.chip(0x23).intf())
}

// Several hook pins flip in the same instant.  Every one of them must
// come out of consecutive polls, lowest pin first, with its level.
func TestMCPPollInterruptBurst(t *testing.T) {
	var d, bus = newTestMCP(t, 0x22)
	require.NoError(t, d.Begin())

	var shk = uint16(1<<4 | 1<<5 | 1<<8 | 1<<11)
	bus.chip(0x22).setPins(shk, 1<<4|1<<8|1<<11)

	var got []Event
	for range 8 {
		if ev, ok := d.PollInterrupt(0x22); ok {
			got = append(got, ev)
		}
	}

	require.Len(t, got, 3)
	assert.Equal(t, Event{Addr: 0x22, Pin: 4, Level: true, Line: 1}, got[0])
	assert.Equal(t, Event{Addr: 0x22, Pin: 8, Level: true, Line: 2}, got[1])
	assert.Equal(t, Event{Addr: 0x22, Pin: 11, Level: true, Line: 3}, got[2])
}

func TestMCPPollInterruptLevelFallback(t *testing.T) {
	var d, bus = newTestMCP(t, 0x22)
	require.NoError(t, d.Begin())

	var line = &fakeIntLine{chip: bus.chip(0x22)}
	d.AttachInterruptLine(0x22, line)

	// The edge handler never ran, the INT line is simply low.
	bus.chip(0x22).onInterrupt = nil
	bus.chip(0x22).setPin(5, true)

	var ev, ok = d.PollInterrupt(0x22)
	require.True(t, ok)
	assert.Equal(t, 0, ev.Line)

	require.NoError(t, d.Close())
	assert.True(t, line.closed)
}

func TestMCPPolledChip(t *testing.T) {
	var d, bus = newTestMCP(t, 0x22)
	require.NoError(t, d.Begin())
	d.SetPolled(0x22)

	bus.chip(0x22).onInterrupt = nil
	var _, none = d.PollInterrupt(0x22)
	assert.False(t, none, "nothing changed")

	bus.chip(0x22).setPin(11, true)

	var ev, ok = d.PollInterrupt(0x22)
	require.True(t, ok)
	assert.Equal(t, 3, ev.Line)
}

func TestMCPNonHookPinHasNoLine(t *testing.T) {
	var d, bus = newTestMCP(t, 0x20)
	require.NoError(t, d.Begin())

	bus.chip(0x20).setPin(PIN_STD, true)

	var ev, ok = d.PollInterrupt(0x20)
	require.True(t, ok)
	assert.Equal(t, uint8(PIN_STD), ev.Pin)
	assert.Equal(t, NoLine, ev.Line)
}

func TestLinePinMap(t *testing.T) {
	var m = LinePinMap(DefaultConfig().I2C)

	assert.Equal(t, LinePins{Addr: 0x22, SHK: 5, RM: 6, FR: 7, PD: 0}, m[0])
	assert.Equal(t, LinePins{Addr: 0x23, SHK: 11, RM: 12, FR: 13, PD: 15}, m[7])
}
