package vaxel

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/physic"
)

var errNoAck = errors.New("i2c: no ACK")

// fakeMCP is a register model of one MCP23017, good enough for the
// parts of the chip this driver uses.
type fakeMCP struct {
	regs  [0x16]byte
	input uint16 // levels driven onto the pins from outside

	onInterrupt func()

	writes int
	reads  int
}

func (c *fakeMCP) reg16(a byte) uint16 {
	return uint16(c.regs[a]) | uint16(c.regs[a+1])<<8
}

func (c *fakeMCP) iodir() uint16 { return c.reg16(MCP_IODIRA) }
func (c *fakeMCP) olat() uint16  { return c.reg16(MCP_OLATA) }
func (c *fakeMCP) intf() uint16  { return c.reg16(MCP_INTFA) }

func (c *fakeMCP) pins() uint16 {
	var dir = c.iodir()
	return (c.input & dir) | (c.olat() &^ dir)
}

func (c *fakeMCP) read(reg byte) byte {
	if reg >= byte(len(c.regs)) {
		return 0
	}
	switch reg {
	case MCP_GPIOA, MCP_GPIOA + 1:
		var port = reg - MCP_GPIOA
		c.regs[MCP_INTFA+port] = 0
		return byte(c.pins() >> (8 * port))
	case MCP_INTCAPA, MCP_INTCAPA + 1:
		var port = reg - MCP_INTCAPA
		c.regs[MCP_INTFA+port] = 0
		return c.regs[reg]
	}
	return c.regs[reg]
}

func (c *fakeMCP) write(reg byte, v byte) {
	switch reg {
	case MCP_GPIOA, MCP_GPIOA + 1:
		c.regs[MCP_OLATA+reg-MCP_GPIOA] = v
	case MCP_INTFA, MCP_INTFA + 1, MCP_INTCAPA, MCP_INTCAPA + 1:
		// read only
	default:
		if reg < byte(len(c.regs)) {
			c.regs[reg] = v
		}
	}
}

// setPins drives inputs from outside, all of mask at the same instant.
func (c *fakeMCP) setPins(mask uint16, levels uint16) {
	var wasAsserted = c.intf() != 0

	var old = c.input
	c.input = (c.input &^ mask) | (levels & mask)

	var enabled = c.reg16(MCP_GPINTENA) & c.iodir()
	var changed = (old ^ c.input) & enabled

	for port := range 2 {
		var portMask = uint16(0xFF) << (8 * port)
		if changed&portMask == 0 || c.regs[MCP_INTFA+port] != 0 {
			continue
		}
		c.regs[MCP_INTFA+port] = byte(changed >> (8 * port))
		c.regs[MCP_INTCAPA+port] = byte(c.pins() >> (8 * port))
	}

	if !wasAsserted && c.intf() != 0 && c.onInterrupt != nil {
		c.onInterrupt()
	}
}

func (c *fakeMCP) setPin(pin uint8, level bool) {
	var v uint16
	if level {
		v = 1 << pin
	}
	c.setPins(1<<pin, v)
}

func (c *fakeMCP) outPin(pin uint8) bool {
	return c.olat()&(1<<pin) != 0
}

// fakeIntLine reads the mirrored, open drain INT output.
type fakeIntLine struct {
	chip   *fakeMCP
	closed bool
}

func (l *fakeIntLine) Value() (int, error) {
	if l.chip.intf() != 0 {
		return 0, nil
	}
	return 1, nil
}

func (l *fakeIntLine) Close() error {
	l.closed = true
	return nil
}

// fakeBus implements i2c.Bus over a set of fake chips.
type fakeBus struct {
	chips map[uint16]*fakeMCP
	fail  bool
	txs   int
}

func newFakeBus(addrs ...uint8) *fakeBus {
	var b = &fakeBus{chips: map[uint16]*fakeMCP{}}
	for _, a := range addrs {
		b.chips[uint16(a)] = new(fakeMCP)
	}
	return b
}

func (b *fakeBus) chip(addr uint8) *fakeMCP {
	return b.chips[uint16(addr)]
}

func (b *fakeBus) String() string { return "fakebus" }

func (b *fakeBus) SetSpeed(physic.Frequency) error { return nil }

func (b *fakeBus) Tx(addr uint16, w, r []byte) error {
	b.txs++
	if b.fail {
		return fmt.Errorf("i2c: addr 0x%02X: bus error", addr)
	}
	var c, ok = b.chips[addr]
	if !ok {
		return errNoAck
	}
	if len(w) == 0 {
		return nil
	}
	var reg = w[0]
	for i, v := range w[1:] {
		c.write(reg+byte(i), v)
		c.writes++
	}
	for i := range r {
		r[i] = c.read(reg + byte(i))
		c.reads++
	}
	return nil
}
