package vaxel

/*------------------------------------------------------------------
 *
 * Purpose:   	Register level driver for the MCP23017 GPIO expanders.
 *
 * Description:	There are up to four 16 pin expanders on the I2C bus:
 *
 *			MAIN	DTMF decoder (MT8870), DTMF multiplexer,
 *				function button.
 *			MT8816	Address and control lines of the crosspoint
 *				switch.
 *			SLIC1	Hook sense, ring mode, forward/reverse for
 *				lines 0-3.
 *			SLIC2	Same for lines 4-7.
 *
 *		Pins 0-7 are port A, 8-15 are port B.  Registers are used
 *		in the default paired layout (IOCON.BANK = 0) with
 *		sequential addressing, so a 16 bit value is one two byte
 *		transfer starting at the port A register.
 *
 *		The INT output of each chip goes to a host GPIO line.
 *		The edge handler for that line sets a flag and nothing
 *		else.  All I2C work happens in PollInterrupt, called from
 *		the main loop.
 *
 *---------------------------------------------------------------*/

import (
	"errors"
	"fmt"
	"math/bits"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"periph.io/x/conn/v3/i2c"
)

var ErrNoExpanders = errors.New("no GPIO expanders found")

// Register addresses, IOCON.BANK = 0.
const (
	MCP_IODIRA   = 0x00
	MCP_IPOLA    = 0x02
	MCP_GPINTENA = 0x04
	MCP_DEFVALA  = 0x06
	MCP_INTCONA  = 0x08
	MCP_IOCON    = 0x0A
	MCP_GPPUA    = 0x0C
	MCP_INTFA    = 0x0E
	MCP_INTCAPA  = 0x10
	MCP_GPIOA    = 0x12
	MCP_OLATA    = 0x14
)

const (
	IOCON_INTPOL = 0x02
	IOCON_ODR    = 0x04
	IOCON_HAEN   = 0x08
	IOCON_SEQOP  = 0x20
	IOCON_MIRROR = 0x40
	IOCON_BANK   = 0x80
)

// MAIN expander pins.
const (
	PIN_TM_A0           = 0
	PIN_TM_A1           = 1
	PIN_TM_A2           = 2
	PIN_EX5             = 3
	PIN_EX3             = 4
	PIN_EX4             = 5
	PIN_EX1             = 6
	PIN_EX2             = 7
	PIN_FUNCTION_BUTTON = 9
	PIN_PWDN_MT8870     = 10
	PIN_STD             = 11
	PIN_Q4              = 12
	PIN_Q3              = 13
	PIN_Q2              = 14
	PIN_Q1              = 15
)

// MT8816 expander pins.
const (
	PIN_MT_RESET  = 0
	PIN_MT_DATA   = 1
	PIN_MT_STROBE = 2
	PIN_MT_CS     = 3
	PIN_MT_AX0    = 8
	PIN_MT_AY0    = 12
)

// SLIC expander pins, indexed by line within the chip.
var slic_shk_pins = [4]uint8{5, 4, 8, 11}
var slic_rm_pins = [4]uint8{6, 3, 9, 12}
var slic_fr_pins = [4]uint8{7, 2, 10, 13}
var slic_pd_pins = [4]uint8{0, 1, 14, 15}

type PinMode uint8

const (
	PinOutput PinMode = iota
	PinInput
	PinInputPullUp
)

type PinConfig struct {
	Mode    PinMode
	Initial bool
}

var out_low = PinConfig{Mode: PinOutput, Initial: false}
var out_high = PinConfig{Mode: PinOutput, Initial: true}
var in_plain = PinConfig{Mode: PinInput, Initial: false}
var in_pullup = PinConfig{Mode: PinInputPullUp, Initial: false}

var mcp_main_pins = [16]PinConfig{
	PIN_TM_A0:           out_low,
	PIN_TM_A1:           out_low,
	PIN_TM_A2:           out_low,
	PIN_EX5:             out_low,
	PIN_EX3:             out_low,
	PIN_EX4:             out_low,
	PIN_EX1:             out_low,
	PIN_EX2:             out_low,
	8:                   out_low,
	PIN_FUNCTION_BUTTON: in_pullup,
	PIN_PWDN_MT8870:     out_high, // decoder starts powered down
	PIN_STD:             in_plain,
	PIN_Q4:              in_plain,
	PIN_Q3:              in_plain,
	PIN_Q2:              in_plain,
	PIN_Q1:              in_plain,
}

// Every pin of the MT8816 chip is an output, all low.
var mcp_mt8816_pins = [16]PinConfig{}

var mcp_slic_pins = func() [16]PinConfig {
	var t [16]PinConfig
	for i := range 4 {
		t[slic_shk_pins[i]] = in_pullup
		t[slic_rm_pins[i]] = out_low
		t[slic_fr_pins[i]] = out_low
		t[slic_pd_pins[i]] = out_low
	}
	return t
}()

var mcp_main_int_pins = uint16(1<<PIN_STD | 1<<PIN_FUNCTION_BUTTON)
var mcp_slic_int_pins = uint16(1<<5 | 1<<4 | 1<<8 | 1<<11)

// LinePins is where one line lives on the SLIC expanders.
type LinePins struct {
	Addr uint8
	SHK  uint8
	RM   uint8
	FR   uint8
	PD   uint8
}

// LinePinMap builds the fixed line to pin table for the configured addresses.
func LinePinMap(c I2CConfig) [MAX_LINES]LinePins {
	var m [MAX_LINES]LinePins
	for line := range MAX_LINES {
		var addr = c.SLIC1
		if line >= 4 {
			addr = c.SLIC2
		}
		var k = line % 4
		m[line] = LinePins{Addr: addr, SHK: slic_shk_pins[k], RM: slic_rm_pins[k], FR: slic_fr_pins[k], PD: slic_pd_pins[k]}
	}
	return m
}

// InterruptLine is the host side of an expander INT output.
type InterruptLine interface {
	Value() (int, error)
	Close() error
}

type mcpChip struct {
	name    string
	addr    uint8
	dev     *i2c.Dev
	pins    *[16]PinConfig
	intPins uint16
	isSLIC  bool
	present bool

	olat uint16

	// Set by the edge handler, test-and-cleared by PollInterrupt.
	flag atomic.Bool

	intLine InterruptLine

	// No INT wiring, read INTF every cycle.
	polled bool

	// Captured pins from the last INTF read not yet reported.
	pending uint16
	capture uint16
}

type MCPDriver struct {
	chips []*mcpChip
	lines [MAX_LINES]LinePins
	log   *log.Logger
}

func NewMCPDriver(bus i2c.Bus, cfg *Config) *MCPDriver {
	var d = &MCPDriver{
		lines: LinePinMap(cfg.I2C),
		log:   component_logger("MCP", cfg.Debug.MCP),
	}

	var add = func(name string, addr uint8, pins *[16]PinConfig, intPins uint16, slic bool) {
		d.chips = append(d.chips, &mcpChip{ //nolint:exhaustruct
			name:    name,
			addr:    addr,
			dev:     &i2c.Dev{Bus: bus, Addr: uint16(addr)},
			pins:    pins,
			intPins: intPins,
			isSLIC:  slic,
		})
	}

	add("main", cfg.I2C.Main, &mcp_main_pins, mcp_main_int_pins, false)
	add("mt8816", cfg.I2C.MT8816, &mcp_mt8816_pins, 0, false)
	add("slic1", cfg.I2C.SLIC1, &mcp_slic_pins, mcp_slic_int_pins, true)
	add("slic2", cfg.I2C.SLIC2, &mcp_slic_pins, mcp_slic_int_pins, true)

	return d
}

/*-------------------------------------------------------------------
 *
 * Name:        Begin
 *
 * Purpose:     Probe and configure every expander.
 *
 * Description:	A chip that does not answer is marked absent and all
 *		later reads and writes addressed to it fail.  We only
 *		give up if none of them answer.
 *
 *		For each chip found:
 *			- IOCON: mirrored INT pins, open drain.
 *			- Output latches, directions, pull-ups from its table.
 *			- Interrupt on change against the previous value
 *			  (INTCON = 0) for hook sense, STD and the button.
 *			- Read INTCAP then GPIO to release anything latched
 *			  before we started.
 *
 * Returns:	ErrNoExpanders if nothing answered.
 *
 *--------------------------------------------------------------------*/

func (d *MCPDriver) Begin() error {
	var found = 0

	for _, c := range d.chips {
		if _, ok := d.readReg8(c, MCP_IOCON); !ok {
			d.log.Warnf("%s expander (0x%02X) not found", c.name, c.addr)
			c.present = false
			continue
		}

		c.present = true
		if !d.configure(c) {
			d.log.Errorf("%s expander (0x%02X) did not accept configuration", c.name, c.addr)
			c.present = false
			continue
		}

		found++
		d.log.Infof("%s expander ready at 0x%02X", c.name, c.addr)
	}

	if found == 0 {
		return ErrNoExpanders
	}

	return nil
}

func (d *MCPDriver) configure(c *mcpChip) bool {
	var iodir, gppu, olat uint16
	for pin, pc := range c.pins {
		var bit = uint16(1) << pin
		switch pc.Mode {
		case PinInput:
			iodir |= bit
		case PinInputPullUp:
			iodir |= bit
			gppu |= bit
		case PinOutput:
			if pc.Initial {
				olat |= bit
			}
		}
	}

	var ok = d.writeReg8(c, MCP_IOCON, IOCON_MIRROR|IOCON_ODR) &&
		d.writeReg16(c, MCP_OLATA, olat) &&
		d.writeReg16(c, MCP_IODIRA, iodir) &&
		d.writeReg16(c, MCP_GPPUA, gppu) &&
		d.writeReg16(c, MCP_IPOLA, 0) &&
		d.writeReg16(c, MCP_INTCONA, 0) &&
		d.writeReg16(c, MCP_DEFVALA, 0) &&
		d.writeReg16(c, MCP_GPINTENA, c.intPins)
	if !ok {
		return false
	}

	c.olat = olat

	d.readReg16(c, MCP_INTCAPA)
	d.readReg16(c, MCP_GPIOA)

	return true
}

func (d *MCPDriver) chip(addr uint8) *mcpChip {
	for _, c := range d.chips {
		if c.addr == addr {
			return c
		}
	}
	return nil
}

func (d *MCPDriver) Present(addr uint8) bool {
	var c = d.chip(addr)
	return c != nil && c.present
}

func (d *MCPDriver) Lines() [MAX_LINES]LinePins {
	return d.lines
}

// WritePin sets one output pin.  False if the chip is absent or the write failed.
func (d *MCPDriver) WritePin(addr uint8, pin uint8, value bool) bool {
	var c = d.chip(addr)
	if c == nil || !c.present || pin > 15 {
		return false
	}

	var next = c.olat
	if value {
		next |= 1 << pin
	} else {
		next &^= 1 << pin
	}

	var reg = byte(MCP_OLATA + pin/8)
	if !d.writeReg8(c, reg, byte(next>>(8*(pin/8)))) {
		return false
	}

	c.olat = next
	return true
}

// WritePins changes several output pins in one transfer.
func (d *MCPDriver) WritePins(addr uint8, mask uint16, values uint16) bool {
	var c = d.chip(addr)
	if c == nil || !c.present {
		return false
	}

	var next = (c.olat &^ mask) | (values & mask)
	if !d.writeReg16(c, MCP_OLATA, next) {
		return false
	}

	c.olat = next
	return true
}

func (d *MCPDriver) ReadPin(addr uint8, pin uint8) (bool, bool) {
	var c = d.chip(addr)
	if c == nil || !c.present || pin > 15 {
		return false, false
	}

	var v, ok = d.readReg8(c, byte(MCP_GPIOA+pin/8))
	if !ok {
		return false, false
	}

	return v&(1<<(pin%8)) != 0, true
}

// ReadAllPins16 reads both ports in one transaction.
func (d *MCPDriver) ReadAllPins16(addr uint8) (uint16, bool) {
	var c = d.chip(addr)
	if c == nil || !c.present {
		return 0, false
	}

	return d.readReg16(c, MCP_GPIOA)
}

// AttachInterruptLine lets PollInterrupt look at the INT level as well as the edge flag.
func (d *MCPDriver) AttachInterruptLine(addr uint8, line InterruptLine) {
	var c = d.chip(addr)
	if c != nil {
		c.intLine = line
	}
}

// SetPolled makes PollInterrupt read the chip every time it is called.
func (d *MCPDriver) SetPolled(addr uint8) {
	var c = d.chip(addr)
	if c != nil {
		c.polled = true
	}
}

// Interrupt is the edge handler for a chip's INT line.  It must stay this small.
func (d *MCPDriver) Interrupt(addr uint8) {
	var c = d.chip(addr)
	if c != nil {
		c.flag.Store(true)
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        PollInterrupt
 *
 * Purpose:     Find out what changed on one chip.
 *
 * Inputs:	addr	- Chip address.
 *
 * Returns:	The lowest numbered changed pin with its captured level.
 *
 * Description:	The flag is test-and-cleared atomically.  Then INTF
 *		(which pins) is read before INTCAP (levels at the edge),
 *		and GPIO is read last to acknowledge.
 *
 *		When several pins are flagged at once, the rest are
 *		remembered and handed out by the next calls, lowest
 *		first, before the chip is read again.  We also treat
 *		an INT line that is still low as a pending interrupt,
 *		so an edge that landed between our read and the chip
 *		re-asserting is not lost.
 *
 *--------------------------------------------------------------------*/

func (d *MCPDriver) PollInterrupt(addr uint8) (Event, bool) {
	var c = d.chip(addr)
	if c == nil || !c.present {
		return Event{}, false
	}

	if c.pending == 0 {
		var fired = c.flag.Swap(false) || c.polled
		if !fired && c.intLine != nil {
			var v, err = c.intLine.Value()
			fired = err == nil && v == 0
		}
		if !fired {
			return Event{}, false
		}

		var intf, ok = d.readReg16(c, MCP_INTFA)
		if !ok {
			return Event{}, false
		}
		var intcap, ok2 = d.readReg16(c, MCP_INTCAPA)
		if !ok2 {
			return Event{}, false
		}
		d.readReg16(c, MCP_GPIOA)

		c.pending = intf
		c.capture = intcap

		if c.pending == 0 {
			return Event{}, false
		}
		if bits.OnesCount16(c.pending) > 1 {
			d.log.Debugf("%s: %d pins flagged at once (INTF %04X)", c.name, bits.OnesCount16(c.pending), intf)
		}
	}

	var pin = uint8(bits.TrailingZeros16(c.pending))
	c.pending &^= 1 << pin

	var ev = Event{
		Addr:  c.addr,
		Pin:   pin,
		Level: c.capture&(1<<pin) != 0,
		Line:  d.lineFor(c, pin),
	}

	d.log.Debugf("interrupt %s", ev)

	return ev, true
}

func (d *MCPDriver) lineFor(c *mcpChip, pin uint8) int {
	if !c.isSLIC {
		return NoLine
	}
	for line, lp := range d.lines {
		if lp.Addr == c.addr && lp.SHK == pin {
			return line
		}
	}
	return NoLine
}

func (d *MCPDriver) ChipName(addr uint8) string {
	var c = d.chip(addr)
	if c == nil {
		return fmt.Sprintf("0x%02X", addr)
	}
	return c.name
}

// Addresses of the chips, in polling order.
func (d *MCPDriver) Addresses() []uint8 {
	var a = make([]uint8, 0, len(d.chips))
	for _, c := range d.chips {
		a = append(a, c.addr)
	}
	return a
}

func (d *MCPDriver) Close() error {
	var errs []error
	for _, c := range d.chips {
		if c.intLine != nil {
			errs = append(errs, c.intLine.Close())
			c.intLine = nil
		}
	}
	return errors.Join(errs...)
}

func (d *MCPDriver) writeReg8(c *mcpChip, reg byte, v byte) bool {
	if err := c.dev.Tx([]byte{reg, v}, nil); err != nil {
		d.txFailed(c, reg, err)
		return false
	}
	return true
}

func (d *MCPDriver) writeReg16(c *mcpChip, reg byte, v uint16) bool {
	if err := c.dev.Tx([]byte{reg, byte(v), byte(v >> 8)}, nil); err != nil {
		d.txFailed(c, reg, err)
		return false
	}
	return true
}

func (d *MCPDriver) readReg8(c *mcpChip, reg byte) (byte, bool) {
	var r [1]byte
	if err := c.dev.Tx([]byte{reg}, r[:]); err != nil {
		d.txFailed(c, reg, err)
		return 0, false
	}
	return r[0], true
}

func (d *MCPDriver) readReg16(c *mcpChip, reg byte) (uint16, bool) {
	var r [2]byte
	if err := c.dev.Tx([]byte{reg}, r[:]); err != nil {
		d.txFailed(c, reg, err)
		return 0, false
	}
	return uint16(r[0]) | uint16(r[1])<<8, true
}

func (d *MCPDriver) txFailed(c *mcpChip, reg byte, err error) {
	metricI2CErrors.WithLabelValues(c.name).Inc()
	if c.present {
		d.log.Warnf("%s: register 0x%02X: %s", c.name, reg, err)
	} else {
		d.log.Debugf("%s: register 0x%02X: %s", c.name, reg, err)
	}
}
