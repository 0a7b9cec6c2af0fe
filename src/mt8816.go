package vaxel

/*------------------------------------------------------------------
 *
 * Purpose:   	MT8816 16 x 8 analog crosspoint switch.
 *
 * Description:	The switch sits behind its own expander.  A crosspoint
 *		is selected with AX0-3 (x, 0-15) and AY0-2 (y, 0-7),
 *		DATA says on or off, and a STROBE pulse latches it
 *		while CS is high.
 *
 *		Lines use x = y = line number 0-7.  The shared audio
 *		sources sit on the upper x columns and are patched to
 *		a line's y row.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
)

// Audio source columns.
const (
	AUDIO_DTMF_IN = 12 // into the MT8870
	AUDIO_DAC3    = 13
	AUDIO_DAC2    = 14
	AUDIO_DAC1    = 15
)

const MT8816_X = 16
const MT8816_Y = 8

// What the switch driver needs from the expander bank.
type pinWriter interface {
	WritePin(addr uint8, pin uint8, value bool) bool
	WritePins(addr uint8, mask uint16, values uint16) bool
}

type MT8816Driver struct {
	mcp  pinWriter
	addr uint8
	conn [MT8816_X][MT8816_Y]bool
	log  *log.Logger
}

func NewMT8816Driver(mcp pinWriter, cfg *Config) *MT8816Driver {
	return &MT8816Driver{
		mcp:  mcp,
		addr: cfg.I2C.MT8816,
		log:  component_logger("MT8816", cfg.Debug.Matrix),
	}
}

func (mt *MT8816Driver) Begin() bool {
	var ok = mt.mcp.WritePin(mt.addr, PIN_MT_CS, true)
	ok = mt.Reset() && ok
	if ok {
		mt.log.Info("crosspoint switch reset")
	} else {
		mt.log.Warn("crosspoint switch not reachable")
	}
	return ok
}

// Reset opens every crosspoint.
func (mt *MT8816Driver) Reset() bool {
	var ok = mt.mcp.WritePin(mt.addr, PIN_MT_RESET, true) &&
		mt.mcp.WritePin(mt.addr, PIN_MT_RESET, false)
	mt.conn = [MT8816_X][MT8816_Y]bool{}
	return ok
}

/*-------------------------------------------------------------------
 *
 * Name:        SetConnection
 *
 * Purpose:     Close or open one crosspoint.
 *
 * Inputs:	x	- 0-15.
 *		y	- 0-7.
 *		on	- Close when true.
 *
 * Description:	Address and data go out in a single port write so
 *		they change together, then STROBE goes high and low.
 *
 *--------------------------------------------------------------------*/

func (mt *MT8816Driver) SetConnection(x, y int, on bool) bool {
	if x < 0 || x >= MT8816_X || y < 0 || y >= MT8816_Y {
		mt.log.Errorf("invalid crosspoint %d,%d", x, y)
		return false
	}

	var mask = uint16(0xF)<<PIN_MT_AX0 | uint16(0x7)<<PIN_MT_AY0 | 1<<PIN_MT_DATA
	var values = uint16(x)<<PIN_MT_AX0 | uint16(y)<<PIN_MT_AY0
	if on {
		values |= 1 << PIN_MT_DATA
	}

	var ok = mt.mcp.WritePins(mt.addr, mask, values) &&
		mt.mcp.WritePin(mt.addr, PIN_MT_STROBE, true) &&
		mt.mcp.WritePin(mt.addr, PIN_MT_STROBE, false)
	if !ok {
		mt.log.Warnf("crosspoint %d,%d not written", x, y)
		return false
	}

	mt.conn[x][y] = on
	mt.log.Debugf("crosspoint %d,%d %t", x, y, on)
	return true
}

// SetLineConnection switches both directions between two lines.
func (mt *MT8816Driver) SetLineConnection(a, b int, on bool) bool {
	var ok1 = mt.SetConnection(a, b, on)
	var ok2 = mt.SetConnection(b, a, on)
	return ok1 && ok2
}

func (mt *MT8816Driver) SetAudioConnection(line int, source int, on bool) bool {
	if source < AUDIO_DTMF_IN || source > AUDIO_DAC1 {
		mt.log.Errorf("invalid audio source %d", source)
		return false
	}
	return mt.SetConnection(source, line, on)
}

func (mt *MT8816Driver) GetConnection(x, y int) bool {
	if x < 0 || x >= MT8816_X || y < 0 || y >= MT8816_Y {
		return false
	}
	return mt.conn[x][y]
}

func (mt *MT8816Driver) String() string {
	var b strings.Builder
	b.WriteString("    ")
	for y := range MT8816_Y {
		fmt.Fprintf(&b, "%d ", y)
	}
	b.WriteString("\n")
	for x := range MT8816_X {
		fmt.Fprintf(&b, "%2d| ", x)
		for y := range MT8816_Y {
			if mt.conn[x][y] {
				b.WriteString("1 ")
			} else {
				b.WriteString(". ")
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}
