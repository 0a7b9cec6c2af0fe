package vaxel

/*------------------------------------------------------------------
 *
 * Purpose:   	The function button on the main board.
 *
 * Description:	MAIN pin 9, pulled up, low while pressed.  Changes
 *		come as interrupt events like everything else.
 *
 *		Edges closer than 20 ms to the previous accepted one
 *		are contact bounce.  A press has to last 50 ms.
 *
 *		Released before 5 s: short press.
 *		Held for 5 s: long press, reported while still held.
 *
 *---------------------------------------------------------------*/

import (
	"time"

	"github.com/charmbracelet/log"
)

const (
	button_bounce_ms = 20
	button_min_ms    = 50
	button_long_ms   = 5000
)

type FunctionButton struct {
	im   *InterruptManager
	addr uint8

	// Last level reported, bounce or not.
	raw bool

	pressed    bool
	pressStart time.Time
	lastEdge   time.Time
	longDone   bool

	OnShortPress func()
	OnLongPress  func()

	clock Clock
	log   *log.Logger
}

func NewFunctionButton(im *InterruptManager, cfg *Config, clock Clock) *FunctionButton {
	return &FunctionButton{
		im:    im,
		addr:  cfg.I2C.Main,
		clock: clock,
		log:   component_logger("BUTTON", cfg.Debug.Action),
	}
}

func (b *FunctionButton) Pressed() bool {
	return b.pressed
}

func (b *FunctionButton) Update() {
	var now = b.clock.Now()

	for {
		var ev, ok = b.im.PollEvent(b.addr, PIN_FUNCTION_BUTTON)
		if !ok {
			break
		}
		b.raw = !ev.Level
		b.edge(b.raw, now)
	}

	// A bounce may have hidden the final level.
	if b.raw != b.pressed {
		b.edge(b.raw, now)
	}

	if b.pressed && !b.longDone && now.Sub(b.pressStart) >= ms(button_long_ms) {
		b.longDone = true
		b.log.Info("long press")
		if b.OnLongPress != nil {
			b.OnLongPress()
		}
	}
}

func (b *FunctionButton) edge(down bool, now time.Time) {
	if down == b.pressed {
		return
	}
	if !b.lastEdge.IsZero() && now.Sub(b.lastEdge) < ms(button_bounce_ms) {
		return
	}
	b.lastEdge = now

	if down {
		b.pressed = true
		b.pressStart = now
		b.longDone = false
		return
	}

	b.pressed = false
	var held = now.Sub(b.pressStart)
	switch {
	case b.longDone:
	case held < ms(button_min_ms):
		b.log.Debugf("press of %v too short", held)
	default:
		b.log.Info("short press")
		if b.OnShortPress != nil {
			b.OnShortPress()
		}
	}
}
