package vaxel

/*------------------------------------------------------------------
 *
 * Purpose:   	Host GPIO lines for the expander INT outputs.
 *
 * Description:	The INT pins are open drain and active low, so each
 *		host line is an input with pull-up watching for a
 *		falling edge.  The event handler runs on a gpiocdev
 *		goroutine and only sets the chip's flag.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

/*-------------------------------------------------------------------
 *
 * Name:        AttachInterrupts
 *
 * Purpose:     Request a host line for every expander that has one.
 *
 * Inputs:	d	- Driver whose chips get the lines.
 *		cfg	- Chip name and per expander offsets.
 *			  A negative offset means that chip is polled.
 *
 * Returns:	Lines to close on shutdown.
 *
 *--------------------------------------------------------------------*/

// request_interrupt_line opens one host line.  Tests replace it.
var request_interrupt_line = func(chip string, offset int, handler func()) (InterruptLine, error) {
	return gpiocdev.RequestLine(chip, offset,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithConsumer("vaxel"),
		gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) { handler() }))
}

func AttachInterrupts(d *MCPDriver, cfg *Config) ([]InterruptLine, error) {
	var wiring = []struct {
		addr   uint8
		offset int
	}{
		{cfg.I2C.Main, cfg.Interrupts.Main},
		{cfg.I2C.MT8816, cfg.Interrupts.MT8816},
		{cfg.I2C.SLIC1, cfg.Interrupts.SLIC1},
		{cfg.I2C.SLIC2, cfg.Interrupts.SLIC2},
	}

	var lines []InterruptLine
	var attached []uint8
	for _, w := range wiring {
		if !d.Present(w.addr) {
			continue
		}
		if w.offset < 0 || cfg.Interrupts.Chip == "" {
			d.SetPolled(w.addr)
			continue
		}

		var addr = w.addr
		var l, err = request_interrupt_line(cfg.Interrupts.Chip, w.offset, func() { d.Interrupt(addr) })
		if err != nil {
			// Closed lines must not stay on the chips, PollInterrupt
			// would read them and Close would close them again.
			for _, a := range attached {
				d.AttachInterruptLine(a, nil)
			}
			for _, done := range lines {
				_ = done.Close()
			}
			return nil, fmt.Errorf("request %s line %d for %s: %w", cfg.Interrupts.Chip, w.offset, d.ChipName(addr), err)
		}

		d.AttachInterruptLine(addr, l)
		attached = append(attached, addr)
		lines = append(lines, l)
	}

	return lines, nil
}
