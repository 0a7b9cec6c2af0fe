package vaxel

/*------------------------------------------------------------------
 *
 * Purpose:   	Console over a serial port or a pseudo terminal.
 *
 * Description:	The serial port is the bench console of the
 *		exchange: a USB serial adapter and a terminal program.
 *
 *		The pseudo terminal is for when there is no spare
 *		port.  We print the name of the slave side so a
 *		terminal program can be pointed at it.
 *
 *---------------------------------------------------------------*/

import (
	"context"
	"fmt"

	"github.com/creack/pty"
	"github.com/pkg/term"
)

// OpenSerial serves the console on a serial device.  baud 0 leaves the speed alone.
func (c *Console) OpenSerial(ctx context.Context, device string, baud int) error {
	var t, err = term.Open(device, term.RawMode)
	if err != nil {
		return fmt.Errorf("open serial console %s: %w", device, err)
	}

	if baud != 0 {
		if err := t.SetSpeed(baud); err != nil {
			_ = t.Close()
			return fmt.Errorf("serial console %s speed %d: %w", device, baud, err)
		}
	}

	c.track(t)
	c.log.Infof("console on %s at %d baud", device, baud)
	c.Serve(ctx, t, device)
	return nil
}

// OpenPty serves the console on a new pseudo terminal and returns the slave name.
func (c *Console) OpenPty(ctx context.Context) (string, error) {
	var ptmx, pts, err = pty.Open()
	if err != nil {
		return "", fmt.Errorf("could not create pseudo terminal: %w", err)
	}

	c.track(ptmx)
	c.track(pts)
	c.log.Infof("console on pseudo terminal %s", pts.Name())
	c.Serve(ctx, ptmx, pts.Name())
	return pts.Name(), nil
}
