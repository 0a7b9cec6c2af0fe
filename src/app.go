package vaxel

/*------------------------------------------------------------------
 *
 * Purpose:   	The exchange: every component and the main loop.
 *
 * Description:	One goroutine runs Loop over and over.  Each cycle:
 *
 *			- collect expander interrupts into the queue
 *			- hook and pulse decoding
 *			- DTMF decoding
 *			- function button
 *			- ring cadences
 *			- line actions and timers
 *			- console commands
 *
 *		Nothing in here blocks.  Anything that does (console
 *		readers, the metrics server, GPIO edge handlers) runs
 *		on its own goroutine and talks to the loop through a
 *		channel or an atomic flag.
 *
 *---------------------------------------------------------------*/

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"periph.io/x/conn/v3/i2c"
)

type App struct {
	cfg   *Config
	clock Clock

	mcp    *MCPDriver
	im     *InterruptManager
	lines  *LineManager
	ring   *RingGenerator
	shk    *SHKService
	tone   *ToneReader
	matrix *ConnectionMatrix
	mt     *MT8816Driver
	conn   *ConnectionHandler
	action *LineAction
	button *FunctionButton
	calls  *CallLog

	console *Console

	cycles int

	log *log.Logger
}

/*-------------------------------------------------------------------
 *
 * Name:        NewApp
 *
 * Purpose:     Build the exchange on a bus.
 *
 * Inputs:	cfg	- Validated configuration.
 *		bus	- I2C bus with the expanders on it.
 *		clock	- Time source for every component.
 *
 * Returns:	Error only if the call log cannot be set up.
 *
 * Description:	Nothing touches the hardware until Begin.
 *
 *--------------------------------------------------------------------*/

func NewApp(cfg *Config, bus i2c.Bus, clock Clock) (*App, error) {
	var a = &App{
		cfg:   cfg,
		clock: clock,
		log:   component_logger("APP", 1),
	}

	a.mcp = NewMCPDriver(bus, cfg)
	a.im = NewInterruptManager(a.mcp, cfg)
	a.lines = NewLineManager(cfg, clock)
	a.ring = NewRingGenerator(a.mcp, a.lines, a.mcp.Lines(), cfg, clock)
	a.shk = NewSHKService(a.lines, a.im, a.mcp, a.ring, cfg, clock)
	a.tone = NewToneReader(a.mcp, a.im, a.lines, cfg, clock)
	a.matrix = NewConnectionMatrix(cfg)
	a.mt = NewMT8816Driver(a.mcp, cfg)
	a.conn = NewConnectionHandler(a.matrix, a.mt, cfg)

	var calls, err = NewCallLog(cfg, clock)
	if err != nil {
		return nil, err
	}
	a.calls = calls

	a.action = NewLineAction(a.lines, a.conn, a.ring, a.calls, cfg)

	a.button = NewFunctionButton(a.im, cfg, clock)
	a.button.OnShortPress = a.testRing
	a.button.OnLongPress = a.resetAll

	return a, nil
}

/*-------------------------------------------------------------------
 *
 * Name:        Begin
 *
 * Purpose:     Bring up the hardware.
 *
 * Returns:	ErrNoExpanders when no expander answered.  Everything
 *		else is logged and we carry on with what we have.
 *
 *--------------------------------------------------------------------*/

func (a *App) Begin() error {
	if err := a.mcp.Begin(); err != nil {
		return err
	}

	a.lines.AdjustActiveLines(a.mcp.Present(a.cfg.I2C.SLIC1), a.mcp.Present(a.cfg.I2C.SLIC2))
	a.tone.active = a.lines.ActiveMask()

	if a.mcp.Present(a.cfg.I2C.MT8816) {
		if !a.mt.Begin() {
			a.log.Warn("crosspoint switch did not initialise")
		}
	} else {
		a.log.Warn("no MT8816 expander, calls will have no audio path")
	}

	a.shk.Begin()
	a.im.ClearQueue()

	a.log.Infof("exchange up, active lines 0x%02X", a.lines.ActiveMask())
	return nil
}

// AttachInterrupts requests the host GPIO lines after Begin.  The driver
// closes them.  When that fails every expander is polled instead.
func (a *App) AttachInterrupts() error {
	var _, err = AttachInterrupts(a.mcp, a.cfg)
	if err != nil {
		for _, addr := range a.mcp.Addresses() {
			a.mcp.SetPolled(addr)
		}
	}
	return err
}

func (a *App) SetConsole(c *Console) {
	a.console = c
}

// Loop runs one cycle.
func (a *App) Loop() {
	a.im.CollectInterrupts()
	a.shk.Update()
	a.tone.Update()
	a.button.Update()
	a.ring.Update()
	a.action.Update()
	a.console.Poll(a.Execute)
	a.cycles++
}

/*-------------------------------------------------------------------
 *
 * Name:        Run
 *
 * Purpose:     Call Loop every loop_interval_us until ctx is done.
 *
 * Description:	A cycle that takes longer than the interval is
 *		counted; the ticker drops the ticks we missed.
 *
 *--------------------------------------------------------------------*/

func (a *App) Run(ctx context.Context) error {
	setupRealtime(a.cfg.Realtime)

	var interval = time.Duration(a.cfg.LoopIntervalUs) * time.Microsecond
	var ticker = time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		var start = time.Now()
		a.Loop()
		if time.Since(start) > interval {
			metricLoopOverruns.Inc()
		}
	}
}

// Close leaves the hardware quiet.
func (a *App) Close() error {
	a.ring.StopAll()
	if a.tone.IsActive() {
		a.tone.Deactivate()
	}
	a.conn.ClearAll()

	return errors.Join(a.console.Close(), a.calls.Close(), a.mcp.Close())
}

// Function button, short press.
func (a *App) testRing() {
	a.log.Info("test ring on line 0")
	if !a.ring.GenerateRingSignal(0) {
		a.log.Warn("line 0 cannot ring now")
	}
}

// Function button, long press.
func (a *App) resetAll() {
	a.log.Warn("resetting every line")
	a.ring.StopAll()
	a.conn.ClearAll()
	for i := range MAX_LINES {
		a.lines.ResetLine(i)
	}
}

func (a *App) Lines() *LineManager { return a.lines }

func (a *App) Matrix() *ConnectionMatrix { return a.matrix }

/*-------------------------------------------------------------------
 *
 * Name:        StartServices
 *
 * Purpose:     Bring up everything outside the core that the
 *		configuration asks for.
 *
 * Description:	Metrics server, console transports, DNS-SD.  A
 *		service that fails to start is logged and skipped.
 *
 *--------------------------------------------------------------------*/

func (a *App) StartServices(ctx context.Context) {
	if a.cfg.Metrics.Listen != "" {
		if addr, err := ServeMetrics(ctx, a.cfg.Metrics.Listen); err != nil {
			a.log.Errorf("metrics: %s", err)
		} else {
			a.log.Infof("metrics on http://%s/metrics", addr)
		}
	}

	var cc = a.cfg.Console
	if cc.Listen == "" && cc.Serial == "" && !cc.Pty {
		return
	}

	var console = NewConsole(a.cfg)
	a.SetConsole(console)

	if cc.Listen != "" {
		var addr, err = console.ListenTCP(ctx, cc.Listen)
		if err != nil {
			a.log.Errorf("console: %s", err)
		} else if cc.Announce {
			if tcp, ok := addr.(*net.TCPAddr); ok {
				if err := Announce(ctx, cc.AnnounceName, tcp.Port); err != nil {
					a.log.Error(err)
				}
			}
		}
	}

	if cc.Serial != "" {
		if err := console.OpenSerial(ctx, cc.Serial, cc.Baud); err != nil {
			a.log.Errorf("console: %s", err)
		}
	}

	if cc.Pty {
		if name, err := console.OpenPty(ctx); err != nil {
			a.log.Errorf("console: %s", err)
		} else {
			a.log.Info("console pseudo terminal", "name", name)
		}
	}
}

func lineArg(s string) (int, bool) {
	var n, err = strconv.Atoi(s)
	if err != nil || !validLine(n) {
		return NoLine, false
	}
	return n, true
}
