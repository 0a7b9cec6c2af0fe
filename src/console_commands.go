package vaxel

/*------------------------------------------------------------------
 *
 * Purpose:   	Console commands.
 *
 * Description:	Execute runs on the main loop goroutine, so it can
 *		look at and change anything.  It returns the text to
 *		send back, always ending in a newline.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type consoleCommand struct {
	usage string
	help  string
	run   func(a *App, args []string) string
}

var console_commands map[string]consoleCommand

func init() {
	console_commands = map[string]consoleCommand{
		"help":       {"help", "this list", cmdHelp},
		"status":     {"status", "every line", cmdStatus},
		"line":       {"line <n>", "one line in detail", cmdLine},
		"matrix":     {"matrix", "connection matrix and crosspoints", cmdMatrix},
		"queue":      {"queue", "pending interrupt events", cmdQueue},
		"ring":       {"ring <n>", "ring a line", cmdRing},
		"stop":       {"stop [n]", "stop ringing one line or all", cmdStop},
		"connect":    {"connect <a> <b>", "connect two lines", cmdConnect},
		"disconnect": {"disconnect <n>", "clear every connection of a line", cmdDisconnect},
		"reset":      {"reset <n>", "put a line back to idle", cmdReset},
		"debug":      {"debug <component> <0-2>", "change log level", cmdDebug},
		"config":     {"config", "print the configuration", cmdConfig},
	}
}

var console_order = []string{"help", "status", "line", "matrix", "queue", "ring", "stop", "connect", "disconnect", "reset", "debug", "config"}

// Execute runs one console command line.
func (a *App) Execute(cmdline string) string {
	var fields = strings.Fields(cmdline)
	if len(fields) == 0 {
		return ""
	}

	var cmd, ok = console_commands[strings.ToLower(fields[0])]
	if !ok {
		return fmt.Sprintf("unknown command %q, try help\n", fields[0])
	}

	return cmd.run(a, fields[1:])
}

func cmdHelp(_ *App, _ []string) string {
	var b strings.Builder
	for _, name := range console_order {
		var c = console_commands[name]
		fmt.Fprintf(&b, "  %-26s %s\n", c.usage, c.help)
	}
	return b.String()
}

func cmdStatus(a *App, _ []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "cycles %d, active 0x%02X, not idle 0x%02X, ready line %d, dtmf line %d\n",
		a.cycles, a.lines.ActiveMask(), a.lines.LinesNotIdle(), a.lines.LastLineReady(), a.conn.DTMFLine())
	b.WriteString(a.lines.String())
	return b.String()
}

func cmdLine(a *App, args []string) string {
	if len(args) != 1 {
		return "usage: line <n>\n"
	}
	var n, ok = lineArg(args[0])
	if !ok {
		return "no such line\n"
	}

	var l = a.lines.Line(n)
	var pulse, count = a.shk.PulseState(n)

	var b strings.Builder
	fmt.Fprintf(&b, "line %d  number %q  active %t\n", n, l.PhoneNumber, l.Active)
	fmt.Fprintf(&b, "  status   %s (was %s)\n", l.CurrentStatus, l.PreviousStatus)
	fmt.Fprintf(&b, "  hook     %s (was %s)\n", l.CurrentHook, l.PreviousHook)
	fmt.Fprintf(&b, "  digits   %q\n", l.DialedDigits)
	fmt.Fprintf(&b, "  peers    in %d out %d\n", l.IncomingFrom, l.OutgoingTo)
	fmt.Fprintf(&b, "  pulse    %s, %d pulses, gap %v\n", pulse, count, l.Gap)
	fmt.Fprintf(&b, "  ring     %s, iteration %d, FR %t RM %t\n", l.Ring.State, l.Ring.Iteration, l.Ring.FR, l.Ring.RM)
	if a.lines.TimerActive(n) {
		fmt.Fprintf(&b, "  timer    %v left\n", l.TimerEnd.Sub(a.clock.Now()).Round(time.Millisecond))
	}
	if id := a.calls.CallID(n); id != "" {
		fmt.Fprintf(&b, "  call     %s\n", id)
	}
	return b.String()
}

func cmdMatrix(a *App, _ []string) string {
	var b strings.Builder
	b.WriteString(a.matrix.String())
	for _, c := range a.matrix.Connections() {
		b.WriteString(c)
		b.WriteString("\n")
	}
	b.WriteString(a.mt.String())
	return b.String()
}

func cmdQueue(a *App, _ []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d queued, %d dropped\n", a.im.QueueSize(), a.im.Capacity(), a.im.Dropped())
	for _, ev := range a.im.Snapshot() {
		fmt.Fprintf(&b, "  %s\n", ev)
	}
	return b.String()
}

func cmdRing(a *App, args []string) string {
	if len(args) != 1 {
		return "usage: ring <n>\n"
	}
	var n, ok = lineArg(args[0])
	if !ok {
		return "no such line\n"
	}
	if !a.ring.GenerateRingSignal(n) {
		return fmt.Sprintf("line %d cannot ring now\n", n)
	}
	return fmt.Sprintf("ringing line %d\n", n)
}

func cmdStop(a *App, args []string) string {
	if len(args) == 0 {
		a.ring.StopAll()
		return "all rings stopped\n"
	}
	var n, ok = lineArg(args[0])
	if !ok {
		return "no such line\n"
	}
	a.ring.StopRinging(n)
	return fmt.Sprintf("line %d stopped\n", n)
}

func cmdConnect(a *App, args []string) string {
	if len(args) != 2 {
		return "usage: connect <a> <b>\n"
	}
	var x, ok1 = lineArg(args[0])
	var y, ok2 = lineArg(args[1])
	if !ok1 || !ok2 || x == y {
		return "need two different lines\n"
	}
	if !a.conn.ConnectLines(x, y) {
		return "could not connect\n"
	}
	return fmt.Sprintf("connected %d <-> %d\n", x, y)
}

func cmdDisconnect(a *App, args []string) string {
	if len(args) != 1 {
		return "usage: disconnect <n>\n"
	}
	var n, ok = lineArg(args[0])
	if !ok {
		return "no such line\n"
	}
	var partners = a.conn.DisconnectLine(n)
	return fmt.Sprintf("line %d disconnected from %d line(s)\n", n, len(partners))
}

func cmdReset(a *App, args []string) string {
	if len(args) != 1 {
		return "usage: reset <n>\n"
	}
	var n, ok = lineArg(args[0])
	if !ok {
		return "no such line\n"
	}
	a.action.hangUp(n)
	a.lines.ResetLine(n)
	return fmt.Sprintf("line %d reset\n", n)
}

func cmdDebug(_ *App, args []string) string {
	if len(args) != 2 {
		return "usage: debug <component> <0-2>, components: " + strings.Join(ComponentNames(), " ") + "\n"
	}
	var level, err = strconv.Atoi(args[1])
	if err != nil || level < 0 || level > 2 {
		return "level is 0, 1 or 2\n"
	}
	if !SetComponentLevel(args[0], level) {
		return fmt.Sprintf("no component %q\n", args[0])
	}
	return fmt.Sprintf("%s at level %d\n", strings.ToUpper(args[0]), level)
}

func cmdConfig(a *App, _ []string) string {
	var out, err = a.cfg.YAML()
	if err != nil {
		return fmt.Sprintf("could not print configuration: %s\n", err)
	}
	return out
}
