package vaxel

/*------------------------------------------------------------------
 *
 * Purpose:   	Operator console.
 *
 * Description:	A line oriented text console reachable over TCP, a
 *		serial port or a pseudo terminal.  Any number of them
 *		can be open at once.
 *
 *		The goroutine that reads a connection never touches
 *		the exchange.  Each command line is sent to the main
 *		loop as a request and the reader waits for the reply.
 *		The main loop executes requests between cycles, so
 *		all core state stays owned by one goroutine.
 *
 *---------------------------------------------------------------*/

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

const console_prompt = "vaxel> "

// Requests executed by the main loop per cycle, at most.
const console_requests_per_cycle = 4

type consoleRequest struct {
	line  string
	reply chan string
}

type Console struct {
	requests chan consoleRequest
	done     chan struct{}

	mu      sync.Mutex
	closers []io.Closer
	wg      sync.WaitGroup

	log *log.Logger
}

func NewConsole(cfg *Config) *Console {
	return &Console{
		requests: make(chan consoleRequest),
		done:     make(chan struct{}),
		log:      component_logger("CONSOLE", cfg.Debug.Console),
	}
}

func (c *Console) track(cl io.Closer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		// Already closed.
		_ = cl.Close()
	default:
		c.closers = append(c.closers, cl)
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        ListenTCP
 *
 * Purpose:     Accept console connections until ctx is done.
 *
 * Inputs:	addr	- Listen address such as ":2323".
 *
 * Returns:	The bound address, so ":0" can be used in tests.
 *
 *--------------------------------------------------------------------*/

func (c *Console) ListenTCP(ctx context.Context, addr string) (net.Addr, error) {
	var ln, err = net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	c.track(ln)

	c.log.Infof("console listening on %s", ln.Addr())

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			var conn, acceptErr = ln.Accept()
			if acceptErr != nil {
				if !errors.Is(acceptErr, net.ErrClosed) {
					c.log.Errorf("accept: %s", acceptErr)
				}
				return
			}
			c.track(conn)
			c.log.Infof("console connection from %s", conn.RemoteAddr())
			c.Serve(ctx, conn, conn.RemoteAddr().String())
		}
	}()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	return ln.Addr(), nil
}

// Serve reads commands from rw on a new goroutine until EOF or ctx is done.
func (c *Console) Serve(ctx context.Context, rw io.ReadWriter, name string) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.session(ctx, rw, name)
	}()
}

func (c *Console) session(ctx context.Context, rw io.ReadWriter, name string) {
	var w = bufio.NewWriter(rw)
	var prompt = func() {
		_, _ = w.WriteString(console_prompt)
		_ = w.Flush()
	}

	_, _ = w.WriteString("vaxel exchange console, 'help' for commands\r\n")
	prompt()

	var sc = bufio.NewScanner(rw)
	for sc.Scan() {
		var line = strings.TrimSpace(sc.Text())
		if line == "" {
			prompt()
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}

		var reply = make(chan string, 1)
		select {
		case c.requests <- consoleRequest{line: line, reply: reply}:
		case <-ctx.Done():
			return
		case <-c.done:
			return
		}

		var out string
		select {
		case out = <-reply:
		case <-ctx.Done():
			return
		case <-c.done:
			return
		}

		_, _ = w.WriteString(strings.ReplaceAll(out, "\n", "\r\n"))
		prompt()
	}

	c.log.Infof("console %s closed", name)
	if cl, ok := rw.(io.Closer); ok {
		_ = cl.Close()
	}
}

// Poll runs waiting requests through execute.  Main loop only.
func (c *Console) Poll(execute func(string) string) int {
	if c == nil {
		return 0
	}
	for n := range console_requests_per_cycle {
		select {
		case req := <-c.requests:
			c.log.Debugf("command %q", req.line)
			req.reply <- execute(req.line)
		default:
			return n
		}
	}
	return console_requests_per_cycle
}

// Close shuts every listener and connection and waits for the readers.
func (c *Console) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	for _, cl := range c.closers {
		_ = cl.Close()
	}
	c.closers = nil
	c.mu.Unlock()

	c.wg.Wait()
	return nil
}
