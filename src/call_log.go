package vaxel

/*------------------------------------------------------------------
 *
 * Purpose:   	Save call events in a log file.
 *
 * Description:	Rather than saving the raw status changes, it is
 *		probably more useful to save one line per call event
 *		in a CSV format for easy reading and later processing.
 *
 *		The file name comes from a strftime pattern so a new
 *		file is started each day, e.g. calls-2024-03-01.csv.
 *		A header is written only when the file is new.
 *
 *		Every call gets a uuid when it is first seen.  Both
 *		ends of the call share it until the call is over.
 *
 *---------------------------------------------------------------*/

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/lestrrat-go/strftime"
)

type CallEvent string

const (
	CallDial      CallEvent = "dial"
	CallAnswer    CallEvent = "answer"
	CallHangup    CallEvent = "hangup"
	CallBusy      CallEvent = "busy"
	CallFail      CallEvent = "fail"
	CallNoAnswer  CallEvent = "no_answer"
	CallAbandoned CallEvent = "abandoned"
)

// The call is over after any of these.
func (e CallEvent) final() bool {
	switch e {
	case CallDial, CallAnswer:
		return false
	default:
		return true
	}
}

var call_log_header = []string{"id", "utime", "isotime", "event", "line", "peer", "digits", "status"}

type CallLog struct {
	dir     string
	pattern *strftime.Strftime

	path string
	fp   *os.File
	w    *csv.Writer

	calls [MAX_LINES]string

	clock Clock
	log   *log.Logger
}

/*-------------------------------------------------------------------
 *
 * Name:        NewCallLog
 *
 * Purpose:     Prepare the call log.
 *
 * Inputs:	cfg	- CallLog.Dir and CallLog.Pattern.
 *		clock	- Time stamps and file names.
 *
 * Returns:	nil, nil when no directory is configured.  Record and
 *		Close are fine to call on a nil *CallLog.
 *
 * Description:	The directory is created if needed.  No file is
 *		opened until the first event.
 *
 *--------------------------------------------------------------------*/

func NewCallLog(cfg *Config, clock Clock) (*CallLog, error) {
	if cfg.CallLog.Dir == "" {
		return nil, nil //nolint:nilnil
	}

	var p, err = strftime.New(cfg.CallLog.Pattern)
	if err != nil {
		return nil, fmt.Errorf("call log pattern %q: %w", cfg.CallLog.Pattern, err)
	}

	if err := os.MkdirAll(cfg.CallLog.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("call log directory: %w", err)
	}

	return &CallLog{
		dir:     cfg.CallLog.Dir,
		pattern: p,
		clock:   clock,
		log:     component_logger("CALLLOG", cfg.Debug.Action),
	}, nil
}

// open switches to the file for today, writing a header if it is new.
func (cl *CallLog) open() bool {
	var path = filepath.Join(cl.dir, cl.pattern.FormatString(cl.clock.Now()))

	if cl.fp != nil && path == cl.path {
		return true
	}

	cl.closeFile()

	// See if the file already exists and is not empty.
	var st, statErr = os.Stat(path)
	var already_there = statErr == nil && st.Size() > 0

	cl.log.Infof("opening call log %q", path)

	var f, openErr = os.OpenFile(path, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0o644)
	if openErr != nil {
		cl.log.Errorf("can't open call log %q: %s", path, openErr)
		return false
	}

	cl.fp = f
	cl.path = path
	cl.w = csv.NewWriter(f)

	if !already_there {
		_ = cl.w.Write(call_log_header)
	}

	return true
}

func (cl *CallLog) closeFile() {
	if cl.fp == nil {
		return
	}
	cl.w.Flush()
	_ = cl.fp.Close()
	cl.fp = nil
	cl.w = nil
	cl.path = ""
}

/*-------------------------------------------------------------------
 *
 * Name:        Record
 *
 * Purpose:     Add one call event to the log.
 *
 * Inputs:	event	- What happened.
 *		line	- Line it happened on.
 *		peer	- Other end, NoLine if there is none.
 *		digits	- Number dialed, if any.
 *		st	- Status of line afterwards.
 *
 *--------------------------------------------------------------------*/

func (cl *CallLog) Record(event CallEvent, line int, peer int, digits string, st LineStatus) {
	if cl == nil || !validLine(line) {
		return
	}

	var id = cl.calls[line]
	if id == "" && validLine(peer) {
		id = cl.calls[peer]
	}
	if id == "" {
		id = uuid.NewString()
	}

	if event.final() {
		cl.calls[line] = ""
		if validLine(peer) && cl.calls[peer] == id {
			cl.calls[peer] = ""
		}
	} else {
		cl.calls[line] = id
		if validLine(peer) {
			cl.calls[peer] = id
		}
	}

	if !cl.open() {
		return
	}

	var now = cl.clock.Now().UTC()
	var speer string
	if validLine(peer) {
		speer = strconv.Itoa(peer)
	}

	var err = cl.w.Write([]string{
		id,
		strconv.FormatInt(now.Unix(), 10),
		now.Format("2006-01-02T15:04:05Z"),
		string(event),
		strconv.Itoa(line),
		speer,
		digits,
		st.String(),
	})
	if err == nil {
		cl.w.Flush()
		err = cl.w.Error()
	}
	if err != nil {
		cl.log.Errorf("call log write failed: %s", err)
		cl.closeFile()
	}
}

// CallID returns the id of the call a line is part of, "" if none.
func (cl *CallLog) CallID(line int) string {
	if cl == nil || !validLine(line) {
		return ""
	}
	return cl.calls[line]
}

func (cl *CallLog) Close() error {
	if cl == nil {
		return nil
	}
	cl.closeFile()
	return nil
}
