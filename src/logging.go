package vaxel

/*------------------------------------------------------------------
 *
 * Purpose:   	Per component loggers.
 *
 * Description:	Every component gets its own prefixed logger so the
 *		verbosity of, say, the hook decoder can be raised from
 *		the console without drowning in I2C chatter.
 *
 *		Levels follow the old numeric debug settings:
 *			0	warnings and errors only
 *			1	informational
 *			2	everything
 *
 *---------------------------------------------------------------*/

import (
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

var log_root = log.NewWithOptions(os.Stderr, log.Options{ //nolint:exhaustruct
	ReportTimestamp: true,
	TimeFormat:      "15:04:05.000",
})

// Logger is the base logger, for messages that belong to no component.
var Logger = log_root

var log_mu sync.Mutex
var log_components = map[string]*log.Logger{}
var log_force_debug bool

func debug_level(n int) log.Level {
	switch {
	case n <= 0:
		return log.WarnLevel
	case n == 1:
		return log.InfoLevel
	default:
		return log.DebugLevel
	}
}

// component_logger returns the logger for one component, creating it on first use.
// Components sharing a name share the logger.
func component_logger(name string, level int) *log.Logger {
	log_mu.Lock()
	defer log_mu.Unlock()

	if log_force_debug {
		level = 2
	}

	var l, ok = log_components[name]
	if !ok {
		l = log_root.WithPrefix(name)
		log_components[name] = l
	}
	l.SetLevel(debug_level(level))

	return l
}

// SetComponentLevel changes the verbosity of a running component.
func SetComponentLevel(name string, level int) bool {
	log_mu.Lock()
	defer log_mu.Unlock()

	var l, ok = log_components[strings.ToUpper(name)]
	if !ok {
		return false
	}

	l.SetLevel(debug_level(level))

	return true
}

func ComponentNames() []string {
	log_mu.Lock()
	defer log_mu.Unlock()

	var names = make([]string, 0, len(log_components))
	for n := range log_components {
		names = append(names, n)
	}
	sort.Strings(names)

	return names
}

/*-------------------------------------------------------------------
 *
 * Name:        SetupLogging
 *
 * Purpose:     Direct log output to stderr and optionally a file.
 *
 * Inputs:	cfg	- File name and rotation limits.
 *			  No file name means stderr only.
 *
 *		verbose	- Raise every component to debug.
 *
 * Returns:	Closer for the log file, nil if there is none.
 *
 *--------------------------------------------------------------------*/

func SetupLogging(cfg LogConfig, verbose bool) io.Closer {
	if verbose {
		log_mu.Lock()
		log_force_debug = true
		log_root.SetLevel(log.DebugLevel)
		for _, l := range log_components {
			l.SetLevel(log.DebugLevel)
		}
		log_mu.Unlock()
	}

	if cfg.File == "" {
		return nil
	}

	var lj = &lumberjack.Logger{ //nolint:exhaustruct
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	}

	SetLogOutput(io.MultiWriter(os.Stderr, lj))

	return lj
}

// SetLogOutput redirects every logger, existing and future.
func SetLogOutput(w io.Writer) {
	log_mu.Lock()
	defer log_mu.Unlock()

	log_root.SetOutput(w)
	for _, l := range log_components {
		l.SetOutput(w)
	}
}
