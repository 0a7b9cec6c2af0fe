package vaxel

/*------------------------------------------------------------------
 *
 * Purpose:   	Give the main loop a better chance of keeping time.
 *
 * Description:	Pulse dialing is timed in milliseconds.  The loop
 *		goroutine is pinned to its OS thread, that thread is
 *		moved to SCHED_FIFO, and memory is locked so a page
 *		fault cannot stall a dial break.  All of it is best
 *		effort; without privileges we carry on as normal.
 *
 *---------------------------------------------------------------*/

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// setupRealtime must be called on the goroutine that runs the loop.
func setupRealtime(cfg RealtimeConfig) {
	runtime.LockOSThread()

	if !cfg.Enable {
		return
	}

	if cfg.LockMemory {
		if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
			log_root.Warn("could not lock memory", "err", err)
		}
	}

	var attr = unix.SchedAttr{ //nolint:exhaustruct
		Size:     unix.SizeofSchedAttr,
		Policy:   unix.SCHED_FIFO,
		Priority: uint32(cfg.Priority),
	}
	if err := unix.SchedSetAttr(0, &attr, 0); err != nil {
		log_root.Warn("could not switch to SCHED_FIFO", "priority", cfg.Priority, "err", err)
		return
	}

	log_root.Info("realtime scheduling", "priority", cfg.Priority)
}
