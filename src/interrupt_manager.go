package vaxel

/*------------------------------------------------------------------
 *
 * Purpose:   	Pin change event queue.
 *
 * Description:	Once per main loop cycle every expander is asked what
 *		changed and the answers are collected here.  The hook
 *		decoder, the DTMF decoder and the function button then
 *		pick out the events they care about.
 *
 *		Taking a matching event out of the middle keeps the
 *		relative order of everything else.  At the event rates
 *		of a telephone exchange (well under 100 per second) a
 *		linear scan of a short slice is plenty.
 *
 *		The queue has a fixed capacity.  When it is full the
 *		newest event is dropped and we complain about it.
 *
 *---------------------------------------------------------------*/

import (
	"github.com/charmbracelet/log"
)

// Where events come from.  Satisfied by *MCPDriver.
type interruptSource interface {
	Addresses() []uint8
	PollInterrupt(addr uint8) (Event, bool)
	ChipName(addr uint8) string
}

// Upper bound on events taken from one chip per cycle.
const max_events_per_chip = 16

type InterruptManager struct {
	src      interruptSource
	queue    []Event
	capacity int
	dropped  int
	log      *log.Logger
}

func NewInterruptManager(src interruptSource, cfg *Config) *InterruptManager {
	return &InterruptManager{
		src:      src,
		queue:    make([]Event, 0, cfg.EventQueueSize),
		capacity: cfg.EventQueueSize,
		log:      component_logger("IM", cfg.Debug.IM),
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        CollectInterrupts
 *
 * Purpose:     Drain every expander's pending changes into the queue.
 *
 * Returns:	Number of events added.
 *
 *--------------------------------------------------------------------*/

func (im *InterruptManager) CollectInterrupts() int {
	var added = 0

	for _, addr := range im.src.Addresses() {
		for range max_events_per_chip {
			var ev, ok = im.src.PollInterrupt(addr)
			if !ok {
				break
			}
			if im.push(ev) {
				metricEventsQueued.WithLabelValues(im.src.ChipName(addr)).Inc()
				added++
			}
		}
	}

	return added
}

func (im *InterruptManager) push(ev Event) bool {
	if len(im.queue) >= im.capacity {
		im.dropped++
		metricEventsDropped.Inc()
		im.log.Warnf("event queue full (%d), dropping %s", im.capacity, ev)
		return false
	}

	im.queue = append(im.queue, ev)
	im.log.Debugf("queued %s, depth %d", ev, len(im.queue))
	return true
}

// take removes the first event accepted by match, keeping the order of the rest.
func (im *InterruptManager) take(match func(Event) bool) (Event, bool) {
	for i, ev := range im.queue {
		if match(ev) {
			copy(im.queue[i:], im.queue[i+1:])
			im.queue = im.queue[:len(im.queue)-1]
			return ev, true
		}
	}
	return Event{}, false
}

func (im *InterruptManager) PollEvent(addr uint8, pin uint8) (Event, bool) {
	return im.take(func(ev Event) bool { return ev.Addr == addr && ev.Pin == pin })
}

func (im *InterruptManager) PollEventByAddress(addr uint8) (Event, bool) {
	return im.take(func(ev Event) bool { return ev.Addr == addr })
}

// PollAnyEvent is a plain FIFO pop.
func (im *InterruptManager) PollAnyEvent() (Event, bool) {
	return im.take(func(Event) bool { return true })
}

func (im *InterruptManager) ClearQueue() {
	if len(im.queue) > 0 {
		im.log.Infof("clearing %d queued events", len(im.queue))
	}
	im.queue = im.queue[:0]
}

func (im *InterruptManager) QueueSize() int {
	return len(im.queue)
}

func (im *InterruptManager) Capacity() int {
	return im.capacity
}

// Dropped counts events lost to a full queue since start.
func (im *InterruptManager) Dropped() int {
	return im.dropped
}

// Snapshot copies the queue, oldest first.
func (im *InterruptManager) Snapshot() []Event {
	return append([]Event(nil), im.queue...)
}
