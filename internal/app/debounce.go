package app

import (
	"sync"
	"time"

	"shiftboard/store"
)

// debouncer collapses bursts of change notifications into one event per
// collection. The browser reloads the whole collection on every event, so
// forwarding each member of a burst would only multiply reloads.
type debouncer struct {
	window  time.Duration
	forward func(store.ChangeEvent)

	mu      sync.Mutex
	pending map[string]store.ChangeEvent
	timer   *time.Timer
	stopped bool
}

func newDebouncer(window time.Duration, forward func(store.ChangeEvent)) *debouncer {
	return &debouncer{
		window:  window,
		forward: forward,
		pending: make(map[string]store.ChangeEvent),
	}
}

// Notify records an event and schedules a flush. With a zero window events
// pass straight through.
func (d *debouncer) Notify(event store.ChangeEvent) {
	if d.window <= 0 {
		d.forward(event)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	// The last action within the window wins; a RELOAD supersedes
	// everything queued for its collection.
	d.pending[event.Collection] = event

	if d.timer == nil {
		d.timer = time.AfterFunc(d.window, d.flush)
	} else {
		d.timer.Reset(d.window)
	}
}

func (d *debouncer) flush() {
	d.mu.Lock()
	events := make([]store.ChangeEvent, 0, len(d.pending))
	for _, event := range d.pending {
		events = append(events, event)
	}
	d.pending = make(map[string]store.ChangeEvent)
	d.timer = nil
	d.mu.Unlock()

	for _, event := range events {
		d.forward(event)
	}
}

// Stop drops anything still pending.
func (d *debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = make(map[string]store.ChangeEvent)
}
