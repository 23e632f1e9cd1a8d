package session

import "sync"

// dispatcher decouples handler invocation from the read loop. Events are
// queued in arrival order into an unbounded FIFO and replayed one at a time
// on a dedicated goroutine, so a slow handler (or one that itself calls
// Send) delays later events but never frame delivery or response
// correlation.
type dispatcher struct {
	s    *Session
	mu   sync.Mutex
	cond *sync.Cond

	queue []Event
	done  bool
}

func newDispatcher(s *Session) *dispatcher {
	d := &dispatcher{s: s}
	d.cond = sync.NewCond(&d.mu)
	return d
}

func (d *dispatcher) enqueue(ev Event) {
	d.mu.Lock()
	if !d.done {
		d.queue = append(d.queue, ev)
		d.cond.Signal()
	}
	d.mu.Unlock()
}

// stop wakes the run loop and discards anything still queued.
func (d *dispatcher) stop() {
	d.mu.Lock()
	d.done = true
	d.queue = nil
	d.cond.Signal()
	d.mu.Unlock()
}

func (d *dispatcher) run() {
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.done {
			d.cond.Wait()
		}
		if d.done {
			d.mu.Unlock()
			return
		}
		ev := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()

		d.s.dispatchEvent(ev)
	}
}
