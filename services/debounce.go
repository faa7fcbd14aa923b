package services

import (
	"sync"
	"time"
)

// Debouncer coalesces calls per key. The first Schedule for a key arms a timer
// for one window; later calls inside that window only replace the pending
// function, so the latest value wins and the deadline never slides.
type Debouncer struct {
	window time.Duration

	mu       sync.Mutex
	pending  map[string]*pendingCall
	inflight sync.WaitGroup
}

type pendingCall struct {
	owner interface{}
	fn    func()
	timer *time.Timer
}

func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]*pendingCall),
	}
}

// Schedule arms or refreshes the pending call for key and reports whether it
// was coalesced into an already pending one.
func (d *Debouncer) Schedule(key string, owner interface{}, fn func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if call, ok := d.pending[key]; ok {
		call.fn = fn
		call.owner = owner
		return true
	}

	call := &pendingCall{owner: owner, fn: fn}
	call.timer = time.AfterFunc(d.window, func() { d.fire(key, call) })
	d.pending[key] = call
	return false
}

func (d *Debouncer) fire(key string, call *pendingCall) {
	fn := d.take(key, call)
	if fn == nil {
		return
	}
	defer d.inflight.Done()
	fn()
}

// take removes call from the pending set. It returns nil if call was already
// flushed or cancelled.
func (d *Debouncer) take(key string, call *pendingCall) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	current, ok := d.pending[key]
	if !ok || current != call {
		return nil
	}
	delete(d.pending, key)
	call.timer.Stop()
	d.inflight.Add(1)
	return call.fn
}

// Flush runs the pending call for key now, on the caller's goroutine.
func (d *Debouncer) Flush(key string) bool {
	d.mu.Lock()
	call, ok := d.pending[key]
	d.mu.Unlock()
	if !ok {
		return false
	}

	fn := d.take(key, call)
	if fn == nil {
		return false
	}
	defer d.inflight.Done()
	fn()
	return true
}

// Cancel drops the pending call for key without running it.
func (d *Debouncer) Cancel(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	call, ok := d.pending[key]
	if !ok {
		return false
	}
	call.timer.Stop()
	delete(d.pending, key)
	return true
}

// FlushOwner runs every pending call scheduled by owner and returns how many ran.
func (d *Debouncer) FlushOwner(owner interface{}) int {
	return d.flushWhere(func(c *pendingCall) bool { return c.owner == owner })
}

func (d *Debouncer) FlushAll() int {
	return d.flushWhere(func(*pendingCall) bool { return true })
}

func (d *Debouncer) flushWhere(match func(*pendingCall) bool) int {
	d.mu.Lock()
	var fns []func()
	for key, call := range d.pending {
		if !match(call) {
			continue
		}
		call.timer.Stop()
		delete(d.pending, key)
		d.inflight.Add(1)
		fns = append(fns, call.fn)
	}
	d.mu.Unlock()

	for _, fn := range fns {
		func() {
			defer d.inflight.Done()
			fn()
		}()
	}
	return len(fns)
}

func (d *Debouncer) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[key]
	return ok
}

func (d *Debouncer) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Wait blocks until calls already taken from the pending set have returned.
func (d *Debouncer) Wait() {
	d.inflight.Wait()
}
