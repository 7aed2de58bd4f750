package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a Clock whose time only moves when Advance is called.
//
// AfterFunc callbacks run synchronously inside Advance, in deadline order,
// on the goroutine that called Advance. Unlike the real clock a callback
// scheduled with a non-positive delay does not run inside AfterFunc; it
// runs on the next Advance (Advance(0) included). Callers can therefore
// schedule timers while holding their own locks.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	seq     uint64
	waiters []*waiter
	changed *sync.Cond
}

type waiter struct {
	deadline time.Time
	seq      uint64
	ch       chan time.Time
	fn       func()
	done     bool
}

func NewFake(start time.Time) *Fake {
	f := &Fake{now: start}
	f.changed = sync.NewCond(&f.mu)
	return f
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- f.now
		return ch
	}
	f.addLocked(&waiter{deadline: f.now.Add(d), ch: ch})
	return ch
}

func (f *Fake) AfterFunc(d time.Duration, fn func()) *Timer {
	f.mu.Lock()
	defer f.mu.Unlock()

	if d < 0 {
		d = 0
	}
	w := &waiter{deadline: f.now.Add(d), fn: fn}
	f.addLocked(w)

	return &Timer{stopFunc: func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		if w.done {
			return false
		}
		w.done = true
		f.changed.Broadcast()
		return true
	}}
}

func (f *Fake) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	<-f.After(d)
}

func (f *Fake) addLocked(w *waiter) {
	f.seq++
	w.seq = f.seq
	f.waiters = append(f.waiters, w)
	f.changed.Broadcast()
}

// Advance moves time forward by d and fires everything due, including
// timers scheduled by callbacks that fall due within the same window.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	target := f.now
	f.mu.Unlock()

	for {
		due := f.collect(target)
		if len(due) == 0 {
			return
		}
		for _, w := range due {
			if w.fn != nil {
				w.fn()
				continue
			}
			select {
			case w.ch <- target:
			default:
			}
		}
	}
}

func (f *Fake) collect(target time.Time) []*waiter {
	f.mu.Lock()
	defer f.mu.Unlock()

	var due, rest []*waiter
	for _, w := range f.waiters {
		switch {
		case w.done:
		case !w.deadline.After(target):
			w.done = true
			due = append(due, w)
		default:
			rest = append(rest, w)
		}
	}
	f.waiters = rest
	if len(due) > 0 {
		f.changed.Broadcast()
	}

	sort.Slice(due, func(i, j int) bool {
		if due[i].deadline.Equal(due[j].deadline) {
			return due[i].seq < due[j].seq
		}
		return due[i].deadline.Before(due[j].deadline)
	})
	return due
}

// Pending returns the number of timers and sleeps that have not fired or
// been stopped.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pendingLocked()
}

// WaitForTimers blocks until at least n timers are pending. It closes the
// race between a goroutine registering a sleep and the test advancing.
func (f *Fake) WaitForTimers(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for f.pendingLocked() < n {
		f.changed.Wait()
	}
}

func (f *Fake) pendingLocked() int {
	n := 0
	for _, w := range f.waiters {
		if !w.done {
			n++
		}
	}
	return n
}
