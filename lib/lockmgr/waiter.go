package lockmgr

import (
	"fmt"
	"time"
)

// Waiter is the pending request of one Locker for one contested Lock.
//
// A Waiter is created when a locker has to queue and disappears when it is
// granted the lock or its wait is torn down. The caller blocks on done, which
// is closed exactly once: either after granted was set or after released was
// set. Both flags are written under the owning Lock's mutex before done is
// closed, so they can be read without locking once done is closed.
type Waiter struct {
	lock   *Lock
	locker Locker
	mode   Mode // may only be upgraded from Shared to Exclusive while queued
	ticket uint64

	granted  bool
	released bool
	done     chan struct{}
	since    time.Time
}

func newWaiter(lock *Lock, locker Locker, mode Mode) *Waiter {
	return &Waiter{
		lock:   lock,
		locker: locker,
		mode:   mode,
		done:   make(chan struct{}),
		since:  time.Now(),
	}
}

// Mode returns the requested mode
func (w *Waiter) Mode() Mode {
	return w.mode
}

// Locker returns the waiting locker
func (w *Waiter) Locker() Locker {
	return w.locker
}

// grant wakes the waiter as the new holder, the lock's mutex must be held
func (w *Waiter) grant() {
	w.granted = true
	close(w.done)
}

// release wakes the waiter without granting the lock, the lock's mutex must be held
func (w *Waiter) release() {
	w.released = true
	close(w.done)
}

func (w *Waiter) String() string {
	return fmt.Sprintf("%v(%s)", w.locker, w.mode)
}
