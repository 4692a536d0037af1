package lockmgr

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ValentinKolb/txlock/lib/lockmgr/internal"
)

// errRetired is returned by acquire if the lock was removed from the table
// before the caller got hold of its mutex. The manager retries the lookup.
var errRetired = errors.New("lock retired")

// Lock is the heavyweight lock table entry of one contested lock name.
//
// Locking:
//
//	Lock.mu may be held while taking LockManager.mu, never the other way round.
//	The holder set, the waiters and the queue are only changed with both mutexes
//	held, so the manager can read them during deadlock detection while holding
//	only its own mutex.
type Lock struct {
	mgr      *LockManager
	lockName string

	mu      sync.Mutex
	mode    Mode
	holders map[Locker]struct{}
	waiters map[Locker]*Waiter
	waitQ   *internal.WaitQueue[*Waiter]
	retired bool // set once numUsers dropped to zero, a retired lock is never reused
}

func newLock(mgr *LockManager, lockName string, holder Locker, mode Mode) *Lock {
	l := &Lock{
		mgr:      mgr,
		lockName: lockName,
		mode:     mode,
		holders:  make(map[Locker]struct{}),
		waiters:  make(map[Locker]*Waiter),
		waitQ:    internal.NewWaitQueue[*Waiter](),
	}
	if holder != nil {
		l.holders[holder] = struct{}{}
	}
	return l
}

// --------------------------------------------------------------------------
// Accessors
// --------------------------------------------------------------------------

// IsLock implements LockProxy
func (l *Lock) IsLock() bool {
	return true
}

// Name returns the lock name
func (l *Lock) Name() string {
	return l.lockName
}

// Mode returns the mode currently granted to the holders
func (l *Lock) Mode() Mode {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mode
}

// IsHolder checks if locker currently holds the lock
func (l *Lock) IsHolder(locker Locker) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.holders[locker]
	return ok
}

// Holders returns a copy of the current holder set
func (l *Lock) Holders() []Locker {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holdersLocked()
}

// Waiters returns the queued requests in arrival order
func (l *Lock) Waiters() []*Waiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.waitQ.Values()
}

// NumUsers returns |holders| + |waiters|
func (l *Lock) NumUsers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.numUsersLocked()
}

func (l *Lock) holdersLocked() []Locker {
	holders := make([]Locker, 0, len(l.holders))
	for h := range l.holders {
		holders = append(holders, h)
	}
	return holders
}

func (l *Lock) numUsersLocked() int {
	return len(l.holders) + len(l.waiters)
}

// --------------------------------------------------------------------------
// Acquire / Release
// --------------------------------------------------------------------------

// acquire grants locker the lock or queues it and blocks until it is granted,
// its wait is torn down or ctx is done. It returns false if locker already
// holds the lock.
func (l *Lock) acquire(ctx context.Context, locker Locker, mode Mode) (bool, error) {
	l.mu.Lock()
	if l.retired {
		l.mu.Unlock()
		return false, errRetired
	}

	m := l.mgr
	m.mu.Lock()

	if l.numUsersLocked() == 0 {
		l.mode = mode
		l.holders[locker] = struct{}{}
		m.mu.Unlock()
		l.mu.Unlock()
		m.metrics.acquired.Inc()
		return true, nil
	}

	// a holder asking again gets false in any mode, holders are never upgraded
	if _, ok := l.holders[locker]; ok {
		m.mu.Unlock()
		l.mu.Unlock()
		return false, nil
	}

	// compatible shared request without anybody queued
	if l.mode == Shared && mode == Shared && l.waitQ.Len() == 0 {
		l.holders[locker] = struct{}{}
		m.mu.Unlock()
		l.mu.Unlock()
		m.metrics.acquired.Inc()
		return true, nil
	}

	w, waiting := l.waiters[locker]
	if waiting {
		// a repeated request only matters if it asks for a stronger mode
		if w.mode != mode && mode == Exclusive {
			if err := m.registerWaitLocked(locker, l); err != nil {
				m.mu.Unlock()
				l.mu.Unlock()
				return false, err
			}
			Logger.Debugf("upgrading wait of %v on %q to %s", locker, l.lockName, mode)
			w.mode = Exclusive
		}
	} else {
		if err := m.registerWaitLocked(locker, l); err != nil {
			m.mu.Unlock()
			l.mu.Unlock()
			return false, err
		}
		w = newWaiter(l, locker, mode)
		w.ticket = l.waitQ.Enqueue(w)
		l.waiters[locker] = w
		m.metrics.waits.Inc()
		Logger.Debugf("%v waits for %q in %s mode (%d queued)", locker, l.lockName, mode, l.waitQ.Len())
	}
	m.mu.Unlock()
	l.mu.Unlock()

	return l.wait(ctx, w)
}

// wait blocks until w was granted or released, or ctx is done
func (l *Lock) wait(ctx context.Context, w *Waiter) (bool, error) {
	select {
	case <-w.done:
	case <-ctx.Done():
		l.mu.Lock()
		select {
		case <-w.done:
			// the wake-up won the race against the cancellation
			l.mu.Unlock()
		default:
			l.mgr.mu.Lock()
			l.removeWaiterLocked(w)
			l.promoteLocked()
			l.retireIfUnusedLocked()
			l.mgr.mu.Unlock()
			l.mu.Unlock()

			l.mgr.metrics.interrupted.Inc()
			Logger.Errorf("wait of %v for %q was interrupted: %v", w.locker, l.lockName, ctx.Err())
			return false, wrapError(RetCInterrupted, ctx.Err(), "wait for lock %q interrupted", l.lockName)
		}
	}

	if w.released {
		l.mgr.metrics.releasedFailures.Inc()
		return false, NewError(RetCLockReleased, fmt.Sprintf("lock %q was released while waiting", l.lockName))
	}
	l.mgr.metrics.waitTime.UpdateDuration(w.since)
	return true, nil
}

// release removes locker from the holders and the waiters and grants the lock
// to the next waiters if possible. It returns the number of remaining users
// and false if the lock had already been retired before the call.
func (l *Lock) release(locker Locker) (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.retired {
		return 0, false
	}

	m := l.mgr
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(l.holders, locker)
	if w, ok := l.waiters[locker]; ok {
		l.removeWaiterLocked(w)
		w.release()
		Logger.Debugf("released pending wait of %v on %q", locker, l.lockName)
	}

	l.promoteLocked()
	l.retireIfUnusedLocked()
	return l.numUsersLocked(), true
}

// promoteLocked grants the lock to the head of the queue if there are no
// holders left. A shared grant is followed by every consecutive shared
// request at the head. While the lock is held in shared mode, shared requests
// at the head of the queue join the holders. Both mutexes must be held.
func (l *Lock) promoteLocked() {
	if len(l.holders) == 0 {
		head, ok := l.waitQ.Dequeue()
		if !ok {
			return
		}
		l.mode = head.mode
		l.grantLocked(head)
		if l.mode == Exclusive {
			return
		}
	}
	if l.mode != Shared {
		return
	}
	for {
		head, ok := l.waitQ.Peek()
		if !ok || head.mode != Shared {
			return
		}
		l.waitQ.Dequeue()
		l.grantLocked(head)
	}
}

// grantLocked adds w, already taken off the queue, to the holders. Both
// mutexes must be held.
func (l *Lock) grantLocked(w *Waiter) {
	l.forgetWaiterLocked(w)
	l.holders[w.locker] = struct{}{}
	l.mgr.metrics.acquired.Inc()
	Logger.Debugf("granted %q to %v in %s mode", l.lockName, w.locker, w.mode)
	w.grant()
}

// removeWaiterLocked drops w from the queue and the wait-for graph. Both
// mutexes must be held.
func (l *Lock) removeWaiterLocked(w *Waiter) {
	l.waitQ.Remove(w.ticket)
	l.forgetWaiterLocked(w)
}

func (l *Lock) forgetWaiterLocked(w *Waiter) {
	delete(l.waiters, w.locker)
	if l.mgr.waitTable[w.locker] == l {
		delete(l.mgr.waitTable, w.locker)
	}
}

// retireIfUnusedLocked removes the lock from the table once nobody uses it.
// Both mutexes must be held.
func (l *Lock) retireIfUnusedLocked() {
	if l.numUsersLocked() > 0 {
		return
	}
	l.retired = true
	if cur, ok := l.mgr.lockTable[l.lockName]; ok && cur == LockProxy(l) {
		delete(l.mgr.lockTable, l.lockName)
	}
}

// --------------------------------------------------------------------------
// Diagnostics
// --------------------------------------------------------------------------

// dumpLocked renders the lock state. The manager's mutex must be held.
func (l *Lock) dumpLocked() string {
	holders := make([]string, 0, len(l.holders))
	for h := range l.holders {
		holders = append(holders, fmt.Sprint(h))
	}
	sort.Strings(holders)

	waiters := make([]string, 0, l.waitQ.Len())
	for _, w := range l.waitQ.Values() {
		waiters = append(waiters, fmt.Sprintf("%v(%s, %s)", w.locker, w.mode, time.Since(w.since).Round(time.Millisecond)))
	}
	return fmt.Sprintf("%s lock [%s] waiters [%s]", l.mode, strings.Join(holders, ", "), strings.Join(waiters, ", "))
}
