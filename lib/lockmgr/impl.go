package lockmgr

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/lni/dragonboat/v4/logger"
)

// Logger is the logger of the lock manager
var Logger = logger.GetLogger("lockmgr")

// LockManager is the lock table of one container.
//
// The table maps a lock name either to a placeholder (a single uncontested
// holder) or to a *Lock. The wait table holds the single Lock every blocked
// locker waits on and is the edge set of the wait-for graph.
type LockManager struct {
	mu        sync.Mutex
	lockTable map[string]LockProxy
	waitTable map[Locker]*Lock

	name    string
	metrics *managerMetrics
}

// Option configures a LockManager
type Option func(*LockManager)

// WithName sets the name used as metrics label and in log messages
func WithName(name string) Option {
	return func(m *LockManager) {
		m.name = name
	}
}

// NewLockManager creates a new empty lock table
func NewLockManager(opts ...Option) *LockManager {
	m := &LockManager{
		lockTable: make(map[string]LockProxy),
		waitTable: make(map[Locker]*Lock),
		name:      "default",
	}
	for _, opt := range opts {
		opt(m)
	}
	m.metrics = newManagerMetrics(m.name)
	return m
}

// --------------------------------------------------------------------------
// Public API
// --------------------------------------------------------------------------

// Lock acquires the named lock for locker in the given mode. It blocks while
// the lock is held in a conflicting mode.
//
// It returns true if the call acquired the lock and false if locker already
// held it. Errors:
//   - ErrDeadlock: waiting would close a cycle in the wait-for graph, nothing was changed
//   - ErrLockReleased: the wait was torn down by a release of locker from another goroutine
//   - ErrInterrupted: ctx was done before the lock was granted
//   - ErrInvalidOperation: locker is already waiting for another lock
func (m *LockManager) Lock(ctx context.Context, lockName string, locker Locker, mode Mode) (bool, error) {
	for {
		m.mu.Lock()
		entry, ok := m.lockTable[lockName]
		if !ok {
			m.lockTable[lockName] = placeholder{locker: locker}
			m.mu.Unlock()
			m.metrics.acquired.Inc()
			return true, nil
		}

		var lock *Lock
		switch e := entry.(type) {
		case placeholder:
			if e.locker == locker {
				m.mu.Unlock()
				return false, nil
			}
			// a second locker shows up, turn the placeholder into a real lock
			lock = newLock(m, lockName, e.locker, e.locker.LockMode(lockName))
			m.lockTable[lockName] = lock
			m.metrics.promotions.Inc()
			Logger.Debugf("promoted placeholder of %q held by %v to a %s lock", lockName, e.locker, lock.mode)
		case *Lock:
			lock = e
		}
		m.mu.Unlock()

		acquired, err := lock.acquire(ctx, locker, mode)
		if errors.Is(err, errRetired) {
			continue
		}
		return acquired, err
	}
}

// Unlock releases the named lock held (or waited for) by locker. Releasing a
// lock that is not held is a no-op.
func (m *LockManager) Unlock(lockName string, locker Locker) {
	for {
		m.mu.Lock()
		entry, ok := m.lockTable[lockName]
		if !ok {
			m.mu.Unlock()
			return
		}

		lock, isLock := entry.(*Lock)
		if !isLock {
			if entry.(placeholder).locker == locker {
				delete(m.lockTable, lockName)
			}
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()

		if _, live := lock.release(locker); live {
			return
		}
	}
}

// UnlockAll releases every lock held by locker. Pending waits of locker are
// torn down as well, the waiting caller gets ErrLockReleased.
func (m *LockManager) UnlockAll(locker Locker) {
	m.mu.Lock()
	var locks []*Lock
	for name, entry := range m.lockTable {
		switch e := entry.(type) {
		case placeholder:
			if e.locker == locker {
				delete(m.lockTable, name)
			}
		case *Lock:
			if _, ok := e.holders[locker]; ok {
				locks = append(locks, e)
			}
		}
	}
	if waitLock, ok := m.waitTable[locker]; ok {
		locks = append(locks, waitLock)
	}
	m.mu.Unlock()

	for _, lock := range locks {
		lock.release(locker)
	}
}

// DetectDeadlock reports whether acquirer waiting for lock would close a cycle
// in the wait-for graph, that is whether some holder of lock is (transitively)
// waiting for a lock held by acquirer.
func (m *LockManager) DetectDeadlock(acquirer Locker, lock *Lock) bool {
	lock.mu.Lock()
	defer lock.mu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.detectDeadlockLocked(acquirer, lock)
}

// Size returns the number of entries in the lock table
func (m *LockManager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lockTable)
}

// Dump renders the lock table (sorted by lock name) and logs it at debug level
func (m *LockManager) Dump() string {
	m.mu.Lock()
	names := make([]string, 0, len(m.lockTable))
	for name := range m.lockTable {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "lock table %s (%d entries, %d waiting)\n", m.name, len(m.lockTable), len(m.waitTable))
	for _, name := range names {
		switch e := m.lockTable[name].(type) {
		case placeholder:
			_, _ = fmt.Fprintf(&sb, "  %s: placeholder [%v]\n", name, e.locker)
		case *Lock:
			_, _ = fmt.Fprintf(&sb, "  %s: %s\n", name, e.dumpLocked())
		}
	}
	m.mu.Unlock()

	dump := sb.String()
	Logger.Debugf("%s", dump)
	return dump
}

// --------------------------------------------------------------------------
// Wait-for graph
// --------------------------------------------------------------------------

// registerWaitLocked checks for a deadlock and adds the edge acquirer -> lock
// to the wait table. Detection and registration happen in one critical
// section. The mutexes of lock and of the manager must be held.
func (m *LockManager) registerWaitLocked(acquirer Locker, lock *Lock) error {
	if cur, ok := m.waitTable[acquirer]; ok && cur != lock {
		return NewError(RetCInvalidOperation, fmt.Sprintf("%v is already waiting for %q", acquirer, cur.lockName))
	}
	if m.detectDeadlockLocked(acquirer, lock) {
		m.metrics.deadlocks.Inc()
		Logger.Warningf("deadlock: %v waiting for %q would close a cycle", acquirer, lock.lockName)
		return NewError(RetCDeadlock, fmt.Sprintf("%v waiting for %q would deadlock", acquirer, lock.lockName))
	}
	m.waitTable[acquirer] = lock
	return nil
}

// detectDeadlockLocked runs a depth first search from the holders of lock
// along the wait table. Every locker is visited at most once.
func (m *LockManager) detectDeadlockLocked(acquirer Locker, lock *Lock) bool {
	visited := make(map[Locker]struct{})
	for holder := range lock.holders {
		if holder == acquirer {
			continue
		}
		if m.waitsForLocked(holder, acquirer, visited) {
			return true
		}
	}
	return false
}

// waitsForLocked checks if locker is blocked (transitively) by target
func (m *LockManager) waitsForLocked(locker, target Locker, visited map[Locker]struct{}) bool {
	if _, seen := visited[locker]; seen {
		return false
	}
	visited[locker] = struct{}{}

	waitLock, ok := m.waitTable[locker]
	if !ok {
		return false
	}
	for holder := range waitLock.holders {
		if holder == target || m.waitsForLocked(holder, target, visited) {
			return true
		}
	}
	return false
}
