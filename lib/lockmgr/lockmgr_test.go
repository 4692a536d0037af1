package lockmgr

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --------------------------------------------------------------------------
// Test Helpers
// --------------------------------------------------------------------------

// testLocker remembers the mode it acquired every lock in, like a transaction
type testLocker struct {
	name  string
	mu    sync.Mutex
	modes map[string]Mode
}

func newLocker(name string) *testLocker {
	return &testLocker{name: name, modes: make(map[string]Mode)}
}

func (l *testLocker) LockMode(lockName string) Mode {
	l.mu.Lock()
	defer l.mu.Unlock()
	if mode, ok := l.modes[lockName]; ok {
		return mode
	}
	return Exclusive
}

func (l *testLocker) String() string {
	return l.name
}

type lockResult struct {
	acquired bool
	err      error
}

// lock acquires a lock and records the mode on success
func lock(ctx context.Context, lm *LockManager, lockName string, l *testLocker, mode Mode) (bool, error) {
	acquired, err := lm.Lock(ctx, lockName, l, mode)
	if acquired && err == nil {
		l.mu.Lock()
		l.modes[lockName] = mode
		l.mu.Unlock()
	}
	return acquired, err
}

// lockAsync acquires a lock in a new goroutine
func lockAsync(ctx context.Context, lm *LockManager, lockName string, l *testLocker, mode Mode) <-chan lockResult {
	ch := make(chan lockResult, 1)
	go func() {
		acquired, err := lock(ctx, lm, lockName, l, mode)
		ch <- lockResult{acquired: acquired, err: err}
	}()
	return ch
}

// waitQueued blocks until locker waits for lockName
func waitQueued(t *testing.T, lm *LockManager, locker Locker, lockName string) {
	t.Helper()
	require.Eventually(t, func() bool {
		lm.mu.Lock()
		defer lm.mu.Unlock()
		l, ok := lm.waitTable[locker]
		return ok && l.lockName == lockName
	}, time.Second, time.Millisecond, "%v never started waiting for %q", locker, lockName)
}

// requireBlocked checks that nothing arrives on ch for a short while
func requireBlocked(t *testing.T, ch <-chan lockResult) {
	t.Helper()
	select {
	case res := <-ch:
		t.Fatalf("expected the call to block, got acquired=%v err=%v", res.acquired, res.err)
	case <-time.After(50 * time.Millisecond):
	}
}

// requireResult waits for the result of an async lock call
func requireResult(t *testing.T, ch <-chan lockResult) lockResult {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("lock call did not return")
		return lockResult{}
	}
}

func lockOf(t *testing.T, lm *LockManager, lockName string) *Lock {
	t.Helper()
	lm.mu.Lock()
	defer lm.mu.Unlock()
	l, ok := lm.lockTable[lockName].(*Lock)
	require.True(t, ok, "%q is not a full lock", lockName)
	return l
}

// --------------------------------------------------------------------------
// Fast path
// --------------------------------------------------------------------------

func TestPlaceholder(t *testing.T) {
	ctx := context.Background()
	lm := NewLockManager(WithName(t.Name()))
	a := newLocker("A")

	acquired, err := lock(ctx, lm, "x", a, Exclusive)
	require.NoError(t, err)
	assert.True(t, acquired)
	assert.Equal(t, 1, lm.Size())

	lm.mu.Lock()
	entry := lm.lockTable["x"]
	lm.mu.Unlock()
	assert.False(t, entry.IsLock(), "an uncontested lock should stay a placeholder")

	// re-acquire in any mode is a no-op
	for _, mode := range []Mode{Exclusive, Shared} {
		acquired, err = lock(ctx, lm, "x", a, mode)
		require.NoError(t, err)
		assert.False(t, acquired)
	}
	assert.Equal(t, 1, lm.Size())

	lm.Unlock("x", a)
	assert.Equal(t, 0, lm.Size())
}

func TestReacquireIsNoOp(t *testing.T) {
	testCases := []struct {
		name string
		// setup leaves "x" held by the returned locker and returns a func that
		// lets the remaining lockers finish
		setup func(t *testing.T, lm *LockManager) (*testLocker, func())
		isLock bool
	}{
		{
			name: "Placeholder",
			setup: func(t *testing.T, lm *LockManager) (*testLocker, func()) {
				a := newLocker("A")
				_, err := lock(context.Background(), lm, "x", a, Shared)
				require.NoError(t, err)
				return a, func() {}
			},
		},
		{
			name: "SharedLock",
			setup: func(t *testing.T, lm *LockManager) (*testLocker, func()) {
				a, b := newLocker("A"), newLocker("B")
				for _, l := range []*testLocker{a, b} {
					acquired, err := lock(context.Background(), lm, "x", l, Shared)
					require.NoError(t, err)
					require.True(t, acquired)
				}
				return a, func() {}
			},
			isLock: true,
		},
		{
			name: "ExclusiveLockWithWaiter",
			setup: func(t *testing.T, lm *LockManager) (*testLocker, func()) {
				a, b := newLocker("A"), newLocker("B")
				_, err := lock(context.Background(), lm, "x", a, Exclusive)
				require.NoError(t, err)
				resB := lockAsync(context.Background(), lm, "x", b, Exclusive)
				waitQueued(t, lm, b, "x")
				return a, func() {
					lm.Unlock("x", a)
					require.NoError(t, requireResult(t, resB).err)
				}
			},
			isLock: true,
		},
	}

	for _, tc := range testCases {
		for _, mode := range []Mode{Shared, Exclusive} {
			t.Run(fmt.Sprintf("%s/%s", tc.name, mode), func(t *testing.T) {
				lm := NewLockManager(WithName(t.Name()))
				a, finish := tc.setup(t, lm)
				defer finish()

				var l *Lock
				usersBefore, waitersBefore := 0, 0
				if tc.isLock {
					l = lockOf(t, lm, "x")
					usersBefore, waitersBefore = l.NumUsers(), len(l.Waiters())
				}
				acquiredBefore := lm.metrics.acquired.Get()

				acquired, err := lm.Lock(context.Background(), "x", a, mode)
				require.NoError(t, err)
				assert.False(t, acquired)

				assert.Equal(t, acquiredBefore, lm.metrics.acquired.Get())
				assert.Equal(t, 1, lm.Size())
				lm.mu.Lock()
				_, waiting := lm.waitTable[a]
				lm.mu.Unlock()
				assert.False(t, waiting, "a holder must not wait for its own lock")

				if tc.isLock {
					assert.Equal(t, usersBefore, l.NumUsers())
					assert.Len(t, l.Waiters(), waitersBefore)
					assert.True(t, l.IsHolder(a))
				} else {
					lm.mu.Lock()
					entry := lm.lockTable["x"]
					lm.mu.Unlock()
					assert.False(t, entry.IsLock())
				}
			})
		}
	}
}

func TestUnlockNotHeld(t *testing.T) {
	lm := NewLockManager(WithName(t.Name()))
	a, b := newLocker("A"), newLocker("B")

	// unknown lock
	lm.Unlock("x", a)
	lm.UnlockAll(a)

	_, err := lock(context.Background(), lm, "x", a, Exclusive)
	require.NoError(t, err)

	// placeholder of somebody else stays untouched
	lm.Unlock("x", b)
	lm.UnlockAll(b)
	assert.Equal(t, 1, lm.Size())
}

// --------------------------------------------------------------------------
// Scenarios
// --------------------------------------------------------------------------

func TestExclusiveHandover(t *testing.T) {
	ctx := context.Background()
	lm := NewLockManager(WithName(t.Name()))
	a, b := newLocker("A"), newLocker("B")

	acquired, err := lock(ctx, lm, "x", a, Exclusive)
	require.NoError(t, err)
	require.True(t, acquired)

	acquired, err = lock(ctx, lm, "x", a, Exclusive)
	require.NoError(t, err)
	require.False(t, acquired)

	resB := lockAsync(ctx, lm, "x", b, Exclusive)
	waitQueued(t, lm, b, "x")
	requireBlocked(t, resB)

	l := lockOf(t, lm, "x")
	assert.Equal(t, 2, l.NumUsers())

	lm.Unlock("x", a)
	res := requireResult(t, resB)
	require.NoError(t, res.err)
	assert.True(t, res.acquired)

	assert.Equal(t, []Locker{b}, l.Holders())
	assert.Equal(t, Exclusive, l.Mode())
	assert.Empty(t, l.Waiters())
}

func TestSharedThenExclusive(t *testing.T) {
	ctx := context.Background()
	lm := NewLockManager(WithName(t.Name()))
	a, b, c := newLocker("A"), newLocker("B"), newLocker("C")

	acquired, err := lock(ctx, lm, "y", a, Shared)
	require.NoError(t, err)
	require.True(t, acquired)

	// the placeholder is promoted with A's shared mode, B joins immediately
	acquired, err = lock(ctx, lm, "y", b, Shared)
	require.NoError(t, err)
	require.True(t, acquired)

	l := lockOf(t, lm, "y")
	assert.ElementsMatch(t, []Locker{a, b}, l.Holders())
	assert.Equal(t, Shared, l.Mode())

	resC := lockAsync(ctx, lm, "y", c, Exclusive)
	waitQueued(t, lm, c, "y")

	lm.Unlock("y", a)
	requireBlocked(t, resC)

	lm.Unlock("y", b)
	res := requireResult(t, resC)
	require.NoError(t, res.err)
	assert.True(t, res.acquired)

	assert.Equal(t, Exclusive, l.Mode())
	assert.Equal(t, []Locker{c}, l.Holders())
}

func TestDeadlockDetected(t *testing.T) {
	ctx := context.Background()
	lm := NewLockManager(WithName(t.Name()))
	a, b := newLocker("A"), newLocker("B")

	_, err := lock(ctx, lm, "p", a, Exclusive)
	require.NoError(t, err)
	_, err = lock(ctx, lm, "q", b, Exclusive)
	require.NoError(t, err)

	resA := lockAsync(ctx, lm, "q", a, Exclusive)
	waitQueued(t, lm, a, "q")

	acquired, err := lock(ctx, lm, "p", b, Exclusive)
	require.Error(t, err)
	assert.False(t, acquired)
	assert.True(t, errors.Is(err, ErrDeadlock))
	assert.Equal(t, RetCDeadlock, CodeOf(err))

	// B still holds q only, A is still queued on q
	p := lockOf(t, lm, "p")
	q := lockOf(t, lm, "q")
	assert.Equal(t, []Locker{a}, p.Holders())
	assert.Empty(t, p.Waiters())
	assert.Equal(t, []Locker{b}, q.Holders())
	require.Len(t, q.Waiters(), 1)
	assert.Equal(t, Locker(a), q.Waiters()[0].Locker())
	requireBlocked(t, resA)

	// the deadlocked transaction rolls back, A goes on
	lm.UnlockAll(b)
	res := requireResult(t, resA)
	require.NoError(t, res.err)
	assert.True(t, res.acquired)
}

func TestDeadlockLongCycle(t *testing.T) {
	ctx := context.Background()
	lm := NewLockManager(WithName(t.Name()))
	a, b, c := newLocker("A"), newLocker("B"), newLocker("C")

	for name, l := range map[string]*testLocker{"a": a, "b": b, "c": c} {
		_, err := lock(ctx, lm, name, l, Exclusive)
		require.NoError(t, err)
	}

	resA := lockAsync(ctx, lm, "b", a, Exclusive)
	waitQueued(t, lm, a, "b")
	resB := lockAsync(ctx, lm, "c", b, Exclusive)
	waitQueued(t, lm, b, "c")

	_, err := lock(ctx, lm, "a", c, Exclusive)
	require.ErrorIs(t, err, ErrDeadlock)
	assert.True(t, lm.DetectDeadlock(c, lockOf(t, lm, "a")))
	assert.False(t, lm.DetectDeadlock(newLocker("D"), lockOf(t, lm, "a")))

	lm.UnlockAll(c)
	require.NoError(t, requireResult(t, resB).err)
	lm.UnlockAll(b)
	require.NoError(t, requireResult(t, resA).err)
	lm.UnlockAll(a)
	assert.Equal(t, 0, lm.Size())
}

func TestDeadlockThroughSharedHolders(t *testing.T) {
	ctx := context.Background()
	lm := NewLockManager(WithName(t.Name()))
	a, b, c, d := newLocker("A"), newLocker("B"), newLocker("C"), newLocker("D")

	_, err := lock(ctx, lm, "x", a, Exclusive)
	require.NoError(t, err)
	_, err = lock(ctx, lm, "t", b, Shared)
	require.NoError(t, err)
	_, err = lock(ctx, lm, "t", c, Shared)
	require.NoError(t, err)

	resA := lockAsync(ctx, lm, "t", a, Exclusive)
	waitQueued(t, lm, a, "t")

	// D holds nothing A waits for and simply queues
	resD := lockAsync(ctx, lm, "x", d, Exclusive)
	waitQueued(t, lm, d, "x")

	// C is one of the shared holders A waits for
	_, err = lock(ctx, lm, "x", c, Exclusive)
	require.ErrorIs(t, err, ErrDeadlock)

	lm.UnlockAll(b)
	requireBlocked(t, resA)
	lm.UnlockAll(c)
	require.NoError(t, requireResult(t, resA).err)
	lm.UnlockAll(a)
	require.NoError(t, requireResult(t, resD).err)
}

// --------------------------------------------------------------------------
// Queueing
// --------------------------------------------------------------------------

func TestFIFOGrants(t *testing.T) {
	ctx := context.Background()
	lm := NewLockManager(WithName(t.Name()))
	holder := newLocker("H")
	_, err := lock(ctx, lm, "x", holder, Exclusive)
	require.NoError(t, err)

	lockers := make([]*testLocker, 5)
	results := make([]<-chan lockResult, 5)
	for i := range lockers {
		lockers[i] = newLocker(fmt.Sprintf("W%d", i))
		results[i] = lockAsync(ctx, lm, "x", lockers[i], Exclusive)
		waitQueued(t, lm, lockers[i], "x")
	}

	waiters := lockOf(t, lm, "x").Waiters()
	require.Len(t, waiters, 5)
	for i, w := range waiters {
		assert.Equal(t, Locker(lockers[i]), w.Locker())
	}

	prev := Locker(holder)
	for i := range lockers {
		lm.Unlock("x", prev)
		res := requireResult(t, results[i])
		require.NoError(t, res.err)
		assert.True(t, res.acquired)
		for _, later := range results[i+1:] {
			requireBlocked(t, later)
		}
		prev = lockers[i]
	}
	lm.Unlock("x", prev)
	assert.Equal(t, 0, lm.Size())
}

func TestSharedBatching(t *testing.T) {
	ctx := context.Background()
	lm := NewLockManager(WithName(t.Name()))
	x := newLocker("X")
	_, err := lock(ctx, lm, "n", x, Exclusive)
	require.NoError(t, err)

	s1, s2, x2, s3 := newLocker("S1"), newLocker("S2"), newLocker("X2"), newLocker("S3")
	resS1 := lockAsync(ctx, lm, "n", s1, Shared)
	waitQueued(t, lm, s1, "n")
	resS2 := lockAsync(ctx, lm, "n", s2, Shared)
	waitQueued(t, lm, s2, "n")
	resX2 := lockAsync(ctx, lm, "n", x2, Exclusive)
	waitQueued(t, lm, x2, "n")
	resS3 := lockAsync(ctx, lm, "n", s3, Shared)
	waitQueued(t, lm, s3, "n")

	// one release grants the whole shared run at the head of the queue
	lm.Unlock("n", x)
	require.NoError(t, requireResult(t, resS1).err)
	require.NoError(t, requireResult(t, resS2).err)
	requireBlocked(t, resX2)
	requireBlocked(t, resS3)

	l := lockOf(t, lm, "n")
	assert.Equal(t, Shared, l.Mode())
	assert.ElementsMatch(t, []Locker{s1, s2}, l.Holders())

	lm.Unlock("n", s1)
	requireBlocked(t, resX2)
	lm.Unlock("n", s2)
	require.NoError(t, requireResult(t, resX2).err)
	requireBlocked(t, resS3)

	lm.Unlock("n", x2)
	require.NoError(t, requireResult(t, resS3).err)
	assert.Equal(t, Shared, l.Mode())
}

func TestSharedWaitsBehindExclusive(t *testing.T) {
	ctx := context.Background()
	lm := NewLockManager(WithName(t.Name()))
	a, b, c := newLocker("A"), newLocker("B"), newLocker("C")

	_, err := lock(ctx, lm, "y", a, Shared)
	require.NoError(t, err)
	resB := lockAsync(ctx, lm, "y", b, Exclusive)
	waitQueued(t, lm, b, "y")

	// shared is compatible with A but must not overtake B
	resC := lockAsync(ctx, lm, "y", c, Shared)
	waitQueued(t, lm, c, "y")
	requireBlocked(t, resC)

	lm.Unlock("y", a)
	require.NoError(t, requireResult(t, resB).err)
	requireBlocked(t, resC)
	lm.Unlock("y", b)
	require.NoError(t, requireResult(t, resC).err)
}

func TestWaiterUpgrade(t *testing.T) {
	ctx := context.Background()
	lm := NewLockManager(WithName(t.Name()))
	a, b, c := newLocker("A"), newLocker("B"), newLocker("C")

	_, err := lock(ctx, lm, "z", a, Exclusive)
	require.NoError(t, err)

	resShared := lockAsync(ctx, lm, "z", b, Shared)
	waitQueued(t, lm, b, "z")
	resC := lockAsync(ctx, lm, "z", c, Shared)
	waitQueued(t, lm, c, "z")

	// the same locker asks again with a stronger mode
	resExclusive := lockAsync(ctx, lm, "z", b, Exclusive)
	l := lockOf(t, lm, "z")
	require.Eventually(t, func() bool {
		lm.mu.Lock()
		defer lm.mu.Unlock()
		w, ok := l.waiters[b]
		return ok && w.mode == Exclusive
	}, time.Second, time.Millisecond)

	// an exclusive wait is never downgraded
	resAgain := lockAsync(ctx, lm, "z", b, Shared)
	requireBlocked(t, resAgain)
	assert.Equal(t, Exclusive, l.Waiters()[0].Mode())
	assert.Len(t, l.Waiters(), 2)

	lm.Unlock("z", a)
	for _, ch := range []<-chan lockResult{resShared, resExclusive, resAgain} {
		res := requireResult(t, ch)
		require.NoError(t, res.err)
		assert.True(t, res.acquired)
	}
	assert.Equal(t, Exclusive, l.Mode())
	requireBlocked(t, resC)

	lm.Unlock("z", b)
	require.NoError(t, requireResult(t, resC).err)
}

func TestOneWaitPerLocker(t *testing.T) {
	ctx := context.Background()
	lm := NewLockManager(WithName(t.Name()))
	a, b, c := newLocker("A"), newLocker("B"), newLocker("C")

	_, err := lock(ctx, lm, "x", a, Exclusive)
	require.NoError(t, err)
	_, err = lock(ctx, lm, "y", c, Exclusive)
	require.NoError(t, err)

	resB := lockAsync(ctx, lm, "x", b, Exclusive)
	waitQueued(t, lm, b, "x")

	_, err = lock(ctx, lm, "y", b, Exclusive)
	require.ErrorIs(t, err, ErrInvalidOperation)

	lm.UnlockAll(a)
	require.NoError(t, requireResult(t, resB).err)
}

// --------------------------------------------------------------------------
// Tear down
// --------------------------------------------------------------------------

func TestReleaseConvergence(t *testing.T) {
	testCases := []struct {
		name    string
		lockers int
		mode    Mode
	}{
		{name: "Placeholder", lockers: 1, mode: Exclusive},
		{name: "SharedLock", lockers: 3, mode: Shared},
		{name: "ExclusiveLock", lockers: 3, mode: Exclusive},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			lm := NewLockManager(WithName(t.Name()))

			lockers := make([]*testLocker, tc.lockers)
			results := make([]<-chan lockResult, tc.lockers)
			for i := range lockers {
				lockers[i] = newLocker(fmt.Sprintf("L%d", i))
				results[i] = lockAsync(ctx, lm, "r", lockers[i], tc.mode)
				if i == 0 {
					require.NoError(t, requireResult(t, results[0]).err)
				} else if tc.mode == Exclusive {
					waitQueued(t, lm, lockers[i], "r")
				}
			}

			for i, l := range lockers {
				if i > 0 {
					require.NoError(t, requireResult(t, results[i]).err)
				}
				lm.Unlock("r", l)
			}

			assert.Equal(t, 0, lm.Size())
			lm.mu.Lock()
			assert.Empty(t, lm.waitTable)
			lm.mu.Unlock()
		})
	}
}

func TestUnlockAllReleasesWaiter(t *testing.T) {
	ctx := context.Background()
	lm := NewLockManager(WithName(t.Name()))
	a, b := newLocker("A"), newLocker("B")

	_, err := lock(ctx, lm, "x", a, Exclusive)
	require.NoError(t, err)
	_, err = lock(ctx, lm, "y", b, Exclusive)
	require.NoError(t, err)

	resB := lockAsync(ctx, lm, "x", b, Exclusive)
	waitQueued(t, lm, b, "x")

	// the transaction of B ends while B is still queued
	lm.UnlockAll(b)
	res := requireResult(t, resB)
	require.ErrorIs(t, res.err, ErrLockReleased)
	assert.False(t, res.acquired)

	assert.Equal(t, 1, lm.Size(), "only x held by A should be left")
	assert.Equal(t, []Locker{a}, lockOf(t, lm, "x").Holders())
}

func TestInterruptedWait(t *testing.T) {
	lm := NewLockManager(WithName(t.Name()))
	a, b, c := newLocker("A"), newLocker("B"), newLocker("C")

	_, err := lock(context.Background(), lm, "x", a, Shared)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	resB := lockAsync(ctx, lm, "x", b, Exclusive)
	waitQueued(t, lm, b, "x")
	resC := lockAsync(context.Background(), lm, "x", c, Shared)
	waitQueued(t, lm, c, "x")

	cancel()
	res := requireResult(t, resB)
	require.ErrorIs(t, res.err, ErrInterrupted)
	assert.ErrorIs(t, res.err, context.Canceled)

	// with B gone, C is compatible with the shared holder
	require.NoError(t, requireResult(t, resC).err)
	l := lockOf(t, lm, "x")
	assert.ElementsMatch(t, []Locker{a, c}, l.Holders())

	lm.mu.Lock()
	_, waiting := lm.waitTable[b]
	lm.mu.Unlock()
	assert.False(t, waiting)
}

func TestMutualExclusion(t *testing.T) {
	lm := NewLockManager(WithName(t.Name()))
	const workers = 16
	const rounds = 50

	var inside, maxInside, total atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				l := newLocker(fmt.Sprintf("W%d-%d", id, r))
				acquired, err := lock(context.Background(), lm, "hot", l, Exclusive)
				if !assert.NoError(t, err) || !assert.True(t, acquired) {
					return
				}
				n := inside.Add(1)
				for {
					m := maxInside.Load()
					if n <= m || maxInside.CompareAndSwap(m, n) {
						break
					}
				}
				total.Add(1)
				inside.Add(-1)
				lm.UnlockAll(l)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load(), "two lockers held the exclusive lock at once")
	assert.Equal(t, int32(workers*rounds), total.Load())
	assert.Equal(t, 0, lm.Size())
}

// --------------------------------------------------------------------------
// Diagnostics
// --------------------------------------------------------------------------

func TestDump(t *testing.T) {
	ctx := context.Background()
	lm := NewLockManager(WithName(t.Name()))
	a, b := newLocker("A"), newLocker("B")

	_, err := lock(ctx, lm, "free", a, Exclusive)
	require.NoError(t, err)
	_, err = lock(ctx, lm, "busy", a, Exclusive)
	require.NoError(t, err)
	resB := lockAsync(ctx, lm, "busy", b, Shared)
	waitQueued(t, lm, b, "busy")

	dump := lm.Dump()
	assert.Contains(t, dump, "free: placeholder [A]")
	assert.Contains(t, dump, "busy: exclusive lock [A] waiters [B(shared")
	assert.Contains(t, dump, "2 entries, 1 waiting")

	lm.UnlockAll(a)
	require.NoError(t, requireResult(t, resB).err)
}
