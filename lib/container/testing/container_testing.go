package testing

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/txlock/lib/container"
	"github.com/ValentinKolb/txlock/lib/lockmgr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ContainerFactory is a function that creates a new, empty container
type ContainerFactory func() container.IContainer

// RunContainerTests runs the test suite for an IContainer implementation
func RunContainerTests(t *testing.T, name string, factory ContainerFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("BeginEnd", func(t *testing.T) {
			testBeginEnd(t, factory())
		})

		t.Run("UnknownTx", func(t *testing.T) {
			testUnknownTx(t, factory())
		})

		t.Run("LockUnlock", func(t *testing.T) {
			testLockUnlock(t, factory())
		})

		t.Run("ExclusiveHandover", func(t *testing.T) {
			testExclusiveHandover(t, factory())
		})

		t.Run("SharedLocks", func(t *testing.T) {
			testSharedLocks(t, factory())
		})

		t.Run("Deadlock", func(t *testing.T) {
			testDeadlock(t, factory())
		})

		t.Run("EndReleasesWaiter", func(t *testing.T) {
			testEndReleasesWaiter(t, factory())
		})

		t.Run("TxTimeout", func(t *testing.T) {
			testTxTimeout(t, factory())
		})

		t.Run("ManyTransactions", func(t *testing.T) {
			testManyTransactions(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

type lockResult struct {
	acquired bool
	err      error
}

func lockAsync(c container.IContainer, txID uint64, lockName string, mode lockmgr.Mode) <-chan lockResult {
	ch := make(chan lockResult, 1)
	go func() {
		acquired, err := c.Lock(txID, lockName, mode)
		ch <- lockResult{acquired: acquired, err: err}
	}()
	return ch
}

// waitForWaiters blocks until the lock table reports n pending waits
func waitForWaiters(t *testing.T, c container.IContainer, n int) {
	t.Helper()
	expected := fmt.Sprintf("%d waiting)", n)
	require.Eventually(t, func() bool {
		dump, err := c.Dump()
		return err == nil && strings.Contains(dump, expected)
	}, 2*time.Second, 5*time.Millisecond, "lock table never reported %d waiting transactions", n)
}

func requireBlocked(t *testing.T, ch <-chan lockResult) {
	t.Helper()
	select {
	case res := <-ch:
		t.Fatalf("expected the call to block, got acquired=%v err=%v", res.acquired, res.err)
	case <-time.After(50 * time.Millisecond):
	}
}

func requireResult(t *testing.T, ch <-chan lockResult, timeout time.Duration) lockResult {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(timeout):
		t.Fatal("lock call did not return")
		return lockResult{}
	}
}

func begin(t *testing.T, c container.IContainer) uint64 {
	t.Helper()
	txID, err := c.Begin(0)
	require.NoError(t, err)
	return txID
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testBeginEnd(t *testing.T, c container.IContainer) {
	seen := make(map[uint64]bool)
	for i := 0; i < 10; i++ {
		txID := begin(t, c)
		assert.False(t, seen[txID], "transaction id %d was handed out twice", txID)
		seen[txID] = true
	}

	for txID := range seen {
		require.NoError(t, c.End(txID))
	}

	// ending twice fails
	for txID := range seen {
		err := c.End(txID)
		assert.True(t, errors.Is(err, lockmgr.ErrUnknownTx), "expected ErrUnknownTx, got %v", err)
		break
	}
}

func testUnknownTx(t *testing.T, c container.IContainer) {
	const unknown = 987654321

	_, err := c.Lock(unknown, "x", lockmgr.Exclusive)
	assert.ErrorIs(t, err, lockmgr.ErrUnknownTx)

	err = c.Unlock(unknown, "x")
	assert.ErrorIs(t, err, lockmgr.ErrUnknownTx)

	err = c.End(unknown)
	assert.ErrorIs(t, err, lockmgr.ErrUnknownTx)
}

func testLockUnlock(t *testing.T, c container.IContainer) {
	txID := begin(t, c)
	defer func() { _ = c.End(txID) }()

	acquired, err := c.Lock(txID, "x", lockmgr.Exclusive)
	require.NoError(t, err)
	assert.True(t, acquired)

	acquired, err = c.Lock(txID, "x", lockmgr.Shared)
	require.NoError(t, err)
	assert.False(t, acquired, "re-acquiring a held lock must report false")

	size, err := c.Size()
	require.NoError(t, err)
	assert.Equal(t, 1, size)

	dump, err := c.Dump()
	require.NoError(t, err)
	assert.Contains(t, dump, "x: placeholder")

	require.NoError(t, c.Unlock(txID, "x"))
	// releasing again is not an error
	require.NoError(t, c.Unlock(txID, "x"))

	size, err = c.Size()
	require.NoError(t, err)
	assert.Equal(t, 0, size)
}

func testExclusiveHandover(t *testing.T, c container.IContainer) {
	tx1, tx2 := begin(t, c), begin(t, c)
	defer func() { _ = c.End(tx2) }()

	_, err := c.Lock(tx1, "x", lockmgr.Exclusive)
	require.NoError(t, err)

	res2 := lockAsync(c, tx2, "x", lockmgr.Exclusive)
	waitForWaiters(t, c, 1)
	requireBlocked(t, res2)

	require.NoError(t, c.End(tx1))
	res := requireResult(t, res2, 2*time.Second)
	require.NoError(t, res.err)
	assert.True(t, res.acquired)

	dump, err := c.Dump()
	require.NoError(t, err)
	assert.Contains(t, dump, fmt.Sprintf("x: exclusive lock [tx-%d]", tx2))
}

func testSharedLocks(t *testing.T, c container.IContainer) {
	tx1, tx2, tx3 := begin(t, c), begin(t, c), begin(t, c)
	defer func() {
		for _, txID := range []uint64{tx1, tx2, tx3} {
			_ = c.End(txID)
		}
	}()

	for _, txID := range []uint64{tx1, tx2} {
		acquired, err := c.Lock(txID, "y", lockmgr.Shared)
		require.NoError(t, err)
		require.True(t, acquired)
	}

	res3 := lockAsync(c, tx3, "y", lockmgr.Exclusive)
	waitForWaiters(t, c, 1)

	require.NoError(t, c.Unlock(tx1, "y"))
	requireBlocked(t, res3)

	require.NoError(t, c.Unlock(tx2, "y"))
	res := requireResult(t, res3, 2*time.Second)
	require.NoError(t, res.err)
	assert.True(t, res.acquired)
}

func testDeadlock(t *testing.T, c container.IContainer) {
	txA, txB := begin(t, c), begin(t, c)
	defer func() { _ = c.End(txA) }()

	_, err := c.Lock(txA, "p", lockmgr.Exclusive)
	require.NoError(t, err)
	_, err = c.Lock(txB, "q", lockmgr.Exclusive)
	require.NoError(t, err)

	resA := lockAsync(c, txA, "q", lockmgr.Exclusive)
	waitForWaiters(t, c, 1)

	_, err = c.Lock(txB, "p", lockmgr.Exclusive)
	require.Error(t, err)
	assert.True(t, errors.Is(err, lockmgr.ErrDeadlock), "expected ErrDeadlock, got %v", err)
	requireBlocked(t, resA)

	// roll back B
	require.NoError(t, c.End(txB))
	res := requireResult(t, resA, 2*time.Second)
	require.NoError(t, res.err)
	assert.True(t, res.acquired)
}

func testEndReleasesWaiter(t *testing.T, c container.IContainer) {
	tx1, tx2 := begin(t, c), begin(t, c)
	defer func() { _ = c.End(tx1) }()

	_, err := c.Lock(tx1, "x", lockmgr.Exclusive)
	require.NoError(t, err)

	res2 := lockAsync(c, tx2, "x", lockmgr.Exclusive)
	waitForWaiters(t, c, 1)

	require.NoError(t, c.End(tx2))
	res := requireResult(t, res2, 2*time.Second)
	assert.False(t, res.acquired)
	assert.True(t, errors.Is(res.err, lockmgr.ErrLockReleased), "expected ErrLockReleased, got %v", res.err)

	size, err := c.Size()
	require.NoError(t, err)
	assert.Equal(t, 1, size)
}

func testTxTimeout(t *testing.T, c container.IContainer) {
	tx1, err := c.Begin(1)
	require.NoError(t, err)
	tx2 := begin(t, c)
	defer func() { _ = c.End(tx2) }()

	_, err = c.Lock(tx1, "x", lockmgr.Exclusive)
	require.NoError(t, err)

	// tx2 is granted the lock once tx1 times out
	res := requireResult(t, lockAsync(c, tx2, "x", lockmgr.Exclusive), 5*time.Second)
	require.NoError(t, res.err)
	assert.True(t, res.acquired)

	_, err = c.Lock(tx1, "y", lockmgr.Exclusive)
	assert.ErrorIs(t, err, lockmgr.ErrUnknownTx)
}

func testManyTransactions(t *testing.T, c container.IContainer) {
	const workers = 8
	const rounds = 20
	names := []string{"a", "b", "c"}

	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				txID, err := c.Begin(0)
				if err != nil {
					errCh <- err
					return
				}
				// always lock in the same order, no deadlocks possible
				for _, name := range names {
					mode := lockmgr.Shared
					if (id+r)%2 == 0 {
						mode = lockmgr.Exclusive
					}
					if _, err := c.Lock(txID, name, mode); err != nil {
						errCh <- fmt.Errorf("tx %d lock %s: %w", txID, name, err)
						return
					}
				}
				if err := c.End(txID); err != nil {
					errCh <- err
					return
				}
			}
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Error(err)
	}

	size, err := c.Size()
	require.NoError(t, err)
	assert.Equal(t, 0, size)
}
