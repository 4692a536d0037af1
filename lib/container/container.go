package container

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/txlock/lib/lockmgr"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

// Logger is the logger of the container package
var Logger = logger.GetLogger("container")

// Container owns the lock table of one shard and the transactions using it
type Container struct {
	name     string
	lm       *lockmgr.LockManager // nil for the null strategy
	strategy lockmgr.LockStrategy
	txs      *xsync.MapOf[uint64, *Tx]
	nextTxID atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc

	txBegun    *metrics.Counter
	txEnded    *metrics.Counter
	txTimedOut *metrics.Counter
}

// NewContainer creates a new container with the given lock strategy. The name
// is used as metrics label and for the lock manager.
func NewContainer(name string, strategy lockmgr.LockStrategy) *Container {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Container{
		name:       name,
		strategy:   strategy,
		txs:        xsync.NewMapOf[uint64, *Tx](),
		ctx:        ctx,
		cancel:     cancel,
		txBegun:    metrics.GetOrCreateCounter(fmt.Sprintf(`txlock_tx_begun_total{container=%q}`, name)),
		txEnded:    metrics.GetOrCreateCounter(fmt.Sprintf(`txlock_tx_ended_total{container=%q}`, name)),
		txTimedOut: metrics.GetOrCreateCounter(fmt.Sprintf(`txlock_tx_timed_out_total{container=%q}`, name)),
	}
	if strategy != lockmgr.NullLockStrategy {
		c.lm = lockmgr.NewLockManager(lockmgr.WithName(name))
	}
	return c
}

// LockManager implements lockmgr.LockManagerProvider
func (c *Container) LockManager() *lockmgr.LockManager {
	return c.lm
}

// Strategy returns the lock strategy of the container
func (c *Container) Strategy() lockmgr.LockStrategy {
	return c.strategy
}

// Tx returns the running transaction with the given id
func (c *Container) Tx(txID uint64) (*Tx, error) {
	tx, ok := c.txs.Load(txID)
	if !ok {
		return nil, lockmgr.NewError(lockmgr.RetCUnknownTx, fmt.Sprintf("transaction %d does not exist", txID))
	}
	return tx, nil
}

// ActiveTxs returns the number of running transactions
func (c *Container) ActiveTxs() int {
	return c.txs.Size()
}

// Close ends all running transactions. Every blocked lock call returns with
// ErrInterrupted or ErrLockReleased.
func (c *Container) Close() {
	c.cancel()
	c.txs.Range(func(id uint64, tx *Tx) bool {
		if _, loaded := c.txs.LoadAndDelete(id); loaded {
			c.endTx(tx)
		}
		return true
	})
	Logger.Infof("%s: closed", c.name)
}

// --------------------------------------------------------------------------
// Interface Methods (docu see container/interface.go)
// --------------------------------------------------------------------------

func (c *Container) Begin(timeoutSec uint64) (uint64, error) {
	if c.ctx.Err() != nil {
		return 0, lockmgr.NewError(lockmgr.RetCInvalidOperation, "container is closed")
	}

	timeout := time.Duration(timeoutSec) * time.Second
	tx := newTx(c.ctx, c.nextTxID.Add(1), timeout)
	c.txs.Store(tx.id, tx)
	if timeout > 0 {
		tx.timer = time.AfterFunc(timeout, func() {
			c.timeoutTx(tx)
		})
	}

	c.txBegun.Inc()
	Logger.Debugf("%s: began %s (timeout %s)", c.name, tx, timeout)
	return tx.id, nil
}

func (c *Container) Lock(txID uint64, lockName string, mode lockmgr.Mode) (bool, error) {
	tx, err := c.Tx(txID)
	if err != nil {
		return false, err
	}

	// the mode is recorded before the placeholder can be installed, another
	// transaction promoting it reads the mode through LockMode
	_, known := tx.modes.LoadOrStore(lockName, mode)

	acquired, err := c.strategy.Lock(tx.ctx, c, tx, lockName, mode)
	if err != nil {
		if !known {
			tx.modes.Delete(lockName)
		}
		Logger.Debugf("%s: %s failed to lock %q: %v", c.name, tx, lockName, err)
		return false, err
	}

	// the transaction ended while the lock was acquired
	if tx.ctx.Err() != nil {
		if acquired {
			c.strategy.Unlock(c, lockName, tx)
		}
		return false, lockmgr.NewError(lockmgr.RetCLockReleased, fmt.Sprintf("%s ended while locking %q", tx, lockName))
	}
	return acquired, nil
}

func (c *Container) Unlock(txID uint64, lockName string) error {
	tx, err := c.Tx(txID)
	if err != nil {
		return err
	}
	c.strategy.Unlock(c, lockName, tx)
	tx.modes.Delete(lockName)
	return nil
}

func (c *Container) End(txID uint64) error {
	tx, loaded := c.txs.LoadAndDelete(txID)
	if !loaded {
		return lockmgr.NewError(lockmgr.RetCUnknownTx, fmt.Sprintf("transaction %d does not exist", txID))
	}
	c.endTx(tx)
	return nil
}

func (c *Container) Size() (int, error) {
	if c.lm == nil {
		return 0, nil
	}
	return c.lm.Size(), nil
}

func (c *Container) Dump() (string, error) {
	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "container %s (strategy %s, %d transactions)\n", c.name, c.strategy.Name(), c.txs.Size())
	c.txs.Range(func(_ uint64, tx *Tx) bool {
		_, _ = fmt.Fprintf(&sb, "  %s: running %s, locks [%s]\n",
			tx, time.Since(tx.began).Round(time.Millisecond), strings.Join(tx.Locks(), ", "))
		return true
	})
	if c.lm != nil {
		sb.WriteString(c.lm.Dump())
	}
	return sb.String(), nil
}

// --------------------------------------------------------------------------
// Transaction Teardown
// --------------------------------------------------------------------------

// endTx releases everything tx holds or waits for. The tx must already be
// removed from the registry.
func (c *Container) endTx(tx *Tx) {
	if tx.timer != nil {
		tx.timer.Stop()
	}
	c.strategy.UnlockAll(c, tx)
	tx.cancel()
	// a Lock call that installed its entry after the first pass saw the tx
	// still running, the second pass removes that entry
	c.strategy.UnlockAll(c, tx)
	c.txEnded.Inc()
	Logger.Debugf("%s: ended %s after %s", c.name, tx, time.Since(tx.began).Round(time.Millisecond))
}

func (c *Container) timeoutTx(tx *Tx) {
	removed := false
	c.txs.Compute(tx.id, func(cur *Tx, loaded bool) (*Tx, bool) {
		removed = loaded && cur == tx
		return cur, removed || !loaded
	})
	if !removed {
		return
	}
	c.txTimedOut.Inc()
	Logger.Infof("%s: %s timed out after %s", c.name, tx, tx.timeout)
	c.endTx(tx)
}
