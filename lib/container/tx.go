package container

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ValentinKolb/txlock/lib/lockmgr"
	"github.com/puzpuzpuz/xsync/v3"
)

// Tx is a container transaction. It is the Locker the lock manager sees.
type Tx struct {
	id      uint64
	modes   *xsync.MapOf[string, lockmgr.Mode] // lock name -> mode the lock was acquired in
	ctx     context.Context
	cancel  context.CancelFunc
	timer   *time.Timer
	began   time.Time
	timeout time.Duration
}

func newTx(parent context.Context, id uint64, timeout time.Duration) *Tx {
	ctx, cancel := context.WithCancel(parent)
	return &Tx{
		id:      id,
		modes:   xsync.NewMapOf[string, lockmgr.Mode](),
		ctx:     ctx,
		cancel:  cancel,
		began:   time.Now(),
		timeout: timeout,
	}
}

// ID returns the transaction id
func (tx *Tx) ID() uint64 {
	return tx.id
}

// LockMode implements lockmgr.Locker. Locks the transaction does not know
// about are reported as exclusive.
func (tx *Tx) LockMode(lockName string) lockmgr.Mode {
	if mode, ok := tx.modes.Load(lockName); ok {
		return mode
	}
	return lockmgr.Exclusive
}

// Locks returns the names of the locks acquired by the transaction, sorted
func (tx *Tx) Locks() []string {
	names := make([]string, 0, tx.modes.Size())
	tx.modes.Range(func(name string, _ lockmgr.Mode) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

// Done is closed once the transaction has ended
func (tx *Tx) Done() <-chan struct{} {
	return tx.ctx.Done()
}

func (tx *Tx) String() string {
	return fmt.Sprintf("tx-%d", tx.id)
}
