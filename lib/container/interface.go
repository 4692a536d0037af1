package container

import (
	"github.com/ValentinKolb/txlock/lib/lockmgr"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IContainer is the generic interface for running transactions against one
// lock table. It is implemented by the local Container and by the RPC client,
// so callers do not care whether the lock table lives in their own process.
//
// Errors are *lockmgr.Error values (match with errors.Is against the lockmgr
// sentinels), unknown transaction ids yield lockmgr.ErrUnknownTx.
type IContainer interface {
	// Begin starts a new transaction and returns its id. If timeoutSec is not
	// zero the transaction is ended automatically after that many seconds,
	// which releases all its locks and tears down its pending wait.
	Begin(timeoutSec uint64) (txID uint64, err error)
	// Lock acquires the named lock for the transaction and blocks while it is
	// held in a conflicting mode. acquired is false if the transaction already
	// held the lock.
	Lock(txID uint64, lockName string, mode lockmgr.Mode) (acquired bool, err error)
	// Unlock releases a single lock of the transaction. Releasing a lock that
	// is not held is not an error.
	Unlock(txID uint64, lockName string) (err error)
	// End ends the transaction and releases every lock it holds
	End(txID uint64) (err error)
	// Size returns the number of entries in the lock table
	Size() (size int, err error)
	// Dump returns a human-readable rendering of the lock table
	Dump() (dump string, err error)
}
