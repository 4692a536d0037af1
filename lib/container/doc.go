// Package container provides the transaction container that sits between
// callers and the lock manager.
//
// A Container owns the lock table of one shard and a registry of running
// transactions. Every transaction (Tx) is the lockmgr.Locker of its locks and
// remembers the mode it acquired each lock in, which the lock manager asks for
// when it turns a placeholder into a full lock.
//
// Key Components:
//
//   - IContainer: The interface shared by the local Container and the RPC
//     client (rpc/client). Code written against it works the same way whether
//     the lock table is local or lives in a txlock server.
//
//   - Lock Strategy: The container either passes every call on to its lock
//     manager (lockmgr.ExclusiveLockStrategy) or does not lock at all
//     (lockmgr.NullLockStrategy, no lock manager is created).
//
// Transaction Lifecycle:
//
//	Begin registers a transaction, End removes it and releases all its locks.
//	A pending lock call of an ended transaction fails with
//	lockmgr.ErrLockReleased. Lock waits have no timeout of their own, instead
//	a transaction can be started with a timeout after which it is ended
//	automatically. Close ends every transaction.
//
// Usage Example:
//
//	c := container.NewContainer("shard-1", lockmgr.ExclusiveLockStrategy)
//	defer c.Close()
//
//	txID, _ := c.Begin(30)
//	if _, err := c.Lock(txID, "account:42", lockmgr.Exclusive); errors.Is(err, lockmgr.ErrDeadlock) {
//	    // roll back
//	}
//	_ = c.End(txID)
package container
