// Package lockmgr implements a transaction-duration lock manager with shared
// and exclusive modes, FIFO wait queues and synchronous deadlock detection.
//
// Lockers (usually transactions) acquire named locks through a LockManager.
// A lock is held until the locker releases it by name or releases everything
// at the end of its transaction (UnlockAll).
//
// Key Components:
//
//   - LockManager: The lock table of one container. It maps every lock name
//     either to a placeholder or to a Lock and keeps the wait table, the edges
//     of the wait-for graph (every blocked locker waits on exactly one Lock).
//
//   - Placeholder: As long as only one locker ever asked for a name, the table
//     stores that locker directly. Acquiring an uncontested lock therefore costs
//     one map insert and no allocation of a Lock.
//
//   - Lock: Created as soon as a second locker asks for a name held by a
//     placeholder. It keeps the holder set, the current mode and a FIFO queue
//     of Waiters. A Lock that drops to zero users is removed from the table.
//
//   - Waiter: One queued request. The caller blocks on the waiter's own
//     channel, never on the Lock's mutex.
//
//   - LockStrategy: Decides whether a container locks at all (null strategy)
//     or passes every call on to its LockManager (exclusive strategy).
//
// Scheduling:
//
//	Waiters are granted strictly in arrival order. When the last holder leaves,
//	the head of the queue is granted. If it asked for shared mode, every shared
//	request directly behind it is granted in the same step (shared batching).
//	A shared request is only granted immediately if nobody is queued, so shared
//	requests never overtake a queued exclusive request. A queued shared request
//	may be upgraded to exclusive, an exclusive request is never downgraded.
//
// Deadlock Detection:
//
//	Before a locker is queued, the manager walks the wait-for graph from the
//	holders of the requested lock. If one of them is (transitively) waiting for
//	a lock held by the acquirer, the request fails with ErrDeadlock and nothing
//	is changed. Detection and the registration of the new wait edge happen in
//	one critical section, so two racing requests cannot both miss a cycle.
//
// Errors:
//
//	Failures are *Error values with a RetCode and can be matched with errors.Is
//	against ErrDeadlock, ErrLockReleased, ErrInterrupted and ErrInvalidOperation.
//	Lock waits have no timeout of their own: callers cancel the context or tear
//	down the whole transaction with UnlockAll.
//
// Usage Example:
//
//	lm := lockmgr.NewLockManager(lockmgr.WithName("shard-1"))
//
//	acquired, err := lm.Lock(ctx, "account:42", tx, lockmgr.Exclusive)
//	if errors.Is(err, lockmgr.ErrDeadlock) {
//	    // roll back tx
//	}
//	...
//	lm.UnlockAll(tx)
package lockmgr
