package lockmgr

import (
	"context"
	"fmt"
	"strings"
)

// LockStrategy decides whether a container takes part in locking at all.
type LockStrategy interface {
	// Lock acquires lockName for locker, see LockManager.Lock
	Lock(ctx context.Context, c LockManagerProvider, locker Locker, lockName string, mode Mode) (bool, error)
	// Unlock releases lockName held by locker, see LockManager.Unlock
	Unlock(c LockManagerProvider, lockName string, locker Locker)
	// UnlockAll releases everything locker holds, see LockManager.UnlockAll
	UnlockAll(c LockManagerProvider, locker Locker)
	// Name returns the name used by StrategyByName
	Name() string
}

var (
	// NullLockStrategy never locks. It is used when the data store does its
	// own locking. Lock always reports a fresh acquisition.
	NullLockStrategy LockStrategy = nullLockStrategy{}
	// ExclusiveLockStrategy passes every call on to the container's LockManager
	ExclusiveLockStrategy LockStrategy = exclusiveLockStrategy{}
)

// StrategyByName returns the strategy with the given name (null or exclusive)
func StrategyByName(name string) (LockStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "null", "none":
		return NullLockStrategy, nil
	case "exclusive", "":
		return ExclusiveLockStrategy, nil
	default:
		return nil, fmt.Errorf("unknown lock strategy %q, must be one of null, exclusive", name)
	}
}

// --------------------------------------------------------------------------
// Null Strategy
// --------------------------------------------------------------------------

type nullLockStrategy struct{}

func (nullLockStrategy) Lock(context.Context, LockManagerProvider, Locker, string, Mode) (bool, error) {
	return true, nil
}

func (nullLockStrategy) Unlock(LockManagerProvider, string, Locker) {}

func (nullLockStrategy) UnlockAll(LockManagerProvider, Locker) {}

func (nullLockStrategy) Name() string { return "null" }

// --------------------------------------------------------------------------
// Exclusive Strategy
// --------------------------------------------------------------------------

type exclusiveLockStrategy struct{}

func (exclusiveLockStrategy) Lock(ctx context.Context, c LockManagerProvider, locker Locker, lockName string, mode Mode) (bool, error) {
	lm := c.LockManager()
	if lm == nil {
		return false, NewError(RetCInternalError, "container has no lock manager")
	}
	return lm.Lock(ctx, lockName, locker, mode)
}

func (exclusiveLockStrategy) Unlock(c LockManagerProvider, lockName string, locker Locker) {
	if lm := c.LockManager(); lm != nil {
		lm.Unlock(lockName, locker)
	}
}

func (exclusiveLockStrategy) UnlockAll(c LockManagerProvider, locker Locker) {
	if lm := c.LockManager(); lm != nil {
		lm.UnlockAll(locker)
	}
}

func (exclusiveLockStrategy) Name() string { return "exclusive" }
