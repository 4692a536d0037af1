package lockmgr

import (
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// Lock Modes
// --------------------------------------------------------------------------

// Mode is the mode a lock is requested or held in.
type Mode uint8

const (
	Shared    Mode = 0 // Any number of lockers may hold the lock at the same time
	Exclusive Mode = 1 // Exactly one locker holds the lock
)

// String returns the string representation of a Mode.
func (m Mode) String() string {
	switch m {
	case Shared:
		return "shared"
	case Exclusive:
		return "exclusive"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(m))
	}
}

// ParseMode converts a string to a Mode
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "shared", "s", "0":
		return Shared, nil
	case "exclusive", "x", "1":
		return Exclusive, nil
	default:
		return Shared, fmt.Errorf("invalid lock mode: %s. must be one of shared, exclusive", s)
	}
}

// --------------------------------------------------------------------------
// Interface Definitions
// --------------------------------------------------------------------------

// Locker is anything that takes part in locking, usually a transaction.
//
// The lock manager identifies lockers by interface equality, so a Locker must
// be comparable and stable for its whole lifetime. Pointers are the natural
// choice. The lock manager never creates or destroys lockers.
type Locker interface {
	// LockMode returns the mode the locker believes it holds the named lock in.
	// It is called when a placeholder entry is turned into a full Lock, which
	// is the only moment the mode of a single uncontested holder matters.
	LockMode(lockName string) Mode
}

// LockProxy is an entry of the lock table. It is either a placeholder for a
// single uncontested holder or a full *Lock.
type LockProxy interface {
	// IsLock returns true if the entry is a full *Lock
	IsLock() bool
}

// placeholder stores a single holder directly in the lock table, no Lock is
// allocated until a second locker shows up.
type placeholder struct {
	locker Locker
}

func (p placeholder) IsLock() bool {
	return false
}

// LockManagerProvider is implemented by the owner of a LockManager (the container).
type LockManagerProvider interface {
	// LockManager returns the lock manager, nil if the owner does not lock at all
	LockManager() *LockManager
}
