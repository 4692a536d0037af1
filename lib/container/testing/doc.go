// Package testing provides a standardised test suite for implementations of
// the container.IContainer interface.
//
// The suite only uses the interface, so the same tests run against the local
// container and against the RPC client talking to a real server. The
// container under test must use the exclusive lock strategy, the suite checks
// blocking, deadlock detection and transaction teardown.
//
// Example usage:
//
//	factory := func() container.IContainer {
//		return container.NewContainer("test", lockmgr.ExclusiveLockStrategy)
//	}
//
//	testing.RunContainerTests(t, "LocalContainer", factory)
package testing
