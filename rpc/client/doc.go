// Package client implements the RPC client of the lock service. RPCContainer
// implements container.IContainer and forwards every operation to the
// container of a shard on a remote server.
//
// Key Components:
//
//   - NewRPCContainer: Factory function that connects the transport and creates
//     the client for one shard.
//
//   - invokeRPCRequest: Sends a request and converts error responses back to
//     *lockmgr.Error values, so errors.Is(err, lockmgr.ErrDeadlock) works the
//     same for local and remote containers.
//
// Usage Example:
//
//	config := common.ClientConfig{
//	  TimeoutSecond: 5,
//	  Transport: common.ClientTransportConfig{
//	    Endpoints:  []string{"localhost:5000"},
//	    RetryCount: 3,
//	  },
//	}
//
//	c, _ := client.NewRPCContainer(1, config, tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
//	defer c.Close()
//
//	txID, _ := c.Begin(30)
//	if _, err := c.Lock(txID, "account/1", lockmgr.Exclusive); errors.Is(err, lockmgr.ErrDeadlock) {
//	  // roll back
//	}
//	_ = c.End(txID)
//
// Timeouts:
//
//	Lock waits until the lock is granted and ignores TimeoutSecond, use
//	LockContext to bound the wait. All other operations use TimeoutSecond.
//
// Thread Safety:
//
//	All client implementations are thread-safe and can be used concurrently from
//	multiple goroutines without additional synchronization.
package client
