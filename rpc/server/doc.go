// Package server implements the RPC server of the lock service. It hosts one
// container per shard and maps incoming requests to container calls.
//
// Key Components:
//
//   - IRPCServerAdapter: Interface defining the contract for all server adapters,
//     with the Handle method that processes incoming requests against a
//     container.IContainer.
//
//   - NewContainerServerAdapter: Factory function creating the adapter that
//     translates transaction and lock requests to container calls. Errors are
//     sent as message plus lockmgr.RetCode, so clients can rebuild them.
//
//   - NewRPCServer: Factory function creating a configured server with the specified
//     transport and serializer mechanisms.
//
// Usage Example:
//
//	// Create server configuration
//	config := common.ServerConfig{
//	  Shards: []common.ServerShard{
//	    {ShardID: 100, Type: common.ShardTypeExclusive},
//	    {ShardID: 200, Type: common.ShardTypeNull},
//	  },
//	  Transport: common.ServerTransportConfig{Endpoint: "0.0.0.0:8080"},
//	  MetricsEndpoint: "0.0.0.0:9090",
//	  TimeoutSecond: 5,
//	  LogLevel: "info",
//	}
//
//	// Create and start the server
//	s := server.NewRPCServer(
//	  config,
//	  tcp.NewTCPDefaultServerTransport(),
//	  serializer.NewBinarySerializer(),
//	)
//
//	// Start the server
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// The server supports two types of shards, which can be mixed within a single server:
//
//   - ShardTypeExclusive: The container uses a lock manager. Conflicting lock
//     requests block until the lock is granted, deadlocks are reported.
//
//   - ShardTypeNull: The container grants every lock immediately, for data
//     stores that do their own locking.
//
// Lock requests block inside the adapter until they are granted, so the
// transports serve other requests of the same connection in parallel.
//
// Thread Safety:
//
//	The server implementation is thread-safe and can handle concurrent requests
//	across multiple connections. Serve should be called only once, Close may
//	be called from any goroutine.
package server
