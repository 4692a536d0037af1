// Package transport defines the interfaces for the RPC communication of the
// lock service. It provides a common contract that all transport
// implementations must fulfill, enabling protocol-agnostic communication.
//
// Lock requests block on the server until the lock is granted, so transports
// must not put a read timeout on requests and must keep serving other
// requests of the same connection while one of them waits.
//
// Key Components:
//
//   - IRPCClientTransport: Interface for client-side transport implementations that
//     handles connection management and request sending.
//
//   - IRPCServerTransport: Interface for server-side transport implementations that
//     receives requests and routes them to appropriate handlers.
//
//   - ServerHandleFunc: Function type for request handling callbacks.
package transport
