// Package common provides the data structures shared by the RPC client and
// server of the lock service.
//
// Key Components:
//
//   - Message: Core data structure for all RPC communication. Which fields are
//     set depends on the MessageType. Factory methods create the requests and
//     responses of every transaction and lock table operation.
//
//   - MessageType: Enumeration of all supported operations, split into
//     transaction operations, lock table operations and control messages.
//
//   - ServerConfig: Configuration of a server node, its shards, the transport
//     listener and the metrics endpoint.
//
//   - ClientConfig: Configuration for client components, controlling connection
//     parameters, timeouts, and retry behavior.
//
//   - Logger: Custom logging implementation that plugs into Dragonboat's
//     logger package, used by every package of this module.
package common
