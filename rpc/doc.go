// Package rpc provides the remote access to lock containers. It lets clients
// begin transactions and acquire locks on a server process that owns the
// lock tables.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures and utilities used across the RPC system,
//     including the Message protocol, configuration structures, and logging.
//
//   - transport: Network communication abstractions with pluggable implementations
//     (TCP, Unix sockets, HTTP).
//
//   - serializer: Message serialization with multiple format options (Binary, JSON, GOB)
//     for converting between Message objects and byte arrays.
//
//   - client: RPC client implementing the container interface, so a remote
//     container is used exactly like a local one.
//
//   - server: RPC server that hosts one container per shard and maps incoming
//     requests to container calls.
package rpc
