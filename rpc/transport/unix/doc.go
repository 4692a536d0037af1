// Package unix runs the base framed transport over Unix domain sockets.
//
// It is the transport for lock clients on the same machine as the server: no
// TCP handling and file system permissions decide who may connect. Framing,
// request ids, connection pooling and the per-connection worker pool all come
// from the base package.
//
// Key Components:
//
//   - clientConnector: dials the socket path given as endpoint and applies the
//     socket buffer sizes from the client configuration.
//
//   - serverConnector: removes a stale socket file, listens on the configured
//     endpoint and applies the same socket settings to accepted connections.
//
// The default request buffer is 64 KB. Lock messages are small, the buffer only
// matters for large dumps.
package unix
