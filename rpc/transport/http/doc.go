// Package http carries RPC requests of the lock service as HTTP POST bodies.
//
// Requests are sent to /{shardId} with the serialized message as body, the
// response body holds the serialized reply. A lock request that has to wait
// keeps its HTTP request open until the lock is granted, so the server sets no
// read or write timeout on the handler and the client bounds the wait with the
// request context instead.
//
// Key Components:
//
//   - httpClientTransport: Implements IRPCClientTransport. Endpoints are used
//     round-robin. Only requests that never reached a server (dial errors) are
//     retried, since a lock request must not be executed twice.
//
//   - httpServerTransport: Implements IRPCServerTransport on top of
//     net/http.Server. Close stops the listener and drops open connections,
//     waiting clients then see a transport error.
//
// Use this transport when the server sits behind HTTP infrastructure or when a
// plain HTTP client is the only option. For lower latency prefer tcp or unix.
package http
