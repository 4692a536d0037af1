package common

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Shard types
// --------------------------------------------------------------------------

type ServerShardType string

const (
	// ShardTypeExclusive is a container whose lock manager blocks conflicting requests
	ShardTypeExclusive ServerShardType = "lockmgr(exclusive)"
	// ShardTypeNull is a container that grants every request without recording it
	ShardTypeNull ServerShardType = "lockmgr(null)"
)

// ParseShardType converts the cli representation of a shard type
func ParseShardType(s string) (ServerShardType, error) {
	switch ServerShardType(strings.ToLower(strings.TrimSpace(s))) {
	case ShardTypeExclusive, "exclusive":
		return ShardTypeExclusive, nil
	case ShardTypeNull, "null", "none":
		return ShardTypeNull, nil
	default:
		return "", fmt.Errorf("invalid shard type %q, must be one of %s, %s", s, ShardTypeExclusive, ShardTypeNull)
	}
}

type ServerShard struct {
	// ShardID is the ID of the shard
	ShardID uint64
	// Type selects the lock strategy of the shard's container
	Type ServerShardType
}

// --------------------------------------------------------------------------
// Socket options (shared by server and client)
// --------------------------------------------------------------------------

// SocketConf holds the buffer sizes of socket based transports
type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
}

// TCPConf holds the TCP specific socket options
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ServerTransportConfig holds the listener settings of the server transport
type ServerTransportConfig struct {
	Endpoint string
	// WorkersPerConn limits the requests handled concurrently per connection.
	// Lock requests block, so this must be large enough for the unlocks that
	// release them.
	WorkersPerConn int
	SocketConf
	TCPConf
}

// ServerConfig holds all configuration parameters of the lock server.
type ServerConfig struct {
	Shards []ServerShard

	// write timeout of responses, blocking requests are never cut off
	TimeoutSecond int64

	Transport ServerTransportConfig

	// address of the prometheus metrics endpoint, empty to disable
	MetricsEndpoint string

	// Logging configuration
	LogLevel string
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// RPC settings
	addSection("RPC Server")
	addField("Endpoint", c.Transport.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Workers Per Conn", strconv.Itoa(c.Transport.WorkersPerConn))
	if c.Transport.WriteBufferSize > 0 || c.Transport.ReadBufferSize > 0 {
		addField("Write Buffer", fmt.Sprintf("%d bytes", c.Transport.WriteBufferSize))
		addField("Read Buffer", fmt.Sprintf("%d bytes", c.Transport.ReadBufferSize))
	}

	// Metrics
	addSection("Metrics")
	if c.MetricsEndpoint == "" {
		addField("Endpoint", "disabled")
	} else {
		addField("Endpoint", c.MetricsEndpoint)
	}

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	// Shards
	addSection("Shards")
	for _, shard := range c.Shards {
		addField(strconv.FormatUint(shard.ShardID, 10), string(shard.Type))
	}

	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

// ClientTransportConfig holds the connection settings of the client transport
type ClientTransportConfig struct {
	Endpoints              []string
	RetryCount             int
	ConnectionsPerEndpoint int
	SocketConf
	TCPConf
}

type ClientConfig struct {
	// TimeoutSecond bounds non blocking requests, 0 disables the timeout.
	// Lock requests ignore it since a lock wait has no time limit.
	TimeoutSecond int
	Transport     ClientTransportConfig
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.Transport.RetryCount))
	addField("Connections Per Endpoint", strconv.Itoa(int(math.Max(1, float64(c.Transport.ConnectionsPerEndpoint)))))

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Transport.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
