package server_test

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/txlock/lib/container"
	containertesting "github.com/ValentinKolb/txlock/lib/container/testing"
	"github.com/ValentinKolb/txlock/lib/lockmgr"
	"github.com/ValentinKolb/txlock/rpc/client"
	"github.com/ValentinKolb/txlock/rpc/common"
	"github.com/ValentinKolb/txlock/rpc/serializer"
	"github.com/ValentinKolb/txlock/rpc/server"
	"github.com/ValentinKolb/txlock/rpc/transport"
	httpTransport "github.com/ValentinKolb/txlock/rpc/transport/http"
	"github.com/ValentinKolb/txlock/rpc/transport/tcp"
	"github.com/ValentinKolb/txlock/rpc/transport/unix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	exclusiveShard = 1
	nullShard      = 2
)

// transportSetup describes how to start a server and connect a client for one transport
type transportSetup struct {
	name       string
	endpoint   func(t *testing.T) (server string, client string)
	server     func() transport.IRPCServerTransport
	client     func() transport.IRPCClientTransport
	serializer func() serializer.IRPCSerializer
}

var setups = []transportSetup{
	{
		name: "Unix",
		endpoint: func(t *testing.T) (string, string) {
			p := socketPath(t)
			return p, p
		},
		server:     unix.NewUnixDefaultServerTransport,
		client:     unix.NewUnixClientTransport,
		serializer: serializer.NewBinarySerializer,
	},
	{
		name: "TCP",
		endpoint: func(t *testing.T) (string, string) {
			addr := freeAddr(t)
			return addr, addr
		},
		server:     tcp.NewTCPDefaultServerTransport,
		client:     tcp.NewTCPClientTransport,
		serializer: serializer.NewBinarySerializer,
	},
	{
		name: "HTTP",
		endpoint: func(t *testing.T) (string, string) {
			addr := freeAddr(t)
			return addr, "http://" + addr
		},
		server:     httpTransport.NewHttpServerTransport,
		client:     httpTransport.NewHttpClientTransport,
		serializer: serializer.NewJSONSerializer,
	},
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// socketPath returns a short socket path, t.TempDir may exceed the length limit
func socketPath(t *testing.T) string {
	dir, err := os.MkdirTemp("", "txlock")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return filepath.Join(dir, "rpc.sock")
}

func freeAddr(t *testing.T) string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

// startServer starts a server with an exclusive and a null shard
func startServer(t *testing.T, setup transportSetup, metricsEndpoint string) (*server.RPCServer, string) {
	serverEndpoint, clientEndpoint := setup.endpoint(t)

	config := common.ServerConfig{
		Shards: []common.ServerShard{
			{ShardID: exclusiveShard, Type: common.ShardTypeExclusive},
			{ShardID: nullShard, Type: common.ShardTypeNull},
		},
		TimeoutSecond:   5,
		Transport:       common.ServerTransportConfig{Endpoint: serverEndpoint},
		MetricsEndpoint: metricsEndpoint,
		LogLevel:        "info",
	}

	srv := server.NewRPCServer(config, setup.server(), setup.serializer())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve()
	}()

	t.Cleanup(func() {
		require.NoError(t, srv.Close())
		select {
		case err := <-serveErr:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("Serve did not return after Close")
		}
	})

	return srv, clientEndpoint
}

// connect creates a client once the server accepts requests
func connect(t *testing.T, setup transportSetup, endpoint string, shardID uint64) *client.RPCContainer {
	config := common.ClientConfig{
		TimeoutSecond: 5,
		Transport: common.ClientTransportConfig{
			Endpoints:              []string{endpoint},
			RetryCount:             2,
			ConnectionsPerEndpoint: 2,
		},
	}

	var c *client.RPCContainer
	require.Eventually(t, func() bool {
		var err error
		if c == nil {
			if c, err = client.NewRPCContainer(shardID, config, setup.client(), setup.serializer()); err != nil {
				c = nil
				return false
			}
		}
		_, err = c.Size()
		return err == nil || errors.Is(err, lockmgr.ErrInvalidOperation)
	}, 5*time.Second, 20*time.Millisecond, "server never became ready")

	t.Cleanup(func() { _ = c.Close() })
	return c
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func TestRPCContainer(t *testing.T) {
	for _, setup := range setups {
		containertesting.RunContainerTests(t, setup.name, func() container.IContainer {
			_, endpoint := startServer(t, setup, "")
			return connect(t, setup, endpoint, exclusiveShard)
		})
	}
}

func TestNullShard(t *testing.T) {
	for _, setup := range setups {
		t.Run(setup.name, func(t *testing.T) {
			_, endpoint := startServer(t, setup, "")
			c := connect(t, setup, endpoint, nullShard)

			tx1, err := c.Begin(0)
			require.NoError(t, err)
			tx2, err := c.Begin(0)
			require.NoError(t, err)

			for _, txID := range []uint64{tx1, tx2} {
				acquired, err := c.Lock(txID, "x", lockmgr.Exclusive)
				require.NoError(t, err)
				assert.True(t, acquired)
			}

			dump, err := c.Dump()
			require.NoError(t, err)
			assert.Contains(t, dump, "strategy null")

			require.NoError(t, c.End(tx1))
			require.NoError(t, c.End(tx2))
		})
	}
}

func TestUnknownShard(t *testing.T) {
	setup := setups[0]
	_, endpoint := startServer(t, setup, "")
	c := connect(t, setup, endpoint, 999)

	_, err := c.Begin(0)
	require.Error(t, err)
	assert.ErrorIs(t, err, lockmgr.ErrInvalidOperation)
}

func TestInvalidMode(t *testing.T) {
	setup := setups[0]
	_, endpoint := startServer(t, setup, "")
	c := connect(t, setup, endpoint, exclusiveShard)

	txID, err := c.Begin(0)
	require.NoError(t, err)

	_, err = c.Lock(txID, "x", lockmgr.Mode(7))
	assert.ErrorIs(t, err, lockmgr.ErrInvalidOperation)
}

func TestShardsAreIsolated(t *testing.T) {
	setup := setups[0]
	srv, endpoint := startServer(t, setup, "")
	c := connect(t, setup, endpoint, exclusiveShard)

	txID, err := c.Begin(0)
	require.NoError(t, err)
	_, err = c.Lock(txID, "x", lockmgr.Exclusive)
	require.NoError(t, err)

	assert.Equal(t, 1, srv.Container(exclusiveShard).LockManager().Size())
	assert.Equal(t, 1, srv.Container(exclusiveShard).ActiveTxs())
	assert.Equal(t, 0, srv.Container(nullShard).ActiveTxs())
	assert.Nil(t, srv.Container(999))
}

func TestCloseFailsPendingLocks(t *testing.T) {
	for _, setup := range setups {
		t.Run(setup.name, func(t *testing.T) {
			srv, endpoint := startServer(t, setup, "")
			c := connect(t, setup, endpoint, exclusiveShard)

			tx1, err := c.Begin(0)
			require.NoError(t, err)
			tx2, err := c.Begin(0)
			require.NoError(t, err)
			_, err = c.Lock(tx1, "x", lockmgr.Exclusive)
			require.NoError(t, err)

			errCh := make(chan error, 1)
			go func() {
				_, err := c.Lock(tx2, "x", lockmgr.Exclusive)
				errCh <- err
			}()
			require.Eventually(t, func() bool {
				return containsWaiting(srv.Container(exclusiveShard))
			}, 2*time.Second, 5*time.Millisecond)

			require.NoError(t, srv.Close())

			select {
			case err := <-errCh:
				assert.Error(t, err)
			case <-time.After(5 * time.Second):
				t.Fatal("pending lock did not fail after Close")
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	setup := setups[0]
	metricsAddr := freeAddr(t)
	_, endpoint := startServer(t, setup, metricsAddr)
	c := connect(t, setup, endpoint, exclusiveShard)

	txID, err := c.Begin(0)
	require.NoError(t, err)
	_, err = c.Lock(txID, "x", lockmgr.Exclusive)
	require.NoError(t, err)
	require.NoError(t, c.End(txID))

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get(fmt.Sprintf("http://%s/metrics", metricsAddr))
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		body = string(b)
		return err == nil && resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	assert.Contains(t, body, `txlock_rpc_requests_total{type="lock",failed="false"}`)
	assert.Contains(t, body, `txlock_locks_acquired_total{manager="shard-1"}`)
	assert.Contains(t, body, `txlock_tx_begun_total{container="shard-1"}`)
}

func containsWaiting(c *container.Container) bool {
	dump, err := c.Dump()
	return err == nil && strings.Contains(dump, "1 waiting)")
}
