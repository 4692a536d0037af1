package client

import (
	"context"

	"github.com/ValentinKolb/txlock/lib/lockmgr"
	"github.com/ValentinKolb/txlock/rpc/common"
	"github.com/ValentinKolb/txlock/rpc/serializer"
	"github.com/ValentinKolb/txlock/rpc/transport"
)

// NewRPCContainer creates a client for the container of a remote shard
// The function takes a shard ID, a config, a transport and a serializer as parameters
// It connects the transport and returns the client, which implements
// container.IContainer
func NewRPCContainer(
	shardId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (*RPCContainer, error) {

	// Connect the transport
	err := transport.Connect(config)
	if err != nil {
		return nil, err
	}

	return &RPCContainer{
		rpcClientAdapter{
			shardId:    shardId,
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
	}, nil
}

// RPCContainer forwards all container operations to a server
type RPCContainer struct {
	rpcClientAdapter
}

// Close closes the transport. Transactions on the server are not ended.
func (c *RPCContainer) Close() error {
	return c.transport.Close()
}

// --------------------------------------------------------------------------
// Interface Methods (docu see container/interface.go)
// --------------------------------------------------------------------------

func (c *RPCContainer) Begin(timeoutSec uint64) (uint64, error) {
	resp, err := c.invoke(common.NewBeginRequest(timeoutSec))
	if err != nil {
		return 0, err
	}
	return resp.TxID, nil
}

// Lock blocks until the server grants the lock, the client timeout does not apply
func (c *RPCContainer) Lock(txID uint64, lockName string, mode lockmgr.Mode) (bool, error) {
	return c.LockContext(context.Background(), txID, lockName, mode)
}

// LockContext is Lock with a context bounding the wait on the client side.
// When ctx is done the request is abandoned, but the server keeps it queued
// until the transaction ends.
func (c *RPCContainer) LockContext(ctx context.Context, txID uint64, lockName string, mode lockmgr.Mode) (bool, error) {
	resp, err := invokeRPCRequest(ctx, c.shardId, common.NewLockRequest(txID, lockName, uint8(mode)), c.transport, c.serializer)
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

func (c *RPCContainer) Unlock(txID uint64, lockName string) error {
	_, err := c.invoke(common.NewUnlockRequest(txID, lockName))
	return err
}

func (c *RPCContainer) End(txID uint64) error {
	_, err := c.invoke(common.NewEndRequest(txID))
	return err
}

func (c *RPCContainer) Size() (int, error) {
	resp, err := c.invoke(common.NewSizeRequest())
	if err != nil {
		return 0, err
	}
	return int(resp.Count), nil
}

func (c *RPCContainer) Dump() (string, error) {
	resp, err := c.invoke(common.NewDumpRequest())
	if err != nil {
		return "", err
	}
	return string(resp.Value), nil
}
