package client

import (
	"context"
	"fmt"
	"time"

	"github.com/ValentinKolb/txlock/lib/lockmgr"
	"github.com/ValentinKolb/txlock/rpc/common"
	"github.com/ValentinKolb/txlock/rpc/serializer"
	"github.com/ValentinKolb/txlock/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("client")
)

// rpcClientAdapter is a struct that stores all data needed for an implementation if an RPC client
// Used by the RPCContainer with composition pattern
type rpcClientAdapter struct {
	shardId    uint64
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

// requestContext returns the context of a request that must not block, it
// carries the configured client timeout
func (a *rpcClientAdapter) requestContext() (context.Context, context.CancelFunc) {
	if a.config.TimeoutSecond <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), time.Duration(a.config.TimeoutSecond)*time.Second)
}

// invoke sends a non blocking request with the configured timeout
func (a *rpcClientAdapter) invoke(req *common.Message) (*common.Message, error) {
	ctx, cancel := a.requestContext()
	defer cancel()
	return invokeRPCRequest(ctx, a.shardId, req, a.transport, a.serializer)
}

// invokeRPCRequest is a helper function used for all RPC Clients to send requests
// It takes a shard ID, a request message, a transport layer and a serializer as parameters
// It returns a response message and an error if any occurs
// This method also checks if the response is an error response and if the type of the response is the expected type.
// Errors reported by the server are rebuilt as *lockmgr.Error with their original code.
func invokeRPCRequest(ctx context.Context, shardId uint64, req *common.Message, transport transport.IRPCClientTransport, serializer serializer.IRPCSerializer) (*common.Message, error) {
	// Serialize the request
	reqBytes, err := serializer.Serialize(*req)
	if err != nil {
		return nil, err
	}

	// Send the handler
	respBytes, err := transport.Send(ctx, shardId, reqBytes)
	if err != nil {
		return nil, fmt.Errorf("RPC ContainerAdapter - %s request failed: %w", req.MsgType, err)
	}

	// Deserialize the response
	resp := &common.Message{}
	err = serializer.Deserialize(respBytes, resp)
	if err != nil {
		return nil, fmt.Errorf("RPC ContainerAdapter - Error: %w", err)
	}

	// Check if the response is an error response
	if resp.MsgType == common.MsgTError || resp.Err != "" || resp.Code != 0 {
		return resp, lockmgr.ErrorFromWire(lockmgr.RetCode(resp.Code), resp.Err)
	}

	// Check if the type of the response is the expected type
	if resp.MsgType != req.MsgType {
		return nil, fmt.Errorf("RPC ContainerAdapter - Unexpected message type: %s, expected %s", resp.MsgType, req.MsgType)
	}

	// Return the response
	return resp, nil
}
