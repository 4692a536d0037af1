package server

import (
	"fmt"

	"github.com/ValentinKolb/txlock/lib/container"
	"github.com/ValentinKolb/txlock/lib/lockmgr"
	"github.com/ValentinKolb/txlock/rpc/common"
)

func NewContainerServerAdapter() IRPCServerAdapter {
	return &containerServerAdapter{}
}

type containerServerAdapter struct{}

// code returns the wire representation of the error kind of err
func code(err error) uint8 {
	return uint8(lockmgr.CodeOf(err))
}

func (adapter *containerServerAdapter) Handle(req *common.Message, c container.IContainer) (resp *common.Message) {
	// Check for nil container
	if c == nil {
		return common.NewErrorResponse("handler: container is nil", uint8(lockmgr.RetCInternalError))
	}

	// Handle different message types
	switch req.MsgType {
	case common.MsgTTxBegin:
		txID, err := c.Begin(req.Timeout)
		return common.NewBeginResponse(txID, err, code(err))
	case common.MsgTTxEnd:
		err := c.End(req.TxID)
		return common.NewEndResponse(err, code(err))
	case common.MsgTLCKLock:
		if req.Mode > uint8(lockmgr.Exclusive) {
			err := lockmgr.NewError(lockmgr.RetCInvalidOperation, fmt.Sprintf("invalid lock mode %d", req.Mode))
			return common.NewLockResponse(false, err, code(err))
		}
		ok, err := c.Lock(req.TxID, req.Key, lockmgr.Mode(req.Mode))
		return common.NewLockResponse(ok, err, code(err))
	case common.MsgTLCKUnlock:
		err := c.Unlock(req.TxID, req.Key)
		return common.NewUnlockResponse(err, code(err))
	case common.MsgTLCKSize:
		size, err := c.Size()
		return common.NewSizeResponse(uint64(size), err, code(err))
	case common.MsgTLCKDump:
		dump, err := c.Dump()
		return common.NewDumpResponse([]byte(dump), err, code(err))
	default:
		return common.NewErrorResponse(
			fmt.Sprintf("RPC ContainerAdapter - Unsupported message type: %s", req.MsgType),
			uint8(lockmgr.RetCInvalidOperation),
		)
	}
}
