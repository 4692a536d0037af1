package serializer

import "github.com/ValentinKolb/txlock/rpc/common"

// IRPCSerializer converts messages to and from the bytes sent by the transports.
// Implementations must be safe for concurrent use, one serializer is shared by all
// connections of a server or client.
type IRPCSerializer interface {
	// Serialize encodes a Message. The returned slice is owned by the caller.
	Serialize(msg common.Message) ([]byte, error)
	// Deserialize decodes b into msg, overwriting every field of msg.
	Deserialize(b []byte, msg *common.Message) error
}
