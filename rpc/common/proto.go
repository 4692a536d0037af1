package common

import (
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// General fields
	Key     string `json:"key,omitempty"`     // Used for: Lock, Unlock (the lock name)
	TxID    uint64 `json:"txId,omitempty"`    // Used for: Begin (response), End, Lock, Unlock
	Mode    uint8  `json:"mode,omitempty"`    // Used for: Lock (0 = shared, 1 = exclusive)
	Timeout uint64 `json:"timeout,omitempty"` // Used for: Begin (transaction timeout in seconds)
	Count   uint64 `json:"count,omitempty"`   // Used for: Size (response)
	Value   []byte `json:"value,omitempty"`   // Used for: Dump (response)

	// Response only fields
	Ok   bool   `json:"ok,omitempty"`   // Used for: Lock responses (lock was newly acquired)
	Code uint8  `json:"code,omitempty"` // The lockmgr.RetCode of the error, 0 if no error
	Err  string `json:"err,omitempty"`  // Empty if no error, otherwise contains the error message

	// Meta information
	Meta []byte `json:"meta,omitempty"` // Unused, can be used for additional Adapters
}

// setErr fills in the error fields of a response
func (m *Message) setErr(err error, code uint8) *Message {
	if err != nil {
		m.Err = err.Error()
		m.Code = code
	}
	return m
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// The response factories take the error code as argument, so this package does
// not depend on lockmgr. Callers pass uint8(lockmgr.CodeOf(err)).

// NewBeginRequest creates a new Begin request
func NewBeginRequest(timeout uint64) *Message {
	return &Message{
		MsgType: MsgTTxBegin,
		Timeout: timeout,
	}
}

// NewBeginResponse creates a new Begin response
func NewBeginResponse(txID uint64, err error, code uint8) *Message {
	return (&Message{
		MsgType: MsgTTxBegin,
		TxID:    txID,
	}).setErr(err, code)
}

// NewEndRequest creates a new End request
func NewEndRequest(txID uint64) *Message {
	return &Message{
		MsgType: MsgTTxEnd,
		TxID:    txID,
	}
}

// NewEndResponse creates a new End response
func NewEndResponse(err error, code uint8) *Message {
	return (&Message{
		MsgType: MsgTTxEnd,
	}).setErr(err, code)
}

// NewLockRequest creates a new Lock request
func NewLockRequest(txID uint64, key string, mode uint8) *Message {
	return &Message{
		MsgType: MsgTLCKLock,
		TxID:    txID,
		Key:     key,
		Mode:    mode,
	}
}

// NewLockResponse creates a new Lock response
func NewLockResponse(ok bool, err error, code uint8) *Message {
	return (&Message{
		MsgType: MsgTLCKLock,
		Ok:      ok,
	}).setErr(err, code)
}

// NewUnlockRequest creates a new Unlock request
func NewUnlockRequest(txID uint64, key string) *Message {
	return &Message{
		MsgType: MsgTLCKUnlock,
		TxID:    txID,
		Key:     key,
	}
}

// NewUnlockResponse creates a new Unlock response
func NewUnlockResponse(err error, code uint8) *Message {
	return (&Message{
		MsgType: MsgTLCKUnlock,
	}).setErr(err, code)
}

// NewSizeRequest creates a new Size request
func NewSizeRequest() *Message {
	return &Message{
		MsgType: MsgTLCKSize,
	}
}

// NewSizeResponse creates a new Size response
func NewSizeResponse(count uint64, err error, code uint8) *Message {
	return (&Message{
		MsgType: MsgTLCKSize,
		Count:   count,
	}).setErr(err, code)
}

// NewDumpRequest creates a new Dump request
func NewDumpRequest() *Message {
	return &Message{
		MsgType: MsgTLCKDump,
	}
}

// NewDumpResponse creates a new Dump response
func NewDumpResponse(dump []byte, err error, code uint8) *Message {
	return (&Message{
		MsgType: MsgTLCKDump,
		Value:   dump,
	}).setErr(err, code)
}

// NewCustomRequest creates a new Custom request
func NewCustomRequest(meta []byte) *Message {
	return &Message{
		MsgType: MsgTCustom,
		Meta:    meta,
	}
}

// NewCustomResponse creates a new Custom response
func NewCustomResponse(meta []byte, err error, code uint8) *Message {
	return (&Message{
		MsgType: MsgTCustom,
		Meta:    meta,
	}).setErr(err, code)
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err string, code uint8) *Message {
	return &Message{
		MsgType: MsgTError,
		Err:     err,
		Code:    code,
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	switch t {
	case MsgTTxBegin:
		return "begin"
	case MsgTTxEnd:
		return "end"
	case MsgTLCKLock:
		return "lock"
	case MsgTLCKUnlock:
		return "unlock"
	case MsgTLCKSize:
		return "size"
	case MsgTLCKDump:
		return "dump"
	case MsgTCustom:
		return "custom"
	case MsgTError:
		return "error"
	case MsgTSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	// Convert string back to MessageType
	switch s {
	case "begin":
		*t = MsgTTxBegin
	case "end":
		*t = MsgTTxEnd
	case "lock":
		*t = MsgTLCKLock
	case "unlock":
		*t = MsgTLCKUnlock
	case "size":
		*t = MsgTLCKSize
	case "dump":
		*t = MsgTLCKDump
	case "custom":
		*t = MsgTCustom
	case "error":
		*t = MsgTError
	case "success":
		*t = MsgTSuccess
	default:
		return fmt.Errorf("unknown message type: %s", s)
	}

	return nil
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// Transaction operations

	MsgTTxBegin // Begin a transaction
	MsgTTxEnd   // End a transaction and release its locks

	// Lock table operations

	MsgTLCKLock   // Acquire a lock for a transaction
	MsgTLCKUnlock // Release a lock of a transaction
	MsgTLCKSize   // Number of lock table entries
	MsgTLCKDump   // Render the lock table

	// Custom operations

	MsgTCustom // Custom operation type
)
