package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/txlock/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format.
//
// Layout: 1 byte MsgType, 2 bytes presence flags (big endian), then every
// present field in flag order. Strings and byte slices are prefixed with a
// 4 byte length.
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasKey     uint16 = 1 << 0
	hasTxID    uint16 = 1 << 1
	hasMode    uint16 = 1 << 2
	hasTimeout uint16 = 1 << 3
	hasCount   uint16 = 1 << 4
	hasValue   uint16 = 1 << 5
	hasOk      uint16 = 1 << 6
	hasCode    uint16 = 1 << 7
	hasErr     uint16 = 1 << 8
	hasMeta    uint16 = 1 << 9
)

const headerSize = 3

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	// Calculate total size needed
	result := make([]byte, b.sizeBytes(msg))

	// Write message type
	result[0] = byte(msg.MsgType)

	var flags uint16 = 0
	pos := headerSize

	putBytes := func(data []byte) {
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(data)))
		pos += 4
		copy(result[pos:pos+len(data)], data)
		pos += len(data)
	}

	putUint64 := func(v uint64) {
		binary.BigEndian.PutUint64(result[pos:pos+8], v)
		pos += 8
	}

	// Handle Key
	if msg.Key != "" {
		flags |= hasKey
		putBytes([]byte(msg.Key))
	}

	// Handle TxID
	if msg.TxID > 0 {
		flags |= hasTxID
		putUint64(msg.TxID)
	}

	// Handle Mode
	if msg.Mode > 0 {
		flags |= hasMode
		result[pos] = msg.Mode
		pos += 1
	}

	// Handle Timeout
	if msg.Timeout > 0 {
		flags |= hasTimeout
		putUint64(msg.Timeout)
	}

	// Handle Count
	if msg.Count > 0 {
		flags |= hasCount
		putUint64(msg.Count)
	}

	// Handle Value
	if msg.Value != nil {
		flags |= hasValue
		putBytes(msg.Value)
	}

	// Ok carries no payload, the flag is the value
	if msg.Ok {
		flags |= hasOk
	}

	// Handle Code
	if msg.Code > 0 {
		flags |= hasCode
		result[pos] = msg.Code
		pos += 1
	}

	// Handle Err
	if msg.Err != "" {
		flags |= hasErr
		putBytes([]byte(msg.Err))
	}

	// Handle Meta
	if msg.Meta != nil {
		flags |= hasMeta
		putBytes(msg.Meta)
	}

	// Set flags after knowing which fields are present
	binary.BigEndian.PutUint16(result[1:headerSize], flags)

	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (MsgType + flags)
	if len(data) < headerSize {
		return fmt.Errorf("data too short for message header")
	}

	// Read message type
	msg.MsgType = common.MessageType(data[0])

	// Read flags
	flags := binary.BigEndian.Uint16(data[1:headerSize])

	pos := headerSize

	// readBytes returns a view into data, callers copy if they keep it
	readBytes := func(field string) ([]byte, error) {
		if pos+4 > len(data) {
			return nil, fmt.Errorf("data too short for %s length", field)
		}
		n := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		pos += 4
		if pos+n > len(data) {
			return nil, fmt.Errorf("data too short for %s data", field)
		}
		v := data[pos : pos+n]
		pos += n
		return v, nil
	}

	readUint64 := func(field string) (uint64, error) {
		if pos+8 > len(data) {
			return 0, fmt.Errorf("data too short for %s", field)
		}
		v := binary.BigEndian.Uint64(data[pos : pos+8])
		pos += 8
		return v, nil
	}

	readByte := func(field string) (byte, error) {
		if pos+1 > len(data) {
			return 0, fmt.Errorf("data too short for %s", field)
		}
		v := data[pos]
		pos += 1
		return v, nil
	}

	// copyInto reuses dst if it is large enough, an empty value stays non nil
	copyInto := func(dst, src []byte) []byte {
		if dst == nil || cap(dst) < len(src) {
			dst = make([]byte, len(src))
		} else {
			dst = dst[:len(src)]
		}
		copy(dst, src)
		return dst
	}

	var err error

	// Read Key if present
	msg.Key = ""
	if flags&hasKey != 0 {
		key, err := readBytes("key")
		if err != nil {
			return err
		}
		msg.Key = string(key)
	}

	// Read TxID if present
	msg.TxID = 0
	if flags&hasTxID != 0 {
		if msg.TxID, err = readUint64("TxID"); err != nil {
			return err
		}
	}

	// Read Mode if present
	msg.Mode = 0
	if flags&hasMode != 0 {
		if msg.Mode, err = readByte("Mode"); err != nil {
			return err
		}
	}

	// Read Timeout if present
	msg.Timeout = 0
	if flags&hasTimeout != 0 {
		if msg.Timeout, err = readUint64("Timeout"); err != nil {
			return err
		}
	}

	// Read Count if present
	msg.Count = 0
	if flags&hasCount != 0 {
		if msg.Count, err = readUint64("Count"); err != nil {
			return err
		}
	}

	// Read Value if present
	if flags&hasValue != 0 {
		value, err := readBytes("value")
		if err != nil {
			return err
		}
		msg.Value = copyInto(msg.Value, value)
	} else {
		msg.Value = nil
	}

	msg.Ok = flags&hasOk != 0

	// Read Code if present
	msg.Code = 0
	if flags&hasCode != 0 {
		if msg.Code, err = readByte("Code"); err != nil {
			return err
		}
	}

	// Read Err if present
	msg.Err = ""
	if flags&hasErr != 0 {
		errBytes, err := readBytes("error")
		if err != nil {
			return err
		}
		msg.Err = string(errBytes)
	}

	// Read Meta if present
	if flags&hasMeta != 0 {
		meta, err := readBytes("meta")
		if err != nil {
			return err
		}
		msg.Meta = copyInto(msg.Meta, meta)
	} else {
		msg.Meta = nil
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	size := headerSize

	// Add sizes for fields that require length encoding
	if msg.Key != "" {
		size += 4 + len(msg.Key) // 4 bytes for length + key string
	}
	if msg.TxID > 0 {
		size += 8 // uint64
	}
	if msg.Mode > 0 {
		size += 1
	}
	if msg.Timeout > 0 {
		size += 8 // uint64
	}
	if msg.Count > 0 {
		size += 8 // uint64
	}
	if msg.Value != nil {
		size += 4 + len(msg.Value) // 4 bytes for length + value bytes
	}
	if msg.Code > 0 {
		size += 1
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err) // 4 bytes for length + error string
	}
	if msg.Meta != nil {
		size += 4 + len(msg.Meta) // 4 bytes for length + meta bytes
	}

	return size
}
