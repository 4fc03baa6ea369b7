package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/tensornet/gate/lib/tensor"
	"github.com/tensornet/gate/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasUid     byte = 1 << 0
	hasTensors byte = 1 << 1
	hasInfo    byte = 1 << 2
	hasErr     byte = 1 << 3
)

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	// Calculate total size needed
	totalSize := b.sizeBytes(msg)
	result := make([]byte, totalSize)

	// Write message type
	result[0] = byte(msg.MsgType)

	// Initialize flags byte
	var flags byte = 0

	// Set position for writing
	pos := 2 // Start after MsgType and flags

	// Handle Uid
	if msg.Uid != "" {
		flags |= hasUid
		uidBytes := []byte(msg.Uid)

		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(uidBytes)))
		pos += 4
		copy(result[pos:], uidBytes)
		pos += len(uidBytes)
	}

	// Handle Tensors
	if msg.Tensors != nil {
		flags |= hasTensors

		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(msg.Tensors)))
		pos += 4

		for _, wt := range msg.Tensors {
			pos = writeWireTensor(result, pos, wt)
		}
	}

	// Handle Info
	if msg.Info != nil {
		flags |= hasInfo

		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(msg.Info)))
		pos += 4
		copy(result[pos:], msg.Info)
		pos += len(msg.Info)
	}

	// Handle Err
	if msg.Err != "" {
		flags |= hasErr
		errBytes := []byte(msg.Err)

		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(errBytes)))
		pos += 4
		copy(result[pos:], errBytes)
		pos += len(errBytes)
	}

	// Set flags byte after knowing which fields are present
	result[1] = flags

	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (MsgType + flags)
	if len(data) < 2 {
		return fmt.Errorf("data too short for message header")
	}

	// Read message type
	msg.MsgType = common.MessageType(data[0])

	// Read flags
	flags := data[1]

	// Initialize read position
	pos := 2

	// Read Uid if present
	if flags&hasUid != 0 {
		raw, next, err := readBlob(data, pos, "uid")
		if err != nil {
			return err
		}
		msg.Uid = string(raw)
		pos = next
	} else {
		msg.Uid = ""
	}

	// Read Tensors if present
	if flags&hasTensors != 0 {
		if pos+4 > len(data) {
			return fmt.Errorf("data too short for tensor count")
		}
		count := binary.BigEndian.Uint32(data[pos : pos+4])
		pos += 4

		// Basic sanity bound so a corrupt count cannot allocate wildly
		if uint64(count) > uint64(len(data)) {
			return fmt.Errorf("tensor count %d exceeds message size", count)
		}

		msg.Tensors = make([]tensor.WireTensor, count)
		for i := range msg.Tensors {
			next, err := readWireTensor(data, pos, &msg.Tensors[i])
			if err != nil {
				return err
			}
			pos = next
		}
	} else {
		msg.Tensors = nil
	}

	// Read Info if present
	if flags&hasInfo != 0 {
		raw, next, err := readBlob(data, pos, "info")
		if err != nil {
			return err
		}
		msg.Info = append([]byte(nil), raw...)
		pos = next
	} else {
		msg.Info = nil
	}

	// Read Err if present
	if flags&hasErr != 0 {
		raw, next, err := readBlob(data, pos, "error")
		if err != nil {
			return err
		}
		msg.Err = string(raw)
		pos = next
	} else {
		msg.Err = ""
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// writeWireTensor appends one wire tensor at pos and returns the new position.
// Layout: dtype(1) compression(1) chunks(4) ndim(1) dims(8 each) dataLen(4) data
func writeWireTensor(result []byte, pos int, wt tensor.WireTensor) int {
	result[pos] = byte(wt.DType)
	result[pos+1] = byte(wt.Compression)
	binary.BigEndian.PutUint32(result[pos+2:], wt.Chunks)
	pos += 6

	result[pos] = byte(len(wt.Shape))
	pos++
	for _, dim := range wt.Shape {
		binary.BigEndian.PutUint64(result[pos:], dim)
		pos += 8
	}

	binary.BigEndian.PutUint32(result[pos:], uint32(len(wt.Data)))
	pos += 4
	copy(result[pos:], wt.Data)
	pos += len(wt.Data)

	return pos
}

// readWireTensor decodes one wire tensor at pos and returns the new position
func readWireTensor(data []byte, pos int, wt *tensor.WireTensor) (int, error) {
	if pos+7 > len(data) {
		return 0, fmt.Errorf("data too short for tensor header")
	}

	wt.DType = tensor.DType(data[pos])
	wt.Compression = tensor.Compression(data[pos+1])
	wt.Chunks = binary.BigEndian.Uint32(data[pos+2:])
	ndim := int(data[pos+6])
	pos += 7

	if pos+8*ndim > len(data) {
		return 0, fmt.Errorf("data too short for tensor shape")
	}
	if ndim > 0 {
		wt.Shape = make([]uint64, ndim)
		for i := range wt.Shape {
			wt.Shape[i] = binary.BigEndian.Uint64(data[pos:])
			pos += 8
		}
	} else {
		wt.Shape = nil
	}

	raw, next, err := readBlob(data, pos, "tensor data")
	if err != nil {
		return 0, err
	}
	if len(raw) > 0 {
		wt.Data = append([]byte(nil), raw...)
	} else {
		wt.Data = nil
	}

	return next, nil
}

// readBlob reads a length-prefixed byte slice at pos. The returned slice
// aliases data; callers copy if they keep it.
func readBlob(data []byte, pos int, what string) ([]byte, int, error) {
	if pos+4 > len(data) {
		return nil, 0, fmt.Errorf("data too short for %s length", what)
	}
	n := binary.BigEndian.Uint32(data[pos : pos+4])
	pos += 4

	if pos+int(n) > len(data) {
		return nil, 0, fmt.Errorf("data too short for %s data", what)
	}
	return data[pos : pos+int(n)], pos + int(n), nil
}

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	// 1 byte for MsgType + 1 byte for flags
	size := 2

	if msg.Uid != "" {
		size += 4 + len(msg.Uid)
	}
	if msg.Tensors != nil {
		size += 4 // tensor count
		for _, wt := range msg.Tensors {
			size += 6 + 1 + 8*len(wt.Shape) + 4 + len(wt.Data)
		}
	}
	if msg.Info != nil {
		size += 4 + len(msg.Info)
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err)
	}

	return size
}
