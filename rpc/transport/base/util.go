package base

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// headerSize is the fixed size of every frame header
const headerSize = 14

// Frame flag bits
const (
	// flagStream marks a frame belonging to a streamed call
	flagStream byte = 1 << 0
	// flagEnd marks the last frame of a call direction. Unary requests and
	// responses carry it on their single frame; streams send it on a final
	// empty frame after the payload frames.
	flagEnd byte = 1 << 1
)

// writeFrame writes a frame to the connection with the format:
// - 8 bytes: callID (uint64, big endian)
// - 1 byte:  procedure id
// - 1 byte:  flags (stream / end bits)
// - 4 bytes: data length (uint32, big endian)
// - N bytes: data payload
func writeFrame(conn net.Conn, callID uint64, proc uint8, flags byte, data []byte) error {
	// Create the header (8 bytes for callID + 1 byte proc + 1 byte flags + 4 bytes content length)
	header := make([]byte, headerSize)
	binary.BigEndian.PutUint64(header[:8], callID)
	header[8] = proc
	header[9] = flags
	binary.BigEndian.PutUint32(header[10:headerSize], uint32(len(data)))

	// An empty data slice must not reach WriteTo, a zero-length Write is a
	// distinct operation on some connection types (net.Pipe blocks on it)
	if len(data) == 0 {
		_, err := conn.Write(header)
		return err
	}

	b := net.Buffers{header, data}
	_, err := b.WriteTo(conn)
	return err
}

// readFrame reads a frame from the connection using the provided buffer
// If the buffer is too small, it will allocate a new temporary buffer for the data
// maxSize bounds the accepted payload length; 0 disables the check
func readFrame(conn net.Conn, buf []byte, maxSize int) (uint64, uint8, byte, []byte, error) {
	// Check if buffer is large enough for header
	if buf == nil || len(buf) < headerSize {
		buf = make([]byte, headerSize) // create header buffer
	}

	// Read header
	if _, err := io.ReadFull(conn, buf[:headerSize]); err != nil {
		return 0, 0, 0, nil, err
	}

	// Parse header
	callID := binary.BigEndian.Uint64(buf[:8])
	proc := buf[8]
	flags := buf[9]
	contentLength := binary.BigEndian.Uint32(buf[10:headerSize])

	// Reject frames exceeding the configured size limit
	if maxSize > 0 && int(contentLength) > maxSize {
		return 0, 0, 0, nil, fmt.Errorf("frame of %d bytes exceeds limit of %d bytes", contentLength, maxSize)
	}

	// If no data, return empty slice
	if contentLength == 0 {
		return callID, proc, flags, []byte{}, nil
	}

	// Check if buffer is large enough for data
	if len(buf) < int(contentLength) {
		buf = make([]byte, contentLength)
	}

	// Read data
	if _, err := io.ReadFull(conn, buf[:contentLength]); err != nil {
		return 0, 0, 0, nil, err
	}

	// Return data
	return callID, proc, flags, buf[:contentLength], nil
}
