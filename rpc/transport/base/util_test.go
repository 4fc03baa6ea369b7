package base

import (
	"bytes"
	"net"
	"testing"
)

// frameResult carries one decoded frame from the reader goroutine
type frameResult struct {
	callID uint64
	proc   uint8
	flags  byte
	data   []byte
	err    error
}

// readAsync reads a single frame on the other end of a pipe
func readAsync(t *testing.T, conn net.Conn, buf []byte, maxSize int) <-chan frameResult {
	t.Helper()

	ch := make(chan frameResult, 1)
	go func() {
		callID, proc, flags, data, err := readFrame(conn, buf, maxSize)
		// Copy out, the buffer may be reused by the caller
		if data != nil {
			data = append([]byte(nil), data...)
		}
		ch <- frameResult{callID, proc, flags, data, err}
	}()
	return ch
}

// TestFrameRoundTrip tests that frames survive the wire unchanged
func TestFrameRoundTrip(t *testing.T) {
	testCases := []struct {
		name   string
		callID uint64
		proc   uint8
		flags  byte
		data   []byte
	}{
		{"Empty end frame", 1, 2, flagEnd, nil},
		{"Unary payload", 42, 1, flagEnd, []byte("hello")},
		{"Stream payload", 7, 3, flagStream, bytes.Repeat([]byte{0xAB}, 4096)},
		{"Stream end frame", 7, 3, flagStream | flagEnd, nil},
		{"Max callID", ^uint64(0), 255, 0, []byte{1}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client, server := net.Pipe()
			defer client.Close()
			defer server.Close()

			resultCh := readAsync(t, server, nil, 0)

			if err := writeFrame(client, tc.callID, tc.proc, tc.flags, tc.data); err != nil {
				t.Fatalf("Failed to write frame: %v", err)
			}

			res := <-resultCh
			if res.err != nil {
				t.Fatalf("Failed to read frame: %v", res.err)
			}
			if res.callID != tc.callID {
				t.Errorf("CallID mismatch: expected %d, got %d", tc.callID, res.callID)
			}
			if res.proc != tc.proc {
				t.Errorf("Proc mismatch: expected %d, got %d", tc.proc, res.proc)
			}
			if res.flags != tc.flags {
				t.Errorf("Flags mismatch: expected %b, got %b", tc.flags, res.flags)
			}
			if len(res.data) != len(tc.data) || (len(tc.data) > 0 && !bytes.Equal(res.data, tc.data)) {
				t.Errorf("Data mismatch: expected %d bytes, got %d bytes", len(tc.data), len(res.data))
			}
		})
	}
}

// TestFrameBufferReuse tests that a pooled buffer smaller than the payload works
func TestFrameBufferReuse(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	payload := bytes.Repeat([]byte{0xCD}, 1024)
	smallBuf := make([]byte, 32)
	resultCh := readAsync(t, server, smallBuf, 0)

	if err := writeFrame(client, 5, 2, flagEnd, payload); err != nil {
		t.Fatalf("Failed to write frame: %v", err)
	}

	res := <-resultCh
	if res.err != nil {
		t.Fatalf("Failed to read frame: %v", res.err)
	}
	if !bytes.Equal(res.data, payload) {
		t.Errorf("Payload corrupted when buffer was too small")
	}
}

// TestFrameSizeLimit tests that oversized frames are rejected
func TestFrameSizeLimit(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	resultCh := readAsync(t, server, nil, 16)

	// The write fails or succeeds depending on how much the reader consumed
	// before bailing out, only the read error matters here
	go writeFrame(client, 1, 1, flagEnd, bytes.Repeat([]byte{1}, 64))

	res := <-resultCh
	if res.err == nil {
		t.Fatalf("Expected error for frame exceeding size limit")
	}
}
