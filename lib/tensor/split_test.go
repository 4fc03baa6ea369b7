package tensor

import (
	"bytes"
	"testing"
)

// makeWire builds an uncompressed wire tensor with a payload of n counting bytes
func makeWire(n int) WireTensor {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i)
	}
	return WireTensor{DType: DTypeUint8, Shape: []uint64{uint64(n)}, Data: data}
}

// TestSplitReassembly tests that fragments concatenate back to the original
// payload for a variety of payload sizes and caps
func TestSplitReassembly(t *testing.T) {
	testCases := []struct {
		name    string
		payload int
		cap     int
	}{
		{"Empty payload", 0, 16},
		{"Smaller than cap", 10, 16},
		{"Exactly cap", 16, 16},
		{"One byte over", 17, 16},
		{"Many fragments", 1000, 7},
		{"Cap of one", 5, 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			orig := makeWire(tc.payload)

			parts, err := SplitForStreaming(orig, tc.cap)
			if err != nil {
				t.Fatalf("Failed to split: %v", err)
			}

			// every fragment respects the cap
			for i, p := range parts {
				if len(p.Data) > tc.cap {
					t.Errorf("Fragment %d exceeds cap: %d > %d", i, len(p.Data), tc.cap)
				}
			}

			// head fragment announces the count, followers carry no descriptor
			if parts[0].Chunks != uint32(len(parts)) {
				t.Errorf("Head announces %d fragments, got %d", parts[0].Chunks, len(parts))
			}
			for i, p := range parts[1:] {
				if p.DType != DTypeInvalid || p.Chunks != 0 {
					t.Errorf("Follower %d carries a descriptor", i+1)
				}
			}

			combined, err := CombineFromStreaming(parts)
			if err != nil {
				t.Fatalf("Failed to combine: %v", err)
			}
			if len(combined) != 1 {
				t.Fatalf("Expected 1 tensor, got %d", len(combined))
			}
			if !bytes.Equal(combined[0].Data, orig.Data) {
				t.Errorf("Payload not byte-identical after reassembly")
			}
			if combined[0].DType != orig.DType || combined[0].IsChunked() {
				t.Errorf("Descriptor not restored: %+v", combined[0])
			}
		})
	}
}

// TestCombineMultipleTensors tests a flat sequence holding several tensors,
// chunked and unchunked, in order
func TestCombineMultipleTensors(t *testing.T) {
	a := makeWire(100)
	b := makeWire(3)
	c := makeWire(50)

	partsA, err := SplitForStreaming(a, 32)
	if err != nil {
		t.Fatalf("Failed to split a: %v", err)
	}
	partsC, err := SplitForStreaming(c, 32)
	if err != nil {
		t.Fatalf("Failed to split c: %v", err)
	}

	var flat []WireTensor
	flat = append(flat, partsA...)
	flat = append(flat, b)
	flat = append(flat, partsC...)

	combined, err := CombineFromStreaming(flat)
	if err != nil {
		t.Fatalf("Failed to combine: %v", err)
	}
	if len(combined) != 3 {
		t.Fatalf("Expected 3 tensors, got %d", len(combined))
	}
	for i, want := range []WireTensor{a, b, c} {
		if !bytes.Equal(combined[i].Data, want.Data) {
			t.Errorf("Tensor %d payload mismatch", i)
		}
	}
}

// TestCombineMalformed tests that malformed fragment sequences are rejected
func TestCombineMalformed(t *testing.T) {
	whole := makeWire(64)
	parts, err := SplitForStreaming(whole, 16)
	if err != nil {
		t.Fatalf("Failed to split: %v", err)
	}

	t.Run("Truncated group", func(t *testing.T) {
		if _, err := CombineFromStreaming(parts[:len(parts)-1]); err == nil {
			t.Errorf("Expected error for truncated sequence")
		}
	})

	t.Run("Stray follower", func(t *testing.T) {
		if _, err := CombineFromStreaming(parts[1:]); err == nil {
			t.Errorf("Expected error for follower without head")
		}
	})

	t.Run("Head inside group", func(t *testing.T) {
		bad := append([]WireTensor(nil), parts...)
		bad[1] = makeWire(4) // descriptor where a follower belongs
		if _, err := CombineFromStreaming(bad); err == nil {
			t.Errorf("Expected error for head inside fragment group")
		}
	})
}

// TestSplitInvalidArgs tests argument validation
func TestSplitInvalidArgs(t *testing.T) {
	if _, err := SplitForStreaming(makeWire(8), 0); err == nil {
		t.Errorf("Expected error for zero cap")
	}

	chunked := makeWire(8)
	chunked.Chunks = 1
	if _, err := SplitForStreaming(chunked, 8); err == nil {
		t.Errorf("Expected error for already chunked tensor")
	}
}
