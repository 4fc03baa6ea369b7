package tensor

import (
	"math"
	"testing"
)

// testCompressions is a map of compression name to mode
var testCompressions = map[string]Compression{
	"None":    CompressionNone,
	"Float16": CompressionFloat16,
}

// tolerance returns the acceptable absolute error for a mode at a value
func tolerance(mode Compression, v float32) float64 {
	if mode == CompressionNone {
		return 0
	}
	// half precision has ~3 decimal digits; scale tolerance with magnitude
	tol := math.Abs(float64(v)) * 1e-3
	if tol < 1e-6 {
		tol = 1e-6
	}
	return tol
}

// TestRoundTripFloat32 tests that float32 tensors survive encode/decode
// within the compression mode's declared tolerance
func TestRoundTripFloat32(t *testing.T) {
	values := []float32{0, 1, -1, 0.5, 2.0, 4.0, -3.25, 1024, -65504, 6.1e-5, 3.14159}

	for name, mode := range testCompressions {
		t.Run(name, func(t *testing.T) {
			orig := NewFloat32(values, uint64(len(values)))

			wire, err := Serialize(orig, mode)
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}

			back, err := Deserialize(wire)
			if err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}

			if back.DType != DTypeFloat32 {
				t.Errorf("DType mismatch: expected float32, got %s", back.DType)
			}
			if !back.SameShape(orig) {
				t.Errorf("Shape mismatch: expected %v, got %v", orig.Shape, back.Shape)
			}

			got, err := back.Float32s()
			if err != nil {
				t.Fatalf("Failed to decode values: %v", err)
			}

			for i, want := range values {
				if diff := math.Abs(float64(got[i]) - float64(want)); diff > tolerance(mode, want) {
					t.Errorf("Value %d mismatch: expected %v, got %v (diff %v)", i, want, got[i], diff)
				}
			}
		})
	}
}

// TestDecodeEncodeIdentity tests that decoding an already-wire tensor and
// re-encoding it with the same mode is an identity on the payload
func TestDecodeEncodeIdentity(t *testing.T) {
	for name, mode := range testCompressions {
		t.Run(name, func(t *testing.T) {
			orig := NewFloat32([]float32{1.5, -2.25, 0.125, 8}, 4)

			wire, err := Serialize(orig, mode)
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}

			decoded, err := Deserialize(wire)
			if err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}

			rewire, err := Serialize(decoded, mode)
			if err != nil {
				t.Fatalf("Failed to re-serialize: %v", err)
			}

			if len(rewire.Data) != len(wire.Data) {
				t.Fatalf("Payload length changed: %d -> %d", len(wire.Data), len(rewire.Data))
			}
			for i := range wire.Data {
				if wire.Data[i] != rewire.Data[i] {
					t.Fatalf("Payload changed at byte %d", i)
				}
			}
		})
	}
}

// TestFloat16SpecialValues checks inf/NaN/zero handling of the half codec
func TestFloat16SpecialValues(t *testing.T) {
	inf := float32(math.Inf(1))
	ninf := float32(math.Inf(-1))

	if got := halfRoundTrip(inf); got != inf {
		t.Errorf("+inf round trip: got %v", got)
	}
	if got := halfRoundTrip(ninf); got != ninf {
		t.Errorf("-inf round trip: got %v", got)
	}
	if got := halfRoundTrip(0); got != 0 {
		t.Errorf("zero round trip: got %v", got)
	}
	if got := halfRoundTrip(float32(math.NaN())); !math.IsNaN(float64(got)) {
		t.Errorf("NaN round trip: got %v", got)
	}
	// values beyond the half range overflow to inf
	if got := halfRoundTrip(1e38); !math.IsInf(float64(got), 1) {
		t.Errorf("overflow should become +inf, got %v", got)
	}
}

// TestFloat16Subnormals checks that subnormal halves decode to their exact
// float32 values. Every subnormal half is exactly representable as a float32,
// so these magnitudes also survive a full round trip without error.
func TestFloat16Subnormals(t *testing.T) {
	testCases := []struct {
		half uint16
		want float32
	}{
		{0x0001, float32(1) / (1 << 24)},    // smallest positive subnormal
		{0x0200, float32(1) / (1 << 15)},    // 2^-15
		{0x03ff, float32(1023) / (1 << 24)}, // largest subnormal
		{0x8200, -float32(1) / (1 << 15)},
	}

	for _, tc := range testCases {
		if got := math.Float32frombits(halfToFloat32(tc.half)); got != tc.want {
			t.Errorf("Half %#04x decoded to %v, expected %v", tc.half, got, tc.want)
		}
	}

	for _, tc := range testCases {
		if got := halfRoundTrip(tc.want); got != tc.want {
			t.Errorf("Round trip of %v: got %v", tc.want, got)
		}
	}
}

// TestDeserializeErrors checks malformed wire tensors are rejected
func TestDeserializeErrors(t *testing.T) {
	testCases := []struct {
		name string
		wire WireTensor
	}{
		{
			name: "Invalid dtype",
			wire: WireTensor{DType: DTypeInvalid, Data: []byte{1, 2, 3, 4}},
		},
		{
			name: "Chunked tensor",
			wire: WireTensor{DType: DTypeFloat32, Shape: []uint64{1}, Chunks: 2, Data: []byte{0, 0}},
		},
		{
			name: "Payload shape mismatch",
			wire: WireTensor{DType: DTypeFloat32, Shape: []uint64{3}, Data: []byte{0, 0, 0, 0}},
		},
		{
			name: "Odd float16 payload",
			wire: WireTensor{DType: DTypeFloat32, Shape: []uint64{1}, Compression: CompressionFloat16, Data: []byte{0}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Deserialize(tc.wire); err == nil {
				t.Errorf("Expected error but got none")
			}
		})
	}
}

// TestFloat16RequiresFloat32 checks the mode restriction on encode
func TestFloat16RequiresFloat32(t *testing.T) {
	bad := Tensor{DType: DTypeInt32, Shape: []uint64{1}, Data: []byte{1, 0, 0, 0}}
	if _, err := Serialize(bad, CompressionFloat16); err == nil {
		t.Errorf("Expected error serializing int32 with float16 compression")
	}
}
