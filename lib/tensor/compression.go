package tensor

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
)

// --------------------------------------------------------------------------
// Compression Modes
// --------------------------------------------------------------------------

// Compression selects the lossiness/size trade-off of a serialized tensor.
type Compression uint8

const (
	// CompressionNone stores the raw element bytes unchanged.
	CompressionNone Compression = iota
	// CompressionFloat16 stores float32 payloads as IEEE 754 half precision.
	// Lossy: values are rounded to the nearest representable half float.
	CompressionFloat16
)

// String returns the string representation of a Compression mode.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionFloat16:
		return "float16"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for Compression.
func (c Compression) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for Compression.
func (c *Compression) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	switch s {
	case "none":
		*c = CompressionNone
	case "float16":
		*c = CompressionFloat16
	default:
		return fmt.Errorf("unknown compression mode: %s", s)
	}

	return nil
}

// ParseCompression converts a flag value to a Compression mode.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "none", "":
		return CompressionNone, nil
	case "float16":
		return CompressionFloat16, nil
	default:
		return CompressionNone, fmt.Errorf("unknown compression mode: %s", s)
	}
}

// --------------------------------------------------------------------------
// Payload encoding
// --------------------------------------------------------------------------

// compressPayload converts raw element bytes to the wire payload.
func compressPayload(t Tensor, mode Compression) ([]byte, error) {
	switch mode {
	case CompressionNone:
		return t.Data, nil
	case CompressionFloat16:
		if t.DType != DTypeFloat32 {
			return nil, fmt.Errorf("float16 compression requires float32 tensors, got %s", t.DType)
		}
		out := make([]byte, len(t.Data)/2)
		for i := 0; i*4 < len(t.Data); i++ {
			bits := binary.LittleEndian.Uint32(t.Data[4*i:])
			binary.LittleEndian.PutUint16(out[2*i:], float32ToHalf(bits))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown compression mode: %d", mode)
	}
}

// decompressPayload converts the wire payload back to raw element bytes.
func decompressPayload(data []byte, dtype DType, mode Compression) ([]byte, error) {
	switch mode {
	case CompressionNone:
		return data, nil
	case CompressionFloat16:
		if dtype != DTypeFloat32 {
			return nil, fmt.Errorf("float16 compression requires float32 tensors, got %s", dtype)
		}
		if len(data)%2 != 0 {
			return nil, fmt.Errorf("float16 payload has odd length %d", len(data))
		}
		out := make([]byte, len(data)*2)
		for i := 0; i*2 < len(data); i++ {
			half := binary.LittleEndian.Uint16(data[2*i:])
			binary.LittleEndian.PutUint32(out[4*i:], halfToFloat32(half))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown compression mode: %d", mode)
	}
}

// --------------------------------------------------------------------------
// IEEE 754 half precision conversion
// --------------------------------------------------------------------------

// float32ToHalf converts float32 bits to half precision bits with
// round-to-nearest-even. Overflowing magnitudes become infinity.
func float32ToHalf(bits uint32) uint16 {
	sign := uint16(bits>>16) & 0x8000
	exp := int32((bits >> 23) & 0xff)
	mant := bits & 0x7fffff

	switch {
	case exp == 0xff: // inf or NaN
		if mant != 0 {
			return sign | 0x7e00 // NaN
		}
		return sign | 0x7c00 // inf
	case exp > 112+30: // overflow -> inf
		return sign | 0x7c00
	case exp >= 113: // normal
		half := sign | uint16(exp-112)<<10 | uint16(mant>>13)
		// round to nearest even
		if mant&0x1000 != 0 && (mant&0x2fff != 0) {
			half++
		}
		return half
	case exp >= 103: // subnormal
		mant |= 0x800000
		shift := uint32(126 - exp)
		half := sign | uint16(mant>>shift)
		if (mant>>(shift-1))&1 != 0 {
			half++
		}
		return half
	default: // underflow -> zero
		return sign
	}
}

// halfToFloat32 converts half precision bits to float32 bits.
func halfToFloat32(half uint16) uint32 {
	sign := uint32(half&0x8000) << 16
	exp := uint32(half>>10) & 0x1f
	mant := uint32(half & 0x3ff)

	switch {
	case exp == 0x1f: // inf or NaN
		return sign | 0x7f800000 | mant<<13
	case exp != 0: // normal
		return sign | (exp+112)<<23 | mant<<13
	case mant != 0: // subnormal: renormalize
		e := uint32(113)
		for mant&0x400 == 0 {
			mant <<= 1
			e--
		}
		return sign | e<<23 | (mant&0x3ff)<<13
	default: // zero
		return sign
	}
}

// halfRoundTrip rounds a float32 through half precision; used by tests and
// by backends that want to pre-quantize values.
func halfRoundTrip(v float32) float32 {
	return math.Float32frombits(halfToFloat32(float32ToHalf(math.Float32bits(v))))
}
