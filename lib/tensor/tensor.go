package tensor

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
)

// --------------------------------------------------------------------------
// DType Definition
// --------------------------------------------------------------------------

// DType identifies the element type of a tensor.
type DType uint8

const (
	DTypeInvalid DType = iota
	DTypeFloat32
	DTypeFloat64
	DTypeInt32
	DTypeInt64
	DTypeUint8
)

// String returns the string representation of a DType.
func (d DType) String() string {
	switch d {
	case DTypeFloat32:
		return "float32"
	case DTypeFloat64:
		return "float64"
	case DTypeInt32:
		return "int32"
	case DTypeInt64:
		return "int64"
	case DTypeUint8:
		return "uint8"
	default:
		return "invalid"
	}
}

// Size returns the element width in bytes.
func (d DType) Size() int {
	switch d {
	case DTypeFloat32, DTypeInt32:
		return 4
	case DTypeFloat64, DTypeInt64:
		return 8
	case DTypeUint8:
		return 1
	default:
		return 0
	}
}

// MarshalJSON implements the json.Marshaller interface for DType.
func (d DType) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for DType.
func (d *DType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	switch s {
	case "float32":
		*d = DTypeFloat32
	case "float64":
		*d = DTypeFloat64
	case "int32":
		*d = DTypeInt32
	case "int64":
		*d = DTypeInt64
	case "uint8":
		*d = DTypeUint8
	case "invalid":
		*d = DTypeInvalid
	default:
		return fmt.Errorf("unknown dtype: %s", s)
	}

	return nil
}

// --------------------------------------------------------------------------
// Tensor Type
// --------------------------------------------------------------------------

// Tensor is a dense, contiguous, row-major tensor. Data holds the raw
// little-endian element bytes.
type Tensor struct {
	DType DType
	Shape []uint64
	Data  []byte
}

// NewFloat32 creates a float32 tensor from values and a shape.
// The number of values must match the shape's element count.
func NewFloat32(values []float32, shape ...uint64) Tensor {
	data := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(v))
	}
	return Tensor{DType: DTypeFloat32, Shape: shape, Data: data}
}

// NumElements returns the element count implied by the shape.
func (t Tensor) NumElements() uint64 {
	n := uint64(1)
	for _, dim := range t.Shape {
		n *= dim
	}
	return n
}

// Float32s decodes the payload as float32 values.
func (t Tensor) Float32s() ([]float32, error) {
	if t.DType != DTypeFloat32 {
		return nil, fmt.Errorf("tensor is %s, not float32", t.DType)
	}
	if len(t.Data)%4 != 0 {
		return nil, fmt.Errorf("float32 tensor has truncated payload (%d bytes)", len(t.Data))
	}
	values := make([]float32, len(t.Data)/4)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(t.Data[4*i:]))
	}
	return values, nil
}

// Validate checks that the payload length matches the dtype and shape.
func (t Tensor) Validate() error {
	size := t.DType.Size()
	if size == 0 {
		return fmt.Errorf("invalid dtype")
	}
	if want := t.NumElements() * uint64(size); uint64(len(t.Data)) != want {
		return fmt.Errorf("payload is %d bytes, shape %v of %s needs %d", len(t.Data), t.Shape, t.DType, want)
	}
	return nil
}

// SameShape reports whether two tensors have identical shapes.
func (t Tensor) SameShape(other Tensor) bool {
	if len(t.Shape) != len(other.Shape) {
		return false
	}
	for i := range t.Shape {
		if t.Shape[i] != other.Shape[i] {
			return false
		}
	}
	return true
}
