package tensor

import (
	"fmt"
)

// --------------------------------------------------------------------------
// Wire Format
// --------------------------------------------------------------------------

// WireTensor is a self-describing serialized tensor, or one fragment of one.
//
// A whole tensor has a valid DType and Chunks == 0. A chunked tensor is an
// ordered fragment sequence: the first fragment carries the full descriptor
// plus Chunks set to the total fragment count, follower fragments carry only
// payload bytes (invalid dtype, Chunks == 0). Concatenating the fragments'
// Data in order yields the original payload byte for byte.
type WireTensor struct {
	DType       DType       `json:"dtype"`
	Shape       []uint64    `json:"shape,omitempty"`
	Compression Compression `json:"compression"`
	Chunks      uint32      `json:"chunks,omitempty"`
	Data        []byte      `json:"data"`
}

// IsChunked reports whether this wire tensor heads a fragment sequence.
func (w WireTensor) IsChunked() bool {
	return w.Chunks > 0
}

// --------------------------------------------------------------------------
// Serialize / Deserialize
// --------------------------------------------------------------------------

// Serialize encodes a tensor with the given compression mode.
func Serialize(t Tensor, mode Compression) (WireTensor, error) {
	if err := t.Validate(); err != nil {
		return WireTensor{}, fmt.Errorf("serialize: %v", err)
	}

	payload, err := compressPayload(t, mode)
	if err != nil {
		return WireTensor{}, fmt.Errorf("serialize: %v", err)
	}

	// Shape is copied so the wire tensor does not alias the input
	shape := make([]uint64, len(t.Shape))
	copy(shape, t.Shape)

	return WireTensor{
		DType:       t.DType,
		Shape:       shape,
		Compression: mode,
		Data:        payload,
	}, nil
}

// Deserialize decodes a wire tensor. Decoding an already-serialized tensor
// is exact regardless of compression mode; lossiness happens on encode only.
func Deserialize(w WireTensor) (Tensor, error) {
	if w.IsChunked() {
		return Tensor{}, fmt.Errorf("deserialize: tensor is chunked, reassemble first")
	}
	if w.DType == DTypeInvalid {
		return Tensor{}, fmt.Errorf("deserialize: invalid dtype")
	}

	data, err := decompressPayload(w.Data, w.DType, w.Compression)
	if err != nil {
		return Tensor{}, fmt.Errorf("deserialize: %v", err)
	}

	t := Tensor{
		DType: w.DType,
		Shape: append([]uint64(nil), w.Shape...),
		Data:  data,
	}
	if err := t.Validate(); err != nil {
		return Tensor{}, fmt.Errorf("deserialize: %v", err)
	}
	return t, nil
}
