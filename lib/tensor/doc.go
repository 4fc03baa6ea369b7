// Package tensor implements the tensor wire codec of the gateway: a dense
// tensor type, the self-describing wire format, optional lossy compression
// and the fragment splitting/reassembly used by streamed calls.
//
// The package focuses on:
//   - A minimal dense Tensor type (dtype, shape, raw little-endian payload)
//   - Serialize/Deserialize between Tensor and WireTensor
//   - Compression modes with declared lossiness (none, float16)
//   - SplitForStreaming/CombineFromStreaming for size-bounded fragments
//
// Invariants:
//
//   - Deserialize(Serialize(t, mode)) equals t up to the lossiness the mode
//     declares (exact for CompressionNone, half-precision rounding for
//     CompressionFloat16).
//   - Concatenating the fragments of SplitForStreaming in order reproduces
//     the original payload byte for byte, and every fragment payload
//     respects the requested size cap.
//
// All functions are pure and safe for concurrent use.
package tensor
