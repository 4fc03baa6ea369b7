package tensor

import (
	"fmt"
)

// --------------------------------------------------------------------------
// Streaming support: splitting and reassembly
// --------------------------------------------------------------------------

// SplitForStreaming splits one serialized tensor into an ordered fragment
// sequence whose payloads are each at most maxSize bytes. The first fragment
// carries the descriptor and the total fragment count; followers carry only
// payload bytes. An unsplit tensor still yields one fragment so the receiver
// can treat every streamed tensor uniformly.
func SplitForStreaming(w WireTensor, maxSize int) ([]WireTensor, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("split: chunk size must be positive, got %d", maxSize)
	}
	if w.IsChunked() {
		return nil, fmt.Errorf("split: tensor is already chunked")
	}

	total := (len(w.Data) + maxSize - 1) / maxSize
	if total == 0 {
		total = 1 // zero-length payload still produces a head fragment
	}

	parts := make([]WireTensor, 0, total)
	head := w
	head.Chunks = uint32(total)
	if len(w.Data) > maxSize {
		head.Data = w.Data[:maxSize]
	}
	parts = append(parts, head)

	for offset := maxSize; offset < len(w.Data); offset += maxSize {
		end := offset + maxSize
		if end > len(w.Data) {
			end = len(w.Data)
		}
		parts = append(parts, WireTensor{Data: w.Data[offset:end]})
	}

	return parts, nil
}

// CombineFromStreaming reassembles a flat, ordered fragment sequence into
// whole wire tensors. Unchunked tensors pass through untouched; fragment
// groups are validated (head first, correct follower count) and their
// payloads concatenated.
func CombineFromStreaming(parts []WireTensor) ([]WireTensor, error) {
	var out []WireTensor

	for i := 0; i < len(parts); {
		part := parts[i]

		// Standalone tensor, no reassembly needed
		if !part.IsChunked() {
			if part.DType == DTypeInvalid {
				return nil, fmt.Errorf("combine: stray fragment without a head at position %d", i)
			}
			out = append(out, part)
			i++
			continue
		}

		total := int(part.Chunks)
		if i+total > len(parts) {
			return nil, fmt.Errorf("combine: truncated sequence, head at %d announces %d fragments, %d remain", i, total, len(parts)-i)
		}

		size := len(part.Data)
		for _, follower := range parts[i+1 : i+total] {
			if follower.DType != DTypeInvalid || follower.IsChunked() {
				return nil, fmt.Errorf("combine: unexpected head inside fragment group at position %d", i)
			}
			size += len(follower.Data)
		}

		data := make([]byte, 0, size)
		data = append(data, part.Data...)
		for _, follower := range parts[i+1 : i+total] {
			data = append(data, follower.Data...)
		}

		whole := part
		whole.Chunks = 0
		whole.Data = data
		out = append(out, whole)
		i += total
	}

	return out, nil
}
