package server

import (
	"fmt"

	"github.com/tensornet/gate/lib/tensor"
	"github.com/tensornet/gate/rpc/common"
)

// --------------------------------------------------------------------------
// Request Multiplexer (input gathering for streamed calls)
// --------------------------------------------------------------------------

// uidState makes the "all frames share one uid" invariant an explicit state
// transition instead of an implicit assertion
type uidState int

const (
	uidUnset uidState = iota
	uidClaimed
)

// requestUnpacker gathers the frames of one streamed call. The first frame
// claims the uid, every later frame must agree with it. Tensor fragments are
// accumulated in arrival order and reassembled once the stream is exhausted.
// One unpacker serves exactly one call and is never shared.
type requestUnpacker struct {
	state uidState
	uid   string
	parts []tensor.WireTensor
}

// consume folds one request frame into the unpacker
func (u *requestUnpacker) consume(msg *common.Message) error {
	switch u.state {
	case uidUnset:
		if msg.Uid == "" {
			return fmt.Errorf("%w: first frame carries no uid", common.ErrProtocolViolation)
		}
		u.uid = msg.Uid
		u.state = uidClaimed
	case uidClaimed:
		if msg.Uid != u.uid {
			return fmt.Errorf("%w: frames disagree on uid (%q vs %q)", common.ErrProtocolViolation, u.uid, msg.Uid)
		}
	}

	u.parts = append(u.parts, msg.Tensors...)
	return nil
}

// finish reassembles the gathered fragments and deserializes the inputs.
// A stream that never delivered a frame is a protocol violation, there is no
// uid to route an empty call to.
func (u *requestUnpacker) finish() (string, []tensor.Tensor, error) {
	if u.state == uidUnset {
		return "", nil, fmt.Errorf("%w: stream contained no frames", common.ErrProtocolViolation)
	}

	inputs, err := deserializeInputs(u.parts)
	if err != nil {
		return "", nil, err
	}

	return u.uid, inputs, nil
}

// deserializeInputs reassembles chunked wire tensors and decodes every input.
// Unary requests use it directly, their single frame may still carry chunked
// tensors produced by a streaming-aware client.
func deserializeInputs(parts []tensor.WireTensor) ([]tensor.Tensor, error) {
	combined, err := tensor.CombineFromStreaming(parts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCodec, err)
	}

	inputs := make([]tensor.Tensor, len(combined))
	for i, w := range combined {
		t, err := tensor.Deserialize(w)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrCodec, err)
		}
		inputs[i] = t
	}

	return inputs, nil
}
