package client

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/tensornet/gate/lib/expert"
	"github.com/tensornet/gate/lib/tensor"
	"github.com/tensornet/gate/rpc/common"
	"github.com/tensornet/gate/rpc/serializer"
	"github.com/tensornet/gate/rpc/transport"
)

// RemoteExpert is a client-side handle to one expert served by a gateway.
// All methods are safe for concurrent use.
type RemoteExpert struct {
	rpcClientAdapter

	uid string

	// Compression is applied to request tensors. Response compression is
	// chosen by the server from the expert's output schema.
	Compression tensor.Compression
}

// NewRemoteExpert creates a new remote expert handle
// The function takes an expert uid, a config, a transport and a serializer as parameters
// It returns a *RemoteExpert and an error
func NewRemoteExpert(
	uid string,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (*RemoteExpert, error) {

	// Connect the transport
	err := transport.Connect(config)
	if err != nil {
		return nil, err
	}

	// Create the remote expert handle
	e := RemoteExpert{
		rpcClientAdapter: rpcClientAdapter{
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
		uid:         uid,
		Compression: tensor.CompressionNone,
	}

	// Return the remote expert
	return &e, nil
}

// Uid returns the expert uid this handle targets
func (e *RemoteExpert) Uid() string {
	return e.uid
}

// Close closes the underlying transport
func (e *RemoteExpert) Close() error {
	return e.transport.Close()
}

// --------------------------------------------------------------------------
// Unary Procedures
// --------------------------------------------------------------------------

// Info fetches the expert's metadata
func (e *RemoteExpert) Info() (expert.Info, error) {
	req := common.NewInfoRequest(e.uid)
	resp, err := invokeRPCRequest(common.ProcInfo, req, e.transport, e.serializer)
	if err != nil {
		return expert.Info{}, err
	}

	var info expert.Info
	if err := json.Unmarshal(resp.Info, &info); err != nil {
		return expert.Info{}, fmt.Errorf("RPC RemoteExpert - Failed to decode info: %s", err)
	}
	return info, nil
}

// Forward runs one forward pass with the given input tuple
func (e *RemoteExpert) Forward(inputs []tensor.Tensor) ([]tensor.Tensor, error) {
	wire, err := e.serializeInputs(inputs)
	if err != nil {
		return nil, err
	}

	req := common.NewForwardRequest(e.uid, wire)
	resp, err := invokeRPCRequest(common.ProcForward, req, e.transport, e.serializer)
	if err != nil {
		return nil, err
	}

	return deserializeOutputs(resp.Tensors)
}

// Backward runs one backward pass. The tuple carries the original inputs
// followed by the upstream gradients, matching the expert's backward queue
// contract.
func (e *RemoteExpert) Backward(inputsAndGrads []tensor.Tensor) ([]tensor.Tensor, error) {
	wire, err := e.serializeInputs(inputsAndGrads)
	if err != nil {
		return nil, err
	}

	req := common.NewBackwardRequest(e.uid, wire)
	resp, err := invokeRPCRequest(common.ProcBackward, req, e.transport, e.serializer)
	if err != nil {
		return nil, err
	}

	return deserializeOutputs(resp.Tensors)
}

// --------------------------------------------------------------------------
// Streamed Procedures
// --------------------------------------------------------------------------

// ForwardStream runs one forward pass over the streamed procedure. Inputs are
// fragmented to the wire size cap, one fragment per request frame, and the
// fragmented response is reassembled before returning.
func (e *RemoteExpert) ForwardStream(inputs []tensor.Tensor) ([]tensor.Tensor, error) {
	return e.invokeStream(common.ProcForwardStream, common.MsgTForward, inputs)
}

// BackwardStream is the streamed variant of Backward
func (e *RemoteExpert) BackwardStream(inputsAndGrads []tensor.Tensor) ([]tensor.Tensor, error) {
	return e.invokeStream(common.ProcBackwardStream, common.MsgTBackward, inputsAndGrads)
}

// invokeStream drives one streamed call: send all input fragments, half-close,
// then gather response fragments until the server terminates the stream
func (e *RemoteExpert) invokeStream(proc common.Proc, msgType common.MessageType, inputs []tensor.Tensor) ([]tensor.Tensor, error) {
	stream, err := e.transport.OpenStream(uint8(proc))
	if err != nil {
		return nil, err
	}

	// Serialize and fragment every input, one fragment per frame. Every
	// frame carries the uid, the server checks them for consistency.
	for _, input := range inputs {
		w, err := tensor.Serialize(input, e.Compression)
		if err != nil {
			return nil, err
		}

		fragments, err := tensor.SplitForStreaming(w, common.StreamChunkSize)
		if err != nil {
			return nil, err
		}

		for _, fragment := range fragments {
			frame := common.NewStreamFrame(msgType, e.uid, []tensor.WireTensor{fragment})
			data, err := e.serializer.Serialize(*frame)
			if err != nil {
				return nil, err
			}
			if err := stream.Send(data); err != nil {
				return nil, err
			}
		}
	}

	// An input-less call still needs one frame to claim the uid
	if len(inputs) == 0 {
		frame := common.NewStreamFrame(msgType, e.uid, nil)
		data, err := e.serializer.Serialize(*frame)
		if err != nil {
			return nil, err
		}
		if err := stream.Send(data); err != nil {
			return nil, err
		}
	}

	if err := stream.CloseSend(); err != nil {
		return nil, err
	}

	// Gather the response fragment sequence
	var parts []tensor.WireTensor
	for {
		data, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		var resp common.Message
		if err := e.serializer.Deserialize(data, &resp); err != nil {
			return nil, fmt.Errorf("RPC RemoteExpert - Error: %s", err)
		}
		if resp.MsgType == common.MsgTError || resp.Err != "" {
			return nil, fmt.Errorf("RPC RemoteExpert - Error: %s", resp.Err)
		}
		if resp.MsgType != msgType {
			return nil, fmt.Errorf("RPC RemoteExpert - Unexpected message type: %s, expected %s", resp.MsgType, msgType)
		}

		parts = append(parts, resp.Tensors...)
	}

	return deserializeOutputs(parts)
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// serializeInputs encodes an input tuple with the handle's compression mode
func (e *RemoteExpert) serializeInputs(inputs []tensor.Tensor) ([]tensor.WireTensor, error) {
	wire := make([]tensor.WireTensor, len(inputs))
	for i, input := range inputs {
		w, err := tensor.Serialize(input, e.Compression)
		if err != nil {
			return nil, err
		}
		wire[i] = w
	}
	return wire, nil
}

// deserializeOutputs reassembles and decodes a response tensor sequence
func deserializeOutputs(parts []tensor.WireTensor) ([]tensor.Tensor, error) {
	combined, err := tensor.CombineFromStreaming(parts)
	if err != nil {
		return nil, fmt.Errorf("RPC RemoteExpert - Error: %s", err)
	}

	outputs := make([]tensor.Tensor, len(combined))
	for i, w := range combined {
		t, err := tensor.Deserialize(w)
		if err != nil {
			return nil, fmt.Errorf("RPC RemoteExpert - Error: %s", err)
		}
		outputs[i] = t
	}
	return outputs, nil
}
