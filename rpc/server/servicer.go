package server

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/tensornet/gate/lib/expert"
	"github.com/tensornet/gate/lib/tensor"
	"github.com/tensornet/gate/rpc/common"
	"github.com/tensornet/gate/rpc/serializer"
)

// servicer binds the five RPC procedures to the expert registry. It is
// stateless apart from the read-only registry and safe for any number of
// concurrent calls.
type servicer struct {
	registry   *expert.Registry
	serializer serializer.IRPCSerializer
	chunkSize  int
}

// newServicer creates a servicer for the given registry
func newServicer(config common.ServerConfig, s serializer.IRPCSerializer, registry *expert.Registry) *servicer {
	return &servicer{
		registry:   registry,
		serializer: s,
		chunkSize:  config.ChunkSize(),
	}
}

// --------------------------------------------------------------------------
// Transport Handlers
// --------------------------------------------------------------------------

// HandleUnary serves the unary procedures (info, forward, backward).
// Per-call failures are returned to the caller as error responses and never
// affect other in-flight calls.
func (s *servicer) HandleUnary(proc uint8, req []byte) []byte {
	p := common.Proc(proc)
	start := time.Now()
	defer s.observe(p, start)

	var msg common.Message
	if err := s.serializer.Deserialize(req, &msg); err != nil {
		return s.errorResponse(p, fmt.Errorf("%w: %v", common.ErrCodec, err))
	}

	switch p {
	case common.ProcInfo:
		resp, err := s.info(msg.Uid)
		if err != nil {
			return s.errorResponse(p, err)
		}
		return s.marshal(common.NewInfoResponse(resp, nil))

	case common.ProcForward, common.ProcBackward:
		inputs, err := deserializeInputs(msg.Tensors)
		if err != nil {
			return s.errorResponse(p, err)
		}

		outputs, err := s.dispatch(p, msg.Uid, inputs)
		if err != nil {
			return s.errorResponse(p, err)
		}

		if p == common.ProcForward {
			return s.marshal(common.NewForwardResponse(outputs, nil))
		}
		return s.marshal(common.NewBackwardResponse(outputs, nil))

	default:
		return s.errorResponse(p, fmt.Errorf("%w: procedure %d is not unary", common.ErrProtocolViolation, proc))
	}
}

// HandleStream serves the streamed procedures (forward_stream,
// backward_stream). Input frames are gathered in arrival order; the response
// is a forward-only fragment sequence that is produced as it is consumed by
// the transport, not buffered first.
func (s *servicer) HandleStream(proc uint8, requests <-chan []byte) <-chan []byte {
	p := common.Proc(proc)
	out := make(chan []byte)

	go func() {
		defer close(out)

		// A call that fails mid-stream must keep consuming its remaining
		// frames, otherwise the connection's read loop backs up
		defer func() {
			for range requests {
			}
		}()

		start := time.Now()
		defer s.observe(p, start)

		if !p.IsStream() {
			out <- s.errorResponse(p, fmt.Errorf("%w: procedure %d is not streamed", common.ErrProtocolViolation, proc))
			return
		}

		// Gather all input frames, verifying uid consistency
		unpacker := &requestUnpacker{}
		for raw := range requests {
			var msg common.Message
			if err := s.serializer.Deserialize(raw, &msg); err != nil {
				out <- s.errorResponse(p, fmt.Errorf("%w: %v", common.ErrCodec, err))
				return
			}
			if err := unpacker.consume(&msg); err != nil {
				out <- s.errorResponse(p, err)
				return
			}
		}

		uid, inputs, err := unpacker.finish()
		if err != nil {
			out <- s.errorResponse(p, err)
			return
		}

		outputs, err := s.dispatch(p, uid, inputs)
		if err != nil {
			out <- s.errorResponse(p, err)
			return
		}

		msgType := common.MsgTForward
		if p == common.ProcBackwardStream {
			msgType = common.MsgTBackward
		}

		// Emit fragments in deterministic order: all fragments of output 0,
		// then all fragments of output 1, and so on. Each frame carries
		// exactly one fragment.
		for _, output := range outputs {
			fragments, err := tensor.SplitForStreaming(output, s.chunkSize)
			if err != nil {
				out <- s.errorResponse(p, fmt.Errorf("%w: %v", common.ErrCodec, err))
				return
			}
			for _, fragment := range fragments {
				out <- s.marshal(common.NewStreamFrame(msgType, "", []tensor.WireTensor{fragment}))
			}
		}
	}()

	return out
}

// --------------------------------------------------------------------------
// Procedure Implementations
// --------------------------------------------------------------------------

// info returns the expert's metadata as an opaque serialized blob
func (s *servicer) info(uid string) ([]byte, error) {
	backend, ok := s.registry.Get(uid)
	if !ok {
		return nil, fmt.Errorf("%w: %q", common.ErrUnknownExpert, uid)
	}

	blob, err := json.Marshal(backend.GetInfo())
	if err != nil {
		return nil, fmt.Errorf("failed to encode expert info: %v", err)
	}
	return blob, nil
}

// dispatch submits one input tuple to the expert's queue for the requested
// direction, awaits the result and serializes each output with the
// per-position compression policy from the matching output schema.
// Exactly one submission happens per call.
func (s *servicer) dispatch(p common.Proc, uid string, inputs []tensor.Tensor) ([]tensor.WireTensor, error) {
	backend, ok := s.registry.Get(uid)
	if !ok {
		return nil, fmt.Errorf("%w: %q", common.ErrUnknownExpert, uid)
	}

	var pool expert.ITaskPool
	var schema expert.Schema
	switch p {
	case common.ProcForward, common.ProcForwardStream:
		pool = backend.Forward
		schema = backend.OutputsSchema
	case common.ProcBackward, common.ProcBackwardStream:
		pool = backend.Backward
		schema = backend.GradInputsSchema
	default:
		return nil, fmt.Errorf("%w: procedure %d has no queue", common.ErrProtocolViolation, uint8(p))
	}

	// Await the queue's future. Concurrent calls suspend here independently,
	// resolution order across calls is up to the queue.
	result := <-pool.Submit(inputs)
	if result.Err != nil {
		return nil, result.Err
	}

	outputs := make([]tensor.WireTensor, len(result.Outputs))
	for i, t := range result.Outputs {
		mode := tensor.CompressionNone
		if i < len(schema) {
			mode = schema[i].Compression
		}

		w, err := tensor.Serialize(t, mode)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrCodec, err)
		}
		outputs[i] = w
	}

	return outputs, nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// marshal serializes a response message. A response that cannot be encoded is
// logged and replaced by an empty frame, the caller will surface a decode
// failure instead of hanging.
func (s *servicer) marshal(msg *common.Message) []byte {
	data, err := s.serializer.Serialize(*msg)
	if err != nil {
		Logger.Errorf("Failed to serialize response: %v", err)
		return nil
	}
	return data
}

// errorResponse encodes a per-call failure as an error response frame
func (s *servicer) errorResponse(p common.Proc, err error) []byte {
	Logger.Debugf("Call to %s failed: %v", p, err)
	metrics.GetOrCreateCounter(fmt.Sprintf(`gate_request_errors_total{proc=%q}`, p.String())).Inc()
	return s.marshal(common.NewErrorResponse(err.Error()))
}

// observe records per-procedure request metrics
func (s *servicer) observe(p common.Proc, start time.Time) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`gate_requests_total{proc=%q}`, p.String())).Inc()
	metrics.GetOrCreateSummary(fmt.Sprintf(`gate_request_duration_seconds{proc=%q}`, p.String())).UpdateDuration(start)
}
