package server

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/tensornet/gate/lib/expert"
	"github.com/tensornet/gate/lib/tensor"
	"github.com/tensornet/gate/rpc/common"
	"github.com/tensornet/gate/rpc/serializer"
)

// newTestServicer creates a servicer backed by a registry with one doubling
// expert ("expert0", dim 2)
func newTestServicer(t *testing.T) (*servicer, *expert.Registry) {
	t.Helper()

	registry := expert.NewRegistry()
	t.Cleanup(registry.Close)

	backend, err := expert.NewFromKind("expert0", "double", 2, tensor.CompressionNone)
	if err != nil {
		t.Fatalf("Failed to create backend: %v", err)
	}
	if err := registry.Register(backend); err != nil {
		t.Fatalf("Failed to register backend: %v", err)
	}

	config := common.ServerConfig{MaxMessageSize: common.DefaultMaxMessageSize}
	return newServicer(config, serializer.NewBinarySerializer(), registry), registry
}

// roundTrip decodes a response frame produced by the servicer
func roundTrip(t *testing.T, s *servicer, raw []byte) common.Message {
	t.Helper()

	var msg common.Message
	if err := s.serializer.Deserialize(raw, &msg); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return msg
}

// wireFloat32 serializes a float32 vector without compression
func wireFloat32(t *testing.T, values []float32) tensor.WireTensor {
	t.Helper()

	w, err := tensor.Serialize(tensor.NewFloat32(values, uint64(len(values))), tensor.CompressionNone)
	if err != nil {
		t.Fatalf("Failed to serialize tensor: %v", err)
	}
	return w
}

// decodeOutputs deserializes the tensors of a response frame
func decodeOutputs(t *testing.T, msg common.Message) [][]float32 {
	t.Helper()

	combined, err := tensor.CombineFromStreaming(msg.Tensors)
	if err != nil {
		t.Fatalf("Failed to reassemble outputs: %v", err)
	}

	out := make([][]float32, len(combined))
	for i, w := range combined {
		decoded, err := tensor.Deserialize(w)
		if err != nil {
			t.Fatalf("Failed to deserialize output %d: %v", i, err)
		}
		values, err := decoded.Float32s()
		if err != nil {
			t.Fatalf("Failed to read output %d: %v", i, err)
		}
		out[i] = values
	}
	return out
}

// TestUnaryForward tests the end-to-end unary forward path: [1 2] doubled to [2 4]
func TestUnaryForward(t *testing.T) {
	s, _ := newTestServicer(t)

	req := s.marshal(common.NewForwardRequest("expert0", []tensor.WireTensor{wireFloat32(t, []float32{1, 2})}))
	resp := roundTrip(t, s, s.HandleUnary(uint8(common.ProcForward), req))

	if resp.Err != "" {
		t.Fatalf("Unexpected error: %s", resp.Err)
	}
	if resp.MsgType != common.MsgTForward {
		t.Errorf("Expected forward response, got %s", resp.MsgType)
	}

	outputs := decodeOutputs(t, resp)
	if len(outputs) != 1 || outputs[0][0] != 2 || outputs[0][1] != 4 {
		t.Errorf("Expected [[2 4]], got %v", outputs)
	}
}

// TestUnaryBackward tests the unary backward path of the doubling expert
func TestUnaryBackward(t *testing.T) {
	s, _ := newTestServicer(t)

	// Backward takes the original input plus the upstream gradient
	req := s.marshal(common.NewBackwardRequest("expert0", []tensor.WireTensor{
		wireFloat32(t, []float32{1, 2}),
		wireFloat32(t, []float32{1, 1}),
	}))
	resp := roundTrip(t, s, s.HandleUnary(uint8(common.ProcBackward), req))

	if resp.Err != "" {
		t.Fatalf("Unexpected error: %s", resp.Err)
	}

	outputs := decodeOutputs(t, resp)
	if len(outputs) != 1 || outputs[0][0] != 2 || outputs[0][1] != 2 {
		t.Errorf("Expected [[2 2]], got %v", outputs)
	}
}

// TestInfo tests that the info procedure returns the expert's metadata blob
func TestInfo(t *testing.T) {
	s, _ := newTestServicer(t)

	req := s.marshal(common.NewInfoRequest("expert0"))
	resp := roundTrip(t, s, s.HandleUnary(uint8(common.ProcInfo), req))

	if resp.Err != "" {
		t.Fatalf("Unexpected error: %s", resp.Err)
	}

	var info expert.Info
	if err := json.Unmarshal(resp.Info, &info); err != nil {
		t.Fatalf("Failed to decode info blob: %v", err)
	}
	if info.Uid != "expert0" {
		t.Errorf("Expected uid expert0, got %q", info.Uid)
	}
	if len(info.InputsSchema) != 1 || info.InputsSchema[0].DType != tensor.DTypeFloat32 {
		t.Errorf("Unexpected inputs schema: %+v", info.InputsSchema)
	}
}

// TestUnknownExpert tests that unregistered uids fail the call without
// affecting the servicer
func TestUnknownExpert(t *testing.T) {
	s, _ := newTestServicer(t)

	for _, proc := range []common.Proc{common.ProcInfo, common.ProcForward, common.ProcBackward} {
		req := s.marshal(&common.Message{MsgType: common.MsgTInfo, Uid: "expert1"})
		resp := roundTrip(t, s, s.HandleUnary(uint8(proc), req))

		if resp.MsgType != common.MsgTError || !strings.Contains(resp.Err, "unknown expert") {
			t.Errorf("Proc %s: expected unknown expert error, got %+v", proc, resp)
		}
	}

	// The servicer must still work afterwards
	req := s.marshal(common.NewForwardRequest("expert0", []tensor.WireTensor{wireFloat32(t, []float32{1, 2})}))
	resp := roundTrip(t, s, s.HandleUnary(uint8(common.ProcForward), req))
	if resp.Err != "" {
		t.Errorf("Follow-up call failed: %s", resp.Err)
	}
}

// runStream feeds the given frames into a stream call and collects all
// response frames
func runStream(t *testing.T, s *servicer, proc common.Proc, frames []*common.Message) []common.Message {
	t.Helper()

	in := make(chan []byte, len(frames))
	for _, frame := range frames {
		in <- s.marshal(frame)
	}
	close(in)

	var responses []common.Message
	for raw := range s.HandleStream(uint8(proc), in) {
		responses = append(responses, roundTrip(t, s, raw))
	}
	return responses
}

// TestStreamForward tests a streamed forward call split across two frames,
// the first carrying only the uid
func TestStreamForward(t *testing.T) {
	s, _ := newTestServicer(t)

	responses := runStream(t, s, common.ProcForwardStream, []*common.Message{
		common.NewStreamFrame(common.MsgTForward, "expert0", nil),
		common.NewStreamFrame(common.MsgTForward, "expert0", []tensor.WireTensor{wireFloat32(t, []float32{1, 2})}),
	})

	if len(responses) == 0 {
		t.Fatalf("Expected response frames")
	}
	for _, resp := range responses {
		if resp.Err != "" {
			t.Fatalf("Unexpected error: %s", resp.Err)
		}
		if len(resp.Tensors) != 1 {
			t.Errorf("Expected exactly one fragment per frame, got %d", len(resp.Tensors))
		}
	}

	// Reassemble the fragment sequence across frames
	var parts []tensor.WireTensor
	for _, resp := range responses {
		parts = append(parts, resp.Tensors...)
	}
	combined, err := tensor.CombineFromStreaming(parts)
	if err != nil {
		t.Fatalf("Failed to reassemble response: %v", err)
	}
	if len(combined) != 1 {
		t.Fatalf("Expected one output tensor, got %d", len(combined))
	}

	decoded, err := tensor.Deserialize(combined[0])
	if err != nil {
		t.Fatalf("Failed to deserialize output: %v", err)
	}
	values, _ := decoded.Float32s()
	if values[0] != 2 || values[1] != 4 {
		t.Errorf("Expected [2 4], got %v", values)
	}
}

// TestStreamChunkedResponse tests that outputs larger than the chunk size are
// fragmented, one fragment per frame, and reassemble to the full result
func TestStreamChunkedResponse(t *testing.T) {
	s, _ := newTestServicer(t)
	s.chunkSize = 4 // 4 bytes per fragment, one float32

	responses := runStream(t, s, common.ProcForwardStream, []*common.Message{
		common.NewStreamFrame(common.MsgTForward, "expert0", []tensor.WireTensor{wireFloat32(t, []float32{1, 2})}),
	})

	// 8 payload bytes at 4 bytes per fragment means two frames
	if len(responses) != 2 {
		t.Fatalf("Expected 2 fragment frames, got %d", len(responses))
	}

	var parts []tensor.WireTensor
	for _, resp := range responses {
		parts = append(parts, resp.Tensors...)
	}
	combined, err := tensor.CombineFromStreaming(parts)
	if err != nil {
		t.Fatalf("Failed to reassemble response: %v", err)
	}

	decoded, err := tensor.Deserialize(combined[0])
	if err != nil {
		t.Fatalf("Failed to deserialize output: %v", err)
	}
	values, _ := decoded.Float32s()
	if values[0] != 2 || values[1] != 4 {
		t.Errorf("Expected [2 4], got %v", values)
	}
}

// TestStreamUidMismatch tests that frames disagreeing on uid fail the call
func TestStreamUidMismatch(t *testing.T) {
	s, _ := newTestServicer(t)

	responses := runStream(t, s, common.ProcForwardStream, []*common.Message{
		common.NewStreamFrame(common.MsgTForward, "expert0", nil),
		common.NewStreamFrame(common.MsgTForward, "expert1", []tensor.WireTensor{wireFloat32(t, []float32{1, 2})}),
	})

	if len(responses) != 1 {
		t.Fatalf("Expected exactly one error frame, got %d frames", len(responses))
	}
	if responses[0].MsgType != common.MsgTError || !strings.Contains(responses[0].Err, "protocol violation") {
		t.Errorf("Expected protocol violation, got %+v", responses[0])
	}
}

// TestStreamZeroFrames tests that an empty input stream is a protocol violation
func TestStreamZeroFrames(t *testing.T) {
	s, _ := newTestServicer(t)

	responses := runStream(t, s, common.ProcForwardStream, nil)

	if len(responses) != 1 {
		t.Fatalf("Expected exactly one error frame, got %d frames", len(responses))
	}
	if !strings.Contains(responses[0].Err, "protocol violation") {
		t.Errorf("Expected protocol violation, got %+v", responses[0])
	}
}

// gatedPool is a fake task pool whose futures resolve only once the gate is
// released, used to force out-of-order completion across calls
type gatedPool struct {
	gate   chan struct{}
	factor float32
}

func (p *gatedPool) Submit(inputs []tensor.Tensor) <-chan expert.Result {
	ch := make(chan expert.Result, 1)
	go func() {
		defer close(ch)
		<-p.gate

		values, err := inputs[0].Float32s()
		if err != nil {
			ch <- expert.Result{Err: err}
			return
		}
		out := make([]float32, len(values))
		for i, v := range values {
			out[i] = v * p.factor
		}
		ch <- expert.Result{Outputs: []tensor.Tensor{tensor.NewFloat32(out, uint64(len(out)))}}
	}()
	return ch
}

func (p *gatedPool) Close() {}

// TestConcurrencyIndependence tests that two concurrent calls to different
// experts do not cross-talk even when their futures resolve out of order
func TestConcurrencyIndependence(t *testing.T) {
	registry := expert.NewRegistry()
	defer registry.Close()

	gateA := make(chan struct{})
	gateB := make(chan struct{})
	registry.Register(&expert.Backend{Uid: "expertA", Forward: &gatedPool{gate: gateA, factor: 10}})
	registry.Register(&expert.Backend{Uid: "expertB", Forward: &gatedPool{gate: gateB, factor: 100}})

	config := common.ServerConfig{MaxMessageSize: common.DefaultMaxMessageSize}
	s := newServicer(config, serializer.NewBinarySerializer(), registry)

	results := make(map[string][]float32)
	var mu sync.Mutex
	var wg sync.WaitGroup

	call := func(uid string, value float32) {
		defer wg.Done()

		req := s.marshal(common.NewForwardRequest(uid, []tensor.WireTensor{wireFloat32(t, []float32{value})}))
		resp := roundTrip(t, s, s.HandleUnary(uint8(common.ProcForward), req))
		if resp.Err != "" {
			t.Errorf("Call to %s failed: %s", uid, resp.Err)
			return
		}

		outputs := decodeOutputs(t, resp)
		mu.Lock()
		results[uid] = outputs[0]
		mu.Unlock()
	}

	wg.Add(2)
	go call("expertA", 1)
	go call("expertB", 2)

	// Resolve the futures in reverse submission order
	close(gateB)
	close(gateA)
	wg.Wait()

	if got := results["expertA"]; len(got) != 1 || got[0] != 10 {
		t.Errorf("expertA: expected [10], got %v", got)
	}
	if got := results["expertB"]; len(got) != 1 || got[0] != 200 {
		t.Errorf("expertB: expected [200], got %v", got)
	}
}
