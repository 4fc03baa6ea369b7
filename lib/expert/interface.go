package expert

import (
	"github.com/tensornet/gate/lib/tensor"
)

// --------------------------------------------------------------------------
// Schemas
// --------------------------------------------------------------------------

// Descriptor describes one tensor position of an expert's inputs or outputs:
// its dtype, shape and the compression policy applied when it is serialized.
type Descriptor struct {
	DType       tensor.DType       `json:"dtype"`
	Shape       []uint64           `json:"shape"`
	Compression tensor.Compression `json:"compression"`
}

// Schema is the ordered descriptor list for one tensor tuple.
type Schema []Descriptor

// --------------------------------------------------------------------------
// Task Pool
// --------------------------------------------------------------------------

// Result is the outcome of one submitted task.
type Result struct {
	Outputs []tensor.Tensor
	Err     error
}

// ITaskPool accepts input tensor tuples and returns a future resolving to
// the output tuple. Every submission is an atomic, independent enqueue; the
// pool owns its batching and scheduling policy.
type ITaskPool interface {
	// Submit enqueues one input tuple. The returned channel receives
	// exactly one Result and is then closed.
	Submit(inputs []tensor.Tensor) <-chan Result

	// Close stops the pool. Pending tasks are still processed.
	Close()
}

// BatchFunc processes a batch of input tuples and returns one output tuple
// per input tuple, in order.
type BatchFunc func(batch [][]tensor.Tensor) ([][]tensor.Tensor, error)

// --------------------------------------------------------------------------
// Expert Backend
// --------------------------------------------------------------------------

// Backend bundles one expert's task pools and schemas. Immutable once
// registered.
type Backend struct {
	Uid string

	// Forward and Backward are the per-direction task pools
	Forward  ITaskPool
	Backward ITaskPool

	// InputsSchema describes the forward inputs, OutputsSchema the forward
	// outputs, GradInputsSchema the backward outputs (gradients w.r.t. the
	// inputs). Output schemas choose the response compression per position.
	InputsSchema     Schema
	OutputsSchema    Schema
	GradInputsSchema Schema
}

// Info is the descriptive metadata returned by the info procedure.
type Info struct {
	Uid              string `json:"uid"`
	InputsSchema     Schema `json:"inputs_schema"`
	OutputsSchema    Schema `json:"outputs_schema"`
	GradInputsSchema Schema `json:"grad_inputs_schema"`
}

// GetInfo returns the expert's descriptive metadata.
func (b *Backend) GetInfo() Info {
	return Info{
		Uid:              b.Uid,
		InputsSchema:     b.InputsSchema,
		OutputsSchema:    b.OutputsSchema,
		GradInputsSchema: b.GradInputsSchema,
	}
}

// Close shuts down both task pools.
func (b *Backend) Close() {
	if b.Forward != nil {
		b.Forward.Close()
	}
	if b.Backward != nil {
		b.Backward.Close()
	}
}
