package expert

import (
	"fmt"

	"github.com/tensornet/gate/lib/tensor"
)

// Builtin backends used by the serve command and the tests. They operate on
// a single float32 vector of a fixed length; real deployments would register
// backends wrapping an actual compute runtime instead.

const defaultMaxBatch = 32

// NewFromKind creates a builtin backend.
// Supported kinds: "double", "relu", "identity".
func NewFromKind(uid, kind string, dim uint64, compression tensor.Compression) (*Backend, error) {
	var (
		forward  func(x []float32) []float32
		backward func(x, grad []float32) []float32
	)

	switch kind {
	case "double":
		forward = func(x []float32) []float32 {
			out := make([]float32, len(x))
			for i, v := range x {
				out[i] = 2 * v
			}
			return out
		}
		backward = func(_, grad []float32) []float32 {
			out := make([]float32, len(grad))
			for i, g := range grad {
				out[i] = 2 * g
			}
			return out
		}
	case "relu":
		forward = func(x []float32) []float32 {
			out := make([]float32, len(x))
			for i, v := range x {
				if v > 0 {
					out[i] = v
				}
			}
			return out
		}
		backward = func(x, grad []float32) []float32 {
			out := make([]float32, len(grad))
			for i, g := range grad {
				if x[i] > 0 {
					out[i] = g
				}
			}
			return out
		}
	case "identity":
		forward = func(x []float32) []float32 {
			return append([]float32(nil), x...)
		}
		backward = func(_, grad []float32) []float32 {
			return append([]float32(nil), grad...)
		}
	default:
		return nil, fmt.Errorf("unknown expert kind: %s (expected one of: double, relu, identity)", kind)
	}

	vec := Descriptor{DType: tensor.DTypeFloat32, Shape: []uint64{dim}, Compression: compression}

	return &Backend{
		Uid:              uid,
		Forward:          NewTaskPool(uid+"/forward", defaultMaxBatch, vectorForward(dim, forward)),
		Backward:         NewTaskPool(uid+"/backward", defaultMaxBatch, vectorBackward(dim, backward)),
		InputsSchema:     Schema{vec},
		OutputsSchema:    Schema{vec},
		GradInputsSchema: Schema{vec},
	}, nil
}

// --------------------------------------------------------------------------
// Helper batch functions
// --------------------------------------------------------------------------

// vectorForward lifts a vector function to a BatchFunc expecting one
// float32 input tensor per tuple
func vectorForward(dim uint64, fn func(x []float32) []float32) BatchFunc {
	return func(batch [][]tensor.Tensor) ([][]tensor.Tensor, error) {
		outputs := make([][]tensor.Tensor, len(batch))
		for i, inputs := range batch {
			x, err := checkVector(inputs, 1, dim)
			if err != nil {
				return nil, err
			}
			outputs[i] = []tensor.Tensor{tensor.NewFloat32(fn(x[0]), dim)}
		}
		return outputs, nil
	}
}

// vectorBackward lifts a gradient function to a BatchFunc expecting the
// forward input plus the output gradient per tuple
func vectorBackward(dim uint64, fn func(x, grad []float32) []float32) BatchFunc {
	return func(batch [][]tensor.Tensor) ([][]tensor.Tensor, error) {
		outputs := make([][]tensor.Tensor, len(batch))
		for i, inputs := range batch {
			xs, err := checkVector(inputs, 2, dim)
			if err != nil {
				return nil, err
			}
			outputs[i] = []tensor.Tensor{tensor.NewFloat32(fn(xs[0], xs[1]), dim)}
		}
		return outputs, nil
	}
}

// checkVector validates tuple arity and element counts and decodes values
func checkVector(inputs []tensor.Tensor, arity int, dim uint64) ([][]float32, error) {
	if len(inputs) != arity {
		return nil, fmt.Errorf("expected %d input tensors, got %d", arity, len(inputs))
	}
	values := make([][]float32, len(inputs))
	for i, in := range inputs {
		x, err := in.Float32s()
		if err != nil {
			return nil, err
		}
		if uint64(len(x)) != dim {
			return nil, fmt.Errorf("input %d has %d elements, expert expects %d", i, len(x), dim)
		}
		values[i] = x
	}
	return values, nil
}
