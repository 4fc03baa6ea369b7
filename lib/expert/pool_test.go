package expert

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tensornet/gate/lib/tensor"
)

// TestPoolSubmit tests that a submitted task resolves with the computed output
func TestPoolSubmit(t *testing.T) {
	pool := NewTaskPool("test", 4, vectorForward(2, func(x []float32) []float32 {
		return []float32{x[0] * 2, x[1] * 2}
	}))
	defer pool.Close()

	future := pool.Submit([]tensor.Tensor{tensor.NewFloat32([]float32{1, 2}, 2)})

	select {
	case res := <-future:
		if res.Err != nil {
			t.Fatalf("Unexpected error: %v", res.Err)
		}
		got, err := res.Outputs[0].Float32s()
		if err != nil {
			t.Fatalf("Failed to decode output: %v", err)
		}
		if got[0] != 2 || got[1] != 4 {
			t.Errorf("Expected [2 4], got %v", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("Timeout waiting for result")
	}
}

// TestPoolError tests that a failing batch function fails every queued task
func TestPoolError(t *testing.T) {
	pool := NewTaskPool("test", 1, func(batch [][]tensor.Tensor) ([][]tensor.Tensor, error) {
		return nil, fmt.Errorf("backend exploded")
	})
	defer pool.Close()

	res := <-pool.Submit([]tensor.Tensor{tensor.NewFloat32([]float32{1}, 1)})
	if res.Err == nil {
		t.Fatalf("Expected error from failing batch function")
	}
}

// TestPoolConcurrentSubmits tests many concurrent independent submissions
func TestPoolConcurrentSubmits(t *testing.T) {
	pool := NewTaskPool("test", 8, vectorForward(1, func(x []float32) []float32 {
		return []float32{x[0] + 1}
	}))
	defer pool.Close()

	const n = 100
	var wg sync.WaitGroup
	wg.Add(n)

	for i := 0; i < n; i++ {
		go func(v float32) {
			defer wg.Done()
			res := <-pool.Submit([]tensor.Tensor{tensor.NewFloat32([]float32{v}, 1)})
			if res.Err != nil {
				t.Errorf("Task %v failed: %v", v, res.Err)
				return
			}
			got, _ := res.Outputs[0].Float32s()
			if got[0] != v+1 {
				t.Errorf("Task %v: expected %v, got %v", v, v+1, got[0])
			}
		}(float32(i))
	}

	wg.Wait()
}

// TestPoolClosed tests submissions after Close resolve with an error
func TestPoolClosed(t *testing.T) {
	pool := NewTaskPool("test", 1, vectorForward(1, func(x []float32) []float32 { return x }))
	pool.Close()

	res := <-pool.Submit([]tensor.Tensor{tensor.NewFloat32([]float32{1}, 1)})
	if res.Err == nil {
		t.Fatalf("Expected error submitting to a closed pool")
	}
}

// TestBuiltinBackends tests the demo backends' forward and backward math
func TestBuiltinBackends(t *testing.T) {
	testCases := []struct {
		kind     string
		input    []float32
		forward  []float32
		grad     []float32
		backward []float32
	}{
		{"double", []float32{1, -2}, []float32{2, -4}, []float32{1, 1}, []float32{2, 2}},
		{"relu", []float32{1, -2}, []float32{1, 0}, []float32{3, 3}, []float32{3, 0}},
		{"identity", []float32{5, 7}, []float32{5, 7}, []float32{1, 2}, []float32{1, 2}},
	}

	for _, tc := range testCases {
		t.Run(tc.kind, func(t *testing.T) {
			backend, err := NewFromKind("e", tc.kind, 2, tensor.CompressionNone)
			if err != nil {
				t.Fatalf("Failed to create backend: %v", err)
			}
			defer backend.Close()

			in := tensor.NewFloat32(tc.input, 2)

			res := <-backend.Forward.Submit([]tensor.Tensor{in})
			if res.Err != nil {
				t.Fatalf("Forward failed: %v", res.Err)
			}
			got, _ := res.Outputs[0].Float32s()
			for i := range tc.forward {
				if got[i] != tc.forward[i] {
					t.Errorf("Forward: expected %v, got %v", tc.forward, got)
					break
				}
			}

			grad := tensor.NewFloat32(tc.grad, 2)
			res = <-backend.Backward.Submit([]tensor.Tensor{in, grad})
			if res.Err != nil {
				t.Fatalf("Backward failed: %v", res.Err)
			}
			got, _ = res.Outputs[0].Float32s()
			for i := range tc.backward {
				if got[i] != tc.backward[i] {
					t.Errorf("Backward: expected %v, got %v", tc.backward, got)
					break
				}
			}
		})
	}

	if _, err := NewFromKind("e", "nonsense", 2, tensor.CompressionNone); err == nil {
		t.Errorf("Expected error for unknown kind")
	}
}

// TestRegistry tests registration, lookup and uid listing
func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	defer reg.Close()

	b, err := NewFromKind("expert0", "double", 2, tensor.CompressionNone)
	if err != nil {
		t.Fatalf("Failed to create backend: %v", err)
	}
	if err := reg.Register(b); err != nil {
		t.Fatalf("Failed to register: %v", err)
	}

	if err := reg.Register(b); err == nil {
		t.Errorf("Expected error registering duplicate uid")
	}
	if err := reg.Register(&Backend{}); err == nil {
		t.Errorf("Expected error registering empty uid")
	}

	got, ok := reg.Get("expert0")
	if !ok || got.Uid != "expert0" {
		t.Errorf("Lookup failed: %v %v", got, ok)
	}
	if _, ok := reg.Get("expert1"); ok {
		t.Errorf("Lookup of unregistered uid should fail")
	}

	uids := reg.UIDs()
	if len(uids) != 1 || uids[0] != "expert0" {
		t.Errorf("Expected [expert0], got %v", uids)
	}
}
