package expert

import (
	"fmt"
	"sync"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/tensornet/gate/lib/queue"
	"github.com/tensornet/gate/lib/tensor"
)

var Logger = logger.GetLogger("expert")

// task is one queued unit of work
type task struct {
	inputs []tensor.Tensor
	result chan Result
}

// taskPool is the default ITaskPool: submissions flow through a lock-free
// MPSC queue into a single runner goroutine that drains opportunistic
// batches and invokes the backend's batch function.
type taskPool struct {
	name     string
	fn       BatchFunc
	maxBatch int
	tasks    *queue.MPSC[task]
	runner   sync.WaitGroup
}

// NewTaskPool creates a task pool running fn over batches of at most
// maxBatch input tuples. The name is used for logging only.
func NewTaskPool(name string, maxBatch int, fn BatchFunc) ITaskPool {
	if maxBatch < 1 {
		maxBatch = 1
	}

	p := &taskPool{
		name:     name,
		fn:       fn,
		maxBatch: maxBatch,
		tasks:    queue.NewMPSC[task](),
	}

	p.runner.Add(1)
	go p.run()

	return p
}

// --------------------------------------------------------------------------
// Interface Methods (docu see expert.ITaskPool)
// --------------------------------------------------------------------------

func (p *taskPool) Submit(inputs []tensor.Tensor) <-chan Result {
	ch := make(chan Result, 1)

	t := task{inputs: inputs, result: ch}
	if !p.tasks.Push(&t) {
		ch <- Result{Err: fmt.Errorf("task pool %s is closed", p.name)}
		close(ch)
	}

	return ch
}

func (p *taskPool) Close() {
	p.tasks.Close()
	p.runner.Wait()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// run is the single consumer of the task queue
func (p *taskPool) run() {
	defer p.runner.Done()

	for first := range p.tasks.Recv() {
		batch := []*task{first}

		// drain whatever is already queued, up to the batch limit
	drain:
		for len(batch) < p.maxBatch {
			select {
			case t, ok := <-p.tasks.Recv():
				if !ok {
					break drain
				}
				batch = append(batch, t)
			default:
				break drain
			}
		}

		p.process(batch)
	}
}

// process runs one batch and distributes the per-task results
func (p *taskPool) process(batch []*task) {
	inputs := make([][]tensor.Tensor, len(batch))
	for i, t := range batch {
		inputs[i] = t.inputs
	}

	outputs, err := p.fn(inputs)
	if err == nil && len(outputs) != len(batch) {
		err = fmt.Errorf("task pool %s: batch function returned %d tuples for %d tasks", p.name, len(outputs), len(batch))
	}

	if err != nil {
		Logger.Warningf("batch of %d failed in pool %s: %v", len(batch), p.name, err)
		for _, t := range batch {
			t.result <- Result{Err: err}
			close(t.result)
		}
		return
	}

	for i, t := range batch {
		t.result <- Result{Outputs: outputs[i]}
		close(t.result)
	}
}
