// Package expert implements the compute side of the gateway: expert
// backends, their input/output schemas, the per-expert task pools and the
// uid registry the RPC layer dispatches against.
//
// The package focuses on:
//   - ITaskPool: a FIFO-ish batching queue per expert and direction that
//     accepts input tensor tuples and returns futures of output tuples
//   - Backend: one expert's forward/backward pools plus schemas; the output
//     schemas pair each output position with its wire compression policy
//   - Registry: a uid -> backend map, populated at startup and read-only
//     afterwards
//   - Builtin demo backends (double, relu, identity) over float32 vectors
//
// Concurrency:
//
//	Submissions to a task pool are atomic, independent enqueues from any
//	goroutine; a single runner per pool drains opportunistic batches and
//	invokes the backend's batch function. No ordering is guaranteed across
//	concurrent submissions beyond what the queue itself provides.
package expert
