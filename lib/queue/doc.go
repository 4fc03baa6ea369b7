// Package queue provides a lock-free Multi-Producer Single-Consumer (MPSC)
// queue used to feed the expert task pools.
//
// Features and Guarantees:
//
//   - Lock-Free: atomic operations for high throughput under contention
//   - Unbounded Size: limited only by available memory
//   - Thread-Safe writes: any number of goroutines may Push() concurrently
//   - Single Consumer: one goroutine consumes values via the Recv() channel
//   - No Strict FIFO under concurrent Push(): ordering is determined by
//     which producer completes its append first
package queue
