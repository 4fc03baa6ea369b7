// Package server implements the RPC serving side of the compute gateway.
// It binds the five gateway procedures (info, forward, forward_stream,
// backward, backward_stream) to the expert registry and manages the lifecycle
// of the connection handlers that serve them.
//
// The package focuses on:
//   - Dispatching unary and streamed calls to the correct per-expert queue
//   - Gathering streamed request frames with strict uid consistency checks
//   - Splitting streamed responses into size-bounded fragments, emitted
//     lazily in deterministic order
//   - A handler lifecycle with a one-shot readiness signal for supervisors
//
// Key Components:
//
//   - ConnectionHandler: One serving unit moving through the states INIT,
//     JOINING, SERVING and ending in TERMINATED or FAILED. Several handlers
//     can run per process, each binding the same endpoint, so the kernel
//     spreads inbound connections across them. The readiness signal resolves
//     exactly once per lifetime: to nil once the endpoint is bound and all
//     procedures are registered, or to the startup error.
//
//   - servicer: Stateless procedure implementations shared by all calls of
//     one handler. Per-call failures (unknown expert, protocol violations,
//     codec errors) are returned to the caller as error responses and never
//     affect the process or other in-flight calls.
//
//   - requestUnpacker: Per-call input gathering for streamed requests. The
//     first frame claims the uid, later frames must agree, and the gathered
//     fragments are reassembled into the logical input tuple once the stream
//     is exhausted.
//
// Usage Example:
//
//	registry := expert.NewRegistry()
//	// ... register backends ...
//
//	handler := server.NewConnectionHandler(0, config,
//		tcp.NewTCPServerTransport(), serializer.NewBinarySerializer(), registry)
//
//	go handler.Run(ctx)
//	if err := <-handler.Ready(); err != nil {
//		log.Fatalf("handler failed to start: %v", err)
//	}
package server
