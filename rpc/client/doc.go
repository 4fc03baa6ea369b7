// Package client implements the RPC client side of the compute gateway.
// It provides a RemoteExpert handle that forwards tensor computations to a
// gateway process over the configured transport.
//
// The package focuses on:
//   - Transparent remote access to expert forward and backward passes
//   - Fragmenting large tensors over the streamed procedures and
//     reassembling fragmented responses
//   - Integration with the transport and serialization layers
//   - Error handling and conversion between RPC and call-level errors
//
// Key Components:
//
//   - NewRemoteExpert: Factory function that creates a handle targeting one
//     expert uid on a gateway. The handle exposes Info, Forward, Backward,
//     ForwardStream and BackwardStream.
//
// Usage Example:
//
//	// Configure the client
//	config := common.ClientConfig{
//		TimeoutSecond: 5,
//		Transport: common.ClientTransportConfig{
//			Endpoints:  []string{"localhost:5000"},
//			RetryCount: 3,
//		},
//	}
//
//	// Create the handle
//	e, _ := client.NewRemoteExpert("expert0", config,
//		tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
//	defer e.Close()
//
//	// Run a forward pass
//	outputs, _ := e.Forward([]tensor.Tensor{tensor.NewFloat32([]float32{1, 2}, 2)})
//
//	// Large payloads go over the streamed variant
//	outputs, _ = e.ForwardStream([]tensor.Tensor{bigInput})
//
// Performance Considerations:
//
//   - For applications that frequently send large payloads, increasing
//     ConnectionsPerEndpoint can improve throughput by allowing parallel
//     requests.
//
//   - The choice of serializer significantly affects performance. The binary
//     serializer provides the best performance and passes tensor payloads
//     through without re-encoding.
//
// Thread Safety:
//
//	All client methods are thread-safe and can be used concurrently from
//	multiple goroutines without additional synchronization.
package client
