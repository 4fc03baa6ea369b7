// Package base provides a foundation for transport layers in the compute gateway,
// implementing core functionality for RPC communication independent of the specific
// network protocol (TCP, Unix sockets, etc.). It serves as a base layer that can be
// extended with protocol-specific connectors.
//
// The package focuses on:
//   - Protocol-agnostic client and server transport implementations
//   - Performance optimization through connection pooling and buffer reuse
//   - Frame-based message protocol with callID, procedure and flag tracking
//   - Multiplexing of unary calls and streamed calls over the same connection
//   - Robust error handling with retries and reconnection logic
//
// Wire Format:
//
//	Every frame carries a 14 byte header: an 8 byte callID, a 1 byte procedure
//	id, a 1 byte flag field and a 4 byte payload length. The stream flag marks
//	frames of streamed calls, the end flag marks the final frame of a call
//	direction. Unary calls consist of exactly one end frame per direction;
//	streamed calls send payload frames followed by an empty end frame.
//
// Key Components:
//
//   - IClientConnector/IServerConnector: Interfaces for protocol-specific operations
//     that allow extending the base transport with different network protocols.
//
//   - clientTransport: Core client implementation that manages multiple connections
//     with round-robin load balancing. Supports multiple connections per endpoint
//     for improved throughput. Unary responses and stream frames are correlated
//     to their callers by callID.
//
//   - serverTransport: Core server implementation that accepts connections,
//     dispatches unary requests to a bounded per-connection worker pool and
//     demultiplexes stream frames into per-call channels.
//
// Performance Optimizations:
//
//   - Connection Pooling: Multiple connections per endpoint improve throughput
//     for high-load scenarios. This is particularly beneficial for large tensor
//     payloads where connection saturation becomes a bottleneck.
//
//   - Buffer Pooling: The server uses a sync.Pool to reuse buffers, reducing
//     GC pressure and memory allocations.
//
//   - Frame Batching: The transport uses net.Buffers to reduce syscalls when
//     writing frames, combining header and payload into a single write operation.
//
// Thread Safety:
//
//	All public methods are thread-safe. The client transport uses atomic operations
//	and mutexes to ensure concurrent access safety, while the server creates a
//	dedicated goroutine for each connection.
package base
