// Package transport defines the interfaces and abstractions for RPC communication
// in the compute gateway. It provides a common contract that all transport
// implementations must fulfill, enabling protocol-agnostic communication.
//
// The package focuses on:
//   - Defining clear interfaces for client and server transport layers
//   - Supporting procedure-based request routing for unary and streamed calls
//   - Enabling multiple transport implementations (HTTP, TCP, Unix sockets)
//
// Key Components:
//
//   - IRPCClientTransport: Interface for client-side transport implementations that
//     handles connection management, unary request sending and stream creation.
//
//   - IRPCServerTransport: Interface for server-side transport implementations that
//     receives requests and routes them to appropriate handlers. Binding the
//     endpoint and serving traffic are separate steps so a server can signal
//     readiness once the address is claimed.
//
//   - ServerHandleFunc / ServerStreamFunc: Function types for request handling
//     callbacks. Streamed calls exchange request and response frames through
//     channels, the transport owns the framing.
//
//   - IClientStream: Client-side view of one streamed call with explicit
//     half-close semantics.
package transport
