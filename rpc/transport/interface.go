package transport

import (
	"context"

	"github.com/tensornet/gate/rpc/common"
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// ServerHandleFunc is a function type that handles incoming unary requests
// This function is called by a server transport layer when a request is received
// It takes a procedure id and a request as parameters and returns a response
type ServerHandleFunc func(proc uint8, req []byte) (resp []byte)

// ServerStreamFunc is a function type that handles incoming streamed calls.
// The transport feeds request frames into the requests channel and closes it
// once the client half-closes the stream. The handler returns a channel of
// response frames; the transport forwards every frame to the client and
// terminates the stream when the channel is closed.
type ServerStreamFunc func(proc uint8, requests <-chan []byte) (responses <-chan []byte)

// IRPCServerTransport is the interface for the RPC transport layer
// It must accept a RPCServerConfig as a parameter
type IRPCServerTransport interface {
	// RegisterHandler registers a handler for unary calls
	// This handler should be called when a request is received
	// The transport layer is responsible for routing the request to the appropriate procedure
	RegisterHandler(handler ServerHandleFunc)
	// RegisterStreamHandler registers a handler for streamed calls
	RegisterStreamHandler(handler ServerStreamFunc)
	// Bind claims the endpoint (creates the listener) without accepting traffic.
	// A nil error means the address is owned by this transport and Serve will
	// be able to accept connections.
	Bind(config common.ServerConfig) error
	// Serve accepts and handles connections until the context is cancelled.
	// It must be called after a successful Bind.
	Serve(ctx context.Context) error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IClientStream is one open streamed call from the client's point of view
type IClientStream interface {
	// Send transmits one request frame to the server
	Send(req []byte) error
	// CloseSend half-closes the stream, telling the server no more request
	// frames will follow. Recv may still be called afterwards.
	CloseSend() error
	// Recv blocks for the next response frame. It returns io.EOF once the
	// server has terminated the stream.
	Recv() ([]byte, error)
}

// IRPCClientTransport is the interface for the RPC client transport
type IRPCClientTransport interface {
	// Connect initializes the transport with the given configuration
	Connect(config common.ClientConfig) error
	// Send sends a unary request to the server and returns the response
	Send(proc uint8, req []byte) (resp []byte, err error)
	// OpenStream starts a streamed call for the given procedure
	OpenStream(proc uint8) (IClientStream, error)
	// Close closes the transport connection
	Close() error
}
