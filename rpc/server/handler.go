package server

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/tensornet/gate/lib/expert"
	"github.com/tensornet/gate/rpc/common"
	"github.com/tensornet/gate/rpc/serializer"
	"github.com/tensornet/gate/rpc/transport"
)

var Logger = logger.GetLogger("rpc")

// --------------------------------------------------------------------------
// Handler Lifecycle States
// --------------------------------------------------------------------------

// HandlerState is the lifecycle state of one connection handler
type HandlerState int32

const (
	StateInit HandlerState = iota
	StateJoining
	StateServing
	StateTerminated
	StateFailed
)

// String returns the string representation of a HandlerState.
func (s HandlerState) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateJoining:
		return "joining"
	case StateServing:
		return "serving"
	case StateTerminated:
		return "terminated"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// --------------------------------------------------------------------------
// Connection Handler
// --------------------------------------------------------------------------

// ConnectionHandler is one serving unit of the gateway. Several handlers may
// run in the same process, each with its own transport bound to the same
// endpoint, so inbound connections fan out across them.
//
// The handler moves through INIT, JOINING, SERVING and ends in TERMINATED or
// FAILED. Its readiness signal resolves exactly once per lifetime: to nil on
// the JOINING to SERVING edge, or to the startup error on the JOINING to
// FAILED edge.
type ConnectionHandler struct {
	id        int
	config    common.ServerConfig
	transport transport.IRPCServerTransport
	servicer  *servicer

	state     atomic.Int32
	ready     chan error
	readyOnce sync.Once
}

// NewConnectionHandler creates a handler in the INIT state. The registry is
// shared, read-only state; the transport must be exclusive to this handler.
func NewConnectionHandler(
	id int,
	config common.ServerConfig,
	t transport.IRPCServerTransport,
	s serializer.IRPCSerializer,
	registry *expert.Registry,
) *ConnectionHandler {
	return &ConnectionHandler{
		id:        id,
		config:    config,
		transport: t,
		servicer:  newServicer(config, s, registry),
		ready:     make(chan error, 1),
	}
}

// Ready returns the handler's readiness signal. It delivers exactly one
// value per handler lifetime: nil once the endpoint is bound and all
// procedures are registered, or the startup error.
func (h *ConnectionHandler) Ready() <-chan error {
	return h.ready
}

// State returns the handler's current lifecycle state
func (h *ConnectionHandler) State() HandlerState {
	return HandlerState(h.state.Load())
}

// Run executes the handler's lifecycle. It blocks until the context is
// cancelled (TERMINATED) or a startup error occurs (FAILED). Cancellation is
// a graceful exit and returns nil.
func (h *ConnectionHandler) Run(ctx context.Context) error {
	h.state.Store(int32(StateJoining))

	// Register all procedures, then claim the endpoint
	h.transport.RegisterHandler(h.servicer.HandleUnary)
	h.transport.RegisterStreamHandler(h.servicer.HandleStream)

	if err := h.transport.Bind(h.config); err != nil {
		err = fmt.Errorf("handler %d failed to join transport: %v", h.id, err)
		h.state.Store(int32(StateFailed))
		h.resolveReady(err)
		return err
	}

	// The endpoint is owned and the procedures are wired up, the parent may
	// proceed
	h.state.Store(int32(StateServing))
	h.resolveReady(nil)
	Logger.Infof("Handler %d serving on %s", h.id, h.config.Transport.Endpoint)

	err := h.transport.Serve(ctx)

	if ctx.Err() != nil {
		// Interrupted while serving, graceful exit
		h.state.Store(int32(StateTerminated))
		Logger.Infof("Handler %d interrupted, shutting down", h.id)
		return nil
	}

	if err != nil {
		h.state.Store(int32(StateFailed))
		return fmt.Errorf("handler %d serve error: %v", h.id, err)
	}

	h.state.Store(int32(StateTerminated))
	return nil
}

// resolveReady delivers the readiness value, at most once
func (h *ConnectionHandler) resolveReady(err error) {
	h.readyOnce.Do(func() {
		h.ready <- err
	})
}
