package server

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/tensornet/gate/lib/expert"
	"github.com/tensornet/gate/rpc/common"
	"github.com/tensornet/gate/rpc/serializer"
	"github.com/tensornet/gate/rpc/transport/unix"
)

// newHandler creates a handler serving a unix socket at the given path
func newHandler(t *testing.T, endpoint string) *ConnectionHandler {
	t.Helper()

	registry := expert.NewRegistry()
	t.Cleanup(registry.Close)

	config := common.ServerConfig{
		MaxMessageSize: common.DefaultMaxMessageSize,
		TimeoutSecond:  1,
		Transport:      common.ServerTransportConfig{Endpoint: endpoint},
	}

	return NewConnectionHandler(0, config, unix.NewUnixServerTransport(), serializer.NewBinarySerializer(), registry)
}

// awaitReady waits for the readiness signal with a deadline
func awaitReady(t *testing.T, h *ConnectionHandler) error {
	t.Helper()

	select {
	case err := <-h.Ready():
		return err
	case <-time.After(2 * time.Second):
		t.Fatalf("Timeout waiting for readiness signal")
		return nil
	}
}

// assertNoSecondResolution verifies the readiness signal never fires twice
func assertNoSecondResolution(t *testing.T, h *ConnectionHandler) {
	t.Helper()

	select {
	case err, ok := <-h.Ready():
		if ok {
			t.Errorf("Observed second readiness resolution: %v", err)
		}
	default:
	}
}

// TestHandlerReadiness tests the successful lifecycle: readiness resolves to
// nil exactly once and cancellation terminates gracefully
func TestHandlerReadiness(t *testing.T) {
	h := newHandler(t, filepath.Join(t.TempDir(), "gate.sock"))

	if h.State() != StateInit {
		t.Errorf("Expected init state, got %s", h.State())
	}

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() {
		runErr <- h.Run(ctx)
	}()

	if err := awaitReady(t, h); err != nil {
		t.Fatalf("Expected successful readiness, got %v", err)
	}
	if h.State() != StateServing {
		t.Errorf("Expected serving state, got %s", h.State())
	}

	cancel()

	select {
	case err := <-runErr:
		if err != nil {
			t.Errorf("Expected graceful exit, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Timeout waiting for handler to stop")
	}

	if h.State() != StateTerminated {
		t.Errorf("Expected terminated state, got %s", h.State())
	}
	assertNoSecondResolution(t, h)
}

// TestHandlerStartupFailure tests that an unbindable endpoint resolves the
// readiness signal to the startup error exactly once
func TestHandlerStartupFailure(t *testing.T) {
	// A socket path inside a nonexistent directory cannot be bound
	h := newHandler(t, filepath.Join(t.TempDir(), "missing", "sub", "gate.sock"))

	runErr := make(chan error, 1)
	go func() {
		runErr <- h.Run(context.Background())
	}()

	if err := awaitReady(t, h); err == nil {
		t.Fatalf("Expected startup error")
	}

	select {
	case err := <-runErr:
		if err == nil {
			t.Errorf("Expected Run to return the startup error")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Timeout waiting for handler to fail")
	}

	if h.State() != StateFailed {
		t.Errorf("Expected failed state, got %s", h.State())
	}
	assertNoSecondResolution(t, h)
}
