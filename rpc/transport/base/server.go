package base

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/tensornet/gate/rpc/common"
	"github.com/tensornet/gate/rpc/transport"
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IServerConnector defines the interface for transport-specific server operations
type IServerConnector interface {
	// Listen creates a listener and returns it
	Listen(config common.ServerConfig) (net.Listener, error)

	// UpgradeConnection applies protocol-specific settings to an accepted connection
	UpgradeConnection(conn net.Conn, config common.ServerConfig) error

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// serverTransport implements the core server transport functionality
type serverTransport struct {
	connector         IServerConnector
	handler           transport.ServerHandleFunc
	streamHandler     transport.ServerStreamFunc
	config            common.ServerConfig
	listener          net.Listener
	bufferPool        *sync.Pool
	maxWorkersPerConn int
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseServerTransport creates a new base server transport with per-connection worker pool
func NewBaseServerTransport(connector IServerConnector, bufferSize int, maxWorkersPerConn int) transport.IRPCServerTransport {

	// minimum one worker per connection
	if maxWorkersPerConn < 1 {
		maxWorkersPerConn = 1
	}

	return &serverTransport{
		connector:         connector,
		maxWorkersPerConn: maxWorkersPerConn,
		bufferPool: &sync.Pool{
			New: func() interface{} {
				return make([]byte, bufferSize)
			},
		},
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *serverTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.handler = handler
}

func (t *serverTransport) RegisterStreamHandler(handler transport.ServerStreamFunc) {
	t.streamHandler = handler
}

func (t *serverTransport) Bind(config common.ServerConfig) error {
	t.config = config

	// Create listener using the connector
	listener, err := t.connector.Listen(config)
	if err != nil {
		return fmt.Errorf("failed to create listener: %v", err)
	}
	t.listener = listener

	return nil
}

func (t *serverTransport) Serve(ctx context.Context) error {
	if t.listener == nil {
		return fmt.Errorf("transport is not bound")
	}

	Logger.Infof("Starting %s server on %s with %d workers per connection",
		t.connector.GetName(), t.config.Transport.Endpoint, t.maxWorkersPerConn)

	// Unblock Accept when the context is cancelled
	go func() {
		<-ctx.Done()
		t.listener.Close()
	}()

	// Accept connections
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			// Listener was closed by the shutdown goroutine
			if ctx.Err() != nil {
				return nil
			}
			Logger.Errorf("Accept error: %v", err)
			continue
		}

		// Apply transport-specific socket settings
		if err := t.connector.UpgradeConnection(conn, t.config); err != nil {
			Logger.Errorf("Failed to upgrade connection: %v", err)
			conn.Close()
			continue
		}

		// Handle the connection in a goroutine
		go t.handleConnection(conn)
	}
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// handleConnection handles incoming requests for one connection
func (t *serverTransport) handleConnection(conn net.Conn) {
	defer conn.Close()

	// Timeout in seconds
	timeout := time.Duration(t.config.TimeoutSecond) * time.Second

	// Create a semaphore to limit concurrent unary workers for this connection
	// The buffered channel acts as a counting semaphore
	workerSemaphore := make(chan struct{}, t.maxWorkersPerConn)

	// Create a wait group to wait for all workers to finish
	var wg sync.WaitGroup

	// Create a mutex to protect writes to the connection
	var connMutex sync.Mutex

	// Open streamed calls on this connection, keyed by callID.
	// Only the read loop touches this map, so no lock is needed.
	streams := make(map[uint64]chan []byte)

	// writeResponse writes one frame, serialized against concurrent writers
	writeResponse := func(callID uint64, proc uint8, flags byte, data []byte) error {
		connMutex.Lock()
		defer connMutex.Unlock()

		if timeout > 0 {
			if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
				return fmt.Errorf("failed to set write deadline: %v", err)
			}
		}

		return writeFrame(conn, callID, proc, flags, data)
	}

	// Handler function that processes unary requests in worker goroutines
	handleUnary := func(callID uint64, proc uint8, data []byte) {
		// When done, release the semaphore and mark worker as done
		defer func() {
			<-workerSemaphore // Release semaphore slot
			wg.Done()         // Mark worker as done
		}()

		// Process the request
		start := time.Now()
		resp := t.handler(proc, data)
		Logger.Debugf("Processed %d call %d took %s", proc, callID, time.Since(start))

		// Write the response with the same callID
		if err := writeResponse(callID, proc, flagEnd, resp); err != nil {
			Logger.Errorf("Failed to write response: %v", err)
		}
	}

	// handleStreamFrame routes one frame of a streamed call. The first frame
	// of a callID opens the stream and starts the response pump.
	handleStreamFrame := func(callID uint64, proc uint8, flags byte, data []byte) {
		in, ok := streams[callID]
		if !ok {
			in = make(chan []byte, t.maxWorkersPerConn)
			streams[callID] = in

			responses := t.streamHandler(proc, in)

			// Pump response frames back to the client, then terminate the stream
			wg.Add(1)
			go func() {
				defer wg.Done()

				// The handler produces until its channel closes, a dead
				// connection must not leave it blocked mid-send
				defer func() {
					for range responses {
					}
				}()

				for resp := range responses {
					if err := writeResponse(callID, proc, flagStream, resp); err != nil {
						Logger.Errorf("Failed to write stream response: %v", err)
						return
					}
				}
				if err := writeResponse(callID, proc, flagStream|flagEnd, nil); err != nil {
					Logger.Errorf("Failed to terminate stream: %v", err)
				}
			}()
		}

		// Deliver the payload before honoring the end flag, the last frame
		// of a stream is allowed to carry both
		if len(data) > 0 {
			// The read buffer is reused, the frame must be copied out
			frame := make([]byte, len(data))
			copy(frame, data)
			in <- frame
		}

		if flags&flagEnd != 0 {
			close(in)
			delete(streams, callID)
		}
	}

	// Function to handle incoming requests
	handleRequest := func() error {
		if timeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
				return fmt.Errorf("failed to set read deadline: %v", err)
			}
		}

		// Get a buffer from the pool
		buf := t.bufferPool.Get().([]byte)

		// Read the frame
		callID, proc, flags, data, err := readFrame(conn, buf, t.config.MaxMessageSize)

		// Error reading frame
		if err != nil {
			t.bufferPool.Put(buf)
			return err
		}

		// Streamed frames are routed synchronously by the read loop so frame
		// order within one call is preserved
		if flags&flagStream != 0 {
			handleStreamFrame(callID, proc, flags, data)
			t.bufferPool.Put(buf)
			return nil
		}

		// Acquire a slot in the semaphore (blocks if maxWorkersPerConn is reached)
		// This is the key mechanism that limits the number of concurrent workers
		workerSemaphore <- struct{}{}

		// Increment the wait group counter
		wg.Add(1)

		// Process in a goroutine
		go func() {
			defer t.bufferPool.Put(buf)
			handleUnary(callID, proc, data)
		}()

		return nil
	}

	// Handle requests in a loop
	for {
		// Handle request
		err := handleRequest()

		// Case EOF: Connection closed by client
		if err == io.EOF {
			Logger.Infof("Connection closed by client")
			break
		}

		// Case error: log and close connection
		if err != nil {
			Logger.Errorf("Error handling request: %v", err)
			break
		}
	}

	// Close the inputs of any stream the client abandoned so their
	// handlers can finish
	for callID, in := range streams {
		close(in)
		delete(streams, callID)
	}

	// Wait for all workers to finish before closing the connection
	// This ensures we don't lose any in-progress work
	wg.Wait()
}
