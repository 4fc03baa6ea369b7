package common

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Socket level configuration (shared by client and server transports)
// --------------------------------------------------------------------------

// SocketConf holds socket buffer settings
type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
}

// TCPConf holds TCP specific settings (ignored by unix and http transports)
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ExpertConf describes one expert backend to be served
type ExpertConf struct {
	// Uid is the unique identifier of the expert
	Uid string
	// Kind selects the builtin backend implementation (e.g. "double", "relu")
	Kind string
	// Dim is the expert's input/output vector length
	Dim uint64
}

// ServerTransportConfig holds the transport settings of the server
type ServerTransportConfig struct {
	// Endpoint is the address the server listens on (host:port or socket path)
	Endpoint string

	SocketConf
	TCPConf
}

// ServerConfig holds all configuration parameters for a gateway process.
type ServerConfig struct {
	// Experts to register at startup
	Experts []ExpertConf

	// NumHandlers is the number of connection handlers sharing the endpoint
	NumHandlers int

	// MaxMessageSize is the largest accepted frame payload in bytes
	MaxMessageSize int

	// TimeoutSecond is the per-read/write socket deadline (0 disables it)
	TimeoutSecond int64

	// Transport settings
	Transport ServerTransportConfig

	// MetricsEndpoint optionally exposes Prometheus metrics (empty disables)
	MetricsEndpoint string

	// Logging configuration
	LogLevel string
}

// ChunkSize returns the fragment payload cap for streamed responses.
// Half the frame limit, so a fragment plus its envelope always fits a frame.
func (c *ServerConfig) ChunkSize() int {
	if c.MaxMessageSize <= 0 {
		return StreamChunkSize
	}
	return c.MaxMessageSize / 2
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// RPC settings
	addSection("Gateway")
	addField("Endpoint", c.Transport.Endpoint)
	addField("Handlers", strconv.Itoa(c.NumHandlers))
	addField("Max Message Size", fmt.Sprintf("%d bytes", c.MaxMessageSize))
	addField("Stream Chunk Size", fmt.Sprintf("%d bytes", c.ChunkSize()))
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)
	if c.MetricsEndpoint != "" {
		addField("Metrics Endpoint", c.MetricsEndpoint)
	}

	// Experts
	addSection("Experts")
	for _, e := range c.Experts {
		addField(e.Uid, fmt.Sprintf("%s(%d)", e.Kind, e.Dim))
	}

	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

// ClientTransportConfig holds the transport settings of the client
type ClientTransportConfig struct {
	Endpoints              []string
	RetryCount             int
	ConnectionsPerEndpoint int

	SocketConf
	TCPConf
}

// ClientConfig holds all configuration parameters for a gateway client.
type ClientConfig struct {
	TimeoutSecond int
	Transport     ClientTransportConfig
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.Transport.RetryCount))
	addField("Connections Per Endpoint", strconv.Itoa(int(math.Max(1, float64(c.Transport.ConnectionsPerEndpoint)))))

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Transport.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
