package common

import (
	"encoding/json"
	"fmt"

	"github.com/tensornet/gate/lib/tensor"
)

// --------------------------------------------------------------------------
// Size Limits
// --------------------------------------------------------------------------

const (
	// DefaultMaxMessageSize is the largest frame the transport layer accepts
	DefaultMaxMessageSize = 4 * 1024 * 1024

	// StreamChunkSize is the payload cap for one streamed tensor fragment.
	// Half the frame limit leaves headroom for the envelope and frame header.
	StreamChunkSize = DefaultMaxMessageSize / 2
)

// --------------------------------------------------------------------------
// Procedure IDs
// --------------------------------------------------------------------------

// Proc identifies one of the five RPC procedures on the wire
type Proc uint8

const (
	ProcUnknown Proc = iota
	ProcInfo
	ProcForward
	ProcForwardStream
	ProcBackward
	ProcBackwardStream
)

// String returns the string representation of a Proc.
func (p Proc) String() string {
	switch p {
	case ProcInfo:
		return "info"
	case ProcForward:
		return "forward"
	case ProcForwardStream:
		return "forward_stream"
	case ProcBackward:
		return "backward"
	case ProcBackwardStream:
		return "backward_stream"
	default:
		return "unknown"
	}
}

// IsStream reports whether the procedure uses the streaming call shape.
func (p Proc) IsStream() bool {
	return p == ProcForwardStream || p == ProcBackwardStream
}

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single request or response frame.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// General fields
	Uid     string              `json:"uid,omitempty"`     // Expert identity, set on every request frame
	Tensors []tensor.WireTensor `json:"tensors,omitempty"` // Serialized tensors or tensor fragments

	// Response only fields
	Info []byte `json:"info,omitempty"` // Used for: Info responses (opaque metadata blob)
	Err  string `json:"err,omitempty"`  // Empty if no error, otherwise contains the error message
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewInfoRequest creates a new Info request
func NewInfoRequest(uid string) *Message {
	return &Message{
		MsgType: MsgTInfo,
		Uid:     uid,
	}
}

// NewInfoResponse creates a new Info response
func NewInfoResponse(info []byte, err error) *Message {
	msg := &Message{
		MsgType: MsgTInfo,
		Info:    info,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewForwardRequest creates a new Forward request
func NewForwardRequest(uid string, tensors []tensor.WireTensor) *Message {
	return &Message{
		MsgType: MsgTForward,
		Uid:     uid,
		Tensors: tensors,
	}
}

// NewForwardResponse creates a new Forward response
func NewForwardResponse(tensors []tensor.WireTensor, err error) *Message {
	msg := &Message{
		MsgType: MsgTForward,
		Tensors: tensors,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewBackwardRequest creates a new Backward request
func NewBackwardRequest(uid string, tensors []tensor.WireTensor) *Message {
	return &Message{
		MsgType: MsgTBackward,
		Uid:     uid,
		Tensors: tensors,
	}
}

// NewBackwardResponse creates a new Backward response
func NewBackwardResponse(tensors []tensor.WireTensor, err error) *Message {
	msg := &Message{
		MsgType: MsgTBackward,
		Tensors: tensors,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewStreamFrame creates one frame of a streamed request or response.
// Request frames carry the uid on every frame; response frames leave it empty.
func NewStreamFrame(msgType MessageType, uid string, tensors []tensor.WireTensor) *Message {
	return &Message{
		MsgType: msgType,
		Uid:     uid,
		Tensors: tensors,
	}
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Err:     err,
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	switch t {
	case MsgTInfo:
		return "info"
	case MsgTForward:
		return "forward"
	case MsgTBackward:
		return "backward"
	case MsgTError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	// Convert string back to MessageType
	switch s {
	case "info":
		*t = MsgTInfo
	case "forward":
		*t = MsgTForward
	case "backward":
		*t = MsgTBackward
	case "error":
		*t = MsgTError
	default:
		return fmt.Errorf("unknown message type: %s", s)
	}

	return nil
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTError               // Indicates an error occurred

	// Expert operations

	MsgTInfo     // Expert metadata lookup
	MsgTForward  // Forward pass (unary or one stream frame)
	MsgTBackward // Backward pass (unary or one stream frame)
)
