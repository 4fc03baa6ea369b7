package common

import "errors"

// Error taxonomy of the gateway. Per-call failures (unknown expert, protocol
// violations, codec errors) are surfaced to the caller as error responses and
// never terminate the serving process. Startup failures are reported exactly
// once via the handler's readiness signal.
var (
	// ErrUnknownExpert is returned when a request names a uid that is not
	// present in the expert registry.
	ErrUnknownExpert = errors.New("unknown expert uid")

	// ErrProtocolViolation is returned when a streamed request misbehaves:
	// frames disagree on the uid, or the stream contains no frames at all.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrCodec is returned when a wire tensor cannot be decoded or a
	// fragment sequence cannot be reassembled.
	ErrCodec = errors.New("tensor codec error")
)
