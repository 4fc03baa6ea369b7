// Package common provides core data structures and utilities shared across
// the compute gateway. It defines the frame protocol, configuration
// structures, the error taxonomy and the logging integration used by the
// other rpc packages.
//
// The package focuses on:
//   - Message protocol definition for request and response frames
//   - Procedure identifiers routing calls on the wire
//   - Configuration structures for client and server components
//   - Custom logging implementation integrated with the dragonboat logger
//
// Key Components:
//
//   - Message: Core data structure for all RPC communication. One unary call
//     is exactly one Message each way; a streamed call is an ordered sequence
//     of Messages that all carry the same expert uid. Includes factory
//     methods for creating the various request and response frames.
//
//   - Proc: Enumeration of the five procedures (info, forward,
//     forward_stream, backward, backward_stream). The one-byte procedure id
//     travels in every frame header so the transport can route without
//     inspecting the payload.
//
//   - ServerConfig / ClientConfig: Configuration for gateway processes and
//     clients, including transport, socket and timeout settings.
//
//   - ErrUnknownExpert, ErrProtocolViolation, ErrCodec: sentinel errors for
//     the per-call failure classes. None of them terminate the process.
package common
