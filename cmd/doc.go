// Package cmd implements the command-line interface for the gate compute
// gateway. It provides a hierarchical command structure with operations
// for running the gateway and calling experts on it as a client.
//
// The package is organized into several subpackages:
//
//   - expert: Commands for calling experts (info, forward, backward)
//   - serve: Commands for starting and configuring the gateway
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See gate -help for a list of all commands.
package cmd
