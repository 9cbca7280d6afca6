// Package server implements the HTTP and WebSocket transport of the relay.
//
// The implementation is organized into specialized files for configuration,
// the hub event loop, clients, routing, metrics and HTTP handlers. The hub
// is the only goroutine that touches the chat.Router; clients talk to it
// through channels.
package server
