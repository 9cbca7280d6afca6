// Package chat implements the relay core: the ephemeral participant
// registry, the wire events exchanged with clients, and the Router that
// turns inbound events into presence, typing and chat broadcasts.
//
// Nothing in this package is safe for concurrent use. The Router and the
// Registry it owns are driven from a single goroutine (see server.Hub),
// which processes one event to completion before the next.
package chat
