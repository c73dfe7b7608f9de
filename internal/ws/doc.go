// Package ws terminates the relay's WebSocket connections.
//
// Each accepted connection gets a Client, which is the registry.Conn the
// router sees, and two goroutines:
//   - a read pump that hands every text frame to the Router and remembers
//     which peer id the connection is bound to
//   - a write pump that serialises queued frames onto the socket and pings
//     the peer
//
// When the read pump ends the connection is disconnected from the router
// exactly once, and only the entry it still owns is removed.
package ws
