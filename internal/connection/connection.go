// Package connection implements the resilient session with one chat backend:
// outbound queue, online-user tracking, reconnect policy and the reference
// line-oriented protocol engine.
package connection

import (
	"context"

	"github.com/keepmind9/relaybot/internal/message"
)

// State is the lifecycle state of a connection
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

// String returns a string representation of the state
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Handler receives every inbound event of a connection, in receipt order
type Handler func(msg message.Message)

// Connection is one session with one chat backend
type Connection interface {
	message.Sender

	// State returns the current lifecycle state
	State() State
	// OnlineUsers returns the nicknames currently present, sorted
	OnlineUsers() []string
	// Run drives the session until ctx is cancelled. It reconnects on its own.
	Run(ctx context.Context, handler Handler) error
}
