// Package plugin manages the lifecycle of parsers: named extensions that
// subscribe to message kinds through the dispatch registry.
package plugin

import (
	"errors"

	"github.com/keepmind9/relaybot/internal/connection"
	"github.com/keepmind9/relaybot/internal/dispatch"
	"github.com/keepmind9/relaybot/internal/message"
	"github.com/keepmind9/relaybot/internal/storage"
)

var (
	// ErrUnknownPlugin is returned when no descriptor has the requested name
	ErrUnknownPlugin = errors.New("unknown plugin")
	// ErrPluginFault wraps a panic raised by a plugin factory or hook
	ErrPluginFault = errors.New("plugin fault")
)

// Host is the bot as seen by a parser
type Host interface {
	Register(kind message.Kind, owner string, fn dispatch.Subscriber) *dispatch.Subscription
	Deregister(sub *dispatch.Subscription) bool
	DeregisterOwner(owner string) int

	Broadcast(msg message.Message)
	BroadcastExcept(msg message.Message, shortID string)

	Connections() []connection.Connection
	Plugins() []string
	Storage() storage.Store

	// Load and Unload must not be called from Init or Destroy
	Load(name string) error
	Unload(name string) error
}

// Parser is a loadable extension.
//
// Init is called once after construction and registers subscriptions.
// Destroy is called once on unload; it must release every subscription and
// stop any background work the parser started. Destroy must tolerate being
// called on a parser whose Init failed.
type Parser interface {
	Init(host Host) error
	Destroy(host Host) error
}

// Factory constructs a fresh, uninitialized parser
type Factory func() Parser

// Descriptor names a constructible parser
type Descriptor struct {
	Name        string
	Description string
	New         Factory
}
