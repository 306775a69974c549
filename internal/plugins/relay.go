package plugins

import (
	"github.com/keepmind9/relaybot/internal/dispatch"
	"github.com/keepmind9/relaybot/internal/message"
	"github.com/keepmind9/relaybot/internal/plugin"
)

// RelayName is the catalog name of the relay parser
const RelayName = "relay"

// Relay copies chat and membership events to every other connection
type Relay struct {
	subs []*dispatch.Subscription
}

// NewRelay creates the parser
func NewRelay() *Relay {
	return &Relay{}
}

// Init subscribes to text and membership events
func (r *Relay) Init(host plugin.Host) error {
	forward := func(msg message.Message) error {
		origin := msg.Origin()
		if origin == nil {
			return nil
		}
		if line := relayLine(origin.ShortID(), msg); line != "" {
			host.BroadcastExcept(message.Reply(line), origin.ShortID())
		}
		return nil
	}

	for _, kind := range []message.Kind{
		message.KindText,
		message.KindUserJoined,
		message.KindUserLeft,
		message.KindNickChange,
	} {
		r.subs = append(r.subs, host.Register(kind, RelayName, forward))
	}
	return nil
}

// relayLine renders msg as seen from another connection
func relayLine(shortID string, msg message.Message) string {
	switch m := msg.(type) {
	case *message.Text:
		return "[" + shortID + "] " + m.Nick() + ": " + flatten(m.Text())
	case *message.UserJoined, *message.UserLeft, *message.NickChange:
		return "[" + shortID + "] * " + flatten(m.Text())
	}
	return ""
}

// Destroy releases the subscriptions
func (r *Relay) Destroy(host plugin.Host) error {
	for _, sub := range r.subs {
		host.Deregister(sub)
	}
	r.subs = nil
	return nil
}
