package plugins

import (
	"fmt"
	"time"

	"github.com/keepmind9/relaybot/internal/dispatch"
	"github.com/keepmind9/relaybot/internal/message"
	"github.com/keepmind9/relaybot/internal/plugin"
	"github.com/keepmind9/relaybot/pkg/constants"
)

// GreetName is the catalog name of the greet parser
const GreetName = "greet"

// Greet welcomes users joining a channel after a short "typing" pause
type Greet struct {
	sub *dispatch.Subscription
}

// NewGreet creates the parser
func NewGreet() *Greet {
	return &Greet{}
}

// Init subscribes to joins
func (g *Greet) Init(host plugin.Host) error {
	g.sub = host.Register(message.KindUserJoined, GreetName, g.onJoin)
	return nil
}

func (g *Greet) onJoin(msg message.Message) error {
	joined, ok := msg.(*message.UserJoined)
	if !ok {
		return nil
	}
	// do not greet ourselves
	if origin := msg.Origin(); origin != nil && origin.Nick() == joined.Nick() {
		return nil
	}

	text := fmt.Sprintf("hello %s, welcome!", joined.Nick())
	msg.Respond(message.NewDelayed(text, typingDelay(text)))
	return nil
}

// Destroy releases the subscription
func (g *Greet) Destroy(host plugin.Host) error {
	if g.sub != nil {
		host.Deregister(g.sub)
		g.sub = nil
	}
	return nil
}

// typingDelay imitates how long a person would need to type text
func typingDelay(text string) time.Duration {
	d := time.Duration(len(text)) * constants.TypingDelayPerChar
	if d > constants.MaxTypingDelay {
		return constants.MaxTypingDelay
	}
	return d
}
