package plugins

import (
	"fmt"
	"strings"

	"github.com/keepmind9/relaybot/internal/dispatch"
	"github.com/keepmind9/relaybot/internal/message"
	"github.com/keepmind9/relaybot/internal/plugin"
)

// ControlName is the catalog name of the control parser
const ControlName = "control"

const controlHelp = "commands: plugins, load <name>, unload <name>, reload <name>, users, help"

// Control answers commands addressed to the bot ("relaybot: load seen")
type Control struct {
	sub *dispatch.Subscription
}

// NewControl creates the parser
func NewControl() *Control {
	return &Control{}
}

// Init subscribes to text messages addressed to the bot
func (c *Control) Init(host plugin.Host) error {
	sub, err := plugin.Match(host, ControlName, plugin.Rule{
		Pattern:   `(?s)^(\S*)\s*(.*)$`,
		Addressed: true,
		Handle: func(msg *message.Text, groups []string) error {
			// stands unless some parser answers
			msg.SetDefaultResponse(message.Reply("unknown command, " + controlHelp))
			if groups[1] == "" {
				return nil
			}
			if reply, ok := c.run(host, msg, groups[1], strings.Fields(groups[2])); ok {
				msg.Respond(message.Reply(reply))
			}
			return nil
		},
	})
	if err != nil {
		return err
	}
	c.sub = sub
	return nil
}

// run executes one command; ok is false for unknown commands
func (c *Control) run(host plugin.Host, msg message.Message, cmd string, args []string) (string, bool) {
	switch strings.ToLower(cmd) {
	case "help":
		return controlHelp, true

	case "plugins":
		loaded := host.Plugins()
		if len(loaded) == 0 {
			return "no plugins loaded", true
		}
		return "loaded: " + strings.Join(loaded, ", "), true

	case "load", "reload":
		if len(args) != 1 {
			return "usage: " + cmd + " <name>", true
		}
		verb := "loaded"
		if cmd == "reload" {
			verb = "reloaded"
		}
		if err := host.Load(args[0]); err != nil {
			return fmt.Sprintf("failed to %s %s: %v", cmd, args[0], err), true
		}
		return fmt.Sprintf("%s %s", verb, args[0]), true

	case "unload":
		if len(args) != 1 {
			return "usage: unload <name>", true
		}
		if !contains(host.Plugins(), args[0]) {
			return fmt.Sprintf("%s is not loaded", args[0]), true
		}
		if err := host.Unload(args[0]); err != nil {
			return fmt.Sprintf("failed to unload %s: %v", args[0], err), true
		}
		return fmt.Sprintf("unloaded %s", args[0]), true

	case "users":
		return c.users(host, msg), true
	}
	return "", false
}

// users lists who is online on every connection, the asking one first
func (c *Control) users(host plugin.Host, msg message.Message) string {
	var origin string
	if o := msg.Origin(); o != nil {
		origin = o.ShortID()
	}

	var first string
	var rest []string
	for _, conn := range host.Connections() {
		nicks := conn.OnlineUsers()
		list := "nobody"
		if len(nicks) > 0 {
			list = strings.Join(nicks, ", ")
		}
		line := fmt.Sprintf("%s: %s", conn.ShortID(), list)
		if conn.ShortID() == origin {
			first = line
			continue
		}
		rest = append(rest, line)
	}
	if first != "" {
		rest = append([]string{first}, rest...)
	}
	if len(rest) == 0 {
		return "no connections"
	}
	return strings.Join(rest, " | ")
}

// Destroy releases the subscription
func (c *Control) Destroy(host plugin.Host) error {
	if c.sub != nil {
		host.Deregister(c.sub)
		c.sub = nil
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
