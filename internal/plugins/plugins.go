// Package plugins contains the parsers shipped with relaybot.
package plugins

import (
	"strings"

	"github.com/keepmind9/relaybot/internal/plugin"
)

// Builtins returns the descriptors of every bundled parser
func Builtins() []plugin.Descriptor {
	return []plugin.Descriptor{
		{Name: GreetName, Description: "greets users joining a channel", New: func() plugin.Parser { return NewGreet() }},
		{Name: SeenName, Description: "remembers when each user was last active (!seen <nick>)", New: func() plugin.Parser { return NewSeen() }},
		{Name: RelayName, Description: "copies chat between all connections", New: func() plugin.Parser { return NewRelay() }},
		{Name: ControlName, Description: "addressed admin commands: plugins, load, unload, reload, users", New: func() plugin.Parser { return NewControl() }},
	}
}

// RegisterBuiltins adds the bundled parsers to c
func RegisterBuiltins(c *plugin.Catalog) error {
	for _, d := range Builtins() {
		if err := c.Register(d); err != nil {
			return err
		}
	}
	return nil
}

// flatten joins multi-line text into one line
func flatten(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
