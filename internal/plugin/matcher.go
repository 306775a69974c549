package plugin

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/keepmind9/relaybot/internal/dispatch"
	"github.com/keepmind9/relaybot/internal/message"
)

// MatchFunc handles a text message whose body matched a Rule.
// groups holds the full match followed by the submatches.
type MatchFunc func(msg *message.Text, groups []string) error

// Rule declares which text messages a parser reacts to
type Rule struct {
	// Pattern is matched against the message body
	Pattern string
	// Addressed requires the body to start with the bot's nick ("relaybot: ...");
	// the prefix is stripped before matching
	Addressed bool
	Handle    MatchFunc
}

// Match registers rule on host for text messages under owner
func Match(host Host, owner string, rule Rule) (*dispatch.Subscription, error) {
	if rule.Handle == nil {
		return nil, fmt.Errorf("rule for %s has no handler", owner)
	}
	re, err := regexp.Compile(rule.Pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", rule.Pattern, err)
	}

	sub := host.Register(message.KindText, owner, func(msg message.Message) error {
		text, ok := msg.(*message.Text)
		if !ok {
			return nil
		}

		body := text.Text()
		if rule.Addressed {
			var addressed bool
			body, addressed = Addressed(text)
			if !addressed {
				return nil
			}
		}

		groups := re.FindStringSubmatch(body)
		if groups == nil {
			return nil
		}
		return rule.Handle(text, groups)
	})
	return sub, nil
}

// Addressed reports whether msg starts with the nick of the connection it
// arrived on and returns the rest of the body
func Addressed(msg message.Message) (string, bool) {
	origin := msg.Origin()
	if origin == nil || origin.Nick() == "" {
		return "", false
	}

	body := msg.Text()
	nick := origin.Nick()
	if len(body) < len(nick) || !strings.EqualFold(body[:len(nick)], nick) {
		return "", false
	}

	rest := body[len(nick):]
	switch {
	case rest == "":
		return "", true
	case strings.HasPrefix(rest, ":"), strings.HasPrefix(rest, ","):
		return strings.TrimSpace(rest[1:]), true
	case strings.HasPrefix(rest, " "):
		return strings.TrimSpace(rest), true
	}
	return "", false
}
