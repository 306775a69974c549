package message

import (
	"fmt"
	"time"
)

// Deferred is implemented by messages that may not leave the outbound queue
// before a given time.
type Deferred interface {
	ReadyAt() time.Time
}

// Text is a line of chat spoken by Nick
type Text struct {
	event
	nick string
}

// NewText creates a text message. Outbound replies usually pass an empty nick
// and a nil origin.
func NewText(origin Sender, nick, text string) *Text {
	return &Text{event: event{text: text, origin: origin}, nick: nick}
}

// Reply creates an outbound text message with no speaker and no origin
func Reply(text string) *Text {
	return NewText(nil, "", text)
}

// Replyf is Reply with fmt formatting
func Replyf(format string, args ...interface{}) *Text {
	return Reply(fmt.Sprintf(format, args...))
}

func (m *Text) Kind() Kind { return KindText }

// Nick returns the speaker's nickname
func (m *Text) Nick() string { return m.nick }

// Delayed is outbound text that must wait before it is sent, used to
// imitate human typing latency.
type Delayed struct {
	event
	created time.Time
	delay   time.Duration
}

// NewDelayed creates a delayed message whose clock starts now
func NewDelayed(text string, delay time.Duration) *Delayed {
	return NewDelayedAt(text, time.Now(), delay)
}

// NewDelayedAt creates a delayed message with an explicit creation time
func NewDelayedAt(text string, created time.Time, delay time.Duration) *Delayed {
	if delay < 0 {
		delay = 0
	}
	return &Delayed{event: event{text: text}, created: created, delay: delay}
}

func (m *Delayed) Kind() Kind { return KindDelayed }

// Created returns the creation timestamp
func (m *Delayed) Created() time.Time { return m.created }

// Delay returns the minimum delay before sending
func (m *Delayed) Delay() time.Duration { return m.delay }

// ReadyAt is the earliest time the message may be sent
func (m *Delayed) ReadyAt() time.Time { return m.created.Add(m.delay) }

// Raw is sent to the backend byte for byte, bypassing protocol encoding
type Raw struct {
	event
}

// NewRaw creates a raw message
func NewRaw(text string) *Raw {
	return &Raw{event: event{text: text}}
}

func (m *Raw) Kind() Kind { return KindRaw }

// NickChange reports a user renaming from Old to New
type NickChange struct {
	event
	oldNick, newNick string
}

// NewNickChange creates a nick change event
func NewNickChange(origin Sender, oldNick, newNick string) *NickChange {
	return &NickChange{
		event:   event{text: oldNick + " is now known as " + newNick, origin: origin},
		oldNick: oldNick,
		newNick: newNick,
	}
}

func (m *NickChange) Kind() Kind { return KindNickChange }

// Old returns the previous nickname
func (m *NickChange) Old() string { return m.oldNick }

// New returns the new nickname
func (m *NickChange) New() string { return m.newNick }

// UserJoined reports a user entering the channel
type UserJoined struct {
	event
	nick string
}

// NewUserJoined creates a join event
func NewUserJoined(origin Sender, nick string) *UserJoined {
	return &UserJoined{event: event{text: nick + " joined", origin: origin}, nick: nick}
}

func (m *UserJoined) Kind() Kind { return KindUserJoined }

// Nick returns the joining user's nickname
func (m *UserJoined) Nick() string { return m.nick }

// UserLeft reports a user leaving, with an optional reason
type UserLeft struct {
	event
	nick   string
	reason string
}

// NewUserLeft creates a leave event
func NewUserLeft(origin Sender, nick, reason string) *UserLeft {
	text := nick + " left"
	if reason != "" {
		text += " (" + reason + ")"
	}
	return &UserLeft{event: event{text: text, origin: origin}, nick: nick, reason: reason}
}

func (m *UserLeft) Kind() Kind { return KindUserLeft }

// Nick returns the leaving user's nickname
func (m *UserLeft) Nick() string { return m.nick }

// Reason returns the quit reason, possibly empty
func (m *UserLeft) Reason() string { return m.reason }

var (
	_ Message  = (*Text)(nil)
	_ Message  = (*Delayed)(nil)
	_ Message  = (*Raw)(nil)
	_ Message  = (*NickChange)(nil)
	_ Message  = (*UserJoined)(nil)
	_ Message  = (*UserLeft)(nil)
	_ Deferred = (*Delayed)(nil)
)
