// Package message defines the typed chat events that flow through the relay
// and the response aggregation protocol attached to every inbound event.
//
// Every event carries an ordered list of responses and an optional default
// response. Parsers add to them with Respond and SetDefaultResponse while the
// event is being dispatched; the dispatcher then calls Conclude exactly once,
// which delivers either the queued responses (in order) or the default
// response through the connection the event arrived on.
package message

import (
	"sync"

	"github.com/keepmind9/relaybot/internal/logger"
	"github.com/sirupsen/logrus"
)

// Kind is the stable type tag used as the dispatch lookup key
type Kind string

const (
	KindText       Kind = "text"
	KindDelayed    Kind = "delayed"
	KindRaw        Kind = "raw"
	KindNickChange Kind = "nick_change"
	KindUserJoined Kind = "user_joined"
	KindUserLeft   Kind = "user_left"
)

// Kinds lists every message kind in a stable order
func Kinds() []Kind {
	return []Kind{KindText, KindDelayed, KindRaw, KindNickChange, KindUserJoined, KindUserLeft}
}

// Sender is the owning connection as seen from a message
type Sender interface {
	// ShortID is the per-bot unique connection label
	ShortID() string
	// Nick is the nickname the bot uses on this connection
	Nick() string
	// Enqueue appends msg to the connection's outbound queue
	Enqueue(msg Message)
}

// Message is one unit of chat activity or outbound content
type Message interface {
	Kind() Kind
	Text() string
	// Origin returns the owning connection, nil for bot-originated messages
	Origin() Sender

	Respond(resp Message)
	SetDefaultResponse(resp Message)
	Responses() []Message
	DefaultResponse() Message

	Conclude()
	Concluded() bool
}

// event holds the state shared by all message kinds
type event struct {
	text   string
	origin Sender

	mu        sync.Mutex
	responses []Message
	fallback  Message
	concluded bool
}

// Text returns the immutable source text
func (e *event) Text() string {
	return e.text
}

// Origin returns the owning connection
func (e *event) Origin() Sender {
	return e.origin
}

// Respond queues resp for delivery when the event concludes.
// Calls after Conclude are ignored.
func (e *event) Respond(resp Message) {
	if resp == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.concluded {
		return
	}
	e.responses = append(e.responses, resp)
}

// SetDefaultResponse sets or clears (nil) the fallback used when nobody responded
func (e *event) SetDefaultResponse(resp Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.concluded {
		return
	}
	e.fallback = resp
}

// Responses returns a copy of the queued responses
func (e *event) Responses() []Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Message, len(e.responses))
	copy(out, e.responses)
	return out
}

// DefaultResponse returns the current fallback response
func (e *event) DefaultResponse() Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fallback
}

// Concluded reports whether Conclude has already run
func (e *event) Concluded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.concluded
}

// Conclude finalizes the event and delivers its aggregated reply.
// Only the first call has any effect.
func (e *event) Conclude() {
	e.mu.Lock()
	if e.concluded {
		e.mu.Unlock()
		return
	}
	e.concluded = true

	outgoing := e.responses
	if len(outgoing) == 0 && e.fallback != nil {
		outgoing = []Message{e.fallback}
	}
	e.mu.Unlock()

	for _, resp := range outgoing {
		if e.origin == nil {
			logger.WithFields(logrus.Fields{
				"kind": resp.Kind(),
				"text": resp.Text(),
			}).Warn("dropping-response-without-origin-connection")
			continue
		}
		e.origin.Enqueue(resp)
	}
}
