// Package dispatch routes inbound messages to the subscribers registered for
// their kind and isolates subscriber failures from each other.
package dispatch

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/keepmind9/relaybot/internal/logger"
	"github.com/keepmind9/relaybot/internal/message"
	"github.com/keepmind9/relaybot/pkg/constants"
	"github.com/sirupsen/logrus"
)

// ErrSubscriberPanic wraps a panic recovered from a subscriber
var ErrSubscriberPanic = errors.New("subscriber panicked")

// Subscriber handles one message of the kind it was registered for
type Subscriber func(msg message.Message) error

// Subscription is the handle returned by Register and accepted by Deregister
type Subscription struct {
	id     string
	kind   message.Kind
	owner  string
	fn     Subscriber
	active atomic.Bool
}

// ID returns the unique subscription id
func (s *Subscription) ID() string { return s.id }

// Kind returns the message kind the subscription listens to
func (s *Subscription) Kind() message.Kind { return s.kind }

// Owner returns the name of the parser that registered the subscription
func (s *Subscription) Owner() string { return s.owner }

// Active reports whether the subscription is still registered
func (s *Subscription) Active() bool { return s.active.Load() }

// Registry maps message kinds to ordered subscriber lists.
//
// Process calls are serialized: one event is fanned out completely and
// concluded before the next starts. The subscriber table has its own lock so
// subscribers may register or deregister while an event is being processed;
// such changes apply from the next event on.
type Registry struct {
	dispatchMu sync.Mutex

	mu   sync.RWMutex
	subs map[message.Kind][]*Subscription

	placeholderDelay time.Duration
}

// Option configures a Registry
type Option func(*Registry)

// WithPlaceholderDelay sets the delay of the reply queued when a subscriber fails
func WithPlaceholderDelay(d time.Duration) Option {
	return func(r *Registry) {
		r.placeholderDelay = d
	}
}

// NewRegistry creates an empty registry
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		subs:             make(map[message.Kind][]*Subscription),
		placeholderDelay: constants.PlaceholderDelay,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds fn for messages of kind. Registering the same function twice
// yields two subscriptions and two invocations per event.
func (r *Registry) Register(kind message.Kind, owner string, fn Subscriber) *Subscription {
	sub := &Subscription{
		id:    uuid.NewString(),
		kind:  kind,
		owner: owner,
		fn:    fn,
	}
	sub.active.Store(true)

	r.mu.Lock()
	r.subs[kind] = append(r.subs[kind], sub)
	r.mu.Unlock()

	logger.WithFields(logrus.Fields{
		"kind":  kind,
		"owner": owner,
		"id":    sub.id,
	}).Debug("subscriber-registered")
	return sub
}

// Deregister removes sub. It returns false if sub was not registered.
func (r *Registry) Deregister(sub *Subscription) bool {
	if sub == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.subs[sub.kind]
	for i, s := range subs {
		if s != sub {
			continue
		}
		remaining := make([]*Subscription, 0, len(subs)-1)
		remaining = append(remaining, subs[:i]...)
		remaining = append(remaining, subs[i+1:]...)
		if len(remaining) == 0 {
			delete(r.subs, sub.kind)
		} else {
			r.subs[sub.kind] = remaining
		}
		sub.active.Store(false)
		return true
	}
	return false
}

// DeregisterOwner removes every subscription registered by owner and returns
// how many were removed.
func (r *Registry) DeregisterOwner(owner string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for kind, subs := range r.subs {
		remaining := subs[:0:0]
		for _, s := range subs {
			if s.owner == owner {
				s.active.Store(false)
				removed++
				continue
			}
			remaining = append(remaining, s)
		}
		if len(remaining) == 0 {
			delete(r.subs, kind)
		} else {
			r.subs[kind] = remaining
		}
	}
	return removed
}

// Count returns the number of subscriptions for kind
func (r *Registry) Count(kind message.Kind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[kind])
}

// Owners returns the number of subscriptions per owner
func (r *Registry) Owners() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	owners := make(map[string]int)
	for _, subs := range r.subs {
		for _, s := range subs {
			owners[s.owner]++
		}
	}
	return owners
}

// snapshot copies the subscriber list for kind
func (r *Registry) snapshot(kind message.Kind) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := r.subs[kind]
	if len(subs) == 0 {
		return nil
	}
	out := make([]*Subscription, len(subs))
	copy(out, subs)
	return out
}

// Process fans msg out to every subscriber registered for its exact kind and
// then concludes it. A failing subscriber is logged and answered with a short
// placeholder reply; the remaining subscribers still run.
func (r *Registry) Process(msg message.Message) {
	if msg == nil {
		return
	}

	r.dispatchMu.Lock()
	defer r.dispatchMu.Unlock()
	defer msg.Conclude()

	subs := r.snapshot(msg.Kind())
	if len(subs) == 0 {
		logger.WithField("kind", msg.Kind()).Debug("no-subscribers-for-message")
		return
	}

	for _, sub := range subs {
		// deregistered by an earlier subscriber of this event
		if !sub.Active() {
			continue
		}
		if err := invoke(sub, msg); err != nil {
			logger.WithFields(logrus.Fields{
				"kind":  msg.Kind(),
				"owner": sub.owner,
				"id":    sub.id,
				"error": err,
			}).Error("subscriber-failed")
			msg.Respond(message.NewDelayed(Placeholder(sub.owner), r.placeholderDelay))
		}
	}
}

// Placeholder is the reply users see when owner fails while handling their message
func Placeholder(owner string) string {
	return fmt.Sprintf("something went wrong in %s", owner)
}

// invoke calls the subscriber, converting a panic into an error
func invoke(sub *Subscription, msg message.Message) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.WithFields(logrus.Fields{
				"owner": sub.owner,
				"panic": rec,
				"stack": string(debug.Stack()),
			}).Debug("subscriber-panic-recovered")
			err = fmt.Errorf("%w: %v", ErrSubscriberPanic, rec)
		}
	}()
	return sub.fn(msg)
}
