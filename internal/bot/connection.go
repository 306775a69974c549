package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/keepmind9/relaybot/internal/connection"
	"github.com/keepmind9/relaybot/internal/logger"
	"github.com/keepmind9/relaybot/internal/message"
	"github.com/keepmind9/relaybot/pkg/constants"
	"github.com/sirupsen/logrus"
)

// ConnectionConfig configures an adapter-backed connection
type ConnectionConfig struct {
	ShortID string
	Nick    string
	// Channel restricts the connection to one chat and is the target of
	// outbound messages. Empty means every chat; replies then go to the chat
	// that spoke last.
	Channel        string
	ReconnectPause time.Duration
}

// ConnectionOption customizes a Connection
type ConnectionOption func(*Connection)

// WithSleeper replaces the wait between start attempts
func WithSleeper(sleep connection.SleepFunc) ConnectionOption {
	return func(c *Connection) {
		c.sleep = sleep
	}
}

// Connection drives a BotAdapter as a relay connection.
//
// SDK callbacks are funneled through one channel so the handler sees events
// in receipt order from a single goroutine. Platform SDKs reconnect on their
// own; only a failing Start goes through the reconnect policy.
type Connection struct {
	cfg     ConnectionConfig
	adapter BotAdapter
	queue   *connection.Queue
	users   *connection.UserSet
	backoff *connection.Backoff
	sleep   connection.SleepFunc

	mu          sync.RWMutex
	state       connection.State
	lastChannel string
}

// NewConnection wraps adapter
func NewConnection(adapter BotAdapter, cfg ConnectionConfig, opts ...ConnectionOption) *Connection {
	c := &Connection{
		cfg:     cfg,
		adapter: adapter,
		queue:   connection.NewQueue(),
		users:   connection.NewUserSet(),
		backoff: connection.NewBackoff(cfg.ReconnectPause),
		sleep:   connection.SleepContext,
		state:   connection.Disconnected,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ShortID returns the connection label
func (c *Connection) ShortID() string { return c.cfg.ShortID }

// Nick returns the bot's nickname on this connection
func (c *Connection) Nick() string { return c.cfg.Nick }

// Enqueue queues msg for the writer
func (c *Connection) Enqueue(msg message.Message) { c.queue.Push(msg) }

// Pending returns the number of queued outbound messages
func (c *Connection) Pending() int { return c.queue.Len() }

// OnlineUsers returns the nicknames seen joining or speaking
func (c *Connection) OnlineUsers() []string { return c.users.List() }

// State returns the current lifecycle state
func (c *Connection) State() connection.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Connection) setState(s connection.State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()

	if prev != s {
		logger.WithFields(logrus.Fields{
			"connection": c.cfg.ShortID,
			"from":       prev.String(),
			"to":         s.String(),
		}).Info("connection-state-changed")
	}
}

// Run starts the adapter, retrying with the reconnect policy, and serves it
// until ctx is cancelled
func (c *Connection) Run(ctx context.Context, handler connection.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	inbound := make(chan BotMessage, constants.MessageChannelBufferSize)
	receive := func(m BotMessage) {
		select {
		case inbound <- m:
		case <-ctx.Done():
		}
	}

	for {
		if ctx.Err() != nil {
			c.setState(connection.Disconnected)
			return nil
		}

		c.setState(connection.Connecting)
		if err := c.start(receive); err != nil {
			logger.WithFields(logrus.Fields{
				"connection": c.cfg.ShortID,
				"error":      err,
			}).Warn("connection-start-failed")
			c.stopAdapter()

			c.setState(connection.Reconnecting)
			wait := c.backoff.Next()
			logger.WithFields(logrus.Fields{
				"connection": c.cfg.ShortID,
				"wait":       wait.String(),
			}).Info("connection-reconnect-scheduled")
			if err := c.sleep(ctx, wait); err != nil {
				c.setState(connection.Disconnected)
				return nil
			}
			continue
		}

		c.setState(connection.Connected)
		c.backoff.Reset()
		c.serve(ctx, inbound, handler)
		c.stopAdapter()
		c.users.Clear()
		c.setState(connection.Disconnected)
		return nil
	}
}

// start calls adapter.Start, converting a panic into an error
func (c *Connection) start(receive func(BotMessage)) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("adapter panic: %v", r)
		}
	}()
	return c.adapter.Start(receive)
}

func (c *Connection) stopAdapter() {
	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(logrus.Fields{
				"connection": c.cfg.ShortID,
				"panic":      r,
			}).Error("connection-adapter-stop-panic-recovered")
		}
	}()
	if err := c.adapter.Stop(); err != nil {
		logger.WithFields(logrus.Fields{
			"connection": c.cfg.ShortID,
			"error":      err,
		}).Warn("connection-adapter-stop-failed")
	}
}

// serve delivers inbound events and drains the queue until ctx ends
func (c *Connection) serve(ctx context.Context, inbound <-chan BotMessage, handler connection.Handler) {
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(ctx)
	}()

	for {
		select {
		case <-ctx.Done():
			<-writerDone
			return
		case m := <-inbound:
			if !c.accepts(m) {
				continue
			}
			msg := c.convert(m)
			if msg == nil {
				continue
			}
			c.track(msg)
			c.deliver(handler, msg)
		}
	}
}

// accepts filters events from chats other than the configured one
func (c *Connection) accepts(m BotMessage) bool {
	if c.cfg.Channel == "" || m.Channel == "" || m.Channel == c.cfg.Channel {
		return true
	}
	logger.WithFields(logrus.Fields{
		"connection": c.cfg.ShortID,
		"channel":    m.Channel,
	}).Debug("ignoring-message-from-other-channel")
	return false
}

// convert maps an adapter event to the message model
func (c *Connection) convert(m BotMessage) message.Message {
	if m.Channel != "" {
		c.mu.Lock()
		c.lastChannel = m.Channel
		c.mu.Unlock()
	}

	nick := m.DisplayName()
	if nick == "" {
		return nil
	}

	switch m.Event {
	case EventJoin:
		return message.NewUserJoined(c, nick)
	case EventLeave:
		return message.NewUserLeft(c, nick, m.Reason)
	case EventNick:
		if m.OldNick == "" {
			return nil
		}
		return message.NewNickChange(c, m.OldNick, nick)
	default:
		return message.NewText(c, nick, m.Content)
	}
}

// track keeps the user set in step; speakers count as present because most
// platforms only announce joins for new members
func (c *Connection) track(msg message.Message) {
	switch m := msg.(type) {
	case *message.UserJoined:
		c.users.Add(m.Nick())
	case *message.UserLeft:
		c.users.Remove(m.Nick())
	case *message.NickChange:
		c.users.Rename(m.Old(), m.New())
	case *message.Text:
		c.users.Add(m.Nick())
	}
}

func (c *Connection) deliver(handler connection.Handler, msg message.Message) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(logrus.Fields{
				"connection": c.cfg.ShortID,
				"kind":       msg.Kind(),
				"panic":      r,
			}).Error("connection-handler-panic-recovered")
		}
	}()
	handler(msg)
}

// target is the chat outbound messages go to
func (c *Connection) target() string {
	if c.cfg.Channel != "" {
		return c.cfg.Channel
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastChannel
}

func (c *Connection) writeLoop(ctx context.Context) {
	for {
		for _, msg := range c.queue.Take(time.Now()) {
			c.send(msg)
		}
		if !c.queue.Wait(ctx) {
			return
		}
	}
}

// send hands one message to the adapter; failures are logged and the message dropped
func (c *Connection) send(msg message.Message) {
	channel := c.target()
	if channel == "" {
		logger.WithFields(logrus.Fields{
			"connection": c.cfg.ShortID,
			"kind":       msg.Kind(),
		}).Warn("dropping-message-without-target-channel")
		return
	}
	if err := c.adapter.SendMessage(channel, msg.Text()); err != nil {
		logger.WithFields(logrus.Fields{
			"connection": c.cfg.ShortID,
			"channel":    channel,
			"error":      err,
		}).Warn("connection-send-failed")
	}
}

var _ connection.Connection = (*Connection)(nil)
