package connection

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/keepmind9/relaybot/internal/logger"
	"github.com/keepmind9/relaybot/internal/message"
	"github.com/keepmind9/relaybot/pkg/constants"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// LineConfig configures a line-protocol connection
type LineConfig struct {
	ShortID        string
	Nick           string
	Address        string        // host:port
	DialTimeout    time.Duration // default constants.DefaultConnectionTimeout
	ReconnectPause time.Duration // default constants.DefaultReconnectPause
	SendRate       float64       // lines per second, default constants.DefaultSendRate
	SendBurst      int
}

// DialFunc opens the stream to the backend
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// SleepFunc waits d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// LineOption customizes a LineConnection
type LineOption func(*LineConnection)

// WithDialer replaces the TCP dialer
func WithDialer(dial DialFunc) LineOption {
	return func(c *LineConnection) {
		c.dial = dial
	}
}

// WithSleeper replaces the reconnect wait
func WithSleeper(sleep SleepFunc) LineOption {
	return func(c *LineConnection) {
		c.sleep = sleep
	}
}

// LineConnection speaks the reference newline-delimited protocol over TCP.
//
// States: Disconnected -> Connecting -> Connected -> Reconnecting -> Connecting ...
// The outbound queue survives reconnects; the online-user set is cleared
// whenever a session is lost.
type LineConnection struct {
	cfg     LineConfig
	queue   *Queue
	users   *UserSet
	backoff *Backoff
	limiter *rate.Limiter
	dial    DialFunc
	sleep   SleepFunc

	mu    sync.RWMutex
	state State
}

// NewLineConnection creates a connection in the Disconnected state
func NewLineConnection(cfg LineConfig, opts ...LineOption) *LineConnection {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = constants.DefaultConnectionTimeout
	}
	if cfg.SendRate <= 0 {
		cfg.SendRate = constants.DefaultSendRate
	}
	if cfg.SendBurst <= 0 {
		cfg.SendBurst = constants.DefaultSendBurst
	}

	dialer := &net.Dialer{Timeout: cfg.DialTimeout}
	c := &LineConnection{
		cfg:     cfg,
		queue:   NewQueue(),
		users:   NewUserSet(),
		backoff: NewBackoff(cfg.ReconnectPause),
		limiter: rate.NewLimiter(rate.Limit(cfg.SendRate), cfg.SendBurst),
		dial:    dialer.DialContext,
		sleep:   SleepContext,
		state:   Disconnected,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ShortID returns the connection label
func (c *LineConnection) ShortID() string { return c.cfg.ShortID }

// Nick returns the bot's nickname on this connection
func (c *LineConnection) Nick() string { return c.cfg.Nick }

// Enqueue queues msg for the writer
func (c *LineConnection) Enqueue(msg message.Message) {
	c.queue.Push(msg)
}

// Pending returns the number of queued outbound messages
func (c *LineConnection) Pending() int {
	return c.queue.Len()
}

// OnlineUsers returns the nicknames currently present
func (c *LineConnection) OnlineUsers() []string {
	return c.users.List()
}

// State returns the current lifecycle state
func (c *LineConnection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *LineConnection) setState(s State) {
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

// Run connects, serves and reconnects until ctx is cancelled
func (c *LineConnection) Run(ctx context.Context, handler Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	for {
		if ctx.Err() != nil {
			c.setState(Disconnected)
			return nil
		}

		c.setState(Connecting)
		conn, err := c.dial(ctx, "tcp", c.cfg.Address)
		if err != nil {
			if ctx.Err() != nil {
				c.setState(Disconnected)
				return nil
			}
			logger.WithFields(logrus.Fields{
				"connection": c.cfg.ShortID,
				"address":    c.cfg.Address,
				"error":      err,
			}).Warn("connection-dial-failed")
			if !c.waitReconnect(ctx) {
				return nil
			}
			continue
		}

		c.setState(Connected)
		c.backoff.Reset()

		err = c.serve(ctx, conn, handler)
		c.users.Clear()
		if ctx.Err() != nil {
			c.setState(Disconnected)
			return nil
		}

		logger.WithFields(logrus.Fields{
			"connection": c.cfg.ShortID,
			"error":      err,
		}).Warn("connection-session-lost")
		if !c.waitReconnect(ctx) {
			return nil
		}
	}
}

// waitReconnect applies the backoff; false means ctx ended while waiting
func (c *LineConnection) waitReconnect(ctx context.Context) bool {
	c.setState(Reconnecting)
	wait := c.backoff.Next()

	logger.WithFields(logrus.Fields{
		"connection": c.cfg.ShortID,
		"wait":       wait.String(),
	}).Info("connection-reconnect-scheduled")

	if err := c.sleep(ctx, wait); err != nil {
		c.setState(Disconnected)
		return false
	}
	return true
}

// serve runs one established session until the stream fails
func (c *LineConnection) serve(ctx context.Context, conn net.Conn, handler Handler) error {
	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stop := context.AfterFunc(sessCtx, func() {
		conn.Close()
	})
	defer stop()

	w := bufio.NewWriter(conn)
	if err := writeLine(w, loginRecord(c.cfg.Nick)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to send login: %w", err)
	}

	writerDone := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(logrus.Fields{
					"connection": c.cfg.ShortID,
					"panic":      r,
				}).Error("connection-writer-panic-recovered")
				conn.Close()
				writerDone <- fmt.Errorf("writer panic: %v", r)
			}
		}()
		err := c.writeLoop(sessCtx, w)
		if err != nil {
			// unblock the reader so the session ends
			conn.Close()
		}
		writerDone <- err
	}()

	readErr := c.readLoop(conn, handler)
	cancel()
	conn.Close()
	writeErr := <-writerDone

	if readErr != nil {
		return readErr
	}
	return writeErr
}

// readLoop dispatches inbound records until the stream ends
func (c *LineConnection) readLoop(r io.Reader, handler Handler) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), constants.MaxLineLength)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if IsPing(line) {
			c.Enqueue(message.NewRaw(recordPong))
			continue
		}

		msg, err := ParseLine(c, line)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"connection": c.cfg.ShortID,
				"line":       line,
				"error":      err,
			}).Warn("dropping-unparsable-line")
			continue
		}

		c.track(msg)
		c.deliver(handler, msg)
	}

	if err := scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}

// track keeps the online-user set in step with membership events
func (c *LineConnection) track(msg message.Message) {
	switch m := msg.(type) {
	case *message.UserJoined:
		c.users.Add(m.Nick())
	case *message.UserLeft:
		c.users.Remove(m.Nick())
	case *message.NickChange:
		c.users.Rename(m.Old(), m.New())
	}
}

func (c *LineConnection) deliver(handler Handler, msg message.Message) {
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

// writeLoop drains eligible queue items until ctx ends or a write fails.
// Items not fully written go back to the head of the queue for the next session.
func (c *LineConnection) writeLoop(ctx context.Context, w *bufio.Writer) error {
	for {
		batch := c.queue.Take(time.Now())
		for i, msg := range batch {
			for _, line := range EncodeLines(msg) {
				if err := c.limiter.Wait(ctx); err != nil {
					c.queue.Requeue(batch[i:])
					return nil
				}
				if err := writeLine(w, line); err != nil {
					c.queue.Requeue(batch[i:])
					return fmt.Errorf("failed to write to %s: %w", c.cfg.Address, err)
				}
			}
		}

		if !c.queue.Wait(ctx) {
			return nil
		}
	}
}

func writeLine(w *bufio.Writer, line string) error {
	if _, err := w.WriteString(line); err != nil {
		return err
	}
	if err := w.WriteByte('\n'); err != nil {
		return err
	}
	return w.Flush()
}

// SleepContext waits d or until ctx is done
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ Connection = (*LineConnection)(nil)
