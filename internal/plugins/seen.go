package plugins

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/keepmind9/relaybot/internal/dispatch"
	"github.com/keepmind9/relaybot/internal/logger"
	"github.com/keepmind9/relaybot/internal/message"
	"github.com/keepmind9/relaybot/internal/plugin"
	"github.com/keepmind9/relaybot/internal/storage"
	"github.com/keepmind9/relaybot/pkg/constants"
	"github.com/sirupsen/logrus"
)

// SeenName is the catalog name of the seen parser
const SeenName = "seen"

// SeenEntry is the last recorded activity of one nick
type SeenEntry struct {
	At         time.Time `json:"at"`
	Connection string    `json:"connection"`
	Action     string    `json:"action"`
}

// Seen remembers when each nick was last active and answers "!seen <nick>".
//
// The table is written to storage by a background task every flush interval
// and once more on Destroy.
type Seen struct {
	interval time.Duration
	now      func() time.Time

	mu    sync.Mutex
	last  map[string]SeenEntry
	dirty bool

	store  storage.Store
	subs   []*dispatch.Subscription
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSeen creates the parser
func NewSeen() *Seen {
	return &Seen{
		interval: constants.SeenFlushInterval,
		now:      time.Now,
		last:     make(map[string]SeenEntry),
	}
}

// Init restores the table, subscribes and starts the flush task
func (s *Seen) Init(host plugin.Host) error {
	s.store = host.Storage()
	if s.store != nil {
		var saved map[string]SeenEntry
		err := storage.GetJSON(s.store, storage.KeySeen, &saved)
		switch {
		case err == nil:
			s.mu.Lock()
			for nick, entry := range saved {
				s.last[strings.ToLower(nick)] = entry
			}
			s.mu.Unlock()
		case errors.Is(err, storage.ErrNotFound):
		default:
			return fmt.Errorf("failed to restore seen table: %w", err)
		}
	}

	query, err := plugin.Match(host, SeenName, plugin.Rule{
		Pattern: `^!seen\s+(\S+)\s*$`,
		Handle: func(msg *message.Text, groups []string) error {
			msg.Respond(message.Reply(s.describe(groups[1])))
			return nil
		},
	})
	if err != nil {
		return err
	}

	// the query runs first so asking about yourself reports the previous activity
	s.subs = append(s.subs, query,
		host.Register(message.KindText, SeenName, s.onText),
		host.Register(message.KindUserJoined, SeenName, s.onMembership),
		host.Register(message.KindUserLeft, SeenName, s.onMembership),
		host.Register(message.KindNickChange, SeenName, s.onMembership),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.flushLoop(ctx)
	return nil
}

func (s *Seen) onText(msg message.Message) error {
	if text, ok := msg.(*message.Text); ok {
		s.record(text.Nick(), msg, "saying \""+flatten(text.Text())+"\"")
	}
	return nil
}

func (s *Seen) onMembership(msg message.Message) error {
	switch m := msg.(type) {
	case *message.UserJoined:
		s.record(m.Nick(), msg, "joining")
	case *message.UserLeft:
		s.record(m.Nick(), msg, "leaving")
	case *message.NickChange:
		s.record(m.Old(), msg, "changing nick to "+m.New())
		s.record(m.New(), msg, "changing nick from "+m.Old())
	}
	return nil
}

func (s *Seen) record(nick string, msg message.Message, action string) {
	var conn string
	if origin := msg.Origin(); origin != nil {
		conn = origin.ShortID()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[strings.ToLower(nick)] = SeenEntry{At: s.now(), Connection: conn, Action: action}
	s.dirty = true
}

// describe answers a query for nick
func (s *Seen) describe(nick string) string {
	s.mu.Lock()
	entry, ok := s.last[strings.ToLower(nick)]
	s.mu.Unlock()

	if !ok {
		return fmt.Sprintf("I have not seen %s", nick)
	}
	ago := s.now().Sub(entry.At).Round(time.Second)
	return fmt.Sprintf("%s was last seen %s ago on %s, %s", nick, ago, entry.Connection, entry.Action)
}

// Lookup returns the entry recorded for nick
func (s *Seen) Lookup(nick string) (SeenEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.last[strings.ToLower(nick)]
	return entry, ok
}

func (s *Seen) flushLoop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.flush()
		}
	}
}

// flush writes the table if it changed since the last write
func (s *Seen) flush() {
	if s.store == nil {
		return
	}

	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return
	}
	snapshot := make(map[string]SeenEntry, len(s.last))
	for nick, entry := range s.last {
		snapshot[nick] = entry
	}
	s.dirty = false
	s.mu.Unlock()

	if err := storage.PutJSON(s.store, storage.KeySeen, snapshot); err != nil {
		logger.WithFields(logrus.Fields{
			"plugin": SeenName,
			"error":  err,
		}).Warn("seen-flush-failed")
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
	}
}

// Destroy releases the subscriptions, stops the flush task and writes the table
func (s *Seen) Destroy(host plugin.Host) error {
	for _, sub := range s.subs {
		host.Deregister(sub)
	}
	s.subs = nil

	if s.cancel != nil {
		s.cancel()
		<-s.done
		s.cancel = nil
		s.flush()
	}
	return nil
}
