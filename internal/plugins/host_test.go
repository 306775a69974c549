package plugins

import (
	"context"
	"sync"
	"testing"

	"github.com/keepmind9/relaybot/internal/connection"
	"github.com/keepmind9/relaybot/internal/dispatch"
	"github.com/keepmind9/relaybot/internal/message"
	"github.com/keepmind9/relaybot/internal/plugin"
	"github.com/keepmind9/relaybot/internal/storage"
	"github.com/stretchr/testify/require"
)

// fakeConn is an in-memory connection
type fakeConn struct {
	id    string
	nick  string
	users []string

	mu   sync.Mutex
	sent []message.Message
}

func newFakeConn(id string, users ...string) *fakeConn {
	return &fakeConn{id: id, nick: "relaybot", users: users}
}

func (c *fakeConn) ShortID() string { return c.id }
func (c *fakeConn) Nick() string { return c.nick }
func (c *fakeConn) State() connection.State { return connection.Connected }
func (c *fakeConn) OnlineUsers() []string { return c.users }
func (c *fakeConn) Run(context.Context, connection.Handler) error { return nil }

func (c *fakeConn) Enqueue(msg message.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
}

func (c *fakeConn) texts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.sent))
	for _, m := range c.sent {
		out = append(out, m.Text())
	}
	return out
}

func (c *fakeConn) messages() []message.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]message.Message(nil), c.sent...)
}

// testHost wires a real registry and manager to fake connections
type testHost struct {
	registry *dispatch.Registry
	manager  *plugin.Manager
	store    storage.Store
	conns    []*fakeConn
}

func newTestHost(t *testing.T, conns ...*fakeConn) *testHost {
	t.Helper()
	catalog := plugin.NewCatalog()
	require.NoError(t, RegisterBuiltins(catalog))

	h := &testHost{
		registry: dispatch.NewRegistry(),
		store:    storage.NewMemoryStore(),
		conns:    conns,
	}
	h.manager = plugin.NewManager(catalog, h)
	t.Cleanup(h.manager.Close)
	return h
}

func (h *testHost) Register(kind message.Kind, owner string, fn dispatch.Subscriber) *dispatch.Subscription {
	return h.registry.Register(kind, owner, fn)
}

func (h *testHost) Deregister(sub *dispatch.Subscription) bool { return h.registry.Deregister(sub) }
func (h *testHost) DeregisterOwner(owner string) int { return h.registry.DeregisterOwner(owner) }

func (h *testHost) Broadcast(msg message.Message) {
	h.BroadcastExcept(msg, "")
}

func (h *testHost) BroadcastExcept(msg message.Message, shortID string) {
	for _, c := range h.conns {
		if c.id != shortID {
			c.Enqueue(msg)
		}
	}
}

func (h *testHost) Connections() []connection.Connection {
	out := make([]connection.Connection, 0, len(h.conns))
	for _, c := range h.conns {
		out = append(out, c)
	}
	return out
}

func (h *testHost) Plugins() []string { return h.manager.List() }
func (h *testHost) Storage() storage.Store { return h.store }
func (h *testHost) Load(name string) error { return h.manager.Add(name) }

func (h *testHost) Unload(name string) error {
	h.manager.Remove(name)
	return nil
}

func (h *testHost) say(conn *fakeConn, nick, text string) {
	h.registry.Process(message.NewText(conn, nick, text))
}
