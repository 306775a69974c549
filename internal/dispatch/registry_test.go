package dispatch

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/keepmind9/relaybot/internal/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockSender records outbound messages for a fake connection
type mockSender struct {
	mu   sync.Mutex
	sent []message.Message
}

func (m *mockSender) ShortID() string { return "mock" }
func (m *mockSender) Nick() string    { return "relaybot" }

func (m *mockSender) Enqueue(msg message.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
}

func (m *mockSender) Sent() []message.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]message.Message, len(m.sent))
	copy(out, m.sent)
	return out
}

func texts(msgs []message.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Text())
	}
	return out
}

func TestProcess_NoSubscribers(t *testing.T) {
	r := NewRegistry()
	origin := &mockSender{}
	msg := message.NewText(origin, "alice", "hi")

	assert.NotPanics(t, func() { r.Process(msg) })

	assert.Empty(t, msg.Responses())
	assert.True(t, msg.Concluded())
	assert.Empty(t, origin.Sent())
}

func TestProcess_ExactKindOnly(t *testing.T) {
	r := NewRegistry()
	called := 0
	r.Register(message.KindUserJoined, "greet", func(message.Message) error {
		called++
		return nil
	})

	r.Process(message.NewText(&mockSender{}, "alice", "hi"))
	assert.Equal(t, 0, called)

	r.Process(message.NewUserJoined(&mockSender{}, "alice"))
	assert.Equal(t, 1, called)
}

func TestProcess_ConcludesExactlyOnce(t *testing.T) {
	r := NewRegistry()
	origin := &mockSender{}
	r.Register(message.KindText, "echo", func(m message.Message) error {
		m.Respond(message.Reply("echo: " + m.Text()))
		return nil
	})

	msg := message.NewText(origin, "alice", "hi")
	r.Process(msg)
	require.True(t, msg.Concluded())

	msg.Respond(message.Reply("too late"))
	msg.Conclude()

	assert.Equal(t, []string{"echo: hi"}, texts(origin.Sent()))
}

func TestProcess_ResponsesFollowRegistrationOrder(t *testing.T) {
	r := NewRegistry(WithPlaceholderDelay(0))
	origin := &mockSender{}

	r.Register(message.KindText, "a", func(m message.Message) error {
		m.Respond(message.Reply("m1"))
		return nil
	})
	r.Register(message.KindText, "broken", func(message.Message) error {
		panic("boom")
	})
	r.Register(message.KindText, "b", func(m message.Message) error {
		m.Respond(message.Reply("m2"))
		return nil
	})

	r.Process(message.NewText(origin, "alice", "hi"))

	assert.Equal(t, []string{"m1", Placeholder("broken"), "m2"}, texts(origin.Sent()))
}

func TestProcess_FailingSubscriberIsIsolated(t *testing.T) {
	tests := []struct {
		name string
		fn   Subscriber
	}{
		{"returns error", func(message.Message) error { return errors.New("bad input") }},
		{"panics", func(message.Message) error { panic("nil map") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			origin := &mockSender{}
			ranAfter := false

			r.Register(message.KindText, "faulty", tt.fn)
			r.Register(message.KindText, "healthy", func(message.Message) error {
				ranAfter = true
				return nil
			})

			msg := message.NewText(origin, "alice", "hi")
			r.Process(msg)

			assert.True(t, ranAfter)
			sent := origin.Sent()
			require.Len(t, sent, 1)
			assert.Equal(t, Placeholder("faulty"), sent[0].Text())
			assert.Equal(t, message.KindDelayed, sent[0].Kind())
		})
	}
}

func TestRegister_SameSubscriberTwiceRunsTwice(t *testing.T) {
	r := NewRegistry()
	calls := 0
	fn := func(message.Message) error {
		calls++
		return nil
	}

	first := r.Register(message.KindText, "dup", fn)
	second := r.Register(message.KindText, "dup", fn)
	assert.NotEqual(t, first.ID(), second.ID())

	r.Process(message.NewText(&mockSender{}, "alice", "hi"))
	assert.Equal(t, 2, calls)

	assert.True(t, r.Deregister(first))
	r.Process(message.NewText(&mockSender{}, "alice", "hi"))
	assert.Equal(t, 3, calls)
}

func TestDeregister(t *testing.T) {
	r := NewRegistry()
	sub := r.Register(message.KindText, "a", func(message.Message) error { return nil })
	require.Equal(t, 1, r.Count(message.KindText))

	assert.True(t, r.Deregister(sub))
	assert.False(t, sub.Active())
	assert.Equal(t, 0, r.Count(message.KindText))
	assert.False(t, r.Deregister(sub))
	assert.False(t, r.Deregister(nil))
}

func TestDeregisterOwner(t *testing.T) {
	r := NewRegistry()
	noop := func(message.Message) error { return nil }
	r.Register(message.KindText, "seen", noop)
	r.Register(message.KindUserJoined, "seen", noop)
	r.Register(message.KindText, "relay", noop)

	assert.Equal(t, 2, r.DeregisterOwner("seen"))
	assert.Equal(t, map[string]int{"relay": 1}, r.Owners())
	assert.Equal(t, 0, r.DeregisterOwner("seen"))
}

func TestProcess_DeregisterDuringFanOut(t *testing.T) {
	r := NewRegistry()
	laterRan := false

	var later *Subscription
	r.Register(message.KindText, "control", func(message.Message) error {
		r.Deregister(later)
		return nil
	})
	later = r.Register(message.KindText, "victim", func(message.Message) error {
		laterRan = true
		return nil
	})

	done := make(chan struct{})
	go func() {
		r.Process(message.NewText(&mockSender{}, "alice", "unload victim"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Process deadlocked when a subscriber deregistered")
	}
	assert.False(t, laterRan)
}

func TestProcess_RegisterDuringFanOutAppliesNextEvent(t *testing.T) {
	r := NewRegistry()
	added := 0
	r.Register(message.KindText, "loader", func(message.Message) error {
		if r.Count(message.KindText) == 1 {
			r.Register(message.KindText, "new", func(message.Message) error {
				added++
				return nil
			})
		}
		return nil
	})

	r.Process(message.NewText(&mockSender{}, "alice", "one"))
	assert.Equal(t, 0, added)

	r.Process(message.NewText(&mockSender{}, "alice", "two"))
	assert.Equal(t, 1, added)
}

func TestProcess_ConcurrentCallsSerialize(t *testing.T) {
	r := NewRegistry()
	var inFlight, maxInFlight int
	var mu sync.Mutex

	r.Register(message.KindText, "slow", func(message.Message) error {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Process(message.NewText(&mockSender{}, "alice", "hi"))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInFlight)
}
