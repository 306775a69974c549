package connection

import (
	"context"
	"testing"
	"time"

	"github.com/keepmind9/relaybot/internal/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_TakePreservesOrder(t *testing.T) {
	q := NewQueue()
	q.Push(message.Reply("a"))
	q.Push(message.NewRaw("b"))
	q.Push(message.Reply("c"))
	q.Push(nil)

	taken := q.Take(time.Now())
	require.Len(t, taken, 3)
	assert.Equal(t, "a", taken[0].Text())
	assert.Equal(t, "b", taken[1].Text())
	assert.Equal(t, "c", taken[2].Text())
	assert.Equal(t, 0, q.Len())
	assert.Nil(t, q.Take(time.Now()))
}

func TestQueue_DelayedItemDoesNotBlockOthers(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	q := NewQueue()
	q.Push(message.NewDelayedAt("typing", start, 3000*time.Millisecond))
	q.Push(message.Reply("x"))

	taken := q.Take(start)
	require.Len(t, taken, 1)
	assert.Equal(t, "x", taken[0].Text())
	assert.Equal(t, 1, q.Len())

	assert.Empty(t, q.Take(start.Add(2999*time.Millisecond)))

	next, ok := q.NextReady()
	require.True(t, ok)
	assert.Equal(t, start.Add(3*time.Second), next)

	taken = q.Take(start.Add(3 * time.Second))
	require.Len(t, taken, 1)
	assert.Equal(t, "typing", taken[0].Text())
}

func TestQueue_EligibleItemsKeepRelativeOrder(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	q := NewQueue()
	q.Push(message.NewDelayedAt("late", start, time.Minute))
	q.Push(message.NewDelayedAt("early", start, time.Second))
	q.Push(message.Reply("now"))

	taken := q.Take(start.Add(2 * time.Second))
	require.Len(t, taken, 2)
	assert.Equal(t, "early", taken[0].Text())
	assert.Equal(t, "now", taken[1].Text())

	next, ok := q.NextReady()
	require.True(t, ok)
	assert.Equal(t, start.Add(time.Minute), next)
}

func TestQueue_ReadySignal(t *testing.T) {
	q := NewQueue()
	q.Push(message.Reply("a"))
	q.Push(message.Reply("b"))

	select {
	case <-q.Ready():
	default:
		t.Fatal("expected ready signal after push")
	}

	_, ok := q.NextReady()
	assert.False(t, ok)
}

func TestUserSet(t *testing.T) {
	u := NewUserSet()
	u.Add("carol")
	u.Add("alice")
	u.Add("")

	assert.Equal(t, []string{"alice", "carol"}, u.List())
	assert.True(t, u.Contains("alice"))

	u.Rename("alice", "alicia")
	assert.False(t, u.Contains("alice"))
	assert.True(t, u.Contains("alicia"))

	assert.True(t, u.Remove("carol"))
	assert.False(t, u.Remove("carol"))

	u.Rename("ghost", "dave")
	assert.Equal(t, []string{"alicia", "dave"}, u.List())

	u.Clear()
	assert.Empty(t, u.List())
}

func TestBackoff_IsBinary(t *testing.T) {
	b := NewBackoff(5 * time.Minute)

	assert.Equal(t, time.Duration(0), b.Next())
	assert.Equal(t, 5*time.Minute, b.Next())
	assert.Equal(t, 5*time.Minute, b.Next())

	b.Reset()
	assert.Equal(t, time.Duration(0), b.Next())
	assert.Equal(t, 5*time.Minute, b.Next())
}

func TestBackoff_DefaultPause(t *testing.T) {
	assert.Equal(t, 5*time.Minute, NewBackoff(0).Pause())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "disconnected", Disconnected.String())
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "connected", Connected.String())
	assert.Equal(t, "reconnecting", Reconnecting.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestQueue_WaitWakesForDeferredItem(t *testing.T) {
	q := NewQueue()
	q.Push(message.NewDelayed("soon", 50*time.Millisecond))
	// consume the push signal so only the timer can wake us
	<-q.Ready()

	start := time.Now()
	assert.True(t, q.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	assert.Len(t, q.Take(time.Now()), 1)
}

func TestQueue_WaitStopsOnCancel(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, q.Wait(ctx))
}

func TestQueue_RequeueGoesToHead(t *testing.T) {
	q := NewQueue()
	q.Push(message.Reply("c"))

	q.Requeue([]message.Message{message.Reply("a"), message.Reply("b")})
	q.Requeue(nil)

	select {
	case <-q.Ready():
	default:
		t.Fatal("requeue did not signal the writer")
	}

	taken := q.Take(time.Now())
	require.Len(t, taken, 3)
	assert.Equal(t, "a", taken[0].Text())
	assert.Equal(t, "b", taken[1].Text())
	assert.Equal(t, "c", taken[2].Text())
}
