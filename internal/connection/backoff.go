package connection

import (
	"sync"
	"time"

	"github.com/keepmind9/relaybot/pkg/constants"
)

// Backoff is a binary reconnect policy: the first failure is retried
// immediately, every further consecutive failure waits the fixed pause.
type Backoff struct {
	mu         sync.Mutex
	pause      time.Duration
	failedOnce bool
}

// NewBackoff creates a policy with the given pause; zero means the default
func NewBackoff(pause time.Duration) *Backoff {
	if pause <= 0 {
		pause = constants.DefaultReconnectPause
	}
	return &Backoff{pause: pause}
}

// Next records a failure and returns how long to wait before retrying
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.failedOnce {
		b.failedOnce = true
		return 0
	}
	return b.pause
}

// Reset returns to immediate retry; call it once a session was established
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failedOnce = false
}

// Pause returns the fixed long wait
func (b *Backoff) Pause() time.Duration {
	return b.pause
}
