package connection

import (
	"sort"
	"sync"
)

// UserSet tracks the nicknames present on a connection
type UserSet struct {
	mu    sync.Mutex
	nicks map[string]struct{}
}

// NewUserSet creates an empty user set
func NewUserSet() *UserSet {
	return &UserSet{nicks: make(map[string]struct{})}
}

// Add records nick as online
func (u *UserSet) Add(nick string) {
	if nick == "" {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.nicks[nick] = struct{}{}
}

// Remove drops nick and reports whether it was present
func (u *UserSet) Remove(nick string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.nicks[nick]; !ok {
		return false
	}
	delete(u.nicks, nick)
	return true
}

// Rename replaces oldNick with newNick. An unknown oldNick still adds newNick.
func (u *UserSet) Rename(oldNick, newNick string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.nicks, oldNick)
	if newNick != "" {
		u.nicks[newNick] = struct{}{}
	}
}

// Contains reports whether nick is online
func (u *UserSet) Contains(nick string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	_, ok := u.nicks[nick]
	return ok
}

// Clear forgets everybody, used when a session is lost
func (u *UserSet) Clear() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.nicks = make(map[string]struct{})
}

// List returns the online nicknames sorted
func (u *UserSet) List() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]string, 0, len(u.nicks))
	for nick := range u.nicks {
		out = append(out, nick)
	}
	sort.Strings(out)
	return out
}
