// Package storage persists small pieces of relay state across restarts.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get for keys that were never stored
var ErrNotFound = errors.New("key not found")

// Key enumerates the values the relay persists
type Key string

const (
	// KeySeen holds the seen plugin's last-activity table
	KeySeen Key = "seen"
	// KeyLoadedPlugins holds the names of the currently loaded plugins
	KeyLoadedPlugins Key = "loaded_plugins"
)

// Keys returns every known key
func Keys() []Key {
	return []Key{KeySeen, KeyLoadedPlugins}
}

// Valid reports whether k is a known key
func (k Key) Valid() bool {
	for _, known := range Keys() {
		if k == known {
			return true
		}
	}
	return false
}

// Store is a key/value store for opaque values
type Store interface {
	Contains(key Key) bool
	Get(key Key) ([]byte, error)
	Put(key Key, value []byte) error
	Close() error
}

// GetJSON decodes the value stored under key into v
func GetJSON(s Store, key Key, v interface{}) error {
	data, err := s.Get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

// PutJSON encodes v and stores it under key
func PutJSON(s Store, key Key, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.Put(key, data)
}

func checkKey(key Key) error {
	if !key.Valid() {
		return fmt.Errorf("unknown storage key %q", key)
	}
	return nil
}
