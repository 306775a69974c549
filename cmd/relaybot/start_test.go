package main

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/keepmind9/relaybot/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunRelay_RejectsBadConfig(t *testing.T) {
	err := runRelay(context.Background(), writeFile(t, "nick: lonely\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one connection")

	err = runRelay(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRunRelay_RunsUntilCancelled(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			defer c.Close()
		}
	}()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "state.db")
	path := writeFile(t, `
connections:
  - id: lan
    type: line
    address: "`+ln.Addr().String()+`"
plugins: [greet, seen]
storage:
  path: "`+dbPath+`"
logging:
  level: error
`)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runRelay(ctx, path) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(dbPath)
		return err == nil
	}, 3*time.Second, 20*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("relay did not stop")
	}

	store, err := storage.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()
	var saved []string
	require.NoError(t, storage.GetJSON(store, storage.KeyLoadedPlugins, &saved))
	assert.Equal(t, []string{"greet", "seen"}, saved)
}

func TestOpenStore(t *testing.T) {
	store, err := openStore("")
	require.NoError(t, err)
	_, ok := store.(*storage.MemoryStore)
	assert.True(t, ok)

	store, err = openStore(filepath.Join(t.TempDir(), "x", "state.db"))
	require.NoError(t, err)
	assert.NoError(t, store.Close())
}
