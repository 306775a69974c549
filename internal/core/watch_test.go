package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/keepmind9/relaybot/internal/plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, path, plugins string) {
	t.Helper()
	data := minimalConfig + "plugins: " + plugins + "\nwatch_config: true\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))
}

func TestWatchConfig_SyncsPlugins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "[greet]")

	config, err := LoadConfig(path)
	require.NoError(t, err)

	e := NewEngine(config, testCatalog(t), nil, WithConfigPath(path))
	require.NoError(t, e.AddConnection(newFakeConn("lan")))
	t.Cleanup(func() { e.Stop() })

	_, done := runEngine(t, e)
	assert.Equal(t, []string{"greet"}, e.Plugins())

	writeConfig(t, path, "[seen, echo]")
	require.Eventually(t, func() bool {
		got := e.Plugins()
		return len(got) == 2 && got[0] == "echo" && got[1] == "seen"
	}, 5*time.Second, 50*time.Millisecond)

	// a broken file keeps the current set
	require.NoError(t, os.WriteFile(path, []byte("connections: [\n"), 0644))
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, []string{"echo", "seen"}, e.Plugins())

	require.NoError(t, e.Stop())
	require.NoError(t, <-done)
}

func TestReloadConfig_MissingFile(t *testing.T) {
	e := newTestEngine(t, testConfig(), nil, newFakeConn("lan"))
	require.NoError(t, e.Load("greet"))

	e.reloadConfig(filepath.Join(t.TempDir(), "gone.yaml"))
	assert.Equal(t, []string{"greet"}, e.Plugins())
}

func TestWatchConfig_MissingDirectory(t *testing.T) {
	e := newTestEngine(t, testConfig(), nil, newFakeConn("lan"))
	assert.Error(t, e.watchConfig(filepath.Join(t.TempDir(), "nope", "config.yaml")))
}

// gated blocks in Init until released
type gated struct {
	entered   chan struct{}
	release   chan struct{}
	destroyed chan struct{}
}

func (g *gated) Init(plugin.Host) error {
	close(g.entered)
	<-g.release
	return nil
}

func (g *gated) Destroy(plugin.Host) error {
	close(g.destroyed)
	return nil
}

func TestReloadIfRunning_SkippedAfterStop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "[greet]")

	e := newTestEngine(t, testConfig(), nil, newFakeConn("lan"))
	require.NoError(t, e.Stop())

	assert.False(t, e.reloadIfRunning(path))
	assert.Empty(t, e.Plugins())
}

func TestStop_WaitsForReloadInFlight(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "[gated]")

	g := &gated{entered: make(chan struct{}), release: make(chan struct{}), destroyed: make(chan struct{})}
	catalog := testCatalog(t)
	require.NoError(t, catalog.Register(plugin.Descriptor{Name: "gated", New: func() plugin.Parser { return g }}))

	e := NewEngine(testConfig(), catalog, nil)
	require.NoError(t, e.AddConnection(newFakeConn("lan")))
	t.Cleanup(func() { e.Stop() })

	reloaded := make(chan bool, 1)
	go func() { reloaded <- e.reloadIfRunning(path) }()
	<-g.entered

	stopped := make(chan error, 1)
	go func() { stopped <- e.Stop() }()
	select {
	case <-stopped:
		t.Fatal("Stop returned while a reload was still loading plugins")
	case <-time.After(200 * time.Millisecond):
	}

	close(g.release)
	assert.True(t, <-reloaded)
	require.NoError(t, <-stopped)

	// the plugin the reload loaded is unloaded by Stop, not leaked
	select {
	case <-g.destroyed:
	case <-time.After(time.Second):
		t.Fatal("plugin loaded during shutdown was never destroyed")
	}
	assert.Empty(t, e.Plugins())
}
