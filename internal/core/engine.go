package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/keepmind9/relaybot/internal/connection"
	"github.com/keepmind9/relaybot/internal/dispatch"
	"github.com/keepmind9/relaybot/internal/logger"
	"github.com/keepmind9/relaybot/internal/message"
	"github.com/keepmind9/relaybot/internal/plugin"
	"github.com/keepmind9/relaybot/internal/storage"
	"github.com/keepmind9/relaybot/pkg/constants"
	"github.com/sirupsen/logrus"
)

var (
	// ErrDuplicateConnection is returned when a short id is already in use
	ErrDuplicateConnection = errors.New("duplicate connection")
	// ErrNoConnections is returned by Run when nothing was added
	ErrNoConnections = errors.New("no connections configured")
	// ErrStopped is returned once the engine has been stopped
	ErrStopped = errors.New("engine stopped")
)

// Engine is the bot facade: it owns the connections, the dispatch registry,
// the plugin manager and the persistent store, and is the plugin.Host every
// parser talks to.
type Engine struct {
	config     *Config
	configPath string
	registry   *dispatch.Registry
	plugins    *plugin.Manager
	catalog    *plugin.Catalog
	store      storage.Store
	started    time.Time

	connMu sync.RWMutex
	conns  []connection.Connection
	byID   map[string]connection.Connection

	ready      chan struct{}
	wg         sync.WaitGroup
	hookServer *http.Server
	ctx        context.Context
	cancel     context.CancelFunc
	stopOnce   sync.Once
}

// EngineOption customizes an Engine
type EngineOption func(*Engine)

// WithRegistry replaces the dispatch registry
func WithRegistry(r *dispatch.Registry) EngineOption {
	return func(e *Engine) {
		e.registry = r
	}
}

// WithConfigPath enables config hot reload from path when watch_config is set
func WithConfigPath(path string) EngineOption {
	return func(e *Engine) {
		e.configPath = path
	}
}

// NewEngine creates an engine. store may be nil, in which case state is kept
// in memory.
func NewEngine(config *Config, catalog *plugin.Catalog, store storage.Store, opts ...EngineOption) *Engine {
	ctx, cancel := context.WithCancel(context.Background())

	if store == nil {
		store = storage.NewMemoryStore()
	}

	e := &Engine{
		config:   config,
		catalog:  catalog,
		store:    store,
		registry: dispatch.NewRegistry(),
		byID:     make(map[string]connection.Connection),
		ready:    make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.plugins = plugin.NewManager(catalog, e)
	return e
}

// AddConnection registers conn and starts it in the background
func (e *Engine) AddConnection(conn connection.Connection) error {
	if conn == nil {
		return errors.New("connection is nil")
	}
	id := conn.ShortID()
	e.connMu.Lock()
	if e.ctx.Err() != nil {
		e.connMu.Unlock()
		return ErrStopped
	}
	if _, exists := e.byID[id]; exists {
		e.connMu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateConnection, id)
	}
	e.byID[id] = conn
	e.conns = append(e.conns, conn)
	e.wg.Add(1)
	e.connMu.Unlock()

	logger.WithField("connection", id).Info("connection-added")

	go func() {
		defer e.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(logrus.Fields{
					"connection": id,
					"panic":      r,
				}).Error("connection-panic-recovered")
			}
		}()

		if err := conn.Run(e.ctx, e.Process); err != nil {
			logger.WithFields(logrus.Fields{
				"connection": id,
				"error":      err,
			}).Error("connection-stopped-with-error")
			return
		}
		logger.WithField("connection", id).Info("connection-stopped")
	}()
	return nil
}

// Connection returns the connection with the given short id
func (e *Engine) Connection(id string) (connection.Connection, bool) {
	e.connMu.RLock()
	defer e.connMu.RUnlock()
	conn, ok := e.byID[id]
	return conn, ok
}

// Connections returns the connections in the order they were added
func (e *Engine) Connections() []connection.Connection {
	e.connMu.RLock()
	defer e.connMu.RUnlock()
	return append([]connection.Connection(nil), e.conns...)
}

// Broadcast queues msg on every connection
func (e *Engine) Broadcast(msg message.Message) {
	e.BroadcastExcept(msg, "")
}

// BroadcastExcept queues msg on every connection but the one called shortID
func (e *Engine) BroadcastExcept(msg message.Message, shortID string) {
	for _, conn := range e.Connections() {
		if shortID != "" && conn.ShortID() == shortID {
			continue
		}
		conn.Enqueue(msg)
	}
}

// Process dispatches an inbound event and delivers its responses
func (e *Engine) Process(msg message.Message) {
	e.registry.Process(msg)
}

// Register subscribes fn to messages of kind on behalf of owner
func (e *Engine) Register(kind message.Kind, owner string, fn dispatch.Subscriber) *dispatch.Subscription {
	return e.registry.Register(kind, owner, fn)
}

// Deregister removes one subscription
func (e *Engine) Deregister(sub *dispatch.Subscription) bool {
	return e.registry.Deregister(sub)
}

// DeregisterOwner removes every subscription of owner
func (e *Engine) DeregisterOwner(owner string) int {
	return e.registry.DeregisterOwner(owner)
}

// Plugins returns the loaded plugin names, sorted
func (e *Engine) Plugins() []string {
	return e.plugins.List()
}

// Catalog returns the discoverable plugins
func (e *Engine) Catalog() *plugin.Catalog {
	return e.catalog
}

// Storage returns the persistent store
func (e *Engine) Storage() storage.Store {
	return e.store
}

// Load loads (or reloads) a plugin and persists the loaded set. A failed
// reload has already destroyed the old instance, so the set is persisted
// either way.
func (e *Engine) Load(name string) error {
	err := e.plugins.Add(name)
	if perr := e.persistPlugins(); perr != nil {
		return errors.Join(err, perr)
	}
	return err
}

// Unload unloads a plugin and persists the loaded set
func (e *Engine) Unload(name string) error {
	e.plugins.Remove(name)
	return e.persistPlugins()
}

// SyncPlugins makes the loaded set equal to want and persists it
func (e *Engine) SyncPlugins(want []string) error {
	err := e.plugins.Sync(want)
	if perr := e.persistPlugins(); perr != nil {
		return errors.Join(err, perr)
	}
	return err
}

func (e *Engine) persistPlugins() error {
	if err := storage.PutJSON(e.store, storage.KeyLoadedPlugins, e.plugins.List()); err != nil {
		logger.WithField("error", err).Warn("failed-to-persist-plugin-set")
		return fmt.Errorf("failed to persist plugin set: %w", err)
	}
	return nil
}

// startupPlugins returns the persisted plugin set, or the configured one
// when nothing was persisted yet
func (e *Engine) startupPlugins() []string {
	var saved []string
	err := storage.GetJSON(e.store, storage.KeyLoadedPlugins, &saved)
	switch {
	case err == nil:
		logger.WithField("plugins", saved).Info("restoring-persisted-plugin-set")
		return saved
	case errors.Is(err, storage.ErrNotFound):
	default:
		logger.WithField("error", err).Warn("failed-to-read-persisted-plugin-set")
	}
	return e.config.Plugins
}

// Ready is closed once Run has loaded the startup plugins and started the
// hook server
func (e *Engine) Ready() <-chan struct{} {
	return e.ready
}

// Uptime returns how long Run has been going
func (e *Engine) Uptime() time.Duration {
	select {
	case <-e.ready:
		return time.Since(e.started)
	default:
		return 0
	}
}

// Run loads the startup plugins, starts the hook server and the config
// watcher, and blocks until ctx is cancelled or Stop is called
func (e *Engine) Run(ctx context.Context) error {
	logger.Info("starting-relaybot-engine")

	if len(e.Connections()) == 0 {
		return ErrNoConnections
	}
	e.started = time.Now()

	if err := e.SyncPlugins(e.startupPlugins()); err != nil {
		// a broken plugin never stops the relay
		logger.WithField("error", err).Warn("some-plugins-failed-to-load")
	}

	if e.config.HookServer.Enabled {
		if err := e.startHookServer(); err != nil {
			e.Stop()
			return err
		}
	}

	if e.config.WatchConfig && e.configPath != "" {
		if err := e.watchConfig(e.configPath); err != nil {
			logger.WithFields(logrus.Fields{
				"path":  e.configPath,
				"error": err,
			}).Warn("config-watch-unavailable")
		}
	}

	logger.WithFields(logrus.Fields{
		"connections": len(e.Connections()),
		"plugins":     e.Plugins(),
	}).Info("engine-running")
	close(e.ready)

	select {
	case <-ctx.Done():
	case <-e.ctx.Done():
	}
	return e.Stop()
}

// Stop shuts everything down. It is safe to call more than once.
func (e *Engine) Stop() error {
	var err error
	e.stopOnce.Do(func() {
		logger.Info("stopping-relaybot-engine")
		// no connection may be added once the wait group is being drained
		e.connMu.Lock()
		e.cancel()
		e.connMu.Unlock()

		if e.hookServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			if serr := e.hookServer.Shutdown(ctx); serr != nil {
				logger.Errorf("failed-to-gracefully-stop-hook-server: %v", serr)
				e.hookServer.Close()
			}
			cancel()
		}

		done := make(chan struct{})
		go func() {
			e.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(constants.ShutdownTimeout):
			logger.Warn("connections-did-not-stop-in-time")
		}

		e.plugins.Close()

		if cerr := e.store.Close(); cerr != nil {
			logger.WithField("error", cerr).Error("failed-to-close-storage")
			err = fmt.Errorf("failed to close storage: %w", cerr)
		}
		logger.Info("engine-stopped")
	})
	return err
}
