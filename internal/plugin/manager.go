package plugin

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/keepmind9/relaybot/internal/logger"
	"github.com/sirupsen/logrus"
)

// Manager owns the live parser instances.
//
// Lifecycle operations are serialized by opMu. The live table has its own
// lock so parsers may call Host.Plugins from their hooks.
type Manager struct {
	catalog *Catalog
	host    Host

	opMu sync.Mutex

	mu   sync.RWMutex
	live map[string]Parser
}

// NewManager creates a manager that builds parsers from catalog and hands them host
func NewManager(catalog *Catalog, host Host) *Manager {
	return &Manager{
		catalog: catalog,
		host:    host,
		live:    make(map[string]Parser),
	}
}

// Add instantiates and initializes the parser called name. A live instance
// of the same name is destroyed first. Failures are logged and returned; the
// manager stays usable and the parser is left unloaded.
func (m *Manager) Add(name string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	desc, ok := m.catalog.Lookup(name)
	if !ok {
		logger.WithField("plugin", name).Warn("plugin-not-found")
		return fmt.Errorf("%w: %s", ErrUnknownPlugin, name)
	}

	if old, loaded := m.get(name); loaded {
		logger.WithField("plugin", name).Info("plugin-reloading")
		m.destroy(name, old)
	}

	p, err := construct(desc)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"plugin": name,
			"error":  err,
		}).Error("plugin-construction-failed")
		return fmt.Errorf("failed to construct plugin %s: %w", name, err)
	}

	if err := guard(func() error { return p.Init(m.host) }); err != nil {
		logger.WithFields(logrus.Fields{
			"plugin": name,
			"error":  err,
		}).Error("plugin-init-failed")
		// release whatever Init managed to register
		m.destroy(name, p)
		return fmt.Errorf("failed to initialize plugin %s: %w", name, err)
	}

	m.mu.Lock()
	m.live[name] = p
	m.mu.Unlock()

	logger.WithField("plugin", name).Info("plugin-loaded")
	return nil
}

// Remove destroys the live parser called name. Removing a parser that is not
// loaded only logs.
func (m *Manager) Remove(name string) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	p, ok := m.get(name)
	if !ok {
		logger.WithField("plugin", name).Info("plugin-not-loaded")
		return
	}
	m.destroy(name, p)
	logger.WithField("plugin", name).Info("plugin-unloaded")
}

// Loaded reports whether name is live
func (m *Manager) Loaded(name string) bool {
	_, ok := m.get(name)
	return ok
}

// List returns the live parser names, sorted
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.live))
	for name := range m.live {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sync loads every name in want that is not live and removes every live
// parser not in want. Load failures are joined into the returned error.
func (m *Manager) Sync(want []string) error {
	desired := make(map[string]bool, len(want))
	for _, name := range want {
		desired[name] = true
	}

	for _, name := range m.List() {
		if !desired[name] {
			m.Remove(name)
		}
	}

	var errs []error
	for _, name := range want {
		if m.Loaded(name) {
			continue
		}
		if err := m.Add(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close removes every live parser
func (m *Manager) Close() {
	for _, name := range m.List() {
		m.Remove(name)
	}
}

func (m *Manager) get(name string) (Parser, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.live[name]
	return p, ok
}

// destroy runs the Destroy hook, drops p from the live table and releases any
// subscriptions p failed to release itself
func (m *Manager) destroy(name string, p Parser) {
	if err := guard(func() error { return p.Destroy(m.host) }); err != nil {
		logger.WithFields(logrus.Fields{
			"plugin": name,
			"error":  err,
		}).Error("plugin-destroy-failed")
	}

	m.mu.Lock()
	if m.live[name] == p {
		delete(m.live, name)
	}
	m.mu.Unlock()

	if leaked := m.host.DeregisterOwner(name); leaked > 0 {
		logger.WithFields(logrus.Fields{
			"plugin": name,
			"count":  leaked,
		}).Warn("plugin-leaked-subscriptions")
	}
}

func construct(desc Descriptor) (p Parser, err error) {
	err = guard(func() error {
		p = desc.New()
		if p == nil {
			return errors.New("factory returned nil")
		}
		return nil
	})
	return p, err
}

// guard runs fn and converts a panic into ErrPluginFault
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(logrus.Fields{
				"panic": r,
				"stack": string(debug.Stack()),
			}).Debug("plugin-panic-recovered")
			err = fmt.Errorf("%w: %v", ErrPluginFault, r)
		}
	}()
	return fn()
}
