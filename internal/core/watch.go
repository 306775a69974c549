package core

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/keepmind9/relaybot/internal/logger"
	"github.com/keepmind9/relaybot/pkg/constants"
	"github.com/sirupsen/logrus"
)

// watchConfig reloads the plugin list whenever the config file changes.
//
// The parent directory is watched rather than the file itself so editors
// that save by rename keep triggering reloads. Bursts of events are folded
// into one reload after constants.ConfigReloadDebounce.
func (e *Engine) watchConfig(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve config path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	logger.WithField("path", abs).Info("config-watch-started")

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer watcher.Close()

		var (
			mu    sync.Mutex
			timer *time.Timer
		)
		defer func() {
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			mu.Unlock()
		}()

		for {
			select {
			case <-e.ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}

				mu.Lock()
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(constants.ConfigReloadDebounce, func() {
					e.reloadIfRunning(abs)
				})
				mu.Unlock()

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.WithField("error", err).Warn("config-watch-error")
			}
		}
	}()
	return nil
}

// reloadIfRunning reloads path unless Stop has begun. A reload that starts
// is counted in e.wg, so Stop waits for it before closing plugins and storage.
func (e *Engine) reloadIfRunning(path string) bool {
	e.connMu.Lock()
	if e.ctx.Err() != nil {
		e.connMu.Unlock()
		return false
	}
	e.wg.Add(1)
	e.connMu.Unlock()
	defer e.wg.Done()

	e.reloadConfig(path)
	return true
}

// reloadConfig re-reads path and applies its plugin list. A config that no
// longer parses leaves everything as it is.
func (e *Engine) reloadConfig(path string) {
	config, err := LoadConfig(path)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"path":  path,
			"error": err,
		}).Warn("config-reload-failed")
		return
	}

	if err := e.SyncPlugins(config.Plugins); err != nil {
		logger.WithField("error", err).Warn("config-reload-plugin-errors")
	}
	logger.WithFields(logrus.Fields{
		"path":    path,
		"plugins": e.Plugins(),
	}).Info("config-reloaded")
}
