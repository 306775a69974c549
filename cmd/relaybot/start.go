package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/keepmind9/relaybot/internal/core"
	"github.com/keepmind9/relaybot/internal/logger"
	"github.com/keepmind9/relaybot/internal/storage"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configFile string

	startCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the relay",
		Long:  "Connect to every configured chat backend, load the plugins and relay messages until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runRelay(ctx, configFile)
		},
	}
)

// runRelay is the composition root: config, logger, storage, plugins,
// connections, engine
func runRelay(ctx context.Context, path string) error {
	// no connection is opened before the configuration checks out
	config, err := core.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.InitLogger(config.LoggerConfig()); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.WithFields(logrus.Fields{
		"config_file": path,
		"log_level":   config.Logging.Level,
		"log_file":    config.Logging.File,
	}).Info("logger-initialized")

	catalog, err := newCatalog()
	if err != nil {
		return err
	}

	conns, err := core.NewConnections(config)
	if err != nil {
		return err
	}

	store, err := openStore(config.Storage.Path)
	if err != nil {
		return err
	}

	engine := core.NewEngine(config, catalog, store, core.WithConfigPath(path))
	for _, conn := range conns {
		if err := engine.AddConnection(conn); err != nil {
			engine.Stop()
			return err
		}
	}

	logger.WithFields(logrus.Fields{
		"connections": len(conns),
		"hook_server": config.HookServer.Enabled,
		"storage":     config.Storage.Path,
	}).Info("relaybot-starting")

	if err := engine.Run(ctx); err != nil {
		return fmt.Errorf("engine error: %w", err)
	}
	logger.Info("relaybot-stopped")
	return nil
}

// openStore opens the SQLite store at path, or an in-memory store when path is empty
func openStore(path string) (storage.Store, error) {
	if path == "" {
		logger.Warn("no-storage-path-state-kept-in-memory")
		return storage.NewMemoryStore(), nil
	}
	store, err := storage.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	return store, nil
}

func init() {
	startCmd.Flags().StringVarP(&configFile, "config", "c", "config.yaml", "Configuration file path")
}
