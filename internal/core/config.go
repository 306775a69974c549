// Package core provides the bot facade and configuration management for relaybot.
//
// The core package ties the relay together. It handles:
//
//   - Configuration loading and validation (from YAML files)
//   - Building connections for every configured chat backend
//   - Routing inbound events through the dispatch registry
//   - Loading, unloading and persisting the plugin set
//   - HTTP hook server for local tooling
//   - Hot reload of the plugin list when the config file changes
//
// # Example Configuration
//
//	nick: relaybot
//	connections:
//	  - id: lan
//	    type: line
//	    address: "127.0.0.1:7000"
//	  - id: dc
//	    type: discord
//	    token: "${DISCORD_TOKEN}"
//	    channel_id: "1234"
//	plugins: [greet, seen, relay, control]
//	reconnect:
//	  pause: 5m
//	hook_server:
//	  enabled: true
//	  port: 8080
//	storage:
//	  path: "~/.relaybot/state.db"
package core

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/keepmind9/relaybot/internal/logger"
	"github.com/keepmind9/relaybot/pkg/constants"
	"gopkg.in/yaml.v3"
)

const (
	DefaultNick            = "relaybot"
	DefaultHookHost        = "127.0.0.1"
	DefaultHookPort        = 8080
	DefaultLogLevel        = "info"
	DefaultLogMaxSize      = 100 // MB
	DefaultLogMaxBackups   = 5
	DefaultLogMaxAge       = 30 // days
	DefaultLogCompress     = true
	DefaultLogEnableStdout = true
)

// LoadConfig loads configuration from file and expands environment variables
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig expands, parses and validates raw YAML
func ParseConfig(data []byte) (*Config, error) {
	expandedData, err := expandEnv(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to expand environment variables: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// expandEnv replaces ${VAR_NAME} patterns with environment variable values
func expandEnv(input string) (string, error) {
	var missingVars []string

	result := os.Expand(input, func(key string) string {
		if val := os.Getenv(key); val != "" {
			return val
		}
		missingVars = append(missingVars, key)
		return ""
	})

	if len(missingVars) > 0 {
		return "", fmt.Errorf("missing required environment variables: %s",
			strings.Join(missingVars, ", "))
	}

	return result, nil
}

// validateConfig applies defaults and rejects configurations the relay cannot run
func validateConfig(config *Config) error {
	if config.Nick == "" {
		config.Nick = DefaultNick
	}

	if config.HookServer.Host == "" {
		config.HookServer.Host = DefaultHookHost
	}
	if config.HookServer.Port == 0 {
		config.HookServer.Port = DefaultHookPort
	}
	if config.HookServer.Port < 0 || config.HookServer.Port > 65535 {
		return fmt.Errorf("hook_server.port out of range: %d", config.HookServer.Port)
	}

	if config.Reconnect.Pause != "" {
		pause, err := time.ParseDuration(config.Reconnect.Pause)
		if err != nil {
			return fmt.Errorf("invalid reconnect.pause: %w", err)
		}
		if pause <= 0 {
			return fmt.Errorf("reconnect.pause must be positive (got %v)", pause)
		}
	}

	if config.Storage.Path != "" {
		path, err := expandHome(config.Storage.Path)
		if err != nil {
			return err
		}
		config.Storage.Path = path
	}

	// Set default logging configuration
	if config.Logging.Level == "" {
		config.Logging.Level = DefaultLogLevel
	}
	if config.Logging.MaxSize == 0 {
		config.Logging.MaxSize = DefaultLogMaxSize
	}
	if config.Logging.MaxBackups == 0 {
		config.Logging.MaxBackups = DefaultLogMaxBackups
	}
	if config.Logging.MaxAge == 0 {
		config.Logging.MaxAge = DefaultLogMaxAge
	}
	if !config.Logging.Compress {
		config.Logging.Compress = DefaultLogCompress
	}
	if !config.Logging.EnableStdout {
		config.Logging.EnableStdout = DefaultLogEnableStdout
	}
	if config.Logging.File != "" {
		path, err := expandHome(config.Logging.File)
		if err != nil {
			return err
		}
		config.Logging.File = path
	}

	if len(config.Connections) == 0 {
		return fmt.Errorf("at least one connection must be configured")
	}

	seen := make(map[string]bool, len(config.Connections))
	for i := range config.Connections {
		conn := &config.Connections[i]
		if conn.ID == "" {
			return fmt.Errorf("connections[%d]: id is required", i)
		}
		if strings.ContainsAny(conn.ID, " \t\r\n") {
			return fmt.Errorf("connection %s: id must not contain whitespace", conn.ID)
		}
		if seen[conn.ID] {
			return fmt.Errorf("duplicate connection id: %s", conn.ID)
		}
		seen[conn.ID] = true

		if conn.Nick == "" {
			conn.Nick = config.Nick
		}
		if err := validateConnection(conn); err != nil {
			return fmt.Errorf("connection %s: %w", conn.ID, err)
		}
	}

	for _, name := range config.Plugins {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("plugins: empty plugin name")
		}
	}

	return nil
}

// validateConnection checks the fields each connection type needs
func validateConnection(conn *ConnectionConfig) error {
	switch conn.Type {
	case TypeLine:
		if conn.Address == "" {
			return fmt.Errorf("address is required")
		}
		if conn.SendRate < 0 {
			return fmt.Errorf("send_rate must not be negative")
		}
	case TypeDiscord:
		if conn.Token == "" {
			return fmt.Errorf("token is required")
		}
	case TypeTelegram:
		if conn.Token == "" {
			return fmt.Errorf("token is required")
		}
	case TypeFeishu, TypeDingTalk:
		if conn.AppID == "" || conn.AppSecret == "" {
			return fmt.Errorf("app_id and app_secret are required")
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown type %q (supported: %s)", conn.Type, strings.Join(ConnectionTypes(), ", "))
	}
	return nil
}

// ReconnectPause returns the configured pause, or the default
func (c *Config) ReconnectPause() time.Duration {
	if c.Reconnect.Pause == "" {
		return constants.DefaultReconnectPause
	}
	pause, err := time.ParseDuration(c.Reconnect.Pause)
	if err != nil || pause <= 0 {
		return constants.DefaultReconnectPause
	}
	return pause
}

// GetConnectionConfig retrieves configuration for a specific connection
func (c *Config) GetConnectionConfig(id string) (ConnectionConfig, error) {
	for _, conn := range c.Connections {
		if conn.ID == id {
			return conn, nil
		}
	}
	return ConnectionConfig{}, fmt.Errorf("connection %s not found in configuration", id)
}

// LoggerConfig converts the logging section for the logger package
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:        c.Logging.Level,
		File:         c.Logging.File,
		MaxSize:      c.Logging.MaxSize,
		MaxBackups:   c.Logging.MaxBackups,
		MaxAge:       c.Logging.MaxAge,
		Compress:     c.Logging.Compress,
		EnableStdout: c.Logging.EnableStdout,
	}
}

// expandHome expands ~ to user's home directory
func expandHome(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return home + path[1:], nil
	}
	return path, nil
}
