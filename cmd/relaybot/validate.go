package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/keepmind9/relaybot/internal/core"
	"github.com/keepmind9/relaybot/internal/plugin"
	"github.com/spf13/cobra"
)

var (
	validateConfig string
	validateShow   bool
	validateJSON   bool
)

// ValidationResult represents the validation result
type ValidationResult struct {
	Valid       bool     `json:"valid"`
	Config      string   `json:"config"`
	Connections int      `json:"connections"`
	Plugins     int      `json:"plugins"`
	Errors      []string `json:"errors,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate relaybot configuration file",
	Long: `Validate the relaybot configuration file without starting the relay.

This command checks:
  - YAML syntax
  - Required fields
  - Connection types and credentials
  - Plugin names

Exit codes:
  0 - Configuration is valid
  1 - Configuration has errors`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := validateConfig
		if path == "" {
			path = findConfig()
		}
		if path == "" {
			return fmt.Errorf("no configuration file found; pass --config or create one at: %v", defaultConfigLocations())
		}

		out := cmd.OutOrStdout()
		catalog, err := newCatalog()
		if err != nil {
			return err
		}

		result, cfg := validateFile(path, catalog)
		if validateShow && cfg != nil {
			showConfig(out, path, cfg)
		}
		outputValidationResult(out, result, validateJSON)

		if !result.Valid {
			return fmt.Errorf("configuration %s is invalid", path)
		}
		return nil
	},
}

func defaultConfigLocations() []string {
	return []string{
		"config.yaml",
		filepath.Join(os.Getenv("HOME"), ".config/relaybot/config.yaml"),
		"/etc/relaybot/config.yaml",
	}
}

func findConfig() string {
	for _, loc := range defaultConfigLocations() {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// validateFile loads path and checks it against catalog. cfg is nil when the
// file does not load.
func validateFile(path string, catalog *plugin.Catalog) (ValidationResult, *core.Config) {
	cfg, err := core.LoadConfig(path)
	if err != nil {
		return ValidationResult{
			Valid:  false,
			Config: path,
			Errors: []string{err.Error()},
		}, nil
	}

	result := ValidationResult{
		Valid:       true,
		Config:      path,
		Connections: len(cfg.Connections),
		Plugins:     len(cfg.Plugins),
	}
	result.Errors = validatePlugins(cfg, catalog)
	result.Warnings = validateConfigDetails(cfg)
	if len(result.Errors) > 0 {
		result.Valid = false
	}
	return result, cfg
}

// validatePlugins reports plugin names the catalog does not know
func validatePlugins(cfg *core.Config, catalog *plugin.Catalog) []string {
	var errs []string
	for _, name := range cfg.Plugins {
		if _, ok := catalog.Lookup(name); !ok {
			errs = append(errs, fmt.Sprintf("unknown plugin %q (available: %v)", name, catalog.Names()))
		}
	}
	return errs
}

func validateConfigDetails(cfg *core.Config) []string {
	var warnings []string

	if len(cfg.Plugins) == 0 {
		warnings = append(warnings, "No plugins configured - events are received but nothing answers them")
	}
	if cfg.Storage.Path == "" {
		warnings = append(warnings, "No storage path - plugin state and the loaded plugin set are lost on restart")
	}
	if cfg.HookServer.Enabled && cfg.HookServer.Host != core.DefaultHookHost && cfg.HookServer.Host != "localhost" {
		warnings = append(warnings, fmt.Sprintf("Hook server listens on %s - anyone who can reach it can broadcast and load plugins", cfg.HookServer.Host))
	}
	if cfg.WatchConfig && cfg.HookServer.Enabled {
		warnings = append(warnings, "watch_config and the hook server can both change the plugin set - the last change wins")
	}
	for _, conn := range cfg.Connections {
		if conn.Type != core.TypeLine && conn.ChannelID == "" {
			warnings = append(warnings, fmt.Sprintf("Connection '%s' has no channel_id - broadcasts go to whichever chat spoke last", conn.ID))
		}
	}
	return warnings
}

func showConfig(out io.Writer, path string, cfg *core.Config) {
	fmt.Fprintf(out, "✓ Configuration loaded: %s\n\n", path)
	fmt.Fprintf(out, "Nick: %s\n", cfg.Nick)
	fmt.Fprintf(out, "\nConnections (%d):\n", len(cfg.Connections))
	for _, conn := range cfg.Connections {
		target := conn.Address
		if conn.Type != core.TypeLine {
			target = conn.ChannelID
			if target == "" {
				target = "any chat"
			}
		}
		fmt.Fprintf(out, "  - %s: %s @ %s (nick: %s)\n", conn.ID, conn.Type, target, conn.Nick)
	}
	fmt.Fprintf(out, "\nPlugins (%d):\n", len(cfg.Plugins))
	for _, name := range cfg.Plugins {
		fmt.Fprintf(out, "  - %s\n", name)
	}
	hook := "disabled"
	if cfg.HookServer.Enabled {
		hook = fmt.Sprintf("%s:%d", cfg.HookServer.Host, cfg.HookServer.Port)
	}
	fmt.Fprintf(out, "\nHook server: %s\n", hook)
	fmt.Fprintf(out, "Reconnect pause: %s\n\n", cfg.ReconnectPause())
}

func outputValidationResult(out io.Writer, result ValidationResult, jsonFormat bool) {
	if jsonFormat {
		output, err := json.Marshal(result)
		if err != nil {
			fmt.Fprintf(out, "{\"error\": \"failed to marshal json: %v\"}\n", err)
			return
		}
		fmt.Fprintln(out, string(output))
		return
	}

	if result.Valid {
		fmt.Fprintln(out, "✓ Configuration is valid")
		fmt.Fprintf(out, "  - Config: %s\n", result.Config)
		fmt.Fprintf(out, "  - Connections: %d\n", result.Connections)
		fmt.Fprintf(out, "  - Plugins: %d\n", result.Plugins)
		if len(result.Warnings) > 0 {
			fmt.Fprintln(out, "\n⚠️  Warnings:")
			for _, warning := range result.Warnings {
				fmt.Fprintf(out, "  - %s\n", warning)
			}
		}
		return
	}

	fmt.Fprintln(out, "❌ Configuration validation failed:")
	if len(result.Errors) > 0 {
		fmt.Fprintln(out, "\nErrors:")
		for _, errMsg := range result.Errors {
			fmt.Fprintf(out, "  - %s\n", errMsg)
		}
	}
	if len(result.Warnings) > 0 {
		fmt.Fprintln(out, "\nWarnings:")
		for _, warning := range result.Warnings {
			fmt.Fprintf(out, "  - %s\n", warning)
		}
	}
}

func init() {
	validateCmd.Flags().StringVarP(&validateConfig, "config", "c", "", "Configuration file path")
	validateCmd.Flags().BoolVar(&validateShow, "show", false, "Show full configuration details")
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "Output in JSON format")
}
