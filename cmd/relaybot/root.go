package main

import (
	"os"

	"github.com/keepmind9/relaybot/internal/plugin"
	"github.com/keepmind9/relaybot/internal/plugins"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "relaybot",
	Short: "relaybot is a multi-protocol chat relay with pluggable parsers",
	Long: `relaybot keeps long-lived connections to several chat backends (a
line-oriented TCP protocol, Discord, Telegram, Feishu, DingTalk), turns their
events into one message model and hands them to dynamically loadable
parsers. Parser responses go back to the originating connection or to all of
them.`,
	SilenceUsage: true,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newCatalog returns the catalog of every parser this binary ships
func newCatalog() (*plugin.Catalog, error) {
	c := plugin.NewCatalog()
	if err := plugins.RegisterBuiltins(c); err != nil {
		return nil, err
	}
	return c, nil
}

func init() {
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(sayCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(pluginsCmd)
	rootCmd.AddCommand(versionCmd)
}
