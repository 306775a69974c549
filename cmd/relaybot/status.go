package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/keepmind9/relaybot/internal/core"
	"github.com/spf13/cobra"
)

var (
	statusHost string
	statusPort int
	statusJSON bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show relay status",
	Long:  "Display the connections, their online users and the loaded plugins of a running relay",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewHookClient(hookURL(statusHost, statusPort))
		status, err := client.Status(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to query relay (is the hook server enabled?): %w", err)
		}
		return printStatus(cmd.OutOrStdout(), status, statusJSON)
	},
}

func printStatus(out io.Writer, status core.Status, jsonFormat bool) error {
	if jsonFormat {
		output, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal json: %w", err)
		}
		fmt.Fprintln(out, string(output))
		return nil
	}

	fmt.Fprintln(out, "relaybot status:")
	fmt.Fprintf(out, "  Nick:   %s\n", status.Nick)
	fmt.Fprintf(out, "  Uptime: %s\n", status.Uptime)
	fmt.Fprintf(out, "\nConnections (%d):\n", len(status.Connections))
	for _, c := range status.Connections {
		users := "nobody"
		if len(c.Users) > 0 {
			users = strings.Join(c.Users, ", ")
		}
		fmt.Fprintf(out, "  - %s [%s] as %s, %d pending, users: %s\n", c.ID, c.State, c.Nick, c.Pending, users)
	}
	loaded := "none"
	if len(status.Plugins) > 0 {
		loaded = strings.Join(status.Plugins, ", ")
	}
	fmt.Fprintf(out, "\nPlugins: %s\n", loaded)
	fmt.Fprintf(out, "Available: %s\n", strings.Join(status.Available, ", "))
	return nil
}

func init() {
	statusCmd.Flags().StringVar(&statusHost, "host", "127.0.0.1", "Hook server host")
	statusCmd.Flags().IntVarP(&statusPort, "port", "p", 8080, "Hook server port")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output in JSON format")
}
