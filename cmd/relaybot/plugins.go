package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var pluginsJSON bool

// PluginInfo describes one discoverable plugin
type PluginInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "List available plugins",
	Long:  "List every plugin this binary can load, by the name used in the plugins config list",
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := newCatalog()
		if err != nil {
			return err
		}

		var infos []PluginInfo
		for _, d := range catalog.Discover() {
			infos = append(infos, PluginInfo{Name: d.Name, Description: d.Description})
		}

		out := cmd.OutOrStdout()
		if pluginsJSON {
			output, err := json.MarshalIndent(infos, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal json: %w", err)
			}
			fmt.Fprintln(out, string(output))
			return nil
		}

		fmt.Fprintf(out, "Available plugins (%d):\n", len(infos))
		for _, info := range infos {
			fmt.Fprintf(out, "  %-10s %s\n", info.Name, info.Description)
		}
		return nil
	},
}

func init() {
	pluginsCmd.Flags().BoolVar(&pluginsJSON, "json", false, "Output in JSON format")
}
