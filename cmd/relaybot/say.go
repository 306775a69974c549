package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/keepmind9/relaybot/internal/logger"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	sayExcept string
	sayHost   string
	sayPort   int

	sayCmd = &cobra.Command{
		Use:   "say [text...]",
		Short: "Broadcast a message through a running relay",
		Long: `Sends text to every connection of a running relay through its hook server.

The text is taken from the arguments or, when there are none, from stdin.

Examples:
  relaybot say "maintenance at noon"
  uptime | relaybot say --except lan
  relaybot say --port 9000 hello`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if text == "" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
				text = string(data)
			}
			text = strings.TrimSpace(text)
			if text == "" {
				return fmt.Errorf("nothing to say")
			}

			client := NewHookClient(hookURL(sayHost, sayPort))
			result, err := client.Broadcast(cmd.Context(), text, sayExcept)
			if err != nil {
				logger.WithFields(logrus.Fields{
					"except": sayExcept,
					"error":  err,
				}).Debug("hook-broadcast-failed")
				return fmt.Errorf("broadcast failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "queued on %d connection(s)\n", result.Delivered)
			return nil
		},
	}
)

func init() {
	sayCmd.Flags().StringVar(&sayExcept, "except", "", "Short id of a connection to skip")
	sayCmd.Flags().StringVar(&sayHost, "host", "127.0.0.1", "Hook server host")
	sayCmd.Flags().IntVarP(&sayPort, "port", "p", 8080, "Hook server port")
}
