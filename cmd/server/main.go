// Command relaychat runs the group chat relay and inspects a running one.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	serve := serveCmd()

	cmd := &cobra.Command{
		Use:   "relaychat",
		Short: "Real-time group chat relay",
		Long: `relaychat relays chat messages, typing indicators and presence
between every browser connected to it over WebSocket.

Running it without a subcommand starts the server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}
	cmd.Flags().AddFlagSet(serve.Flags())

	cmd.AddCommand(
		serve,
		rosterCmd(),
		versionCmd(),
	)
	return cmd
}
