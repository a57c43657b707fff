package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/entrhq/relay/pkg/config"
)

var (
	version = "dev"

	configPath string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "relay",
		Short: "Relay drives browser automation runs with human approval gates",
		Long: `Relay executes multi-step browser automation runs: each run holds an
exclusive lock on its profile, steps through its actions with retries and
timeouts, and parks at an approval gate before anything sensitive happens.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "path to config file")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(consoleCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the relay version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("relay %s\n", version)
		},
	}
}
