package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/entrhq/relay/pkg/api"
	"github.com/entrhq/relay/pkg/config"
	"github.com/entrhq/relay/pkg/logging"
	"github.com/entrhq/relay/pkg/ui/console"
)

func consoleCmd() *cobra.Command {
	var headless bool
	var withAPI bool

	cmd := &cobra.Command{
		Use:   "console",
		Short: "Run the engine with an interactive approval console",
		Long: `Console runs the engine in-process and attaches a terminal UI showing
live run activity and pending approval requests. Approvals are answered with
a single keypress. With --api the HTTP surface is also served, so runs can be
submitted from outside while approvals stay in the terminal.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return runConsole(cfg, headless, withAPI)
		},
	}

	cmd.Flags().BoolVar(&headless, "headless", false, "run browsers headless")
	cmd.Flags().BoolVar(&withAPI, "api", true, "also serve the HTTP API")
	return cmd
}

func runConsole(cfg *config.Config, headless, withAPI bool) error {
	log, err := logging.NewLogger("console")
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	defer log.Close()

	eng, err := buildEngine(cfg, log, headless)
	if err != nil {
		return err
	}
	defer eng.shutdown()

	if withAPI {
		go func() {
			if err := serveAPI(eng, cfg); err != nil {
				log.Errorf("api server: %v", err)
			}
		}()
	}

	model := console.New(eng.bus, eng.orch)
	program := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("console failed: %w", err)
	}
	return nil
}

// serveAPI starts the HTTP surface without signal handling; the console owns
// process lifetime.
func serveAPI(eng *engine, cfg *config.Config) error {
	e := newEcho()
	handler := api.NewHandler(eng.orch, eng.advisor, eng.store, eng.bus, eng.log)
	handler.RegisterRoutes(e)
	return e.Start(cfg.Server.Address)
}
