package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/entrhq/relay/pkg/api"
	"github.com/entrhq/relay/pkg/config"
	"github.com/entrhq/relay/pkg/logging"
)

func serveCmd() *cobra.Command {
	var address string
	var headless bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the headless engine with the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if address != "" {
				cfg.Server.Address = address
			}
			return runServe(cfg, headless)
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "listen address (overrides config)")
	cmd.Flags().BoolVar(&headless, "headless", true, "run browsers headless")
	return cmd
}

func runServe(cfg *config.Config, headless bool) error {
	log, err := logging.NewLogger("serve")
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	defer log.Close()

	eng, err := buildEngine(cfg, log, headless)
	if err != nil {
		return err
	}
	defer eng.shutdown()

	e := newEcho()
	handler := api.NewHandler(eng.orch, eng.advisor, eng.store, eng.bus, log)
	handler.RegisterRoutes(e)

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", cfg.Server.Address)
		errCh <- e.Start(cfg.Server.Address)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-sigCh:
		log.Infof("received %s, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Errorf("http shutdown: %v", err)
	}
	return nil
}
