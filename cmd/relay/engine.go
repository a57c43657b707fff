package main

import (
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/robfig/cron/v3"

	"github.com/entrhq/relay/pkg/automation/approval"
	"github.com/entrhq/relay/pkg/automation/backoff"
	"github.com/entrhq/relay/pkg/automation/compliance"
	"github.com/entrhq/relay/pkg/automation/executor"
	"github.com/entrhq/relay/pkg/automation/orchestrator"
	"github.com/entrhq/relay/pkg/automation/registry"
	"github.com/entrhq/relay/pkg/config"
	"github.com/entrhq/relay/pkg/driver/playwright"
	"github.com/entrhq/relay/pkg/events"
	"github.com/entrhq/relay/pkg/logging"
	"github.com/entrhq/relay/pkg/profiles"
)

// engine bundles the wired-up automation stack shared by the serve and
// console commands.
type engine struct {
	cfg      *config.Config
	log      *logging.Logger
	bus      *events.Bus
	browsers *playwright.Manager
	store    *profiles.Store
	advisor  *compliance.Advisor
	orch     *orchestrator.Orchestrator
	cron     *cron.Cron
}

// buildEngine assembles the full stack from configuration: browser sessions,
// profile store, compliance advisor, executor, approval gate, and the
// orchestrator on top. Background maintenance (window reset, idle session
// cleanup) runs on a cron scheduler.
func buildEngine(cfg *config.Config, log *logging.Logger, headless bool) (*engine, error) {
	bus := events.NewBus()
	reg := registry.New()

	browsers := playwright.NewManager(playwright.Options{
		Headless:    headless,
		IdleTimeout: cfg.Browser.IdleTimeout,
		Busy:        reg.IsResourceBusy,
	})
	if err := browsers.Initialize(); err != nil {
		return nil, fmt.Errorf("browser setup failed: %w", err)
	}

	store, err := profiles.NewStore(cfg.Profiles.DBPath)
	if err != nil {
		_ = browsers.Shutdown()
		return nil, fmt.Errorf("profile store failed: %w", err)
	}

	advisor := compliance.NewAdvisor(cfg.Compliance.Limits, cfg.Compliance.Window)

	exec := executor.New(bus, executor.Config{
		MaxRetries:    cfg.Automation.MaxRetries,
		ActionTimeout: cfg.Automation.ActionTimeout,
		Backoff:       backoff.Default(),
	}, log)

	orch := orchestrator.New(
		reg,
		exec,
		approval.NewGate(bus),
		browsers,
		bus,
		orchestrator.Config{ApprovalTimeout: cfg.Automation.ApprovalTimeout},
		log,
	)

	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@hourly", browsers.CleanupIdle); err != nil {
		log.Warnf("failed to schedule idle session cleanup: %v", err)
	}
	if _, err := scheduler.AddFunc(windowResetSpec(cfg.Compliance.Window), advisor.Reset); err != nil {
		log.Warnf("failed to schedule compliance window reset: %v", err)
	}
	scheduler.Start()

	return &engine{
		cfg:      cfg,
		log:      log,
		bus:      bus,
		browsers: browsers,
		store:    store,
		advisor:  advisor,
		orch:     orch,
		cron:     scheduler,
	}, nil
}

// newEcho creates the HTTP server instance shared by serve and console.
func newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	return e
}

// windowResetSpec maps the compliance window onto a cron schedule. Daily
// windows reset at midnight; anything else resets on its own interval.
func windowResetSpec(window time.Duration) string {
	if window <= 0 || window == 24*time.Hour {
		return "@daily"
	}
	return "@every " + window.String()
}

// shutdown stops all runs and releases every resource the engine holds.
func (e *engine) shutdown() {
	e.cron.Stop()
	e.orch.StopAll()
	if err := e.browsers.Shutdown(); err != nil {
		e.log.Errorf("browser shutdown: %v", err)
	}
	if err := e.store.Close(); err != nil {
		e.log.Errorf("profile store close: %v", err)
	}
}
