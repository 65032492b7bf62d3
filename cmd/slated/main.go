// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

// Command slated is the Slate control plane: the REST and websocket
// API for dashboards, terminal sessions, recipes, and schedules, plus
// an operational Unix socket for status and token minting.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"syscall"

	"github.com/oklog/run"
	"github.com/spf13/pflag"

	"github.com/slate-labs/slate/lib/clock"
	"github.com/slate-labs/slate/lib/config"
	"github.com/slate-labs/slate/lib/coordinator"
	"github.com/slate-labs/slate/lib/process"
	"github.com/slate-labs/slate/lib/recipe"
	"github.com/slate-labs/slate/lib/sandbox"
	"github.com/slate-labs/slate/lib/scheduler"
	"github.com/slate-labs/slate/lib/schema"
	"github.com/slate-labs/slate/lib/service"
	"github.com/slate-labs/slate/lib/servicetoken"
	"github.com/slate-labs/slate/lib/sessionbridge"
	"github.com/slate-labs/slate/lib/store"
	"github.com/slate-labs/slate/lib/version"
)

func main() {
	if err := realMain(); err != nil {
		process.Fatal(err)
	}
}

func realMain() error {
	var (
		configPath  string
		showVersion bool
	)
	pflag.StringVar(&configPath, "config", "", "path to the slate.yaml config file (overrides SLATE_CONFIG)")
	pflag.BoolVar(&showVersion, "version", false, "print version information and exit")
	pflag.Parse()

	if showVersion {
		version.Print("slated")
		return nil
	}

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	logger.Info("slated starting",
		"version", version.Info(),
		"environment", cfg.Environment,
		"listen", cfg.Listen,
	)

	if err := os.MkdirAll(cfg.StateDir, 0o700); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	clk := clock.Real()

	st, err := store.Open(store.Config{
		Path:     cfg.DatabasePath(),
		PoolSize: cfg.Database.PoolSize,
		Logger:   logger.With("component", "store"),
	})
	if err != nil {
		return err
	}
	defer st.Close()

	publicKey, privateKey, generated, err := servicetoken.LoadOrGenerateKeypair(cfg.StateDir)
	if err != nil {
		return fmt.Errorf("loading token keypair: %w", err)
	}
	if generated {
		logger.Info("generated new service token keypair", "state_dir", cfg.StateDir)
	}

	registry := coordinator.NewRegistry(coordinator.RegistryConfig{
		Store:  st,
		Clock:  clk,
		Logger: logger.With("component", "coordinator"),
	})
	defer registry.Close()

	var sandboxClient *sandbox.Client
	if cfg.Sandbox.URL != "" {
		sandboxClient, err = sandbox.NewClient(sandbox.Config{
			BaseURL: cfg.Sandbox.URL,
			Token:   cfg.Sandbox.Token,
			Timeout: cfg.Sandbox.Timeout,
			Logger:  logger.With("component", "sandbox"),
		})
		if err != nil {
			return fmt.Errorf("configuring sandbox client: %w", err)
		}
	} else {
		logger.Warn("sandbox.url is not configured; session and agent features are disabled")
	}

	var bridge *sessionbridge.Bridge
	var agents recipe.AgentRunner
	if sandboxClient != nil {
		bridge = sessionbridge.New(sessionbridge.Config{
			Store:    st,
			Sandbox:  sandboxClient,
			Notifier: &sessionNotifier{registry: registry},
			Region:   cfg.Region,
			Clock:    clk,
			Logger:   logger.With("component", "sessionbridge"),
		})
		agents = sandboxClient
	}

	engine := recipe.New(recipe.Config{
		Store:  st,
		Agents: agents,
		Clock:  clk,
		Logger: logger.With("component", "recipe"),
	})

	sched := scheduler.New(scheduler.Config{
		Store:      st,
		Executions: &backgroundStarter{engine: engine, logger: logger},
		Clock:      clk,
		Logger:     logger.With("component", "scheduler"),
	})
	runner := scheduler.NewRunner(scheduler.RunnerConfig{
		Scheduler: sched,
		Interval:  cfg.Scheduler.Interval,
		Clock:     clk,
		Logger:    logger.With("component", "scheduler"),
	})

	api := &apiServer{
		store:     st,
		registry:  registry,
		bridge:    bridge,
		engine:    engine,
		scheduler: sched,
		verifyKey: publicKey,
		clock:     clk,
		logger:    logger.With("component", "api"),
	}

	httpServer := service.NewHTTPServer(service.HTTPServerConfig{
		Address: cfg.Listen,
		Handler: api.routes(),
		Logger:  logger.With("component", "http"),
	})

	socketServer := service.NewSocketServer(cfg.OpsSocket, logger.With("component", "ops"))
	ops := &opsServer{
		signKey:   privateKey,
		store:     st,
		registry:  registry,
		clock:     clk,
		startedAt: clk.Now(),
		logger:    logger.With("component", "ops"),
	}
	ops.register(socketServer)

	var group run.Group
	group.Add(run.SignalHandler(context.Background(), syscall.SIGINT, syscall.SIGTERM))

	httpCtx, httpCancel := context.WithCancel(context.Background())
	group.Add(func() error {
		return httpServer.Serve(httpCtx)
	}, func(error) {
		httpCancel()
	})

	socketCtx, socketCancel := context.WithCancel(context.Background())
	group.Add(func() error {
		return socketServer.Serve(socketCtx)
	}, func(error) {
		socketCancel()
	})

	runnerCtx, runnerCancel := context.WithCancel(context.Background())
	group.Add(func() error {
		return runner.Run(runnerCtx)
	}, func(error) {
		runnerCancel()
	})

	err = group.Run()
	var signalErr run.SignalError
	if errors.As(err, &signalErr) {
		logger.Info("shutting down", "signal", signalErr.Signal)
		return nil
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shut down cleanly")
	return nil
}

// sessionNotifier routes session updates into the owning dashboard's
// coordinator. A dashboard with no live coordinator has no connected
// clients, so there is nothing to notify.
type sessionNotifier struct {
	registry *coordinator.Registry
}

func (n *sessionNotifier) PushSession(ctx context.Context, session schema.Session) error {
	c, ok := n.registry.Peek(session.DashboardID)
	if !ok {
		return nil
	}
	return c.PushSession(ctx, session)
}

// backgroundStarter starts an execution and drives it to its next
// stopping point in a background goroutine. The scheduler fires
// executions from its sweep loop and must not block on step execution.
type backgroundStarter struct {
	engine *recipe.Engine
	logger *slog.Logger
}

func (b *backgroundStarter) CreateExecution(ctx context.Context, recipeID schema.RecipeID, executionContext map[string]any, triggeredBy schema.TriggerKind) (schema.Execution, error) {
	execution, err := b.engine.CreateExecution(ctx, recipeID, executionContext, triggeredBy)
	if err != nil {
		return execution, err
	}
	go func() {
		if _, err := b.engine.Run(context.Background(), execution.ID); err != nil {
			b.logger.Error("execution driver failed",
				"execution_id", execution.ID,
				"error", err,
			)
		}
	}()
	return execution, nil
}
