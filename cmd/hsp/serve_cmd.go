package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dorcha-inc/hsp/internal/config"
	"github.com/dorcha-inc/hsp/internal/server"
	"github.com/dorcha-inc/hsp/internal/task"
)

// newServeCmd creates the serve command
func newServeCmd(a *app) *cobra.Command {
	var (
		useStdio bool
		portFlag int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tasks as MCP tools",
		Long: `Start an MCP server that publishes every task as a tool. Tools never prompt:
a call that leaves a required parameter unset fails with the names of the
missing parameters.

The server can run in HTTP mode (default port 8080) or stdio mode for MCP
clients. SIGHUP reloads the configuration and rescans the tasks.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(a, useStdio, portFlag)
		},
	}

	cmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (ignored if stdio is used)")
	cmd.Flags().BoolVar(&useStdio, "stdio", false, "Use stdio instead of TCP port")

	return cmd
}

// newServeRunner builds a runner that never prompts and never writes task
// output to the server's own streams.
func newServeRunner(cfg *config.Config) (*task.Runner, error) {
	return newRunner(cfg, runnerOptions{echo: io.Discard})
}

// runServe runs the server with the given flags
func runServe(a *app, useStdio bool, portFlag int) error {
	cfg := a.cfg

	// Validate and apply port configuration
	if err := validateAndApplyPort(cfg, portFlag, useStdio); err != nil {
		return err
	}

	runner, err := newServeRunner(cfg)
	if err != nil {
		return err
	}

	reload := func() (*task.Runner, error) {
		fresh, err := config.LoadConfig(a.configPath)
		if err != nil {
			return nil, err
		}
		return newServeRunner(fresh)
	}
	srv := server.NewTaskServer(runner, reload, version)

	// Set up signal handling for hot reload
	ctx, cancel := setupSignalHandling(context.Background(), srv)
	defer cancel()

	if err := runServer(ctx, srv, useStdio, cfg); err != nil {
		if errors.Is(err, context.Canceled) {
			zap.L().Info("Server context canceled, exiting gracefully")
			return nil
		}

		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// validateAndApplyPort validates the port flag and applies port logic to config
func validateAndApplyPort(cfg *config.Config, portFlag int, useStdio bool) error {
	if portFlag < 0 {
		return fmt.Errorf("port must be a positive integer (or 0 to remain unset), got %d", portFlag)
	}

	// Command line flag overrides config file
	if portFlag != 0 {
		cfg.Port = portFlag
	}

	if !useStdio && cfg.Port == 0 {
		cfg.Port = config.DefaultPort
	}

	return nil
}

// setupSignalHandling sets up signal handling for hot reload and graceful shutdown
func setupSignalHandling(ctx context.Context, srv *server.TaskServer) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigChan:
				switch sig {
				case syscall.SIGHUP:
					zap.L().Info("Received SIGHUP, reloading configuration and tasks")
					if err := srv.Reload(); err != nil {
						zap.L().Error("Failed to reload", zap.Error(err))
					} else {
						zap.L().Info("Successfully reloaded configuration and tasks", zap.Strings("tools", srv.Tools()))
					}
				case syscall.SIGINT, syscall.SIGTERM:
					zap.L().Info("Received shutdown signal")
					cancel()
					return
				}
			}
		}
	}()

	return ctx, cancel
}

// runServer starts the server in either stdio or HTTP mode
func runServer(ctx context.Context, srv *server.TaskServer, useStdio bool, cfg *config.Config) error {
	if useStdio {
		zap.L().Info("Starting hsp server on stdio")
		return srv.ServeStdio(ctx)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	zap.L().Info("Starting hsp server", zap.String("address", addr))
	return srv.Serve(ctx, addr)
}
