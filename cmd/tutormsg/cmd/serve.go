package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/studyhall/tutormsg/internal/api"
	"github.com/studyhall/tutormsg/internal/engine"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the widget engine with a local HTTP API",
	Long: `Run the synchronization engine as a long-running process that polls
the backend on a fixed cadence and exposes the widget state over a
local HTTP API (default: 127.0.0.1:8098).

The API serves:
  GET  /health                              engine counters
  GET  /api/v1/state                        reconciled conversations
  POST /api/v1/conversations/{key}/select   open a conversation
  POST /api/v1/send                         send a message
  POST /api/v1/banner/dismiss               hide the new-message banner
  POST /api/v1/scroll                       report scroll position

Use Ctrl+C to stop gracefully.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Serving implies an open widget: read-sync and arrival tracking
	// follow API selections.
	eng.Open(ctx)
	defer eng.Close()

	poller := engine.NewPoller(cfg.PollInterval(), eng.RunCycle).WithLogger(logger)
	if err := poller.Start(); err != nil {
		return fmt.Errorf("start poller: %w", err)
	}

	apiServer := api.NewServer(cfg, eng, logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	bindAddr := cfg.Server.BindAddr
	if bindAddr == "" {
		bindAddr = "127.0.0.1"
	}
	fmt.Printf("tutormsg engine started\n")
	fmt.Printf("  API server: http://%s\n", net.JoinHostPort(bindAddr, strconv.Itoa(cfg.Server.APIPort)))
	fmt.Printf("  Backend: %s\n", cfg.Remote.URL)
	fmt.Printf("  Poll interval: %s\n", cfg.PollInterval())
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
		fmt.Println("\nShutting down...")
	case err := <-serverErr:
		logger.Error("API server error", "error", err)
		fmt.Printf("\nAPI server error: %v\n", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("API server shutdown error", "error", err)
	}

	pollerCtx := poller.Stop()
	select {
	case <-pollerCtx.Done():
		fmt.Println("Shutdown complete.")
	case <-time.After(30 * time.Second):
		fmt.Println("Shutdown timed out after 30 seconds.")
	}

	return nil
}
