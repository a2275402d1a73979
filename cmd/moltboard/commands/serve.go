package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/moltboard/moltboard/internal/printer"
	"github.com/moltboard/moltboard/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the board HTTP API",
	Long: `Start the HTTP server hosting the public board API, the moderator
surface and the /healthz endpoint. Blocks until SIGINT or SIGTERM, then
shuts down gracefully.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, store, err := setup()
	if err != nil {
		return printer.Error("Failed to start", err.Error(), nil)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := store.Ping(ctx); err != nil {
		cancel()
		return printer.Error("Redis unreachable", err.Error(), []string{
			"Check that Redis is running and REDIS_URL points at it",
		})
	}
	cancel()

	srv := server.New(store, cfg)
	if err := srv.Start(); err != nil {
		return printer.Error("Failed to start server", err.Error(), nil)
	}
	printer.Success("Listening on %s\n", cfg.ListenAddr)
	if cfg.ModKey == "" {
		printer.Warning("No mod key configured; the admin surface is disabled\n")
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	printer.Info("Shutting down...\n")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return printer.Error("Shutdown failed", err.Error(), nil)
	}
	printer.Success("Stopped\n")
	return nil
}
