package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"relink/internal/server"
)

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the reconnection daemon",
		Long: `Run the reconnection daemon in the foreground.

The daemon starts:
- the configured probe (HTTP or WebSocket)
- the reconnection controller
- the sqlite event history and snapshot jobs
- the status API, Prometheus metrics and event stream
- config hot reload for the reconnect section`,
		Example: `  # Run with the default configuration
  relink run

  # Probe a WebSocket endpoint instead
  relink run --probe websocket --url ws://127.0.0.1:9000/ws

  # Run with verbose logging
  relink run --verbose`,
		RunE: runDaemon,
	}

	cmd.Flags().IntP("port", "p", 0, "status API port (overrides config)")
	cmd.Flags().String("host", "", "status API host (overrides config)")
	cmd.Flags().String("probe", "", "probe kind: http or websocket (overrides config)")
	cmd.Flags().String("url", "", "probe URL (overrides config)")
	cmd.Flags().Bool("no-watch", false, "disable config hot reload")

	return cmd
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cliCtx := GetCLIContext(cmd)
	if cliCtx == nil {
		return fmt.Errorf("CLI context not initialized")
	}

	cfg := cliCtx.Config
	log := cliCtx.Log()

	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Server.Port = port
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Server.Host = host
	}
	if kind, _ := cmd.Flags().GetString("probe"); kind != "" {
		cfg.Probe.Kind = kind
	}
	if url, _ := cmd.Flags().GetString("url"); url != "" {
		cfg.Probe.URL = url
	}
	noWatch, _ := cmd.Flags().GetBool("no-watch")

	srv, err := server.NewServer(server.ServerConfig{
		Config:      cfg,
		ConfigPath:  cliCtx.ConfigPath,
		StoragePath: cliCtx.StoragePath,
		Version:     Version,
		Logger:      *log,
		Watch:       !noWatch,
	})
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	if err := srv.Start(cmd.Context()); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	if cfg.Server.Enabled {
		log.Info().
			Str("address", fmt.Sprintf("http://%s", cfg.Server.Addr())).
			Msg("Status API listening")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutting down...")
	case runErr = <-srv.ErrorChan():
		log.Error().Err(runErr).Msg("Daemon error")
	}

	if err := srv.Stop(); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}
