package commands

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nanoslide/nanoslide/cmd/nanoslide/ui"
	"github.com/nanoslide/nanoslide/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a read-only status API over the output directory",
	Long: `Start an HTTP server exposing document listings, per-stage status, and
run lineage for everything under the output directory. The server never
triggers generation and needs no API key.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, orch, err := setup()
	if err != nil {
		return err
	}

	ui.Info("Serving status API on %s:%d (Ctrl-C to stop)", cfg.Server.Host, cfg.Server.Port)
	return api.Serve(ctx, orch, cfg.Server, newLogger(cfg))
}
