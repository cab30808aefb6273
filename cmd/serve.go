package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"answerd/internal/observability"
	"answerd/internal/ollama"
	"answerd/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := observability.GetLogger()
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		client := ollama.NewClient(cfg.Ollama, log)
		if err := client.HealthCheck(ctx); err != nil {
			// Not fatal; /healthz keeps reporting it and the model may
			// come up later.
			log.Warn("ollama not reachable at startup", zap.Error(err))
		}

		store, cleanup, err := buildStore(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer cleanup()

		wf := buildWorkflow(client, cfg, log)
		srv := server.New(cfg.Server, cfg.History.ContextTurns, wf, store, client, log)
		return srv.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
