package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"answerd/internal/observability"
	"answerd/internal/ollama"
	"answerd/internal/terminal"
	"answerd/internal/workflow"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat interactively in the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := observability.GetLogger()
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		client := ollama.NewClient(cfg.Ollama, log)
		if err := client.HealthCheck(ctx); err != nil {
			return err
		}

		store, cleanup, err := buildStore(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer cleanup()

		isTTY := terminal.StdoutIsTTY()
		repl := &terminal.REPL{
			Model:        client,
			Research:     buildDigester(cfg, log),
			Override:     workflow.NewOverride(cfg.Research),
			Store:        store,
			Render:       terminal.NewRenderer(os.Stdout, isTTY),
			Input:        terminal.NewReader(os.Stdin),
			ModelName:    cfg.Ollama.Model,
			ContextTurns: cfg.History.ContextTurns,
			Stream:       cfg.Ollama.Stream && isTTY,
			Log:          log,
		}
		return repl.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
