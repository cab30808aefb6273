package cmd

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"answerd/internal/observability"
	"answerd/internal/ollama"
	"answerd/internal/terminal"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a single question and exit",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := observability.GetLogger()
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		question := strings.TrimSpace(strings.Join(args, " "))
		client := ollama.NewClient(cfg.Ollama, log)
		wf := buildWorkflow(client, cfg, log)

		outcome, err := wf.Run(ctx, question, nil)
		if err != nil {
			return err
		}

		render := terminal.NewRenderer(os.Stdout, terminal.StdoutIsTTY())
		if outcome.UsedResearch {
			log.Info("answer used web research", zap.String("query", outcome.SearchQuery))
		}
		render.Answer(outcome.FinalAnswer)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
}
