// Package cli defines the destek command tree.
package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/destekhq/runtime/internal/app"
	"github.com/destekhq/runtime/internal/config"
	"github.com/destekhq/runtime/internal/tui"
)

const version = "0.1.0"

func NewRoot(logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:   "destek",
		Short: "Destek is a multi-channel AI support runtime",
	}

	root.AddCommand(newServeCommand(logger))
	root.AddCommand(newIngestCommand(logger))
	root.AddCommand(newChatCommand())
	root.AddCommand(newConsoleCommand(logger))
	root.AddCommand(newVersionCommand())

	return root
}

func newServeCommand(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the support runtime: API, connectors, and workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			runtime, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			defer runtime.Close()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runtime.Run(ctx)
		},
	}
}

func newIngestCommand(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <knowledge.json>",
		Short: "Replace the knowledge base from a JSON file of question/answer pairs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			runtime, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			defer runtime.Close()

			count, err := runtime.IngestKnowledge(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			cmd.Printf("ingested %d records\n", count)
			return nil
		},
	}
}

func newConsoleCommand(logger *slog.Logger) *cobra.Command {
	var agentID string
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Run the agent console for the handoff queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return tui.Run(config.FromEnv(), agentID, logger)
		},
	}
	cmd.Flags().StringVar(&agentID, "agent-id", "", "agent identity used when claiming sessions")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version)
		},
	}
}
